package main

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"

	"diskwipe/internal/wipe"
)

// jobControl is the slice of the orchestrator the stdin channel drives.
type jobControl interface {
	Pause() error
	Resume() error
	Cancel() error
	State() wipe.Snapshot
}

const controlHelp = "Controls: p = pause, r = resume, c = cancel, s = status\n"

// controller interprets one command per line. Pausing needs a second "y"
// line because it restarts the current pass from the beginning.
type controller struct {
	jobs         jobControl
	console      *console
	pendingPause bool
}

func (c *controller) handle(line string) {
	cmd := strings.ToLower(strings.TrimSpace(line))

	if c.pendingPause {
		c.pendingPause = false
		if cmd == "y" || cmd == "yes" {
			c.report("pause", c.jobs.Pause())
		} else {
			c.console.Printf("Pause aborted\n")
		}
		return
	}

	switch cmd {
	case "":
	case "p", "pause":
		s := c.jobs.State()
		if s.State != wipe.StateRunning {
			c.report("pause", wipe.ErrNoActiveJob)
			return
		}
		c.console.Printf("%s\n", color.YellowString("WARNING: %s", wipe.PauseRisk))
		c.console.Printf("Type y to pause anyway: ")
		c.pendingPause = true
	case "r", "resume":
		c.report("resume", c.jobs.Resume())
	case "c", "cancel":
		c.report("cancel", c.jobs.Cancel())
	case "s", "status":
		c.console.Printf("%s\n", statusLine(c.jobs.State()))
	default:
		c.console.Printf(controlHelp)
	}
}

func (c *controller) report(op string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, wipe.ErrNoActiveJob):
		c.console.Printf("%s: no active job\n", op)
	default:
		c.console.Printf("%s\n", color.RedString("%s: %v", op, err))
	}
}

func statusLine(s wipe.Snapshot) string {
	if s.JobID == "" {
		return "idle"
	}
	line := formatSnapshot(s)
	if s.PauseRisk != "" {
		line += "\n" + color.YellowString("%s", s.PauseRisk)
	}
	return line
}

func formatSnapshot(s wipe.Snapshot) string {
	e := wipe.ProgressEvent{
		Kind:        s.Kind,
		DriveID:     s.Drive.ID,
		Pass:        s.Pass,
		TotalPasses: s.TotalPasses,
		Throughput:  s.Throughput,
		ETA:         s.ETA,
	}
	return describeProgress(e) + " | " + s.State.String() + " | " + formatPercent(s.Percent)
}

// runControls reads commands from r until ctx is done or r is exhausted.
func runControls(ctx context.Context, r io.Reader, c *controller) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			c.handle(line)
		}
	}
}
