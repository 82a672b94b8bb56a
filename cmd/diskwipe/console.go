package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"diskwipe/internal/wipe"
)

// console renders orchestrator events: one progress bar per pass and a
// colored line per state transition.
type console struct {
	mu      sync.Mutex
	out     io.Writer
	bar     *progressbar.ProgressBar
	barJob  string
	barPass int
}

func newConsole(out io.Writer) *console {
	return &console{out: out, barPass: -1}
}

func (c *console) OnProgress(e wipe.ProgressEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bar == nil || c.barJob != e.JobID || c.barPass != e.Pass {
		c.closeBar()
		c.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(c.out),
			progressbar.OptionSetWidth(30),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionShowElapsedTimeOnFinish(),
		)
		c.barJob, c.barPass = e.JobID, e.Pass
	}
	c.bar.Describe(describeProgress(e))
	_ = c.bar.Set(int(e.Percent))
}

func (c *console) OnState(e wipe.StateEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeBar()
	line := stateLine(e)
	if line == "" {
		return
	}
	fmt.Fprintln(c.out, line)
}

// Printf writes a line without tearing an active bar.
func (c *console) Printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bar != nil {
		_ = c.bar.Clear()
	}
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) closeBar() {
	if c.bar == nil {
		return
	}
	_ = c.bar.Clear()
	c.bar = nil
	c.barPass = -1
}

func describeProgress(e wipe.ProgressEvent) string {
	desc := fmt.Sprintf("%s disk %d pass %d/%d", e.Kind, e.DriveID, e.Pass+1, e.TotalPasses)
	if e.Throughput == nil || e.ETA == nil {
		return desc + " | calculating..."
	}
	return fmt.Sprintf("%s | %s/s | ETA %s", desc, humanBytes(uint64(*e.Throughput)), e.ETA.Round(time.Second))
}

func stateLine(e wipe.StateEvent) string {
	subject := fmt.Sprintf("%s disk %d", e.Kind, e.DriveID)
	switch e.To {
	case wipe.StateRunning:
		if e.From == wipe.StatePaused {
			return color.CyanString("%s: resumed, restarting pass %d", subject, e.Pass+1)
		}
		return color.CyanString("%s: pass %d started", subject, e.Pass+1)
	case wipe.StatePaused:
		return color.YellowString("%s: paused at pass %d", subject, e.Pass+1)
	case wipe.StateCompleted:
		return color.GreenString("%s: COMPLETED", subject)
	case wipe.StateFailed:
		return color.RedString("%s: FAILED: %v", subject, e.Err)
	case wipe.StateCancelled:
		return color.MagentaString("%s: CANCELLED", subject)
	}
	return ""
}

func outcome(s wipe.State) string {
	switch s {
	case wipe.StateCompleted:
		return color.GreenString("✓ %s", s)
	case wipe.StateFailed:
		return color.RedString("✗ %s", s)
	case wipe.StateCancelled:
		return color.MagentaString("⚠ %s", s)
	}
	return s.String()
}

func printResults(c *console, results []wipe.Result) {
	c.Printf("\nResults:\n========\n")
	for _, r := range results {
		line := fmt.Sprintf("%s disk %d %s - %d/%d passes, %s", r.Kind, r.Drive.ID, outcome(r.State),
			r.PassesDone, r.TotalPasses, r.Duration().Round(time.Second))
		if r.Err != nil {
			line += fmt.Sprintf(" (%v)", r.Err)
		}
		c.Printf("%s\n", line)
	}
}

func formatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}
