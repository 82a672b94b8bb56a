package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diskwipe/internal/catalog"
	"diskwipe/internal/wipe"
)

func init() {
	color.NoColor = true
}

type fakeJobs struct {
	calls    []string
	snapshot wipe.Snapshot
	err      error
}

func (f *fakeJobs) Pause() error  { f.calls = append(f.calls, "pause"); return f.err }
func (f *fakeJobs) Resume() error { f.calls = append(f.calls, "resume"); return f.err }
func (f *fakeJobs) Cancel() error { f.calls = append(f.calls, "cancel"); return f.err }

func (f *fakeJobs) State() wipe.Snapshot { return f.snapshot }

func newTestController(jobs *fakeJobs) (*controller, *bytes.Buffer) {
	var buf bytes.Buffer
	return &controller{jobs: jobs, console: newConsole(&buf)}, &buf
}

func runningSnapshot() wipe.Snapshot {
	return wipe.Snapshot{
		JobID:       "job-1",
		Kind:        wipe.OpWipe,
		Drive:       catalog.Drive{ID: 2},
		State:       wipe.StateRunning,
		Pass:        1,
		TotalPasses: 4,
		Percent:     42.5,
	}
}

func TestPauseNeedsConfirmation(t *testing.T) {
	jobs := &fakeJobs{snapshot: runningSnapshot()}
	c, out := newTestController(jobs)

	c.handle("p")
	assert.Empty(t, jobs.calls)
	assert.Contains(t, out.String(), wipe.PauseRisk)

	c.handle("y")
	assert.Equal(t, []string{"pause"}, jobs.calls)
}

func TestPauseAbortedWithoutYes(t *testing.T) {
	jobs := &fakeJobs{snapshot: runningSnapshot()}
	c, out := newTestController(jobs)

	c.handle("pause")
	c.handle("n")
	assert.Empty(t, jobs.calls)
	assert.Contains(t, out.String(), "Pause aborted")

	// The next line is a regular command again.
	c.handle("c")
	assert.Equal(t, []string{"cancel"}, jobs.calls)
}

func TestPauseWhenNothingRuns(t *testing.T) {
	jobs := &fakeJobs{snapshot: wipe.Snapshot{State: wipe.StateIdle}}
	c, out := newTestController(jobs)

	c.handle("p")
	c.handle("y")
	assert.Empty(t, jobs.calls)
	assert.Contains(t, out.String(), "pause: no active job")
}

func TestResumeAndCancel(t *testing.T) {
	jobs := &fakeJobs{snapshot: runningSnapshot()}
	c, _ := newTestController(jobs)

	c.handle(" R ")
	c.handle("cancel")
	assert.Equal(t, []string{"resume", "cancel"}, jobs.calls)
}

func TestControlErrorsAreReported(t *testing.T) {
	jobs := &fakeJobs{snapshot: runningSnapshot(), err: errors.Wrap(wipe.ErrInvalidTransition, "resume")}
	c, out := newTestController(jobs)

	c.handle("r")
	assert.Contains(t, out.String(), "invalid")
}

func TestStatusLine(t *testing.T) {
	assert.Equal(t, "idle", statusLine(wipe.Snapshot{State: wipe.StateIdle}))

	line := statusLine(runningSnapshot())
	assert.Contains(t, line, "wipe disk 2 pass 2/4")
	assert.Contains(t, line, "calculating...")
	assert.Contains(t, line, "42.5%")

	paused := runningSnapshot()
	paused.State = wipe.StatePaused
	paused.PauseRisk = wipe.PauseRisk
	assert.Contains(t, statusLine(paused), wipe.PauseRisk)
}

func TestUnknownCommandPrintsHelp(t *testing.T) {
	c, out := newTestController(&fakeJobs{})
	c.handle("x")
	assert.Equal(t, controlHelp, out.String())
}

func TestRunControlsReadsLines(t *testing.T) {
	jobs := &fakeJobs{snapshot: runningSnapshot()}
	c, _ := newTestController(jobs)

	runControls(context.Background(), strings.NewReader("r\n\nc\n"), c)
	require.Equal(t, []string{"resume", "cancel"}, jobs.calls)
}
