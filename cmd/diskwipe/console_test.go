package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"

	"diskwipe/internal/catalog"
	"diskwipe/internal/config"
	"diskwipe/internal/security"
	"diskwipe/internal/wipe"
)

func TestDescribeProgress(t *testing.T) {
	e := wipe.ProgressEvent{Kind: wipe.OpWipe, DriveID: 1, Pass: 0, TotalPasses: 4, Percent: 10}
	assert.Equal(t, "wipe disk 1 pass 1/4 | calculating...", describeProgress(e))

	tp := float64(50 * 1024 * 1024)
	eta := 90*time.Second + 400*time.Millisecond
	e.Throughput, e.ETA = &tp, &eta
	assert.Equal(t, "wipe disk 1 pass 1/4 | 50.0 MiB/s | ETA 1m30s", describeProgress(e))
}

func TestStateLines(t *testing.T) {
	base := wipe.StateEvent{Kind: wipe.OpWipe, DriveID: 3, Pass: 2}

	cases := []struct {
		from, to wipe.State
		err      error
		want     string
	}{
		{wipe.StateIdle, wipe.StateRunning, nil, "wipe disk 3: pass 3 started"},
		{wipe.StatePaused, wipe.StateRunning, nil, "wipe disk 3: resumed, restarting pass 3"},
		{wipe.StateRunning, wipe.StatePaused, nil, "wipe disk 3: paused at pass 3"},
		{wipe.StateRunning, wipe.StateCompleted, nil, "wipe disk 3: COMPLETED"},
		{wipe.StateRunning, wipe.StateFailed, errors.New("boom"), "wipe disk 3: FAILED: boom"},
		{wipe.StatePaused, wipe.StateCancelled, nil, "wipe disk 3: CANCELLED"},
	}
	for _, tc := range cases {
		e := base
		e.From, e.To, e.Err = tc.from, tc.to, tc.err
		assert.Equal(t, tc.want, stateLine(e))
	}
}

func TestConsoleRendersEvents(t *testing.T) {
	var buf bytes.Buffer
	c := newConsole(&buf)

	c.OnState(wipe.StateEvent{Kind: wipe.OpClone, DriveID: 0, To: wipe.StateRunning})
	c.OnProgress(wipe.ProgressEvent{JobID: "j", Kind: wipe.OpClone, TotalPasses: 1, Percent: 12})
	c.OnProgress(wipe.ProgressEvent{JobID: "j", Kind: wipe.OpClone, TotalPasses: 1, Percent: 30})
	assert.NotNil(t, c.bar)

	c.OnState(wipe.StateEvent{Kind: wipe.OpClone, DriveID: 0, From: wipe.StateRunning, To: wipe.StateCompleted})
	assert.Nil(t, c.bar)
	assert.Contains(t, buf.String(), "clone disk 0: pass 1 started")
	assert.Contains(t, buf.String(), "clone disk 0: COMPLETED")
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "1.0 KiB", humanBytes(1024))
	assert.Equal(t, "1.5 MiB", humanBytes(1536*1024))
	assert.Equal(t, "931.3 GiB", humanBytes(1_000_000_000_000))
}

func TestExitCode(t *testing.T) {
	done := wipe.Result{Kind: wipe.OpWipe, State: wipe.StateCompleted}
	failed := wipe.Result{Kind: wipe.OpWipe, State: wipe.StateFailed}
	cancelled := wipe.Result{Kind: wipe.OpWipe, State: wipe.StateCancelled}

	assert.Equal(t, ExitCompleted, exitCode([]wipe.Result{done}, nil))
	assert.Equal(t, ExitFailed, exitCode([]wipe.Result{done, failed}, errors.New("x")))
	assert.Equal(t, ExitCancelled, exitCode([]wipe.Result{done, cancelled}, wipe.ErrCancelled))
	assert.Equal(t, ExitCancelled, exitCode([]wipe.Result{done}, errors.Mark(errors.New("batch interrupted"), wipe.ErrCancelled)))
	assert.Equal(t, ExitFailed, exitCode(nil, errors.New("clone failed")))
}

func TestSelectTargetsFromArgs(t *testing.T) {
	cfg := config.Default()
	cfg.Security.ExcludedDrives = []int{2}
	policy := security.NewPolicy(cfg)
	drives := []catalog.Drive{
		{ID: 0, IsSystemDisk: true},
		{ID: 1},
		{ID: 2},
		{ID: 3},
	}

	targets, err := selectTargets([]string{"3", "0", "2", "1", "3"}, drives, policy)
	assert.NoError(t, err)
	ids := make([]int, 0, len(targets))
	for _, d := range targets {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []int{3, 1}, ids)

	_, err = selectTargets([]string{"9"}, drives, policy)
	assert.True(t, errors.Is(err, catalog.ErrDriveNotFound))

	_, err = selectTargets([]string{"one"}, drives, policy)
	assert.Error(t, err)
}
