package runner

import (
	"os/exec"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

type StatusKind int

const (
	Running StatusKind = iota
	Exited
	Errored
)

func (k StatusKind) String() string {
	switch k {
	case Running:
		return "running"
	case Exited:
		return "exited"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// Status is the result of a non-blocking poll. Code is set for Exited, Err
// for Errored.
type Status struct {
	Kind StatusKind
	Code int
	Err  error
}

// RunningOperation is the handle of one spawned process. After Poll has
// reported Exited or Errored, or after Terminate, the handle is released
// and further polls report ErrReleased.
type RunningOperation struct {
	cmd       *exec.Cmd
	startedAt time.Time
	done      chan struct{}
	logger    *zap.Logger

	mu         sync.Mutex
	finishedAt time.Time
	exitCode   int
	waitErr    error
	released   bool
	terminated bool
}

// Done is closed once the process has been reaped and its script removed.
func (op *RunningOperation) Done() <-chan struct{} {
	return op.done
}

// Poll reports the process state without blocking.
func (op *RunningOperation) Poll() Status {
	op.mu.Lock()
	released := op.released
	op.mu.Unlock()
	if released {
		return Status{Kind: Errored, Err: ErrReleased}
	}

	select {
	case <-op.done:
	default:
		return Status{Kind: Running}
	}

	op.mu.Lock()
	defer op.mu.Unlock()
	op.released = true
	if op.waitErr != nil {
		return Status{Kind: Errored, Err: op.waitErr}
	}
	return Status{Kind: Exited, Code: op.exitCode}
}

// Terminate force-kills the process tree and blocks until the process is
// reaped. Terminating an already finished operation only releases it.
func (op *RunningOperation) Terminate() error {
	op.mu.Lock()
	if op.terminated {
		op.mu.Unlock()
		<-op.done
		return nil
	}
	op.terminated = true
	op.mu.Unlock()

	var killErr error
	select {
	case <-op.done:
	default:
		op.logger.Warn("Terminating external process tree")
		killErr = killTree(op.cmd)
	}

	<-op.done

	op.mu.Lock()
	op.released = true
	op.mu.Unlock()

	if killErr != nil {
		return errors.Mark(errors.Wrap(killErr, "kill process tree"), ErrIO)
	}
	return nil
}
