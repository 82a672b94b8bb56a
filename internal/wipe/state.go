package wipe

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"

	"diskwipe/internal/catalog"
	"diskwipe/internal/progress"
)

var (
	ErrAlreadyRunning    = errors.New("a wipe or clone job is already active")
	ErrCancelled         = errors.New("job cancelled")
	ErrSystemDisk        = errors.New("refusing to wipe the system disk")
	ErrNoActiveJob       = errors.New("no active job")
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrUnknownSize rejects cloning a drive that reports zero bytes: the
	// image would be empty yet count as a completed clone.
	ErrUnknownSize = errors.New("drive size is unknown")
)

// ExitCodeError is a pass that exited non-zero. The code is the tool's
// verbatim exit status.
type ExitCodeError struct {
	Pass int
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("pass %d exited with code %d", e.Pass+1, e.Code)
}

// PauseRisk is shown to the operator before and while a job is paused.
const PauseRisk = "Pausing kills the running pass. Its progress is lost, the drive is left " +
	"in an undefined state, and resume restarts the pass from the beginning."

type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

type OpKind string

const (
	OpWipe  OpKind = "wipe"
	OpClone OpKind = "clone"
)

// Snapshot is a copy of a job's state at one moment.
type Snapshot struct {
	JobID       string
	Kind        OpKind
	Drive       catalog.Drive
	Method      Method
	Filesystem  Filesystem
	Target      string
	State       State
	Pass        int
	TotalPasses int
	Percent     float64
	Mode        progress.Mode
	Throughput  *float64
	ETA         *time.Duration
	StartedAt   time.Time
	FinishedAt  time.Time
	Err         error
	PauseRisk   string
}

// Result is the terminal outcome of a job, kept in the orchestrator's
// history.
type Result struct {
	JobID       string
	Kind        OpKind
	Drive       catalog.Drive
	Method      Method
	Filesystem  Filesystem
	Target      string
	State       State
	PassesDone  int
	TotalPasses int
	StartedAt   time.Time
	FinishedAt  time.Time
	Err         error
}

func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
