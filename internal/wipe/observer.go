package wipe

import (
	"time"

	"diskwipe/internal/progress"
)

// ProgressEvent is a transient notification; nothing stores it. Pass is
// 0-based. Throughput and ETA are nil while the estimate is not yet stable.
type ProgressEvent struct {
	JobID       string
	Kind        OpKind
	DriveID     int
	Pass        int
	TotalPasses int
	Percent     float64
	Elapsed     time.Duration
	Throughput  *float64
	ETA         *time.Duration
	Mode        progress.Mode
}

// StateEvent is emitted on every state transition.
type StateEvent struct {
	JobID   string
	Kind    OpKind
	DriveID int
	From    State
	To      State
	Pass    int
	Err     error
}

// Observer receives events from the control loop. Calls are made from the
// loop goroutine and must not block for long.
type Observer interface {
	OnProgress(ProgressEvent)
	OnState(StateEvent)
}

// Event is either a ProgressEvent or a StateEvent.
type Event interface{}

// ChannelObserver publishes events to a bounded channel. Progress events are
// dropped when the channel is full; state events always block until
// delivered.
type ChannelObserver struct {
	C chan Event
}

func NewChannelObserver(size int) *ChannelObserver {
	return &ChannelObserver{C: make(chan Event, size)}
}

func (c *ChannelObserver) OnProgress(e ProgressEvent) {
	select {
	case c.C <- e:
	default:
	}
}

func (c *ChannelObserver) OnState(e StateEvent) {
	c.C <- e
}

type nopObserver struct{}

func (nopObserver) OnProgress(ProgressEvent) {}
func (nopObserver) OnState(StateEvent)       {}
