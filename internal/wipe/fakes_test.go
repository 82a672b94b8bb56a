package wipe

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"diskwipe/internal/catalog"
	"diskwipe/internal/runner"
)

type fakeProcess struct {
	spec runner.CommandSpec
	sink runner.LineSink

	mu         sync.Mutex
	exitCode   *int
	terminated bool
}

func (p *fakeProcess) Poll() runner.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.terminated {
		return runner.Status{Kind: runner.Errored, Err: runner.ErrReleased}
	}
	if p.exitCode != nil {
		return runner.Status{Kind: runner.Exited, Code: *p.exitCode}
	}
	return runner.Status{Kind: runner.Running}
}

func (p *fakeProcess) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminated = true
	return nil
}

func (p *fakeProcess) exit(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exitCode = &code
}

func (p *fakeProcess) wasTerminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

// fakeLauncher records launches. In auto mode every process exits at once
// with codes[n] (default 0), n being the 0-based launch number.
type fakeLauncher struct {
	auto     bool
	codes    map[int]int
	spawnErr error

	mu       sync.Mutex
	procs    []*fakeProcess
	launched chan *fakeProcess
}

func newFakeLauncher(auto bool) *fakeLauncher {
	return &fakeLauncher{auto: auto, codes: map[int]int{}, launched: make(chan *fakeProcess, 128)}
}

func (l *fakeLauncher) Launch(_ context.Context, spec runner.CommandSpec, sink runner.LineSink) (Process, error) {
	if l.spawnErr != nil {
		return nil, errors.Mark(l.spawnErr, runner.ErrSpawnFailed)
	}
	l.mu.Lock()
	p := &fakeProcess{spec: spec, sink: sink}
	if l.auto {
		p.exit(l.codes[len(l.procs)])
	}
	l.procs = append(l.procs, p)
	l.mu.Unlock()
	l.launched <- p
	return p, nil
}

func (l *fakeLauncher) labels() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.procs))
	for _, p := range l.procs {
		out = append(out, p.spec.Label)
	}
	return out
}

type fakeCommands struct{}

func (fakeCommands) Pass(d catalog.Drive, p PassSpec) runner.CommandSpec {
	return runner.CommandSpec{Label: fmt.Sprintf("d%d-%s-%d", d.ID, p.Kind, p.Index), Name: "fake"}
}

func (fakeCommands) Clone(d catalog.Drive, target string) runner.CommandSpec {
	return runner.CommandSpec{Label: fmt.Sprintf("d%d-clone", d.ID), Name: "fake", Args: []string{target}}
}

type manualTicker struct{ c chan time.Time }

func (m manualTicker) C() <-chan time.Time { return m.c }
func (m manualTicker) Stop()               {}

func testDrive(id int) catalog.Drive {
	return catalog.Drive{ID: id, DisplayName: fmt.Sprintf("Disk %d", id), TotalBytes: 1 << 30}
}

func fastTiming() Timing {
	t := DefaultTiming()
	t.WipePoll = time.Millisecond
	t.ClonePoll = time.Millisecond
	t.Settle = 0
	return t
}

type harness struct {
	o      *Orchestrator
	l      *fakeLauncher
	obs    *ChannelObserver
	lease  *Lease
	ticker manualTicker
}

// newHarness builds an orchestrator with its own lease. manual replaces the
// poll ticker with one driven by tick.
func newHarness(t *testing.T, auto, manual bool, opts ...Option) *harness {
	h := &harness{
		l:      newFakeLauncher(auto),
		obs:    NewChannelObserver(1024),
		lease:  &Lease{},
		ticker: manualTicker{c: make(chan time.Time)},
	}
	base := []Option{
		WithLease(h.lease),
		WithObserver(h.obs),
		WithTiming(fastTiming()),
		WithLogger(zaptest.NewLogger(t)),
	}
	h.o = New(h.l, fakeCommands{}, append(base, opts...)...)
	if manual {
		h.o.newTicker = func(time.Duration) ticker { return h.ticker }
	}
	return h
}

const waitTimeout = 5 * time.Second

func (h *harness) tick(t *testing.T) {
	t.Helper()
	select {
	case h.ticker.c <- time.Now():
	case <-time.After(waitTimeout):
		t.Fatal("control loop did not accept tick")
	}
}

func (h *harness) nextLaunch(t *testing.T) *fakeProcess {
	t.Helper()
	select {
	case p := <-h.l.launched:
		return p
	case <-time.After(waitTimeout):
		t.Fatal("no launch")
		return nil
	}
}

func (h *harness) nextProgress(t *testing.T) ProgressEvent {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case e := <-h.obs.C:
			if p, ok := e.(ProgressEvent); ok {
				return p
			}
		case <-deadline:
			t.Fatal("no progress event")
			return ProgressEvent{}
		}
	}
}

// drainStates returns the state events currently buffered.
func (h *harness) drainStates() []StateEvent {
	var out []StateEvent
	for {
		select {
		case e := <-h.obs.C:
			if s, ok := e.(StateEvent); ok {
				out = append(out, s)
			}
		default:
			return out
		}
	}
}

func waitJob(t *testing.T, j *Job) Result {
	t.Helper()
	select {
	case <-j.Done():
	case <-time.After(waitTimeout):
		t.Fatalf("job %s did not finish, state %s", j.ID(), j.Snapshot().State)
	}
	return j.Wait()
}

func requireLeaseFree(t *testing.T, l *Lease) {
	t.Helper()
	require.Empty(t, l.Holder(), "lease still held")
}
