package wipe

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"diskwipe/internal/catalog"
	"diskwipe/internal/progress"
	"diskwipe/internal/runner"
)

type controlOp int

const (
	opPause controlOp = iota
	opResume
	opCancel
)

func (c controlOp) String() string {
	switch c {
	case opPause:
		return "pause"
	case opResume:
		return "resume"
	default:
		return "cancel"
	}
}

type control struct {
	op    controlOp
	reply chan error
}

// Job is one wipe or clone. All state changes happen on its control loop
// goroutine; other goroutines read snapshots.
type Job struct {
	o      *Orchestrator
	id     string
	kind   OpKind
	drive  catalog.Drive
	method Method
	fs     Filesystem
	target string
	total  int
	poll   time.Duration
	est    *progress.Estimator
	logger *zap.Logger

	spec      func(pass int) runner.CommandSpec
	passLabel func(pass int) string

	ctl    chan control
	notify chan struct{}
	done   chan struct{}

	markerMu  sync.Mutex
	markerGen int
	marker    float64
	hasMarker bool

	mu     sync.Mutex
	snap   Snapshot
	result Result
}

func (j *Job) ID() string { return j.id }

func (j *Job) Kind() OpKind { return j.kind }

// Done is closed after the job reached a terminal state and released the
// lease.
func (j *Job) Done() <-chan struct{} { return j.done }

func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := j.snap
	if s.State == StatePaused {
		s.PauseRisk = PauseRisk
	}
	return s
}

// Wait blocks until the job is terminal and returns its result.
func (j *Job) Wait() Result {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

func (j *Job) Pause() error  { return j.send(opPause) }
func (j *Job) Resume() error { return j.send(opResume) }
func (j *Job) Cancel() error { return j.send(opCancel) }

func (j *Job) send(op controlOp) error {
	c := control{op: op, reply: make(chan error, 1)}
	select {
	case j.ctl <- c:
		return <-c.reply
	case <-j.done:
		return errors.Wrapf(ErrInvalidTransition, "%s: job %s already %s", op, j.id, j.Snapshot().State)
	}
}

// sink forwards "Progress: P%" markers of launch gen to the loop. It runs on
// the runner's pump goroutines and never blocks.
func (j *Job) sink(gen int) runner.LineSink {
	return func(stream runner.Stream, line string) {
		if stream != runner.Stdout {
			return
		}
		p, ok := progress.ParseMarker(line)
		if !ok {
			return
		}
		j.markerMu.Lock()
		j.markerGen, j.marker, j.hasMarker = gen, p, true
		j.markerMu.Unlock()
		select {
		case j.notify <- struct{}{}:
		default:
		}
	}
}

func (j *Job) takeMarker(gen int) (float64, bool) {
	j.markerMu.Lock()
	defer j.markerMu.Unlock()
	if !j.hasMarker || j.markerGen != gen {
		return 0, false
	}
	j.hasMarker = false
	return j.marker, true
}

func (j *Job) setState(to State, pass int, err error) {
	j.mu.Lock()
	from := j.snap.State
	j.snap.State = to
	j.snap.Pass = pass
	j.snap.Err = err
	if to != StateRunning {
		j.snap.Throughput, j.snap.ETA = nil, nil
	}
	j.mu.Unlock()

	j.logger.Info("State changed",
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Int("pass", pass+1),
		zap.Int("total_passes", j.total))

	j.o.observer.OnState(StateEvent{
		JobID:   j.id,
		Kind:    j.kind,
		DriveID: j.drive.ID,
		From:    from,
		To:      to,
		Pass:    pass,
		Err:     err,
	})
}

func (j *Job) emit(pass int, s progress.Sample) {
	j.mu.Lock()
	j.snap.Percent = s.Percent
	j.snap.Mode = s.Mode
	j.snap.Throughput = s.Throughput
	j.snap.ETA = s.ETA
	j.mu.Unlock()

	j.o.metrics.Progress(j.kind, s.Percent)
	j.o.observer.OnProgress(ProgressEvent{
		JobID:       j.id,
		Kind:        j.kind,
		DriveID:     j.drive.ID,
		Pass:        pass,
		TotalPasses: j.total,
		Percent:     s.Percent,
		Elapsed:     s.Elapsed,
		Throughput:  s.Throughput,
		ETA:         s.ETA,
		Mode:        s.Mode,
	})
}

// finish records the terminal state, releases the lease and then notifies
// observers, so an observer may start the next job right away.
func (j *Job) finish(state State, passesDone int, err error) {
	now := time.Now()
	j.mu.Lock()
	from := j.snap.State
	pass := j.snap.Pass
	j.snap.State = state
	j.snap.Err = err
	j.snap.FinishedAt = now
	j.snap.Throughput, j.snap.ETA = nil, nil
	j.result = Result{
		JobID:       j.id,
		Kind:        j.kind,
		Drive:       j.drive,
		Method:      j.method,
		Filesystem:  j.fs,
		Target:      j.target,
		State:       state,
		PassesDone:  passesDone,
		TotalPasses: j.total,
		StartedAt:   j.snap.StartedAt,
		FinishedAt:  now,
		Err:         err,
	}
	res := j.result
	j.mu.Unlock()

	if state == StateCompleted && j.kind == OpClone {
		j.o.cloned.Add(j.drive.ID)
	}
	j.o.record(res)
	j.o.lease.Release(j.id)
	j.o.metrics.JobFinished(j.kind, state, res.Duration())

	fields := []zap.Field{
		zap.Stringer("from", from),
		zap.Stringer("to", state),
		zap.Int("passes_done", passesDone),
		zap.Duration("duration", res.Duration()),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if state == StateCompleted {
		j.logger.Info("Job finished", fields...)
	} else {
		j.logger.Warn("Job finished", fields...)
	}

	j.o.observer.OnState(StateEvent{
		JobID:   j.id,
		Kind:    j.kind,
		DriveID: j.drive.ID,
		From:    from,
		To:      state,
		Pass:    pass,
		Err:     err,
	})
}

func (j *Job) terminate(proc Process) {
	if proc == nil {
		return
	}
	if err := proc.Terminate(); err != nil {
		j.logger.Error("Terminate failed", zap.Error(err))
	}
}

func (j *Job) run(ctx context.Context) {
	defer close(j.done)

	j.o.observer.OnState(StateEvent{
		JobID:   j.id,
		Kind:    j.kind,
		DriveID: j.drive.ID,
		From:    StateIdle,
		To:      StateRunning,
	})

	tk := j.o.newTicker(j.poll)
	defer tk.Stop()

	var (
		pass      int
		gen       int
		proc      Process
		passStart time.Time
		settle    <-chan time.Time
		paused    bool
	)

	launch := func() error {
		gen++
		spec := j.spec(pass)
		p, err := j.o.launcher.Launch(ctx, spec, j.sink(gen))
		if err != nil {
			return errors.Wrapf(err, "launch pass %d", pass+1)
		}
		proc = p
		passStart = time.Now()
		j.est.BeginPass(pass)
		j.logger.Info("Pass launched",
			zap.Int("pass", pass+1),
			zap.String("type", j.passLabel(pass)),
			zap.Stringer("command", spec))
		return nil
	}

	if err := launch(); err != nil {
		j.finish(StateFailed, 0, err)
		return
	}

	for {
		var tick <-chan time.Time
		if proc != nil {
			tick = tk.C()
		}

		select {
		case <-ctx.Done():
			j.terminate(proc)
			j.finish(StateCancelled, pass, errors.Mark(errors.Wrap(ctx.Err(), "context done"), ErrCancelled))
			return

		case c := <-j.ctl:
			switch c.op {
			case opPause:
				if paused {
					c.reply <- errors.Wrap(ErrInvalidTransition, "job is already paused")
					continue
				}
				j.terminate(proc)
				proc, settle, paused = nil, nil, true
				j.logger.Warn("Pass interrupted by pause", zap.Int("pass", pass+1), zap.String("risk", PauseRisk))
				j.setState(StatePaused, pass, nil)
				c.reply <- nil

			case opResume:
				if !paused {
					c.reply <- errors.Wrap(ErrInvalidTransition, "job is not paused")
					continue
				}
				paused = false
				j.setState(StateRunning, pass, nil)
				c.reply <- nil
				if err := launch(); err != nil {
					j.finish(StateFailed, pass, err)
					return
				}

			case opCancel:
				j.terminate(proc)
				j.finish(StateCancelled, pass, ErrCancelled)
				c.reply <- nil
				return
			}

		case <-tick:
			st := proc.Poll()
			elapsed := time.Since(passStart)
			switch st.Kind {
			case runner.Running:
				j.emit(pass, j.est.Tick(elapsed))

			case runner.Exited:
				proc = nil
				j.o.metrics.PassFinished(j.kind, j.passLabel(pass), st.Code, elapsed)
				if st.Code != 0 {
					j.finish(StateFailed, pass, &ExitCodeError{Pass: pass, Code: st.Code})
					return
				}
				j.emit(pass, j.est.Complete(elapsed))
				pass++
				if pass >= j.total {
					j.finish(StateCompleted, pass, nil)
					return
				}
				j.setState(StateRunning, pass, nil)
				if j.o.timing.Settle > 0 {
					settle = j.o.after(j.o.timing.Settle)
				} else if err := launch(); err != nil {
					j.finish(StateFailed, pass, err)
					return
				}

			case runner.Errored:
				proc = nil
				j.finish(StateFailed, pass, errors.Wrapf(st.Err, "pass %d", pass+1))
				return
			}

		case <-settle:
			settle = nil
			if err := launch(); err != nil {
				j.finish(StateFailed, pass, err)
				return
			}

		case <-j.notify:
			if proc == nil {
				continue
			}
			if p, ok := j.takeMarker(gen); ok {
				j.emit(pass, j.est.Observe(p, time.Since(passStart)))
			}
		}
	}
}
