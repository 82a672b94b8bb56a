// Package wipe sequences destructive passes and clones against physical
// drives, one job at a time.
package wipe

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"diskwipe/internal/catalog"
	"diskwipe/internal/logging"
	"diskwipe/internal/progress"
	"diskwipe/internal/runner"
)

// FallbackDriveSize is used for estimates when a drive reports no size.
const FallbackDriveSize = 1_000_000_000

// Process is one launched external command.
type Process interface {
	Poll() runner.Status
	Terminate() error
}

// Launcher starts external commands.
type Launcher interface {
	Launch(ctx context.Context, spec runner.CommandSpec, sink runner.LineSink) (Process, error)
}

// RunnerLauncher launches through a runner.Runner.
type RunnerLauncher struct {
	Runner *runner.Runner
}

func (l RunnerLauncher) Launch(ctx context.Context, spec runner.CommandSpec, sink runner.LineSink) (Process, error) {
	op, err := l.Runner.Start(ctx, spec, sink)
	if err != nil {
		return nil, err
	}
	return op, nil
}

// Commands builds the external invocation for each pass and for clones.
type Commands interface {
	Pass(drive catalog.Drive, pass PassSpec) runner.CommandSpec
	Clone(drive catalog.Drive, target string) runner.CommandSpec
}

// Recorder receives job and pass metrics.
type Recorder interface {
	JobStarted(kind OpKind)
	JobFinished(kind OpKind, state State, d time.Duration)
	PassFinished(kind OpKind, pass string, code int, d time.Duration)
	Progress(kind OpKind, percent float64)
}

type nopRecorder struct{}

func (nopRecorder) JobStarted(OpKind)                               {}
func (nopRecorder) JobFinished(OpKind, State, time.Duration)        {}
func (nopRecorder) PassFinished(OpKind, string, int, time.Duration) {}
func (nopRecorder) Progress(OpKind, float64)                        {}

// Timing holds the polling and estimation parameters.
type Timing struct {
	WipePoll      time.Duration
	ClonePoll     time.Duration
	Settle        time.Duration
	Stabilization time.Duration
	WipeRamp      progress.Ramp
	CloneRamp     progress.Ramp
}

func DefaultTiming() Timing {
	return Timing{
		WipePoll:      2 * time.Second,
		ClonePoll:     3 * time.Second,
		Settle:        500 * time.Millisecond,
		Stabilization: progress.DefaultStabilization,
		WipeRamp:      progress.Ramp{Step: 10, Cap: 90},
		CloneRamp:     progress.Ramp{Step: 2, Cap: 10},
	}
}

// Guard vetoes drives before a wipe starts.
type Guard func(catalog.Drive) error

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ *time.Ticker }

func (t realTicker) C() <-chan time.Time { return t.Ticker.C }

type Option func(*Orchestrator)

func WithLease(l *Lease) Option         { return func(o *Orchestrator) { o.lease = l } }
func WithObserver(obs Observer) Option  { return func(o *Orchestrator) { o.observer = obs } }
func WithClonedSet(s *ClonedSet) Option { return func(o *Orchestrator) { o.cloned = s } }
func WithTiming(t Timing) Option        { return func(o *Orchestrator) { o.timing = t } }
func WithLogger(l *zap.Logger) Option   { return func(o *Orchestrator) { o.logger = logging.OrNop(l) } }
func WithRecorder(r Recorder) Option    { return func(o *Orchestrator) { o.metrics = r } }
func WithGuard(g Guard) Option          { return func(o *Orchestrator) { o.guard = g } }

// Orchestrator owns the job lease and drives at most one job at a time.
type Orchestrator struct {
	launcher Launcher
	commands Commands
	lease    *Lease
	observer Observer
	cloned   *ClonedSet
	timing   Timing
	logger   *zap.Logger
	metrics  Recorder
	guard    Guard

	newTicker func(time.Duration) ticker
	after     func(time.Duration) <-chan time.Time

	mu      sync.Mutex
	current *Job
	history []Result
}

func New(launcher Launcher, commands Commands, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		launcher: launcher,
		commands: commands,
		lease:    processLease,
		observer: nopObserver{},
		cloned:   NewClonedSet(),
		timing:   DefaultTiming(),
		logger:   zap.NewNop(),
		metrics:  nopRecorder{},
		newTicker: func(d time.Duration) ticker {
			return realTicker{time.NewTicker(d)}
		},
		after: time.After,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ClonedSet returns the session's set of cloned drives.
func (o *Orchestrator) ClonedSet() *ClonedSet {
	return o.cloned
}

func (o *Orchestrator) check(drive catalog.Drive) error {
	if drive.IsSystemDisk {
		return errors.Wrapf(ErrSystemDisk, "disk %d", drive.ID)
	}
	if o.guard != nil {
		return o.guard(drive)
	}
	return nil
}

// StartWipe runs plan(method) against drive. The job ends Cancelled if ctx
// is cancelled.
func (o *Orchestrator) StartWipe(ctx context.Context, drive catalog.Drive, fs Filesystem, method Method) (*Job, error) {
	if err := o.check(drive); err != nil {
		return nil, err
	}
	plan := Plan(method, fs)
	j := o.newJob(OpWipe, drive, len(plan), o.timing.WipePoll, o.timing.WipeRamp)
	j.method = method
	j.fs = fs
	j.spec = func(pass int) runner.CommandSpec {
		return o.commands.Pass(drive, plan[pass])
	}
	j.passLabel = func(pass int) string { return plan[pass].Kind.String() }
	return o.start(ctx, j)
}

// StartClone copies drive into target. System disks may be cloned; drives
// without a known size may not.
func (o *Orchestrator) StartClone(ctx context.Context, drive catalog.Drive, target string) (*Job, error) {
	if drive.TotalBytes == 0 {
		return nil, errors.Wrapf(ErrUnknownSize, "disk %d", drive.ID)
	}
	j := o.newJob(OpClone, drive, 1, o.timing.ClonePoll, o.timing.CloneRamp)
	j.target = target
	j.spec = func(int) runner.CommandSpec {
		return o.commands.Clone(drive, target)
	}
	j.passLabel = func(int) string { return "clone" }
	return o.start(ctx, j)
}

func (o *Orchestrator) newJob(kind OpKind, drive catalog.Drive, total int, poll time.Duration, ramp progress.Ramp) *Job {
	size := drive.TotalBytes
	if size == 0 {
		size = FallbackDriveSize
	}
	id := uuid.NewString()
	return &Job{
		o:      o,
		id:     id,
		kind:   kind,
		drive:  drive,
		total:  total,
		poll:   poll,
		logger: o.logger.With(zap.String("job", id), zap.String("kind", string(kind)), zap.Int("disk", drive.ID)),
		est: progress.NewEstimator(progress.Options{
			Ramp:          ramp,
			Stabilization: o.timing.Stabilization,
			TotalBytes:    size,
			TotalPasses:   total,
		}),
		ctl:    make(chan control),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (o *Orchestrator) start(ctx context.Context, j *Job) (*Job, error) {
	if !o.lease.TryAcquire(j.id) {
		return nil, errors.Wrapf(ErrAlreadyRunning, "held by job %s", o.lease.Holder())
	}

	now := time.Now()
	j.snap = Snapshot{
		JobID:       j.id,
		Kind:        j.kind,
		Drive:       j.drive,
		Method:      j.method,
		Filesystem:  j.fs,
		Target:      j.target,
		State:       StateRunning,
		TotalPasses: j.total,
		StartedAt:   now,
	}

	o.mu.Lock()
	o.current = j
	o.mu.Unlock()

	o.metrics.JobStarted(j.kind)
	j.logger.Info("Job started",
		zap.String("method", j.method.String()),
		zap.String("filesystem", string(j.fs)),
		zap.Int("passes", j.total))

	go j.run(ctx)
	return j, nil
}

// Current returns the most recent job, or nil.
func (o *Orchestrator) Current() *Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// State returns the snapshot of the most recent job, or an Idle snapshot.
func (o *Orchestrator) State() Snapshot {
	if j := o.Current(); j != nil {
		return j.Snapshot()
	}
	return Snapshot{State: StateIdle}
}

func (o *Orchestrator) active() (*Job, error) {
	j := o.Current()
	if j == nil || j.Snapshot().State.Terminal() {
		return nil, ErrNoActiveJob
	}
	return j, nil
}

// Pause kills the running pass. See PauseRisk.
func (o *Orchestrator) Pause() error {
	j, err := o.active()
	if err != nil {
		return err
	}
	return j.Pause()
}

// Resume restarts the paused pass from its beginning.
func (o *Orchestrator) Resume() error {
	j, err := o.active()
	if err != nil {
		return err
	}
	return j.Resume()
}

// Cancel terminates the active job.
func (o *Orchestrator) Cancel() error {
	j, err := o.active()
	if err != nil {
		return err
	}
	return j.Cancel()
}

// History returns the terminal results of jobs run by this orchestrator.
func (o *Orchestrator) History() []Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Result(nil), o.history...)
}

func (o *Orchestrator) record(r Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = append(o.history, r)
}

// WipeDrives wipes drives one after another. Drives rejected by the
// system-disk check or the guard are skipped. It stops at the first job
// that does not complete and returns that job's error.
func (o *Orchestrator) WipeDrives(ctx context.Context, drives []catalog.Drive, fs Filesystem, method Method) ([]Result, error) {
	var results []Result
	for _, d := range drives {
		if err := o.check(d); err != nil {
			o.logger.Warn("Skipping drive", zap.Int("disk", d.ID), zap.Error(err))
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, errors.Mark(errors.Wrap(err, "batch interrupted"), ErrCancelled)
		}

		j, err := o.StartWipe(ctx, d, fs, method)
		if err != nil {
			return results, err
		}
		res := j.Wait()
		results = append(results, res)
		if res.State != StateCompleted {
			return results, res.Err
		}
	}
	return results, nil
}
