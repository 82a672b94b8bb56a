// Package runner launches one external destructive tool at a time,
// forwards its output line by line and reaps it. Killing an operation
// always targets the whole process tree rooted at the spawned process.
package runner

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"diskwipe/internal/logging"
)

var (
	ErrSpawnFailed = errors.New("failed to spawn external process")
	ErrIO          = errors.New("external process i/o error")
	// ErrReleased is returned when a handle is used after it reported an
	// exit or was terminated.
	ErrReleased = errors.New("operation handle already released")
)

// ScriptPathArg is replaced in CommandSpec.Args by the path of the
// temporary script file.
const ScriptPathArg = "{script}"

// Script is a script body written to a temporary file for the lifetime of
// one operation.
type Script struct {
	Body string
	// Pattern is passed to os.CreateTemp, e.g. "diskpart_*.txt".
	Pattern string
}

// CommandSpec describes one external invocation.
type CommandSpec struct {
	Label  string
	Name   string
	Args   []string
	Env    []string
	Dir    string
	Script *Script
}

func (s CommandSpec) String() string {
	return strings.TrimSpace(s.Name + " " + strings.Join(s.Args, " "))
}

type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// LineSink receives every output line as soon as it is read. It is called
// from the runner's pump goroutines and must not block for long.
type LineSink func(stream Stream, line string)

type Runner struct {
	logger  *zap.Logger
	tempDir string
}

type Option func(*Runner)

// WithTempDir sets where script files are created (default os.TempDir()).
func WithTempDir(dir string) Option {
	return func(r *Runner) { r.tempDir = dir }
}

func New(logger *zap.Logger, opts ...Option) *Runner {
	r := &Runner{logger: logging.OrNop(logger)}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Start spawns exactly one process for spec. The returned operation owns
// the process and its script file until it is reaped.
func (r *Runner) Start(ctx context.Context, spec CommandSpec, sink LineSink) (*RunningOperation, error) {
	if spec.Name == "" {
		return nil, errors.Mark(errors.New("empty command"), ErrSpawnFailed)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "not started"), ErrSpawnFailed)
	}

	var scriptPath string
	if spec.Script != nil {
		path, err := r.writeScript(spec.Script)
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "write script"), ErrSpawnFailed)
		}
		scriptPath = path
	}
	cleanup := func() {
		if scriptPath == "" {
			return
		}
		if err := os.Remove(scriptPath); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("Failed to remove script file", zap.String("path", scriptPath), zap.Error(err))
		}
	}

	args := make([]string, len(spec.Args))
	for i, a := range spec.Args {
		args[i] = strings.ReplaceAll(a, ScriptPathArg, scriptPath)
	}

	// The process is intentionally not bound to ctx: killing is explicit
	// and must reach the whole tree.
	cmd := exec.Command(spec.Name, args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cleanup()
		return nil, errors.Mark(errors.Wrap(err, "stdout pipe"), ErrSpawnFailed)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cleanup()
		return nil, errors.Mark(errors.Wrap(err, "stderr pipe"), ErrSpawnFailed)
	}

	if err := cmd.Start(); err != nil {
		cleanup()
		return nil, errors.Mark(errors.Wrapf(err, "start %s", spec.Name), ErrSpawnFailed)
	}

	logger := r.logger.With(zap.String("op", spec.Label), zap.Int("pid", cmd.Process.Pid))
	logger.Info("External process started", zap.String("command", spec.String()))

	op := &RunningOperation{
		cmd:       cmd,
		startedAt: time.Now(),
		done:      make(chan struct{}),
		logger:    logger,
	}

	go op.supervise(stdout, stderr, sink, cleanup)

	return op, nil
}

func (r *Runner) writeScript(s *Script) (string, error) {
	pattern := s.Pattern
	if pattern == "" {
		pattern = "diskwipe_*.txt"
	}
	f, err := os.CreateTemp(r.tempDir, pattern)
	if err != nil {
		return "", err
	}
	if _, err := io.WriteString(f, s.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// MaxLineBytes bounds one forwarded line. Longer lines are clipped and the
// remainder is discarded so the pipe keeps draining.
const MaxLineBytes = 1024 * 1024

// pump forwards r line by line until EOF.
func pump(r io.Reader, stream Stream, sink LineSink, logger *zap.Logger) error {
	br := bufio.NewReaderSize(r, 64*1024)
	var buf []byte
	clipped := false

	emit := func() {
		line := strings.TrimRight(string(buf), "\r")
		buf, clipped = buf[:0], false
		if strings.TrimSpace(line) == "" {
			return
		}
		logger.Info("External process output", zap.String("stream", string(stream)), zap.String("line", line))
		if sink != nil {
			sink(stream, line)
		}
	}

	for {
		frag, isPrefix, err := br.ReadLine()
		if room := MaxLineBytes - len(buf); len(frag) > room {
			if !clipped {
				logger.Warn("Output line clipped", zap.String("stream", string(stream)), zap.Int("limit", MaxLineBytes))
			}
			frag, clipped = frag[:room], true
		}
		buf = append(buf, frag...)

		if err != nil {
			if len(buf) > 0 {
				emit()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !isPrefix {
			emit()
		}
	}
}

// supervise drains both pipes and then reaps the process. Pipes must be
// fully read before Wait closes them.
func (op *RunningOperation) supervise(stdout, stderr io.Reader, sink LineSink, cleanup func()) {
	defer close(op.done)
	defer cleanup()

	var g errgroup.Group
	g.Go(func() error { return pump(stdout, Stdout, sink, op.logger) })
	g.Go(func() error { return pump(stderr, Stderr, sink, op.logger) })
	pumpErr := g.Wait()

	waitErr := op.cmd.Wait()

	op.mu.Lock()
	defer op.mu.Unlock()
	op.finishedAt = time.Now()

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		op.exitCode = 0
	case errors.As(waitErr, &exitErr) && exitErr.ExitCode() >= 0:
		op.exitCode = exitErr.ExitCode()
	default:
		// Killed by a signal or the wait itself failed.
		op.waitErr = errors.Mark(errors.Wrap(waitErr, "wait"), ErrIO)
	}
	if pumpErr != nil && op.waitErr == nil {
		op.logger.Warn("Output stream error", zap.Error(pumpErr))
	}

	op.logger.Info("External process exited",
		zap.Int("exit_code", op.exitCode),
		zap.Duration("duration", op.finishedAt.Sub(op.startedAt)),
		zap.Error(op.waitErr))
}
