package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"diskwipe/internal/catalog"
	"diskwipe/internal/config"
	"diskwipe/internal/diskcmd"
	"diskwipe/internal/logging"
	"diskwipe/internal/metrics"
	"diskwipe/internal/progress"
	"diskwipe/internal/runner"
	"diskwipe/internal/security"
	"diskwipe/internal/wipe"
)

const (
	Version = "2.0.0"
	AppName = "DiskWipe"

	// Exit codes
	ExitCompleted = 0
	ExitFailed    = 1
	ExitCancelled = 2
)

var (
	configPath string
	profile    string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:               "diskwipe",
	Short:             "DiskWipe - whole-drive wipe and clone orchestrator",
	Long:              "Drives external disk tools through multi-pass wipes and raw clones, with progress estimation and pause/resume/cancel control.",
	Version:           Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "Wipe profile (quick/dod/paranoid/resale)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose console logging")
}

// exitError carries a process exit code out of RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func setup(cmd *cobra.Command, _ []string) error {
	// The clone child process logs to stderr only
	if cmd.Name() == diskcmd.CloneStreamCommand {
		logger = logging.NewConsole(zap.InfoLevel)
		return nil
	}

	path := configPath
	if path == "" {
		path = defaultConfigPath()
	}
	var err error
	cfg, err = config.Load(path)
	if err != nil {
		return err
	}
	if profile != "" {
		if err := config.ApplyProfile(cfg, profile); err != nil {
			return err
		}
		if err := config.Validate(cfg); err != nil {
			return errors.Wrapf(err, "profile %s", profile)
		}
	}

	logger, err = logging.New(cfg, verbose)
	if err != nil {
		return errors.Wrap(err, "init logger")
	}
	logger.Debug("Configuration loaded", zap.String("path", path), zap.String("profile", profile))
	return nil
}

func newCatalog() *catalog.Catalog {
	return catalog.New(catalog.DefaultSource(), logger)
}

func timing() wipe.Timing {
	return wipe.Timing{
		WipePoll:      cfg.WipePollInterval(),
		ClonePoll:     cfg.ClonePollInterval(),
		Settle:        cfg.SettleDelay(),
		Stabilization: cfg.Stabilization(),
		WipeRamp:      progress.Ramp{Step: cfg.Wipe.RampStep, Cap: cfg.Wipe.RampCap},
		CloneRamp:     progress.Ramp{Step: cfg.Clone.RampStep, Cap: cfg.Clone.RampCap},
	}
}

// newOrchestrator wires the runner, the platform command builder and the
// security policy into one orchestrator.
func newOrchestrator(obs wipe.Observer, rec wipe.Recorder) (*wipe.Orchestrator, *diskcmd.Builder, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, nil, errors.Wrap(err, "locate executable")
	}
	commands := diskcmd.New(self)
	commands.ChunkSize = cfg.Clone.ChunkSize
	commands.MaxSpeedMBps = cfg.Clone.MaxSpeedMBps

	policy := security.NewPolicy(cfg)
	orch := wipe.New(
		wipe.RunnerLauncher{Runner: runner.New(logger)},
		commands,
		wipe.WithObserver(obs),
		wipe.WithRecorder(rec),
		wipe.WithGuard(policy.Check),
		wipe.WithTiming(timing()),
		wipe.WithLogger(logger),
	)
	return orch, commands, nil
}

func newMetrics() *metrics.Metrics {
	return metrics.New(Version)
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", ee.err)
		}
		os.Exit(ee.code)
	}
	color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(ExitFailed)
}
