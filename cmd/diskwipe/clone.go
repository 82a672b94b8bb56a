package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/AlecAivazis/survey/v2"
	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"diskwipe/internal/catalog"
	"diskwipe/internal/clone"
	"diskwipe/internal/diskcmd"
	"diskwipe/internal/security"
	"diskwipe/internal/wipe"
)

var cloneCmd = &cobra.Command{
	Use:   "clone <disk index> <target file>",
	Short: "Copy a whole drive into an image file",
	Args:  cobra.ExactArgs(2),
	RunE:  runClone,
}

// cloneStreamCmd is the external clone tool: the orchestrator launches the
// binary itself with this verb and parses its progress lines.
var cloneStreamCmd = &cobra.Command{
	Use:    diskcmd.CloneStreamCommand,
	Short:  "Stream a raw device into a file",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runCloneStream,
}

func init() {
	cloneCmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")

	cloneStreamCmd.Flags().String("source", "", "Source device")
	cloneStreamCmd.Flags().String("target", "", "Target file")
	cloneStreamCmd.Flags().Uint64("size", 0, "Bytes to copy")
	cloneStreamCmd.Flags().Int("chunk-size", clone.DefaultChunkSize, "Copy chunk size in bytes")
	cloneStreamCmd.Flags().Float64("max-speed", 0, "Write limit in MB/s, 0 for none")
	_ = cloneStreamCmd.MarkFlagRequired("source")
	_ = cloneStreamCmd.MarkFlagRequired("target")

	rootCmd.AddCommand(cloneCmd, cloneStreamCmd)
}

func runClone(cmd *cobra.Command, args []string) error {
	if err := security.RequireAdmin(); err != nil {
		return err
	}

	id, err := strconv.Atoi(args[0])
	if err != nil {
		return errors.Newf("invalid disk index %q", args[0])
	}
	target := args[1]
	if _, err := os.Stat(target); err == nil {
		return errors.Newf("target %s already exists", target)
	}

	drive, err := newCatalog().Lookup(cmd.Context(), id)
	if err != nil {
		return err
	}

	yes, _ := cmd.Flags().GetBool("yes")
	if !yes && cfg.Security.RequireConfirmation {
		confirm := false
		msg := fmt.Sprintf("Clone %s (%s) into %s?", drive.DisplayName, humanBytes(drive.TotalBytes), target)
		if err := survey.AskOne(&survey.Confirm{Message: msg, Default: false}, &confirm); err != nil {
			return err
		}
		if !confirm {
			return errAborted
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := newConsole(os.Stderr)
	orch, _, err := newOrchestrator(out, newMetrics())
	if err != nil {
		return err
	}

	controlCtx, stopControls := context.WithCancel(ctx)
	defer stopControls()
	go runControls(controlCtx, os.Stdin, &controller{jobs: orch, console: out})

	res, err := cloneDrive(ctx, orch, drive, target)
	stopControls()
	if err != nil {
		return err
	}
	printResults(out, []wipe.Result{res})

	switch res.State {
	case wipe.StateCompleted:
		return nil
	case wipe.StateCancelled:
		return &exitError{code: ExitCancelled, err: res.Err}
	default:
		return &exitError{code: ExitFailed, err: res.Err}
	}
}

// cloneDrive runs one clone job to its end. A completed clone whose image is
// smaller than the drive means the source hit a read error.
func cloneDrive(ctx context.Context, orch *wipe.Orchestrator, drive catalog.Drive, target string) (wipe.Result, error) {
	job, err := orch.StartClone(ctx, drive, target)
	if err != nil {
		return wipe.Result{}, err
	}
	res := job.Wait()
	if res.State == wipe.StateCompleted {
		warnIfShort(target, drive.TotalBytes)
	}
	return res, nil
}

func warnIfShort(target string, size uint64) {
	st, err := os.Stat(target)
	if err != nil {
		logger.Warn("Cannot stat clone image", zap.String("target", target), zap.Error(err))
		return
	}
	if size > 0 && uint64(st.Size()) < size {
		color.Yellow("WARNING: %s holds %s of %s; the source stopped early on a read error",
			target, humanBytes(uint64(st.Size())), humanBytes(size))
		logger.Warn("Clone image is shorter than the source",
			zap.String("target", target), zap.Int64("bytes", st.Size()), zap.Uint64("expected", size))
	}
}

func runCloneStream(cmd *cobra.Command, _ []string) error {
	source, _ := cmd.Flags().GetString("source")
	target, _ := cmd.Flags().GetString("target")
	size, _ := cmd.Flags().GetUint64("size")
	chunk, _ := cmd.Flags().GetInt("chunk-size")
	maxSpeed, _ := cmd.Flags().GetFloat64("max-speed")

	res, err := clone.CopyDevice(cmd.Context(), source, target, size, clone.Options{
		ChunkSize:    chunk,
		MaxSpeedMBps: maxSpeed,
		Progress:     cmd.OutOrStdout(),
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	logger.Info("Clone finished",
		zap.Uint64("bytes", res.BytesCopied),
		zap.Uint64("size", res.Size),
		zap.Bool("truncated", res.Truncated))
	return nil
}
