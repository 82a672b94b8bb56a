package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"diskwipe/internal/catalog"
	"diskwipe/internal/reporting"
	"diskwipe/internal/security"
	"diskwipe/internal/wipe"
)

var errAborted = errors.New("aborted by operator")

var wipeCmd = &cobra.Command{
	Use:   "wipe [disk index...]",
	Short: "Wipe whole drives and format them",
	Long: "Overwrites every selected drive with the chosen method, then partitions and formats it. " +
		"Drives are processed one after another. While running, stdin accepts p (pause), r (resume), c (cancel) and s (status).",
	RunE: runWipe,
}

func init() {
	wipeCmd.Flags().StringP("method", "m", "", "Wipe method (standard/dod/gutmann/random)")
	wipeCmd.Flags().UintP("passes", "p", 0, "Overwrite passes for the random method")
	wipeCmd.Flags().String("fs", "", "Filesystem for the final format (NTFS/FAT32/exFAT/ext4)")
	wipeCmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompts")
	wipeCmd.Flags().Bool("no-certificate", false, "Do not write wipe certificates")
	wipeCmd.Flags().String("clone-dir", "", "Clone every selected drive into this directory before wiping")
	rootCmd.AddCommand(wipeCmd)
}

func runWipe(cmd *cobra.Command, args []string) error {
	if err := security.RequireAdmin(); err != nil {
		return err
	}

	method, fs, err := wipeSettings(cmd)
	if err != nil {
		return err
	}

	policy := security.NewPolicy(cfg)
	drives, err := newCatalog().List(cmd.Context())
	if err != nil {
		return err
	}
	targets, err := selectTargets(args, drives, policy)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		logger.Warn("No drives selected")
		return nil
	}

	yes, _ := cmd.Flags().GetBool("yes")
	if !yes && cfg.Security.RequireConfirmation {
		if err := confirmDestruction(targets, method, fs); err != nil {
			return err
		}
	}

	// SIGINT cancels the active job; return only after it settles
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := newConsole(os.Stderr)
	m := newMetrics()
	orch, commands, err := newOrchestrator(out, m)
	if err != nil {
		return err
	}
	if !commands.Supports(fs) {
		return errors.Newf("filesystem %s is not supported on %s", fs, commands.Platform)
	}
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Listen, logger); err != nil {
				logger.Warn("Metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	controlCtx, stopControls := context.WithCancel(ctx)
	defer stopControls()
	go runControls(controlCtx, os.Stdin, &controller{jobs: orch, console: out})
	out.Printf(controlHelp)

	logger.Info("Wipe session started",
		zap.String("version", Version),
		zap.String("method", method.String()),
		zap.String("filesystem", string(fs)),
		zap.Int("drives", len(targets)))

	cloneDir, _ := cmd.Flags().GetString("clone-dir")
	if cloneDir != "" {
		if err := cloneAll(ctx, orch, targets, cloneDir); err != nil {
			printResults(out, orch.History())
			return &exitError{code: exitCode(nil, err), err: err}
		}
	}

	results, err := orch.WipeDrives(ctx, targets, fs, method)
	stopControls()
	printResults(out, results)

	noCert, _ := cmd.Flags().GetBool("no-certificate")
	if !noCert {
		writeCertificates(out, orch)
	}

	code := exitCode(results, err)
	logger.Info("Wipe session finished", zap.Int("exit_code", code))
	if code != ExitCompleted {
		return &exitError{code: code, err: err}
	}
	return nil
}

func wipeSettings(cmd *cobra.Command) (wipe.Method, wipe.Filesystem, error) {
	name, _ := cmd.Flags().GetString("method")
	if name == "" {
		name = cfg.Wipe.Method
	}
	passes, _ := cmd.Flags().GetUint("passes")
	if passes == 0 {
		passes = cfg.Wipe.RandomPasses
	}
	method, err := wipe.ParseMethod(name, passes)
	if err != nil {
		return wipe.Method{}, "", err
	}

	fsName, _ := cmd.Flags().GetString("fs")
	if fsName == "" {
		fsName = cfg.Wipe.Filesystem
	}
	fs, err := wipe.ParseFilesystem(fsName)
	if err != nil {
		return wipe.Method{}, "", err
	}
	return method, fs, nil
}

// selectTargets resolves disk indices from args, or prompts when none are
// given. Protected drives named explicitly are reported and skipped.
func selectTargets(args []string, drives []catalog.Drive, policy *security.Policy) ([]catalog.Drive, error) {
	if len(args) == 0 {
		return promptTargets(policy.Selectable(drives))
	}

	byID := make(map[int]catalog.Drive, len(drives))
	for _, d := range drives {
		byID[d.ID] = d
	}

	var targets []catalog.Drive
	seen := make(map[int]bool)
	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil {
			return nil, errors.Newf("invalid disk index %q", arg)
		}
		d, ok := byID[id]
		if !ok {
			return nil, errors.Wrapf(catalog.ErrDriveNotFound, "disk %d", id)
		}
		if err := policy.Check(d); err != nil {
			color.Yellow("Skipping disk %d: %v", id, err)
			continue
		}
		if !seen[id] {
			seen[id] = true
			targets = append(targets, d)
		}
	}
	return targets, nil
}

func promptTargets(selectable []catalog.Drive) ([]catalog.Drive, error) {
	if len(selectable) == 0 {
		return nil, nil
	}
	options := make([]string, len(selectable))
	for i, d := range selectable {
		options[i] = driveOption(d)
	}

	var picked []int
	prompt := &survey.MultiSelect{
		Message: "Select drives to wipe:",
		Options: options,
	}
	if err := survey.AskOne(prompt, &picked); err != nil {
		return nil, err
	}

	targets := make([]catalog.Drive, 0, len(picked))
	for _, i := range picked {
		targets = append(targets, selectable[i])
	}
	return targets, nil
}

func driveOption(d catalog.Drive) string {
	return fmt.Sprintf("%s - %s (%s)", d.DisplayName, d.Model, humanBytes(d.TotalBytes))
}

func confirmDestruction(targets []catalog.Drive, method wipe.Method, fs wipe.Filesystem) error {
	color.Red("\nWARNING: This will DESTROY ALL DATA on:")
	for _, d := range targets {
		color.Red("  %s", driveOption(d))
	}
	fmt.Printf("Method: %s (%d passes), then format as %s\n\n", method, method.PassCount(), fs)

	confirm := false
	if err := survey.AskOne(&survey.Confirm{Message: "Do you want to continue?", Default: false}, &confirm); err != nil {
		return err
	}
	if !confirm {
		return errAborted
	}

	typed := ""
	if err := survey.AskOne(&survey.Input{Message: "Type 'DESTROY' to confirm:"}, &typed); err != nil {
		return err
	}
	if typed != "DESTROY" {
		return errAborted
	}
	return nil
}

// cloneAll images every target before any wipe starts, so the certificates
// of this session can report them as cloned.
func cloneAll(ctx context.Context, orch *wipe.Orchestrator, targets []catalog.Drive, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create clone directory")
	}
	stamp := time.Now().Format("20060102_150405")
	for _, d := range targets {
		target := filepath.Join(dir, fmt.Sprintf("disk%d-%s.img", d.ID, stamp))
		res, err := cloneDrive(ctx, orch, d, target)
		if err != nil {
			return err
		}
		if res.State != wipe.StateCompleted {
			cause := res.Err
			if cause == nil {
				cause = errors.Newf("state %s", res.State)
			}
			return errors.Wrapf(cause, "clone of disk %d did not complete, nothing was wiped", d.ID)
		}
	}
	return nil
}

func writeCertificates(out *console, orch *wipe.Orchestrator) {
	w := reporting.NewWriter(cfg.Reporting, Version, logger)
	bundle, err := w.Write(orch.History(), orch.ClonedSet())
	if err != nil {
		if !errors.Is(err, reporting.ErrNothingToCertify) {
			out.Printf("%s\n", color.RedString("Certificate not written: %v", err))
		}
		return
	}
	out.Printf("Certificate: %s\n", bundle.Combined.Path)
	for _, c := range bundle.PerDrive {
		out.Printf("  disk %d: %s\n", c.DriveID, c.Path)
	}
	out.Printf("Report: %s\n", bundle.ReportPath)
}

// exitCode maps the batch outcome to 0 completed, 1 failed, 2 cancelled.
// A batch interrupted between drives counts as cancelled.
func exitCode(results []wipe.Result, err error) int {
	code := reporting.ExitCode(results)
	if code == ExitCompleted && err != nil {
		if errors.Is(err, wipe.ErrCancelled) {
			return ExitCancelled
		}
		return ExitFailed
	}
	return code
}
