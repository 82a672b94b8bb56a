package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print or export the audit log",
	Args:  cobra.NoArgs,
	RunE:  runLogs,
}

func init() {
	logsCmd.Flags().String("export", "", "Copy the log and its rotated backups into this directory")
	logsCmd.Flags().Int("tail", 0, "Print only the last N lines")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, _ []string) error {
	path := cfg.Logging.File
	if path == "" {
		return errors.New("file logging is disabled in the configuration")
	}

	dir, _ := cmd.Flags().GetString("export")
	if dir != "" {
		out, err := exportLogs(path, dir, time.Now())
		if err != nil {
			return err
		}
		cmd.Printf("Logs exported to %s\n", out)
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open log %s", path)
	}
	defer f.Close()

	tail, _ := cmd.Flags().GetInt("tail")
	if tail <= 0 {
		_, err = io.Copy(cmd.OutOrStdout(), f)
		return errors.Wrap(err, "read log")
	}
	lines, err := tailLines(f, tail)
	if err != nil {
		return err
	}
	for _, l := range lines {
		fmt.Fprintln(cmd.OutOrStdout(), l)
	}
	return nil
}

// logFiles returns the rotated backups of path, oldest first, followed by
// path itself.
func logFiles(path string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "log %s", path)
	}
	ext := filepath.Ext(path)
	prefix := strings.TrimSuffix(filepath.Base(path), ext) + "-"

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		return nil, errors.Wrap(err, "read log directory")
	}
	var backups []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
			continue
		}
		backups = append(backups, filepath.Join(filepath.Dir(path), name))
	}
	// Backup names embed a sortable timestamp.
	sort.Strings(backups)
	return append(backups, path), nil
}

// exportLogs concatenates the log and its backups into one file under dir
// and returns its path.
func exportLogs(path, dir string, now time.Time) (string, error) {
	files, err := logFiles(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, "create export directory")
	}

	target := filepath.Join(dir, fmt.Sprintf("diskwipe-logs-%s.log", now.Format("20060102-150405")))
	out, err := os.Create(target)
	if err != nil {
		return "", errors.Wrap(err, "create export file")
	}
	for _, name := range files {
		if err := appendFile(out, name); err != nil {
			out.Close()
			return "", err
		}
	}
	if err := out.Close(); err != nil {
		return "", errors.Wrap(err, "close export file")
	}
	return target, nil
}

func appendFile(w io.Writer, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return errors.Wrapf(err, "open %s", name)
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return errors.Wrapf(err, "copy %s", name)
}

// tailLines returns at most n trailing lines of r.
func tailLines(r io.Reader, n int) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	ring := make([]string, 0, n)
	for sc.Scan() {
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, sc.Text())
	}
	return ring, errors.Wrap(sc.Err(), "scan log")
}
