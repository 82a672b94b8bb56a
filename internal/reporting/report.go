// Package reporting writes destruction certificates and JSON run reports.
package reporting

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"diskwipe/internal/wipe"
)

// Report is the JSON record of one run.
type Report struct {
	RunID      string            `json:"run_id"`
	Version    string            `json:"version"`
	Timestamp  time.Time         `json:"timestamp"`
	Hostname   string            `json:"hostname"`
	Operator   string            `json:"operator"`
	Operations []OperationReport `json:"operations"`
	Summary    SummaryReport     `json:"summary"`
	ExitCode   int               `json:"exit_code"`
	Duration   string            `json:"duration"`
}

type OperationReport struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Disk        int        `json:"disk"`
	Model       string     `json:"model"`
	Method      string     `json:"method,omitempty"`
	Filesystem  string     `json:"filesystem,omitempty"`
	Target      string     `json:"target,omitempty"`
	Passes      int        `json:"passes"`
	PassesDone  int        `json:"passes_done"`
	Status      string     `json:"status"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Duration    string     `json:"duration"`
	Bytes       uint64     `json:"bytes"`
	ClonedFirst bool       `json:"cloned_before_wipe"`
	Error       string     `json:"error,omitempty"`
}

type SummaryReport struct {
	TotalDisks  int     `json:"total_disks"`
	Completed   int     `json:"completed"`
	Cancelled   int     `json:"cancelled"`
	Failed      int     `json:"failed"`
	Clones      int     `json:"clones"`
	TotalBytes  uint64  `json:"total_bytes"`
	SuccessRate float64 `json:"success_rate"`
}

// ExitCode maps wipe outcomes to a process exit code: 0 when every wipe
// completed, 1 when any failed, otherwise 2 when any was cancelled.
func ExitCode(results []wipe.Result) int {
	code := 0
	for _, r := range results {
		if r.Kind != wipe.OpWipe {
			continue
		}
		switch r.State {
		case wipe.StateFailed:
			return 1
		case wipe.StateCancelled:
			code = 2
		}
	}
	return code
}

// GenerateReport builds the run report. cloned holds the drives cloned
// before their wipe.
func GenerateReport(runID, version, hostname, operator string, results []wipe.Result, cloned map[int]bool, start, end time.Time) *Report {
	report := &Report{
		RunID:      runID,
		Version:    version,
		Timestamp:  start,
		Hostname:   hostname,
		Operator:   operator,
		Operations: make([]OperationReport, 0, len(results)),
		ExitCode:   ExitCode(results),
		Duration:   end.Sub(start).Round(time.Second).String(),
	}

	var s SummaryReport
	for _, r := range results {
		finished := r.FinishedAt
		op := OperationReport{
			ID:         r.JobID,
			Kind:       string(r.Kind),
			Disk:       r.Drive.ID,
			Model:      r.Drive.Model,
			Target:     r.Target,
			Passes:     r.TotalPasses,
			PassesDone: r.PassesDone,
			Status:     r.State.String(),
			StartTime:  r.StartedAt,
			EndTime:    &finished,
			Duration:   r.Duration().Round(time.Second).String(),
			Bytes:      r.Drive.TotalBytes,
		}
		if r.Err != nil {
			op.Error = r.Err.Error()
		}
		report.Operations = append(report.Operations, op)

		if r.Kind == wipe.OpClone {
			if r.State == wipe.StateCompleted {
				s.Clones++
			}
			continue
		}

		op = report.Operations[len(report.Operations)-1]
		op.Method = r.Method.String()
		op.Filesystem = string(r.Filesystem)
		op.ClonedFirst = cloned[r.Drive.ID]
		report.Operations[len(report.Operations)-1] = op

		s.TotalDisks++
		switch r.State {
		case wipe.StateCompleted:
			s.Completed++
			s.TotalBytes += r.Drive.TotalBytes
		case wipe.StateCancelled:
			s.Cancelled++
		case wipe.StateFailed:
			s.Failed++
		}
	}
	if s.TotalDisks > 0 {
		s.SuccessRate = float64(s.Completed) / float64(s.TotalDisks) * 100
	}
	report.Summary = s
	return report
}

// SaveReport writes report as indented JSON into dir and returns the path.
func SaveReport(report *Report, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create report directory")
	}

	name := "diskwipe_report_" + report.Timestamp.Format("20060102_150405") + ".json"
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encode report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(err, "write report")
	}
	return path, nil
}
