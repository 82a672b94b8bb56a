package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"diskwipe/internal/config"
	"diskwipe/internal/logging"
	"diskwipe/internal/wipe"
)

// ErrNothingToCertify is returned when the session ran no wipes.
var ErrNothingToCertify = errors.New("no wipe jobs to certify")

const certificateText = `
=== DISKWIPE SECURE WIPE CERTIFICATE ===

Date: {{.Date}}
Operator: {{.Operator}}
Computer: {{.Hostname}}
Application: DiskWipe {{.Version}}

--- {{if .Single}}DRIVE{{else}}DRIVES{{end}} PROCESSED ---
{{range .Drives}}{{.Line}}
{{end}}
--- CLONE STATUS ---
{{.CloneStatus}}

--- CERTIFICATION ---
{{if .AllCompleted}}This certificate confirms that the drives marked WIPED above have
been overwritten and formatted. Original data on them is irrecoverable.{{else}}WARNING: At least one drive was NOT fully wiped. Only drives marked
WIPED above may be considered sanitized.{{end}}

Certificate ID: {{.ID}}

=== END CERTIFICATE ===
`

var certificateTmpl = template.Must(template.New("certificate").Parse(certificateText))

type driveLine struct {
	Line string
}

type certificateData struct {
	ID           string
	Date         string
	Operator     string
	Hostname     string
	Version      string
	Single       bool
	Drives       []driveLine
	CloneStatus  string
	AllCompleted bool
}

// Certificate is one written certificate file. DriveID is -1 for the
// combined certificate.
type Certificate struct {
	ID      string
	DriveID int
	Path    string
	Content string
}

// Bundle is everything written for one session.
type Bundle struct {
	Combined   Certificate
	PerDrive   []Certificate
	ReportPath string
	Report     *Report
}

// Writer emits certificates into a directory.
type Writer struct {
	dir      string
	operator string
	version  string
	hostname string
	now      func() time.Time
	logger   *zap.Logger
}

func NewWriter(cfg config.ReportingConfig, version string, logger *zap.Logger) *Writer {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &Writer{
		dir:      cfg.CertificateDir,
		operator: cfg.Operator,
		version:  version,
		hostname: host,
		now:      time.Now,
		logger:   logging.OrNop(logger),
	}
}

func newCertificateID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}

func driveStatus(r wipe.Result, cloned bool) string {
	suffix := " (NOT CLONED)"
	if cloned {
		suffix = " (CLONED BEFORE WIPE)"
	}
	head := fmt.Sprintf("Drive %d [%s, %s]: ", r.Drive.ID, r.Drive.Model, r.Method)
	switch r.State {
	case wipe.StateCompleted:
		return head + fmt.Sprintf("WIPED - %d/%d passes, formatted %s%s", r.PassesDone, r.TotalPasses, r.Filesystem, suffix)
	case wipe.StateCancelled:
		return head + fmt.Sprintf("NOT WIPED - CANCELLED after %d/%d passes%s", r.PassesDone, r.TotalPasses, suffix)
	default:
		msg := "unknown error"
		if r.Err != nil {
			msg = r.Err.Error()
		}
		return head + fmt.Sprintf("NOT WIPED - FAILED after %d/%d passes: %s%s", r.PassesDone, r.TotalPasses, msg, suffix)
	}
}

func cloneStatus(results []wipe.Result, cloned map[int]bool, single bool) string {
	for _, r := range results {
		if cloned[r.Drive.ID] {
			if single {
				return "WARNING: This drive was cloned before wiping. A backup copy may exist."
			}
			return "WARNING: One or more drives were cloned before wiping. Backup copies may exist."
		}
	}
	if single {
		return "CONFIRMED: This drive was not cloned before wiping. No backup copy created."
	}
	return "CONFIRMED: No drives were cloned before wiping. No backup copies created."
}

func (w *Writer) render(results []wipe.Result, cloned map[int]bool, single bool, now time.Time) (string, string, error) {
	data := certificateData{
		ID:           newCertificateID(),
		Date:         now.Format("2006-01-02 15:04:05 MST"),
		Operator:     w.operator,
		Hostname:     w.hostname,
		Version:      w.version,
		Single:       single,
		CloneStatus:  cloneStatus(results, cloned, single),
		AllCompleted: true,
	}
	for _, r := range results {
		data.Drives = append(data.Drives, driveLine{Line: driveStatus(r, cloned[r.Drive.ID])})
		if r.State != wipe.StateCompleted {
			data.AllCompleted = false
		}
	}

	var sb strings.Builder
	if err := certificateTmpl.Execute(&sb, data); err != nil {
		return "", "", errors.Wrap(err, "render certificate")
	}
	return data.ID, sb.String(), nil
}

// Write emits a combined certificate, one certificate per wiped drive and
// the JSON report for results. The cloned set is drained: on success it is
// empty afterwards, on failure its members are restored.
func (w *Writer) Write(results []wipe.Result, clonedSet *wipe.ClonedSet) (*Bundle, error) {
	var wipes []wipe.Result
	for _, r := range results {
		if r.Kind == wipe.OpWipe {
			wipes = append(wipes, r)
		}
	}
	if len(wipes) == 0 {
		return nil, ErrNothingToCertify
	}

	members := clonedSet.Drain()
	cloned := make(map[int]bool, len(members))
	for _, id := range members {
		cloned[id] = true
	}

	bundle, err := w.write(results, wipes, cloned)
	if err != nil {
		for _, id := range members {
			clonedSet.Add(id)
		}
		return nil, err
	}
	return bundle, nil
}

func (w *Writer) write(results, wipes []wipe.Result, cloned map[int]bool) (*Bundle, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create certificate directory")
	}

	now := w.now()
	stamp := now.Format("20060102_150405")

	id, content, err := w.render(wipes, cloned, false, now)
	if err != nil {
		return nil, err
	}
	combined := Certificate{
		ID:      id,
		DriveID: -1,
		Path:    filepath.Join(w.dir, fmt.Sprintf("wipe-certificate-%s.txt", stamp)),
		Content: content,
	}
	if err := os.WriteFile(combined.Path, []byte(content), 0o644); err != nil {
		return nil, errors.Wrap(err, "write certificate")
	}
	w.logger.Info("Certificate generated", zap.String("path", combined.Path), zap.String("certificate_id", id))

	bundle := &Bundle{Combined: combined}
	for _, r := range wipes {
		id, content, err := w.render([]wipe.Result{r}, cloned, true, now)
		if err != nil {
			return nil, err
		}
		c := Certificate{
			ID:      id,
			DriveID: r.Drive.ID,
			Path:    filepath.Join(w.dir, fmt.Sprintf("wipe-certificate-drive-%d-%s.txt", r.Drive.ID, stamp)),
			Content: content,
		}
		if err := os.WriteFile(c.Path, []byte(content), 0o644); err != nil {
			return nil, errors.Wrapf(err, "write certificate for disk %d", r.Drive.ID)
		}
		bundle.PerDrive = append(bundle.PerDrive, c)
	}

	start := wipes[0].StartedAt
	for _, r := range results {
		if r.StartedAt.Before(start) {
			start = r.StartedAt
		}
	}
	bundle.Report = GenerateReport(uuid.NewString(), w.version, w.hostname, w.operator, results, cloned, start, now)
	path, err := SaveReport(bundle.Report, w.dir)
	if err != nil {
		return nil, err
	}
	bundle.ReportPath = path
	return bundle, nil
}
