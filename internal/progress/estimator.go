// Package progress turns coarse polling observations of an external tool
// into percent, throughput and ETA figures.
//
// Two modes exist. The synthetic ramp fabricates a monotonic curve for
// tools that report nothing; the real mode follows "Progress: P%" markers.
// The switch from synthetic to real is one-way per operation.
package progress

import (
	"math"
	"regexp"
	"strconv"
	"time"
)

type Mode int

const (
	ModeSynthetic Mode = iota
	ModeReal
)

func (m Mode) String() string {
	if m == ModeReal {
		return "real"
	}
	return "synthetic"
}

// Ramp describes the synthetic curve: +Step per tick, never above Cap.
type Ramp struct {
	Step float64
	Cap  float64
}

// DefaultStabilization is how long a pass must run before throughput is
// trusted.
const DefaultStabilization = 5 * time.Second

// minPercentForEstimate guards against dividing by near-zero progress.
const minPercentForEstimate = 10

// Sample is one progress observation. Throughput and ETA are nil until the
// estimate has stabilized; callers render "calculating" in that case.
type Sample struct {
	Percent    float64
	Elapsed    time.Duration
	Throughput *float64
	ETA        *time.Duration
	Mode       Mode
}

// Estimate derives throughput (bytes/s) and whole-job ETA from the elapsed
// time of the current pass and its completion percent. It assumes uniform
// throughput across the remaining passes.
func Estimate(elapsed time.Duration, percent float64, totalBytes uint64, remainingPasses int, stabilization time.Duration) (*float64, *time.Duration) {
	if elapsed <= stabilization || percent <= minPercentForEstimate || totalBytes == 0 {
		return nil, nil
	}

	total := float64(totalBytes)
	done := percent / 100 * total
	throughput := done / elapsed.Seconds()
	if throughput <= 0 || math.IsInf(throughput, 0) || math.IsNaN(throughput) {
		return nil, nil
	}

	if remainingPasses < 0 {
		remainingPasses = 0
	}
	remaining := math.Max(total-done, 0)
	seconds := remaining/throughput + float64(remainingPasses)*(total/throughput)
	eta := time.Duration(seconds * float64(time.Second))

	return &throughput, &eta
}

type Options struct {
	Ramp          Ramp
	Stabilization time.Duration
	TotalBytes    uint64
	TotalPasses   int
}

// Estimator tracks the progress of one operation across its passes.
// It is not safe for concurrent use; the orchestrator's control loop owns it.
type Estimator struct {
	opts    Options
	pass    int
	percent float64
	mode    Mode
}

func NewEstimator(opts Options) *Estimator {
	if opts.TotalPasses < 1 {
		opts.TotalPasses = 1
	}
	return &Estimator{opts: opts}
}

// BeginPass restarts the curve for pass (0-based). The mode is kept: an
// operation that has seen real progress never returns to the ramp.
func (e *Estimator) BeginPass(pass int) {
	e.pass = pass
	e.percent = 0
}

// Tick advances the synthetic ramp by one step. In real mode the last real
// percent is repeated.
func (e *Estimator) Tick(elapsed time.Duration) Sample {
	if e.mode == ModeSynthetic {
		e.percent = math.Min(e.percent+e.opts.Ramp.Step, e.opts.Ramp.Cap)
	}
	return e.sample(elapsed)
}

// Observe records a real percent reported by the tool and switches the
// estimator to real mode for good.
func (e *Estimator) Observe(percent float64, elapsed time.Duration) Sample {
	e.mode = ModeReal
	e.percent = math.Max(0, math.Min(percent, 100))
	return e.sample(elapsed)
}

// Complete snaps the current pass to 100%.
func (e *Estimator) Complete(elapsed time.Duration) Sample {
	e.percent = 100
	return e.sample(elapsed)
}

func (e *Estimator) Mode() Mode {
	return e.mode
}

func (e *Estimator) sample(elapsed time.Duration) Sample {
	remainingPasses := e.opts.TotalPasses - e.pass - 1
	throughput, eta := Estimate(elapsed, e.percent, e.opts.TotalBytes, remainingPasses, e.opts.Stabilization)
	return Sample{
		Percent:    e.percent,
		Elapsed:    elapsed,
		Throughput: throughput,
		ETA:        eta,
		Mode:       e.mode,
	}
}

var markerRe = regexp.MustCompile(`Progress: ([\d.]+)%`)

// ParseMarker extracts P from a "Progress: P%" line written by the copy
// tool.
func ParseMarker(line string) (float64, bool) {
	m := markerRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// FormatMarker renders the wire form parsed by ParseMarker.
func FormatMarker(percent float64) string {
	return "Progress: " + strconv.FormatFloat(math.Round(percent*10)/10, 'f', -1, 64) + "%"
}
