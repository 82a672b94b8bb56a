package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateWithholdsEarlyNumbers(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		percent float64
	}{
		{"before stabilization", 4 * time.Second, 50},
		{"exactly at threshold", 5 * time.Second, 50},
		{"low percent", 20 * time.Second, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			throughput, eta := Estimate(tt.elapsed, tt.percent, 1000, 0, DefaultStabilization)
			assert.Nil(t, throughput)
			assert.Nil(t, eta)
		})
	}
}

func TestEstimateWholeJobETA(t *testing.T) {
	// 20% of 1000 bytes in 10s -> 20 B/s; 800 bytes left this pass plus two
	// full passes of 1000 bytes.
	throughput, eta := Estimate(10*time.Second, 20, 1000, 2, DefaultStabilization)
	require.NotNil(t, throughput)
	require.NotNil(t, eta)
	assert.InDelta(t, 20.0, *throughput, 1e-9)
	assert.Equal(t, 140*time.Second, *eta)
}

func TestSyntheticRampIsMonotonicAndCapped(t *testing.T) {
	e := NewEstimator(Options{Ramp: Ramp{Step: 10, Cap: 90}, Stabilization: DefaultStabilization, TotalBytes: 1 << 30, TotalPasses: 4})
	e.BeginPass(0)

	last := 0.0
	for i := 0; i < 20; i++ {
		s := e.Tick(time.Duration(i) * 2 * time.Second)
		assert.GreaterOrEqual(t, s.Percent, last)
		assert.LessOrEqual(t, s.Percent, 90.0)
		assert.Equal(t, ModeSynthetic, s.Mode)
		last = s.Percent
	}
	assert.Equal(t, 90.0, last)
	assert.Equal(t, 100.0, e.Complete(40*time.Second).Percent)

	e.BeginPass(1)
	assert.Equal(t, 10.0, e.Tick(2*time.Second).Percent)
}

func TestRealProgressSwitchIsOneWay(t *testing.T) {
	e := NewEstimator(Options{Ramp: Ramp{Step: 2, Cap: 10}, Stabilization: DefaultStabilization, TotalBytes: 1 << 30, TotalPasses: 1})
	e.BeginPass(0)

	var got []float64
	for i := 1; i <= 3; i++ {
		got = append(got, e.Tick(time.Duration(i)*3*time.Second).Percent)
	}
	got = append(got, e.Observe(47.5, 10*time.Second).Percent)
	assert.Equal(t, []float64{2, 4, 6, 47.5}, got)

	// Stalled stream: ticks keep the real value instead of ramping.
	for i := 0; i < 5; i++ {
		s := e.Tick(time.Duration(12+i) * time.Second)
		assert.Equal(t, 47.5, s.Percent)
		assert.Equal(t, ModeReal, s.Mode)
	}

	// A later pass does not re-enable the ramp either.
	e.BeginPass(0)
	assert.Equal(t, 0.0, e.Tick(time.Second).Percent)
	assert.Equal(t, ModeReal, e.Mode())
}

func TestObserveClamps(t *testing.T) {
	e := NewEstimator(Options{Ramp: Ramp{Step: 2, Cap: 10}})
	assert.Equal(t, 100.0, e.Observe(180, time.Second).Percent)
	assert.Equal(t, 0.0, e.Observe(-3, time.Second).Percent)
}

func TestParseMarker(t *testing.T) {
	tests := []struct {
		line string
		want float64
		ok   bool
	}{
		{"Progress: 47.5%", 47.5, true},
		{"  Progress: 100%  ", 100, true},
		{"Progress: 3%", 3, true},
		{"Read error at position 1048576, stopping clone", 0, false},
		{"Progress: %", 0, false},
		{"progress: 5%", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := ParseMarker(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatMarkerParses(t *testing.T) {
	v, ok := ParseMarker(FormatMarker(12.345))
	require.True(t, ok)
	assert.Equal(t, 12.3, v)
}
