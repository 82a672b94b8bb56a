package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diskwipe/internal/wipe"
)

func TestRecorderExposesJobMetrics(t *testing.T) {
	m := New("1.0.0")

	m.JobStarted(wipe.OpWipe)
	m.Progress(wipe.OpWipe, 40)
	m.PassFinished(wipe.OpWipe, "overwrite", 0, 3*time.Second)
	m.PassFinished(wipe.OpWipe, "format", 1, time.Second)
	m.JobFinished(wipe.OpWipe, wipe.StateFailed, time.Minute)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rr.Code)

	body := rr.Body.String()
	assert.Contains(t, body, `diskwipe_jobs_started_total{kind="wipe"} 1`)
	assert.Contains(t, body, `diskwipe_jobs_finished_total{kind="wipe",state="failed"} 1`)
	assert.Contains(t, body, `diskwipe_passes_total{exit_code="1",kind="wipe",pass="format"} 1`)
	assert.Contains(t, body, `diskwipe_pass_percent{kind="wipe"} 40`)
	assert.Contains(t, body, "diskwipe_job_active 0")
	assert.Contains(t, body, `diskwipe_build_info{version="1.0.0"} 1`)
}
