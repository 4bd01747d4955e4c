package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labmonitor/internal/models"
)

func scrape(t *testing.T, rec *Recorder) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	rec.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRecorderObserveProbe(t *testing.T) {
	rec := NewRecorder()
	rec.ObserveProbe(models.HealthResult{
		ServiceID: "nextcloud",
		Status:    models.StatusHealthy,
		Method:    models.MethodDirect,
	}, 150*time.Millisecond)
	rec.ObserveProbe(models.HealthResult{
		ServiceID: "nextcloud",
		Status:    models.StatusError,
		Method:    models.MethodProxy,
	}, 2*time.Second)

	body := scrape(t, rec)
	assert.Contains(t, body, `labmonitor_probes_total{method="direct",service="nextcloud",status="healthy"} 1`)
	assert.Contains(t, body, `labmonitor_probes_total{method="proxy",service="nextcloud",status="error"} 1`)
	assert.Contains(t, body, `labmonitor_service_up{service="nextcloud"} 0`)
}

func TestRecorderSetSummary(t *testing.T) {
	rec := NewRecorder()
	rec.SetSummary(models.Summary{Healthy: 3, Warning: 1, Error: 2, Unknown: 0, Total: 6})

	body := scrape(t, rec)
	assert.Contains(t, body, `labmonitor_services_by_status{status="healthy"} 3`)
	assert.Contains(t, body, `labmonitor_services_by_status{status="error"} 2`)
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder
	rec.ObserveProbe(models.HealthResult{}, time.Second)
	rec.SetSummary(models.Summary{})

	w := httptest.NewRecorder()
	rec.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
