package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labmonitor/internal/config"
	"labmonitor/internal/history"
	"labmonitor/internal/metrics"
	"labmonitor/internal/models"
	"labmonitor/internal/monitor"
	"labmonitor/internal/server"
	"labmonitor/pkg/logger"
)

type fixture struct {
	upstream *httptest.Server
	api      *httptest.Server
	monitor  *monitor.Monitor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/down" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	t.Cleanup(upstream.Close)

	probing := config.Probing{
		TimeoutMS:      2000,
		IntervalMS:     3600000,
		MaxRetries:     1,
		RetryDelayMS:   10,
		MaxHistorySize: 10,
		ProxyEndpoint:  "/api/health-proxy",
	}
	rec := metrics.NewRecorder()
	mon, err := monitor.New(upstream.URL, probing, logger.NewTestLogger(), rec)
	require.NoError(t, err)
	t.Cleanup(mon.Stop)

	services := []models.ServiceDescriptor{
		{ID: "up", Name: "Up", URL: upstream.URL + "/up"},
		{ID: "down", Name: "Down", URL: upstream.URL + "/down"},
	}
	require.NoError(t, mon.Initialize(context.Background(), services))

	relay := server.NewRelay(2*time.Second, logger.NewTestLogger())
	srv := server.New(":0", mon, relay, rec, logger.NewTestLogger())
	api := httptest.NewServer(srv.Handler())
	t.Cleanup(api.Close)

	return &fixture{upstream: upstream, api: api, monitor: mon}
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestStatusEndpoints(t *testing.T) {
	f := newFixture(t)

	var all map[string]models.HealthResult
	getJSON(t, f.api.URL+"/api/status", &all)
	require.Len(t, all, 2)
	assert.Equal(t, models.StatusHealthy, all["up"].Status)
	assert.Equal(t, models.StatusError, all["down"].Status)

	var one models.HealthResult
	getJSON(t, f.api.URL+"/api/status/up", &one)
	assert.Equal(t, "up", one.ServiceID)
	assert.Equal(t, models.MethodDirect, one.Method)

	resp, err := http.Get(f.api.URL + "/api/status/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSummaryEndpoint(t *testing.T) {
	f := newFixture(t)

	var summary models.Summary
	getJSON(t, f.api.URL+"/api/summary", &summary)
	assert.Equal(t, models.Summary{Healthy: 1, Error: 1, Total: 2}, summary)
}

func TestHistoryEndpoints(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		_, err := f.monitor.ForceHealthCheck(context.Background(), "up")
		require.NoError(t, err)
	}

	var runs map[string][]models.HealthResult
	getJSON(t, f.api.URL+"/api/history", &runs)
	assert.Len(t, runs["up"], 4, "initial pass plus three forced checks")

	var limited []models.HealthResult
	getJSON(t, f.api.URL+"/api/history/up?limit=2", &limited)
	assert.Len(t, limited, 2)

	resp, err := http.Get(f.api.URL + "/api/history/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUptimeEndpoint(t *testing.T) {
	f := newFixture(t)

	var summaries []history.ServiceUptime
	getJSON(t, f.api.URL+"/api/uptime", &summaries)
	require.Len(t, summaries, 2)
	assert.Equal(t, "down", summaries[0].ID)
	assert.Equal(t, 0.0, summaries[0].UptimePercent)
	assert.Equal(t, 100.0, summaries[1].UptimePercent)
}

func TestForceCheckEndpoint(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.api.URL+"/api/check/up", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result models.HealthResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "up", result.ServiceID)
	assert.Equal(t, models.StatusHealthy, result.Status)

	get, err := http.Get(f.api.URL + "/api/check/up")
	require.NoError(t, err)
	get.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, get.StatusCode)

	missing, err := http.Post(f.api.URL+"/api/check/missing", "application/json", nil)
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestServicesEndpoint(t *testing.T) {
	f := newFixture(t)

	var services []models.ServiceDescriptor
	getJSON(t, f.api.URL+"/api/services", &services)
	assert.Len(t, services, 2)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.api.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "labmonitor_probes_total")
	assert.Contains(t, string(body), "labmonitor_services_by_status")
}

func TestEventsWebsocketDeliversSummary(t *testing.T) {
	f := newFixture(t)

	wsURL := "ws" + strings.TrimPrefix(f.api.URL, "http") + "/api/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event models.Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, models.EventSummary, event.Kind)
	require.NotNil(t, event.Summary)
	assert.Equal(t, 2, event.Summary.Total)
}
