package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/OsoPanda1/isabella/pkg/utils/metrics"
	"github.com/m-mizutani/gt"
)

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	gt.NoError(t, err)
	return string(body)
}

func TestMetrics(t *testing.T) {
	m := metrics.New("isabella_test")

	m.ObserveTurn(120*time.Millisecond, false)
	m.ObserveTurn(30*time.Second, true)
	m.ObserveVault("recall", nil)
	m.ObserveVault("recall", errors.New("down"))
	m.SetActiveSessions(3)
	m.SessionEvent("start")

	body := scrape(t, m)
	gt.S(t, body).Contains(`isabella_test_turns_total{outcome="ok"} 1`)
	gt.S(t, body).Contains(`isabella_test_turns_total{outcome="degraded"} 1`)
	gt.S(t, body).Contains(`isabella_test_vault_operations_total{operation="recall"} 2`)
	gt.S(t, body).Contains(`isabella_test_vault_errors_total{operation="recall"} 1`)
	gt.S(t, body).Contains(`isabella_test_active_sessions 3`)
	gt.S(t, body).Contains(`isabella_test_session_events_total{event="start"} 1`)
	gt.S(t, body).Contains(`isabella_test_turn_latency_ms_count 2`)
}

func TestMetricsInstancesAreIndependent(t *testing.T) {
	a := metrics.New("isabella_test")
	b := metrics.New("isabella_test")
	a.SessionEvent("start")

	gt.S(t, scrape(t, b)).NotContains(`isabella_test_session_events_total{event="start"}`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.ObserveTurn(time.Second, true)
	m.ObserveVault("forget", nil)
	m.SetActiveSessions(1)
	m.SessionEvent("end")
}
