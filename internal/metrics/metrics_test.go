package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.MergeOutcomes.WithLabelValues("appended", "1d").Inc()
	m.ObserveFeedMessage(true)
	m.ObserveFeedMessage(false)
	m.ObserveFeedMessage(false)
	m.ObserveTailLookup(true)
	m.ObserveJob("convert", errors.New("boom"))
	m.SetMarketOpen(true)

	if got := testutil.ToFloat64(m.MergeOutcomes.WithLabelValues("appended", "1d")); got != 1 {
		t.Errorf("merge outcomes: %v", got)
	}
	if got := testutil.ToFloat64(m.FeedMessages.WithLabelValues("bad")); got != 2 {
		t.Errorf("bad feed messages: %v", got)
	}
	if got := testutil.ToFloat64(m.TailCacheLookups.WithLabelValues("hit")); got != 1 {
		t.Errorf("tail hits: %v", got)
	}
	if got := testutil.ToFloat64(m.JobRuns.WithLabelValues("convert", "error")); got != 1 {
		t.Errorf("job errors: %v", got)
	}
	if got := testutil.ToFloat64(m.MarketState); got != 1 {
		t.Errorf("market state: %v", got)
	}

	// Registering twice on the same registry must panic.
	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	NewMetrics(reg)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealthz(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(h *HealthStatus)
		wantCode   int
		wantStatus string
	}{
		{"healthy", func(h *HealthStatus) {
			h.SetFeedConnected(true)
			h.SetRedisEnabled(true)
			h.CheckRedis(context.Background(), pinger{})
			h.CheckSQLite(context.Background(), pinger{})
		}, http.StatusOK, "healthy"},
		{"redis disabled", func(h *HealthStatus) {
			h.SetFeedConnected(true)
			h.CheckSQLite(context.Background(), pinger{})
		}, http.StatusOK, "healthy"},
		{"redis down", func(h *HealthStatus) {
			h.SetFeedConnected(true)
			h.SetRedisEnabled(true)
			h.CheckRedis(context.Background(), pinger{err: errors.New("down")})
			h.CheckSQLite(context.Background(), pinger{})
		}, http.StatusServiceUnavailable, "degraded"},
		{"sqlite down", func(h *HealthStatus) {
			h.SetFeedConnected(true)
			h.CheckSQLite(context.Background(), pinger{err: errors.New("locked")})
		}, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthStatus()
			tt.setup(h)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code: got %d, want %d", rec.Code, tt.wantCode)
			}
			var body struct {
				Status string `json:"status"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status: got %q, want %q", body.Status, tt.wantStatus)
			}
		})
	}
}

func TestServerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ClosingPrices.Inc()

	srv := NewServer(":0", NewHealthStatus(), reg)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "equitycal_closing_prices_detected_total 1") {
		t.Error("closing price counter missing from /metrics")
	}
}
