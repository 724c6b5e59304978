package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"polaris-hq/polaris/pkg/store"
)

func newEnabledCollector() *Collector {
	return NewCollector(Config{Enabled: true}, prometheus.NewRegistry())
}

func TestRecordRequest(t *testing.T) {
	c := newEnabledCollector()

	c.RecordRequest("llama", "alpha-vllm-llama", "200", 250*time.Millisecond)
	c.RecordRequest("llama", "alpha-vllm-llama", "200", 300*time.Millisecond)
	c.RecordRequest("llama", "beta-vllm-llama", "502", time.Second)

	if got := testutil.ToFloat64(c.requestsTotal.WithLabelValues("llama", "alpha-vllm-llama", "200")); got != 2 {
		t.Errorf("requests_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.requestsTotal.WithLabelValues("llama", "beta-vllm-llama", "502")); got != 1 {
		t.Errorf("requests_total = %v, want 1", got)
	}
}

func TestDisabledCollectorRecordsNothing(t *testing.T) {
	c := NewCollector(Config{Enabled: false}, prometheus.NewRegistry())

	c.RecordRequest("llama", "ep", "200", time.Second)
	c.RecordFailover("ep")
	c.StreamStarted()
	c.RecordBatchStatus("pending")
	c.RecordIngested(5)

	if got := testutil.ToFloat64(c.requestsTotal.WithLabelValues("llama", "ep", "200")); got != 0 {
		t.Errorf("requests_total = %v, want 0 when disabled", got)
	}
	if got := testutil.ToFloat64(c.streamsActive); got != 0 {
		t.Errorf("streams_active = %v", got)
	}
}

func TestStreamGauge(t *testing.T) {
	c := newEnabledCollector()

	c.StreamStarted()
	c.StreamStarted()
	c.StreamEnded()

	if got := testutil.ToFloat64(c.streamsActive); got != 1 {
		t.Errorf("streams_active = %v, want 1", got)
	}
}

func TestLagGauge(t *testing.T) {
	c := newEnabledCollector()

	s := store.NewMemoryStore()
	defer s.Close()
	c.RegisterLagGauge(s)

	// Empty store: zero backlog, and the metric is registered.
	mfs, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "polaris_ingest_lag_rows" {
			found = true
			if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 0 {
				t.Errorf("lag = %v, want 0", got)
			}
		}
	}
	if !found {
		t.Error("lag gauge not registered")
	}
}

func TestHandlerServesExposition(t *testing.T) {
	c := newEnabledCollector()
	c.RecordRequest("llama", "ep", "200", time.Second)

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "polaris_requests_total") {
		t.Error("exposition missing polaris_requests_total")
	}
}
