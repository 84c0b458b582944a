package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, service, outcome string) float64 {
	t.Helper()
	var m dto.Metric
	if err := upstreamRequests.WithLabelValues(service, outcome).Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestUpstreamCountsOutcomes(t *testing.T) {
	before := counterValue(t, "dataforseo", "error")
	Upstream("dataforseo", errors.New("boom"))
	Upstream("dataforseo", nil)

	if got := counterValue(t, "dataforseo", "error"); got != before+1 {
		t.Fatalf("expected error counter %v, got %v", before+1, got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveHTTP(http.MethodGet, http.StatusOK, 10*time.Millisecond)
	KeywordCache(true)
	GenerationJob(true)
	PublishAttempt("webflow", nil)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{
		"blogwriter_http_requests_total",
		"blogwriter_keyword_cache_lookups_total",
		"blogwriter_generation_jobs_total",
		"blogwriter_publish_attempts_total",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in metrics output", name)
		}
	}
}
