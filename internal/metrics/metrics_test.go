package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	return nil
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	for k, v := range want {
		matched := false
		for _, lp := range m.GetLabel() {
			if lp.GetName() == k && lp.GetValue() == v {
				matched = true
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func TestCollector_RecordAuthorize(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthorize("success", 300*time.Millisecond)
	c.RecordAuthorize("ineligible:banned", 310*time.Millisecond)
	c.RecordAuthorize("ineligible:not_found", 320*time.Millisecond)

	success := findMetric(t, reg, "turnstile_authorize_total", map[string]string{"outcome": "success"})
	require.NotNil(t, success)
	assert.Equal(t, float64(1), success.GetCounter().GetValue())

	ineligible := findMetric(t, reg, "turnstile_authorize_total", map[string]string{"outcome": "ineligible"})
	require.NotNil(t, ineligible)
	assert.Equal(t, float64(2), ineligible.GetCounter().GetValue())

	duration := findMetric(t, reg, "turnstile_authorize_duration_seconds", nil)
	require.NotNil(t, duration)
	assert.Equal(t, uint64(3), duration.GetHistogram().GetSampleCount())
}

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCacheLookup(CacheHit)
	c.RecordCacheLookup(CacheMiss)
	c.RecordCacheLookup(CacheMiss)
	c.RecordBackendError("redis")
	c.RecordRateLimited()

	miss := findMetric(t, reg, "turnstile_existence_cache_total", map[string]string{"result": CacheMiss})
	require.NotNil(t, miss)
	assert.Equal(t, float64(2), miss.GetCounter().GetValue())

	backend := findMetric(t, reg, "turnstile_backend_errors_total", map[string]string{"backend": "redis"})
	require.NotNil(t, backend)
	assert.Equal(t, float64(1), backend.GetCounter().GetValue())

	limited := findMetric(t, reg, "turnstile_rate_limited_total", nil)
	require.NotNil(t, limited)
	assert.Equal(t, float64(1), limited.GetCounter().GetValue())
}

func TestOutcomeLabel(t *testing.T) {
	assert.Equal(t, "success", OutcomeLabel("success"))
	assert.Equal(t, "backend", OutcomeLabel("backend:postgres"))
	assert.Equal(t, "ineligible", OutcomeLabel("ineligible:email_unverified"))
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordRateLimited()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "turnstile_rate_limited_total 1"))
}
