package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.ObserveClientInit("redis", 10*time.Millisecond, nil)
	m.ObserveClientInit("redis", 10*time.Millisecond, errors.New("down"))
	m.RateLimitFailOpen("signin")
	m.RateLimited("signin")
	m.AuthDecision("protected", "redirect")

	done := m.HTTPStarted()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpInFlight))
	done(http.MethodGet, "/healthz", http.StatusOK)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.httpInFlight))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.clientInits.WithLabelValues("redis", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.clientInits.WithLabelValues("redis", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.failOpen.WithLabelValues("signin")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/healthz", "200")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.RateLimitFailOpen("register")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `starterkit_ratelimit_fail_open_total{scope="register"} 1`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveClientInit("db", time.Second, nil)
		m.RateLimited("x")
		m.RateLimitFailOpen("x")
		m.AuthDecision("public", "allow")
		m.HTTPStarted()("GET", "/", 200)
	})
}
