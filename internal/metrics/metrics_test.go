package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RecordFixAttempt_ExposedOnHandler(t *testing.T) {
	reg := New()
	reg.RecordFixAttempt("restart_container", true)
	reg.RecordFixAttempt("restart_container", false)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `sentinel_fix_attempts_total{outcome="success",tool="restart_container"} 1`)
	assert.Contains(t, body, `sentinel_fix_attempts_total{outcome="failure",tool="restart_container"} 1`)
}

func TestRegistry_RecordIncidentOutcome(t *testing.T) {
	reg := New()
	reg.RecordIncidentOutcome("resolved", "")
	reg.RecordIncidentOutcome("unresolved", "gateway unhealthy")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `status="resolved"`))
	assert.True(t, strings.Contains(body, `reason="gateway unhealthy"`))
}

func TestRegistry_EventBusQueueDepthGauge(t *testing.T) {
	reg := New()
	reg.EventBusQueueDepth.Set(3)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), "sentinel_eventbus_subscriber_count 3")
}
