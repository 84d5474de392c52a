package aiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aryan877/sre-sentinel/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport(t *testing.T, handler http.HandlerFunc) (*Transport, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewTransport("test-key", server.URL, 0, zerolog.Nop()), server
}

func chatCompletionJSON(content string) string {
	return fmt.Sprintf(`{"choices":[{"message":{"content":%q}}]}`, content)
}

func TestFastClassifier_Classify_Success(t *testing.T) {
	transport, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatCompletionJSON(`{"is_anomaly":true,"confidence":0.9,"type":"crash","severity":"critical","summary":"postgres down"}`))
	})

	fc := NewFastClassifier(transport, "fast-model", zerolog.Nop())
	verdict := fc.Classify(context.Background(), "postgres", "FATAL connection refused", nil)

	assert.True(t, verdict.IsAnomaly)
	assert.Equal(t, domain.AnomalyCrash, verdict.Type)
	assert.Equal(t, domain.SeverityCritical, verdict.Severity)
	assert.True(t, verdict.Escalates())
}

func TestFastClassifier_Classify_DegradesOnTransportFailure(t *testing.T) {
	transport, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom"}}`)
	})

	fc := NewFastClassifier(transport, "fast-model", zerolog.Nop())
	verdict := fc.Classify(context.Background(), "postgres", "whatever", nil)

	assert.False(t, verdict.IsAnomaly)
	assert.Equal(t, domain.AnomalyNone, verdict.Type)
	assert.Equal(t, domain.SeverityLow, verdict.Severity)
	assert.Contains(t, verdict.Summary, "Error analyzing logs")
	assert.False(t, verdict.Escalates())
}

func TestFastClassifier_Classify_DegradesOnMalformedJSON(t *testing.T) {
	transport, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatCompletionJSON(`not json`))
	})

	fc := NewFastClassifier(transport, "fast-model", zerolog.Nop())
	verdict := fc.Classify(context.Background(), "postgres", "whatever", nil)
	assert.False(t, verdict.IsAnomaly)
	assert.Contains(t, verdict.Summary, "Error analyzing logs")
}

func TestParseAnomalyVerdict_NormalizesCase(t *testing.T) {
	v, err := parseAnomalyVerdict(`{"is_anomaly":true,"confidence":0.5,"type":"CRASH","severity":"HIGH","summary":"x"}`)
	require.NoError(t, err)
	assert.Equal(t, domain.AnomalyCrash, v.Type)
	assert.Equal(t, domain.SeverityHigh, v.Severity)
}

func TestParseAnomalyVerdict_RejectsUnknownType(t *testing.T) {
	_, err := parseAnomalyVerdict(`{"is_anomaly":true,"confidence":0.5,"type":"bogus","severity":"high","summary":"x"}`)
	assert.Error(t, err)
}
