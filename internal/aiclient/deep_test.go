package aiclient

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepAnalyzer_Analyze_Success(t *testing.T) {
	transport, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatCompletionJSON(`{
			"root_cause":"postgres connection pool exhausted",
			"explanation":"too many open connections",
			"affected_components":["postgres","api"],
			"suggested_fixes":[{"tool_name":"restart_container","target":"postgres","args_json":"{\"container_name\":\"postgres\"}","priority":1}],
			"confidence":0.8,
			"prevention":"add connection pooling limits"
		}`))
	})

	da := NewDeepAnalyzer(transport, "deep-model", zerolog.Nop())
	analysis, err := da.Analyze(context.Background(), "postgres", AnalysisContext{AnomalySummary: "crash"})
	require.NoError(t, err)
	require.Len(t, analysis.SuggestedFixes, 1)
	assert.Equal(t, "restart_container", analysis.SuggestedFixes[0].ToolName)
	assert.Equal(t, 1, analysis.SuggestedFixes[0].Priority)
	assert.True(t, analysis.SuggestedFixes[0].Critical())
}

func TestDeepAnalyzer_Analyze_SurfacesErrorOnFailure(t *testing.T) {
	transport, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"unavailable"}}`)
	})

	da := NewDeepAnalyzer(transport, "deep-model", zerolog.Nop())
	_, err := da.Analyze(context.Background(), "postgres", AnalysisContext{})
	assert.Error(t, err)
}

func TestParsePriority_RejectsBoolean(t *testing.T) {
	_, err := parsePriority([]byte("true"))
	assert.Error(t, err)
}

func TestParsePriority_AcceptsNumber(t *testing.T) {
	p, err := parsePriority([]byte("2"))
	require.NoError(t, err)
	assert.Equal(t, 2, p)
}

func TestDeepAnalyzer_Explain_FallsBackOnFailure(t *testing.T) {
	transport, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	da := NewDeepAnalyzer(transport, "deep-model", zerolog.Nop())
	explanation := da.Explain(context.Background(), incidentFixture())
	assert.Equal(t, humanExplanationFallback, explanation)
}
