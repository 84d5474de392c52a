package incident

import (
	"context"
	"testing"
	"time"

	"github.com/aryan877/sre-sentinel/internal/domain"
	"github.com/aryan877/sre-sentinel/internal/eventbus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeFastClassifier struct {
	verdict domain.AnomalyVerdict
}

func (f *fakeFastClassifier) Classify(ctx context.Context, service, logChunk string, context_ map[string]string) domain.AnomalyVerdict {
	return f.verdict
}

func TestTrigger_CheckLogs_OpensIncidentOnEscalation(t *testing.T) {
	bus := eventbus.New(eventbus.NewMemoryStore(0), 16, zerolog.Nop())
	store := NewStore()
	deep := &fakeDeepAnalyzer{analysis: &domain.RootCauseAnalysis{}}
	gw := &fakeGateway{healthy: true, probeOK: true}
	inspector := &fakeInspector{status: "running"}
	p := New(bus, deep, gw, inspector, fakeRedactor{}, store, zerolog.Nop())

	classifier := &fakeFastClassifier{verdict: domain.AnomalyVerdict{IsAnomaly: true, Severity: domain.SeverityCritical, Type: domain.AnomalyCrash}}
	trigger := NewTrigger(classifier, p, zerolog.Nop())

	trigger.CheckLogs(context.Background(), "postgres", "c1", []string{"FATAL error"})

	assert.Eventually(t, func() bool {
		return len(store.Snapshot()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestTrigger_CheckLogs_IgnoresBenignVerdict(t *testing.T) {
	bus := eventbus.New(eventbus.NewMemoryStore(0), 16, zerolog.Nop())
	store := NewStore()
	p := New(bus, &fakeDeepAnalyzer{}, &fakeGateway{}, &fakeInspector{}, fakeRedactor{}, store, zerolog.Nop())

	classifier := &fakeFastClassifier{verdict: domain.AnomalyVerdict{IsAnomaly: false, Severity: domain.SeverityLow}}
	trigger := NewTrigger(classifier, p, zerolog.Nop())

	trigger.CheckLogs(context.Background(), "postgres", "c1", []string{"normal log line"})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, store.Snapshot())
}
