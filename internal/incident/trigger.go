package incident

import (
	"context"
	"strings"

	"github.com/aryan877/sre-sentinel/internal/domain"
	"github.com/rs/zerolog"
)

// FastClassifier is the C2 fast-path surface the trigger consults on
// every log batch (§2 "Control flow").
type FastClassifier interface {
	Classify(ctx context.Context, service, logChunk string, context_ map[string]string) domain.AnomalyVerdict
}

// Trigger adapts the observer's per-batch log callback into a fast
// classification followed by, on an escalating verdict, an incident
// pipeline run. It implements dockerobserver.AnomalyChecker structurally.
type Trigger struct {
	classifier FastClassifier
	pipeline   *Pipeline
	log        zerolog.Logger
}

// NewTrigger constructs a Trigger.
func NewTrigger(classifier FastClassifier, pipeline *Pipeline, log zerolog.Logger) *Trigger {
	return &Trigger{classifier: classifier, pipeline: pipeline, log: log}
}

// CheckLogs classifies the accumulated batch and, on a HIGH/CRITICAL
// verdict, opens an incident. The pipeline runs in its own goroutine so
// the log pump is never blocked on diagnosis (§5 "the log pump MUST NOT
// block the whole scheduler").
func (t *Trigger) CheckLogs(ctx context.Context, service, containerID string, lines []string) {
	verdict := t.classifier.Classify(ctx, service, strings.Join(lines, "\n"), nil)
	if !verdict.Escalates() {
		return
	}

	t.log.Info().Str("service", service).Str("severity", string(verdict.Severity)).Msg("anomaly escalated, opening incident")
	go t.pipeline.Open(context.WithoutCancel(ctx), service, containerID, verdict)
}
