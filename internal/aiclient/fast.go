package aiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aryan877/sre-sentinel/internal/domain"
	"github.com/rs/zerolog"
)

const fastClassifierSystemPrompt = `You are a log anomaly classifier for a container monitoring system.
Given a chunk of recent log lines from a service, decide whether they show an anomaly.
Respond with strict JSON only, matching this shape:
{"is_anomaly": bool, "confidence": number between 0 and 1, "type": "crash"|"error"|"warning"|"performance"|"none", "severity": "low"|"medium"|"high"|"critical", "summary": string}
Guidelines:
- "crash" for process termination, panics, fatal errors, OOM kills.
- "error" for repeated request failures, exceptions, connection refusals.
- "warning" for degraded-but-functioning conditions.
- "performance" for latency spikes, slow queries, resource exhaustion trending toward failure.
- "none" when logs show ordinary operation.
- severity "critical" or "high" should be reserved for conditions that warrant automated remediation.`

// FastClassifier is the C2 fast classifier: low latency, JSON-mode,
// degrade-to-benign on any failure (§4.2, §7 "fast classifier never
// surfaces errors").
type FastClassifier struct {
	transport *Transport
	model     string
	log       zerolog.Logger
}

// NewFastClassifier constructs the fast classifier against model.
func NewFastClassifier(transport *Transport, model string, log zerolog.Logger) *FastClassifier {
	return &FastClassifier{transport: transport, model: model, log: log}
}

// Classify analyzes a log chunk for anomalies. It never returns an error;
// on transport/parse failure it degrades to a benign verdict carrying the
// failure reason in Summary, per §4.2.
func (f *FastClassifier) Classify(ctx context.Context, service, logChunk string, context_ map[string]string) domain.AnomalyVerdict {
	user := buildClassifyPrompt(service, logChunk, context_)

	content, err := f.transport.Chat(ctx, ChatParams{
		Model:       f.model,
		System:      fastClassifierSystemPrompt,
		User:        user,
		Temperature: 0.1,
		MaxTokens:   300,
		JSONMode:    true,
	})
	if err != nil {
		f.log.Warn().Err(err).Str("service", service).Msg("fast classifier call failed, degrading to benign verdict")
		return benignVerdict(err)
	}

	verdict, err := parseAnomalyVerdict(content)
	if err != nil {
		f.log.Warn().Err(err).Str("service", service).Msg("fast classifier returned malformed response, degrading to benign verdict")
		return benignVerdict(err)
	}
	return verdict
}

func benignVerdict(err error) domain.AnomalyVerdict {
	return domain.AnomalyVerdict{
		IsAnomaly:  false,
		Confidence: 0,
		Type:       domain.AnomalyNone,
		Severity:   domain.SeverityLow,
		Summary:    fmt.Sprintf("Error analyzing logs: %s", err.Error()),
	}
}

func buildClassifyPrompt(service, logChunk string, context_ map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Service: %s\n\nRecent log lines:\n%s\n", service, logChunk)
	if len(context_) > 0 {
		b.WriteString("\nAdditional context:\n")
		for k, v := range context_ {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}
	return b.String()
}

// rawAnomalyVerdict mirrors the wire shape before type normalization:
// type and severity arrive as free strings and are lowercased and checked
// against the closed sets in parseAnomalyVerdict.
type rawAnomalyVerdict struct {
	IsAnomaly  bool    `json:"is_anomaly"`
	Confidence float64 `json:"confidence"`
	Type       string  `json:"type"`
	Severity   string  `json:"severity"`
	Summary    string  `json:"summary"`
}

func parseAnomalyVerdict(content string) (domain.AnomalyVerdict, error) {
	var raw rawAnomalyVerdict
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return domain.AnomalyVerdict{}, fmt.Errorf("unmarshal anomaly verdict: %w", err)
	}

	anomalyType := domain.AnomalyType(strings.ToLower(raw.Type))
	switch anomalyType {
	case domain.AnomalyCrash, domain.AnomalyError, domain.AnomalyWarning, domain.AnomalyPerformance, domain.AnomalyNone:
	default:
		return domain.AnomalyVerdict{}, fmt.Errorf("unknown anomaly type %q", raw.Type)
	}

	severity := domain.AnomalySeverity(strings.ToLower(raw.Severity))
	switch severity {
	case domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh, domain.SeverityCritical:
	default:
		return domain.AnomalyVerdict{}, fmt.Errorf("unknown severity %q", raw.Severity)
	}

	return domain.AnomalyVerdict{
		IsAnomaly:  raw.IsAnomaly,
		Confidence: raw.Confidence,
		Type:       anomalyType,
		Severity:   severity,
		Summary:    raw.Summary,
	}, nil
}
