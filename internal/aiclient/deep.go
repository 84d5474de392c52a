package aiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aryan877/sre-sentinel/internal/domain"
	"github.com/rs/zerolog"
)

const deepAnalysisSystemPrompt = `You are a senior site reliability engineer diagnosing a production incident.
You are given an anomaly summary, the container's full buffered logs, its environment (secrets redacted),
its runtime stats, and the catalog of remediation tools available to you.
Respond with strict JSON only, matching this shape:
{
  "root_cause": string,
  "explanation": string,
  "affected_components": string[],
  "suggested_fixes": [{"tool_name": string, "target": string, "args_json": string, "priority": integer 1-5}],
  "confidence": number between 0 and 1,
  "prevention": string
}
List suggested_fixes in the order they should be executed. Lower priority numbers are more critical.
Only suggest tool_name values that appear in the tool catalog.`

const humanExplanationSystemPrompt = `You explain infrastructure incidents to a non-specialist operator in plain language.
Be concise, reassuring where warranted, and specific about what was done.`

const humanExplanationFallback = "An incident was detected and the automated remediation pipeline processed it. See the incident record for details."

// DeepAnalyzer is the C2 deep analyzer: larger context, slower, surfaces
// errors to the caller rather than degrading (§4.2, §7 "deep analyzer
// surfaces errors to the pipeline").
type DeepAnalyzer struct {
	transport *Transport
	model     string
	log       zerolog.Logger
}

// NewDeepAnalyzer constructs the deep analyzer against model.
func NewDeepAnalyzer(transport *Transport, model string, log zerolog.Logger) *DeepAnalyzer {
	return &DeepAnalyzer{transport: transport, model: model, log: log}
}

// AnalysisContext is the full redacted context gathered for one incident
// (§4.6 stage 2).
type AnalysisContext struct {
	AnomalySummary  string
	Logs            string
	ComposeSnippet  string
	RedactedEnv     map[string]string
	ContainerStats  map[string]interface{}
	ToolCatalog     string
}

// Analyze calls the deep model for a root-cause analysis. On failure it
// returns an error (not a degraded struct) — the pipeline is responsible
// for marking the incident unresolved with this error as resolution notes.
func (d *DeepAnalyzer) Analyze(ctx context.Context, service string, analysisCtx AnalysisContext) (*domain.RootCauseAnalysis, error) {
	content, err := d.transport.Chat(ctx, ChatParams{
		Model:       d.model,
		System:      deepAnalysisSystemPrompt,
		User:        buildAnalysisPrompt(service, analysisCtx),
		Temperature: 0.2,
		MaxTokens:   2000,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("deep analyzer call: %w", err)
	}

	analysis, err := parseRootCauseAnalysis(content)
	if err != nil {
		return nil, fmt.Errorf("deep analyzer response: %w", err)
	}
	return analysis, nil
}

// Explain asks for a human-friendly narration of a resolved/unresolved
// incident. It never fails the caller: on error it returns a fixed
// fallback string and never blocks incident resolution accounting
// (§4.2 "Human explanation").
func (d *DeepAnalyzer) Explain(ctx context.Context, incident domain.Incident) string {
	content, err := d.transport.Chat(ctx, ChatParams{
		Model:       d.model,
		System:      humanExplanationSystemPrompt,
		User:        buildExplanationPrompt(incident),
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err != nil {
		d.log.Warn().Err(err).Str("incident", incident.ID).Msg("human explanation call failed, using fallback")
		return humanExplanationFallback
	}
	return content
}

func buildAnalysisPrompt(service string, c AnalysisContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Service: %s\n\n", service)
	fmt.Fprintf(&b, "## Anomaly\n%s\n\n", c.AnomalySummary)
	fmt.Fprintf(&b, "## Container Stats\n%v\n\n", c.ContainerStats)
	b.WriteString("## Environment Variables (redacted)\n")
	for k, v := range c.RedactedEnv {
		fmt.Fprintf(&b, "%s=%s\n", k, v)
	}
	b.WriteString("\n")
	if c.ComposeSnippet != "" {
		fmt.Fprintf(&b, "## Docker Compose\n%s\n\n", c.ComposeSnippet)
	}
	fmt.Fprintf(&b, "## Available Remediation Tools\n%s\n\n", c.ToolCatalog)
	fmt.Fprintf(&b, "## Complete Log History\n%s\n", c.Logs)
	return b.String()
}

func buildExplanationPrompt(incident domain.Incident) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Incident %s for service %s, status %s.\n", incident.ID, incident.Service, incident.Status)
	fmt.Fprintf(&b, "Triggering anomaly: %s (%s/%s)\n", incident.TriggeringAnomaly.Summary, incident.TriggeringAnomaly.Type, incident.TriggeringAnomaly.Severity)
	if incident.Analysis != nil {
		fmt.Fprintf(&b, "Root cause: %s\n", incident.Analysis.RootCause)
	}
	for _, fix := range incident.Fixes {
		fmt.Fprintf(&b, "Fix %s: success=%v message=%s error=%s\n", fix.ToolName, fix.Success, fix.Message, fix.Error)
	}
	b.WriteString("Explain what happened and what was done, in two or three sentences.")
	return b.String()
}

// rawFixAction mirrors the wire shape of one suggested fix prior to
// validating that priority was not sent as a boolean (§4.2 "priority in
// fix actions must not be a boolean, even though JSON would accept
// true/false numerically").
type rawFixAction struct {
	ToolName string          `json:"tool_name"`
	Target   string          `json:"target"`
	ArgsJSON string          `json:"args_json"`
	Priority json.RawMessage `json:"priority"`
}

type rawRootCauseAnalysis struct {
	RootCause          string         `json:"root_cause"`
	Explanation        string         `json:"explanation"`
	AffectedComponents []string       `json:"affected_components"`
	SuggestedFixes     []rawFixAction `json:"suggested_fixes"`
	Confidence         float64        `json:"confidence"`
	Prevention         string         `json:"prevention"`
}

func parseRootCauseAnalysis(content string) (*domain.RootCauseAnalysis, error) {
	var raw rawRootCauseAnalysis
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal root cause analysis: %w", err)
	}

	fixes := make([]domain.FixAction, 0, len(raw.SuggestedFixes))
	for i, rf := range raw.SuggestedFixes {
		priority, err := parsePriority(rf.Priority)
		if err != nil {
			return nil, fmt.Errorf("suggested_fixes[%d].priority: %w", i, err)
		}
		fixes = append(fixes, domain.FixAction{
			ToolName: rf.ToolName,
			Target:   rf.Target,
			ArgsJSON: rf.ArgsJSON,
			Priority: priority,
		})
	}

	return &domain.RootCauseAnalysis{
		RootCause:          raw.RootCause,
		Explanation:        raw.Explanation,
		AffectedComponents: raw.AffectedComponents,
		SuggestedFixes:     fixes,
		Confidence:         raw.Confidence,
		Prevention:         raw.Prevention,
	}, nil
}

// parsePriority decodes into interface{} so that a JSON boolean is seen
// as a bool and rejected with its own error, separately from any other
// non-numeric shape.
func parsePriority(raw json.RawMessage) (int, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("unmarshal priority: %w", err)
	}
	switch n := v.(type) {
	case bool:
		return 0, fmt.Errorf("priority must not be a boolean")
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("priority must be a number, got %T", v)
	}
}
