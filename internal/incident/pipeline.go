package incident

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aryan877/sre-sentinel/internal/aiclient"
	"github.com/aryan877/sre-sentinel/internal/domain"
	"github.com/aryan877/sre-sentinel/internal/eventbus"
	"github.com/aryan877/sre-sentinel/internal/metrics"
	"github.com/aryan877/sre-sentinel/internal/redact"
	"github.com/rs/zerolog"
)

const (
	idLayout             = "20060102-150405"
	gatewayUnhealthyNote = "MCP Gateway health check failed"
	criticalPriorityMax  = 2
)

// DeepAnalyzerClient is the C2 deep-analysis surface the pipeline
// depends on (§4.6 stage 4, 8).
type DeepAnalyzerClient interface {
	Analyze(ctx context.Context, service string, analysisCtx aiclient.AnalysisContext) (*domain.RootCauseAnalysis, error)
	Explain(ctx context.Context, incident domain.Incident) string
}

// GatewayClient is the C3 surface the pipeline depends on for
// pre-flight, remediation, and health verification (§4.6 stage 5-7).
type GatewayClient interface {
	Initialize(ctx context.Context) error
	ListTools(ctx context.Context) error
	VerifyGatewayHealth() bool
	ToolCatalog() string
	ExecuteFix(ctx context.Context, fix domain.FixAction) domain.FixExecutionResult
	ProbeContainerHealth(ctx context.Context, containerName string) bool
}

// ContainerInspector gathers per-container context for diagnosis
// (§4.6 stage 2) and live status for verification (§4.6 stage 7).
type ContainerInspector interface {
	LogLines(containerID string) []string
	ContainerEnv(ctx context.Context, containerID string) (map[string]string, error)
	ContainerStatsInfo(ctx context.Context, containerID string) (map[string]interface{}, error)
	ContainerStatus(ctx context.Context, containerID string) (string, error)
	ComposeSnippet(ctx context.Context, containerID string) (string, error)
}

// Redactor is the C1 surface used before environment data leaves the
// process (§4.6 stage 2).
type Redactor interface {
	RedactEnv(ctx context.Context, env map[string]string) map[string]string
}

// Pipeline implements C6's 8-stage state machine.
type Pipeline struct {
	bus        *eventbus.Bus
	deep       DeepAnalyzerClient
	gateway    GatewayClient
	inspector  ContainerInspector
	redactor   Redactor
	store      *Store
	log        zerolog.Logger
	metrics    *metrics.Registry

	gatewayOnce sync.Once
	gatewayErr  error

	targetLocksMu sync.Mutex
	targetLocks   map[string]*sync.Mutex
}

// New constructs a Pipeline.
func New(bus *eventbus.Bus, deep DeepAnalyzerClient, gw GatewayClient, inspector ContainerInspector, redactor Redactor, store *Store, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		bus:         bus,
		deep:        deep,
		gateway:     gw,
		inspector:   inspector,
		redactor:    redactor,
		store:       store,
		log:         log,
		targetLocks: make(map[string]*sync.Mutex),
	}
}

// WithMetrics attaches a Prometheus registry for recording fix attempts
// and incident outcomes. Optional: a Pipeline with no registry attached
// still runs, it just doesn't export these series.
func (p *Pipeline) WithMetrics(reg *metrics.Registry) *Pipeline {
	p.metrics = reg
	return p
}

// Open runs the full pipeline for one qualifying anomaly against
// containerID. Safe to call concurrently for different containers; two
// incidents against the same containerID never execute fixes
// concurrently (§4.6 "per-target serialization").
func (p *Pipeline) Open(ctx context.Context, service, containerID string, verdict domain.AnomalyVerdict) {
	inc := domain.Incident{
		ID:                newIncidentID(),
		Service:           service,
		DetectedAt:        time.Now(),
		TriggeringAnomaly: verdict,
		Status:            domain.StatusAnalyzing,
	}
	p.store.Put(inc)
	p.bus.Publish(ctx, domain.Event{Type: domain.EventIncident, Incident: &inc})
	if p.metrics != nil {
		p.metrics.IncidentsOpened.WithLabelValues(service).Inc()
	}

	gatewayErr := p.ensureGatewayReady(ctx)

	analysisCtx, err := p.gatherContext(ctx, service, containerID, verdict)
	if err != nil {
		p.log.Warn().Err(err).Str("incident_id", inc.ID).Msg("context gathering degraded")
	}

	analysis, err := p.deep.Analyze(ctx, service, analysisCtx)
	if err != nil {
		p.resolveUnresolved(ctx, &inc, err.Error())
		return
	}
	inc.Analysis = analysis
	p.store.Put(inc)
	p.bus.Publish(ctx, domain.Event{Type: domain.EventIncidentUpdate, Incident: &inc})

	if gatewayErr != nil || !p.gateway.VerifyGatewayHealth() {
		p.resolveUnresolved(ctx, &inc, gatewayUnhealthyNote)
		return
	}

	p.remediateSerialized(ctx, &inc, containerID)

	p.verify(ctx, &inc, containerID)

	p.narrate(ctx, &inc)
}

// gatherContext snapshots buffered logs, the compose descriptor,
// redacted environment, and container stats (§4.6 stage 2). The log text
// and the compose descriptor pass through redact.RedactText.
func (p *Pipeline) gatherContext(ctx context.Context, service, containerID string, verdict domain.AnomalyVerdict) (aiclient.AnalysisContext, error) {
	var firstErr error

	lines := p.inspector.LogLines(containerID)
	logs, _ := redact.RedactText(strings.Join(lines, "\n"))

	compose, err := p.inspector.ComposeSnippet(ctx, containerID)
	if err != nil && firstErr == nil {
		firstErr = err
	}
	compose, _ = redact.RedactText(compose)

	env, err := p.inspector.ContainerEnv(ctx, containerID)
	if err != nil && firstErr == nil {
		firstErr = err
	}
	redactedEnv := p.redactor.RedactEnv(ctx, env)

	stats, err := p.inspector.ContainerStatsInfo(ctx, containerID)
	if err != nil && firstErr == nil {
		firstErr = err
	}

	return aiclient.AnalysisContext{
		AnomalySummary: verdict.Summary,
		Logs:           logs,
		ComposeSnippet: compose,
		RedactedEnv:    redactedEnv,
		ContainerStats: stats,
		ToolCatalog:    p.gateway.ToolCatalog(),
	}, firstErr
}

// ensureGatewayReady performs session initialize + tool discovery
// exactly once per pipeline lifetime (§4.6 stage 5 "initialize if
// needed"). Open calls it before gathering context, so the tool catalog
// rendered for diagnosis is the discovered one; its error is checked at
// pre-flight.
func (p *Pipeline) ensureGatewayReady(ctx context.Context) error {
	p.gatewayOnce.Do(func() {
		if err := p.gateway.Initialize(ctx); err != nil {
			p.gatewayErr = err
			return
		}
		p.gatewayErr = p.gateway.ListTools(ctx)
	})
	return p.gatewayErr
}

// remediateSerialized invokes each suggested fix in model-provided
// order, serialized per containerID so two incidents never race fixes
// against the same target (§4.6 stage 6, "serialize per-target").
func (p *Pipeline) remediateSerialized(ctx context.Context, inc *domain.Incident, containerID string) {
	lock := p.targetLock(containerID)
	lock.Lock()
	defer lock.Unlock()

	if inc.Analysis == nil {
		return
	}

	results := make([]domain.FixExecutionResult, 0, len(inc.Analysis.SuggestedFixes))
	for _, fix := range inc.Analysis.SuggestedFixes {
		result := p.gateway.ExecuteFix(ctx, fix)
		if p.metrics != nil {
			p.metrics.RecordFixAttempt(fix.ToolName, result.Success)
		}
		results = append(results, result)
	}
	inc.Fixes = results

	p.store.Put(*inc)
	p.bus.Publish(ctx, domain.Event{Type: domain.EventIncidentUpdate, Incident: inc})
}

func (p *Pipeline) targetLock(containerID string) *sync.Mutex {
	p.targetLocksMu.Lock()
	defer p.targetLocksMu.Unlock()

	lock, ok := p.targetLocks[containerID]
	if !ok {
		lock = &sync.Mutex{}
		p.targetLocks[containerID] = lock
	}
	return lock
}

// verify resolves the incident iff the health probe passes, every
// critical fix (priority <= 2) succeeded, and the live container status
// is "running" (§4.6 stage 7).
func (p *Pipeline) verify(ctx context.Context, inc *domain.Incident, containerID string) {
	healthy := p.gateway.ProbeContainerHealth(ctx, containerID)
	criticalOK := allCriticalFixesSucceeded(inc.Fixes, inc.Analysis)
	status, err := p.inspector.ContainerStatus(ctx, containerID)
	running := err == nil && status == "running"

	if healthy && criticalOK && running {
		p.resolve(ctx, inc, domain.StatusResolved, "")
		return
	}

	var notes []string
	if !healthy {
		notes = append(notes, "container health probe did not pass within the verification window")
	}
	if !criticalOK {
		notes = append(notes, "one or more critical fixes did not succeed")
	}
	if !running {
		notes = append(notes, fmt.Sprintf("live container status is %q, expected running", status))
	}
	p.resolve(ctx, inc, domain.StatusUnresolved, strings.Join(notes, "; "))
}

func allCriticalFixesSucceeded(results []domain.FixExecutionResult, analysis *domain.RootCauseAnalysis) bool {
	if analysis == nil {
		return true
	}
	byTool := make(map[string]bool, len(results))
	for _, r := range results {
		byTool[r.ToolName] = r.Success
	}
	for _, fix := range analysis.SuggestedFixes {
		if !fix.Critical() {
			continue
		}
		if !byTool[fix.ToolName] {
			return false
		}
	}
	return true
}

// narrate calls the deep model for a human-friendly explanation.
// Narration never changes resolution status (§4.6 stage 8).
func (p *Pipeline) narrate(ctx context.Context, inc *domain.Incident) {
	explanation := p.deep.Explain(ctx, *inc)
	inc.Explanation = explanation
	p.store.Put(*inc)
	p.bus.Publish(ctx, domain.Event{Type: domain.EventIncidentUpdate, Incident: inc})
}

func (p *Pipeline) resolve(ctx context.Context, inc *domain.Incident, status domain.IncidentStatus, notes string) {
	inc.Resolve(status, notes, time.Now())
	p.store.Put(*inc)
	p.bus.Publish(ctx, domain.Event{Type: domain.EventIncidentUpdate, Incident: inc})
	if p.metrics != nil {
		p.metrics.RecordIncidentOutcome(string(status), notes)
	}
}

func (p *Pipeline) resolveUnresolved(ctx context.Context, inc *domain.Incident, notes string) {
	p.resolve(ctx, inc, domain.StatusUnresolved, notes)
}

func newIncidentID() string {
	return "INC-" + time.Now().UTC().Format(idLayout)
}
