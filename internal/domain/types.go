// Package domain holds the entities shared across the observer, incident
// pipeline, event bus, and telemetry surface. Values here are passed by
// copy between owners; no type here is safe for concurrent mutation.
package domain

import (
	"encoding/json"
	"time"
)

// AnomalyType classifies what kind of anomaly a log chunk exhibits.
type AnomalyType string

const (
	AnomalyCrash       AnomalyType = "crash"
	AnomalyError       AnomalyType = "error"
	AnomalyWarning     AnomalyType = "warning"
	AnomalyPerformance AnomalyType = "performance"
	AnomalyNone        AnomalyType = "none"
)

// AnomalySeverity ranks how urgently an anomaly needs a human or an
// automated response.
type AnomalySeverity string

const (
	SeverityLow      AnomalySeverity = "low"
	SeverityMedium   AnomalySeverity = "medium"
	SeverityHigh     AnomalySeverity = "high"
	SeverityCritical AnomalySeverity = "critical"
)

// Escalates reports whether this severity/anomaly combination should wake
// the incident pipeline.
func (v AnomalyVerdict) Escalates() bool {
	return v.IsAnomaly && (v.Severity == SeverityHigh || v.Severity == SeverityCritical)
}

// IncidentStatus is the monotonic lifecycle of an incident record.
type IncidentStatus string

const (
	StatusAnalyzing IncidentStatus = "analyzing"
	StatusResolved  IncidentStatus = "resolved"
	StatusUnresolved IncidentStatus = "unresolved"
)

// MonitoredContainer is the identity half of a container under
// observation; its lifecycle is driven entirely by runtime events (§4.5).
type MonitoredContainer struct {
	ID      string
	Name    string
	Service string
}

// LogEntry is one ingested log line. Timestamp is assigned at ingestion,
// never parsed from the line itself.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Line      string    `json:"line"`
}

// ContainerSample is a point-in-time snapshot of a monitored container's
// reported status and derived resource rates. Rates may be negative across
// a counter reset; callers must not clamp them.
type ContainerSample struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Service       string    `json:"service"`
	Status        string    `json:"status"`
	RestartCount  int       `json:"restart_count"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	NetRxRate     float64   `json:"net_rx_rate"`
	NetTxRate     float64   `json:"net_tx_rate"`
	DiskReadRate  float64   `json:"disk_read_rate"`
	DiskWriteRate float64   `json:"disk_write_rate"`
	Timestamp     time.Time `json:"timestamp"`
}

// AnomalyVerdict is the fast classifier's output (§4.2).
type AnomalyVerdict struct {
	IsAnomaly  bool            `json:"is_anomaly"`
	Confidence float64         `json:"confidence"`
	Type       AnomalyType     `json:"type"`
	Severity   AnomalySeverity `json:"severity"`
	Summary    string          `json:"summary"`
}

// FixAction is one remediation the deep analyzer suggested. Priority 1-2
// are "critical" for resolution accounting (§4.6 stage 7).
type FixAction struct {
	ToolName string          `json:"tool_name"`
	Target   string          `json:"target"`
	ArgsJSON string          `json:"args_json"`
	Priority int             `json:"priority"`
}

// Critical reports whether this fix must succeed for the incident to
// resolve.
func (f FixAction) Critical() bool { return f.Priority <= 2 }

// FixExecutionResult is the gateway's answer to one fix invocation.
// Success is only ever true on an explicit positive outcome; a transport
// error is never a success.
type FixExecutionResult struct {
	ToolName    string `json:"tool_name"`
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
	ToolStatus  string `json:"tool_status,omitempty"`
	ToolDetails string `json:"tool_details,omitempty"`
}

// RootCauseAnalysis is the deep analyzer's output (§4.2).
type RootCauseAnalysis struct {
	RootCause           string      `json:"root_cause"`
	Explanation         string      `json:"explanation"`
	AffectedComponents  []string    `json:"affected_components"`
	SuggestedFixes      []FixAction `json:"suggested_fixes"`
	Confidence          float64     `json:"confidence"`
	Prevention          string      `json:"prevention"`
}

// Incident is the append-only record of one escalation, from detection
// through narration. Status transitions form a prefix of
// analyzing -> {resolved|unresolved}; never back.
type Incident struct {
	ID               string             `json:"id"`
	Service          string             `json:"service"`
	DetectedAt       time.Time          `json:"detected_at"`
	TriggeringAnomaly AnomalyVerdict    `json:"triggering_anomaly"`
	Status           IncidentStatus     `json:"status"`
	Analysis         *RootCauseAnalysis `json:"analysis,omitempty"`
	Fixes            []FixExecutionResult `json:"fixes,omitempty"`
	ResolvedAt       *time.Time         `json:"resolved_at,omitempty"`
	Explanation      string             `json:"explanation,omitempty"`
	ResolutionNotes  string             `json:"resolution_notes,omitempty"`
}

// Resolve transitions the incident to a terminal state exactly once.
// Calling it twice is a programming error the caller must avoid; it does
// not itself enforce monotonicity beyond setting ResolvedAt only if unset.
func (inc *Incident) Resolve(status IncidentStatus, notes string, at time.Time) {
	inc.Status = status
	inc.ResolutionNotes = notes
	if inc.ResolvedAt == nil {
		inc.ResolvedAt = &at
	}
}

// EventType tags an Event envelope.
type EventType string

const (
	EventBootstrap       EventType = "bootstrap"
	EventContainerUpdate EventType = "container_update"
	EventLog             EventType = "log"
	EventIncident        EventType = "incident"
	EventIncidentUpdate  EventType = "incident_update"
)

// Event is the tagged envelope published on the bus. Only the payload
// fields belonging to Type are populated (Containers and Incidents
// together for bootstrap, one field for every other type). MarshalJSON picks the
// wire shape for Type itself, since "container" means the service name
// (a string) on a log event but the full sample (an object) on a
// container_update event.
type Event struct {
	Type         EventType         `json:"type"`
	Containers   []ContainerSample `json:"containers,omitempty"`
	Incidents    []Incident        `json:"incidents,omitempty"`
	Container    *ContainerSample  `json:"-"`
	LogService   string            `json:"-"`
	LogTimestamp time.Time         `json:"-"`
	LogMessage   string            `json:"-"`
	Incident     *Incident         `json:"-"`
}

// MarshalJSON implements the §6 wire contract: "container" is a string on
// log events and an object on container_update events.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventLog:
		return json.Marshal(struct {
			Type      EventType `json:"type"`
			Container string    `json:"container"`
			Timestamp time.Time `json:"timestamp"`
			Message   string    `json:"message"`
		}{e.Type, e.LogService, e.LogTimestamp, e.LogMessage})
	case EventContainerUpdate:
		return json.Marshal(struct {
			Type      EventType        `json:"type"`
			Container *ContainerSample `json:"container,omitempty"`
		}{e.Type, e.Container})
	case EventIncident, EventIncidentUpdate:
		return json.Marshal(struct {
			Type     EventType `json:"type"`
			Incident *Incident `json:"incident,omitempty"`
		}{e.Type, e.Incident})
	default:
		return json.Marshal(struct {
			Type       EventType         `json:"type"`
			Containers []ContainerSample `json:"containers,omitempty"`
			Incidents  []Incident        `json:"incidents,omitempty"`
		}{e.Type, e.Containers, e.Incidents})
	}
}

// UnmarshalJSON is MarshalJSON's inverse, needed so events round-trip
// through the Redis history list (internal/eventbus) unchanged.
func (e *Event) UnmarshalJSON(data []byte) error {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	e.Type = head.Type

	switch head.Type {
	case EventLog:
		var v struct {
			Container string    `json:"container"`
			Timestamp time.Time `json:"timestamp"`
			Message   string    `json:"message"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		e.LogService, e.LogTimestamp, e.LogMessage = v.Container, v.Timestamp, v.Message
	case EventContainerUpdate:
		var v struct {
			Container *ContainerSample `json:"container"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		e.Container = v.Container
	case EventIncident, EventIncidentUpdate:
		var v struct {
			Incident *Incident `json:"incident"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		e.Incident = v.Incident
	default:
		var v struct {
			Containers []ContainerSample `json:"containers"`
			Incidents  []Incident        `json:"incidents"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		e.Containers, e.Incidents = v.Containers, v.Incidents
	}
	return nil
}

// ContainerStatsSnapshot is the raw, pre-derivation input to the rate math
// in §4.5; it is never itself published.
type ContainerStatsSnapshot struct {
	At              time.Time
	CPUTotalNanos   uint64
	SystemCPUNanos  uint64
	OnlineCPUs      uint32
	MemoryUsage     uint64
	MemoryCache     uint64
	MemoryLimit     uint64
	NetRxBytes      uint64
	NetTxBytes      uint64
	DiskReadBytes   uint64
	DiskWriteBytes  uint64
	Status          string
	RestartCount    int
}

// ToolDescriptor is one entry of the gateway's discovered tool catalog.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}
