package types

import "time"

// MetricKind enumerates the metric samples the Performance Monitor
// ingests.
type MetricKind string

const (
	MetricLatency     MetricKind = "latency"
	MetricCost        MetricKind = "cost"
	MetricSuccessRate MetricKind = "success_rate"
	MetricTokenUsage  MetricKind = "token_usage"
	MetricToolUsage   MetricKind = "tool_usage"
	MetricErrorRate   MetricKind = "error_rate"
	MetricQueueSize   MetricKind = "queue_size"
	MetricMemoryUsage MetricKind = "memory_usage"
)

// MetricSample is one ingested measurement.
type MetricSample struct {
	AgentID   string            `json:"agent_id"`
	Kind      MetricKind        `json:"kind"`
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// AlertSeverity ranks an alert's urgency.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityError    AlertSeverity = "error"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is a raised condition surfaced to operators.
type Alert struct {
	ID           string                 `json:"id"`
	Title        string                 `json:"title"`
	Message      string                 `json:"message"`
	Severity     AlertSeverity          `json:"severity"`
	Source       string                 `json:"source"`
	SourceID     string                 `json:"source_id,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	Acknowledged bool                   `json:"acknowledged"`
	AcknowledgedAt *time.Time           `json:"acknowledged_at,omitempty"`
	Resolved     bool                   `json:"resolved"`
	ResolvedAt   *time.Time             `json:"resolved_at,omitempty"`
}

// AgentPerformance is the rolling aggregate computed for one agent
// over a window.
type AgentPerformance struct {
	AgentID    string                      `json:"agent_id"`
	WindowHours int                        `json:"window_hours"`
	Metrics    map[MetricKind]Aggregate    `json:"metrics"`
}

// Aggregate is the rolling-window summary of one metric kind.
type Aggregate struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"stddev"`
}

// SystemPerformance is the system-wide rolling aggregate.
type SystemPerformance struct {
	WindowHours  int                      `json:"window_hours"`
	Metrics      map[MetricKind]Aggregate `json:"metrics"`
	CostSummary  float64                  `json:"cost_summary"`
	AgentStatusCounts map[AgentStatus]int `json:"agent_status_counts"`
}
