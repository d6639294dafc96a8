// Package types holds the core domain entities shared across the
// registry, orchestrator, queue, and performance monitor. Nothing in
// this package talks to storage, the broker, or the network: it is
// the vocabulary the rest of the core shares.
package types

import "time"

// AgentKind is the broad category of an agent. It is a plain tag on
// Agent; no per-kind behavior or type hierarchy is attached to it.
type AgentKind string

const (
	KindOrchestrator AgentKind = "orchestrator"
	KindDomain       AgentKind = "domain"
	KindTool         AgentKind = "tool"
	KindSupervisor   AgentKind = "supervisor"
	KindWorker       AgentKind = "worker"
)

// AgentStatus is the runtime lifecycle state of an agent.
type AgentStatus string

const (
	AgentInitializing AgentStatus = "initializing"
	AgentIdle         AgentStatus = "idle"
	AgentProcessing   AgentStatus = "processing"
	AgentWaiting      AgentStatus = "waiting"
	AgentError        AgentStatus = "error"
	AgentStopped      AgentStatus = "stopped"
)

// Agent is the canonical, persisted representation of a registered
// agent. The Registry owns the only in-memory copy that is mutated;
// every other component holds it by UUID and reads a fresh copy.
type Agent struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Kind           AgentKind         `json:"kind"`
	SystemPrompt   string            `json:"system_prompt"`
	Capabilities   []string          `json:"capabilities"`
	Domain         string            `json:"domain,omitempty"`
	SupervisorID   string            `json:"supervisor_id,omitempty"`
	Config         map[string]string `json:"config,omitempty"`
	AllowDelegation bool             `json:"allow_delegation"`
	IterationCap   int               `json:"iteration_cap"`

	Status       AgentStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	LastActivity time.Time   `json:"last_activity"`
}

// AgentDefinition is the input to Registry.Create.
type AgentDefinition struct {
	Name            string
	Kind            AgentKind
	SystemPrompt    string
	Capabilities    []string
	Domain          string
	SupervisorID    string
	Config          map[string]string
	AllowDelegation bool
	IterationCap    int
}

// AgentPatch carries mutable-field updates for Registry.Update. Nil
// fields are left unchanged; id and kind are immutable and have no
// corresponding field here.
type AgentPatch struct {
	SystemPrompt    *string
	Capabilities    []string // nil means "leave unchanged", non-nil (incl. empty) replaces
	Domain          *string
	SupervisorID    *string
	Config          map[string]string
	AllowDelegation *bool
	IterationCap    *int
}

// HasCapability reports whether the agent offers cap.
func (a *Agent) HasCapability(cap string) bool {
	for _, c := range a.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}
