package perfmon

import (
	"github.com/google/uuid"
)

// conclaveNamespace roots every UUID v5 this process derives, so the
// system-agent identity below is stable across processes and restarts
// without being a hand-picked literal.
var conclaveNamespace = uuid.MustParse("1b23a7b0-7c1b-4c7a-9b8e-7b2a6e9c9a10")

// systemAgentUUID is the deterministic identity substituted for the
// "system" sentinel agent used for system-wide metrics. Deriving it
// with UUID v5 rather than hardcoding zeros means any future sentinel
// (per-tenant system agents, for instance) can reuse the same
// namespace without colliding.
var systemAgentUUID = uuid.NewSHA1(conclaveNamespace, []byte("system")).String()

// EnsureAgentUUID maps the "system" sentinel identifier used by
// internal callers to the fixed, deterministic UUID persisted for
// system-wide metrics (an empty ID maps there too). Any other non-UUID
// string is hashed to its own UUID v5 in the same namespace; a valid
// UUID is returned unchanged. This is the single place permitted to
// perform that substitution; everywhere else takes an agent ID as given.
func EnsureAgentUUID(agentID string) string {
	if agentID == "" || agentID == "system" {
		return systemAgentUUID
	}
	if _, err := uuid.Parse(agentID); err != nil {
		return uuid.NewSHA1(conclaveNamespace, []byte(agentID)).String()
	}
	return agentID
}

// IsSystemAgent reports whether agentID names the system sentinel
// after substitution.
func IsSystemAgent(agentID string) bool {
	return EnsureAgentUUID(agentID) == systemAgentUUID
}

// SystemAgentID returns the derived system-agent identity, for
// callers that need to query its rollups directly (e.g. the system
// performance aggregate).
func SystemAgentID() string {
	return systemAgentUUID
}
