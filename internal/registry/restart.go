package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/conclave-run/conclave/internal/types"
)

const (
	maxRespawns   = 3
	respawnWindow = 5 * time.Minute
)

// ErrCrashLoopExceeded is returned by Restart once an agent has
// crashed more than maxRespawns times inside respawnWindow. The agent
// is left in AgentError; Restart keeps refusing until respawnWindow has
// passed since the window opened, and re-creating the agent gives it a
// fresh budget under a new ID.
var ErrCrashLoopExceeded = fmt.Errorf("registry: agent exceeded crash-loop respawn budget")

// respawnRecord tracks one agent's crash count within the current
// window.
type respawnRecord struct {
	count       int
	windowStart time.Time
}

// Restart brings an agent in AgentError back to AgentIdle, subject to
// a bounded respawn policy: the window opens at the first counted
// restart, and more than maxRespawns restarts within respawnWindow are
// refused until the window expires. Patching the agent or resetting
// its status does not clear the count.
func (r *Registry) Restart(ctx context.Context, id string) error {
	r.mu.Lock()
	a, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if a.Status != types.AgentError {
		// Nothing to restart; leave status as-is and let the caller's
		// ordinary start path handle non-error agents.
		r.mu.Unlock()
		return nil
	}

	if r.respawns == nil {
		r.respawns = make(map[string]*respawnRecord)
	}
	rec, ok := r.respawns[id]
	now := time.Now().UTC()
	if !ok || now.Sub(rec.windowStart) > respawnWindow {
		rec = &respawnRecord{windowStart: now}
		r.respawns[id] = rec
	}
	rec.count++

	if rec.count > maxRespawns {
		r.mu.Unlock()
		return ErrCrashLoopExceeded
	}

	a.Status = types.AgentIdle
	a.LastActivity = now
	snap := *a
	r.mu.Unlock()

	r.scoreCache.Flush()
	return r.store.SaveAgent(ctx, &snap)
}
