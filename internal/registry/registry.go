// Package registry implements the Agent Registry: agent lifecycle,
// the capability index, and selection scoring used by the
// orchestrator's delegation planner.
package registry

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/conclave-run/conclave/internal/types"
)

// Store is the persistence surface the Registry needs. Implemented by
// internal/persistence.Store.
type Store interface {
	SaveAgent(ctx context.Context, a *types.Agent) error
	GetAgent(ctx context.Context, id string) (*types.Agent, error)
	DeleteAgent(ctx context.Context, id string) error
	ListAgents(ctx context.Context) ([]*types.Agent, error)
}

// ErrNotFound is returned when an agent ID or name has no match.
var ErrNotFound = fmt.Errorf("registry: agent not found")

// ErrDuplicateName is returned by Create when the name is already taken.
var ErrDuplicateName = fmt.Errorf("registry: agent name already registered")

// Registry holds the live, mutable set of registered agents plus the
// capability index used for selection. The Registry's in-memory copy
// is the one copy of an Agent anyone is allowed to mutate; everyone
// else reads a snapshot by ID.
type Registry struct {
	store Store

	mu       sync.RWMutex
	agents   map[string]*types.Agent // id -> agent
	byName   map[string]string       // name -> id
	capIndex map[string]map[string]struct{} // capability -> set of agent ids

	scoreCache *gocache.Cache

	respawns map[string]*respawnRecord // agent id -> crash-loop bookkeeping, guarded by mu

	// perf backs the performance_optimized selection strategy. Optional:
	// nil until SetPerfSource is called, in which case that strategy
	// scores every agent as having no recorded history.
	perf PerfSource
}

// New constructs a Registry and loads existing agents from store.
func New(ctx context.Context, store Store) (*Registry, error) {
	r := &Registry{
		store:      store,
		agents:     make(map[string]*types.Agent),
		byName:     make(map[string]string),
		capIndex:   make(map[string]map[string]struct{}),
		scoreCache: gocache.New(5*time.Second, 30*time.Second),
	}

	existing, err := store.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: load agents: %w", err)
	}
	for _, a := range existing {
		r.indexLocked(a)
	}
	log.Printf("[registry] loaded %d agents", len(existing))
	return r, nil
}

// indexLocked inserts/refreshes a into the in-memory indexes. Caller
// must hold r.mu for writing.
func (r *Registry) indexLocked(a *types.Agent) {
	r.agents[a.ID] = a
	r.byName[a.Name] = a.ID
	for _, c := range a.Capabilities {
		set, ok := r.capIndex[c]
		if !ok {
			set = make(map[string]struct{})
			r.capIndex[c] = set
		}
		set[a.ID] = struct{}{}
	}
}

// deindexLocked removes a's capability-index entries. Caller must hold
// r.mu for writing.
func (r *Registry) deindexLocked(a *types.Agent) {
	delete(r.agents, a.ID)
	delete(r.byName, a.Name)
	for _, c := range a.Capabilities {
		if set, ok := r.capIndex[c]; ok {
			delete(set, a.ID)
			if len(set) == 0 {
				delete(r.capIndex, c)
			}
		}
	}
}

// Create registers a new agent. It rolls back the in-memory insert if
// the persistence write fails, so the registry never diverges from
// the store on a partial failure.
func (r *Registry) Create(ctx context.Context, def types.AgentDefinition) (*types.Agent, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("registry: name is required")
	}

	r.mu.Lock()
	if _, exists := r.byName[def.Name]; exists {
		r.mu.Unlock()
		return nil, ErrDuplicateName
	}

	now := time.Now().UTC()
	a := &types.Agent{
		ID:              uuid.NewString(),
		Name:            def.Name,
		Kind:            def.Kind,
		SystemPrompt:    def.SystemPrompt,
		Capabilities:    def.Capabilities,
		Domain:          def.Domain,
		SupervisorID:    def.SupervisorID,
		Config:          def.Config,
		AllowDelegation: def.AllowDelegation,
		IterationCap:    def.IterationCap,
		Status:          types.AgentInitializing,
		CreatedAt:       now,
		LastActivity:    now,
	}
	r.indexLocked(a)
	r.mu.Unlock()

	if err := r.store.SaveAgent(ctx, a); err != nil {
		r.mu.Lock()
		r.deindexLocked(a)
		r.mu.Unlock()
		return nil, fmt.Errorf("registry: persist agent: %w", err)
	}

	r.scoreCache.Flush()
	log.Printf("[registry] created agent %s (%s) kind=%s", a.ID, a.Name, a.Kind)
	return a, nil
}

// Get returns a snapshot copy of the agent with the given ID.
func (r *Registry) Get(id string) (*types.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// GetByName returns a snapshot copy of the agent with the given name.
func (r *Registry) GetByName(name string) (*types.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r.agents[id]
	return &cp, nil
}

// List returns a snapshot of every registered agent.
func (r *Registry) List() []*types.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FindByCapability returns snapshots of every agent offering cap.
func (r *Registry) FindByCapability(cap string) []*types.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.capIndex[cap]
	out := make([]*types.Agent, 0, len(ids))
	for id := range ids {
		cp := *r.agents[id]
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Update applies patch to the agent with id, persists the result, and
// rolls the in-memory copy back to its prior state if the write fails.
func (r *Registry) Update(ctx context.Context, id string, patch types.AgentPatch) (*types.Agent, error) {
	r.mu.Lock()
	a, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotFound
	}

	before := *a
	r.deindexLocked(a)

	if patch.SystemPrompt != nil {
		a.SystemPrompt = *patch.SystemPrompt
	}
	if patch.Capabilities != nil {
		a.Capabilities = patch.Capabilities
	}
	if patch.Domain != nil {
		a.Domain = *patch.Domain
	}
	if patch.SupervisorID != nil {
		a.SupervisorID = *patch.SupervisorID
	}
	if patch.Config != nil {
		a.Config = patch.Config
	}
	if patch.AllowDelegation != nil {
		a.AllowDelegation = *patch.AllowDelegation
	}
	if patch.IterationCap != nil {
		a.IterationCap = *patch.IterationCap
	}
	r.indexLocked(a)
	updated := *a
	r.mu.Unlock()

	if err := r.store.SaveAgent(ctx, &updated); err != nil {
		r.mu.Lock()
		r.deindexLocked(&updated)
		r.indexLocked(&before)
		r.mu.Unlock()
		return nil, fmt.Errorf("registry: persist update: %w", err)
	}

	r.scoreCache.Flush()
	return &updated, nil
}

// SetStatus transitions the agent's lifecycle status and bumps its
// last-activity timestamp.
func (r *Registry) SetStatus(ctx context.Context, id string, status types.AgentStatus) error {
	r.mu.Lock()
	a, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	a.Status = status
	a.LastActivity = time.Now().UTC()
	snap := *a
	r.mu.Unlock()

	r.scoreCache.Flush()
	return r.store.SaveAgent(ctx, &snap)
}

// Delete removes the agent from the registry and the store.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	a, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	r.deindexLocked(a)
	r.mu.Unlock()

	if err := r.store.DeleteAgent(ctx, id); err != nil {
		r.mu.Lock()
		r.indexLocked(a)
		r.mu.Unlock()
		return fmt.Errorf("registry: delete: %w", err)
	}
	r.scoreCache.Flush()
	return nil
}
