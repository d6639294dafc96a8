package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/conclave-run/conclave/internal/registry"
	"github.com/conclave-run/conclave/internal/types"
)

type createAgentRequest struct {
	Name            string            `json:"name"`
	Kind            types.AgentKind   `json:"kind"`
	SystemPrompt    string            `json:"system_prompt"`
	Capabilities    []string          `json:"capabilities"`
	Domain          string            `json:"domain"`
	SupervisorID    string            `json:"supervisor_id"`
	Config          map[string]string `json:"config"`
	AllowDelegation bool              `json:"allow_delegation"`
	IterationCap    int               `json:"iteration_cap"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrValidation, "malformed request body", nil)
		return
	}
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, ErrValidation, "name is required", nil)
		return
	}

	a, err := s.rt.Registry.Create(r.Context(), types.AgentDefinition{
		Name:            req.Name,
		Kind:            req.Kind,
		SystemPrompt:    req.SystemPrompt,
		Capabilities:    req.Capabilities,
		Domain:          req.Domain,
		SupervisorID:    req.SupervisorID,
		Config:          req.Config,
		AllowDelegation: req.AllowDelegation,
		IterationCap:    req.IterationCap,
	})
	if err == registry.ErrDuplicateName {
		writeError(w, r, http.StatusConflict, ErrNameConflict, "an agent with this name already exists", map[string]interface{}{"name": req.Name})
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, ErrInternal, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.rt.Registry.List())
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a, err := s.rt.Registry.Get(id)
	if err == registry.ErrNotFound {
		writeError(w, r, http.StatusNotFound, ErrHTTPError, "agent not found", nil)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, ErrInternal, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type updateAgentRequest struct {
	SystemPrompt    *string           `json:"system_prompt"`
	Capabilities    []string          `json:"capabilities"`
	Domain          *string           `json:"domain"`
	SupervisorID    *string           `json:"supervisor_id"`
	Config          map[string]string `json:"config"`
	AllowDelegation *bool             `json:"allow_delegation"`
	IterationCap    *int              `json:"iteration_cap"`
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req updateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrValidation, "malformed request body", nil)
		return
	}

	a, err := s.rt.Registry.Update(r.Context(), id, types.AgentPatch{
		SystemPrompt:    req.SystemPrompt,
		Capabilities:    req.Capabilities,
		Domain:          req.Domain,
		SupervisorID:    req.SupervisorID,
		Config:          req.Config,
		AllowDelegation: req.AllowDelegation,
		IterationCap:    req.IterationCap,
	})
	if err == registry.ErrNotFound {
		writeError(w, r, http.StatusNotFound, ErrHTTPError, "agent not found", nil)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, ErrInternal, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.rt.Registry.Delete(r.Context(), id); err == registry.ErrNotFound {
		writeError(w, r, http.StatusNotFound, ErrHTTPError, "agent not found", nil)
		return
	} else if err != nil {
		writeError(w, r, http.StatusInternalServerError, ErrInternal, err.Error(), nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	a, err := s.rt.Registry.Get(id)
	if err == registry.ErrNotFound {
		writeError(w, r, http.StatusNotFound, ErrHTTPError, "agent not found", nil)
		return
	} else if err != nil {
		writeError(w, r, http.StatusInternalServerError, ErrInternal, err.Error(), nil)
		return
	}

	if a.Status == types.AgentError {
		if err := s.rt.Registry.Restart(r.Context(), id); err == registry.ErrCrashLoopExceeded {
			s.rt.Store.SaveManualTask(r.Context(), &types.ManualTask{
				ID:           uuid.NewString(),
				Category:     "agent_crash_loop",
				Priority:     1,
				SourceSystem: "registry",
				SourceID:     id,
				Message:      fmt.Sprintf("agent %s exceeded its crash-loop respawn budget", id),
				CreatedAt:    time.Now().UTC(),
			})
			writeError(w, r, http.StatusConflict, ErrManualIntervention, "agent exceeded its crash-loop respawn budget", map[string]interface{}{"agent_id": id})
			return
		} else if err != nil {
			writeError(w, r, http.StatusInternalServerError, ErrInternal, err.Error(), nil)
			return
		}
		a, _ = s.rt.Registry.Get(id)
		writeJSON(w, http.StatusOK, a)
		return
	}

	s.setAgentStatus(w, r, types.AgentIdle)
}

func (s *Server) handleStopAgent(w http.ResponseWriter, r *http.Request) {
	s.setAgentStatus(w, r, types.AgentStopped)
}

func (s *Server) setAgentStatus(w http.ResponseWriter, r *http.Request, status types.AgentStatus) {
	id := mux.Vars(r)["id"]
	if err := s.rt.Registry.SetStatus(r.Context(), id, status); err == registry.ErrNotFound {
		writeError(w, r, http.StatusNotFound, ErrHTTPError, "agent not found", nil)
		return
	} else if err != nil {
		writeError(w, r, http.StatusInternalServerError, ErrInternal, err.Error(), nil)
		return
	}
	a, _ := s.rt.Registry.Get(id)
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleAgentPerformance(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx, cancel := context.WithTimeout(r.Context(), readRequestTimeout)
	defer cancel()

	perf, err := s.rt.Monitor.GetAgentPerformance(ctx, id, windowHours(r))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, ErrInternal, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}
