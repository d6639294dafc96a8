package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/conclave-run/conclave/internal/queue"
	"github.com/conclave-run/conclave/internal/types"
)

type registerWorkerRequest struct {
	ID           string            `json:"id"`
	Kind         string            `json:"kind"`
	Hostname     string            `json:"hostname"`
	PID          int               `json:"pid"`
	MaxTasks     int               `json:"max_tasks"`
	Queues       []string          `json:"queues"`
	Capabilities map[string]string `json:"capabilities"`
	Metadata     map[string]string `json:"metadata"`
}

func (s *Server) handleRegisterWorker(w http.ResponseWriter, r *http.Request) {
	var req registerWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrValidation, "malformed request body", nil)
		return
	}
	if req.ID == "" {
		if req.Hostname == "" && req.PID == 0 {
			writeError(w, r, http.StatusBadRequest, ErrValidation, "id is required when hostname/pid are not given", nil)
			return
		}
		req.ID = queue.GenerateWorkerID(req.Hostname, req.PID)
	}

	worker := &types.Worker{
		ID:           req.ID,
		Kind:         req.Kind,
		Hostname:     req.Hostname,
		PID:          req.PID,
		MaxTasks:     req.MaxTasks,
		Queues:       req.Queues,
		Capabilities: req.Capabilities,
		Metadata:     req.Metadata,
	}
	if err := s.rt.Queue.RegisterWorker(r.Context(), worker); err != nil {
		writeError(w, r, http.StatusInternalServerError, ErrInternal, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusCreated, worker)
}

type heartbeatRequest struct {
	ID          string `json:"id"`
	ActiveTasks int    `json:"active_tasks"`
	Status      string `json:"status"`
}

func (s *Server) handleWorkerHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrValidation, "malformed request body", nil)
		return
	}
	if req.ID == "" {
		writeError(w, r, http.StatusBadRequest, ErrValidation, "id is required", nil)
		return
	}

	worker := &types.Worker{ID: req.ID, ActiveTasks: req.ActiveTasks}
	if req.Status != "" {
		worker.Status = types.WorkerStatus(req.Status)
	}
	if err := s.rt.Queue.Heartbeat(r.Context(), worker); err != nil {
		writeError(w, r, http.StatusInternalServerError, ErrInternal, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type unregisterWorkerRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleUnregisterWorker(w http.ResponseWriter, r *http.Request) {
	var req unregisterWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrValidation, "malformed request body", nil)
		return
	}
	if err := s.rt.Store.MarkWorkerStatus(r.Context(), req.ID, types.WorkerOffline); err != nil {
		writeError(w, r, http.StatusInternalServerError, ErrInternal, err.Error(), nil)
		return
	}
	s.rt.Store.RecordWorkerEvent(r.Context(), req.ID, "unregistered", "")
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := s.rt.Store.ListWorkers(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, ErrInternal, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, workers)
}
