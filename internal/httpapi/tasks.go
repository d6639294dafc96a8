package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/conclave-run/conclave/internal/core"
	"github.com/conclave-run/conclave/internal/types"
)

type submitTaskRequest struct {
	Description           string                     `json:"description"`
	Parameters            map[string]interface{}     `json:"parameters"`
	Priority              int                        `json:"priority"`
	DecompositionStrategy types.DecompositionStrategy `json:"decomposition_strategy"`
	DelegationStrategy    types.DelegationStrategy    `json:"delegation_strategy"`
	DistributionMode      types.DistributionMode      `json:"distribution_mode"`
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req submitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrValidation, "malformed request body", nil)
		return
	}
	if req.Description == "" {
		writeError(w, r, http.StatusBadRequest, ErrValidation, "description is required", nil)
		return
	}

	t, err := s.rt.SubmitTask(r.Context(), core.SubmitRequest{
		Description:           req.Description,
		Parameters:            req.Parameters,
		Priority:              req.Priority,
		DecompositionStrategy: req.DecompositionStrategy,
		DelegationStrategy:    req.DelegationStrategy,
		DistributionMode:      req.DistributionMode,
	})
	if err == core.ErrBackpressure {
		writeError(w, r, http.StatusServiceUnavailable, ErrBackpressureExceeded, "submission queue is full", nil)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, ErrInternal, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": t.ID})
}

type taskStatusResponse struct {
	*types.Task
	Subtasks []*types.Subtask `json:"subtasks"`
	Progress float64          `json:"progress_percent"`
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, subtasks, err := s.rt.GetTask(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, r, http.StatusNotFound, ErrHTTPError, "task not found", nil)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, ErrInternal, err.Error(), nil)
		return
	}

	done := 0
	for _, st := range subtasks {
		if st.Status == types.SubtaskCompleted || st.Status == types.SubtaskFailed {
			done++
		}
	}
	progress := 0.0
	if len(subtasks) > 0 {
		progress = float64(done) / float64(len(subtasks)) * 100
	}

	writeJSON(w, http.StatusOK, taskStatusResponse{Task: t, Subtasks: subtasks, Progress: progress})
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.rt.CancelTask(id) {
		writeError(w, r, http.StatusNotFound, ErrHTTPError, "task is not running on this node", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}
