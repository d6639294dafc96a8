package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/conclave-run/conclave/internal/types"
)

func contextWithReadTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), readRequestTimeout)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithReadTimeout(r)
	defer cancel()

	alerts, err := s.rt.Monitor.ActiveAlerts(ctx)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, ErrInternal, err.Error(), nil)
		return
	}

	severity := r.URL.Query().Get("severity")
	resolvedParam := r.URL.Query().Get("resolved")
	var resolvedFilter *bool
	if resolvedParam != "" {
		if v, err := strconv.ParseBool(resolvedParam); err == nil {
			resolvedFilter = &v
		}
	}

	out := make([]*types.Alert, 0, len(alerts))
	for _, a := range alerts {
		if severity != "" && string(a.Severity) != severity {
			continue
		}
		if resolvedFilter != nil && a.Resolved != *resolvedFilter {
			continue
		}
		out = append(out, a)
	}
	writeJSON(w, http.StatusOK, out)
}

// findActiveAlert looks an alert up by ID among the monitor's active
// set. Acknowledge/Resolve both key off the in-memory alert pointer,
// so the HTTP layer resolves ID to *types.Alert before calling them.
func (s *Server) findActiveAlert(ctx context.Context, id string) (*types.Alert, error) {
	alerts, err := s.rt.Monitor.ActiveAlerts(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range alerts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	s.transitionAlert(w, r, s.rt.Monitor.Acknowledge)
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	s.transitionAlert(w, r, s.rt.Monitor.Resolve)
}

// transitionAlert finds the alert by ID and applies transition.
// Acknowledging an already-acknowledged alert is a no-op that still
// returns success. Only unresolved alerts are found, so resolving an
// already-resolved alert returns 404.
func (s *Server) transitionAlert(w http.ResponseWriter, r *http.Request, transition func(context.Context, *types.Alert) error) {
	id := mux.Vars(r)["id"]
	ctx, cancel := contextWithReadTimeout(r)
	defer cancel()

	a, err := s.findActiveAlert(ctx, id)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, ErrInternal, err.Error(), nil)
		return
	}
	if a == nil {
		writeError(w, r, http.StatusNotFound, ErrHTTPError, "alert not found", nil)
		return
	}
	if err := transition(ctx, a); err != nil {
		writeError(w, r, http.StatusInternalServerError, ErrInternal, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
