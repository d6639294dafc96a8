package httpapi

import (
	"context"
	"net/http"

	"github.com/conclave-run/conclave/internal/types"
)

func (s *Server) handleSystemPerformance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readRequestTimeout)
	defer cancel()

	perf, err := s.rt.Monitor.GetSystemPerformance(ctx, windowHours(r))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, ErrInternal, err.Error(), nil)
		return
	}

	perf.AgentStatusCounts = make(map[types.AgentStatus]int)
	for _, a := range s.rt.Registry.List() {
		perf.AgentStatusCounts[a.Status]++
	}

	writeJSON(w, http.StatusOK, perf)
}
