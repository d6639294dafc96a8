// Package httpapi exposes the core runtime over HTTP: agent CRUD,
// task submission and status, performance queries, alert lifecycle,
// worker registration, and a WebSocket feed of live task updates. It is the boundary the rest of the core is built behind —
// nothing in this package makes scoring or scheduling decisions
// itself.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/conclave-run/conclave/internal/core"
	"github.com/conclave-run/conclave/internal/types"
)

// Server wires the core runtime to a mux.Router and a WebSocket hub
// for live updates.
type Server struct {
	rt     *core.Runtime
	router *mux.Router
	hub    *hub
}

// New constructs a Server over rt and starts its WebSocket hub. It
// wires rt.OnTaskUpdate so every task transition reaches connected
// dashboards.
func New(rt *core.Runtime) *Server {
	s := &Server{rt: rt, hub: newHub()}
	go s.hub.run()
	rt.OnTaskUpdate = func(t *types.Task) {
		s.hub.broadcastJSON(wsTypeTaskUpdate, t)
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler to pass to http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware, sizeLimitMiddleware)

	api := r.PathPrefix("/").Subrouter()

	api.HandleFunc("/agents", s.handleCreateAgent).Methods("POST")
	api.HandleFunc("/agents", s.handleListAgents).Methods("GET")
	api.HandleFunc("/agents/{id}", s.handleGetAgent).Methods("GET")
	api.HandleFunc("/agents/{id}", s.handleUpdateAgent).Methods("PUT")
	api.HandleFunc("/agents/{id}", s.handleDeleteAgent).Methods("DELETE")
	api.HandleFunc("/agents/{id}/start", s.handleStartAgent).Methods("POST")
	api.HandleFunc("/agents/{id}/stop", s.handleStopAgent).Methods("POST")
	api.HandleFunc("/agents/{id}/performance", s.handleAgentPerformance).Methods("GET")

	api.HandleFunc("/tasks", s.handleSubmitTask).Methods("POST")
	api.HandleFunc("/tasks/{id}", s.handleGetTask).Methods("GET")
	api.HandleFunc("/tasks/{id}/cancel", s.handleCancelTask).Methods("POST")

	api.HandleFunc("/system/performance", s.handleSystemPerformance).Methods("GET")
	api.HandleFunc("/system/alerts", s.handleListAlerts).Methods("GET")
	api.HandleFunc("/system/alerts/{id}/acknowledge", s.handleAcknowledgeAlert).Methods("POST")
	api.HandleFunc("/system/alerts/{id}/resolve", s.handleResolveAlert).Methods("POST")

	api.HandleFunc("/workers/register", s.handleRegisterWorker).Methods("POST")
	api.HandleFunc("/workers/heartbeat", s.handleWorkerHeartbeat).Methods("POST")
	api.HandleFunc("/workers/unregister", s.handleUnregisterWorker).Methods("POST")
	api.HandleFunc("/workers", s.handleListWorkers).Methods("GET")

	r.HandleFunc("/ws", s.handleWebSocket)

	s.router = r
}

// windowHours parses the ?window_hours= query parameter, defaulting
// to 24; a non-numeric value or one outside 1..720 also yields 24.
func windowHours(r *http.Request) int {
	q := r.URL.Query().Get("window_hours")
	if q == "" {
		return 24
	}
	n := 0
	for _, c := range q {
		if c < '0' || c > '9' {
			return 24
		}
		n = n*10 + int(c-'0')
	}
	if n <= 0 || n > 24*30 {
		return 24
	}
	return n
}

// readRequestTimeout bounds metric read endpoints per spec: 10s.
const readRequestTimeout = 10 * time.Second
