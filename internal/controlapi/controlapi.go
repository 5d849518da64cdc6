// Package controlapi is the broker's local read-only HTTP surface
// (spec.md §1 names external dashboards as a collaborator of this
// boundary, not of the broker's internals). It exposes /health,
// /status, /agents, and /audit; it never accepts writes, so the
// routing/scheduling/injection state it reports stays owned by the
// pipeline that wires a Registry into it.
package controlapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/AgentWorkforce/relay-broker/internal/middleware"
)

// AgentStatus is a point-in-time snapshot of one supervised worker, as
// reported by the pipeline that owns its workerproc.Parent and
// supervisor.Supervisor state.
type AgentStatus struct {
	Name           string    `json:"name"`
	Runtime        string    `json:"runtime"`
	Channels       []string  `json:"channels"`
	Ready          bool      `json:"ready"`
	RestartCount   int       `json:"restart_count"`
	PendingRestart bool      `json:"pending_restart"`
	ThrottleMs     int64     `json:"throttle_interval_ms"`
	LastActivityAt time.Time `json:"last_activity_at,omitempty"`
}

// AgentDetail is AgentStatus plus the worker's retained raw-output
// scrollback, for /agents/{name}.
type AgentDetail struct {
	AgentStatus
	Scrollback string `json:"scrollback"`
}

// Registry is the read-only view the control API queries. The
// top-level pipeline package implements it over its live dedup/
// routing/scheduler/queue/workerproc/supervisor state; this package
// never reaches into that state directly; it only reports what
// Registry hands back.
type Registry interface {
	Agents() []AgentStatus
	Agent(name string) (AgentDetail, bool)
	Healthy() bool
}

// AuditLog is the read-only view over restart/delivery outcome
// history, implemented by internal/audit.Store.
type AuditLog interface {
	Recent(limit int) ([]AuditEntry, error)
}

// AuditEntry is one row of restart/delivery outcome history.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Agent     string    `json:"agent"`
	Detail    string    `json:"detail"`
}

// Server wires Registry/AuditLog into a chi router implementing the
// control API's minimal surface.
type Server struct {
	registry Registry
	audit    AuditLog
}

// New builds a Server. audit may be nil, in which case /audit reports
// an empty history instead of failing.
func New(registry Registry, audit AuditLog) *Server {
	return &Server{registry: registry, audit: audit}
}

// Router builds the chi router for this control API, with the same
// baseline middleware stack (RequestID, RealIP, Logger, Recoverer,
// Heartbeat) the teacher's server used, plus permissive CORS since
// dashboards are the only consumer and carry no credentials here.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	r.Get("/status", s.handleStatus)
	r.Get("/agents", s.handleAgents)
	r.Get("/agents/{name}", s.handleAgentDetail)
	r.Get("/audit", s.handleAudit)

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     s.registry.Healthy(),
		"agents": len(s.registry.Agents()),
	})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"agents": s.registry.Agents()})
}

func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	detail, ok := s.registry.Agent(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown agent "+name)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSON(w, http.StatusOK, map[string]any{"entries": []AuditEntry{}})
		return
	}
	entries, err := s.audit.Recent(200)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read audit history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
