package controlapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeRegistry struct {
	healthy bool
	agents  []AgentStatus
	detail  map[string]AgentDetail
}

func (f *fakeRegistry) Agents() []AgentStatus { return f.agents }
func (f *fakeRegistry) Agent(name string) (AgentDetail, bool) {
	d, ok := f.detail[name]
	return d, ok
}
func (f *fakeRegistry) Healthy() bool { return f.healthy }

type fakeAudit struct{ entries []AuditEntry }

func (f *fakeAudit) Recent(limit int) ([]AuditEntry, error) { return f.entries, nil }

func TestHealthEndpointReturnsOK(t *testing.T) {
	srv := New(&fakeRegistry{healthy: true}, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStatusEndpointReportsAgentCount(t *testing.T) {
	reg := &fakeRegistry{healthy: true, agents: []AgentStatus{{Name: "alice"}, {Name: "bob"}}}
	srv := New(reg, nil)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["agents"].(float64) != 2 {
		t.Fatalf("expected agents=2, got %v", body["agents"])
	}
}

func TestAgentsEndpointListsAgents(t *testing.T) {
	reg := &fakeRegistry{agents: []AgentStatus{{Name: "alice", Ready: true}}}
	srv := New(reg, nil)
	req := httptest.NewRequest(http.MethodGet, "/agents", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAgentDetailReturns404ForUnknownAgent(t *testing.T) {
	srv := New(&fakeRegistry{detail: map[string]AgentDetail{}}, nil)
	req := httptest.NewRequest(http.MethodGet, "/agents/ghost", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAgentDetailReturnsScrollback(t *testing.T) {
	reg := &fakeRegistry{detail: map[string]AgentDetail{
		"alice": {AgentStatus: AgentStatus{Name: "alice"}, Scrollback: "hello world"},
	}}
	srv := New(reg, nil)
	req := httptest.NewRequest(http.MethodGet, "/agents/alice", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var detail AgentDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail.Scrollback != "hello world" {
		t.Fatalf("expected scrollback, got %q", detail.Scrollback)
	}
}

func TestAuditEndpointReturnsEmptyWhenNoAuditLogWired(t *testing.T) {
	srv := New(&fakeRegistry{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/audit", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body["entries"].([]any)) != 0 {
		t.Fatalf("expected empty entries, got %v", body["entries"])
	}
}

func TestAuditEndpointReturnsEntriesFromAuditLog(t *testing.T) {
	audit := &fakeAudit{entries: []AuditEntry{{Kind: "restart", Agent: "alice", Detail: "cooldown elapsed"}}}
	srv := New(&fakeRegistry{}, audit)
	req := httptest.NewRequest(http.MethodGet, "/audit", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	entries := body["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
}
