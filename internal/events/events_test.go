package events

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(new(bytes.Buffer), nil))
}

func TestEmitDisabledIsNoop(t *testing.T) {
	var out bytes.Buffer
	e := New(newTestLogger(), false, &out)
	e.Emit(KindAgentIdle, AgentIdle{Name: "w1", IdleSecs: 5})
	if out.Len() != 0 {
		t.Fatalf("expected no json output when disabled, got %q", out.String())
	}
}

func TestEmitEnabledWritesJSONLine(t *testing.T) {
	var out bytes.Buffer
	e := New(newTestLogger(), true, &out)
	e.Emit(KindAgentReleased, AgentReleased{Name: "w1"})

	line := strings.TrimSpace(out.String())
	var decoded struct {
		Ts      string `json:"ts"`
		Type    string `json:"type"`
		Payload AgentReleased
	}
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("expected valid json line, got %q: %v", line, err)
	}
	if decoded.Type != string(KindAgentReleased) || decoded.Payload.Name != "w1" {
		t.Fatalf("unexpected decoded event: %+v", decoded)
	}
}

func TestEmitEnabledMultiplePayloadShapes(t *testing.T) {
	var out bytes.Buffer
	e := New(newTestLogger(), true, &out)
	e.Emit(KindDeliveryRetry, DeliveryRetry{Name: "w1", DeliveryID: "d1", EventID: "e1", Attempts: 2})
	e.Emit(KindAgentIdle, AgentIdle{Name: "w1", IdleSecs: 42})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 json lines, got %d", len(lines))
	}
	for _, line := range lines {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(line), &decoded); err != nil {
			t.Fatalf("expected valid json, got %q: %v", line, err)
		}
	}
}
