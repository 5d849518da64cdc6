package protocol

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	payload := InitWorkerPayload{Agent: AgentSpecPayload{
		Name:     "Worker1",
		Runtime:  "claude-code",
		Args:     []string{"--model", "gpt-5"},
		Channels: []string{"general"},
	}}

	line, err := Encode(TypeInitWorker, "req_1", payload)
	if err != nil {
		t.Fatal(err)
	}

	env, err := Decode(line[:len(line)-1])
	if err != nil {
		t.Fatal(err)
	}
	if env.V != Version || env.Type != TypeInitWorker || env.RequestID != "req_1" {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	var decoded InitWorkerPayload
	if err := json.Unmarshal(env.Payload, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Agent.Name != "Worker1" || len(decoded.Agent.Args) != 2 {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
}

func TestDeliverRelayRoundTrip(t *testing.T) {
	prio := 2
	payload := DeliverRelayPayload{
		DeliveryID: "del_1",
		EventID:    "evt_1",
		From:       "Lead",
		Target:     "#general",
		Body:       "hello",
		ThreadID:   "thr_1",
		Priority:   &prio,
	}

	line, err := Encode(TypeDeliverRelay, "", payload)
	if err != nil {
		t.Fatal(err)
	}
	env, err := Decode(line[:len(line)-1])
	if err != nil {
		t.Fatal(err)
	}

	var decoded DeliverRelayPayload
	if err := json.Unmarshal(env.Payload, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Priority == nil || *decoded.Priority != prio {
		t.Fatalf("expected priority %d, got %v", prio, decoded.Priority)
	}
	decoded.Priority = payload.Priority
	if decoded != payload {
		t.Fatalf("expected %+v, got %+v", payload, decoded)
	}
}

func TestDeliveryAckRoundTrip(t *testing.T) {
	payload := DeliveryAckPayload{DeliveryID: "del_9", EventID: "evt_9"}
	line, err := Encode(TypeDeliveryAck, "", payload)
	if err != nil {
		t.Fatal(err)
	}
	env, err := Decode(line[:len(line)-1])
	if err != nil {
		t.Fatal(err)
	}
	var decoded DeliveryAckPayload
	if err := json.Unmarshal(env.Payload, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded != payload {
		t.Fatalf("expected %+v, got %+v", payload, decoded)
	}
}

func TestDeliveryVerifiedRoundTrip(t *testing.T) {
	payload := DeliveryVerifiedPayload{DeliveryID: "del_v1", EventID: "evt_v1"}
	line, _ := Encode(TypeDeliveryVerified, "", payload)
	env, err := Decode(line[:len(line)-1])
	if err != nil {
		t.Fatal(err)
	}
	var decoded DeliveryVerifiedPayload
	json.Unmarshal(env.Payload, &decoded)
	if decoded != payload {
		t.Fatalf("expected %+v, got %+v", payload, decoded)
	}
}

func TestDeliveryFailedRoundTrip(t *testing.T) {
	payload := DeliveryFailedPayload{DeliveryID: "del_f1", EventID: "evt_f1", Reason: "echo timeout after 3 attempts"}
	line, _ := Encode(TypeDeliveryFailed, "", payload)
	env, err := Decode(line[:len(line)-1])
	if err != nil {
		t.Fatal(err)
	}
	var decoded DeliveryFailedPayload
	json.Unmarshal(env.Payload, &decoded)
	if decoded != payload {
		t.Fatalf("expected %+v, got %+v", payload, decoded)
	}
}

func TestWorkerStreamRoundTrip(t *testing.T) {
	payload := WorkerStreamPayload{Stream: "stdout", Chunk: "hello world"}
	line, _ := Encode(TypeWorkerStream, "", payload)
	env, err := Decode(line[:len(line)-1])
	if err != nil {
		t.Fatal(err)
	}
	var decoded WorkerStreamPayload
	json.Unmarshal(env.Payload, &decoded)
	if decoded != payload {
		t.Fatalf("expected %+v, got %+v", payload, decoded)
	}
}

func TestWorkerErrorRoundTrip(t *testing.T) {
	payload := WorkerErrorPayload{Code: "protocol_violation", Message: "malformed frame", Retryable: false}
	line, _ := Encode(TypeWorkerError, "", payload)
	env, err := Decode(line[:len(line)-1])
	if err != nil {
		t.Fatal(err)
	}
	var decoded WorkerErrorPayload
	json.Unmarshal(env.Payload, &decoded)
	if decoded != payload {
		t.Fatalf("expected %+v, got %+v", payload, decoded)
	}
}

func TestWorkerExitedRoundTrip(t *testing.T) {
	code := 1
	payload := WorkerExitedPayload{Code: &code}
	line, _ := Encode(TypeWorkerExited, "", payload)
	env, err := Decode(line[:len(line)-1])
	if err != nil {
		t.Fatal(err)
	}
	var decoded WorkerExitedPayload
	json.Unmarshal(env.Payload, &decoded)
	if *decoded.Code != code {
		t.Fatalf("expected code %d, got %v", code, decoded.Code)
	}
}

func TestPingPongRoundTrip(t *testing.T) {
	line, _ := Encode(TypePing, "", PingPayload{TsMs: 12345})
	env, err := Decode(line[:len(line)-1])
	if err != nil {
		t.Fatal(err)
	}
	var decoded PingPayload
	json.Unmarshal(env.Payload, &decoded)
	if decoded.TsMs != 12345 {
		t.Fatalf("expected 12345, got %d", decoded.TsMs)
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	if _, err := Decode([]byte("{not json")); err == nil {
		t.Fatal("expected error decoding malformed JSON")
	}
}
