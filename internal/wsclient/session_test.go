package wsclient

import (
	"context"
	"testing"
)

type fakeTokens struct{ token string }

func (f *fakeTokens) Token() string                     { return f.token }
func (f *fakeTokens) Refresh(ctx context.Context) error { return nil }

func TestStreamURLOmitsSinceSeqOnFirstConnect(t *testing.T) {
	s := New("https://api.relaycast.dev", &fakeTokens{token: "tok"}, NewReplayRing(), nil)
	out := make(chan Inbound, 1)

	got, err := s.streamURL(context.Background(), out, false)
	if err != nil {
		t.Fatal(err)
	}
	if want := "wss://api.relaycast.dev/v1/stream?token=tok"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestStreamURLAppendsSinceSeqOnReconnect(t *testing.T) {
	ring := NewReplayRing()
	ring.Push([]byte("a"))
	ring.Push([]byte("b"))

	s := New("https://api.relaycast.dev", &fakeTokens{token: "tok"}, ring, nil)
	out := make(chan Inbound, 1)

	got, err := s.streamURL(context.Background(), out, true)
	if err != nil {
		t.Fatal(err)
	}
	if want := "wss://api.relaycast.dev/v1/stream?since_seq=1&token=tok"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	select {
	case frame := <-out:
		t.Fatalf("expected no gap frame when ring has not evicted anything, got %+v", frame)
	default:
	}
}

func TestStreamURLEmitsGapFrameWhenRingEvicted(t *testing.T) {
	ring := NewReplayRingWithCapacity(1)
	ring.Push([]byte("a")) // seq 0, evicted by the next push
	ring.Push([]byte("b")) // seq 1

	s := New("https://api.relaycast.dev", &fakeTokens{token: "tok"}, ring, nil)
	out := make(chan Inbound, 1)

	got, err := s.streamURL(context.Background(), out, true)
	if err != nil {
		t.Fatal(err)
	}
	if want := "wss://api.relaycast.dev/v1/stream?since_seq=1&token=tok"; want != got {
		t.Fatalf("expected %q, got %q", want, got)
	}

	select {
	case frame := <-out:
		if !frame.Synthetic || frame.Value["type"] != "broker.replay_gap" {
			t.Fatalf("expected broker.replay_gap synthetic frame, got %+v", frame)
		}
	default:
		t.Fatal("expected a gap frame once the ring has evicted its earliest entry")
	}
}
