package workerproc

import "testing"

func TestScrollBufferReturnsWrittenBytesInOrder(t *testing.T) {
	b := NewScrollBuffer(16)
	b.Write([]byte("hello"))
	if got := b.String(); got != "hello" {
		t.Fatalf("expected %q, got %q", "hello", got)
	}
	if b.Len() != 5 {
		t.Fatalf("expected len 5, got %d", b.Len())
	}
}

func TestScrollBufferOverwritesOldestWhenFull(t *testing.T) {
	b := NewScrollBuffer(4)
	b.Write([]byte("abcdef"))
	if got := b.String(); got != "cdef" {
		t.Fatalf("expected %q, got %q", "cdef", got)
	}
	if b.Len() != 4 {
		t.Fatalf("expected len 4, got %d", b.Len())
	}
}

func TestScrollBufferEmptyByDefault(t *testing.T) {
	b := NewScrollBuffer(8)
	if got := b.String(); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
	if b.Len() != 0 {
		t.Fatalf("expected len 0, got %d", b.Len())
	}
}

func TestScrollBufferNonPositiveSizeUsesDefault(t *testing.T) {
	b := NewScrollBuffer(0)
	if len(b.buf) != defaultScrollBufferSize {
		t.Fatalf("expected default size %d, got %d", defaultScrollBufferSize, len(b.buf))
	}
}

// Once the ring is full, head and tail advance together on every
// subsequent write and stay equal, so this exercises the steady state
// (not an edge case) rather than the initial fill.
func TestScrollBufferOrderCorrectAcrossMultipleWritesOnceFull(t *testing.T) {
	b := NewScrollBuffer(2)
	b.Write([]byte("ab"))
	b.Write([]byte("c"))
	if got := b.String(); got != "bc" {
		t.Fatalf("expected %q, got %q", "bc", got)
	}
	b.Write([]byte("d"))
	if got := b.String(); got != "cd" {
		t.Fatalf("expected %q, got %q", "cd", got)
	}
}
