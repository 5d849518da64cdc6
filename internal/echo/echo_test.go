package echo

import "testing"

func TestFormatTemplate(t *testing.T) {
	got := FormatTemplate("alice", "e1", "hello")
	want := "Relay message from alice [e1]: hello"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestFeedOutputDetectsTemplate(t *testing.T) {
	v := New()
	tmpl := FormatTemplate("alice", "e1", "hello")
	v.Track("d1", "e1", "", tmpl)

	if got := v.FeedOutput("some unrelated prompt\n"); len(got) != 0 {
		t.Fatalf("expected no match, got %v", got)
	}

	got := v.FeedOutput("\x1b[32m" + tmpl + "\x1b[0m\n")
	if len(got) != 1 || got[0].DeliveryID != "d1" {
		t.Fatalf("expected match for d1, got %v", got)
	}
	if v.PendingCount() != 0 {
		t.Fatalf("expected tracking cleared after match, got %d pending", v.PendingCount())
	}
}

func TestRetryOrFailAdvancesRounds(t *testing.T) {
	v := New()
	v.Track("d1", "e1", "", "tmpl")

	round, ok := v.RetryOrFail("d1")
	if !ok || round != 2 {
		t.Fatalf("expected round 2 ok, got round=%d ok=%v", round, ok)
	}
	round, ok = v.RetryOrFail("d1")
	if !ok || round != 3 {
		t.Fatalf("expected round 3 ok, got round=%d ok=%v", round, ok)
	}
	round, ok = v.RetryOrFail("d1")
	if ok {
		t.Fatalf("expected ceiling exceeded to fail, got round=%d ok=%v", round, ok)
	}
	if v.PendingCount() != 0 {
		t.Fatalf("expected delivery untracked after ceiling, got %d pending", v.PendingCount())
	}
}

func TestRetryOrFailUnknownDelivery(t *testing.T) {
	v := New()
	if _, ok := v.RetryOrFail("missing"); ok {
		t.Fatal("expected unknown delivery to report not-ok")
	}
}

func TestFeedOutputMatchesTemplateSplitAcrossChunks(t *testing.T) {
	v := New()
	tmpl := FormatTemplate("alice", "e1", "hello world")
	v.Track("d1", "e1", "", tmpl)

	split := len(tmpl) / 2
	if got := v.FeedOutput(tmpl[:split]); len(got) != 0 {
		t.Fatalf("expected no match on partial template, got %v", got)
	}
	got := v.FeedOutput(tmpl[split:])
	if len(got) != 1 || got[0].DeliveryID != "d1" {
		t.Fatalf("expected match for d1 once the template completes, got %v", got)
	}
}

func TestMultiplePendingIndependentlyTracked(t *testing.T) {
	v := New()
	v.Track("d1", "e1", "", "tmplA")
	v.Track("d2", "e2", "", "tmplB")

	got := v.FeedOutput("prefix tmplB suffix")
	if len(got) != 1 || got[0].DeliveryID != "d2" {
		t.Fatalf("expected only d2 matched, got %v", got)
	}
	if v.PendingCount() != 1 {
		t.Fatalf("expected 1 remaining pending, got %d", v.PendingCount())
	}
}
