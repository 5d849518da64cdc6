package supervisor

import (
	"testing"
	"time"

	"github.com/AgentWorkforce/relay-broker/internal/domain"
)

func testSpec(name string) domain.AgentSpec {
	return domain.AgentSpec{
		Name:     name,
		Runtime:  domain.RuntimeClaudeCode,
		Command:  "claude",
		Channels: []string{"general"},
	}
}

func TestDefaultPolicyHasSaneValues(t *testing.T) {
	p := domain.DefaultRestartPolicy()
	if !p.Enabled || p.MaxRestarts != 5 || p.Cooldown != 2000*time.Millisecond || p.MaxConsecutiveFails != 3 {
		t.Fatalf("unexpected defaults: %+v", p)
	}
}

func TestRegisterAndUnregister(t *testing.T) {
	s := New()
	s.Register("w1", testSpec("w1"), "", "", domain.DefaultRestartPolicy())
	if !s.IsSupervised("w1") {
		t.Fatal("expected w1 to be supervised")
	}
	s.Unregister("w1")
	if s.IsSupervised("w1") {
		t.Fatal("expected w1 to no longer be supervised")
	}
}

func TestUnregisteredAgentReturnsNotOkOnExit(t *testing.T) {
	s := New()
	if _, ok := s.OnExit("unknown"); ok {
		t.Fatal("expected not-ok for unsupervised agent")
	}
}

func TestFirstCrashTriggersRestart(t *testing.T) {
	s := New()
	s.Register("w1", testSpec("w1"), "lead", "do stuff", domain.DefaultRestartPolicy())

	d, ok := s.OnExit("w1")
	if !ok || !d.ShouldRestart || d.Delay != 2000*time.Millisecond {
		t.Fatalf("expected Restart with 2000ms delay, got %+v ok=%v", d, ok)
	}
}

func TestExceedingMaxRestartsIsPermanentDeath(t *testing.T) {
	s := New()
	policy := domain.DefaultRestartPolicy()
	policy.MaxRestarts = 2
	policy.MaxConsecutiveFails = 10
	s.Register("w1", testSpec("w1"), "", "", policy)

	d, _ := s.OnExit("w1")
	if !d.ShouldRestart {
		t.Fatal("expected first crash to restart")
	}
	s.OnRestarted("w1")

	d, _ = s.OnExit("w1")
	if !d.ShouldRestart {
		t.Fatal("expected second crash to restart")
	}
	s.OnRestarted("w1")

	d, _ = s.OnExit("w1")
	if !d.Dead {
		t.Fatalf("expected third crash to be permanently dead, got %+v", d)
	}
}

func TestConsecutiveFailuresTriggerPermanentDeath(t *testing.T) {
	s := New()
	policy := domain.DefaultRestartPolicy()
	policy.MaxConsecutiveFails = 2
	policy.MaxRestarts = 10
	s.Register("w1", testSpec("w1"), "", "", policy)

	d, _ := s.OnExit("w1")
	if !d.ShouldRestart {
		t.Fatal("expected crash 1 to restart")
	}
	d, _ = s.OnExit("w1")
	if !d.ShouldRestart {
		t.Fatal("expected crash 2 to still restart")
	}
	d, _ = s.OnExit("w1")
	if !d.Dead {
		t.Fatalf("expected crash 3 to be permanently dead, got %+v", d)
	}
}

func TestOnRestartedResetsConsecutiveFailures(t *testing.T) {
	s := New()
	policy := domain.DefaultRestartPolicy()
	policy.MaxConsecutiveFails = 2
	policy.MaxRestarts = 10
	s.Register("w1", testSpec("w1"), "", "", policy)

	s.OnExit("w1")
	s.OnExit("w1")
	s.OnRestarted("w1")

	d, _ := s.OnExit("w1")
	if !d.ShouldRestart {
		t.Fatalf("expected restart after reset, got %+v", d)
	}
}

func TestDisabledPolicyIsPermanentDeath(t *testing.T) {
	s := New()
	policy := domain.DefaultRestartPolicy()
	policy.Enabled = false
	s.Register("w1", testSpec("w1"), "", "", policy)

	d, ok := s.OnExit("w1")
	if !ok || !d.Dead {
		t.Fatalf("expected permanent death, got %+v ok=%v", d, ok)
	}
}

func TestReleasedAgentNotRestarted(t *testing.T) {
	s := New()
	s.Register("w1", testSpec("w1"), "", "", domain.DefaultRestartPolicy())
	s.Unregister("w1")

	if _, ok := s.OnExit("w1"); ok {
		t.Fatal("expected not-ok for released agent")
	}
}

func TestPendingRestartsRespectsCooldown(t *testing.T) {
	s := New()
	policy := domain.DefaultRestartPolicy()
	policy.Cooldown = 0
	s.Register("w1", testSpec("w1"), "lead", "task", policy)

	s.OnExit("w1")

	pending := s.PendingRestarts()
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending restart, got %d", len(pending))
	}
	if pending[0].Spec.Name != "w1" || pending[0].Parent != "lead" || pending[0].InitialTask != "task" || pending[0].RestartCount != 1 {
		t.Fatalf("unexpected pending restart: %+v", pending[0])
	}
}

func TestPendingRestartsNotReturnedDuringCooldown(t *testing.T) {
	s := New()
	policy := domain.DefaultRestartPolicy()
	policy.Cooldown = 60 * time.Second
	s.Register("w1", testSpec("w1"), "", "", policy)

	s.OnExit("w1")

	if pending := s.PendingRestarts(); len(pending) != 0 {
		t.Fatalf("expected no pending restarts during cooldown, got %d", len(pending))
	}
}

func TestRestartCountTracksTotal(t *testing.T) {
	s := New()
	s.Register("w1", testSpec("w1"), "", "", domain.DefaultRestartPolicy())

	if s.RestartCount("w1") != 0 {
		t.Fatal("expected 0 restarts initially")
	}

	s.OnExit("w1")
	s.OnRestarted("w1")
	if s.RestartCount("w1") != 1 {
		t.Fatalf("expected 1 restart, got %d", s.RestartCount("w1"))
	}

	s.OnExit("w1")
	s.OnRestarted("w1")
	if s.RestartCount("w1") != 2 {
		t.Fatalf("expected 2 restarts, got %d", s.RestartCount("w1"))
	}
}

func TestRestartCountReturnsZeroForUnknown(t *testing.T) {
	s := New()
	if s.RestartCount("nope") != 0 {
		t.Fatal("expected 0 for unknown agent")
	}
}
