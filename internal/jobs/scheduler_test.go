package jobs

import (
	"testing"
	"time"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := NewScheduler()
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func TestCronValidatesExpression(t *testing.T) {
	s := newTestScheduler(t)

	if err := s.Cron("good", "*/5 * * * *", func() {}); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := s.Cron("bad", "every five minutes", func() {}); err == nil {
		t.Error("invalid expression must fail registration")
	}
	if err := s.Cron("too-many-fields", "0 0 * * * *", func() {}); err == nil {
		t.Error("six-field expression must fail the five-field parser")
	}
}

func TestRegisterSweepPicksCronOverInterval(t *testing.T) {
	s := newTestScheduler(t)

	if err := registerSweep(s, "interval_job", "", time.Hour, func() {}); err != nil {
		t.Errorf("empty expression should fall back to the interval: %v", err)
	}
	if err := registerSweep(s, "cron_job", "0 * * * *", time.Hour, func() {}); err != nil {
		t.Errorf("cron expression rejected: %v", err)
	}
	if err := registerSweep(s, "bad_cron_job", "not a schedule", time.Hour, func() {}); err == nil {
		t.Error("a configured but invalid expression must fail, not fall back")
	}
}
