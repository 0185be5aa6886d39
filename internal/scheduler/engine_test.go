package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/sandeepkv93/shiftd/internal/model"
)

func TestEngineEmitsInTriggerOrder(t *testing.T) {
	engine := NewEngine(8)
	engine.Start()
	defer engine.Stop()

	now := time.Now()
	if err := engine.Schedule(Wakeup{TaskID: 2, At: now.Add(80 * time.Millisecond)}); err != nil {
		t.Fatalf("schedule later: %v", err)
	}
	if err := engine.Schedule(Wakeup{TaskID: 1, At: now.Add(20 * time.Millisecond)}); err != nil {
		t.Fatalf("schedule sooner: %v", err)
	}

	first := waitWakeup(t, engine.C(), time.Second)
	second := waitWakeup(t, engine.C(), time.Second)
	if first.TaskID != 1 || second.TaskID != 2 {
		t.Fatalf("unexpected order: first=%d second=%d", first.TaskID, second.TaskID)
	}
	waitPending(t, engine, 0, time.Second)
}

func TestScheduleReplacesRegistration(t *testing.T) {
	engine := NewEngine(8)
	engine.Start()
	defer engine.Stop()

	now := time.Now()
	if err := engine.Schedule(Wakeup{TaskID: 7, Level: model.ReminderSilent, At: now.Add(20 * time.Millisecond)}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := engine.Schedule(Wakeup{TaskID: 7, Level: model.ReminderAlarm, At: now.Add(100 * time.Millisecond), Priority: PriorityAlarm}); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if engine.Pending() != 1 {
		t.Fatalf("expected one registration, got %d", engine.Pending())
	}
	reg, ok := engine.Registered(7)
	if !ok || reg.Level != model.ReminderAlarm {
		t.Fatalf("expected latest registration, got %#v %v", reg, ok)
	}

	got := waitWakeup(t, engine.C(), time.Second)
	if got.Level != model.ReminderAlarm || time.Since(now) < 90*time.Millisecond {
		t.Fatalf("expected only the replacement to fire, got %#v after %v", got, time.Since(now))
	}
	expectNoWakeup(t, engine.C(), 80*time.Millisecond)
}

func TestCancelIsIdempotent(t *testing.T) {
	engine := NewEngine(4)
	engine.Start()
	defer engine.Stop()

	if err := engine.Schedule(Wakeup{TaskID: 3, At: time.Now().Add(40 * time.Millisecond)}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !engine.Cancel(3) {
		t.Fatal("expected first cancel to remove registration")
	}
	if engine.Cancel(3) {
		t.Fatal("expected second cancel to be a no-op")
	}
	if engine.Cancel(99) {
		t.Fatal("expected cancel of unknown id to be a no-op")
	}
	expectNoWakeup(t, engine.C(), 100*time.Millisecond)
}

func TestAlarmWinsEqualInstant(t *testing.T) {
	engine := NewEngine(8)
	at := time.Now().Add(30 * time.Millisecond)
	if err := engine.Schedule(Wakeup{TaskID: 1, At: at, Priority: PriorityDeferrable}); err != nil {
		t.Fatalf("schedule deferrable: %v", err)
	}
	if err := engine.Schedule(Wakeup{TaskID: 2, At: at, Priority: PriorityAlarm}); err != nil {
		t.Fatalf("schedule alarm: %v", err)
	}
	engine.Start()
	defer engine.Stop()

	first := waitWakeup(t, engine.C(), time.Second)
	second := waitWakeup(t, engine.C(), time.Second)
	if first.TaskID != 2 || second.TaskID != 1 {
		t.Fatalf("expected alarm first, got %d then %d", first.TaskID, second.TaskID)
	}
}

func TestAlarmWakeupsAreNeverDropped(t *testing.T) {
	engine := NewEngine(1)
	engine.Start()
	defer engine.Stop()

	at := time.Now().Add(10 * time.Millisecond)
	const n = 12
	for i := 0; i < n; i++ {
		if err := engine.Schedule(Wakeup{TaskID: int64(i + 1), At: at, Priority: PriorityAlarm}); err != nil {
			t.Fatalf("schedule: %v", err)
		}
	}

	time.Sleep(80 * time.Millisecond)
	for i := 0; i < n; i++ {
		waitWakeup(t, engine.C(), time.Second)
	}
}

func TestDeferrableWakeupsRetryWhenConsumerLags(t *testing.T) {
	engine := NewEngine(1)
	engine.Start()
	defer engine.Stop()

	at := time.Now().Add(10 * time.Millisecond)
	const n = 12
	for i := 0; i < n; i++ {
		if err := engine.Schedule(Wakeup{TaskID: int64(i + 1), At: at, Priority: PriorityDeferrable}); err != nil {
			t.Fatalf("schedule: %v", err)
		}
	}

	time.Sleep(80 * time.Millisecond)
	seen := make(map[int64]bool, n)
	for i := 0; i < n; i++ {
		seen[waitWakeup(t, engine.C(), time.Second).TaskID] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct wake-ups, got %d", n, len(seen))
	}
	if engine.Deferred() == 0 {
		t.Fatal("expected deferred deliveries with a lagging consumer")
	}
}

func TestCancelDropsBackloggedWakeup(t *testing.T) {
	engine := NewEngine(1)
	engine.Start()
	defer engine.Stop()

	at := time.Now().Add(10 * time.Millisecond)
	for i := int64(1); i <= 3; i++ {
		if err := engine.Schedule(Wakeup{TaskID: i, At: at}); err != nil {
			t.Fatalf("schedule: %v", err)
		}
	}
	time.Sleep(60 * time.Millisecond)
	engine.Cancel(3)

	got := map[int64]bool{}
	got[waitWakeup(t, engine.C(), time.Second).TaskID] = true
	got[waitWakeup(t, engine.C(), time.Second).TaskID] = true
	if got[3] {
		t.Fatalf("cancelled wake-up was delivered: %#v", got)
	}
	expectNoWakeup(t, engine.C(), 80*time.Millisecond)
}

func TestScheduleValidatesTriggerTime(t *testing.T) {
	engine := NewEngine(1)
	if err := engine.Schedule(Wakeup{TaskID: 1}); err != ErrInvalidTriggerTime {
		t.Fatalf("expected ErrInvalidTriggerTime, got %v", err)
	}
}

func TestScheduleAfterStop(t *testing.T) {
	engine := NewEngine(1)
	engine.Start()
	engine.Stop()
	if err := engine.Schedule(Wakeup{TaskID: 1, At: time.Now()}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if _, ok := <-engine.C(); ok {
		t.Fatal("expected closed channel after stop")
	}
}

func TestPriorityFor(t *testing.T) {
	if p, ok := PriorityFor(model.ReminderAlarm); !ok || p != PriorityAlarm {
		t.Fatalf("alarm level: %v %v", p, ok)
	}
	if p, ok := PriorityFor(model.ReminderSilent); !ok || p != PriorityDeferrable {
		t.Fatalf("silent level: %v %v", p, ok)
	}
	for _, level := range []model.ReminderLevel{model.ReminderNone, 5, -1} {
		if _, ok := PriorityFor(level); ok {
			t.Fatalf("level %d should have no wake primitive", level)
		}
	}
}

func waitWakeup(t *testing.T, ch <-chan Wakeup, timeout time.Duration) Wakeup {
	t.Helper()
	select {
	case w := <-ch:
		return w
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for wake-up")
		return Wakeup{}
	}
}

func waitPending(t *testing.T, engine *Engine, want int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for engine.Pending() != want {
		if time.Now().After(deadline) {
			t.Fatalf("pending registrations = %d, want %d", engine.Pending(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func expectNoWakeup(t *testing.T, ch <-chan Wakeup, wait time.Duration) {
	t.Helper()
	select {
	case w := <-ch:
		t.Fatalf("unexpected wake-up: %#v", w)
	case <-time.After(wait):
	}
}
