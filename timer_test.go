package lwt

import (
	"container/heap"
	"testing"
	"time"
)

func TestSchedulerSleepWakesFiber(t *testing.T) {
	sched := newTestScheduler(t)

	woke := false
	_, err := sched.Spawn(func(f *Fiber) {
		sched.Sleep(5 * time.Millisecond)
		woke = true
	}, Joinable)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	sched.Run()

	if !woke {
		t.Fatal("fiber never woke from Sleep")
	}
}

func TestTimerFIFOTieBreak(t *testing.T) {
	sched := newTestScheduler(t)

	deadline := sched.now()
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		heap.Push(&sched.timers, &Timer{
			sched:    sched,
			deadline: deadline,
			handler:  func() bool { order = append(order, i); return false },
			seq:      sched.nextTimerSeq(),
			index:    -1,
		})
	}

	sched.handleTimeouts()

	if len(order) != 3 {
		t.Fatalf("expected 3 timers fired, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("timers with equal deadline fired out of FIFO order: %v", order)
		}
	}
}

func TestTimerCancelBeforeFire(t *testing.T) {
	sched := newTestScheduler(t)

	fired := false
	timer := sched.ScheduleTimer(10*time.Millisecond, func() bool {
		fired = true
		return false
	})
	timer.Cancel()

	if len(sched.timers) != 0 {
		t.Fatalf("expected Cancel to remove the timer from the heap, heap has %d entries", len(sched.timers))
	}
	sched.handleTimeouts()

	if fired {
		t.Fatal("cancelled timer's handler ran")
	}
}

func TestTimerReschedule(t *testing.T) {
	sched := newTestScheduler(t)

	var fireCount int
	var timer *Timer
	timer = sched.ScheduleTimer(0, func() bool {
		fireCount++
		if fireCount < 3 {
			timer.Reschedule(0)
			return true
		}
		return false
	})
	_ = timer

	for i := 0; i < 3; i++ {
		sched.handleTimeouts()
	}

	if fireCount != 3 {
		t.Fatalf("expected 3 fires via Reschedule, got %d", fireCount)
	}
}
