package lwt

import (
	"container/heap"
	"time"
)

// timerTolerance is applied as "now + tolerance" when deciding whether a
// timer is due, absorbing scheduling jitter (spec §4.9, ~5ms).
const timerToleranceDuration = timerTolerance * time.Millisecond

// Timer is a future wake at an absolute deadline. Handler is invoked
// when the timer fires; returning true requests re-insertion with a new
// deadline (the handler is responsible for calling Reschedule before
// returning true).
type Timer struct {
	sched     *Scheduler
	deadline  time.Time
	handler   func() bool
	seq       uint64
	index     int // heap index, -1 when not in the heap
	cancelled bool
}

// Cancel removes the timer from the scheduler's heap. Cancelling a
// timer that already fired, or fired and was not rescheduled, is a
// harmless no-op.
func (t *Timer) Cancel() {
	if t.cancelled || t.index < 0 {
		t.cancelled = true
		return
	}
	t.cancelled = true
	heap.Remove(&t.sched.timers, t.index)
}

// Reschedule moves a firing timer's deadline forward by d from now; call
// it from within Handler before returning true.
func (t *Timer) Reschedule(d time.Duration) {
	t.deadline = t.sched.now().Add(d)
}

// timerHeap is a time-ordered min-heap, same-deadline ties broken by
// insertion order (FIFO), generalizing the original's std::multiset
// (spec §3, §5) in the style of the teacher's timerHeap in loop.go.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// ScheduleTimer arms a one-shot timer d in the future. handler runs on
// the scheduler goroutine when the timer fires (or is judged due within
// tolerance); if it returns true the timer must have called Reschedule
// and is re-inserted, otherwise it is discarded.
func (s *Scheduler) ScheduleTimer(d time.Duration, handler func() bool) *Timer {
	t := &Timer{
		sched:    s,
		deadline: s.now().Add(d),
		handler:  handler,
		seq:      s.nextTimerSeq(),
		index:    -1,
	}
	heap.Push(&s.timers, t)
	return t
}

// Sleep blocks the calling fiber for d, the runtime analog of the
// original Timer::sleep: a one-shot timer holds the caller on a
// blocking reference and unblocks it on expiration.
func (s *Scheduler) Sleep(d time.Duration) {
	ref := NewBlockingRef(s)
	s.ScheduleTimer(d, func() bool {
		ref.UnblockDefault()
		return false
	})
	ref.BlockCurrent()
}

// earliestDeadline returns the nearest pending timer's deadline, and
// whether one exists at all.
func (s *Scheduler) earliestDeadline() (time.Time, bool) {
	if len(s.timers) == 0 {
		return time.Time{}, false
	}
	return s.timers[0].deadline, true
}

// handleTimeouts pops and fires every timer due by now+tolerance,
// re-inserting those whose handler requested rescheduling.
func (s *Scheduler) handleTimeouts() (fired bool) {
	deadline := s.now().Add(timerToleranceDuration)
	for len(s.timers) > 0 && !s.timers[0].deadline.After(deadline) {
		t := heap.Pop(&s.timers).(*Timer)
		if t.cancelled {
			continue
		}
		fired = true
		if t.handler() && !t.cancelled {
			t.cancelled = false
			heap.Push(&s.timers, t)
		}
	}
	return fired
}
