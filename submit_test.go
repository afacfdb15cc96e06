package lwt

import (
	"testing"
	"time"
)

// TestSubmitWakesBlockedRun exercises the one scheduler entry point meant
// to be called from outside its own goroutine: Run is parked in mux.Wait
// with nothing else to do, and a concurrent Submit must both run its
// callback and make Run notice there is something to do.
func TestSubmitWakesBlockedRun(t *testing.T) {
	sched := newTestScheduler(t)

	// Keep the scheduler non-quiescent (and therefore blocked in Wait,
	// not returned) for long enough for the Submit below to land.
	sched.ScheduleTimer(500*time.Millisecond, func() bool { return false })

	done := make(chan struct{})
	go func() {
		sched.Run()
		close(done)
	}()

	ran := make(chan struct{})
	time.Sleep(10 * time.Millisecond) // let Run reach mux.Wait at least once
	sched.Submit(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit callback never ran")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run never returned")
	}
}

func TestSubmitQueueFIFOOrder(t *testing.T) {
	q := newSubmitQueue()
	var order []int
	for i := 0; i < chunkSize+5; i++ {
		i := i
		q.push(func() { order = append(order, i) })
	}
	for _, fn := range q.drain() {
		fn()
	}
	if len(order) != chunkSize+5 {
		t.Fatalf("got %d callbacks, want %d", len(order), chunkSize+5)
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("callbacks ran out of FIFO order at index %d: %v", i, order)
		}
	}
}

func TestSubmitQueueDrainEmptyReturnsNil(t *testing.T) {
	q := newSubmitQueue()
	if out := q.drain(); out != nil {
		t.Fatalf("drain of empty queue returned %v, want nil", out)
	}
}
