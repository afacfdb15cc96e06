package lwt

import "sync/atomic"

// schedulerState tracks what Run is currently doing, as a lock-free CAS
// state machine rather than a mutex-guarded field: Submit (the one
// method callable from outside the scheduler's own goroutine) reads it
// on every call and must not contend with Run's own hot path.
//
//	schedulerAwake    -> schedulerRunning     [Run starts]
//	schedulerRunning  -> schedulerSleeping    [about to call mux.Wait]
//	schedulerSleeping -> schedulerRunning     [mux.Wait returned]
//	schedulerRunning  -> schedulerTerminated  [Run returns, quiescent]
//	(any)             -> schedulerTerminated  [Close]
type schedulerLifecycle uint32

const (
	schedulerAwake schedulerLifecycle = iota
	schedulerRunning
	schedulerSleeping
	schedulerTerminated
)

// schedulerState is a cache-line-padded atomic holder for a
// schedulerLifecycle value. The padding matters here specifically
// because it is polled from Submit, which may be called concurrently
// from many unrelated goroutines while Run's own goroutine is writing
// it every iteration; without padding those writers would false-share
// the cache line with whatever the allocator places next to it.
type schedulerState struct {
	_ [64]byte
	v atomic.Uint32
	_ [60]byte
}

func newSchedulerState() *schedulerState {
	s := &schedulerState{}
	s.v.Store(uint32(schedulerAwake))
	return s
}

func (s *schedulerState) load() schedulerLifecycle {
	return schedulerLifecycle(s.v.Load())
}

func (s *schedulerState) store(v schedulerLifecycle) {
	s.v.Store(uint32(v))
}

func (s *schedulerState) compareAndSwap(from, to schedulerLifecycle) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
