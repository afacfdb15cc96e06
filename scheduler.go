package lwt

import (
	"time"
)

// Scheduler owns exactly one ready queue, one event multiplexer, one
// timer heap and one blocking-I/O worker pool, and drives them from a
// single call to Run. Only one fiber's goroutine is ever permitted to
// run at a time — the rest are parked on a channel receive — so every
// field below is touched by exactly one goroutine at any instant and
// needs no locking of its own (spec §2, §5).
type Scheduler struct {
	current *Fiber
	handoff chan struct{}

	readyHead, readyTail *Fiber

	stacks   *stackPool
	mux      multiplexer
	registry *descriptorRegistry
	timers   timerHeap
	timerSeq uint64

	pool *workerPool

	submitq *submitQueue
	wakeup  *wakeupFD
	state   *schedulerState

	logger   *logger
	metrics  *metrics

	fibers int // live (unfinished) fiber count, for the exit condition
}

// NewScheduler constructs a scheduler and its owned subsystems. The
// event multiplexer defaults to the platform-native implementation
// (epoll on linux, kqueue on darwin); inject a fake with WithMultiplexer
// for tests.
func NewScheduler(opts ...Option) (*Scheduler, error) {
	cfg := resolveOptions(opts)

	mux := cfg.multiplexer
	if mux == nil {
		var err error
		mux, err = newMultiplexer()
		if err != nil {
			return nil, err
		}
	}

	log := cfg.logger
	if log == nil {
		log = packageDefaultLogger()
	}

	s := &Scheduler{
		handoff:  make(chan struct{}),
		stacks:   newStackPool(cfg.stackSize, cfg.stacksPerPool),
		mux:      mux,
		registry: newDescriptorRegistry(mux),
		submitq:  newSubmitQueue(),
		state:    newSchedulerState(),
		logger:   log,
	}
	if cfg.metricsEnabled {
		s.metrics = newMetrics()
	}

	wakeup, err := newWakeupFD(s.submitq)
	if err != nil {
		return nil, err
	}
	if err := mux.Add(wakeup.fd(), ioReadable); err != nil {
		_ = wakeup.close()
		return nil, err
	}
	s.wakeup = wakeup

	s.pool = newWorkerPool(s, cfg.workers)
	return s, nil
}

func (s *Scheduler) log() *logger { return s.logger }

// Current returns the fiber presently running on this scheduler, or nil
// if called from outside any fiber (e.g. before the first Spawn, or
// from the goroutine that called Run directly).
func (s *Scheduler) Current() *Fiber { return s.current }

// Spawn creates a new fiber running fn and places it on the ready
// queue. A joinable fiber's completion can be awaited with Join; a
// detached one's resources are reclaimed the moment it finishes.
func (s *Scheduler) Spawn(fn func(*Fiber), joinable bool) (*Fiber, error) {
	top, err := s.stacks.acquireStack()
	if err != nil {
		return nil, err
	}
	f := &Fiber{
		sched:    s,
		joinable: joinable,
		stackTop: top,
		resume:   make(chan struct{}, 1),
	}
	s.fibers++
	go f.bootstrap(fn)
	s.enqueueReady(f)
	return f, nil
}

// enqueueReady appends f to the tail of the ready queue, guarded by
// onReady so a fiber can never appear in the queue twice (invariant
// #2, spec §8).
func (s *Scheduler) enqueueReady(f *Fiber) {
	if f.onReady {
		return
	}
	f.onReady = true
	f.next = nil
	f.prev = s.readyTail
	if s.readyTail != nil {
		s.readyTail.next = f
	} else {
		s.readyHead = f
	}
	s.readyTail = f
}

// dequeueReady pops the head of the ready queue, or returns nil if
// empty.
func (s *Scheduler) dequeueReady() *Fiber {
	f := s.readyHead
	if f == nil {
		return nil
	}
	s.readyHead = f.next
	if s.readyHead != nil {
		s.readyHead.prev = nil
	} else {
		s.readyTail = nil
	}
	f.next, f.prev = nil, nil
	f.onReady = false
	return f
}

// yield is called from the currently running fiber's goroutine to
// suspend it: it hands control back to Run and blocks until the
// scheduler resumes this fiber again (by sending on its resume channel
// in dispatchNext). This is the one and only suspension point every
// blocking call in this package funnels through (spec §4.4).
func (s *Scheduler) yield() {
	// Read current before the handoff: once Run has the handoff it owns
	// s.current again and clears it.
	f := s.current
	s.handoff <- struct{}{}
	<-f.resume
}

// now is the scheduler's time source, isolated behind a method so
// tests can substitute a fake clock without touching timer.go.
func (s *Scheduler) now() time.Time { return time.Now() }

func (s *Scheduler) nextTimerSeq() uint64 {
	s.timerSeq++
	return s.timerSeq
}

// readyLen counts the ready queue by walking it; only used for the
// optional metrics sampling path, so O(n) here is acceptable.
func (s *Scheduler) readyLen() int {
	n := 0
	for f := s.readyHead; f != nil; f = f.next {
		n++
	}
	return n
}

// dispatchNext pops the head of the ready queue, marks it current, and
// resumes its goroutine, then blocks until that fiber yields or
// finishes (signalled via handoff). It reports whether a fiber was
// actually run.
func (s *Scheduler) dispatchNext() bool {
	f := s.dequeueReady()
	if f == nil {
		return false
	}
	s.current = f
	f.resume <- struct{}{}
	<-s.handoff
	if f.finished {
		s.fibers--
	}
	s.current = nil
	return true
}

// Run drives the scheduler until there is no work left to do: no live
// (unfinished) fibers, no registered descriptor demand, and no pending
// timers (spec §4.5). A fiber that stays blocked with no timer or
// descriptor demand to wake it keeps Run waiting in the multiplexer
// until a Submit callback releases it. It returns once the system is
// quiescent; callers that want a
// long-running server Spawn a fiber that never returns, or call Run in
// a loop alongside external wakeups.
func (s *Scheduler) Run() {
	s.state.store(schedulerRunning)
	defer s.state.store(schedulerTerminated)

	for {
		if s.metrics != nil {
			s.metrics.recordReadyDepth(s.readyLen())
		}

		for s.dispatchNext() {
		}
		s.runSubmitted()
		for s.dispatchNext() {
		}

		if s.fibers == 0 && !s.registry.anyRequested() {
			if _, ok := s.earliestDeadline(); !ok {
				return
			}
		}

		if s.metrics != nil {
			s.metrics.recordDescriptorCount(len(s.registry.descriptors))
			s.metrics.recordWorkerPool(s.pool.busyCount(), len(s.pool.workers))
		}

		s.registry.reconcile()

		timeout := s.pollTimeout()
		s.state.store(schedulerSleeping)
		if s.submitq.hasPending() {
			timeout = 0
		}
		events, err := s.mux.Wait(timeout)
		s.state.store(schedulerRunning)
		if err != nil {
			s.logger.Error("multiplexer wait failed", "err", err)
			return
		}
		if len(events) > 0 {
			events = s.siftWakeup(events)
			if len(events) > 0 {
				s.registry.dispatch(events)
			}
		}

		s.runSubmitted()
		s.handleTimeouts()
	}
}

// siftWakeup removes the wakeup descriptor's event, if present, from
// events and handles it directly: the wakeup descriptor is registered
// straight with the multiplexer rather than through descriptorRegistry
// so that a pending external Submit never counts toward the
// registry's anyRequested exit condition (spec §4.5's quiescence check
// must ignore it, or Run would never return on an otherwise-idle
// scheduler that merely has Submit wired up).
func (s *Scheduler) siftWakeup(events []polledEvent) []polledEvent {
	out := events[:0]
	for _, ev := range events {
		if ev.fd == s.wakeup.fd() {
			s.wakeup.handleEvents(ev.events)
			continue
		}
		out = append(out, ev)
	}
	return out
}

// pollTimeout converts the nearest timer deadline into the millisecond
// timeout Wait expects: -1 (block indefinitely) if there are no timers,
// 0 if the earliest deadline has already passed, or otherwise the
// remaining time until it in whole milliseconds, capped at 1<<30.
func (s *Scheduler) pollTimeout() int {
	deadline, ok := s.earliestDeadline()
	if !ok {
		return -1
	}
	remaining := deadline.Sub(s.now())
	if remaining <= 0 {
		return 0
	}
	ms := remaining.Milliseconds()
	if ms > 1<<30 {
		ms = 1 << 30
	}
	return int(ms)
}

// Close releases the scheduler's multiplexer and worker pool. It does
// not touch any fiber still in flight; callers should only Close after
// Run has returned.
func (s *Scheduler) Close() error {
	s.state.store(schedulerTerminated)
	s.pool.close()
	_ = s.wakeup.close()
	return s.mux.Close()
}
