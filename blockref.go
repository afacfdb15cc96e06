package lwt

// BlockingRef is a single-slot holder representing "a fiber currently
// suspended, wakeable only through me." It is the one mechanism the
// scheduler, I/O mixin, timers and the worker pool all use to encode a
// fiber's suspension (spec §1, §4.4).
//
// Go has no destructors, so a BlockingRef's "destruction is a
// cancellation point" contract (spec §9) is expressed as an explicit
// Close method: every BlockingRef MUST be released with
// `defer ref.Close()` at the point of declaration, or a held fiber can
// be stranded forever.
type BlockingRef struct {
	sched  *Scheduler
	thread *Fiber
	result Result
}

// NewBlockingRef creates an empty blocking reference bound to sched. Per
// the resolved Open Question in spec §9, the result slot defaults to
// Cancelled, so a reference that is Close()-d without ever being
// explicitly unblocked yields Cancelled to its holder.
func NewBlockingRef(sched *Scheduler) *BlockingRef {
	return &BlockingRef{sched: sched, result: Cancelled}
}

// BlockCurrent binds the scheduler's currently running fiber to this
// reference and yields to the scheduler; it returns the result written
// by whichever call eventually unblocks it. The reference must be empty
// when this is called.
func (r *BlockingRef) BlockCurrent() Result {
	f := r.sched.current
	if r.thread != nil {
		panic("lwt: BlockCurrent on an already-occupied blocking reference")
	}
	link(f, r)
	start := r.sched.now()
	r.sched.yield()
	if m := r.sched.metrics; m != nil {
		m.recordSuspend(r.sched.now().Sub(start))
	}
	return f.wakeResult
}

// Unblock releases the held fiber (if any), placing it back on the
// ready queue and recording result. It reports whether a fiber was
// actually held.
func (r *BlockingRef) Unblock(result Result) bool {
	f := r.thread
	if f == nil {
		r.result = result
		return false
	}
	unlink(f, r)
	r.result = result
	f.wakeResult = result
	r.sched.enqueueReady(f)
	return true
}

// UnblockDefault unblocks with Unblocked, the normal-wakeup result.
func (r *BlockingRef) UnblockDefault() bool { return r.Unblock(Unblocked) }

// Cancel is shorthand for Unblock(Cancelled).
func (r *BlockingRef) Cancel() bool { return r.Unblock(Cancelled) }

// Close unblocks any held fiber with the most recently recorded result
// (Cancelled by default — see NewBlockingRef). This is the reference's
// cancellation point; callers must defer it.
func (r *BlockingRef) Close() { r.Unblock(r.result) }

// link and unlink are the only code allowed to touch the fiber/reference
// back-pointer pair, keeping invariant #1 (r.thread == f <=> f.blocker
// == r) true by construction.
func link(f *Fiber, r *BlockingRef) {
	f.blocker = r
	r.thread = f
}

func unlink(f *Fiber, r *BlockingRef) {
	f.blocker = nil
	r.thread = nil
}
