package lwt

// Joinable and Detached name the two Spawn modes, so call sites read as
// sched.Spawn(fn, lwt.Joinable) rather than a bare boolean.
const (
	Joinable = true
	Detached = false
)

// Result is the value a blocking reference hands back to the fiber it
// suspended, once unblocked.
type Result int32

const (
	// Unblocked indicates a normal wakeup.
	Unblocked Result = 1
	// Cancelled indicates the blocking reference was explicitly
	// cancelled, or closed while still holding a fiber.
	Cancelled Result = 2
)

func (r Result) String() string {
	switch r {
	case Unblocked:
		return "Unblocked"
	case Cancelled:
		return "Cancelled"
	default:
		return "Result(?)"
	}
}

// Fiber is one cooperative task: a detached/joinable flag, a reserved
// stack accounting entry, a back-reference to the single blocking
// reference currently suspending it (nil if running or ready), and
// ready-queue ring pointers. A fiber's body runs on a real goroutine —
// see doc.go for why raw stack-switching isn't used for this part — but
// the scheduler only ever lets one fiber's goroutine proceed at a time,
// so from the caller's point of view it behaves exactly like the
// single-threaded cooperative task the spec describes.
type Fiber struct {
	sched *Scheduler
	tag   string

	joinable bool
	finished bool
	joiner   *BlockingRef
	joined   *Fiber

	blocker    *BlockingRef
	wakeResult Result

	// ready queue intrusive ring pointers; onReady guards invariant #2
	// (a fiber appears in the ready queue at most once).
	next, prev *Fiber
	onReady    bool

	stackTop uintptr

	resume chan struct{}
}

// Tag returns the fiber's free-form logging tag.
func (f *Fiber) Tag() string { return f.tag }

// SetTag sets the fiber's free-form logging tag, used to prefix log
// lines emitted while it is running.
func (f *Fiber) SetTag(tag string) { f.tag = tag }

// Finished reports whether the fiber's body has returned.
func (f *Fiber) Finished() bool { return f.finished }

// bootstrap is the goroutine entry point for a freshly spawned fiber. It
// waits for the scheduler's first dispatch before running the user
// function, mirroring the original's "construction schedules the fiber,
// the trampoline runs it only once actually resumed" sequencing (spec
// §4.3).
func (f *Fiber) bootstrap(fn func(*Fiber)) {
	<-f.resume
	f.sched.current = f

	func() {
		defer func() {
			if r := recover(); r != nil {
				f.sched.log().Error("fiber panic recovered", "tag", f.tag, "panic", r)
			}
		}()
		fn(f)
	}()

	f.finalize()
	f.sched.handoff <- struct{}{}
}

// finalize implements spec §4.3's finalization rules: release the
// stack and mark the fiber finished; if joinable, wake any joiner;
// storage is otherwise left for the joiner (or, if detached, there is
// nothing left to reclaim beyond the stack already released here).
func (f *Fiber) finalize() {
	f.sched.stacks.releaseStack(f.stackTop)
	f.finished = true
	if f.joinable {
		if f.joiner != nil {
			f.joiner.UnblockDefault()
		}
	}
}

// Join blocks the calling fiber until the target finishes. It returns
// true if the target reached normal completion, false if the join was
// cancelled (e.g. the joiner reference was closed while still pending).
// Join panics if called on a non-joinable fiber — joinability is a
// construction-time contract, not a runtime race.
func (f *Fiber) Join() bool {
	if !f.joinable {
		panic("lwt: Join called on a non-joinable fiber")
	}
	if f.finished {
		return true
	}
	ref := NewBlockingRef(f.sched)
	f.joiner = ref
	result := ref.BlockCurrent()
	f.joiner = nil
	return result == Unblocked
}
