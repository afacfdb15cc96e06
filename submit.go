package lwt

import "sync"

// chunkSize is the number of callbacks per node of the submission
// queue's linked list: 128 func values, about 1 KiB of task slots per
// chunk on a 64-bit platform.
const chunkSize = 128

// submitChunk is a fixed-size node in the external-submission queue,
// adapted from the teacher's ChunkedIngress: a singly-linked list of
// arrays avoids per-callback allocation under steady submission rates
// while keeping push/pop O(1) and lock-free-adjacent (the chunk itself
// still needs the queue's mutex, but resizing never happens).
type submitChunk struct {
	tasks   [chunkSize]func()
	next    *submitChunk
	readPos int
	writePos int
}

var submitChunkPool = sync.Pool{New: func() any { return &submitChunk{} }}

func newSubmitChunk() *submitChunk {
	c := submitChunkPool.Get().(*submitChunk)
	c.readPos, c.writePos, c.next = 0, 0, nil
	return c
}

func releaseSubmitChunk(c *submitChunk) {
	for i := range c.tasks {
		c.tasks[i] = nil
	}
	submitChunkPool.Put(c)
}

// submitQueue is a mutex-protected chunked FIFO of callbacks submitted
// from outside the scheduler's own goroutine. It exists because
// Scheduler.Submit is this runtime's only API entry point that may be
// called from a goroutine other than the one running Scheduler.Run —
// every other operation (Spawn, BlockCurrent, Unblock, ...) assumes the
// caller already is the scheduler or one of its fibers.
type submitQueue struct {
	mu         sync.Mutex
	head, tail *submitChunk
	length     int
}

func newSubmitQueue() *submitQueue {
	c := newSubmitChunk()
	return &submitQueue{head: c, tail: c}
}

func (q *submitQueue) push(fn func()) {
	q.mu.Lock()
	if q.tail.writePos == chunkSize {
		next := newSubmitChunk()
		q.tail.next = next
		q.tail = next
	}
	q.tail.tasks[q.tail.writePos] = fn
	q.tail.writePos++
	q.length++
	q.mu.Unlock()
}

// hasPending reports whether any callback is queued, without removing
// it. Used to re-check right before the scheduler actually blocks, to
// close the race between Submit observing schedulerRunning (and so
// skipping the wakeup write) and Run not yet having reached its own
// next runSubmitted call.
func (q *submitQueue) hasPending() bool {
	q.mu.Lock()
	pending := q.length > 0
	q.mu.Unlock()
	return pending
}

// drain removes and returns every callback queued so far, in FIFO
// order. It is only ever called from the scheduler's own goroutine.
func (q *submitQueue) drain() []func() {
	q.mu.Lock()
	if q.length == 0 {
		q.mu.Unlock()
		return nil
	}
	out := make([]func(), 0, q.length)
	for c := q.head; c != nil; {
		out = append(out, c.tasks[c.readPos:c.writePos]...)
		next := c.next
		releaseSubmitChunk(c)
		c = next
	}
	fresh := newSubmitChunk()
	q.head, q.tail, q.length = fresh, fresh, 0
	q.mu.Unlock()
	return out
}

// wakeupFD is the cross-goroutine signal that something was pushed to
// a submitQueue while the scheduler was blocked in mux.Wait: a polled
// descriptor whose only purpose is to make Wait return. Grounded on
// the teacher's createWakeFd (eventfd on Linux, self-pipe on Darwin).
type wakeupFD struct {
	readFD  int
	writeFD int
	queue   *submitQueue
}

func newWakeupFD(queue *submitQueue) (*wakeupFD, error) {
	r, w, err := createWakeFd(0, EFD_NONBLOCK|EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &wakeupFD{readFD: r, writeFD: w, queue: queue}, nil
}

func (w *wakeupFD) fd() int { return w.readFD }

// handleEvents drains the wake signal; the actual queued callbacks are
// run by Scheduler.Run after registry.dispatch returns, not here,
// so a callback that itself calls Submit doesn't recurse into dispatch.
func (w *wakeupFD) handleEvents(ioEvents) {
	_ = drainWakeUpFD(w.readFD)
}

func (w *wakeupFD) signal() {
	_ = submitGenericWakeup(uintptr(w.writeFD))
	_ = writeWakeByte(w.writeFD)
}

func (w *wakeupFD) close() error {
	return closeWakeFd(w.readFD, w.writeFD)
}

// Submit queues fn to run on the scheduler's own goroutine at the
// start of its next iteration, and wakes the scheduler if it is
// currently blocked in its multiplexer. Unlike every other Scheduler
// method, Submit is safe to call from any goroutine.
//
// The wakeup write is skipped unless the scheduler is observed in
// schedulerSleeping: if Run is anywhere else in its loop it will reach
// runSubmitted on its own before it next blocks, so the syscall would
// be wasted. This mirrors the state-checked wake skip the teacher's
// FastState poll()/Submit() dance used to avoid needless wakeups.
func (s *Scheduler) Submit(fn func()) {
	s.submitq.push(fn)
	if s.state.load() == schedulerSleeping {
		s.wakeup.signal()
	}
}

// runSubmitted executes every callback queued since the last drain.
// Called twice per Run iteration (after the ready queue first drains,
// and again after the multiplexer wait), on the scheduler's own
// goroutine.
func (s *Scheduler) runSubmitted() {
	for _, fn := range s.submitq.drain() {
		fn()
	}
}
