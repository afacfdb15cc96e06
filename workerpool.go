package lwt

import (
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// WorkerOperation is a blocking call handed to the worker pool to run
// on a dedicated OS thread instead of the cooperative scheduler — the
// directory enumeration in dirent.go is one; a blocking DNS lookup or
// disk read would be others. Grounded on IOServer::Operation and its
// ErrnoOperation subclass (original_source/src/lwt/IOServer.h): this
// package collapses both into a single method returning error instead
// of a perform()/performErrno() split, since Go already has a uniform
// error return convention.
type WorkerOperation interface {
	perform() error
}

// opCompletion is shared between the fiber that submitted an operation
// and the worker goroutine running it: the worker writes err exactly
// once, before the fiber is unblocked, giving a well-defined
// happens-before edge despite the two living on different goroutines.
type opCompletion struct {
	ref *BlockingRef
	err error
}

// queuedOp pairs one submitted operation with its completion slot. Its
// address is what actually crosses the request/reply pipes (see
// tokenFor): the Go-memory-safe analogue of IOServer::Worker passing a
// raw Operation* through a pipe in original_source/src/lwt/IOServer.cc.
type queuedOp struct {
	op         WorkerOperation
	completion *opCompletion
}

// ptrSize is the width of the token written to and read from a
// worker's pipes, matching the original's sizeof(operation) (a raw
// pointer).
const ptrSize = unsafe.Sizeof(uintptr(0))

// tokenFor returns qop's address as an opaque machine-word identity
// token, to be compared for equality only. The worker goroutine that
// converts a token back into a *queuedOp is handed that token by the
// same call (dispatch) that keeps qop alive via worker.active for the
// whole round trip, so there is no window in which qop could be
// collected out from under the in-flight token.
func tokenFor(qop *queuedOp) uintptr { return uintptr(unsafe.Pointer(qop)) }

// worker pins one goroutine to an OS thread (runtime.LockOSThread) and
// runs operations handed to it one at a time, communicating over two
// pipes exactly as IOServer::Worker does: a request pipe the scheduler
// writes a queuedOp token into, and a reply pipe the worker writes the
// same token back into once perform() returns (original_source's
// Worker::start/waitResult). The reply pipe's read end is registered
// as an ordinary polled descriptor, so the only code that ever touches
// scheduler state is the scheduler's own goroutine — the worker
// goroutine itself never calls back into it directly.
type worker struct {
	pool *workerPool

	reqRead, reqWrite     int
	replyRead, replyWrite int
	pfd                   *polledFD // wraps replyRead

	mu     sync.Mutex
	active *queuedOp // the operation currently in flight on this worker, if any
}

// workerPool is the fixed-size pool of such workers, matching
// IOServer's "available workers stack plus waiter deque" structure.
// Because Execute is only ever called from within a fiber, and only
// one fiber runs at a time, workerPool's own bookkeeping (idle stack,
// waiter queue) needs no lock of its own.
type workerPool struct {
	sched   *Scheduler
	workers []*worker
	idle    []*worker
	queue   []*queuedOp
}

func newWorkerPool(sched *Scheduler, n int) *workerPool {
	if n <= 0 {
		n = 4
	}
	p := &workerPool{sched: sched}
	for i := 0; i < n; i++ {
		w, err := newWorker(p)
		if err != nil {
			sched.logger.Error("worker pool: failed to start worker", "err", err)
			continue
		}
		sched.registry.register(w)
		p.workers = append(p.workers, w)
		p.idle = append(p.idle, w)
	}
	return p
}

func newWorker(pool *workerPool) (*worker, error) {
	var reqFDs, replyFDs [2]int
	if err := unix.Pipe2(reqFDs[:], unix.O_CLOEXEC); err != nil {
		return nil, NewSystemCallError("pipe2", err.(unix.Errno))
	}
	if err := unix.Pipe2(replyFDs[:], unix.O_CLOEXEC); err != nil {
		_ = unix.Close(reqFDs[0])
		_ = unix.Close(reqFDs[1])
		return nil, NewSystemCallError("pipe2", err.(unix.Errno))
	}
	pfd, err := newPolledFD(replyFDs[0])
	if err != nil {
		_ = unix.Close(reqFDs[0])
		_ = unix.Close(reqFDs[1])
		_ = unix.Close(replyFDs[0])
		_ = unix.Close(replyFDs[1])
		return nil, err
	}
	w := &worker{
		pool:       pool,
		reqRead:    reqFDs[0],
		reqWrite:   reqFDs[1],
		replyRead:  replyFDs[0],
		replyWrite: replyFDs[1],
		pfd:        pfd,
	}
	go w.loop()
	return w, nil
}

// blockingReadFull reads exactly len(buf) bytes from fd, retrying on
// EINTR. It reports false the moment fd is closed or errors out from
// under it — the request pipe's write end closing is how the worker
// goroutine is told to exit, matching the original's read() loop
// condition in IOServer::Worker::run.
func blockingReadFull(fd int, buf []byte) bool {
	for len(buf) > 0 {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n == 0 {
			return false
		}
		buf = buf[n:]
	}
	return true
}

func blockingWriteFull(fd int, buf []byte) error {
	for len(buf) > 0 {
		n, err := unix.Write(fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return NewSystemCallError("write", err.(unix.Errno))
		}
		buf = buf[n:]
	}
	return nil
}

// loop is the worker's body, running on its own locked OS thread for
// as long as the pool lives: block reading a token off the request
// pipe, run the operation it identifies, write the same token back.
func (w *worker) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	for {
		var buf [ptrSize]byte
		if !blockingReadFull(w.reqRead, buf[:]) {
			return
		}
		token := *(*uintptr)(unsafe.Pointer(&buf[0]))
		qop := (*queuedOp)(unsafe.Pointer(token))
		qop.completion.err = qop.op.perform()
		if err := blockingWriteFull(w.replyWrite, buf[:]); err != nil {
			return
		}
	}
}

func (w *worker) fd() int { return w.pfd.num }

// updateEvents only wants readable while an operation is actually in
// flight on this worker, mirroring blockingIO's pattern: an idle
// worker has nothing pending and so must not count toward the
// scheduler's quiescence check (spec §4.5) the way an always-armed
// descriptor would.
func (w *worker) updateEvents() ioEvents {
	w.mu.Lock()
	active := w.active != nil
	w.mu.Unlock()
	if active {
		return ioReadable
	}
	return 0
}

func (w *worker) polledFDState() *polledFD { return w.pfd }

// handleEvents drains the reply pipe's token and checks it against the
// operation this worker was last handed — a mismatch means the
// request/reply protocol itself is corrupted, matching
// IOServer::Worker::execute's assert(result==operation) — then
// unblocks the fiber the just-finished operation belonged to and
// immediately looks for the next queued operation to keep the worker
// busy.
func (w *worker) handleEvents(ioEvents) {
	var buf [ptrSize]byte
	n, err := w.pfd.rawRead(buf[:])
	if err != nil || n != len(buf) {
		return
	}
	gotToken := *(*uintptr)(unsafe.Pointer(&buf[0]))

	w.mu.Lock()
	qop := w.active
	w.active = nil
	w.mu.Unlock()
	if qop == nil {
		return
	}

	if gotToken != tokenFor(qop) {
		panic(&ProtocolViolationError{Detail: "worker pool reply token did not match the submitted operation"})
	}

	if qop.completion.ref != nil {
		qop.completion.ref.UnblockDefault()
	}
	w.pool.release(w)
}

func (p *workerPool) acquireIdle() *worker {
	n := len(p.idle)
	if n == 0 {
		return nil
	}
	w := p.idle[n-1]
	p.idle = p.idle[:n-1]
	return w
}

// dispatch hands qop to w: records it as the worker's in-flight
// operation, then writes its token through the request pipe.
func (p *workerPool) dispatch(w *worker, qop *queuedOp) error {
	w.mu.Lock()
	w.active = qop
	w.mu.Unlock()
	var buf [ptrSize]byte
	*(*uintptr)(unsafe.Pointer(&buf[0])) = tokenFor(qop)
	if err := blockingWriteFull(w.reqWrite, buf[:]); err != nil {
		w.mu.Lock()
		w.active = nil
		w.mu.Unlock()
		return err
	}
	return nil
}

// release is called once a worker's current operation has completed.
// If fibers are waiting for a worker, the longest-waiting one's
// operation is dispatched immediately (spec's IOServer waiter deque,
// FIFO); otherwise the worker goes back on the idle stack.
func (p *workerPool) release(w *worker) {
	if len(p.queue) > 0 {
		next := p.queue[0]
		p.queue = p.queue[1:]
		if err := p.dispatch(w, next); err != nil {
			next.completion.err = err
			if next.completion.ref != nil {
				next.completion.ref.UnblockDefault()
			}
			p.idle = append(p.idle, w)
			return
		}
		return
	}
	p.idle = append(p.idle, w)
}

func (p *workerPool) busyCount() int { return len(p.workers) - len(p.idle) }

// Execute runs op on a worker thread, suspending the calling fiber
// until it completes, and returns the error perform() produced. If no
// worker is immediately available and canBlock is false, Execute
// returns (false, nil) right away without running op at all — the
// caller decides what "busy" means for it (IOServer.executeNonBlocking).
func (p *workerPool) Execute(op WorkerOperation, canBlock bool) (bool, error) {
	qop := &queuedOp{op: op, completion: &opCompletion{}}

	if w := p.acquireIdle(); w != nil {
		ref := NewBlockingRef(p.sched)
		defer ref.Close()
		qop.completion.ref = ref
		if err := p.dispatch(w, qop); err != nil {
			p.idle = append(p.idle, w)
			return false, err
		}
		ref.BlockCurrent()
		return true, qop.completion.err
	}
	if !canBlock {
		return false, nil
	}
	ref := NewBlockingRef(p.sched)
	defer ref.Close()
	qop.completion.ref = ref
	p.queue = append(p.queue, qop)
	ref.BlockCurrent()
	return true, qop.completion.err
}

// close shuts every worker thread down and closes its pipes. Callers
// must only do this after Run has returned quiescent.
func (p *workerPool) close() {
	for _, w := range p.workers {
		p.sched.registry.unregister(w.pfd.num)
		_ = unix.Close(w.reqWrite)
		_ = w.pfd.rawClose()
		_ = unix.Close(w.replyWrite)
		_ = unix.Close(w.reqRead)
	}
}
