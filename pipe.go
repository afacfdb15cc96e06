package lwt

import "golang.org/x/sys/unix"

// Pipe is a fiber-blocking anonymous pipe, the non-socket counterpart
// to Socket, built on the same blockingIO mixin used throughout this
// package rather than a separate original_source type (the original
// library has no dedicated pipe wrapper; PolledFD/ThreadedFDMixin
// apply to any descriptor, pipes included).
type Pipe struct {
	*blockingIO
	sched *Scheduler
}

// NewPipe creates a connected read/write pipe pair, both ends
// registered with sched's descriptor registry.
func NewPipe(sched *Scheduler) (r, w *Pipe, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, nil, NewSystemCallError("pipe2", err.(unix.Errno))
	}
	r, err = newPipeFromFD(sched, fds[0])
	if err != nil {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		return nil, nil, err
	}
	w, err = newPipeFromFD(sched, fds[1])
	if err != nil {
		_ = r.Close()
		_ = unix.Close(fds[1])
		return nil, nil, err
	}
	return r, w, nil
}

func newPipeFromFD(sched *Scheduler, fd int) (*Pipe, error) {
	bio, err := newBlockingIO(sched, fd)
	if err != nil {
		return nil, err
	}
	p := &Pipe{blockingIO: bio, sched: sched}
	sched.registry.register(p)
	return p, nil
}

// Close closes this end of the pipe and unregisters it.
func (p *Pipe) Close() error {
	p.sched.registry.unregister(p.fd())
	return p.blockingIO.Close()
}
