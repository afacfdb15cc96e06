package lwt

import (
	"golang.org/x/sys/unix"
)

// descriptor is the closed set of polled-descriptor implementors
// (socket, pipe, worker-pool pipe-end), collapsed from the original's
// deep virtual hierarchy into one small interface per the REDESIGN
// FLAGS guidance.
type descriptor interface {
	// fd returns the underlying OS file descriptor.
	fd() int
	// handleEvents is invoked by the registry's dispatch loop with the
	// readiness mask reported for this descriptor.
	handleEvents(events ioEvents)
	// updateEvents returns the mask this descriptor currently wants to
	// be woken for; it is the sole path through which the multiplexer
	// learns the requested mask (spec §4.7).
	updateEvents() ioEvents
}

// polledFD is the floor every descriptor embeds: it sets the OS fd
// non-blocking at construction and exposes raw read/write/close that go
// straight to the kernel.
type polledFD struct {
	num      int
	current  ioEvents // mask last told to the multiplexer
	requested ioEvents // mask updateEvents most recently returned
	closed   bool
}

func newPolledFD(num int) (*polledFD, error) {
	if err := unix.SetNonblock(num, true); err != nil {
		return nil, NewSystemCallError("fcntl(O_NONBLOCK)", err.(unix.Errno))
	}
	return &polledFD{num: num}, nil
}

func (p *polledFD) fd() int { return p.num }

func (p *polledFD) rawRead(buf []byte) (int, error) {
	n, err := unix.Read(p.num, buf)
	if err != nil {
		return n, err
	}
	return n, nil
}

func (p *polledFD) rawWrite(buf []byte) (int, error) {
	n, err := unix.Write(p.num, buf)
	if err != nil {
		return n, err
	}
	return n, nil
}

func (p *polledFD) rawClose() error {
	if p.closed {
		return &ClosedError{Op: "close"}
	}
	p.closed = true
	return unix.Close(p.num)
}

// descriptorRegistry tracks every live descriptor registered with one
// scheduler's multiplexer and implements the reconcile-before-poll and
// deferred-destruction-during-dispatch disciplines from spec §4.5/§4.6.
type descriptorRegistry struct {
	mux         multiplexer
	descriptors map[int]descriptor

	inDispatch  bool
	pendingDel  map[int]struct{}
}

func newDescriptorRegistry(mux multiplexer) *descriptorRegistry {
	return &descriptorRegistry{
		mux:         mux,
		descriptors: make(map[int]descriptor),
		pendingDel:  make(map[int]struct{}),
	}
}

// register adds d to the registry. It does not yet touch the
// multiplexer: registration with the OS happens during reconcile,
// driven by d.updateEvents().
func (r *descriptorRegistry) register(d descriptor) {
	r.descriptors[d.fd()] = d
}

// unregister removes d. If called while the dispatch loop is iterating
// the current batch, the actual multiplexer removal and map deletion is
// deferred until the batch finishes, so that a handler destroying
// another descriptor earlier in the same batch cannot cause that other
// descriptor's later event in the batch to be dispatched against freed
// state (spec §4.6, §8 scenario 6).
func (r *descriptorRegistry) unregister(fd int) {
	if r.inDispatch {
		r.pendingDel[fd] = struct{}{}
		return
	}
	r.removeNow(fd)
}

func (r *descriptorRegistry) removeNow(fd int) {
	if d, ok := r.descriptors[fd]; ok {
		if pfd := descriptorState(d); pfd != nil && pfd.current != 0 {
			_ = r.mux.Remove(fd)
		}
		delete(r.descriptors, fd)
	}
}

// reconcile walks every registered descriptor and translates its
// requested mask into add/modify/remove calls against the multiplexer,
// exactly once per scheduler tick, immediately before blocking in Wait.
func (r *descriptorRegistry) reconcile() {
	for fd, d := range r.descriptors {
		want := d.updateEvents()
		pfd := descriptorState(d)
		if pfd == nil {
			continue
		}
		switch {
		case want == 0 && pfd.current != 0:
			_ = r.mux.Remove(fd)
			pfd.current = 0
		case want != 0 && pfd.current == 0:
			if err := r.mux.Add(fd, want); err == nil {
				pfd.current = want
			}
		case want != pfd.current:
			if err := r.mux.Modify(fd, want); err == nil {
				pfd.current = want
			}
		}
	}
}

// anyRequested reports whether any registered descriptor currently
// wants to be woken; the scheduler's exit condition depends on this.
func (r *descriptorRegistry) anyRequested() bool {
	for _, d := range r.descriptors {
		if pfd := descriptorState(d); pfd != nil && pfd.current != 0 {
			return true
		}
	}
	return false
}

// dispatch fires handleEvents for each reported event, honoring the
// in-dispatch/deferred-delete discipline.
func (r *descriptorRegistry) dispatch(events []polledEvent) {
	r.inDispatch = true
	for _, ev := range events {
		if _, deleted := r.pendingDel[ev.fd]; deleted {
			continue
		}
		d, ok := r.descriptors[ev.fd]
		if !ok {
			continue
		}
		d.handleEvents(ev.events)
		if _, deleted := r.pendingDel[ev.fd]; deleted {
			continue
		}
	}
	r.inDispatch = false
	for fd := range r.pendingDel {
		r.removeNow(fd)
	}
	r.pendingDel = make(map[int]struct{})
}

// descriptorState extracts the embedded *polledFD from a descriptor, if
// it exposes one, for registry bookkeeping (current mask tracking).
func descriptorState(d descriptor) *polledFD {
	if s, ok := d.(interface{ polledFDState() *polledFD }); ok {
		return s.polledFDState()
	}
	return nil
}
