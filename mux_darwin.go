//go:build darwin

package lwt

import (
	"sync"

	"golang.org/x/sys/unix"
)

// kqueueMultiplexer wraps kqueue in level-triggered mode (EV_ADD without
// EV_CLEAR), grounded on the teacher's poller_darwin.go FastPoller.
type kqueueMultiplexer struct {
	mu  sync.Mutex
	kq  int
	buf [pollBatch]unix.Kevent_t
	// registered tracks which of {read, write} are currently armed per
	// fd, since kqueue has independent read/write filters rather than a
	// single combined mask like epoll.
	registered map[int]ioEvents
}

func newPlatformMultiplexer() (multiplexer, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, NewSystemCallError("kqueue", err.(unix.Errno))
	}
	unix.CloseOnExec(kq)
	return &kqueueMultiplexer{kq: kq, registered: make(map[int]ioEvents)}, nil
}

func (m *kqueueMultiplexer) apply(fd int, from, to ioEvents) error {
	var changes []unix.Kevent_t
	if from&ioReadable != 0 && to&ioReadable == 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE})
	}
	if from&ioWritable != 0 && to&ioWritable == 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE})
	}
	if to&ioReadable != 0 && from&ioReadable == 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE})
	}
	if to&ioWritable != 0 && from&ioWritable == 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE})
	}
	if len(changes) == 0 {
		return nil
	}
	if _, err := unix.Kevent(m.kq, changes, nil, nil); err != nil {
		return NewSystemCallError("kevent", err.(unix.Errno))
	}
	return nil
}

func (m *kqueueMultiplexer) Add(fd int, events ioEvents) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.apply(fd, 0, events); err != nil {
		return err
	}
	m.registered[fd] = events
	return nil
}

func (m *kqueueMultiplexer) Modify(fd int, events ioEvents) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.apply(fd, m.registered[fd], events); err != nil {
		return err
	}
	m.registered[fd] = events
	return nil
}

func (m *kqueueMultiplexer) Remove(fd int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.apply(fd, m.registered[fd], 0)
	delete(m.registered, fd)
	return err
}

func (m *kqueueMultiplexer) Wait(timeoutMillis int) ([]polledEvent, error) {
	var ts *unix.Timespec
	if timeoutMillis >= 0 {
		ts = &unix.Timespec{Sec: int64(timeoutMillis / 1000), Nsec: int64(timeoutMillis%1000) * 1_000_000}
	}
	n, err := unix.Kevent(m.kq, nil, m.buf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, NewSystemCallError("kevent", err.(unix.Errno))
	}
	out := make([]polledEvent, 0, n)
	byFD := make(map[int]ioEvents, n)
	for i := 0; i < n; i++ {
		kev := &m.buf[i]
		fd := int(kev.Ident)
		var events ioEvents
		switch kev.Filter {
		case unix.EVFILT_READ:
			events = ioReadable
		case unix.EVFILT_WRITE:
			events = ioWritable
		}
		if kev.Flags&unix.EV_ERROR != 0 {
			events |= ioError
		}
		if kev.Flags&unix.EV_EOF != 0 {
			events |= ioHangup
		}
		byFD[fd] |= events
	}
	for fd, events := range byFD {
		out = append(out, polledEvent{fd: fd, events: events})
	}
	return out, nil
}

func (m *kqueueMultiplexer) Close() error {
	return unix.Close(m.kq)
}
