//go:build linux

package lwt

import (
	"sync"

	"golang.org/x/sys/unix"
)

// epollMultiplexer wraps epoll in level-triggered mode (no EPOLLET),
// grounded on the original's EPoll class and the teacher's
// poller_linux.go FastPoller, simplified to this package's smaller
// multiplexer contract.
type epollMultiplexer struct {
	mu   sync.Mutex
	epfd int
	buf  [pollBatch]unix.EpollEvent
}

func newPlatformMultiplexer() (multiplexer, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, NewSystemCallError("epoll_create1", err.(unix.Errno))
	}
	return &epollMultiplexer{epfd: epfd}, nil
}

func (m *epollMultiplexer) Add(fd int, events ioEvents) error {
	ev := unix.EpollEvent{Events: toEpollMask(events), Fd: int32(fd)}
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return NewSystemCallError("epoll_ctl(add)", err.(unix.Errno))
	}
	return nil
}

func (m *epollMultiplexer) Modify(fd int, events ioEvents) error {
	ev := unix.EpollEvent{Events: toEpollMask(events), Fd: int32(fd)}
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return NewSystemCallError("epoll_ctl(mod)", err.(unix.Errno))
	}
	return nil
}

func (m *epollMultiplexer) Remove(fd int) error {
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return NewSystemCallError("epoll_ctl(del)", err.(unix.Errno))
	}
	return nil
}

func (m *epollMultiplexer) Wait(timeoutMillis int) ([]polledEvent, error) {
	n, err := unix.EpollWait(m.epfd, m.buf[:], timeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, NewSystemCallError("epoll_wait", err.(unix.Errno))
	}
	out := make([]polledEvent, n)
	for i := 0; i < n; i++ {
		out[i] = polledEvent{fd: int(m.buf[i].Fd), events: fromEpollMask(m.buf[i].Events)}
	}
	return out, nil
}

func (m *epollMultiplexer) Close() error {
	return unix.Close(m.epfd)
}

func toEpollMask(events ioEvents) uint32 {
	var mask uint32
	if events&ioReadable != 0 {
		mask |= unix.EPOLLIN
	}
	if events&ioWritable != 0 {
		mask |= unix.EPOLLOUT
	}
	return mask
}

func fromEpollMask(mask uint32) ioEvents {
	var events ioEvents
	if mask&unix.EPOLLIN != 0 {
		events |= ioReadable
	}
	if mask&unix.EPOLLOUT != 0 {
		events |= ioWritable
	}
	if mask&unix.EPOLLERR != 0 {
		events |= ioError
	}
	if mask&unix.EPOLLHUP != 0 {
		events |= ioHangup
	}
	return events
}
