package lwt

import (
	"golang.org/x/sys/unix"
)

// Socket is a fiber-blocking network socket, grounded on Socket.h and
// ThreadedSocket.h (original_source/src/lwt): Socket.h's raw
// getsockopt/bind/listen/accept/connect/recv/send/shutdown wrappers,
// made fiber-blocking the way ThreadedSocket layers them over
// ThreadedFDMixin.
type Socket struct {
	*blockingIO
	sched *Scheduler
}

// NewSocket creates a socket of the given domain/type/protocol (see
// socket(2)), registers it with sched's descriptor registry, and sets
// it non-blocking.
func NewSocket(sched *Scheduler, domain, typ, protocol int) (*Socket, error) {
	fd, err := unix.Socket(domain, typ, protocol)
	if err != nil {
		return nil, NewSystemCallError("socket", err.(unix.Errno))
	}
	return newSocketFromFD(sched, fd)
}

func newSocketFromFD(sched *Scheduler, fd int) (*Socket, error) {
	bio, err := newBlockingIO(sched, fd)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	s := &Socket{blockingIO: bio, sched: sched}
	sched.registry.register(s)
	return s, nil
}

// Bind binds the socket to addr.
func (s *Socket) Bind(addr unix.Sockaddr) error {
	if err := unix.Bind(s.fd(), addr); err != nil {
		return NewSystemCallError("bind", err.(unix.Errno))
	}
	return nil
}

// Listen marks the socket as accepting connections.
func (s *Socket) Listen(backlog int) error {
	if err := unix.Listen(s.fd(), backlog); err != nil {
		return NewSystemCallError("listen", err.(unix.Errno))
	}
	return nil
}

// SetSockoptInt is a thin wrapper over setsockopt(2) for integer
// options (SO_REUSEADDR and friends), grounded on Socket::setsockopt.
func (s *Socket) SetSockoptInt(level, opt, value int) error {
	if err := unix.SetsockoptInt(s.fd(), level, opt, value); err != nil {
		return NewSystemCallError("setsockopt", err.(unix.Errno))
	}
	return nil
}

// Accept blocks the calling fiber until a connection arrives, then
// returns a new Socket for it.
func (s *Socket) Accept() (*Socket, unix.Sockaddr, error) {
	for {
		nfd, sa, err := unix.Accept(s.fd())
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			if s.readWaiter.BlockCurrent() != Unblocked {
				return nil, nil, &CancelledError{Op: "accept"}
			}
			continue
		}
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, nil, NewSystemCallError("accept", err.(unix.Errno))
		}
		client, err := newSocketFromFD(s.sched, nfd)
		if err != nil {
			return nil, nil, err
		}
		return client, sa, nil
	}
}

// Connect blocks the calling fiber until the connection completes or
// fails, handling the POSIX "connect returns EINPROGRESS, then
// readiness is reported as writable" sequence.
func (s *Socket) Connect(addr unix.Sockaddr) error {
	err := unix.Connect(s.fd(), addr)
	if err == nil {
		return nil
	}
	if err != unix.EINPROGRESS {
		return NewSystemCallError("connect", err.(unix.Errno))
	}
	if s.writeWaiter.BlockCurrent() != Unblocked {
		return &CancelledError{Op: "connect"}
	}
	errno, gerr := unix.GetsockoptInt(s.fd(), unix.SOL_SOCKET, unix.SO_ERROR)
	if gerr != nil {
		return NewSystemCallError("getsockopt(SO_ERROR)", gerr.(unix.Errno))
	}
	if errno != 0 {
		return NewSystemCallError("connect", unix.Errno(errno))
	}
	return nil
}

// Recv is Read with recv(2) flags, grounded on Socket::recv /
// ThreadedSocket::recv.
func (s *Socket) Recv(buf []byte, flags int) (int, error) {
	for {
		n, _, err := unix.Recvfrom(s.fd(), buf, flags)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			if s.readWaiter.BlockCurrent() != Unblocked {
				return 0, &CancelledError{Op: "recv"}
			}
			continue
		}
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return n, NewSystemCallError("recv", err.(unix.Errno))
		}
		return n, nil
	}
}

// Send is Write with send(2) flags.
func (s *Socket) Send(buf []byte, flags int) (int, error) {
	for {
		n, err := unix.SendmsgN(s.fd(), buf, nil, nil, flags)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			if s.writeWaiter.BlockCurrent() != Unblocked {
				return 0, &CancelledError{Op: "send"}
			}
			continue
		}
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, NewSystemCallError("send", err.(unix.Errno))
		}
		return n, nil
	}
}

// SendAll blocks until every byte of buf has been sent.
func (s *Socket) SendAll(buf []byte, flags int) error {
	for len(buf) > 0 {
		n, err := s.Send(buf, flags)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// Shutdown shuts down one or both halves of a full-duplex connection.
func (s *Socket) Shutdown(how int) error {
	if err := unix.Shutdown(s.fd(), how); err != nil {
		return NewSystemCallError("shutdown", err.(unix.Errno))
	}
	return nil
}

// Close closes the socket and unregisters it from the scheduler.
func (s *Socket) Close() error {
	s.sched.registry.unregister(s.fd())
	return s.blockingIO.Close()
}
