package lwt

import (
	"io"

	"golang.org/x/sys/unix"
)

// blockingIO is the fiber-blocking I/O mixin every descriptor type
// (socket, pipe) embeds. It retries the underlying raw call in a loop,
// suspending the calling fiber on the appropriate BlockingRef whenever
// the kernel reports EAGAIN, exactly the pattern of
// ThreadedFDMixin::read/write in original_source/src/lwt/ThreadedFDMixin.h
// — "wait" there is waitRead/waitWrite via BlockedThread, here it is
// BlockCurrent on readWaiter/writeWaiter.
type blockingIO struct {
	pfd *polledFD

	readWaiter  *BlockingRef
	writeWaiter *BlockingRef
}

func newBlockingIO(sched *Scheduler, fd int) (*blockingIO, error) {
	pfd, err := newPolledFD(fd)
	if err != nil {
		return nil, err
	}
	return &blockingIO{
		pfd:         pfd,
		readWaiter:  NewBlockingRef(sched),
		writeWaiter: NewBlockingRef(sched),
	}, nil
}

// updateEvents reports EPOLLIN/EPOLLOUT interest exactly while a fiber
// is actually blocked waiting for it — mirroring
// ThreadedFDMixin::updateEvents, which only arms the bit a waiter
// cares about instead of always polling both directions.
func (b *blockingIO) updateEvents() ioEvents {
	var want ioEvents
	if b.readWaiter.thread != nil {
		want |= ioReadable
	}
	if b.writeWaiter.thread != nil {
		want |= ioWritable
	}
	return want
}

// handleEvents wakes whichever waiter(s) the reported mask satisfies.
func (b *blockingIO) handleEvents(events ioEvents) {
	if events&(ioReadable|ioError|ioHangup) != 0 {
		b.readWaiter.UnblockDefault()
	}
	if events&(ioWritable|ioError|ioHangup) != 0 {
		b.writeWaiter.UnblockDefault()
	}
}

func (b *blockingIO) polledFDState() *polledFD { return b.pfd }

// CancelRead aborts a pending Read/Accept, if one is in progress.
func (b *blockingIO) CancelRead() bool { return b.readWaiter.Cancel() }

// CancelWrite aborts a pending Write/Connect, if one is in progress.
func (b *blockingIO) CancelWrite() bool { return b.writeWaiter.Cancel() }

// Read blocks the calling fiber until at least one byte is available,
// an error occurs, or the read is cancelled.
func (b *blockingIO) Read(buf []byte) (int, error) {
	for {
		n, err := b.pfd.rawRead(buf)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			if b.readWaiter.BlockCurrent() != Unblocked {
				return 0, &CancelledError{Op: "read"}
			}
			continue
		}
		if err == unix.EINTR {
			continue
		}
		if n == 0 && err == nil {
			return 0, io.EOF
		}
		if err != nil {
			return n, NewSystemCallError("read", err.(unix.Errno))
		}
		return n, nil
	}
}

// Write blocks until at least some of buf can be written.
func (b *blockingIO) Write(buf []byte) (int, error) {
	for {
		n, err := b.pfd.rawWrite(buf)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			if b.writeWaiter.BlockCurrent() != Unblocked {
				return 0, &CancelledError{Op: "write"}
			}
			continue
		}
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return n, NewSystemCallError("write", err.(unix.Errno))
		}
		return n, nil
	}
}

// WriteAll blocks until every byte of buf has been written, mirroring
// ThreadedFDMixin::writeAll's short-write retry loop.
func (b *blockingIO) WriteAll(buf []byte) error {
	for len(buf) > 0 {
		n, err := b.Write(buf)
		if err != nil {
			return err
		}
		if n <= 0 {
			return &ProtocolViolationError{Detail: "write returned 0 bytes with nil error"}
		}
		buf = buf[n:]
	}
	return nil
}

// Close closes the underlying descriptor and unblocks any fiber
// currently waiting on it with Cancelled, matching
// ThreadedFDMixin::close's "close, then unblock both waiters".
func (b *blockingIO) Close() error {
	err := b.pfd.rawClose()
	b.readWaiter.Cancel()
	b.writeWaiter.Cancel()
	return err
}

func (b *blockingIO) fd() int { return b.pfd.num }
