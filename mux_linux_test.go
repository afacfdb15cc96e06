//go:build linux

package lwt

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestEpollMultiplexerReportsReadable(t *testing.T) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	m, err := newPlatformMultiplexer()
	if err != nil {
		t.Fatalf("newPlatformMultiplexer: %v", err)
	}
	defer m.Close()

	if err := m.Add(fds[0], ioReadable); err != nil {
		t.Fatalf("Add: %v", err)
	}

	events, err := m.Wait(0)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events before any write, got %d", len(events))
	}

	if _, err := unix.Write(fds[1], []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	events, err = m.Wait(1000)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly one ready descriptor, got %d", len(events))
	}
	if events[0].fd != fds[0] {
		t.Fatalf("got fd %d, want %d", events[0].fd, fds[0])
	}
	if events[0].events&ioReadable == 0 {
		t.Fatalf("expected ioReadable, got %v", events[0].events)
	}
}

func TestEpollMultiplexerLevelTriggeredOnPartialDrain(t *testing.T) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	m, err := newPlatformMultiplexer()
	if err != nil {
		t.Fatalf("newPlatformMultiplexer: %v", err)
	}
	defer m.Close()

	if err := m.Add(fds[0], ioReadable); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := unix.Write(fds[1], []byte("ab")); err != nil {
		t.Fatalf("write: %v", err)
	}

	events, err := m.Wait(1000)
	if err != nil || len(events) != 1 {
		t.Fatalf("first Wait: events=%v err=%v", events, err)
	}

	var b [1]byte
	if _, err := unix.Read(fds[0], b[:]); err != nil {
		t.Fatalf("partial read: %v", err)
	}

	// One byte still unread: a level-triggered multiplexer must report
	// fds[0] ready again without any further write.
	events, err = m.Wait(1000)
	if err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected level-triggered re-notification, got %d events", len(events))
	}
}

func TestEpollMultiplexerRemoveStopsNotifications(t *testing.T) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	m, err := newPlatformMultiplexer()
	if err != nil {
		t.Fatalf("newPlatformMultiplexer: %v", err)
	}
	defer m.Close()

	if err := m.Add(fds[0], ioReadable); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.Remove(fds[0]); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := unix.Write(fds[1], []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	events, err := m.Wait(0)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events after Remove, got %d", len(events))
	}
}
