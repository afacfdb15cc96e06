//go:build linux

package lwt

import "golang.org/x/sys/unix"

const (
	EFD_CLOEXEC  = unix.EFD_CLOEXEC
	EFD_NONBLOCK = unix.EFD_NONBLOCK
)

// createWakeFd creates an eventfd used as both the read and write end
// of a wakeupFD.
func createWakeFd(initval uint, flags int) (int, int, error) {
	fd, err := unix.Eventfd(initval, flags)
	return fd, fd, err
}

func closeWakeFd(readFD, writeFD int) error {
	return unix.Close(readFD)
}

// writeWakeByte signals the eventfd; any non-zero 8-byte value works.
func writeWakeByte(writeFD int) error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(writeFD, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

// drainWakeUpFD resets the eventfd counter to zero.
func drainWakeUpFD(readFD int) error {
	var buf [8]byte
	for {
		_, err := unix.Read(readFD, buf[:])
		if err != nil {
			return nil
		}
	}
}

// submitGenericWakeup exists only for parity with a Windows
// IOCP-based wakeup (PostQueuedCompletionStatus); this runtime does
// not target Windows, so it is always a no-op here.
func submitGenericWakeup(_ uintptr) error { return nil }
