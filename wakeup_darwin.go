//go:build darwin

package lwt

import "golang.org/x/sys/unix"

const (
	EFD_CLOEXEC  = unix.O_CLOEXEC
	EFD_NONBLOCK = unix.O_NONBLOCK
)

// createWakeFd creates a self-pipe, Darwin having no eventfd
// equivalent: kqueue can watch a pipe's read end the same way epoll
// watches an eventfd.
func createWakeFd(_ uint, _ int) (int, int, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return 0, 0, err
	}
	return fds[0], fds[1], nil
}

func closeWakeFd(readFD, writeFD int) error {
	_ = unix.Close(writeFD)
	return unix.Close(readFD)
}

func writeWakeByte(writeFD int) error {
	var b [1]byte
	_, err := unix.Write(writeFD, b[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func drainWakeUpFD(readFD int) error {
	var buf [64]byte
	for {
		_, err := unix.Read(readFD, buf[:])
		if err != nil {
			return nil
		}
	}
}

func submitGenericWakeup(_ uintptr) error { return nil }
