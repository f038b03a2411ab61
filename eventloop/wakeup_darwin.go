//go:build darwin

package eventloop

import "golang.org/x/sys/unix"

// createWakeFD creates a pipe used to interrupt a blocked kevent from
// another goroutine (Darwin has no eventfd equivalent).
func createWakeFD() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return -1, -1, err
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		return -1, -1, err
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

func writeWake(fd int) error {
	_, err := unix.Write(fd, []byte{1})
	return err
}

func drainWake(fd int) {
	var buf [64]byte
	for {
		if _, err := unix.Read(fd, buf[:]); err != nil {
			return
		}
	}
}

func closeWakeFD(readFD, writeFD int) {
	_ = unix.Close(readFD)
	if writeFD != readFD {
		_ = unix.Close(writeFD)
	}
}
