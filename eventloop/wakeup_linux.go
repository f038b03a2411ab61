//go:build linux

package eventloop

import "golang.org/x/sys/unix"

// createWakeFD creates an eventfd used to interrupt a blocked epoll_wait
// from another goroutine. The same fd serves as both read and write end.
func createWakeFD() (readFD, writeFD int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	return fd, fd, err
}

func writeWake(fd int) error {
	var one uint64 = 1
	buf := []byte{byte(one), byte(one >> 8), byte(one >> 16), byte(one >> 24), 0, 0, 0, 0}
	_, err := unix.Write(fd, buf)
	return err
}

func drainWake(fd int) {
	var buf [8]byte
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
