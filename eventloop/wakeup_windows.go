//go:build windows

package eventloop

// No fd-based wakeup primitive exists on Windows: createWakeFD returns -1
// for both ends and writeWake does nothing, so a Submit does not interrupt
// a PollIO that is already waiting; the task runs once that wait's
// timeout elapses.

func createWakeFD() (readFD, writeFD int, err error) { return -1, -1, nil }

func writeWake(fd int) error { return nil }

func drainWake(fd int) {}

func closeWakeFD(readFD, writeFD int) {}
