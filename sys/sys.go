package sys

import (
	"golang.org/x/sys/unix"
)

const (
	MaxPollSize  = 1024
	InitPollSize = 16
)

var (
	EAGAIN     = unix.EAGAIN
	EINTR      = unix.EINTR
	EMFILE     = unix.EMFILE
	EPIPE      = unix.EPIPE
	ECONNRESET = unix.ECONNRESET
)

func CloseFd(fd int) error {
	return unix.Close(fd)
}

func Read(fd int, p []byte) (n int, err error) {
	return unix.Read(fd, p)
}

func Write(fd int, p []byte) (n int, err error) {
	return unix.Write(fd, p)
}

func Readv(fd int, iovs [][]byte) (n int, err error) {
	return unix.Readv(fd, iovs)
}

func Writev(fd int, iovs [][]byte) (n int, err error) {
	return unix.Writev(fd, iovs)
}

// ShutdownWrite closes the write half, the read half stays open.
func ShutdownWrite(fd int) error {
	return unix.Shutdown(fd, unix.SHUT_WR)
}

func GetSocketError(fd int) error {
	code, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if code != 0 {
		return unix.Errno(code)
	}
	return nil
}
