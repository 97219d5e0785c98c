//go:build linux

package sys

import (
	"golang.org/x/sys/unix"

	"github.com/zhvoker/Voker-Server/utils"
)

const DefaultTCPKeepAlive = 15 // Seconds

func TcpSocket() (fd int, err error) {
	fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	return fd, utils.SysError("socket", err)
}

// Accept4 accepts a connection with the accepted fd made non-blocking and close-on-exec.
func Accept4(fd int) (nfd int, sa unix.Sockaddr, err error) {
	nfd, sa, err = unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	return
}

func SetReuseAddr(fd int, on bool) error {
	return utils.SysError("setsockopt", unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolToInt(on)))
}

func SetReusePort(fd int, on bool) error {
	return utils.SysError("setsockopt", unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, boolToInt(on)))
}

func SetNoDelay(fd int, on bool) error {
	return utils.SysError("setsockopt", unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(on)))
}

func SetKeepAlive(fd int, secs int) (err error) {
	if secs <= 0 {
		secs = DefaultTCPKeepAlive
	}
	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
		return utils.SysError("setsockopt", err)
	}
	if err = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, secs); err != nil {
		return utils.SysError("setsockopt", err)
	}
	err = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, secs)
	return utils.SysError("setsockopt", err)
}

func DisableKeepAlive(fd int) error {
	return utils.SysError("setsockopt", unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 0))
}

func boolToInt(on bool) int {
	if on {
		return 1
	}
	return 0
}
