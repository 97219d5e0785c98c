//go:build linux

package socket

import (
	"net"

	"golang.org/x/sys/unix"

	"github.com/zhvoker/Voker-Server/sys"
	"github.com/zhvoker/Voker-Server/utils"
)

const listenBacklog = 1024

// Listener owns a non-blocking IPv4 listening socket. Options that must be
// set before bind (SO_REUSEADDR, SO_REUSEPORT) are applied here, which is why
// the fd is built from raw syscalls instead of net.Listen.
type Listener struct {
	fd   int
	addr *net.TCPAddr
}

func ListenTCP(address string, reusePort bool) (ln *Listener, err error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp4", address)
	if err != nil {
		return nil, err
	}
	fd, err := sys.TcpSocket()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = sys.CloseFd(fd)
		}
	}()

	if err = sys.SetReuseAddr(fd, true); err != nil {
		return nil, err
	}
	if reusePort {
		if err = sys.SetReusePort(fd, true); err != nil {
			return nil, err
		}
	}

	sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	}
	if err = unix.Bind(fd, sa); err != nil {
		return nil, utils.SysError("bind", err)
	}
	if err = unix.Listen(fd, listenBacklog); err != nil {
		return nil, utils.SysError("listen", err)
	}

	bound, err := LocalAddrOfFd(fd)
	if err != nil {
		return nil, err
	}
	return &Listener{fd: fd, addr: bound}, nil
}

func (that *Listener) GetFd() int {
	return that.fd
}

func (that *Listener) Addr() *net.TCPAddr {
	return that.addr
}

func (that *Listener) Close() (err error) {
	if that.fd < 0 {
		return nil
	}
	err = utils.SysError("close", sys.CloseFd(that.fd))
	that.fd = -1
	return
}

// LocalAddrOfFd resolves the bound address of a socket, including the kernel
// chosen port after binding port 0.
func LocalAddrOfFd(fd int) (*net.TCPAddr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, utils.SysError("getsockname", err)
	}
	return SockaddrToTCPAddr(sa), nil
}

func SockaddrToTCPAddr(sa unix.Sockaddr) *net.TCPAddr {
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, net.IPv4len)
		copy(ip, addr.Addr[:])
		return &net.TCPAddr{IP: ip, Port: addr.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, addr.Addr[:])
		return &net.TCPAddr{IP: ip, Port: addr.Port, Zone: zoneOf(addr.ZoneId)}
	}
	return nil
}

func zoneOf(id uint32) string {
	if id == 0 {
		return ""
	}
	if ifi, err := net.InterfaceByIndex(int(id)); err == nil {
		return ifi.Name
	}
	return ""
}
