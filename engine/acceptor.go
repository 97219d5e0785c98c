//go:build linux

package engine

import (
	"net"
	"time"

	"github.com/moqsien/processes/logger"
	"golang.org/x/sys/unix"

	"github.com/zhvoker/Voker-Server/eloop"
	"github.com/zhvoker/Voker-Server/socket"
	"github.com/zhvoker/Voker-Server/sys"
	"github.com/zhvoker/Voker-Server/utils"
	"github.com/zhvoker/Voker-Server/utils/errs"
)

type NewConnectionCallback func(fd int, peerAddr *net.TCPAddr)

// Acceptor owns the listening socket and its channel on the base loop. One
// readiness event drains the backlog until EAGAIN. A spare fd held on
// /dev/null lets it shed connections cleanly when the process runs out of
// descriptors.
type Acceptor struct {
	loop      *eloop.EventLoop
	listener  *socket.Listener
	channel   *eloop.Channel
	listening bool
	idleFd    int

	newConnectionCallback NewConnectionCallback
}

func NewAcceptor(loop *eloop.EventLoop, address string, reusePort bool) *Acceptor {
	listener, err := socket.ListenTCP(address, reusePort)
	if err != nil {
		logger.Fatalf("Acceptor %s: %v", address, err)
	}
	idleFd, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		logger.Fatalf("Acceptor %s: %v", address, utils.SysError("open", err))
	}
	that := &Acceptor{
		loop:     loop,
		listener: listener,
		idleFd:   idleFd,
	}
	that.channel = eloop.NewChannel(loop, listener.GetFd())
	that.channel.SetReadCallback(that.handleRead)
	return that
}

func (that *Acceptor) SetNewConnectionCallback(cb NewConnectionCallback) {
	that.newConnectionCallback = cb
}

func (that *Acceptor) Addr() *net.TCPAddr {
	return that.listener.Addr()
}

func (that *Acceptor) Listening() bool {
	return that.listening
}

// Listen enables read interest on the listening channel. Must run on the
// base loop.
func (that *Acceptor) Listen() {
	that.loop.AssertInLoop()
	that.listening = true
	that.channel.EnableReading()
}

func (that *Acceptor) handleRead(_ time.Time) {
	that.loop.AssertInLoop()
	for {
		nfd, sa, err := sys.Accept4(that.listener.GetFd())
		if err != nil {
			switch err {
			case sys.EAGAIN, sys.EINTR:
			case sys.EMFILE:
				logger.Errorf("Acceptor: %v", utils.SysError("accept4", err))
				that.shedConnection()
			default:
				logger.Errorf("Acceptor: %v: %v", errs.ErrAcceptSocket, utils.SysError("accept4", err))
			}
			return
		}
		if that.newConnectionCallback == nil {
			_ = sys.CloseFd(nfd)
			continue
		}
		that.newConnectionCallback(nfd, socket.SockaddrToTCPAddr(sa))
	}
}

// shedConnection is the EMFILE mitigation: release the spare fd, accept the
// pending connection onto it, close it immediately, then re-arm the spare.
func (that *Acceptor) shedConnection() {
	_ = sys.CloseFd(that.idleFd)
	if nfd, _, err := unix.Accept(that.listener.GetFd()); err == nil {
		_ = sys.CloseFd(nfd)
	}
	that.idleFd, _ = unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
}

func (that *Acceptor) Close() {
	that.loop.AssertInLoop()
	if that.listening {
		that.channel.DisableAll()
		that.channel.Remove()
		that.listening = false
	}
	_ = that.listener.Close()
	_ = sys.CloseFd(that.idleFd)
}
