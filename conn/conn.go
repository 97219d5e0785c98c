//go:build linux

package conn

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/moqsien/processes/logger"
	bsPool "github.com/panjf2000/gnet/v2/pkg/pool/byteslice"

	"github.com/zhvoker/Voker-Server/buffer"
	"github.com/zhvoker/Voker-Server/eloop"
	"github.com/zhvoker/Voker-Server/sys"
	"github.com/zhvoker/Voker-Server/utils"
	"github.com/zhvoker/Voker-Server/utils/errs"
)

const (
	StateDisconnected int32 = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

const DefaultHighWaterMark = 64 * 1024 * 1024

// TcpConn combines a socket fd, its channel and the two buffers. It is pinned
// to one loop: every callback and every buffer mutation runs there. The only
// cross-thread entry points are Send, Shutdown and ForceClose, which hop onto
// the loop first.
type TcpConn struct {
	loop      *eloop.EventLoop
	name      string
	state     int32
	fd        int
	channel   *eloop.Channel
	localAddr *net.TCPAddr
	peerAddr  *net.TCPAddr

	inputBuffer   *buffer.Buffer
	outputBuffer  *buffer.Buffer
	highWaterMark int

	ctx interface{}

	connectionCallback    ConnectionCallback
	messageCallback       MessageCallback
	writeCompleteCallback WriteCompleteCallback
	highWaterMarkCallback HighWaterMarkCallback
	closeCallback         CloseCallback
}

func NewTcpConn(loop *eloop.EventLoop, name string, fd int, localAddr, peerAddr *net.TCPAddr) *TcpConn {
	that := &TcpConn{
		loop:          loop,
		name:          name,
		state:         StateConnecting,
		fd:            fd,
		channel:       eloop.NewChannel(loop, fd),
		localAddr:     localAddr,
		peerAddr:      peerAddr,
		inputBuffer:   buffer.New(),
		outputBuffer:  buffer.New(),
		highWaterMark: DefaultHighWaterMark,
	}
	that.channel.SetReadCallback(that.handleRead)
	that.channel.SetWriteCallback(that.handleWrite)
	that.channel.SetCloseCallback(that.handleClose)
	that.channel.SetErrorCallback(that.handleError)
	if err := sys.SetKeepAlive(fd, 0); err != nil {
		logger.Warningf("TcpConn %s: %v", name, err)
	}
	return that
}

func (that *TcpConn) GetFd() int {
	return that.fd
}

func (that *TcpConn) Name() string {
	return that.name
}

func (that *TcpConn) GetLoop() *eloop.EventLoop {
	return that.loop
}

func (that *TcpConn) LocalAddr() *net.TCPAddr {
	return that.localAddr
}

func (that *TcpConn) PeerAddr() *net.TCPAddr {
	return that.peerAddr
}

func (that *TcpConn) Connected() bool {
	return atomic.LoadInt32(&that.state) == StateConnected
}

func (that *TcpConn) Disconnected() bool {
	return atomic.LoadInt32(&that.state) == StateDisconnected
}

func (that *TcpConn) State() int32 {
	return atomic.LoadInt32(&that.state)
}

func (that *TcpConn) SetContext(ctx interface{}) {
	that.ctx = ctx
}

func (that *TcpConn) Context() interface{} {
	return that.ctx
}

func (that *TcpConn) SetTcpNoDelay(on bool) error {
	return sys.SetNoDelay(that.fd, on)
}

func (that *TcpConn) SetKeepAlive(on bool) error {
	if on {
		return sys.SetKeepAlive(that.fd, 0)
	}
	return sys.DisableKeepAlive(that.fd)
}

// SetKeepAlivePeriod enables keep-alive with the given probe interval.
func (that *TcpConn) SetKeepAlivePeriod(secs int) error {
	return sys.SetKeepAlive(that.fd, secs)
}

func (that *TcpConn) SetHighWaterMark(mark int) {
	that.highWaterMark = mark
}

func (that *TcpConn) HighWaterMark() int {
	return that.highWaterMark
}

func (that *TcpConn) SetConnectionCallback(cb ConnectionCallback) {
	that.connectionCallback = cb
}

func (that *TcpConn) SetMessageCallback(cb MessageCallback) {
	that.messageCallback = cb
}

func (that *TcpConn) SetWriteCompleteCallback(cb WriteCompleteCallback) {
	that.writeCompleteCallback = cb
}

func (that *TcpConn) SetHighWaterMarkCallback(cb HighWaterMarkCallback) {
	that.highWaterMarkCallback = cb
}

// SetCloseCallback is for the owning server, not for users.
func (that *TcpConn) SetCloseCallback(cb CloseCallback) {
	that.closeCallback = cb
}

// Send may be called from any goroutine. Off-loop callers get their bytes
// copied into a pooled block before the hop, the caller's slice is free to be
// reused the moment Send returns.
func (that *TcpConn) Send(data []byte) error {
	if atomic.LoadInt32(&that.state) != StateConnected {
		return errs.ErrConnClosed
	}
	if that.loop.IsInLoop() {
		that.sendInLoop(data)
		return nil
	}
	queued := bsPool.Get(len(data))
	copy(queued, data)
	that.loop.RunInLoop(func() {
		that.sendInLoop(queued)
		bsPool.Put(queued)
	})
	return nil
}

func (that *TcpConn) SendString(data string) error {
	return that.Send(utils.StringToBytes(data))
}

func (that *TcpConn) sendInLoop(data []byte) {
	that.loop.AssertInLoop()
	if atomic.LoadInt32(&that.state) == StateDisconnected {
		logger.Warningf("TcpConn %s disconnected, give up writing", that.name)
		return
	}

	var (
		nwrote    int
		err       error
		faultSeen bool
	)
	remaining := len(data)

	// nothing queued: try the fd directly, buffer only the leftover
	if !that.channel.IsWriting() && that.outputBuffer.ReadableBytes() == 0 {
		nwrote, err = sys.Write(that.fd, data)
		if err != nil {
			nwrote = 0
			if err != sys.EAGAIN {
				logger.Errorf("TcpConn %s sendInLoop: %v", that.name, err)
				if err == sys.EPIPE || err == sys.ECONNRESET {
					faultSeen = true
				}
			}
		} else {
			remaining -= nwrote
			if remaining == 0 && that.writeCompleteCallback != nil {
				that.loop.QueueInLoop(func() { that.writeCompleteCallback(that) })
			}
		}
	}

	if !faultSeen && remaining > 0 {
		queued := that.outputBuffer.ReadableBytes()
		if queued+remaining >= that.highWaterMark && that.highWaterMarkCallback != nil {
			total := queued + remaining
			that.loop.QueueInLoop(func() { that.highWaterMarkCallback(that, total) })
		}
		that.outputBuffer.Append(data[nwrote:])
		if !that.channel.IsWriting() {
			that.channel.EnableWriting()
		}
	}
}

// Shutdown closes the write half once the send buffer has drained.
func (that *TcpConn) Shutdown() {
	if atomic.CompareAndSwapInt32(&that.state, StateConnected, StateDisconnecting) {
		that.loop.RunInLoop(that.shutdownInLoop)
	}
}

func (that *TcpConn) shutdownInLoop() {
	that.loop.AssertInLoop()
	if !that.channel.IsWriting() {
		if err := sys.ShutdownWrite(that.fd); err != nil {
			logger.Errorf("TcpConn %s shutdownInLoop: %v", that.name, utils.SysError("shutdown", err))
		}
	}
}

// ForceClose tears the connection down without waiting for pending writes.
func (that *TcpConn) ForceClose() {
	state := atomic.LoadInt32(&that.state)
	if state == StateConnected || state == StateDisconnecting {
		atomic.StoreInt32(&that.state, StateDisconnecting)
		that.loop.QueueInLoop(that.forceCloseInLoop)
	}
}

func (that *TcpConn) forceCloseInLoop() {
	that.loop.AssertInLoop()
	state := atomic.LoadInt32(&that.state)
	if state == StateConnected || state == StateDisconnecting {
		that.handleClose()
	}
}

// ConnectEstablished runs on the owning loop exactly once, right after the
// server hands the connection over.
func (that *TcpConn) ConnectEstablished() {
	that.loop.AssertInLoop()
	atomic.StoreInt32(&that.state, StateConnected)
	that.channel.Tie(that)
	that.channel.EnableReading()
	that.loop.AddConnCount(1)
	if that.connectionCallback != nil {
		that.connectionCallback(that)
	}
}

// ConnectDestroyed is the last callback of a connection's life. It removes
// the channel from the poller and closes the fd, both exactly once.
func (that *TcpConn) ConnectDestroyed() {
	that.loop.AssertInLoop()
	if atomic.CompareAndSwapInt32(&that.state, StateConnected, StateDisconnected) {
		that.channel.DisableAll()
		if that.connectionCallback != nil {
			that.connectionCallback(that)
		}
	}
	that.channel.Remove()
	that.loop.AddConnCount(-1)
	if err := sys.CloseFd(that.fd); err != nil {
		logger.Errorf("TcpConn %s close fd=%d: %v", that.name, that.fd, utils.SysError("close", err))
	}
}

func (that *TcpConn) handleRead(receiveTime time.Time) {
	that.loop.AssertInLoop()
	n, err := that.inputBuffer.ReadFd(that.fd)
	switch {
	case n > 0:
		if that.messageCallback != nil {
			that.messageCallback(that, that.inputBuffer, receiveTime)
		} else {
			that.inputBuffer.RetrieveAll()
		}
	case n == 0 && err == nil:
		// peer closed its write half
		that.handleClose()
	default:
		if err == sys.EAGAIN || err == sys.EINTR {
			return
		}
		logger.Errorf("TcpConn %s handleRead: %v", that.name, err)
		that.handleError()
	}
}

func (that *TcpConn) handleWrite() {
	that.loop.AssertInLoop()
	if !that.channel.IsWriting() {
		logger.Debugf("TcpConn %s fd=%d is down, no more writing", that.name, that.fd)
		return
	}
	n, err := that.outputBuffer.WriteFd(that.fd)
	if err != nil {
		if err != sys.EAGAIN {
			logger.Errorf("TcpConn %s handleWrite: %v", that.name, err)
		}
		return
	}
	that.outputBuffer.Retrieve(n)
	if that.outputBuffer.ReadableBytes() == 0 {
		that.channel.DisableWriting()
		if that.writeCompleteCallback != nil {
			that.loop.QueueInLoop(func() { that.writeCompleteCallback(that) })
		}
		if atomic.LoadInt32(&that.state) == StateDisconnecting {
			that.shutdownInLoop()
		}
	}
}

func (that *TcpConn) handleClose() {
	that.loop.AssertInLoop()
	atomic.StoreInt32(&that.state, StateDisconnected)
	that.channel.DisableAll()
	if that.connectionCallback != nil {
		that.connectionCallback(that)
	}
	if that.closeCallback != nil {
		that.closeCallback(that)
	}
}

func (that *TcpConn) handleError() {
	err := sys.GetSocketError(that.fd)
	logger.Errorf("TcpConn %s handleError: SO_ERROR=%v", that.name, err)
}

// InputBuffer exposes the receive buffer to message callbacks that keep
// partial frames across calls.
func (that *TcpConn) InputBuffer() *buffer.Buffer {
	return that.inputBuffer
}

func (that *TcpConn) OutputBuffer() *buffer.Buffer {
	return that.outputBuffer
}
