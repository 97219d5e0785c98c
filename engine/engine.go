//go:build linux

package engine

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/moqsien/processes/logger"

	"github.com/zhvoker/Voker-Server/balancer"
	"github.com/zhvoker/Voker-Server/buffer"
	"github.com/zhvoker/Voker-Server/conn"
	"github.com/zhvoker/Voker-Server/eloop"
	"github.com/zhvoker/Voker-Server/socket"
)

// Server is the TCP server composition: one base loop accepting, a pool of
// worker loops hosting connections, and the user callbacks fanned out to
// every new connection. The connection registry is confined to the base loop.
type Server struct {
	loop       *eloop.EventLoop
	ipPort     string
	name       string
	acceptor   *Acceptor
	pool       *eloop.LoopPool
	started    int32
	nextConnID int
	connCount  int32

	// per-connection defaults applied on accept
	tcpNoDelay    bool
	keepAliveSecs int
	highWaterMark int

	connections map[string]*conn.TcpConn

	connectionCallback    conn.ConnectionCallback
	messageCallback       conn.MessageCallback
	writeCompleteCallback conn.WriteCompleteCallback
	threadInitCallback    eloop.ThreadInitCallback
}

func New(baseLoop *eloop.EventLoop, address, name string, option Option) *Server {
	that := &Server{
		loop:        baseLoop,
		ipPort:      address,
		name:        name,
		nextConnID:  1,
		connections: make(map[string]*conn.TcpConn),
	}
	that.acceptor = NewAcceptor(baseLoop, address, option == ReusePortReuseAddr)
	that.acceptor.SetNewConnectionCallback(that.newConnection)
	that.pool = eloop.NewLoopPool(baseLoop, name)
	that.pool.SetBalancer(balancer.NewRoundRobin())
	that.connectionCallback = defaultConnectionCallback
	that.messageCallback = defaultMessageCallback
	return that
}

// NewWithOptions builds a server from a config-file Options value.
func NewWithOptions(baseLoop *eloop.EventLoop, opts *Options) *Server {
	option := ReuseAddr
	if opts.ReusePort {
		option = ReusePortReuseAddr
	}
	that := New(baseLoop, opts.Addr, opts.Name, option)
	that.SetThreadNum(opts.ThreadNum)
	if opts.Balancer == LeastConnLB {
		that.pool.SetBalancer(balancer.NewLeastConn())
	}
	that.tcpNoDelay = opts.TcpNoDelay
	that.keepAliveSecs = opts.KeepAliveSecs
	that.highWaterMark = opts.HighWaterMark
	return that
}

func defaultConnectionCallback(c *conn.TcpConn) {
	state := "DOWN"
	if c.Connected() {
		state = "UP"
	}
	logger.Infof("%s -> %s is %s", c.PeerAddr(), c.LocalAddr(), state)
}

func defaultMessageCallback(_ *conn.TcpConn, buf *buffer.Buffer, _ time.Time) {
	buf.RetrieveAll()
}

func (that *Server) Name() string {
	return that.name
}

// ListenAddr is the actual bound address, resolved after binding, so a
// port-0 server reports the kernel-chosen port.
func (that *Server) ListenAddr() *net.TCPAddr {
	return that.acceptor.Addr()
}

func (that *Server) GetLoop() *eloop.EventLoop {
	return that.loop
}

func (that *Server) ConnectionCount() int32 {
	return atomic.LoadInt32(&that.connCount)
}

// SetThreadNum fixes how many worker loops host connections. Zero keeps
// everything on the base loop.
func (that *Server) SetThreadNum(numThreads int) {
	that.pool.SetLoopNum(numThreads)
}

func (that *Server) SetThreadInitCallback(cb eloop.ThreadInitCallback) {
	that.threadInitCallback = cb
}

func (that *Server) SetConnectionCallback(cb conn.ConnectionCallback) {
	that.connectionCallback = cb
}

func (that *Server) SetMessageCallback(cb conn.MessageCallback) {
	that.messageCallback = cb
}

func (that *Server) SetWriteCompleteCallback(cb conn.WriteCompleteCallback) {
	that.writeCompleteCallback = cb
}

// Start brings the worker loops up and arms the acceptor. Starting twice is
// a programming error.
func (that *Server) Start() {
	if !atomic.CompareAndSwapInt32(&that.started, 0, 1) {
		logger.Fatalf("Server %s started twice", that.name)
	}
	that.loop.RunInLoop(func() {
		that.pool.Start(that.threadInitCallback)
		that.acceptor.Listen()
	})
}

// Stop force-closes every connection on its loop, closes the acceptor and
// releases the pool. The base loop stays running, it belongs to the caller.
func (that *Server) Stop() {
	that.loop.RunInLoop(func() {
		for _, c := range that.connections {
			c.ForceClose()
		}
		that.acceptor.Close()
	})
	that.pool.Stop()
}

func (that *Server) newConnection(fd int, peerAddr *net.TCPAddr) {
	that.loop.AssertInLoop()
	ioLoop := that.pool.GetNextLoop()
	name := fmt.Sprintf("%s-%s#%d", that.name, that.ipPort, that.nextConnID)
	that.nextConnID++

	localAddr, err := socket.LocalAddrOfFd(fd)
	if err != nil {
		logger.Errorf("Server %s: %v", that.name, err)
	}
	logger.Infof("Server %s: new connection %s from %s", that.name, name, peerAddr)

	c := conn.NewTcpConn(ioLoop, name, fd, localAddr, peerAddr)
	if that.tcpNoDelay {
		if err = c.SetTcpNoDelay(true); err != nil {
			logger.Warningf("Server %s: %v", that.name, err)
		}
	}
	if that.keepAliveSecs > 0 {
		if err = c.SetKeepAlivePeriod(that.keepAliveSecs); err != nil {
			logger.Warningf("Server %s: %v", that.name, err)
		}
	}
	if that.highWaterMark > 0 {
		c.SetHighWaterMark(that.highWaterMark)
	}
	that.connections[name] = c
	atomic.AddInt32(&that.connCount, 1)
	c.SetConnectionCallback(that.connectionCallback)
	c.SetMessageCallback(that.messageCallback)
	c.SetWriteCompleteCallback(that.writeCompleteCallback)
	c.SetCloseCallback(that.removeConnection)
	ioLoop.RunInLoop(c.ConnectEstablished)
}

func (that *Server) removeConnection(c *conn.TcpConn) {
	that.loop.RunInLoop(func() {
		that.removeConnectionInLoop(c)
	})
}

func (that *Server) removeConnectionInLoop(c *conn.TcpConn) {
	that.loop.AssertInLoop()
	logger.Infof("Server %s: remove connection %s", that.name, c.Name())
	if _, found := that.connections[c.Name()]; !found {
		return
	}
	delete(that.connections, c.Name())
	atomic.AddInt32(&that.connCount, -1)
	ioLoop := c.GetLoop()
	ioLoop.QueueInLoop(c.ConnectDestroyed)
}
