//go:build linux

package conn

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/zhvoker/Voker-Server/buffer"
	"github.com/zhvoker/Voker-Server/eloop"
	"github.com/zhvoker/Voker-Server/utils/errs"
)

type connHarness struct {
	loop   *eloop.EventLoop
	c      *TcpConn
	peerFd int
	msgCh  chan string
	downCh chan struct{}
}

func newConnHarness(t *testing.T) *connHarness {
	t.Helper()
	lt := eloop.NewLoopThread(nil, "conn-test")
	l := lt.StartLoop()
	t.Cleanup(l.Quit)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	t.Cleanup(func() { unix.Close(fds[1]) })

	that := &connHarness{
		loop:   l,
		peerFd: fds[1],
		msgCh:  make(chan string, 16),
		downCh: make(chan struct{}, 1),
	}
	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
	that.c = NewTcpConn(l, "harness-conn#1", fds[0], addr, addr)
	that.c.SetMessageCallback(func(_ *TcpConn, buf *buffer.Buffer, _ time.Time) {
		that.msgCh <- buf.RetrieveAllAsString()
	})
	that.c.SetConnectionCallback(func(c *TcpConn) {
		if !c.Connected() {
			that.downCh <- struct{}{}
		}
	})
	// what the owning server would do
	that.c.SetCloseCallback(func(c *TcpConn) {
		c.GetLoop().QueueInLoop(c.ConnectDestroyed)
	})
	// called off-loop, RunInLoop only queues: wait until the loop has run it
	established := make(chan struct{})
	l.RunInLoop(func() {
		that.c.ConnectEstablished()
		close(established)
	})
	select {
	case <-established:
	case <-time.After(5 * time.Second):
		t.Fatal("connection was not established")
	}
	return that
}

func (that *connHarness) peerRead(t *testing.T, n int) string {
	t.Helper()
	got := make([]byte, 0, n)
	buf := make([]byte, n)
	deadline := time.Now().Add(5 * time.Second)
	for len(got) < n && time.Now().Before(deadline) {
		rn, err := unix.Read(that.peerFd, buf)
		if rn > 0 {
			got = append(got, buf[:rn]...)
		}
		if err != nil && err != unix.EAGAIN {
			t.Fatalf("peer read: %v", err)
		}
		if rn <= 0 {
			time.Sleep(time.Millisecond)
		}
	}
	return string(got)
}

func TestConnEstablishAndMessage(t *testing.T) {
	h := newConnHarness(t)

	require.True(t, h.c.Connected())
	assert.Equal(t, StateConnected, h.c.State())

	_, err := unix.Write(h.peerFd, []byte("abc"))
	require.NoError(t, err)
	select {
	case msg := <-h.msgCh:
		assert.Equal(t, "abc", msg)
	case <-time.After(5 * time.Second):
		t.Fatal("message callback did not fire")
	}
}

func TestConnSendFromOffLoop(t *testing.T) {
	h := newConnHarness(t)

	require.False(t, h.loop.IsInLoop())
	h.c.SendString("ok")
	assert.Equal(t, "ok", h.peerRead(t, 2))

	h.c.Send([]byte("more"))
	assert.Equal(t, "more", h.peerRead(t, 4))
}

func TestConnPeerCloseRunsClosePath(t *testing.T) {
	h := newConnHarness(t)

	require.NoError(t, unix.Shutdown(h.peerFd, unix.SHUT_WR))
	select {
	case <-h.downCh:
	case <-time.After(5 * time.Second):
		t.Fatal("close path did not fire on read-of-zero")
	}
	assert.True(t, h.c.Disconnected())
	assert.False(t, h.c.Connected())
}

func TestConnForceClose(t *testing.T) {
	h := newConnHarness(t)

	h.c.ForceClose()
	select {
	case <-h.downCh:
	case <-time.After(5 * time.Second):
		t.Fatal("force close did not tear the connection down")
	}
	assert.True(t, h.c.Disconnected())

	assert.ErrorIs(t, h.c.Send([]byte("late")), errs.ErrConnClosed)
}

func TestConnContext(t *testing.T) {
	h := newConnHarness(t)

	type session struct{ id int }
	h.c.SetContext(&session{id: 7})
	got, ok := h.c.Context().(*session)
	require.True(t, ok)
	assert.Equal(t, 7, got.id)
}
