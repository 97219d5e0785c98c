//go:build linux

package balancer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhvoker/Voker-Server/eloop"
)

func startLoops(t *testing.T, n int) []*eloop.EventLoop {
	t.Helper()
	loops := make([]*eloop.EventLoop, 0, n)
	for i := 0; i < n; i++ {
		lt := eloop.NewLoopThread(nil, "balancer-test")
		l := lt.StartLoop()
		loops = append(loops, l)
		t.Cleanup(l.Quit)
	}
	return loops
}

func TestRoundRobinCycles(t *testing.T) {
	loops := startLoops(t, 3)
	rr := NewRoundRobin()
	for _, l := range loops {
		rr.Register(l)
	}
	require.Equal(t, 3, rr.Len())

	for round := 0; round < 3; round++ {
		for i := 0; i < 3; i++ {
			assert.Same(t, loops[i], rr.Next(), "hand-off must advance modulo the loop count")
		}
	}
}

func TestLeastConnPicksIdleLoop(t *testing.T) {
	loops := startLoops(t, 2)
	lc := NewLeastConn()
	for _, l := range loops {
		lc.Register(l)
	}

	loops[0].AddConnCount(5)
	assert.Same(t, loops[1], lc.Next())

	loops[1].AddConnCount(9)
	assert.Same(t, loops[0], lc.Next())
}

func TestIteratorStopsEarly(t *testing.T) {
	loops := startLoops(t, 3)
	rr := NewRoundRobin()
	for _, l := range loops {
		rr.Register(l)
	}

	var visited int
	rr.Iterator(func(key int, _ *eloop.EventLoop) bool {
		visited++
		return key < 1
	})
	assert.Equal(t, 2, visited)
}

func TestLoopPoolHandsOutWorkers(t *testing.T) {
	baseCh := make(chan *eloop.EventLoop, 1)
	baseDone := make(chan struct{})
	go func() {
		l := eloop.New()
		baseCh <- l
		l.Loop()
		l.Close()
		close(baseDone)
	}()
	base := <-baseCh

	pool := eloop.NewLoopPool(base, "pool-test")
	pool.SetLoopNum(2)
	pool.SetBalancer(NewRoundRobin())

	started := make(chan struct{})
	base.RunInLoop(func() {
		pool.Start(nil)
		close(started)
	})
	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatal("pool did not start")
	}
	require.True(t, pool.Started())

	first := pool.GetNextLoop()
	second := pool.GetNextLoop()
	third := pool.GetNextLoop()
	assert.NotSame(t, base, first, "with workers the base loop is not handed out")
	assert.NotSame(t, first, second)
	assert.Same(t, first, third, "two workers alternate")
	assert.Len(t, pool.GetAllLoops(), 2)

	pool.Stop()
	base.Quit()
	select {
	case <-baseDone:
	case <-time.After(12 * time.Second):
		t.Fatal("base loop did not quit")
	}
}

func TestLoopPoolWithoutWorkersReturnsBaseLoop(t *testing.T) {
	baseCh := make(chan *eloop.EventLoop, 1)
	go func() {
		l := eloop.New()
		baseCh <- l
		l.Loop()
		l.Close()
	}()
	base := <-baseCh
	defer base.Quit()

	pool := eloop.NewLoopPool(base, "pool-single")

	var initLoop *eloop.EventLoop
	started := make(chan struct{})
	base.RunInLoop(func() {
		pool.Start(func(l *eloop.EventLoop) { initLoop = l })
		close(started)
	})
	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatal("pool did not start")
	}

	assert.Same(t, base, initLoop, "the init callback sees the base loop when there are no workers")
	assert.Same(t, base, pool.GetNextLoop())
}
