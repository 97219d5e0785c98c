//go:build linux

package eloop

import (
	"fmt"

	"github.com/moqsien/processes/logger"
)

// LoopPool hosts the subordinate loops. The base loop belongs to the caller
// and is handed out when the pool has no workers of its own. Each worker
// loop lives on its own goroutine for the pool's whole lifetime.
type LoopPool struct {
	baseLoop *EventLoop
	name     string
	started  bool
	numLoops int
	balancer IBalancer
	threads  []*LoopThread
	loops    []*EventLoop
}

func NewLoopPool(baseLoop *EventLoop, name string) *LoopPool {
	return &LoopPool{
		baseLoop: baseLoop,
		name:     name,
	}
}

func (that *LoopPool) SetLoopNum(numLoops int) {
	that.numLoops = numLoops
}

func (that *LoopPool) SetBalancer(b IBalancer) {
	that.balancer = b
}

func (that *LoopPool) Start(cb ThreadInitCallback) {
	that.baseLoop.AssertInLoop()
	if that.started {
		logger.Fatalf("LoopPool %s started twice", that.name)
	}
	that.started = true

	if that.numLoops == 0 {
		if cb != nil {
			cb(that.baseLoop)
		}
		return
	}
	if that.balancer == nil {
		logger.Fatalf("LoopPool %s has workers but no balancer", that.name)
	}

	for i := 0; i < that.numLoops; i++ {
		t := NewLoopThread(cb, fmt.Sprintf("%s%d", that.name, i))
		that.threads = append(that.threads, t)
		loop := t.StartLoop()
		that.loops = append(that.loops, loop)
		that.balancer.Register(loop)
	}
}

// GetNextLoop returns the base loop when the pool runs single-threaded,
// otherwise asks the installed balancer. The pool has no default balancer of
// its own; Start with workers and no balancer is fatal.
func (that *LoopPool) GetNextLoop() *EventLoop {
	if len(that.loops) == 0 {
		return that.baseLoop
	}
	return that.balancer.Next()
}

func (that *LoopPool) GetAllLoops() []*EventLoop {
	if len(that.loops) == 0 {
		return []*EventLoop{that.baseLoop}
	}
	return that.loops
}

func (that *LoopPool) Started() bool {
	return that.started
}

func (that *LoopPool) Name() string {
	return that.name
}

// Stop quits every worker loop. The base loop is the caller's to quit.
func (that *LoopPool) Stop() {
	for _, loop := range that.loops {
		loop.Quit()
	}
}
