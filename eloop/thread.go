//go:build linux

package eloop

type ThreadInitCallback func(loop *EventLoop)

// LoopThread hosts one EventLoop on a dedicated goroutine locked to its own
// OS thread. The loop is built on that goroutine and handed back through a
// one-shot channel once it is ready to poll.
type LoopThread struct {
	name         string
	loop         *EventLoop
	initCallback ThreadInitCallback
	ready        chan *EventLoop
}

func NewLoopThread(cb ThreadInitCallback, name string) *LoopThread {
	return &LoopThread{
		name:         name,
		initCallback: cb,
		ready:        make(chan *EventLoop, 1),
	}
}

// Run is the body of the hosting worker. It blocks until the loop quits.
func (that *LoopThread) Run() {
	loop := New()
	if that.initCallback != nil {
		that.initCallback(loop)
	}
	that.ready <- loop
	loop.Loop()
	loop.Close()
}

// WaitLoop blocks until the hosted loop has been constructed.
func (that *LoopThread) WaitLoop() *EventLoop {
	if that.loop == nil {
		that.loop = <-that.ready
	}
	return that.loop
}

// StartLoop spawns the hosting goroutine and returns the child loop once it
// is ready.
func (that *LoopThread) StartLoop() *EventLoop {
	go that.Run()
	return that.WaitLoop()
}

func (that *LoopThread) Name() string {
	return that.name
}
