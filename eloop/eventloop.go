//go:build linux

package eloop

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moqsien/processes/logger"
	"golang.org/x/sys/unix"

	"github.com/zhvoker/Voker-Server/sys"
)

// PollTimeoutMs bounds one poller wait, so a cross-thread Quit is observed
// within this window even if no wakeup is written.
const PollTimeoutMs = 10000

type Task func()

// one loop per thread: the registry detects a second loop trying to claim a
// thread that already hosts one.
var loopRegistry = struct {
	sync.Mutex
	loops map[int]*EventLoop
}{loops: make(map[int]*EventLoop)}

// EventLoop owns one poller and every channel registered on it. All channel
// and poller mutation happens on the goroutine that created the loop, which
// stays locked to its OS thread for the loop's lifetime.
type EventLoop struct {
	tid         int
	quit        int32
	looping     int32
	doingTasks  int32
	connCount   int32
	poller      *Poller
	wakeupFd    int
	wakeupCh    *Channel
	wakeupBuf   []byte
	activeChs   []*Channel
	currentCh   *Channel
	mutex       sync.Mutex
	pendingList []Task
}

func New() *EventLoop {
	runtime.LockOSThread()
	tid := unix.Gettid()

	loopRegistry.Lock()
	if occupant, found := loopRegistry.loops[tid]; found {
		loopRegistry.Unlock()
		logger.Fatalf("EventLoop: another loop %p already runs in thread %d", occupant, tid)
	}
	that := &EventLoop{tid: tid, wakeupBuf: make([]byte, 8)}
	loopRegistry.loops[tid] = that
	loopRegistry.Unlock()

	that.poller = NewPoller(that)
	wakeupFd, err := sys.CreateEventFd()
	if err != nil {
		logger.Fatalf("EventLoop: %v", err)
	}
	that.wakeupFd = wakeupFd
	that.wakeupCh = NewChannel(that, wakeupFd)
	that.wakeupCh.SetReadCallback(that.handleWakeup)
	that.wakeupCh.EnableReading()
	return that
}

// Loop runs until Quit: wait on the poller, dispatch the ready channels in
// report order, then drain the pending tasks.
func (that *EventLoop) Loop() {
	that.AssertInLoop()
	atomic.StoreInt32(&that.quit, 0)
	atomic.StoreInt32(&that.looping, 1)
	logger.Debugf("EventLoop %p start looping in thread %d", that, that.tid)

	for atomic.LoadInt32(&that.quit) == 0 {
		that.activeChs = that.activeChs[:0]
		receiveTime := that.poller.Poll(PollTimeoutMs, &that.activeChs)
		for _, ch := range that.activeChs {
			if ch.State() != ChannelAdded {
				// removed by an earlier callback of this batch
				continue
			}
			that.currentCh = ch
			ch.HandleEvent(receiveTime)
		}
		that.currentCh = nil
		that.doPendingTasks()
	}

	atomic.StoreInt32(&that.looping, 0)
	logger.Debugf("EventLoop %p stop looping", that)
}

// Quit may be called from any goroutine. Cross-thread callers get a wakeup so
// the flag is seen before the next poll timeout expires.
func (that *EventLoop) Quit() {
	atomic.StoreInt32(&that.quit, 1)
	if !that.IsInLoop() {
		that.Wakeup()
	}
}

// RunInLoop runs the task immediately when already on the loop goroutine,
// otherwise it is queued for the loop to pick up.
func (that *EventLoop) RunInLoop(task Task) {
	if that.IsInLoop() {
		task()
		return
	}
	that.QueueInLoop(task)
}

// QueueInLoop appends the task to the pending list. A wakeup is written when
// the caller is off-loop, or when the loop is currently draining tasks and
// would otherwise block in the poller before re-checking the list.
func (that *EventLoop) QueueInLoop(task Task) {
	that.mutex.Lock()
	that.pendingList = append(that.pendingList, task)
	that.mutex.Unlock()

	if !that.IsInLoop() || atomic.LoadInt32(&that.doingTasks) == 1 {
		that.Wakeup()
	}
}

func (that *EventLoop) Wakeup() {
	if err := sys.Trigger(that.wakeupFd); err != nil {
		logger.Errorf("EventLoop.Wakeup: %v", err)
	}
}

func (that *EventLoop) handleWakeup(_ time.Time) {
	if _, err := sys.DrainEventFd(that.wakeupFd, that.wakeupBuf); err != nil {
		logger.Errorf("EventLoop.handleWakeup: %v", err)
	}
}

// doPendingTasks swaps the list out under the mutex and runs the local copy,
// so queued tasks may re-enqueue without deadlock or unbounded lock hold.
func (that *EventLoop) doPendingTasks() {
	var tasks []Task
	atomic.StoreInt32(&that.doingTasks, 1)

	that.mutex.Lock()
	tasks, that.pendingList = that.pendingList, nil
	that.mutex.Unlock()

	for _, task := range tasks {
		task()
	}
	atomic.StoreInt32(&that.doingTasks, 0)
}

func (that *EventLoop) UpdateChannel(ch *Channel) {
	that.AssertInLoop()
	that.poller.UpdateChannel(ch)
}

func (that *EventLoop) RemoveChannel(ch *Channel) {
	that.AssertInLoop()
	that.poller.RemoveChannel(ch)
}

func (that *EventLoop) HasChannel(ch *Channel) bool {
	that.AssertInLoop()
	return that.poller.HasChannel(ch)
}

// AddConnCount tracks how many connections are pinned to this loop, for the
// least-conn balancer.
func (that *EventLoop) AddConnCount(i int32) int32 {
	return atomic.AddInt32(&that.connCount, i)
}

func (that *EventLoop) ConnCount() int32 {
	return atomic.LoadInt32(&that.connCount)
}

// IsInLoop reports whether the caller runs on the loop's thread. The loop
// goroutine is locked to its OS thread, so the kernel tid identifies it.
func (that *EventLoop) IsInLoop() bool {
	return unix.Gettid() == that.tid
}

func (that *EventLoop) AssertInLoop() {
	if !that.IsInLoop() {
		logger.Fatalf("EventLoop %p owned by thread %d was used from thread %d", that, that.tid, unix.Gettid())
	}
}

// Close releases the poller and the wakeup fd. Call it on the loop goroutine
// after Loop has returned.
func (that *EventLoop) Close() {
	that.AssertInLoop()
	that.wakeupCh.DisableAll()
	that.wakeupCh.Remove()
	_ = sys.CloseFd(that.wakeupFd)
	_ = that.poller.Close()

	loopRegistry.Lock()
	delete(loopRegistry.loops, that.tid)
	loopRegistry.Unlock()
	runtime.UnlockOSThread()
}
