//go:build linux

/*
Poller wraps one epoll instance. It keeps the fd -> channel registry and a
scratch event list that doubles whenever a wait fills it completely. All
methods run on the owning loop's goroutine.
*/
package eloop

import (
	"time"

	"github.com/moqsien/processes/logger"
	"golang.org/x/sys/unix"

	"github.com/zhvoker/Voker-Server/sys"
	"github.com/zhvoker/Voker-Server/utils"
)

type Poller struct {
	ownerLoop *EventLoop
	pollFd    int
	channels  map[int]*Channel
	eventList []unix.EpollEvent
}

func NewPoller(loop *EventLoop) *Poller {
	pollFd, err := sys.CreatePollFd()
	if err != nil {
		logger.Fatalf("Poller: %v", err)
	}
	return &Poller{
		ownerLoop: loop,
		pollFd:    pollFd,
		channels:  make(map[int]*Channel),
		eventList: make([]unix.EpollEvent, sys.InitPollSize),
	}
}

// Poll blocks up to timeoutMs and appends every ready channel to
// activeChannels with its received events recorded. Returns the time the
// events were collected.
func (that *Poller) Poll(timeoutMs int, activeChannels *[]*Channel) time.Time {
	n, err := unix.EpollWait(that.pollFd, that.eventList, timeoutMs)
	now := time.Now()
	if n > 0 {
		that.fillActiveChannels(n, activeChannels)
		if n == len(that.eventList) {
			that.eventList = make([]unix.EpollEvent, n<<1)
		}
	} else if n < 0 && err != unix.EINTR {
		logger.Errorf("Poller.Poll: %v", utils.SysError("epoll_wait", err))
	}
	return now
}

func (that *Poller) fillActiveChannels(numEvents int, activeChannels *[]*Channel) {
	for i := 0; i < numEvents; i++ {
		ev := &that.eventList[i]
		ch, found := that.channels[int(ev.Fd)]
		if !found || ch.State() != ChannelAdded {
			continue
		}
		ch.SetRevents(ev.Events)
		*activeChannels = append(*activeChannels, ch)
	}
}

// UpdateChannel moves the channel through the kernel registration state
// machine according to its tag and current interest.
func (that *Poller) UpdateChannel(ch *Channel) {
	switch state := ch.State(); state {
	case ChannelNew, ChannelDeleted:
		if state == ChannelNew {
			that.channels[ch.GetFd()] = ch
		}
		ch.SetState(ChannelAdded)
		that.update(unix.EPOLL_CTL_ADD, ch)
	default:
		if ch.IsNoneEvent() {
			that.update(unix.EPOLL_CTL_DEL, ch)
			ch.SetState(ChannelDeleted)
		} else {
			that.update(unix.EPOLL_CTL_MOD, ch)
		}
	}
}

// RemoveChannel erases the channel from the registry. Calling it twice is
// harmless, the second call finds nothing and issues no syscall.
func (that *Poller) RemoveChannel(ch *Channel) {
	fd := ch.GetFd()
	if _, found := that.channels[fd]; !found {
		return
	}
	delete(that.channels, fd)
	if ch.State() == ChannelAdded {
		that.update(unix.EPOLL_CTL_DEL, ch)
	}
	ch.SetState(ChannelNew)
}

func (that *Poller) HasChannel(ch *Channel) bool {
	stored, found := that.channels[ch.GetFd()]
	return found && stored == ch
}

func (that *Poller) update(ctlAction int, ch *Channel) {
	if err := sys.CtlPoll(that.pollFd, ch.GetFd(), ctlAction, ch.Events()); err != nil {
		if ctlAction == unix.EPOLL_CTL_ADD {
			logger.Fatalf("Poller.update fd=%d: %v", ch.GetFd(), err)
		}
		logger.Errorf("Poller.update fd=%d: %v", ch.GetFd(), err)
	}
}

func (that *Poller) Close() error {
	return utils.SysError("close", sys.CloseFd(that.pollFd))
}
