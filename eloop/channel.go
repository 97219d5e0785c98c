package eloop

import (
	"time"

	"golang.org/x/sys/unix"
)

const (
	NoneEvent  uint32 = 0
	ReadEvent  uint32 = unix.EPOLLIN | unix.EPOLLPRI
	WriteEvent uint32 = unix.EPOLLOUT
)

// registration states of a channel inside the poller
const (
	ChannelNew     = -1
	ChannelAdded   = 1
	ChannelDeleted = 2
)

type ReadCallback func(receiveTime time.Time)

type EventCallback func()

// Channel is the per-fd event handle. It does not own the fd; it aggregates
// the interest mask, the events the poller reported last, and the callbacks
// the loop dispatches to.
type Channel struct {
	loop    *EventLoop
	fd      int
	events  uint32
	revents uint32
	state   int

	tied bool
	tie  interface{}

	readCallback  ReadCallback
	writeCallback EventCallback
	closeCallback EventCallback
	errorCallback EventCallback
}

func NewChannel(loop *EventLoop, fd int) *Channel {
	return &Channel{
		loop:  loop,
		fd:    fd,
		state: ChannelNew,
	}
}

func (that *Channel) GetFd() int {
	return that.fd
}

func (that *Channel) Events() uint32 {
	return that.events
}

func (that *Channel) SetRevents(revents uint32) {
	that.revents = revents
}

func (that *Channel) State() int {
	return that.state
}

func (that *Channel) SetState(state int) {
	that.state = state
}

func (that *Channel) OwnerLoop() *EventLoop {
	return that.loop
}

func (that *Channel) SetReadCallback(cb ReadCallback) {
	that.readCallback = cb
}

func (that *Channel) SetWriteCallback(cb EventCallback) {
	that.writeCallback = cb
}

func (that *Channel) SetCloseCallback(cb EventCallback) {
	that.closeCallback = cb
}

func (that *Channel) SetErrorCallback(cb EventCallback) {
	that.errorCallback = cb
}

// Tie records the object whose lifetime gates dispatch, typically the
// connection owning this channel. HandleEvent keeps a reference for the
// duration of the callbacks so the owner cannot be collected mid-dispatch.
func (that *Channel) Tie(owner interface{}) {
	that.tie = owner
	that.tied = true
}

func (that *Channel) EnableReading() {
	that.events |= ReadEvent
	that.update()
}

func (that *Channel) DisableReading() {
	that.events &^= ReadEvent
	that.update()
}

func (that *Channel) EnableWriting() {
	that.events |= WriteEvent
	that.update()
}

func (that *Channel) DisableWriting() {
	that.events &^= WriteEvent
	that.update()
}

func (that *Channel) DisableAll() {
	that.events = NoneEvent
	that.update()
}

func (that *Channel) IsNoneEvent() bool {
	return that.events == NoneEvent
}

func (that *Channel) IsReading() bool {
	return that.events&ReadEvent != 0
}

func (that *Channel) IsWriting() bool {
	return that.events&WriteEvent != 0
}

func (that *Channel) update() {
	that.loop.UpdateChannel(that)
}

// Remove unregisters the channel from the owning loop's poller. Interest must
// be disabled first.
func (that *Channel) Remove() {
	that.loop.RemoveChannel(that)
}

func (that *Channel) HandleEvent(receiveTime time.Time) {
	if that.tied && that.tie == nil {
		return
	}
	that.handleEventWithGuard(receiveTime)
}

// Dispatch order matters: only one branch may tear the connection down, the
// later branches see interest already disabled.
func (that *Channel) handleEventWithGuard(receiveTime time.Time) {
	if that.revents&unix.EPOLLHUP != 0 && that.revents&unix.EPOLLIN == 0 {
		if that.closeCallback != nil {
			that.closeCallback()
		}
	}
	if that.revents&unix.EPOLLERR != 0 {
		if that.errorCallback != nil {
			that.errorCallback()
		}
	}
	if that.revents&(unix.EPOLLIN|unix.EPOLLPRI|unix.EPOLLRDHUP) != 0 {
		if that.readCallback != nil {
			that.readCallback(receiveTime)
		}
	}
	if that.revents&unix.EPOLLOUT != 0 {
		if that.writeCallback != nil {
			that.writeCallback()
		}
	}
}
