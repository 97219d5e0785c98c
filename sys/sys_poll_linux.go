//go:build linux

package sys

import (
	"golang.org/x/sys/unix"

	"github.com/zhvoker/Voker-Server/utils"
)

var wakeupMsg = []byte{0, 0, 0, 0, 0, 0, 0, 1}

func CreatePollFd() (pollFd int, err error) {
	pollFd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	return pollFd, utils.SysError("epoll_create1", err)
}

func CreateEventFd() (evFd int, err error) {
	evFd, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	return evFd, utils.SysError("eventfd", err)
}

func CtlPoll(pollFd, fd, ctlAction int, events uint32) (err error) {
	var event *unix.EpollEvent
	if ctlAction != unix.EPOLL_CTL_DEL {
		event = &unix.EpollEvent{Fd: int32(fd), Events: events}
	}
	err = unix.EpollCtl(pollFd, ctlAction, fd, event)
	var eSysName string
	switch ctlAction {
	case unix.EPOLL_CTL_ADD:
		eSysName = "epoll_ctl_add"
	case unix.EPOLL_CTL_MOD:
		eSysName = "epoll_ctl_mod"
	case unix.EPOLL_CTL_DEL:
		eSysName = "epoll_ctl_del"
	}
	return utils.SysError(eSysName, err)
}

// Trigger makes the event fd readable so that a blocked epoll_wait returns.
func Trigger(evFd int) (err error) {
	if _, err = unix.Write(evFd, wakeupMsg); err == unix.EAGAIN {
		err = nil
	}
	return utils.SysError("write", err)
}

func DrainEventFd(evFd int, buf []byte) (n int, err error) {
	n, err = unix.Read(evFd, buf)
	return n, utils.SysError("read", err)
}
