package balancer

import (
	"net"

	"github.com/zhvoker/Voker-Server/eloop"
)

// RoundRobin hands out registered loops in turn, modulo the loop count.
type RoundRobin struct {
	loopList  []*eloop.EventLoop
	size      int
	nextIndex int
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (that *RoundRobin) Len() int { return that.size }

func (that *RoundRobin) Iterator(f eloop.IteratorFunc) {
	for key, val := range that.loopList {
		if !f(key, val) {
			break
		}
	}
}

func (that *RoundRobin) Register(l *eloop.EventLoop) {
	that.loopList = append(that.loopList, l)
	that.size++
}

func (that *RoundRobin) Next(_ ...net.Addr) (l *eloop.EventLoop) {
	l = that.loopList[that.nextIndex]
	if that.nextIndex++; that.nextIndex >= that.size {
		that.nextIndex = 0
	}
	return
}
