package balancer

import (
	"net"

	"github.com/zhvoker/Voker-Server/eloop"
)

// LeastConn picks the loop currently hosting the fewest connections.
type LeastConn struct {
	loopList []*eloop.EventLoop
	size     int
}

func NewLeastConn() *LeastConn {
	return &LeastConn{}
}

func (that *LeastConn) Len() int { return that.size }

func (that *LeastConn) Iterator(f eloop.IteratorFunc) {
	for key, val := range that.loopList {
		if !f(key, val) {
			break
		}
	}
}

func (that *LeastConn) Register(l *eloop.EventLoop) {
	that.loopList = append(that.loopList, l)
	that.size++
}

func (that *LeastConn) Next(_ ...net.Addr) (l *eloop.EventLoop) {
	l = that.loopList[0]
	for _, v := range that.loopList {
		if v.ConnCount() < l.ConnCount() {
			l = v
		}
	}
	return
}
