package eloop

import "net"

type IteratorFunc func(key int, val *EventLoop) bool

// IBalancer picks the loop the next accepted connection lands on.
// Implementations live in package balancer.
type IBalancer interface {
	Register(*EventLoop)
	Next(addr ...net.Addr) *EventLoop
	Iterator(f IteratorFunc)
	Len() int
}
