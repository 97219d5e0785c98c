/*
Buffer is the per-connection byte buffer. One contiguous region, three zones:

	+-------------------+------------------+------------------+
	| prependable bytes |  readable bytes  |  writable bytes  |
	+-------------------+------------------+------------------+
	0      <=      readerIndex   <=   writerIndex   <=   size

The prependable zone keeps CheapPrepend bytes of headroom in front of the
payload so that a length header can be written in place without shifting data.
*/
package buffer

import (
	bsPool "github.com/panjf2000/gnet/v2/pkg/pool/byteslice"

	"github.com/zhvoker/Voker-Server/sys"
)

const (
	CheapPrepend = 8
	InitialSize  = 1024

	extraBufSize = 64 << 10
)

type Buffer struct {
	buf         []byte
	readerIndex int
	writerIndex int
}

func New() *Buffer {
	return NewSize(InitialSize)
}

func NewSize(initialSize int) *Buffer {
	return &Buffer{
		buf:         make([]byte, CheapPrepend+initialSize),
		readerIndex: CheapPrepend,
		writerIndex: CheapPrepend,
	}
}

func (that *Buffer) ReadableBytes() int {
	return that.writerIndex - that.readerIndex
}

func (that *Buffer) WritableBytes() int {
	return len(that.buf) - that.writerIndex
}

func (that *Buffer) PrependableBytes() int {
	return that.readerIndex
}

func (that *Buffer) Capacity() int {
	return len(that.buf)
}

// Peek returns the readable region. The slice is only valid until the next
// mutating call on the buffer.
func (that *Buffer) Peek() []byte {
	return that.buf[that.readerIndex:that.writerIndex]
}

func (that *Buffer) Retrieve(n int) {
	if n < that.ReadableBytes() {
		that.readerIndex += n
		return
	}
	that.RetrieveAll()
}

func (that *Buffer) RetrieveAll() {
	that.readerIndex = CheapPrepend
	that.writerIndex = CheapPrepend
}

func (that *Buffer) RetrieveAsString(n int) string {
	if n > that.ReadableBytes() {
		n = that.ReadableBytes()
	}
	result := string(that.Peek()[:n])
	that.Retrieve(n)
	return result
}

func (that *Buffer) RetrieveAllAsString() string {
	return that.RetrieveAsString(that.ReadableBytes())
}

func (that *Buffer) Append(data []byte) {
	that.EnsureWritableBytes(len(data))
	copy(that.buf[that.writerIndex:], data)
	that.writerIndex += len(data)
}

func (that *Buffer) AppendString(data string) {
	that.EnsureWritableBytes(len(data))
	copy(that.buf[that.writerIndex:], data)
	that.writerIndex += len(data)
}

// Prepend writes into the headroom in front of the readable region.
func (that *Buffer) Prepend(data []byte) {
	that.readerIndex -= len(data)
	copy(that.buf[that.readerIndex:], data)
}

func (that *Buffer) EnsureWritableBytes(n int) {
	if that.WritableBytes() < n {
		that.makeSpace(n)
	}
}

// makeSpace compacts when the dead zone in front of the payload plus the tail
// covers the demand, otherwise it grows the backing array to writerIndex+n.
func (that *Buffer) makeSpace(n int) {
	if that.WritableBytes()+that.PrependableBytes()-CheapPrepend >= n {
		readable := that.ReadableBytes()
		copy(that.buf[CheapPrepend:], that.buf[that.readerIndex:that.writerIndex])
		that.readerIndex = CheapPrepend
		that.writerIndex = that.readerIndex + readable
		return
	}
	grown := make([]byte, that.writerIndex+n)
	copy(grown, that.buf[:that.writerIndex])
	that.buf = grown
}

// ReadFd drains the fd with at most one readv. A pooled 64 KiB overflow block
// is handed to the kernel as a second iovec, so a burst larger than the
// writable zone still lands in one syscall and is appended afterwards.
func (that *Buffer) ReadFd(fd int) (n int, err error) {
	writable := that.WritableBytes()
	if writable >= extraBufSize {
		n, err = sys.Read(fd, that.buf[that.writerIndex:])
		if err == nil && n > 0 {
			that.writerIndex += n
		}
		return
	}

	extra := bsPool.Get(extraBufSize)
	defer bsPool.Put(extra)

	n, err = sys.Readv(fd, [][]byte{that.buf[that.writerIndex:], extra})
	if err != nil || n <= 0 {
		return
	}
	if n <= writable {
		that.writerIndex += n
		return
	}
	that.writerIndex = len(that.buf)
	that.Append(extra[:n-writable])
	return
}

// WriteFd pushes the readable region to the fd. The caller retrieves the
// bytes that were actually sent.
func (that *Buffer) WriteFd(fd int) (n int, err error) {
	return sys.Write(fd, that.Peek())
}
