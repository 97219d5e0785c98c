//go:build linux

package buffer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func checkInvariants(t *testing.T, buf *Buffer) {
	t.Helper()
	assert.GreaterOrEqual(t, buf.readerIndex, 0, "readerIndex must not be negative")
	assert.LessOrEqual(t, buf.readerIndex, buf.writerIndex, "readerIndex must not pass writerIndex")
	assert.LessOrEqual(t, buf.writerIndex, len(buf.buf), "writerIndex must not pass capacity")
}

func TestBufferAppendRetrieve(t *testing.T) {
	buf := New()
	assert.Equal(t, 0, buf.ReadableBytes())
	assert.Equal(t, InitialSize, buf.WritableBytes())
	assert.Equal(t, CheapPrepend, buf.PrependableBytes())

	payload := bytes.Repeat([]byte("x"), 200)
	buf.Append(payload)
	checkInvariants(t, buf)
	assert.Equal(t, 200, buf.ReadableBytes())
	assert.Equal(t, InitialSize-200, buf.WritableBytes())

	buf.Retrieve(50)
	checkInvariants(t, buf)
	assert.Equal(t, 150, buf.ReadableBytes())
	assert.Equal(t, CheapPrepend+50, buf.PrependableBytes())

	buf.RetrieveAll()
	checkInvariants(t, buf)
	assert.Equal(t, 0, buf.ReadableBytes())
	assert.Equal(t, CheapPrepend, buf.PrependableBytes(), "retrieveAll must reset the headroom")
}

func TestBufferRoundTrip(t *testing.T) {
	buf := New()
	payload := []byte("the quick brown fox jumps over the lazy dog")
	buf.Append(payload)
	assert.Equal(t, string(payload), buf.RetrieveAllAsString())
	assert.Equal(t, 0, buf.ReadableBytes())

	buf.AppendString("hello")
	assert.Equal(t, "he", buf.RetrieveAsString(2))
	assert.Equal(t, "llo", buf.RetrieveAllAsString())
}

func TestBufferCompactionKeepsContent(t *testing.T) {
	buf := New()
	buf.Append(bytes.Repeat([]byte("a"), 800))
	buf.Retrieve(600)
	buf.Append(bytes.Repeat([]byte("b"), 200))
	// writable 24, dead zone 600: this append must compact, not grow
	capBefore := buf.Capacity()
	content := append(bytes.Repeat([]byte("a"), 200), bytes.Repeat([]byte("b"), 200)...)
	buf.Append(bytes.Repeat([]byte("c"), 400))
	checkInvariants(t, buf)
	assert.Equal(t, capBefore, buf.Capacity(), "compaction must not reallocate")
	assert.Equal(t, CheapPrepend, buf.PrependableBytes(), "compaction moves payload to the headroom edge")
	assert.Equal(t, string(content)+string(bytes.Repeat([]byte("c"), 400)), string(buf.Peek()))
}

func TestBufferGrow(t *testing.T) {
	buf := New()
	buf.Append(bytes.Repeat([]byte("g"), 2000))
	checkInvariants(t, buf)
	assert.Equal(t, 2000, buf.ReadableBytes())
	assert.GreaterOrEqual(t, buf.Capacity(), CheapPrepend+2000)
}

func TestBufferPrependHeadroom(t *testing.T) {
	buf := New()
	buf.Append(bytes.Repeat([]byte("p"), 16))
	capBefore := buf.Capacity()

	header := []byte{0, 0, 0, 16}
	buf.Prepend(header)
	checkInvariants(t, buf)
	assert.Equal(t, capBefore, buf.Capacity(), "prepend must not reallocate")
	assert.Equal(t, 20, buf.ReadableBytes())
	assert.Equal(t, append(header, bytes.Repeat([]byte("p"), 16)...), buf.Peek())
	assert.Equal(t, CheapPrepend-4, buf.PrependableBytes())
}

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestBufferReadFdScatter(t *testing.T) {
	wfd, rfd := socketPair(t)

	payload := bytes.Repeat([]byte("s"), 3000)
	written, err := unix.Write(wfd, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), written)

	buf := New()
	require.Less(t, buf.WritableBytes(), 3000, "burst must exceed the writable zone")
	n, err := buf.ReadFd(rfd)
	require.NoError(t, err)
	assert.Equal(t, 3000, n, "one scatter read must take the whole burst")
	assert.Equal(t, 3000, buf.ReadableBytes())
	assert.Equal(t, payload, buf.Peek())
	checkInvariants(t, buf)
}

func TestBufferReadFdFitsWritable(t *testing.T) {
	wfd, rfd := socketPair(t)

	_, err := unix.Write(wfd, []byte("tiny"))
	require.NoError(t, err)

	buf := New()
	n, err := buf.ReadFd(rfd)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "tiny", buf.RetrieveAllAsString())
}

func TestBufferWriteFd(t *testing.T) {
	wfd, rfd := socketPair(t)

	buf := New()
	buf.AppendString("outbound")
	n, err := buf.WriteFd(wfd)
	require.NoError(t, err)
	buf.Retrieve(n)
	assert.Equal(t, 8, n)
	assert.Equal(t, 0, buf.ReadableBytes())

	got := make([]byte, 16)
	rn, err := unix.Read(rfd, got)
	require.NoError(t, err)
	assert.Equal(t, "outbound", string(got[:rn]))
}
