package natsc

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outBytes(c *Conn) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.bw.Bytes())
}

func TestConn_Publish_Framing(t *testing.T) {
	c := newParserConn(t)
	require.NoError(t, c.Publish("foo", []byte("hello")))
	assert.Equal(t, "PUB foo 5\r\nhello\r\n", outBytes(c))

	st := c.Stats()
	assert.Equal(t, uint64(1), st.OutMsgs)
	assert.Equal(t, uint64(5), st.OutBytes)
}

func TestConn_Publish_EmptyPayload(t *testing.T) {
	c := newParserConn(t)
	require.NoError(t, c.Publish("foo", nil))
	assert.Equal(t, "PUB foo 0\r\n\r\n", outBytes(c))
}

func TestConn_PublishRequest_Framing(t *testing.T) {
	c := newParserConn(t)
	require.NoError(t, c.PublishRequest("foo", "_INBOX.1", []byte("hi")))
	assert.Equal(t, "PUB foo _INBOX.1 2\r\nhi\r\n", outBytes(c))
}

func TestConn_PublishMsg_HeadersFraming(t *testing.T) {
	c := newParserConn(t)
	m := NewMsg("foo")
	m.Header.Set("Key", "val")
	m.Data = []byte("body")
	require.NoError(t, c.PublishMsg(m))

	hdr := "NATS/1.0\r\nKey: val\r\n\r\n"
	want := fmt.Sprintf("HPUB foo %d %d\r\n%sbody\r\n", len(hdr), len(hdr)+4, hdr)
	assert.Equal(t, want, outBytes(c))
}

func TestConn_Publish_BadSubject(t *testing.T) {
	c := newParserConn(t)
	assert.ErrorIs(t, c.Publish(_EMPTY, nil), ErrBadSubject)
	assert.ErrorIs(t, c.Publish("has space", nil), ErrBadSubject)
	assert.ErrorIs(t, c.Publish("has\ttab", nil), ErrBadSubject)
}

func TestConn_Publish_MaxPayload(t *testing.T) {
	c := newParserConn(t)
	c.mu.Lock()
	c.info.MaxPayload = 4
	c.mu.Unlock()

	assert.ErrorIs(t, c.Publish("foo", []byte("hello")), ErrMaxPayload)
	require.NoError(t, c.Publish("foo", []byte("ok")))
}

func TestConn_Publish_Closed(t *testing.T) {
	c := newParserConn(t)
	c.closeConn(nil)
	assert.ErrorIs(t, c.Publish("foo", nil), ErrConnectionClosed)
}

func TestConn_Publish_ReconnectBuffering(t *testing.T) {
	c := newParserConn(t)
	c.mu.Lock()
	c.status = Reconnecting
	c.pending = newBuffer(make([]byte, 256))
	c.mu.Unlock()

	require.NoError(t, c.Publish("foo", []byte("queued")))
	c.mu.Lock()
	pending := string(c.pending.Bytes())
	buffered := c.bw.Len()
	c.mu.Unlock()
	assert.Equal(t, "PUB foo 6\r\nqueued\r\n", pending)
	assert.Zero(t, buffered)
}

func TestConn_Publish_ReconnectBufferFull(t *testing.T) {
	c := newParserConn(t)
	c.mu.Lock()
	c.status = Reconnecting
	c.pending = newBuffer(make([]byte, 256))
	c.opts.ReconnectBufSize = 32
	c.mu.Unlock()

	assert.ErrorIs(t, c.Publish("foo", []byte(strings.Repeat("x", 64))), ErrReconnectBufExceeded)
}

func TestAppendUint(t *testing.T) {
	assert.Equal(t, "0", string(appendUint(nil, 0)))
	assert.Equal(t, "7", string(appendUint(nil, 7)))
	assert.Equal(t, "1048576", string(appendUint(nil, 1048576)))
	assert.Equal(t, "PUB 42", string(appendUint([]byte("PUB "), 42)))
}

func TestBuffer_GrowsPastBackend(t *testing.T) {
	b := newBuffer(make([]byte, 8))
	b.AppendString("12345678")
	assert.Equal(t, 8, b.Len())
	b.AppendString("overflow")
	assert.Equal(t, "12345678overflow", string(b.Bytes()))
	b.Reset()
	assert.Zero(t, b.Len())
	b.Release()
}
