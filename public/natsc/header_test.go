package natsc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader_GetSetAddDel(t *testing.T) {
	h := Header{}
	h.Set("My-Key1", "value1")
	h.Add("My-Key1", "value3")
	h.Set("My-Key2", "value2")

	assert.Equal(t, "value1", h.Get("My-Key1"))
	assert.Equal(t, []string{"value1", "value3"}, h.Values("My-Key1"))
	assert.Equal(t, "value2", h.Get("My-Key2"))

	// Lookups of absent keys must not alter the map.
	assert.Empty(t, h.Get("Missing"))
	assert.Nil(t, h.Values("Missing"))
	assert.Len(t, h, 2)

	h.Del("My-Key1")
	assert.Empty(t, h.Get("My-Key1"))
}

func TestHeader_EncodeDecodeRoundTrip(t *testing.T) {
	h := Header{}
	h.Add("My-Key1", "value1")
	h.Add("My-Key1", "value3")
	h.Set("My-Key2", "value2")

	got, err := decodeHeader(encodeHeader(h))
	require.NoError(t, err)
	assert.Equal(t, []string{"value1", "value3"}, got.Values("My-Key1"))
	assert.Equal(t, "value2", got.Get("My-Key2"))
}

func TestHeader_DecodeStatusLine(t *testing.T) {
	h, err := decodeHeader([]byte("NATS/1.0 503\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "503", h.Get(statusHdr))
	assert.Empty(t, h.Get(descrHdr))

	h, err = decodeHeader([]byte("NATS/1.0 404 No Messages\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "404", h.Get(statusHdr))
	assert.Equal(t, "No Messages", h.Get(descrHdr))
}

func TestHeader_DecodeFoldedValue(t *testing.T) {
	raw := []byte("NATS/1.0\r\nLong: first part\r\n  second part\r\n\r\n")
	h, err := decodeHeader(raw)
	require.NoError(t, err)
	assert.Equal(t, "first part second part", h.Get("Long"))
}

func TestHeader_DecodeErrors(t *testing.T) {
	cases := [][]byte{
		[]byte("HTTP/1.1 200\r\n\r\n"),
		[]byte("NATS/1.0\r\nNoColonHere\r\n\r\n"),
		[]byte("NATS/1.0\r\nKey: value"),
		[]byte("NATS/1.0\r\n  orphan continuation\r\n\r\n"),
	}
	for _, raw := range cases {
		_, err := decodeHeader(raw)
		assert.ErrorIs(t, err, ErrBadHeaderMsg, string(raw))
	}
}

func TestMsg_HeadersLazyLift(t *testing.T) {
	m := &Msg{rawHeader: []byte("NATS/1.0\r\nFoo: Bar\r\n\r\n"), needsLift: true}
	h, err := m.Headers()
	require.NoError(t, err)
	assert.Equal(t, "Bar", h.Get("Foo"))

	// Second access reuses the lifted form.
	h2, err := m.Headers()
	require.NoError(t, err)
	assert.Equal(t, h, h2)
}

func TestMsg_HeadersNone(t *testing.T) {
	m := &Msg{}
	_, err := m.Headers()
	assert.ErrorIs(t, err, ErrNoHeaders)
}

func TestMsg_NoRespondersStatus(t *testing.T) {
	m := &Msg{rawHeader: []byte("NATS/1.0 503\r\n\r\n"), needsLift: true}
	assert.True(t, m.isNoResponders())

	m = &Msg{rawHeader: []byte("NATS/1.0 503\r\n\r\n"), needsLift: true, Data: []byte("x"), buf: nil}
	assert.False(t, m.isNoResponders())
}

func TestMsg_ReleaseIdempotent(t *testing.T) {
	m := &Msg{buf: make([]byte, 8)}
	m.Release()
	assert.Nil(t, m.Data)
	m.Release()
}
