package natsc

import (
	"github.com/fujin-io/natsc/internal/common/pool"
	"github.com/fujin-io/natsc/internal/gc"
)

// Msg is a message received from, or destined to, the server. Data
// and raw headers of inbound messages live in a single pooled buffer;
// Release hands it back once the message is no longer needed.
type Msg struct {
	Subject string
	Reply   string
	Data    []byte
	Header  Header
	Sub     *Subscription

	sid       int64
	rawHeader []byte
	needsLift bool
	buf       []byte

	gci gc.Item
	rt  *Runtime
}

// NewMsg returns an outbound message for the given subject.
func NewMsg(subject string) *Msg {
	return &Msg{Subject: subject, Header: Header{}}
}

// Headers returns the message headers, lifting them from their wire
// form on first access.
func (m *Msg) Headers() (Header, error) {
	if m == nil {
		return nil, ErrInvalidMsg
	}
	if m.needsLift {
		h, err := decodeHeader(m.rawHeader)
		if err != nil {
			return nil, err
		}
		m.Header = h
		m.needsLift = false
	}
	if m.Header == nil {
		return nil, ErrNoHeaders
	}
	return m.Header, nil
}

// Status returns the inline status code carried on the header version
// line, or "" when the message has none.
func (m *Msg) Status() string {
	h, err := m.Headers()
	if err != nil {
		return _EMPTY
	}
	return h.Get(statusHdr)
}

func (m *Msg) isNoResponders() bool {
	return len(m.Data) == 0 && m.Status() == noResponders
}

// Release returns the message payload buffer to the shared pool. The
// recycle runs on the garbage collector goroutine so callers holding
// subscription or connection locks never pay for it inline. The
// message must not be used after Release.
func (m *Msg) Release() {
	buf := m.buf
	if buf == nil {
		return
	}
	m.buf, m.Data, m.rawHeader = nil, nil, nil
	m.gci.Free = func() { pool.Put(buf) }
	if m.rt == nil || !m.rt.collect(&m.gci) {
		pool.Put(buf)
	}
}
