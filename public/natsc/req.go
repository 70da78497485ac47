package natsc

import (
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nuid"
)

type respInfo struct {
	ch      chan *Msg
	removed bool
}

// Request publishes data on subject with a generated reply inbox and
// waits up to timeout for the answer. A 503 status reply means no one
// is listening and maps to ErrNoResponders.
func (c *Conn) Request(subject string, data []byte, timeout time.Duration) (*Msg, error) {
	return c.request(subject, nil, data, timeout)
}

// RequestMsg is Request carrying headers.
func (c *Conn) RequestMsg(m *Msg, timeout time.Duration) (*Msg, error) {
	if m == nil {
		return nil, ErrInvalidMsg
	}
	var hdr []byte
	if len(m.Header) > 0 {
		hdr = encodeHeader(m.Header)
	}
	return c.request(m.Subject, hdr, m.Data, timeout)
}

// request correlates all requests of the connection over one wildcard
// subscription, created lazily on first use. Each request gets a
// token suffix under the shared inbox prefix.
func (c *Conn) request(subject string, hdr, data []byte, timeout time.Duration) (*Msg, error) {
	c.mu.Lock()
	if c.status == Closed {
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	if c.respMux == nil {
		c.respPrefix = InboxPrefix + nuid.Next() + "."
		c.respSub = c.respPrefix + "*"
		c.respMap = make(map[string]*respInfo)
		s, err := c.subscribeLocked(c.respSub, _EMPTY, c.respHandler)
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
		c.respMux = s
	}
	c.respToken++
	token := strconv.FormatUint(c.respToken, 10)
	ri := &respInfo{ch: make(chan *Msg, 1)}
	c.respMap[token] = ri
	reply := c.respPrefix + token
	c.mu.Unlock()

	if err := c.publish(subject, reply, hdr, data, true); err != nil {
		c.mu.Lock()
		delete(c.respMap, token)
		c.mu.Unlock()
		return nil, err
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case m := <-ri.ch:
		return checkNoResponders(m)
	case <-c.done:
		return nil, ErrConnectionClosed
	case <-t.C:
		c.mu.Lock()
		won := !ri.removed
		if won {
			ri.removed = true
			delete(c.respMap, token)
		}
		c.mu.Unlock()
		if !won {
			// The reply beat the timer to the handoff.
			return checkNoResponders(<-ri.ch)
		}
		return nil, ErrTimeout
	}
}

func checkNoResponders(m *Msg) (*Msg, error) {
	if m.isNoResponders() {
		m.Release()
		return nil, ErrNoResponders
	}
	return m, nil
}

// respHandler routes a reply to its waiting request. Exactly one side
// wins the handoff: a reply arriving after the requester timed out is
// discarded here, and a timeout after the reply was claimed yields
// the message anyway.
func (c *Conn) respHandler(m *Msg) {
	c.mu.Lock()
	var token string
	if strings.HasPrefix(m.Subject, c.respPrefix) {
		token = m.Subject[len(c.respPrefix):]
	}
	ri := c.respMap[token]
	if ri == nil && len(c.respMap) == 1 {
		// Some intermediaries rewrite reply subjects. With a single
		// request outstanding the reply is still unambiguous.
		for k, v := range c.respMap {
			token, ri = k, v
		}
	}
	if ri == nil || ri.removed {
		c.mu.Unlock()
		m.Release()
		return
	}
	ri.removed = true
	delete(c.respMap, token)
	c.mu.Unlock()

	ri.ch <- m
}
