package natsc

// Publish sends data on the given subject.
func (c *Conn) Publish(subject string, data []byte) error {
	return c.publish(subject, _EMPTY, nil, data, false)
}

// PublishRequest sends data on subject with a reply address for
// responders to answer on.
func (c *Conn) PublishRequest(subject, reply string, data []byte) error {
	return c.publish(subject, reply, nil, data, false)
}

// PublishMsg sends a message, including its headers when present.
func (c *Conn) PublishMsg(m *Msg) error {
	if m == nil {
		return ErrInvalidMsg
	}
	var hdr []byte
	if len(m.Header) > 0 {
		hdr = encodeHeader(m.Header)
	}
	return c.publish(m.Subject, m.Reply, hdr, m.Data, false)
}

// publish frames and enqueues one PUB or HPUB. The whole frame is
// assembled under the connection lock so concurrent publishers never
// interleave. With directFlush the socket write happens inline on the
// caller; otherwise the flusher goroutine is kicked.
func (c *Conn) publish(subject, reply string, hdr, data []byte, directFlush bool) error {
	if subject == _EMPTY || !validSubject(subject) {
		return ErrBadSubject
	}

	c.mu.Lock()
	switch c.status {
	case Closed:
		c.mu.Unlock()
		return ErrConnectionClosed
	case DrainingPubs:
		c.mu.Unlock()
		return ErrConnectionDraining
	}

	msgSize := len(hdr) + len(data)
	if c.info.MaxPayload > 0 && int64(msgSize) > c.info.MaxPayload {
		c.mu.Unlock()
		return ErrMaxPayload
	}

	var scratch [maxControlLineSize]byte
	b := scratch[:0]
	if hdr != nil {
		b = append(b, hpubProto...)
	} else {
		b = append(b, pubProto...)
	}
	b = append(b, subject...)
	b = append(b, ' ')
	if reply != _EMPTY {
		b = append(b, reply...)
		b = append(b, ' ')
	}
	if hdr != nil {
		b = appendUint(b, len(hdr))
		b = append(b, ' ')
	}
	b = appendUint(b, msgSize)
	b = append(b, _CRLF...)

	if c.status == Reconnecting {
		total := len(b) + msgSize + len(_CRLF)
		if c.pending.Len()+total > c.opts.ReconnectBufSize {
			c.mu.Unlock()
			return ErrReconnectBufExceeded
		}
		c.pending.Append(b)
		c.pending.Append(hdr)
		c.pending.Append(data)
		c.pending.AppendString(_CRLF)
	} else {
		c.bw.Append(b)
		c.bw.Append(hdr)
		c.bw.Append(data)
		c.bw.AppendString(_CRLF)
		if directFlush {
			if err := c.flushLocked(); err != nil {
				c.l.Error("flush failed", "err", err)
			}
		} else {
			c.kickFlusher()
		}
	}
	c.stats.OutMsgs++
	c.stats.OutBytes += uint64(msgSize)
	c.mu.Unlock()
	return nil
}

const digits = "0123456789"

// appendUint renders n in decimal, building the digits back to front
// in a small stack buffer.
func appendUint(dst []byte, n int) []byte {
	var t [12]byte
	i := len(t)
	if n <= 0 {
		i--
		t[i] = '0'
	} else {
		for l := n; l > 0; l /= 10 {
			i--
			t[i] = digits[l%10]
		}
	}
	return append(dst, t[i:]...)
}

// validSubject rejects subjects that would corrupt the control line.
func validSubject(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
			return false
		}
	}
	return true
}
