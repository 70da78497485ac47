package natsc

import (
	"fmt"
	"sync"
	"time"

	"github.com/fujin-io/natsc/internal/dispatch"
)

// MsgHandler processes one inbound message. Handlers of the same
// subscription run sequentially, in arrival order, on a dispatcher
// goroutine.
type MsgHandler func(*Msg)

// Subscription represents interest in a subject, optionally shared
// within a queue group. Async subscriptions deliver through a
// dispatcher; sync ones buffer for NextMsg.
type Subscription struct {
	Subject string
	Queue   string

	mu   sync.Mutex
	sid  int64
	conn *Conn
	cb   MsgHandler
	d    *dispatch.Dispatcher
	mch  chan *Msg

	closed   bool
	draining bool
	sc       bool

	received  uint64
	delivered uint64
	max       uint64
	dropped   int

	pMsgs       int
	pBytes      int
	pMsgsLimit  int
	pBytesLimit int
}

// Subscribe expresses interest in subject, delivering messages to cb.
func (c *Conn) Subscribe(subject string, cb MsgHandler) (*Subscription, error) {
	return c.subscribe(subject, _EMPTY, cb)
}

// QueueSubscribe joins the given queue group on subject; the server
// picks one member per message.
func (c *Conn) QueueSubscribe(subject, queue string, cb MsgHandler) (*Subscription, error) {
	return c.subscribe(subject, queue, cb)
}

// SubscribeSync expresses interest in subject for consumption through
// NextMsg.
func (c *Conn) SubscribeSync(subject string) (*Subscription, error) {
	return c.subscribe(subject, _EMPTY, nil)
}

// QueueSubscribeSync is SubscribeSync within a queue group.
func (c *Conn) QueueSubscribeSync(subject, queue string) (*Subscription, error) {
	return c.subscribe(subject, queue, nil)
}

func (c *Conn) subscribe(subject, queue string, cb MsgHandler) (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribeLocked(subject, queue, cb)
}

func (c *Conn) subscribeLocked(subject, queue string, cb MsgHandler) (*Subscription, error) {
	if subject == _EMPTY || !validSubject(subject) {
		return nil, ErrBadSubject
	}
	if queue != _EMPTY && !validSubject(queue) {
		return nil, ErrBadSubject
	}
	switch c.status {
	case Closed:
		return nil, ErrConnectionClosed
	case DrainingSubs, DrainingPubs:
		return nil, ErrConnectionDraining
	}

	c.sids++
	s := &Subscription{
		Subject:     subject,
		Queue:       queue,
		sid:         c.sids,
		conn:        c,
		cb:          cb,
		pMsgsLimit:  c.opts.PendingMsgsLimit,
		pBytesLimit: c.opts.PendingBytesLimit,
	}
	if cb == nil {
		s.mch = make(chan *Msg, s.pMsgsLimit)
	} else {
		d, err := c.rt.dispatchers.Assign()
		if err != nil {
			return nil, err
		}
		s.d = d
	}
	c.subs[s.sid] = s

	proto := fmt.Sprintf(subProto, subject, queue, s.sid)
	if c.status == Reconnecting {
		if c.pending.Len()+len(proto) > c.opts.ReconnectBufSize {
			delete(c.subs, s.sid)
			return nil, ErrReconnectBufExceeded
		}
		c.pending.AppendString(proto)
	} else {
		c.bw.AppendString(proto)
		c.kickFlusher()
	}
	return s, nil
}

// deliver runs on the subscription's dispatcher.
func (s *Subscription) deliver(m *Msg) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		m.Release()
		return
	}
	s.pMsgs--
	s.pBytes -= len(m.Data)
	if s.pMsgs == 0 {
		s.sc = false
	}
	s.delivered++
	cb := s.cb
	s.mu.Unlock()
	cb(m)
}

// NextMsg waits up to timeout for the next message on a synchronous
// subscription. Messages still buffered remain retrievable after the
// subscription or connection is closed.
func (s *Subscription) NextMsg(timeout time.Duration) (*Msg, error) {
	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return nil, ErrBadSubscription
	}
	if s.cb != nil {
		s.mu.Unlock()
		return nil, ErrSyncSubRequired
	}
	mch := s.mch
	s.mu.Unlock()

	t := time.NewTimer(timeout)
	defer t.Stop()

	var m *Msg
	var ok bool
	select {
	case m, ok = <-mch:
		if !ok {
			return nil, ErrBadSubscription
		}
	case <-t.C:
		return nil, ErrTimeout
	}

	s.mu.Lock()
	s.pMsgs--
	s.pBytes -= len(m.Data)
	if s.pMsgs == 0 {
		s.sc = false
	}
	s.delivered++
	s.mu.Unlock()
	return m, nil
}

// Unsubscribe removes interest immediately; buffered messages on a
// sync subscription stay readable.
func (s *Subscription) Unsubscribe() error {
	return s.unsubscribe(0, false)
}

// AutoUnsubscribe caps the subscription at max deliveries, after
// which it is removed on both ends.
func (s *Subscription) AutoUnsubscribe(max int) error {
	if max <= 0 {
		return s.Unsubscribe()
	}
	return s.unsubscribe(max, false)
}

// Drain stops interest at the server, lets buffered and in-flight
// messages finish, then removes the subscription.
func (s *Subscription) Drain() error {
	return s.unsubscribe(0, true)
}

func (s *Subscription) unsubscribe(max int, drain bool) error {
	s.mu.Lock()
	c := s.conn
	if c == nil || s.closed {
		s.mu.Unlock()
		return ErrBadSubscription
	}
	s.mu.Unlock()

	c.mu.Lock()
	if c.status == Closed {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	if _, ok := c.subs[s.sid]; !ok {
		c.mu.Unlock()
		return ErrBadSubscription
	}

	if max > 0 {
		s.mu.Lock()
		s.max = uint64(max)
		pendingDone := s.received >= s.max
		s.mu.Unlock()
		if !pendingDone {
			c.writeUnsubLocked(s.sid, max)
			c.mu.Unlock()
			return nil
		}
	}

	delete(c.subs, s.sid)
	c.writeUnsubLocked(s.sid, 0)
	c.mu.Unlock()

	if drain {
		go s.drainWait()
	} else {
		s.shutdown()
	}
	return nil
}

func (c *Conn) writeUnsubLocked(sid int64, max int) {
	var maxStr string
	if max > 0 {
		maxStr = fmt.Sprintf(" %d", max)
	}
	proto := fmt.Sprintf(unsubProto, sid, maxStr)
	if c.status == Reconnecting {
		if c.pending.Len()+len(proto) <= c.opts.ReconnectBufSize {
			c.pending.AppendString(proto)
		}
		return
	}
	c.bw.AppendString(proto)
	c.kickFlusher()
}

func (s *Subscription) drainWait() {
	s.mu.Lock()
	s.draining = true
	timeout := defaultDrainTimeout
	if s.conn != nil {
		timeout = s.conn.opts.DrainTimeout
	}
	s.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		done := s.pMsgs == 0
		s.mu.Unlock()
		if done || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.shutdown()
}

// shutdown marks the subscription closed. The channel of a sync
// subscription is closed under the lock, the same lock every sender
// holds, so buffered messages drain safely.
func (s *Subscription) shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.mch != nil {
		close(s.mch)
	}
	s.mu.Unlock()
}

// IsValid reports whether the subscription can still receive.
func (s *Subscription) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && !s.closed
}

// Pending returns the queued message and byte counts.
func (s *Subscription) Pending() (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.closed {
		return -1, -1, ErrBadSubscription
	}
	return s.pMsgs, s.pBytes, nil
}

// SetPendingLimits adjusts the queued message and byte bounds past
// which deliveries are dropped and the subscription flagged a slow
// consumer. Zero or negative values are rejected.
func (s *Subscription) SetPendingLimits(msgLimit, bytesLimit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.closed {
		return ErrBadSubscription
	}
	if msgLimit <= 0 || bytesLimit <= 0 {
		return ErrBadSubscription
	}
	if s.mch != nil && msgLimit > cap(s.mch) {
		// The channel of a sync subscription is sized at create
		// time and cannot grow.
		msgLimit = cap(s.mch)
	}
	s.pMsgsLimit, s.pBytesLimit = msgLimit, bytesLimit
	return nil
}

// PendingLimits returns the current bounds.
func (s *Subscription) PendingLimits() (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.closed {
		return -1, -1, ErrBadSubscription
	}
	return s.pMsgsLimit, s.pBytesLimit, nil
}

// Dropped returns how many messages were dropped for exceeding the
// pending limits.
func (s *Subscription) Dropped() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return -1, ErrBadSubscription
	}
	return s.dropped, nil
}

// Delivered returns how many messages have been handed to the
// application.
func (s *Subscription) Delivered() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return 0, ErrBadSubscription
	}
	return s.delivered, nil
}
