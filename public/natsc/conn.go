package natsc

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/fujin-io/natsc/internal/asynccb"
	"github.com/fujin-io/natsc/internal/common/pool"
	"github.com/fujin-io/natsc/internal/timers"
)

// Status is the connection lifecycle state.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
	Reconnecting
	DrainingSubs
	DrainingPubs
	Closed
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Reconnecting:
		return "RECONNECTING"
	case DrainingSubs:
		return "DRAINING_SUBS"
	case DrainingPubs:
		return "DRAINING_PUBS"
	case Closed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// Statistics tracks message and byte counts over the connection
// lifetime, including across reconnects.
type Statistics struct {
	InMsgs     uint64
	OutMsgs    uint64
	InBytes    uint64
	OutBytes   uint64
	Reconnects uint64
}

const (
	defaultBufSize  = 32768
	defaultFlushTimeout = 10 * time.Second
)

type serverInfo struct {
	ID           string   `json:"server_id"`
	Name         string   `json:"server_name"`
	Version      string   `json:"version"`
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	Headers      bool     `json:"headers"`
	AuthRequired bool     `json:"auth_required,omitempty"`
	TLSRequired  bool     `json:"tls_required,omitempty"`
	MaxPayload   int64    `json:"max_payload"`
	Proto        int      `json:"proto"`
	ConnectURLs  []string `json:"connect_urls,omitempty"`
	LameDuckMode bool     `json:"ldm,omitempty"`
}

type connectInfo struct {
	Verbose      bool   `json:"verbose"`
	Pedantic     bool   `json:"pedantic"`
	User         string `json:"user,omitempty"`
	Pass         string `json:"pass,omitempty"`
	Token        string `json:"auth_token,omitempty"`
	TLS          bool   `json:"tls_required"`
	Name         string `json:"name"`
	Lang         string `json:"lang"`
	Version      string `json:"version"`
	Protocol     int    `json:"protocol"`
	Echo         bool   `json:"echo"`
	Headers      bool   `json:"headers"`
	NoResponders bool   `json:"no_responders"`
}

type srv struct {
	url        *url.URL
	reconnects int
	lastErr    error
}

// Conn is a connection to a NATS server. All methods are safe for
// concurrent use.
type Conn struct {
	mu   sync.Mutex
	opts Options
	l    *slog.Logger
	rt   *Runtime

	srvPool []*srv
	cur     *srv
	nc      net.Conn
	br      *bufio.Reader
	bw      *buffer
	pending *buffer
	ps      *parseState
	info    serverInfo
	status  Status
	err     error

	sids int64
	subs map[int64]*Subscription

	pongs []chan error
	pout  int
	ptmr  *timers.Timer

	fch            chan struct{}
	done           chan struct{}
	flusherStarted bool
	wg             sync.WaitGroup

	respSub    string
	respPrefix string
	respMux    *Subscription
	respMap    map[string]*respInfo
	respToken  uint64

	lameDuck bool
	stats    Statistics
}

// Connect establishes a connection to the server(s) at url, a single
// address or a comma separated list. An empty url means DefaultURL.
func Connect(url string, options ...Option) (*Conn, error) {
	opts := GetDefaultOptions()
	if url != _EMPTY {
		opts.Servers = strings.Split(url, ",")
	}
	for _, opt := range options {
		opt(&opts)
	}
	return ConnectWithOptions(opts)
}

// ConnectWithOptions establishes a connection using a fully populated
// Options, typically loaded through LoadOptionsFile.
func ConnectWithOptions(opts Options) (*Conn, error) {
	opts.SetDefaults()

	c := &Conn{
		opts: opts,
		ps:   &parseState{},
		bw:   newBuffer(make([]byte, defaultBufSize)),
		subs: make(map[int64]*Subscription),
		fch:  make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	c.l = opts.Logger.With("component", "natsc")
	c.rt = opts.Runtime
	if c.rt == nil {
		c.rt = DefaultRuntime()
	}
	if err := c.setupServerPool(); err != nil {
		return nil, err
	}

	c.rt.retain()
	if err := c.connect(); err != nil {
		c.rt.release()
		return nil, err
	}
	return c, nil
}

func (c *Conn) setupServerPool() error {
	urls := c.opts.Servers
	if len(urls) == 0 {
		urls = []string{DefaultURL}
	}
	for _, u := range urls {
		s, err := parseServerURL(strings.TrimSpace(u))
		if err != nil {
			return err
		}
		c.srvPool = append(c.srvPool, s)
	}
	if !c.opts.NoRandomize && len(c.srvPool) > 1 {
		rand.Shuffle(len(c.srvPool), func(i, j int) {
			c.srvPool[i], c.srvPool[j] = c.srvPool[j], c.srvPool[i]
		})
	}
	return nil
}

func parseServerURL(s string) (*srv, error) {
	if !strings.Contains(s, "://") {
		s = "nats://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("natsc: invalid server url %q: %w", s, err)
	}
	switch u.Scheme {
	case "nats", "ws", "wss":
	default:
		return nil, fmt.Errorf("natsc: unsupported scheme %q", u.Scheme)
	}
	if u.Port() == _EMPTY && u.Scheme == "nats" {
		u.Host = net.JoinHostPort(u.Hostname(), "4222")
	}
	return &srv{url: u}, nil
}

func (c *Conn) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = Connecting
	var lastErr error
	for _, s := range c.srvPool {
		c.cur = s
		if err := c.createConn(); err != nil {
			s.lastErr, lastErr = err, err
			continue
		}
		if err := c.processConnectInit(); err != nil {
			s.lastErr, lastErr = err, err
			c.nc.Close()
			c.nc = nil
			continue
		}
		c.status = Connected
		c.runLoopsLocked()
		return nil
	}
	c.status = Closed
	if lastErr == nil {
		lastErr = ErrNoServers
	}
	return lastErr
}

func (c *Conn) createConn() error {
	u := c.cur.url
	var (
		nc  net.Conn
		err error
	)
	switch u.Scheme {
	case "ws", "wss":
		nc, err = wsDial(u, c.opts.Timeout)
	default:
		d := c.opts.Dialer
		if d == nil {
			d = &net.Dialer{Timeout: c.opts.Timeout}
		}
		nc, err = d.Dial("tcp", u.Host)
	}
	if err != nil {
		return err
	}
	c.nc = nc
	c.br = bufio.NewReaderSize(nc, defaultBufSize)
	return nil
}

// processConnectInit runs the INFO / CONNECT+PING / PONG handshake.
// Called with the connection lock held, before the read loop owns the
// socket.
func (c *Conn) processConnectInit() error {
	_ = c.nc.SetDeadline(time.Now().Add(c.opts.Timeout))
	defer func() { _ = c.nc.SetDeadline(time.Time{}) }()

	if err := c.processExpectedInfo(); err != nil {
		return err
	}
	return c.sendConnect()
}

func (c *Conn) processExpectedInfo() error {
	line, err := c.readProtoLine()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(line, _INFO_OP+_SPC) {
		return fmt.Errorf("%w: expected INFO, got '%s'", ErrProtocol, line)
	}
	if err := sonic.Unmarshal([]byte(line[len(_INFO_OP)+1:]), &c.info); err != nil {
		return fmt.Errorf("%w: invalid INFO: %w", ErrProtocol, err)
	}
	if c.info.TLSRequired {
		return ErrSecureConnRequired
	}
	return nil
}

func (c *Conn) sendConnect() error {
	ci := connectInfo{
		Verbose:      c.opts.Verbose,
		Pedantic:     c.opts.Pedantic,
		Name:         c.opts.Name,
		Lang:         LangName,
		Version:      Version,
		Protocol:     1,
		Echo:         !c.opts.NoEcho,
		Headers:      true,
		NoResponders: true,
	}
	if u := c.cur.url.User; u != nil {
		ci.User = u.Username()
		ci.Pass, _ = u.Password()
	}
	if ci.User == _EMPTY {
		ci.User, ci.Pass = c.opts.User, c.opts.Password
	}
	ci.Token = c.opts.Token

	j, err := sonic.Marshal(&ci)
	if err != nil {
		return fmt.Errorf("natsc: connect marshal: %w", err)
	}
	if _, err := c.nc.Write([]byte(fmt.Sprintf(connectProto, j) + pingProto)); err != nil {
		return err
	}

	line, err := c.readProtoLine()
	if err != nil {
		return err
	}
	if c.opts.Verbose && line == _OK_OP {
		if line, err = c.readProtoLine(); err != nil {
			return err
		}
	}
	switch {
	case line == _PONG_OP:
		return nil
	case strings.HasPrefix(line, _ERR_OP):
		return normalizeErr(line[len(_ERR_OP):])
	default:
		return fmt.Errorf("%w: expected PONG, got '%s'", ErrProtocol, line)
	}
}

func (c *Conn) readProtoLine() (string, error) {
	line, err := c.br.ReadString('\n')
	if err != nil {
		return _EMPTY, err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// normalizeErr strips the quoting and casing servers wrap -ERR text
// in, so callers match against stable strings.
func normalizeErr(s string) error {
	e := strings.TrimSpace(s)
	e = strings.Trim(e, "'")
	switch ne := strings.ToLower(e); {
	case ne == "stale connection":
		return ErrStaleConnection
	case strings.Contains(ne, "authorization violation"):
		return ErrAuthorization
	case strings.HasPrefix(ne, "permissions violation"):
		return fmt.Errorf("%w: %s", ErrPermissions, e)
	default:
		return errors.New("natsc: " + e)
	}
}

// runLoopsLocked spawns the reader (one per session) and, once, the
// flusher; it also arms the ping timer and resets the outstanding
// ping count.
func (c *Conn) runLoopsLocked() {
	c.wg.Add(1)
	go c.readLoop(c.br)
	if !c.flusherStarted {
		c.flusherStarted = true
		c.wg.Add(1)
		go c.flusher()
	}
	c.pout = 0
	if c.opts.PingInterval > 0 {
		if c.ptmr == nil {
			c.ptmr = c.rt.timers.Create(c.opts.PingInterval, c.processPingTimer, nil)
		} else {
			c.rt.timers.Reset(c.ptmr, c.opts.PingInterval)
		}
	}
}

func (c *Conn) readLoop(br *bufio.Reader) {
	defer c.wg.Done()

	buf := pool.Get(defaultBufSize)
	buf = buf[:cap(buf)]
	defer pool.Put(buf)

	for {
		n, err := br.Read(buf)
		if n > 0 {
			if perr := c.parse(buf[:n]); perr != nil {
				c.l.Error("protocol error", "err", perr)
				c.processOpErr(perr)
				return
			}
		}
		if err != nil {
			c.processOpErr(err)
			return
		}
	}
}

func (c *Conn) flusher() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		case <-c.fch:
		}
		c.mu.Lock()
		if c.status == Connected && c.bw.Len() > 0 {
			if err := c.flushLocked(); err != nil {
				c.l.Error("flush failed", "err", err)
			}
		}
		c.mu.Unlock()
	}
}

func (c *Conn) flushLocked() error {
	if c.nc == nil {
		return ErrConnectionClosed
	}
	if d := c.opts.WriteDeadline; d > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(d))
	}
	_, err := c.nc.Write(c.bw.Bytes())
	c.bw.Reset()
	return err
}

func (c *Conn) kickFlusher() {
	select {
	case c.fch <- struct{}{}:
	default:
	}
}

func (c *Conn) postEvent(t asynccb.Type, h ConnHandler) {
	if h == nil {
		return
	}
	_ = c.rt.cbs.Post(&asynccb.Info{Type: t, F: func() { h(c) }})
}

func (c *Conn) postAsyncErr(sub *Subscription, err error) {
	h := c.opts.AsyncErrorCB
	if h == nil {
		return
	}
	_ = c.rt.cbs.Post(&asynccb.Info{Type: asynccb.Error, F: func() { h(c, sub, err) }})
}

// processOpErr reacts to a socket or protocol failure: move to the
// reconnect path when allowed, close the connection otherwise.
func (c *Conn) processOpErr(err error) {
	c.mu.Lock()
	if c.status == Closed || c.status == Reconnecting || c.status == Connecting {
		c.mu.Unlock()
		return
	}
	if c.opts.AllowReconnect && c.status == Connected {
		c.status = Reconnecting
		c.stopPingTimerLocked()
		if c.nc != nil {
			c.nc.Close()
			c.nc = nil
		}
		c.pending = newBuffer(make([]byte, defaultBufSize))
		if c.bw.Len() > 0 {
			c.pending.Append(c.bw.Bytes())
			c.bw.Reset()
		}
		c.mu.Unlock()
		c.postEvent(asynccb.Disconnected, c.opts.DisconnectedCB)
		go c.doReconnect(err)
		return
	}
	c.mu.Unlock()
	c.closeConn(err)
}

func (c *Conn) doReconnect(cause error) {
	for {
		c.mu.Lock()
		if c.status != Reconnecting {
			c.mu.Unlock()
			return
		}
		s := c.selectNextServerLocked()
		if s == nil {
			c.mu.Unlock()
			c.closeConn(fmt.Errorf("%w: %w", ErrNoServers, cause))
			return
		}
		c.cur = s
		wait := c.opts.ReconnectWait
		if j := c.opts.ReconnectJitter; j > 0 {
			wait += time.Duration(rand.Int63n(int64(j)))
		}
		c.mu.Unlock()

		select {
		case <-time.After(wait):
		case <-c.done:
			return
		}

		c.mu.Lock()
		if c.status != Reconnecting {
			c.mu.Unlock()
			return
		}
		s.reconnects++
		if err := c.createConn(); err != nil {
			s.lastErr = err
			c.mu.Unlock()
			continue
		}
		if err := c.processConnectInit(); err != nil {
			s.lastErr = err
			c.nc.Close()
			c.nc = nil
			c.mu.Unlock()
			continue
		}

		s.reconnects = 0
		c.stats.Reconnects++
		c.resendSubscriptionsLocked()
		if c.pending != nil {
			c.bw.Append(c.pending.Bytes())
			c.pending.Release()
			c.pending = nil
		}
		c.status = Connected
		c.runLoopsLocked()
		if err := c.flushLocked(); err != nil {
			c.l.Error("flush after reconnect failed", "err", err)
		}
		c.mu.Unlock()

		c.l.Info("reconnected", "url", s.url.Redacted())
		c.postEvent(asynccb.Reconnected, c.opts.ReconnectedCB)
		return
	}
}

func (c *Conn) selectNextServerLocked() *srv {
	max := c.opts.MaxReconnect
	for _, s := range c.srvPool {
		if max < 0 || s.reconnects < max {
			return s
		}
	}
	return nil
}

func (c *Conn) resendSubscriptionsLocked() {
	for sid, s := range c.subs {
		s.mu.Lock()
		c.bw.AppendString(fmt.Sprintf(subProto, s.Subject, s.Queue, sid))
		if s.max > 0 {
			if s.received < s.max {
				left := s.max - s.received
				c.bw.AppendString(fmt.Sprintf(unsubProto, sid, fmt.Sprintf(" %d", left)))
			}
		}
		s.mu.Unlock()
	}
}

// Parser callbacks. All run on the reader goroutine.

func (c *Conn) processOK() {}

func (c *Conn) processPing() {
	c.mu.Lock()
	c.bw.AppendString(pongProto)
	c.kickFlusher()
	c.mu.Unlock()
}

func (c *Conn) processPong() {
	var ch chan error
	c.mu.Lock()
	if len(c.pongs) > 0 {
		ch = c.pongs[0]
		c.pongs = c.pongs[1:]
	}
	c.pout = 0
	c.mu.Unlock()
	if ch != nil {
		ch <- nil
	}
}

func (c *Conn) processErr(arg []byte) {
	err := normalizeErr(string(arg))
	switch {
	case errors.Is(err, ErrStaleConnection):
		c.processOpErr(ErrStaleConnection)
	case errors.Is(err, ErrPermissions):
		// Not fatal; the server keeps the connection up.
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		c.postAsyncErr(nil, err)
	default:
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		c.closeConn(err)
	}
}

func (c *Conn) processAsyncInfo(arg []byte) {
	var info serverInfo
	if err := sonic.Unmarshal(arg, &info); err != nil {
		c.l.Error("invalid async INFO", "err", err)
		return
	}

	var discovered, ldm bool
	c.mu.Lock()
	if info.MaxPayload > 0 {
		c.info.MaxPayload = info.MaxPayload
	}
	for _, u := range info.ConnectURLs {
		s, err := parseServerURL(u)
		if err != nil {
			continue
		}
		known := false
		for _, e := range c.srvPool {
			if e.url.Host == s.url.Host {
				known = true
				break
			}
		}
		if !known {
			c.srvPool = append(c.srvPool, s)
			discovered = true
		}
	}
	if info.LameDuckMode && !c.lameDuck {
		c.lameDuck = true
		ldm = true
	}
	c.mu.Unlock()

	if discovered {
		c.postEvent(asynccb.DiscoveredServers, c.opts.DiscoveredServersCB)
	}
	if ldm {
		c.l.Warn("server entered lame duck mode")
		c.postEvent(asynccb.LameDuck, c.opts.LameDuckModeCB)
	}
}

// processMsg routes an inbound message to its subscription, copying
// the payload out of the read buffer into a pooled allocation the
// message owns.
func (c *Conn) processMsg(data []byte) {
	c.mu.Lock()
	c.stats.InMsgs++
	c.stats.InBytes += uint64(len(data))

	sub := c.subs[c.ps.ma.sid]
	if sub == nil {
		c.mu.Unlock()
		return
	}

	buf := pool.Get(len(data))
	buf = append(buf, data...)
	m := &Msg{
		Subject: string(c.ps.ma.subject),
		Reply:   string(c.ps.ma.reply),
		Sub:     sub,
		sid:     c.ps.ma.sid,
		buf:     buf,
		rt:      c.rt,
	}
	if hl := c.ps.ma.hdr; hl > 0 {
		m.rawHeader = buf[:hl]
		m.Data = buf[hl:]
		m.needsLift = true
	} else {
		m.Data = buf
	}

	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		c.mu.Unlock()
		m.Release()
		return
	}
	sub.received++
	if sub.max > 0 && sub.received > sub.max {
		sub.mu.Unlock()
		c.mu.Unlock()
		m.Release()
		return
	}
	if sub.pMsgs+1 > sub.pMsgsLimit || sub.pBytes+len(m.Data) > sub.pBytesLimit {
		sub.dropped++
		first := !sub.sc
		sub.sc = true
		sub.mu.Unlock()
		c.mu.Unlock()
		m.Release()
		if first {
			c.postAsyncErr(sub, ErrSlowConsumer)
		}
		return
	}
	sub.pMsgs++
	sub.pBytes += len(m.Data)
	if sub.cb != nil {
		d := sub.d
		sub.mu.Unlock()
		if !d.Enqueue(func() { sub.deliver(m) }) {
			sub.mu.Lock()
			sub.pMsgs--
			sub.pBytes -= len(m.Data)
			sub.mu.Unlock()
			m.Release()
		}
	} else {
		// Guarded by the limit check above, never blocks.
		sub.mch <- m
		sub.mu.Unlock()
	}

	if sub.max > 0 && sub.received >= sub.max {
		delete(c.subs, sub.sid)
	}
	c.mu.Unlock()
}

// processPingTimer fires on the shared timer service at the
// configured ping interval.
func (c *Conn) processPingTimer(*timers.Timer) {
	c.mu.Lock()
	if c.status != Connected {
		c.mu.Unlock()
		return
	}
	c.pout++
	if c.pout > c.opts.MaxPingsOut {
		c.mu.Unlock()
		c.processOpErr(ErrStaleConnection)
		return
	}
	c.sendPingLocked(nil)
	c.mu.Unlock()
}

func (c *Conn) sendPingLocked(ch chan error) {
	if ch != nil {
		c.pongs = append(c.pongs, ch)
	}
	c.bw.AppendString(pingProto)
	c.kickFlusher()
}

func (c *Conn) stopPingTimerLocked() {
	if c.ptmr != nil {
		c.rt.timers.Stop(c.ptmr)
	}
}

// Flush performs a PING/PONG round trip, guaranteeing the server has
// processed everything written before the call.
func (c *Conn) Flush() error {
	return c.FlushTimeout(defaultFlushTimeout)
}

// FlushTimeout is Flush with a caller-chosen bound.
func (c *Conn) FlushTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultFlushTimeout
	}
	c.mu.Lock()
	if c.status == Closed {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	ch := make(chan error, 1)
	c.sendPingLocked(ch)
	if c.status == Connected {
		if err := c.flushLocked(); err != nil {
			c.l.Error("flush failed", "err", err)
		}
	}
	c.mu.Unlock()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case err := <-ch:
		return err
	case <-t.C:
		c.mu.Lock()
		for i, p := range c.pongs {
			if p == ch {
				c.pongs = append(c.pongs[:i], c.pongs[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
		return ErrTimeout
	}
}

// Drain unsubscribes everything, waits for in-flight deliveries to
// finish, flushes outstanding publishes and closes the connection.
func (c *Conn) Drain() error {
	c.mu.Lock()
	if c.status == Closed {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	if c.status == DrainingSubs || c.status == DrainingPubs {
		c.mu.Unlock()
		return nil
	}
	c.status = DrainingSubs
	subs := make([]*Subscription, 0, len(c.subs))
	for sid, s := range c.subs {
		c.bw.AppendString(fmt.Sprintf(unsubProto, sid, _EMPTY))
		subs = append(subs, s)
	}
	if err := c.flushLocked(); err != nil {
		c.l.Error("flush failed", "err", err)
	}
	c.mu.Unlock()

	go c.drainWait(subs)
	return nil
}

func (c *Conn) drainWait(subs []*Subscription) {
	deadline := time.Now().Add(c.opts.DrainTimeout)
	timedOut := false
	for {
		idle := true
		for _, s := range subs {
			s.mu.Lock()
			if s.pMsgs > 0 {
				idle = false
			}
			s.mu.Unlock()
			if !idle {
				break
			}
		}
		if idle {
			break
		}
		if time.Now().After(deadline) {
			timedOut = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	c.mu.Lock()
	if c.status != DrainingSubs {
		c.mu.Unlock()
		return
	}
	c.status = DrainingPubs
	if timedOut && c.err == nil {
		c.err = ErrDrainTimeout
	}
	err := c.flushLocked()
	c.mu.Unlock()
	if err != nil {
		c.l.Error("flush failed", "err", err)
	}
	c.closeConn(nil)
}

// Close tears the connection down, delivering any queued messages and
// callbacks first. The CLOSED event is always the last one delivered.
func (c *Conn) Close() {
	c.closeConn(nil)
}

func (c *Conn) closeConn(cause error) {
	c.mu.Lock()
	if c.status == Closed {
		c.mu.Unlock()
		return
	}
	c.status = Closed
	if cause != nil && c.err == nil {
		c.err = cause
	}
	c.stopPingTimerLocked()
	close(c.done)
	if c.nc != nil {
		if c.bw.Len() > 0 {
			_ = c.flushLocked()
		}
		c.nc.Close()
		c.nc = nil
	}
	if c.pending != nil {
		c.pending.Release()
		c.pending = nil
	}
	for _, ch := range c.pongs {
		if ch != nil {
			ch <- ErrConnectionClosed
		}
	}
	c.pongs = nil
	subs := make([]*Subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.subs = make(map[int64]*Subscription)
	c.respMux = nil
	c.mu.Unlock()

	for _, s := range subs {
		s.shutdown()
	}
	c.postEvent(asynccb.Closed, c.opts.ClosedCB)
	c.rt.release()
}

// Status returns the current lifecycle state.
func (c *Conn) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// IsClosed reports whether the connection is closed.
func (c *Conn) IsClosed() bool { return c.Status() == Closed }

// IsConnected reports whether the connection is currently up.
func (c *Conn) IsConnected() bool { return c.Status() == Connected }

// IsReconnecting reports whether the connection is between servers.
func (c *Conn) IsReconnecting() bool { return c.Status() == Reconnecting }

// Stats returns a snapshot of the connection counters.
func (c *Conn) Stats() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// LastError returns the last asynchronous error seen on the
// connection.
func (c *Conn) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// MaxPayload returns the payload limit advertised by the server.
func (c *Conn) MaxPayload() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info.MaxPayload
}

// ConnectedUrl returns the url of the server currently connected to,
// or "" when not connected.
func (c *Conn) ConnectedUrl() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != Connected || c.cur == nil {
		return _EMPTY
	}
	return c.cur.url.String()
}

// NumPending returns the messages and payload bytes queued across all
// subscriptions but not yet handed to their handlers.
func (c *Conn) NumPending() (msgs, bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.subs {
		s.mu.Lock()
		msgs += int64(s.pMsgs)
		bytes += int64(s.pBytes)
		s.mu.Unlock()
	}
	return msgs, bytes
}

// Servers returns the current server pool, including any discovered
// through cluster gossip.
func (c *Conn) Servers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.srvPool))
	for _, s := range c.srvPool {
		out = append(out, s.url.String())
	}
	return out
}
