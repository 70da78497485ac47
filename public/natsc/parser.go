package natsc

import (
	"fmt"

	"github.com/fujin-io/natsc/internal/common/pool"
)

type msgArg struct {
	subject []byte
	reply   []byte
	sid     int64
	hdr     int
	size    int
}

// maxControlLineSize bounds the scratch region used to survive
// protocol elements split across reads.
const maxControlLineSize = 1024

const (
	OP_START = iota
	OP_PLUS
	OP_PLUS_O
	OP_PLUS_OK
	OP_MINUS
	OP_MINUS_E
	OP_MINUS_ER
	OP_MINUS_ERR
	OP_MINUS_ERR_SPC
	MINUS_ERR_ARG
	OP_M
	OP_MS
	OP_MSG
	OP_MSG_SPC
	MSG_ARG
	MSG_PAYLOAD
	MSG_END
	OP_H
	OP_P
	OP_PI
	OP_PIN
	OP_PING
	OP_PO
	OP_PON
	OP_PONG
	OP_I
	OP_IN
	OP_INF
	OP_INFO
	OP_INFO_SPC
	INFO_ARG
)

// parseState carries the incremental parser across reads. Argument
// and payload bytes normally stay as views into the read buffer; only
// elements split across reads are copied out, into scratch first and
// into a pooled buffer when they outgrow it.
type parseState struct {
	state      int
	afterSpace int
	drop       int
	hdr        int
	ma         msgArg
	argBuf     []byte
	msgBuf     []byte
	msgPooled  bool
	scratch    [maxControlLineSize]byte
}

func (ps *parseState) cleanup() {
	if ps.msgPooled {
		pool.Put(ps.msgBuf)
	}
	ps.argBuf, ps.msgBuf, ps.msgPooled = nil, nil, false
	ps.state = OP_START
	ps.drop, ps.afterSpace = 0, 0
}

// parse drives the state machine over one read's worth of bytes. Any
// protocol element may be split at an arbitrary byte boundary between
// calls.
func (c *Conn) parse(buf []byte) error {
	var i int
	var b byte

	ps := c.ps
	for i = 0; i < len(buf); i++ {
		b = buf[i]

		switch ps.state {
		case OP_START:
			switch b {
			case 'M', 'm':
				ps.state = OP_M
				ps.hdr = -1
				ps.ma.hdr = -1
			case 'H', 'h':
				ps.state = OP_H
			case 'P', 'p':
				ps.state = OP_P
			case '+':
				ps.state = OP_PLUS
			case '-':
				ps.state = OP_MINUS
			case 'I', 'i':
				ps.state = OP_I
			default:
				goto parseErr
			}
		case OP_H:
			switch b {
			case 'M', 'm':
				ps.state = OP_M
				ps.hdr = 0
				ps.ma.hdr = 0
			default:
				goto parseErr
			}
		case OP_M:
			switch b {
			case 'S', 's':
				ps.state = OP_MS
			default:
				goto parseErr
			}
		case OP_MS:
			switch b {
			case 'G', 'g':
				ps.state = OP_MSG
			default:
				goto parseErr
			}
		case OP_MSG:
			switch b {
			case ' ', '\t':
				ps.state = OP_MSG_SPC
			default:
				goto parseErr
			}
		case OP_MSG_SPC:
			switch b {
			case ' ', '\t':
				continue
			default:
				ps.state = MSG_ARG
				ps.afterSpace = i
			}
		case MSG_ARG:
			switch b {
			case '\r':
				ps.drop = 1
			case '\n':
				var arg []byte
				if ps.argBuf != nil {
					arg = ps.argBuf
				} else {
					arg = buf[ps.afterSpace : i-ps.drop]
				}
				if err := c.processMsgArgs(arg); err != nil {
					return err
				}
				ps.drop, ps.afterSpace, ps.state = 0, i+1, MSG_PAYLOAD
				// Jump ahead by the payload size; overrunning
				// the buffer lands in the split handling below.
				i = ps.afterSpace + ps.ma.size - 1
			default:
				if ps.argBuf != nil {
					ps.argBuf = append(ps.argBuf, b)
				}
			}
		case MSG_PAYLOAD:
			if ps.msgBuf != nil {
				if len(ps.msgBuf) >= ps.ma.size {
					c.processMsg(ps.msgBuf)
					if ps.msgPooled {
						pool.Put(ps.msgBuf)
					}
					ps.argBuf, ps.msgBuf, ps.msgPooled, ps.state = nil, nil, false, MSG_END
				} else {
					// Bulk-copy whatever of the payload this
					// read holds.
					toCopy := ps.ma.size - len(ps.msgBuf)
					if avail := len(buf) - i; avail < toCopy {
						toCopy = avail
					}
					if toCopy > 0 {
						start := len(ps.msgBuf)
						ps.msgBuf = ps.msgBuf[:start+toCopy]
						copy(ps.msgBuf[start:], buf[i:i+toCopy])
						i = (i + toCopy) - 1
					} else {
						ps.msgBuf = append(ps.msgBuf, b)
					}
				}
			} else if i-ps.afterSpace >= ps.ma.size {
				c.processMsg(buf[ps.afterSpace:i])
				ps.argBuf, ps.msgBuf, ps.state = nil, nil, MSG_END
			}
		case MSG_END:
			switch b {
			case '\n':
				ps.drop, ps.afterSpace, ps.state = 0, i+1, OP_START
			default:
				continue
			}
		case OP_PLUS:
			switch b {
			case 'O', 'o':
				ps.state = OP_PLUS_O
			default:
				goto parseErr
			}
		case OP_PLUS_O:
			switch b {
			case 'K', 'k':
				ps.state = OP_PLUS_OK
			default:
				goto parseErr
			}
		case OP_PLUS_OK:
			switch b {
			case '\n':
				c.processOK()
				ps.drop, ps.state = 0, OP_START
			}
		case OP_MINUS:
			switch b {
			case 'E', 'e':
				ps.state = OP_MINUS_E
			default:
				goto parseErr
			}
		case OP_MINUS_E:
			switch b {
			case 'R', 'r':
				ps.state = OP_MINUS_ER
			default:
				goto parseErr
			}
		case OP_MINUS_ER:
			switch b {
			case 'R', 'r':
				ps.state = OP_MINUS_ERR
			default:
				goto parseErr
			}
		case OP_MINUS_ERR:
			switch b {
			case ' ', '\t':
				ps.state = OP_MINUS_ERR_SPC
			default:
				goto parseErr
			}
		case OP_MINUS_ERR_SPC:
			switch b {
			case ' ', '\t':
				continue
			default:
				ps.state = MINUS_ERR_ARG
				ps.afterSpace = i
			}
		case MINUS_ERR_ARG:
			switch b {
			case '\r':
				ps.drop = 1
			case '\n':
				var arg []byte
				if ps.argBuf != nil {
					arg = ps.argBuf
					ps.argBuf = nil
				} else {
					arg = buf[ps.afterSpace : i-ps.drop]
				}
				c.processErr(arg)
				ps.drop, ps.afterSpace, ps.state = 0, i+1, OP_START
			default:
				if ps.argBuf != nil {
					ps.argBuf = append(ps.argBuf, b)
				}
			}
		case OP_P:
			switch b {
			case 'I', 'i':
				ps.state = OP_PI
			case 'O', 'o':
				ps.state = OP_PO
			default:
				goto parseErr
			}
		case OP_PO:
			switch b {
			case 'N', 'n':
				ps.state = OP_PON
			default:
				goto parseErr
			}
		case OP_PON:
			switch b {
			case 'G', 'g':
				ps.state = OP_PONG
			default:
				goto parseErr
			}
		case OP_PONG:
			switch b {
			case '\n':
				c.processPong()
				ps.drop, ps.state = 0, OP_START
			}
		case OP_PI:
			switch b {
			case 'N', 'n':
				ps.state = OP_PIN
			default:
				goto parseErr
			}
		case OP_PIN:
			switch b {
			case 'G', 'g':
				ps.state = OP_PING
			default:
				goto parseErr
			}
		case OP_PING:
			switch b {
			case '\n':
				c.processPing()
				ps.drop, ps.state = 0, OP_START
			}
		case OP_I:
			switch b {
			case 'N', 'n':
				ps.state = OP_IN
			default:
				goto parseErr
			}
		case OP_IN:
			switch b {
			case 'F', 'f':
				ps.state = OP_INF
			default:
				goto parseErr
			}
		case OP_INF:
			switch b {
			case 'O', 'o':
				ps.state = OP_INFO
			default:
				goto parseErr
			}
		case OP_INFO:
			switch b {
			case ' ', '\t':
				ps.state = OP_INFO_SPC
			default:
				goto parseErr
			}
		case OP_INFO_SPC:
			switch b {
			case ' ', '\t':
				continue
			default:
				ps.state = INFO_ARG
				ps.afterSpace = i
			}
		case INFO_ARG:
			switch b {
			case '\r':
				ps.drop = 1
			case '\n':
				var arg []byte
				if ps.argBuf != nil {
					arg = ps.argBuf
					ps.argBuf = nil
				} else {
					arg = buf[ps.afterSpace : i-ps.drop]
				}
				c.processAsyncInfo(arg)
				ps.drop, ps.afterSpace, ps.state = 0, i+1, OP_START
			default:
				if ps.argBuf != nil {
					ps.argBuf = append(ps.argBuf, b)
				}
			}
		default:
			goto parseErr
		}
	}

	// The read ended mid-element. Copy what we have out of the read
	// buffer so the next call can pick up where this one stopped.
	if (ps.state == MSG_ARG || ps.state == MINUS_ERR_ARG || ps.state == INFO_ARG) && ps.argBuf == nil {
		ps.argBuf = ps.scratch[:0]
		ps.argBuf = append(ps.argBuf, buf[ps.afterSpace:i-ps.drop]...)
	}
	if ps.state == MSG_PAYLOAD && ps.msgBuf == nil {
		if ps.argBuf == nil {
			c.cloneMsgArg()
		}
		if avail := maxControlLineSize - len(ps.argBuf); ps.ma.size > avail {
			ps.msgBuf = pool.Get(ps.ma.size)
			ps.msgPooled = true
		} else {
			off := len(ps.argBuf)
			ps.msgBuf = ps.scratch[off:off]
			ps.msgPooled = false
		}
		ps.msgBuf = append(ps.msgBuf, buf[ps.afterSpace:]...)
	}
	return nil

parseErr:
	err := fmt.Errorf("%w: Parse Error [%d]: '%s'", ErrProtocol, ps.state, buf[i:])
	ps.cleanup()
	return err
}

// cloneMsgArg copies the subject and reply out of the read buffer
// when a message payload straddles reads; the views would otherwise
// dangle once the buffer is refilled.
func (c *Conn) cloneMsgArg() {
	ps := c.ps
	slen, rlen := len(ps.ma.subject), len(ps.ma.reply)
	ps.argBuf = ps.scratch[:0]
	ps.argBuf = append(ps.argBuf, ps.ma.subject...)
	ps.argBuf = append(ps.argBuf, ps.ma.reply...)
	ps.ma.subject = ps.argBuf[:slen]
	ps.ma.reply = ps.argBuf[slen : slen+rlen]
}

func (c *Conn) processMsgArgs(arg []byte) error {
	var args [5][]byte
	n, start := 0, -1
	for i := 0; i < len(arg); i++ {
		switch arg[i] {
		case ' ', '\t', '\r', '\n':
			if start >= 0 {
				if n >= len(args) {
					return malformedMsgArgs(arg)
				}
				args[n] = arg[start:i]
				n++
				start = -1
			}
		default:
			if start < 0 {
				start = i
			}
		}
	}
	if start >= 0 {
		if n >= len(args) {
			return malformedMsgArgs(arg)
		}
		args[n] = arg[start:]
		n++
	}

	ps := c.ps
	if ps.hdr >= 0 {
		switch n {
		case 4:
			ps.ma.subject = args[0]
			ps.ma.sid = parseInt64(args[1])
			ps.ma.reply = nil
			ps.ma.hdr = int(parseInt64(args[2]))
			ps.ma.size = int(parseInt64(args[3]))
		case 5:
			ps.ma.subject = args[0]
			ps.ma.sid = parseInt64(args[1])
			ps.ma.reply = args[2]
			ps.ma.hdr = int(parseInt64(args[3]))
			ps.ma.size = int(parseInt64(args[4]))
		default:
			return malformedMsgArgs(arg)
		}
		if ps.ma.hdr < 0 || ps.ma.hdr > ps.ma.size {
			return malformedMsgArgs(arg)
		}
	} else {
		switch n {
		case 3:
			ps.ma.subject = args[0]
			ps.ma.sid = parseInt64(args[1])
			ps.ma.reply = nil
			ps.ma.size = int(parseInt64(args[2]))
		case 4:
			ps.ma.subject = args[0]
			ps.ma.sid = parseInt64(args[1])
			ps.ma.reply = args[2]
			ps.ma.size = int(parseInt64(args[3]))
		default:
			return malformedMsgArgs(arg)
		}
		ps.ma.hdr = -1
	}
	if ps.ma.sid < 0 || ps.ma.size < 0 {
		return malformedMsgArgs(arg)
	}
	return nil
}

func malformedMsgArgs(arg []byte) error {
	return fmt.Errorf("%w: processMsgArgs Parse Error: '%s'", ErrProtocol, arg)
}

// parseInt64 accepts decimal digits only; anything else, including an
// empty slice, yields the -1 sentinel the argument validation checks.
func parseInt64(d []byte) int64 {
	if len(d) == 0 {
		return -1
	}
	var n int64
	for _, b := range d {
		if b < '0' || b > '9' {
			return -1
		}
		n = n*10 + int64(b-'0')
	}
	return n
}
