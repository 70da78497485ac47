// Package natsc is a client for the NATS messaging protocol: plain
// text framing over a byte stream, subject based publish/subscribe,
// queue groups and request/reply correlation over auto-generated
// inboxes.
//
// The package keeps protocol parsing, the buffered write path and
// message dispatch on library-owned goroutines; user callbacks never
// run on the reader goroutine.
package natsc

const (
	// Version is the client version reported in CONNECT.
	Version = "0.1.0"

	// LangName is the client language reported in CONNECT.
	LangName = "go"
)

const (
	_CRLF  = "\r\n"
	_EMPTY = ""
	_SPC   = " "

	_OK_OP   = "+OK"
	_ERR_OP  = "-ERR"
	_PING_OP = "PING"
	_PONG_OP = "PONG"
	_INFO_OP = "INFO"

	connectProto = "CONNECT %s" + _CRLF
	pingProto    = "PING" + _CRLF
	pongProto    = "PONG" + _CRLF
	pubProto     = "PUB "
	hpubProto    = "HPUB "
	subProto     = "SUB %s %s %d" + _CRLF
	unsubProto   = "UNSUB %d%s" + _CRLF
)
