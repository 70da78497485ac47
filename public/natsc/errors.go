package natsc

import "errors"

var (
	ErrConnectionClosed     = errors.New("natsc: connection closed")
	ErrConnectionReconnecting = errors.New("natsc: connection reconnecting")
	ErrConnectionDraining   = errors.New("natsc: connection draining")
	ErrDrainTimeout         = errors.New("natsc: draining connection timed out")
	ErrNoServers            = errors.New("natsc: no servers available for connection")
	ErrSecureConnRequired   = errors.New("natsc: secure connection required")
	ErrStaleConnection      = errors.New("natsc: stale connection")
	ErrTimeout              = errors.New("natsc: timeout")
	ErrNoResponders         = errors.New("natsc: no responders available for request")
	ErrMaxPayload           = errors.New("natsc: maximum payload exceeded")
	ErrReconnectBufExceeded = errors.New("natsc: outgoing buffer limit reached during reconnect")
	ErrBadSubject           = errors.New("natsc: invalid subject")
	ErrBadSubscription      = errors.New("natsc: invalid subscription")
	ErrSlowConsumer         = errors.New("natsc: slow consumer, messages dropped")
	ErrSyncSubRequired      = errors.New("natsc: illegal call on an async subscription")
	ErrAsyncSubRequired     = errors.New("natsc: illegal call on a synchronous subscription")
	ErrMaxMessages          = errors.New("natsc: maximum messages delivered")
	ErrInvalidMsg           = errors.New("natsc: invalid message or message nil")
	ErrNoHeaders            = errors.New("natsc: message has no headers")
	ErrBadHeaderMsg         = errors.New("natsc: message could not decode headers")
	ErrOptionsFile          = errors.New("natsc: could not load options file")

	// ErrProtocol wraps every parser and wire-level failure; the
	// wrapped text carries the offending protocol fragment.
	ErrProtocol = errors.New("natsc: protocol error")

	ErrAuthorization = errors.New("natsc: authorization violation")
	ErrPermissions   = errors.New("natsc: permissions violation")
)
