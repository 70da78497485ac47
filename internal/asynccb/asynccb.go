// Package asynccb serializes delivery of out-of-band connection events
// (disconnect, reconnect, errors) on a single consumer goroutine, so
// that user callbacks never run on, or block, the reader goroutine.
package asynccb

import (
	"errors"
	"sync"
)

var ErrNotInitialized = errors.New("async callback queue is shut down")

// Type tags the event an Info carries.
type Type int

const (
	Closed Type = iota
	Disconnected
	Reconnected
	Connected
	Error
	DiscoveredServers
	LameDuck
)

func (t Type) String() string {
	switch t {
	case Closed:
		return "closed"
	case Disconnected:
		return "disconnected"
	case Reconnected:
		return "reconnected"
	case Connected:
		return "connected"
	case Error:
		return "error"
	case DiscoveredServers:
		return "discovered_servers"
	case LameDuck:
		return "lame_duck"
	}
	return "unknown"
}

// Info is one queued event. F is bound by the poster to the user
// callback matching Type.
type Info struct {
	Type Type
	F    func()

	next *Info
}

// Queue is a FIFO with a single consumer goroutine.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond
	head *Info
	tail *Info

	shutdown bool
	done     chan struct{}
}

func NewQueue() *Queue {
	q := &Queue{
		done: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Post enqueues info for delivery. Once shutdown has begun new posts
// are rejected, but everything queued before it is still delivered, so
// a Closed event posted ahead of shutdown is guaranteed to reach the
// user.
func (q *Queue) Post(info *Info) error {
	q.mu.Lock()
	if q.shutdown {
		q.mu.Unlock()
		return ErrNotInitialized
	}

	info.next = nil
	if q.head == nil {
		q.head = info
	}
	if q.tail != nil {
		q.tail.next = info
	}
	q.tail = info

	q.cond.Signal()
	q.mu.Unlock()
	return nil
}

func (q *Queue) run() {
	q.mu.Lock()

	for {
		for q.head == nil && !q.shutdown {
			q.cond.Wait()
		}

		cb := q.head
		if cb == nil && q.shutdown {
			break
		}

		q.head = cb.next
		if q.tail == cb {
			q.tail = nil
		}
		cb.next = nil

		q.mu.Unlock()
		if cb.F != nil {
			cb.F()
		}
		q.mu.Lock()
	}

	q.mu.Unlock()
	close(q.done)
}

// Shutdown stops accepting posts, waits for the queue to empty and the
// consumer goroutine to exit.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	if q.shutdown {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.shutdown = true
	q.cond.Signal()
	q.mu.Unlock()

	<-q.done
}
