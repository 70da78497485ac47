// Package dispatch runs a fixed pool of delivery workers. Subscriptions
// are assigned a worker round-robin at creation time; each worker owns
// a FIFO queue and one goroutine, so deliveries for a given
// subscription stay in arrival order while user callbacks never run on
// the reader goroutine.
package dispatch

import (
	"errors"
	"sync"
)

var (
	ErrPoolEmpty   = errors.New("no dispatchers available, the pool is empty")
	ErrInvalidCap  = errors.New("pool capacity cannot be negative or zero")
	ErrPoolStopped = errors.New("pool is shut down")
)

type item struct {
	run  func()
	next *item
}

// Dispatcher is one worker: a queue and, once assigned, a goroutine.
type Dispatcher struct {
	mu   sync.Mutex
	cond *sync.Cond
	head *item
	tail *item

	running  bool
	shutdown bool
	done     chan struct{}
}

// Enqueue appends run to the worker's queue. It reports false once
// shutdown has begun; it never blocks.
func (d *Dispatcher) Enqueue(run func()) bool {
	d.mu.Lock()
	if d.shutdown {
		d.mu.Unlock()
		return false
	}

	it := &item{run: run}
	if d.head == nil {
		d.head = it
		d.cond.Signal()
	} else {
		d.tail.next = it
	}
	d.tail = it
	d.mu.Unlock()
	return true
}

func (d *Dispatcher) loop() {
	d.mu.Lock()

	for {
		for d.head == nil && !d.shutdown {
			d.cond.Wait()
		}

		it := d.head
		if it == nil {
			// Shutdown with a drained queue.
			break
		}

		d.head = it.next
		if d.tail == it {
			d.tail = nil
		}
		it.next = nil

		d.mu.Unlock()
		it.run()
		d.mu.Lock()
	}

	d.mu.Unlock()
	close(d.done)
}

func (d *Dispatcher) start() {
	d.cond = sync.NewCond(&d.mu)
	d.done = make(chan struct{})
	d.running = true
	go d.loop()
}

// Pool is a fixed-size array of dispatchers with round-robin
// assignment. Workers are started lazily on first assignment.
type Pool struct {
	mu          sync.Mutex
	dispatchers []*Dispatcher
	useNext     int
	stopped     bool
}

func NewPool(capacity int) (*Pool, error) {
	p := &Pool{}
	if err := p.Grow(capacity); err != nil {
		return nil, err
	}
	return p, nil
}

// Grow raises the pool capacity. Shrinking is a no-op, matching the
// grow-only contract of the pool cap setter.
func (p *Pool) Grow(capacity int) error {
	if capacity <= 0 {
		return ErrInvalidCap
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.dispatchers) < capacity {
		p.dispatchers = append(p.dispatchers, &Dispatcher{})
	}
	return nil
}

// Cap returns the pool capacity.
func (p *Pool) Cap() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.dispatchers)
}

// Assign returns the next dispatcher in round-robin order, starting its
// goroutine if this is its first assignment.
func (p *Pool) Assign() (*Dispatcher, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.dispatchers) == 0 {
		return nil, ErrPoolEmpty
	}
	if p.stopped {
		return nil, ErrPoolStopped
	}

	d := p.dispatchers[p.useNext]
	p.useNext = (p.useNext + 1) % len(p.dispatchers)

	if !d.running {
		d.start()
	}
	return d, nil
}

// SignalShutdown asks every worker to stop accepting and exit once its
// queue is drained. First phase of the two-phase shutdown.
func (p *Pool) SignalShutdown() {
	p.mu.Lock()
	p.stopped = true
	dispatchers := p.dispatchers
	p.mu.Unlock()

	for _, d := range dispatchers {
		d.mu.Lock()
		d.shutdown = true
		if d.cond != nil {
			d.cond.Signal()
		}
		d.mu.Unlock()
	}
}

// WaitForShutdown joins all started workers; queued deliveries complete
// before this returns. Second phase of the two-phase shutdown.
func (p *Pool) WaitForShutdown() {
	p.mu.Lock()
	dispatchers := p.dispatchers
	p.mu.Unlock()

	for _, d := range dispatchers {
		d.mu.Lock()
		running := d.running
		d.mu.Unlock()
		if running {
			<-d.done
		}
	}
}
