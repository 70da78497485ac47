// Package gc runs a background collector for objects whose release must
// not happen on the goroutine that drops the last reference, typically
// because that goroutine holds locks the release path would need.
package gc

import (
	"sync"
)

// Item is embedded in (or allocated alongside) any object eligible for
// deferred collection. Free is invoked exactly once by the collector
// goroutine, outside the collector lock.
type Item struct {
	Free func()

	next *Item
}

// Collector owns a LIFO list of pending items and one goroutine that
// drains it.
type Collector struct {
	mu     sync.Mutex
	cond   *sync.Cond
	head   *Item
	inWait bool

	shutdown bool
	done     chan struct{}
}

func NewCollector() *Collector {
	c := &Collector{
		done: make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	go c.run()
	return c
}

// Collect hands item to the collector. It returns true if the collector
// took ownership (the caller must not touch the item afterwards), false
// if the item was never set up for collection and the caller should
// release it in place.
func (c *Collector) Collect(item *Item) bool {
	if item.Free == nil {
		return false
	}

	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return false
	}
	signal := c.inWait
	item.next = c.head
	c.head = item
	if signal {
		c.cond.Signal()
	}
	c.mu.Unlock()

	return true
}

func (c *Collector) run() {
	c.mu.Lock()

	for {
		c.inWait = true
		for !c.shutdown && c.head == nil {
			c.cond.Wait()
		}
		c.inWait = false

		// Even on shutdown the list is drained fully before exit.
		for c.head != nil {
			list := c.head
			c.head = nil
			c.mu.Unlock()

			for list != nil {
				item := list
				list = item.next
				item.next = nil
				item.Free()
			}

			c.mu.Lock()
		}

		if c.shutdown {
			break
		}
	}

	c.mu.Unlock()
	close(c.done)
}

// Shutdown signals the collector goroutine and waits for it to drain
// the pending list and exit.
func (c *Collector) Shutdown() {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		<-c.done
		return
	}
	c.shutdown = true
	c.cond.Signal()
	c.mu.Unlock()

	<-c.done
}
