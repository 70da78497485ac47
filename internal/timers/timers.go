// Package timers implements a single-goroutine timer service over a
// time-ascending list. All timers of a runtime share one goroutine and
// one list, which keeps per-timer cost at two list links instead of a
// goroutine each, and gives O(1) removal for the frequent reset/stop
// churn of connection ping and flush timers.
package timers

import (
	"container/list"
	"sync"
	"time"
)

// farFuture is the wait used when the list is empty.
const farFuture = time.Hour

// Timer is a repeating timer owned by a Service. The callback runs on
// the service goroutine with no locks held; Reset and Stop may be
// called from any goroutine, including from inside the callback.
type Timer struct {
	mu         sync.Mutex
	deadline   time.Time
	interval   time.Duration
	cb         func(*Timer)
	stopCb     func(*Timer)
	inCallback bool
	stopped    bool

	elem *list.Element // non-nil iff linked into the service list
}

// Interval returns the timer's current repeat interval.
func (t *Timer) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// Service owns the timer list and its goroutine.
type Service struct {
	mu      sync.Mutex
	timers  *list.List
	count   int
	changed bool
	signal  chan struct{}

	shutdown bool
	done     chan struct{}
}

func NewService() *Service {
	s := &Service{
		timers: list.New(),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Create registers a new timer firing every interval. The stop callback
// (optional) is invoked exactly once when the timer is stopped, or on
// service shutdown for timers still active.
func (s *Service) Create(interval time.Duration, cb func(*Timer), stopCb func(*Timer)) *Timer {
	t := &Timer{
		interval: interval,
		deadline: time.Now().Add(interval),
		cb:       cb,
		stopCb:   stopCb,
	}

	s.mu.Lock()
	s.count++
	s.insert(t)
	s.markChanged()
	s.mu.Unlock()

	return t
}

// Reset reactivates t (stopped or not) with a new interval. If the
// timer is currently in its callback, the service goroutine performs
// the reinsertion when the callback returns.
func (s *Service) Reset(t *Timer, interval time.Duration) {
	s.mu.Lock()
	t.mu.Lock()

	if !t.stopped {
		s.remove(t)
	}
	s.count++
	t.stopped = false
	t.interval = interval

	if !t.inCallback {
		t.deadline = time.Now().Add(interval)
		s.insert(t)
	}

	t.mu.Unlock()
	s.markChanged()
	s.mu.Unlock()
}

// Stop deactivates t. The stop callback runs at most once: here if the
// timer is idle, or on the service goroutine if the timer is currently
// in its callback.
func (s *Service) Stop(t *Timer) {
	s.mu.Lock()
	t.mu.Lock()

	if t.stopped {
		t.mu.Unlock()
		s.mu.Unlock()
		return
	}

	s.remove(t)
	doCb := !t.inCallback && t.stopCb != nil

	t.mu.Unlock()
	s.markChanged()
	s.mu.Unlock()

	if doCb {
		t.stopCb(t)
	}
}

// Count returns the number of active timers, including ones currently
// executing their callback.
func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// countInList reports how many timers are linked, for tests.
func (s *Service) countInList() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers.Len()
}

// insert links t keeping the list sorted by deadline, stable for equal
// deadlines. Both locks held.
func (s *Service) insert(t *Timer) {
	for e := s.timers.Front(); e != nil; e = e.Next() {
		if t.deadline.Before(e.Value.(*Timer).deadline) {
			t.elem = s.timers.InsertBefore(t, e)
			return
		}
	}
	t.elem = s.timers.PushBack(t)
}

// remove marks t stopped and unlinks it. A timer in its callback is
// already unlinked. Both locks held.
func (s *Service) remove(t *Timer) {
	t.stopped = true
	if !t.inCallback && t.elem != nil {
		s.timers.Remove(t.elem)
		t.elem = nil
	}
	s.count--
}

// markChanged forces the service goroutine to recompute its wake
// deadline instead of trusting a stale one. Service lock held.
func (s *Service) markChanged() {
	if !s.changed {
		select {
		case s.signal <- struct{}{}:
		default:
		}
	}
	s.changed = true
}

func (s *Service) run() {
	wake := time.NewTimer(farFuture)
	defer wake.Stop()

	for {
		s.mu.Lock()
		if s.shutdown {
			break
		}

		var t *Timer
		target := farFuture
		if front := s.timers.Front(); front != nil {
			t = front.Value.(*Timer)
			target = time.Until(t.deadline)
			if target < 0 {
				target = 0
			}
		}
		s.changed = false
		s.mu.Unlock()

		if !wake.Stop() {
			select {
			case <-wake.C:
			default:
			}
		}
		wake.Reset(target)

		select {
		case <-s.signal:
			// List changed (or shutdown), recompute the deadline.
			continue
		case <-wake.C:
		}

		s.mu.Lock()
		if s.shutdown {
			break
		}
		if t == nil || s.changed {
			s.mu.Unlock()
			continue
		}
		s.fire(t)
		s.mu.Unlock()
	}

	// Shutdown: stop-callbacks for the survivors, list fully drained.
	for {
		front := s.timers.Front()
		if front == nil {
			break
		}
		t := front.Value.(*Timer)

		t.mu.Lock()
		doCb := t.stopCb != nil
		s.remove(t)
		t.mu.Unlock()
		s.mu.Unlock()

		if doCb {
			t.stopCb(t)
		}

		s.mu.Lock()
	}
	s.mu.Unlock()
	close(s.done)
}

// fire runs the head timer's callback with all locks released, then
// reinserts it unless it was stopped meanwhile. Service lock held on
// entry and exit.
func (s *Service) fire(t *Timer) {
	t.mu.Lock()
	s.timers.Remove(t.elem)
	t.elem = nil
	t.inCallback = true
	t.mu.Unlock()
	s.mu.Unlock()

	t.cb(t)

	s.mu.Lock()
	t.mu.Lock()
	t.inCallback = false

	doStopCb := t.stopped && t.stopCb != nil
	if !t.stopped {
		// Recompute from now: the callback may have overrun the
		// interval, or Reset may have changed it while we ran.
		t.deadline = time.Now().Add(t.interval)
		s.insert(t)
	}
	t.mu.Unlock()

	if doStopCb {
		s.mu.Unlock()
		t.stopCb(t)
		s.mu.Lock()
	}
}

// Shutdown stops the service goroutine. Stop-callbacks of timers still
// in the list are invoked before it exits.
func (s *Service) Shutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.shutdown = true
	select {
	case s.signal <- struct{}{}:
	default:
	}
	s.mu.Unlock()

	<-s.done
}
