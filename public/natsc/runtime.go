package natsc

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fujin-io/natsc/internal/asynccb"
	"github.com/fujin-io/natsc/internal/dispatch"
	"github.com/fujin-io/natsc/internal/gc"
	"github.com/fujin-io/natsc/internal/timers"
)

// Runtime owns the background services connections share: the timer
// service, the callback queue, the payload collector and the message
// dispatcher pool. Connections retain it on creation and release it
// on close; the last release tears all services down.
type Runtime struct {
	mu   sync.Mutex
	refs int

	timers      *timers.Service
	cbs         *asynccb.Queue
	collector   *gc.Collector
	dispatchers *dispatch.Pool
}

// DefaultDispatcherPoolCap sizes the dispatcher pool of runtimes
// created by NewRuntime(0).
const DefaultDispatcherPoolCap = 4

// NewRuntime starts a runtime with the given dispatcher pool
// capacity, or DefaultDispatcherPoolCap when n <= 0.
func NewRuntime(n int) *Runtime {
	if n <= 0 {
		n = DefaultDispatcherPoolCap
	}
	// Capacity is forced positive above, NewPool cannot fail.
	dp, _ := dispatch.NewPool(n)
	return &Runtime{
		timers:      timers.NewService(),
		cbs:         asynccb.NewQueue(),
		collector:   gc.NewCollector(),
		dispatchers: dp,
	}
}

var (
	defaultMu sync.Mutex
	defaultRT *Runtime
)

// DefaultRuntime returns the process-wide shared runtime, creating it
// on first use. It is recreated after the last connection using it
// closes.
func DefaultRuntime() *Runtime {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRT == nil {
		defaultRT = NewRuntime(0)
	}
	return defaultRT
}

func (r *Runtime) retain() {
	r.mu.Lock()
	r.refs++
	r.mu.Unlock()
}

func (r *Runtime) release() {
	r.mu.Lock()
	r.refs--
	last := r.refs == 0
	r.mu.Unlock()
	if !last {
		return
	}
	defaultMu.Lock()
	if defaultRT == r {
		defaultRT = nil
	}
	defaultMu.Unlock()
	r.shutdown()
}

// Close tears the runtime down regardless of reference count. Only
// runtimes created explicitly with NewRuntime and never handed to a
// connection should be closed this way.
func (r *Runtime) Close() {
	r.shutdown()
}

func (r *Runtime) shutdown() {
	var g errgroup.Group
	g.Go(func() error {
		r.dispatchers.SignalShutdown()
		r.dispatchers.WaitForShutdown()
		return nil
	})
	g.Go(func() error {
		r.timers.Shutdown()
		return nil
	})
	g.Go(func() error {
		r.cbs.Shutdown()
		return nil
	})
	_ = g.Wait()
	// Last, so releases from the draining services still land.
	r.collector.Shutdown()
}

func (r *Runtime) collect(it *gc.Item) bool {
	return r.collector.Collect(it)
}

// GrowDispatcherPool raises the dispatcher pool capacity. Shrinking
// is not supported.
func (r *Runtime) GrowDispatcherPool(n int) error {
	return r.dispatchers.Grow(n)
}
