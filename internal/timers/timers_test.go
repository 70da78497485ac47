package timers

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestService_FiringOrderMatchesDeadlines(t *testing.T) {
	s := NewService()
	defer s.Shutdown()

	var mu sync.Mutex
	var order []int

	var timers [4]*Timer
	intervals := []time.Duration{80, 20, 60, 40}
	for i, iv := range intervals {
		i := i
		timers[i] = s.Create(time.Duration(iv)*time.Millisecond, func(tm *Timer) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			s.Stop(tm)
		}, nil)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		mu.Lock()
		n := len(order)
		mu.Unlock()
		if n == 4 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 4)
	assert.Equal(t, []int{1, 3, 2, 0}, order)
}

func TestService_RepeatingTimerKeepsFiring(t *testing.T) {
	s := NewService()
	defer s.Shutdown()

	var fires int64
	tm := s.Create(10*time.Millisecond, func(*Timer) {
		atomic.AddInt64(&fires, 1)
	}, nil)
	defer s.Stop(tm)

	deadline := time.Now().Add(3 * time.Second)
	for atomic.LoadInt64(&fires) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, atomic.LoadInt64(&fires), int64(3))
}

func TestService_ResetBeforeFirstFire(t *testing.T) {
	s := NewService()
	defer s.Shutdown()

	fired := make(chan time.Time, 1)
	start := time.Now()

	tm := s.Create(500*time.Millisecond, func(tm *Timer) {
		select {
		case fired <- time.Now():
		default:
		}
		s.Stop(tm)
	}, nil)

	// Reschedule well before the original deadline; the fire must honor
	// the new, shorter interval with no spurious early fire.
	s.Reset(tm, 50*time.Millisecond)

	select {
	case at := <-fired:
		assert.Less(t, at.Sub(start), 400*time.Millisecond)
	case <-time.After(3 * time.Second):
		t.Fatal("timer did not fire after reset")
	}
}

func TestService_StopDuringCallbackRunsStopCbOnce(t *testing.T) {
	s := NewService()
	defer s.Shutdown()

	inCb := make(chan struct{})
	release := make(chan struct{})
	var stopCbs int64

	tm := s.Create(10*time.Millisecond, func(*Timer) {
		close(inCb)
		<-release
	}, func(*Timer) {
		atomic.AddInt64(&stopCbs, 1)
	})

	<-inCb
	done := make(chan struct{})
	go func() {
		s.Stop(tm) // returns without firing the stop callback itself
		close(done)
	}()
	<-done
	close(release)

	deadline := time.Now().Add(3 * time.Second)
	for atomic.LoadInt64(&stopCbs) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&stopCbs))
	assert.Equal(t, 0, s.Count())

	// A second stop is a no-op.
	s.Stop(tm)
	assert.Equal(t, int64(1), atomic.LoadInt64(&stopCbs))
}

func TestService_StopRemovesFromList(t *testing.T) {
	s := NewService()
	defer s.Shutdown()

	tm := s.Create(time.Hour, func(*Timer) {}, nil)
	assert.Equal(t, 1, s.Count())
	assert.Equal(t, 1, s.countInList())

	s.Stop(tm)
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, 0, s.countInList())
}

func TestService_ShutdownInvokesStopCallbacks(t *testing.T) {
	s := NewService()

	var stopped int64
	for i := 0; i < 5; i++ {
		s.Create(time.Hour, func(*Timer) {}, func(*Timer) {
			atomic.AddInt64(&stopped, 1)
		})
	}

	s.Shutdown()
	assert.Equal(t, int64(5), atomic.LoadInt64(&stopped))
}

func TestTimer_IntervalAfterReset(t *testing.T) {
	s := NewService()
	defer s.Shutdown()

	tm := s.Create(time.Minute, func(*Timer) {}, nil)
	s.Reset(tm, time.Second)
	assert.Equal(t, time.Second, tm.Interval())
	s.Stop(tm)
}
