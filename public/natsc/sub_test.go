package natsc

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConn_Subscribe_Async(t *testing.T) {
	_, url := runServer(t)
	c, err := Connect(url)
	require.NoError(t, err)
	defer c.Close()

	received := make(chan *Msg, 1)
	sub, err := c.Subscribe("greet", func(m *Msg) { received <- m })
	require.NoError(t, err)
	assert.True(t, sub.IsValid())

	require.NoError(t, c.Publish("greet", []byte("hello")))
	require.NoError(t, c.Flush())

	select {
	case m := <-received:
		assert.Equal(t, "greet", m.Subject)
		assert.Equal(t, "hello", string(m.Data))
		assert.Same(t, sub, m.Sub)
		m.Release()
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestConn_Subscribe_OrderPreserved(t *testing.T) {
	_, url := runServer(t)
	c, err := Connect(url)
	require.NoError(t, err)
	defer c.Close()

	const n = 500
	var mu sync.Mutex
	var order []int
	done := make(chan struct{})
	_, err = c.Subscribe("ordered", func(m *Msg) {
		mu.Lock()
		var v int
		fmt.Sscanf(string(m.Data), "%d", &v)
		order = append(order, v)
		if len(order) == n {
			close(done)
		}
		mu.Unlock()
	})
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		require.NoError(t, c.Publish("ordered", []byte(fmt.Sprintf("%d", i))))
	}
	require.NoError(t, c.Flush())

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("not all messages delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		require.Equal(t, i, v, "delivery out of order")
	}
}

func TestConn_SubscribeSync_NextMsg(t *testing.T) {
	_, url := runServer(t)
	c, err := Connect(url)
	require.NoError(t, err)
	defer c.Close()

	sub, err := c.SubscribeSync("sync.me")
	require.NoError(t, err)

	require.NoError(t, c.Publish("sync.me", []byte("one")))
	require.NoError(t, c.Flush())

	m, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "one", string(m.Data))

	_, err = sub.NextMsg(50 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestSubscription_NextMsg_OnAsyncSub(t *testing.T) {
	_, url := runServer(t)
	c, err := Connect(url)
	require.NoError(t, err)
	defer c.Close()

	sub, err := c.Subscribe("async", func(*Msg) {})
	require.NoError(t, err)
	_, err = sub.NextMsg(time.Millisecond)
	assert.ErrorIs(t, err, ErrSyncSubRequired)
}

func TestConn_QueueSubscribe_SplitsWork(t *testing.T) {
	_, url := runServer(t)
	c, err := Connect(url)
	require.NoError(t, err)
	defer c.Close()

	const n = 50
	var a, b atomic.Int32
	_, err = c.QueueSubscribe("jobs", "workers", func(*Msg) { a.Add(1) })
	require.NoError(t, err)
	_, err = c.QueueSubscribe("jobs", "workers", func(*Msg) { b.Add(1) })
	require.NoError(t, err)
	require.NoError(t, c.Flush())

	for i := 0; i < n; i++ {
		require.NoError(t, c.Publish("jobs", []byte("job")))
	}
	require.NoError(t, c.Flush())

	require.Eventually(t, func() bool {
		return a.Load()+b.Load() == n
	}, 5*time.Second, 10*time.Millisecond, "each message goes to exactly one member")
}

func TestSubscription_Unsubscribe(t *testing.T) {
	_, url := runServer(t)
	c, err := Connect(url)
	require.NoError(t, err)
	defer c.Close()

	sub, err := c.SubscribeSync("stop.me")
	require.NoError(t, err)
	require.NoError(t, sub.Unsubscribe())
	assert.False(t, sub.IsValid())

	require.NoError(t, c.Publish("stop.me", []byte("late")))
	require.NoError(t, c.Flush())

	_, err = sub.NextMsg(50 * time.Millisecond)
	assert.ErrorIs(t, err, ErrBadSubscription)

	assert.ErrorIs(t, sub.Unsubscribe(), ErrBadSubscription)
}

func TestSubscription_AutoUnsubscribe(t *testing.T) {
	_, url := runServer(t)
	c, err := Connect(url)
	require.NoError(t, err)
	defer c.Close()

	var got atomic.Int32
	sub, err := c.Subscribe("capped", func(*Msg) { got.Add(1) })
	require.NoError(t, err)
	require.NoError(t, sub.AutoUnsubscribe(5))

	for i := 0; i < 10; i++ {
		require.NoError(t, c.Publish("capped", []byte("m")))
	}
	require.NoError(t, c.Flush())

	require.Eventually(t, func() bool { return got.Load() == 5 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(5), got.Load(), "deliveries past the cap")
}

func TestSubscription_SlowConsumer(t *testing.T) {
	_, url := runServer(t)

	errs := make(chan error, 16)
	c, err := Connect(url, AsyncErrHandler(func(_ *Conn, _ *Subscription, err error) {
		errs <- err
	}))
	require.NoError(t, err)
	defer c.Close()

	sub, err := c.SubscribeSync("firehose")
	require.NoError(t, err)
	require.NoError(t, sub.SetPendingLimits(1, 1024))

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Publish("firehose", []byte("x")))
	}
	require.NoError(t, c.Flush())

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrSlowConsumer)
	case <-time.After(2 * time.Second):
		t.Fatal("slow consumer not reported")
	}

	dropped, err := sub.Dropped()
	require.NoError(t, err)
	assert.Equal(t, 4, dropped)

	m, err := sub.NextMsg(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "x", string(m.Data))
}

func TestSubscription_PendingLimits(t *testing.T) {
	_, url := runServer(t)
	c, err := Connect(url)
	require.NoError(t, err)
	defer c.Close()

	sub, err := c.Subscribe("limits", func(*Msg) {})
	require.NoError(t, err)

	ml, bl, err := sub.PendingLimits()
	require.NoError(t, err)
	assert.Equal(t, defaultPendingMsgs, ml)
	assert.Equal(t, defaultPendingBytes, bl)

	require.NoError(t, sub.SetPendingLimits(10, 100))
	ml, bl, err = sub.PendingLimits()
	require.NoError(t, err)
	assert.Equal(t, 10, ml)
	assert.Equal(t, 100, bl)

	assert.ErrorIs(t, sub.SetPendingLimits(0, 100), ErrBadSubscription)
	assert.ErrorIs(t, sub.SetPendingLimits(10, -1), ErrBadSubscription)
}

func TestSubscription_Drain(t *testing.T) {
	_, url := runServer(t)
	c, err := Connect(url)
	require.NoError(t, err)
	defer c.Close()

	var handled atomic.Int32
	sub, err := c.Subscribe("drain.sub", func(*Msg) {
		time.Sleep(2 * time.Millisecond)
		handled.Add(1)
	})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, c.Publish("drain.sub", []byte("w")))
	}
	require.NoError(t, c.Flush())

	require.NoError(t, sub.Drain())
	require.Eventually(t, func() bool { return !sub.IsValid() }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return handled.Load() == 10 }, 2*time.Second, 5*time.Millisecond)
}

func TestConn_Subscribe_BadSubject(t *testing.T) {
	_, url := runServer(t)
	c, err := Connect(url)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Subscribe(_EMPTY, func(*Msg) {})
	assert.ErrorIs(t, err, ErrBadSubject)
	_, err = c.Subscribe("bad subject", func(*Msg) {})
	assert.ErrorIs(t, err, ErrBadSubject)
	_, err = c.QueueSubscribe("ok", "bad queue", func(*Msg) {})
	assert.ErrorIs(t, err, ErrBadSubject)
}
