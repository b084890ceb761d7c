package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownRunsStoppersInOrder(t *testing.T) {
	c := New(time.Second, nil)

	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	c.Register("ingest", record("ingest"))
	c.Register("state", record("state"))
	c.Register("fanout", record("fanout"))

	c.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"ingest", "state", "fanout"}, order)
}

func TestShutdownIsIdempotent(t *testing.T) {
	c := New(time.Second, nil)
	calls := 0
	c.Register("once", func(context.Context) error {
		calls++
		return nil
	})

	c.Shutdown()
	c.Shutdown()

	assert.Equal(t, 1, calls)
	select {
	case <-c.Done():
	default:
		t.Fatal("Done() channel should be closed after Shutdown")
	}
}

func TestShutdownBoundsHangingStopper(t *testing.T) {
	c := New(20*time.Millisecond, nil)
	released := make(chan struct{})
	c.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		close(released)
		return ctx.Err()
	})

	start := time.Now()
	c.Shutdown()
	assert.Less(t, time.Since(start), time.Second)

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("stopper goroutine never observed context cancellation")
	}
}

func TestWatchSignalsCancelsOnParentDone(t *testing.T) {
	c := New(time.Second, nil)
	parent, cancel := context.WithCancel(context.Background())
	root := c.WatchSignals(parent)

	cancel()

	select {
	case <-root.Done():
	case <-time.After(time.Second):
		t.Fatal("root context was not cancelled")
	}
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("shutdown was not triggered")
	}
}

func TestStopChanFromContextClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stop := StopChanFromContext(ctx)

	select {
	case <-stop:
		t.Fatal("stop channel closed before cancellation")
	default:
	}

	cancel()
	select {
	case <-stop:
	case <-time.After(time.Second):
		t.Fatal("stop channel was not closed after cancellation")
	}
	require.True(t, true)
}
