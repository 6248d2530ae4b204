package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_BasicPushReceive(t *testing.T) {
	buf := NewBuffer[int](10, 0)

	for i := 0; i < 5; i++ {
		require.NoError(t, buf.Push(i))
	}
	assert.Equal(t, 5, buf.Len())

	for i := 0; i < 5; i++ {
		val, ok := buf.TryReceive()
		require.True(t, ok, "item %d", i)
		assert.Equal(t, i, val)
	}

	_, ok := buf.TryReceive()
	assert.False(t, ok, "empty buffer")
}

func TestBuffer_GrowAt70Percent(t *testing.T) {
	buf := NewBuffer[int](10, 0)

	for i := 0; i < 7; i++ {
		require.NoError(t, buf.Push(i))
	}

	stats := buf.Stats()
	assert.Greater(t, stats.Capacity, 10, "growth after 70%% fill")
	assert.Equal(t, 1, stats.ResizeCount)
}

func TestBuffer_GrowPreservesOrderAfterWrap(t *testing.T) {
	buf := NewBuffer[int](4, 0)

	// Move head forward so the next writes wrap around.
	require.NoError(t, buf.Push(0))
	require.NoError(t, buf.Push(1))
	buf.TryReceive()
	buf.TryReceive()

	for i := 2; i < 100; i++ {
		require.NoError(t, buf.Push(i))
	}

	for i := 2; i < 100; i++ {
		val, ok := buf.TryReceive()
		require.True(t, ok, "item %d", i)
		require.Equal(t, i, val)
	}
}

func TestBuffer_BlockingReceive(t *testing.T) {
	buf := NewBuffer[int](10, 0)
	received := make(chan int, 1)

	go func() {
		val, err := buf.Receive(context.Background())
		if err == nil {
			received <- val
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, buf.Push(42))

	select {
	case val := <-received:
		assert.Equal(t, 42, val)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for blocked receive")
	}
}

func TestBuffer_ReceiveContextCancel(t *testing.T) {
	buf := NewBuffer[int](10, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := buf.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBuffer_CloseDrains(t *testing.T) {
	buf := NewBuffer[int](10, 0)
	require.NoError(t, buf.Push(1))
	require.NoError(t, buf.Push(2))
	buf.Close()

	assert.ErrorIs(t, buf.Push(3), ErrQueueClosed, "push after close")

	ctx := context.Background()
	for _, want := range []int{1, 2} {
		got, err := buf.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := buf.Receive(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestBuffer_CloseWakesReceiver(t *testing.T) {
	buf := NewBuffer[int](10, 0)
	done := make(chan error, 1)

	go func() {
		_, err := buf.Receive(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	buf.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("receiver not woken by Close")
	}
}

func TestBuffer_MaxLen(t *testing.T) {
	buf := NewBuffer[int](2, 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, buf.Push(i))
	}
	assert.ErrorIs(t, buf.Push(3), ErrQueueFull)
	assert.Equal(t, int64(1), buf.Stats().TotalRejected)

	buf.TryReceive()
	assert.NoError(t, buf.Push(4), "push after drain")
}

func TestBuffer_ConcurrentProducers(t *testing.T) {
	buf := NewBuffer[int](8, 0)
	const producers = 8
	const perProducer = 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if !assert.NoError(t, buf.Push(p*perProducer+i)) {
					return
				}
			}
		}(p)
	}

	// Per-producer order must be preserved.
	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for n := 0; n < producers*perProducer; n++ {
		v, err := buf.Receive(ctx)
		require.NoError(t, err, "after %d items", n)
		p, i := v/perProducer, v%perProducer
		require.Greater(t, i, last[p], "producer %d out of order", p)
		last[p] = i
	}
	wg.Wait()

	stats := buf.Stats()
	assert.Equal(t, int64(producers*perProducer), stats.TotalReceived)
	assert.Equal(t, int64(producers*perProducer), stats.TotalSent)
}
