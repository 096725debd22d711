package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOOrder(t *testing.T) {
	q := New[int](0)
	for i := 0; i < 100; i++ {
		require.NoError(t, q.TrySend(i))
	}
	for i := 0; i < 100; i++ {
		v, err := q.Recv(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

func TestTrySendFullBounded(t *testing.T) {
	q := New[string](2)
	require.NoError(t, q.TrySend("a"))
	require.NoError(t, q.TrySend("b"))
	assert.ErrorIs(t, q.TrySend("c"), ErrFull)
	assert.Equal(t, 2, q.Len())
}

func TestSendWaitsForRoom(t *testing.T) {
	q := New[int](1)
	require.NoError(t, q.TrySend(1))

	done := make(chan error, 1)
	go func() { done <- q.Send(context.Background(), 2) }()

	select {
	case <-done:
		t.Fatal("Send returned while queue was full")
	case <-time.After(20 * time.Millisecond):
	}

	v, err := q.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Send did not complete after room was made")
	}
	v, err = q.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestSendHonoursContext(t *testing.T) {
	q := New[int](1)
	require.NoError(t, q.TrySend(1))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Send(ctx, 2), context.DeadlineExceeded)
}

func TestCloseDrainsThenReportsClosed(t *testing.T) {
	q := New[int](0)
	require.NoError(t, q.TrySend(1))
	require.NoError(t, q.TrySend(2))
	q.Close()
	q.Close()

	assert.ErrorIs(t, q.TrySend(3), ErrClosed)

	v, err := q.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	v, err = q.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = q.Recv(context.Background())
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestCloseWakesBlockedReceiver(t *testing.T) {
	q := New[int](0)
	done := make(chan error, 1)
	go func() {
		_, err := q.Recv(context.Background())
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Recv not woken by Close")
	}
}

func TestCloseWakesBlockedSender(t *testing.T) {
	q := New[int](1)
	require.NoError(t, q.TrySend(0))
	done := make(chan error, 1)
	go func() { done <- q.Send(context.Background(), 1) }()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Send not woken by Close")
	}
}

func TestConcurrentProducersPreservePerProducerOrder(t *testing.T) {
	type item struct{ producer, seq int }
	q := New[item](8)
	const producers, perProducer = 4, 200

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := q.Send(context.Background(), item{p, i}); err != nil {
					t.Errorf("Send: %v", err)
					return
				}
			}
		}(p)
	}
	go func() { wg.Wait(); q.Close() }()

	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	count := 0
	for {
		it, err := q.Recv(context.Background())
		if errors.Is(err, ErrClosed) {
			break
		}
		require.NoError(t, err)
		require.Greater(t, it.seq, last[it.producer])
		last[it.producer] = it.seq
		count++
	}
	assert.Equal(t, producers*perProducer, count)
}

func TestDrain(t *testing.T) {
	q := New[int](3)
	_ = q.TrySend(1)
	_ = q.TrySend(2)
	assert.Equal(t, []int{1, 2}, q.Drain())
	assert.Equal(t, 0, q.Len())
	require.NoError(t, q.TrySend(3))
}
