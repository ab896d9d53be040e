package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueue_PriorityOrder(t *testing.T) {
	q := NewInMemoryQueue()
	require.NoError(t, q.Push(&Task{ID: "low-1", Priority: 0}))
	require.NoError(t, q.Push(&Task{ID: "high", Priority: 5}))
	require.NoError(t, q.Push(&Task{ID: "low-2", Priority: 0}))
	require.NoError(t, q.Push(&Task{ID: "mid", Priority: 2}))

	assert.Equal(t, 4, q.Size())

	var got []string
	for i := 0; i < 4; i++ {
		task, err := q.Pop(context.Background())
		require.NoError(t, err)
		got = append(got, task.ID)
	}
	assert.Equal(t, []string{"high", "mid", "low-1", "low-2"}, got)
}

func TestInMemoryQueue_TryPopEmpty(t *testing.T) {
	q := NewInMemoryQueue()
	_, err := q.TryPop()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestInMemoryQueue_PopBlocksUntilPush(t *testing.T) {
	q := NewInMemoryQueue()
	got := make(chan *Task, 1)

	go func() {
		task, err := q.Pop(context.Background())
		if err == nil {
			got <- task
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Push(&Task{ID: "late"}))

	select {
	case task := <-got:
		assert.Equal(t, "late", task.ID)
		assert.False(t, task.CreatedAt.IsZero())
	case <-time.After(time.Second):
		t.Fatal("pop did not return after push")
	}
}

func TestInMemoryQueue_ContextCanceled(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue()
	require.NoError(t, q.Push(&Task{ID: "queued"}))
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Push(&Task{ID: "rejected"}), ErrQueueClosed)

	task, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "queued", task.ID, "queued tasks drain after close")

	_, err = q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestInMemoryQueue_ConcurrentConsumers(t *testing.T) {
	q := NewInMemoryQueue()
	const n = 50

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := q.Pop(context.Background())
				if err != nil {
					return
				}
				mu.Lock()
				seen[task.ID] = true
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < n; i++ {
		require.NoError(t, q.Push(&Task{ID: string(rune('A' + i))}))
	}

	require.Eventually(t, func() bool { return q.Size() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.Close())
	wg.Wait()
	assert.Len(t, seen, n)
}
