package optimization

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunParallelKeepsJobOrder(t *testing.T) {
	var running, peak int32
	jobs := make([]Job[int], 20)
	for i := range jobs {
		i := i
		jobs[i] = Job[int]{
			ID: fmt.Sprintf("job-%d", i),
			Run: func(ctx context.Context) (int, error) {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				defer atomic.AddInt32(&running, -1)
				if i == 7 {
					return 0, stderrors.New("boom")
				}
				return i * i, nil
			},
		}
	}

	results := RunParallel(context.Background(), 3, jobs)
	require.Len(t, results, 20)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("job-%d", i), r.ID)
		if i == 7 {
			assert.EqualError(t, r.Error, "boom")
			continue
		}
		assert.NoError(t, r.Error)
		assert.Equal(t, i*i, r.Value)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestRunParallelCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs := make([]Job[int], 5)
	for i := range jobs {
		jobs[i] = Job[int]{
			ID:  fmt.Sprintf("job-%d", i),
			Run: func(ctx context.Context) (int, error) { return 0, ctx.Err() },
		}
	}
	for _, r := range RunParallel(ctx, 2, jobs) {
		assert.ErrorIs(t, r.Error, context.Canceled)
	}
}

func TestProgressReporterDeliversLastSnapshot(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	p := newProgressReporter(func(pr Progress) {
		mu.Lock()
		seen = append(seen, pr.Trial)
		mu.Unlock()
	})
	for i := 1; i <= 100; i++ {
		p.publish(Progress{Trial: i, Total: 100})
	}
	p.close()

	require.NotEmpty(t, seen)
	assert.LessOrEqual(t, len(seen), 100)
	assert.Equal(t, 100, seen[len(seen)-1])
	for i := 1; i < len(seen); i++ {
		assert.Less(t, seen[i-1], seen[i])
	}
}

func TestNilProgressReporter(t *testing.T) {
	p := newProgressReporter(nil)
	assert.Nil(t, p)
	assert.NotPanics(t, func() {
		p.publish(Progress{Trial: 1})
		p.close()
	})
}

func TestRunParallelDeliversJobFinishedAfterCancel(t *testing.T) {
	for rep := 0; rep < 200; rep++ {
		ctx, cancel := context.WithCancel(context.Background())
		var started int32
		jobs := []Job[int]{
			{ID: "first", Run: func(context.Context) (int, error) {
				atomic.AddInt32(&started, 1)
				cancel()
				return 42, nil
			}},
			{ID: "second", Run: func(context.Context) (int, error) {
				atomic.AddInt32(&started, 1)
				return 7, nil
			}},
		}

		results := RunParallel(ctx, 1, jobs)
		require.Len(t, results, 2)
		require.NoError(t, results[0].Error, "repetition %d", rep)
		require.Equal(t, 42, results[0].Value, "repetition %d", rep)
		assert.ErrorIs(t, results[1].Error, context.Canceled)
		assert.Equal(t, int32(1), atomic.LoadInt32(&started), "no job starts after cancellation")
	}
}
