package optimization

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// Job is one independent unit of work for the pool
type Job[T any] struct {
	ID  string
	Run func(ctx context.Context) (T, error)
}

// JobResult is the outcome of a Job
type JobResult[T any] struct {
	ID       string
	Value    T
	Duration time.Duration
	Error    error
}

// WorkerPool runs independent jobs on a fixed number of goroutines
type WorkerPool[T any] struct {
	workerCount int
	jobQueue    chan Job[T]
	resultQueue chan JobResult[T]
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewWorkerPool creates a pool; workerCount <= 0 uses the number of CPUs.
// The result buffer must hold every submitted job unless results are read
// concurrently.
func NewWorkerPool[T any](ctx context.Context, workerCount, jobBufferSize int) *WorkerPool[T] {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &WorkerPool[T]{
		workerCount: workerCount,
		jobQueue:    make(chan Job[T], jobBufferSize),
		resultQueue: make(chan JobResult[T], jobBufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the workers
func (wp *WorkerPool[T]) Start() {
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

// Stop closes the queue, waits for running jobs and closes the results channel
func (wp *WorkerPool[T]) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()
}

// SubmitJob queues a job
func (wp *WorkerPool[T]) SubmitJob(job Job[T]) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	}
}

// GetResults returns the channel of finished jobs
func (wp *WorkerPool[T]) GetResults() <-chan JobResult[T] {
	return wp.resultQueue
}

func (wp *WorkerPool[T]) worker() {
	defer wp.wg.Done()

	for {
		select {
		case job, ok := <-wp.jobQueue:
			if !ok || wp.ctx.Err() != nil {
				return
			}
			start := time.Now()
			value, err := job.Run(wp.ctx)

			// a finished job is always delivered, even after cancellation
			wp.resultQueue <- JobResult[T]{ID: job.ID, Value: value, Duration: time.Since(start), Error: err}

		case <-wp.ctx.Done():
			return
		}
	}
}

// RunParallel executes jobs on a pool and returns their results in job order
func RunParallel[T any](ctx context.Context, workers int, jobs []Job[T]) []JobResult[T] {
	pool := NewWorkerPool[T](ctx, workers, len(jobs))
	pool.Start()

	index := make(map[string]int, len(jobs))
	submitted := 0
	for i, job := range jobs {
		index[job.ID] = i
		if err := pool.SubmitJob(job); err != nil {
			break
		}
		submitted++
	}

	results := make([]JobResult[T], len(jobs))
	for i, job := range jobs {
		results[i] = JobResult[T]{ID: job.ID, Error: context.Canceled}
	}
	go pool.Stop()
	received := 0
	for r := range pool.GetResults() {
		results[index[r.ID]] = r
		received++
		if received == submitted {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		for i := range results {
			if results[i].Error == context.Canceled {
				results[i].Error = err
			}
		}
	}
	return results
}
