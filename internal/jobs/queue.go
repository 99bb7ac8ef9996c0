// Package jobs distributes sync runs to background workers. The queue is
// channel-based and in-process, which is enough for a single-instance
// deployment; job state itself lives in the database, so a restart loses
// only queued-but-unstarted work.
package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Request identifies one sync run to execute.
type Request struct {
	JobID  string
	UserID string
}

// Handler executes one sync request. It is responsible for recording the
// outcome on the job document; the queue does not retry.
type Handler func(ctx context.Context, req Request)

// Queue fans sync requests out to a fixed pool of workers.
type Queue struct {
	requests  chan Request
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	log       zerolog.Logger
}

// NewQueue creates a queue that holds up to bufferSize pending requests
// before Publish blocks.
func NewQueue(bufferSize int, log zerolog.Logger) *Queue {
	return &Queue{
		requests:  make(chan Request, bufferSize),
		closeChan: make(chan struct{}),
		log:       log.With().Str("component", "jobs").Logger(),
	}
}

// Publish enqueues one sync request.
func (q *Queue) Publish(ctx context.Context, req Request) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	select {
	case q.requests <- req:
		q.log.Debug().Str("job_id", req.JobID).Str("uid", req.UserID).Msg("sync request enqueued")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start launches the worker pool. Workers run until Stop is called or ctx is
// cancelled.
func (q *Queue) Start(ctx context.Context, workers int, handler Handler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, handler Handler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case req := <-q.requests:
			handler(ctx, req)
		}
	}
}

// Stop shuts the queue down and waits for in-flight work to finish, or for
// ctx to expire.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
