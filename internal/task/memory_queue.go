package task

import (
	"context"
	"log/slog"
	"sync"

	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
	"github.com/DenzelPenzel/ton-agent/pkg/logger"
)

// MemoryQueue is a buffered channel for single-process deployments and tests.
// Ids are not redelivered: the processor republishes retries itself.
type MemoryQueue struct {
	ch     chan string
	mu     sync.RWMutex
	closed bool
	log    *slog.Logger
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{ch: make(chan string, size), log: logger.Named("task.queue.memory")}
}

func (q *MemoryQueue) Publish(ctx context.Context, taskID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return xerrors.New(xerrors.CodeQueueFailure, "queue is closed")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- taskID:
		return nil
	}
}

// Consume runs workerCount goroutines until ctx is done or the queue is closed.
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	in := make(chan delivery)
	go func() {
		defer close(in)
		for {
			select {
			case <-ctx.Done():
				return
			case taskID, ok := <-q.ch:
				if !ok {
					return
				}
				select {
				case in <- delivery{taskID: taskID}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	serve(ctx, workerCount, in, handler, q.log)
	return ctx.Err()
}

// Len reports the number of ids waiting to be consumed.
func (q *MemoryQueue) Len() int { return len(q.ch) }

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		close(q.ch)
		q.closed = true
	}
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
