package task

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Handler processes one task id taken from a queue.
type Handler func(ctx context.Context, taskID string) error

// Producer publishes task ids.
type Producer interface {
	Publish(ctx context.Context, taskID string) error
	Close() error
}

// Consumer runs handlers over published ids until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue is both ends of a task channel.
type Queue interface {
	Producer
	Consumer
}

// delivery is an id pulled from a backend with the callbacks that settle it.
// A nil callback means the backend has nothing to do for that outcome.
type delivery struct {
	taskID  string
	ack     func() error
	requeue func() error
	drop    func() error
}

// serve runs workerCount goroutines over in until it is closed or ctx is
// done. Handled ids are acked, failed ones requeued and blank ones dropped.
func serve(ctx context.Context, workerCount int, in <-chan delivery, handler Handler, log *slog.Logger) {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-in:
					if !ok {
						return
					}
					settle(ctx, d, handler, log)
				}
			}
		}()
	}
	wg.Wait()
}

func settle(ctx context.Context, d delivery, handler Handler, log *slog.Logger) {
	id := strings.TrimSpace(d.taskID)
	outcome, fn := "ack", d.ack
	if id == "" {
		log.Warn("dropping delivery without task id")
		outcome, fn = "drop", d.drop
	} else if err := handler(ctx, id); err != nil {
		outcome, fn = "requeue", d.requeue
	}
	if fn == nil {
		return
	}
	if err := fn(); err != nil {
		log.Warn("failed to settle delivery",
			slog.String("task_id", id),
			slog.String("outcome", outcome),
			slog.Any("error", err))
	}
}
