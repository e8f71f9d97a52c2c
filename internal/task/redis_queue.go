package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DenzelPenzel/ton-agent/pkg/logger"
)

const defaultRedisQueue = "tonagent:invocations"

// RedisQueueConfig holds the connection settings of a Redis list queue.
type RedisQueueConfig struct {
	Address   string
	Password  string
	DB        int
	Queue     string
	BlockWait time.Duration
}

// redisList is the part of *redis.Client the queue uses.
type redisList interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LMove(ctx context.Context, source, destination, srcpos, destpos string) *redis.StringCmd
	BLMove(ctx context.Context, source, destination, srcpos, destpos string, timeout time.Duration) *redis.StringCmd
	LRem(ctx context.Context, key string, count int64, value interface{}) *redis.IntCmd
	Close() error
}

// RedisQueue publishes with LPUSH and consumes with BLMOVE into an in-flight
// list, so an id taken by a worker that dies is not lost. Leftover in-flight
// ids are moved back to the queue head when Consume starts.
type RedisQueue struct {
	client   redisList
	queue    string
	inflight string
	wait     time.Duration
	log      *slog.Logger
}

// NewRedisQueue connects and pings the server.
func NewRedisQueue(ctx context.Context, cfg RedisQueueConfig) (*RedisQueue, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, errors.New("redis address is empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return newRedisQueue(client, cfg.Queue, cfg.BlockWait), nil
}

func newRedisQueue(client redisList, queue string, wait time.Duration) *RedisQueue {
	if queue == "" {
		queue = defaultRedisQueue
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisQueue{
		client:   client,
		queue:    queue,
		inflight: queue + ":inflight",
		wait:     wait,
		log:      logger.Named("task.queue.redis"),
	}
}

func (q *RedisQueue) Publish(ctx context.Context, taskID string) error {
	if err := q.client.LPush(ctx, q.queue, taskID).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Consume blocks until ctx is done or the server returns an error. An id
// whose handler fails goes back to the head of the queue.
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if err := q.restoreInflight(ctx); err != nil {
		return err
	}

	in := make(chan delivery)
	errCh := make(chan error, 1)
	go func() {
		defer close(in)
		for ctx.Err() == nil {
			taskID, err := q.client.BLMove(ctx, q.queue, q.inflight, "RIGHT", "LEFT", q.wait).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				if ctx.Err() == nil {
					errCh <- fmt.Errorf("redis consume: %w", err)
				}
				return
			}
			select {
			case in <- q.delivery(ctx, taskID):
			case <-ctx.Done():
				return
			}
		}
	}()
	serve(ctx, workerCount, in, handler, q.log)

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

func (q *RedisQueue) delivery(ctx context.Context, taskID string) delivery {
	settleCtx := context.WithoutCancel(ctx)
	release := func() error {
		return q.client.LRem(settleCtx, q.inflight, 1, taskID).Err()
	}
	return delivery{
		taskID: taskID,
		ack:    release,
		drop:   release,
		requeue: func() error {
			if err := q.client.RPush(settleCtx, q.queue, taskID).Err(); err != nil {
				return err
			}
			return release()
		},
	}
}

func (q *RedisQueue) restoreInflight(ctx context.Context) error {
	restored := 0
	for {
		err := q.client.LMove(ctx, q.inflight, q.queue, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return fmt.Errorf("redis restore in-flight: %w", err)
		}
		restored++
	}
	if restored > 0 {
		q.log.Info("restored in-flight invocations", slog.Int("count", restored))
	}
	return nil
}

func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}

var _ Queue = (*RedisQueue)(nil)
