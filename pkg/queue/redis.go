package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisPopTimeout = 1 * time.Second

// RedisQueue is a Redis-list-backed TaskQueue for multi-process deployments.
// Each named queue maps to one list; LPUSH on enqueue, BRPOP on dequeue, so
// tasks come out in FIFO order.
type RedisQueue struct {
	client redis.UniversalClient
	logger *slog.Logger
}

var _ TaskQueue = (*RedisQueue)(nil)

// NewRedisQueue connects to Redis and returns a queue backed by it.
func NewRedisQueue(ctx context.Context, logger *slog.Logger, redisURL string) (*RedisQueue, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	queueLogger := logger.With("module", "redis_queue")
	queueLogger.InfoContext(ctx, "Connected to Redis", "addr", options.Addr)

	return &RedisQueue{
		client: client,
		logger: queueLogger,
	}, nil
}

// Enqueue appends a task to the named queue.
func (q *RedisQueue) Enqueue(ctx context.Context, queueName string, task *Task) error {
	task.Queue = queueName

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	err = q.client.LPush(ctx, queueName, payload).Err()
	if err != nil {
		return fmt.Errorf("failed to push task to queue %s: %w", queueName, err)
	}

	return nil
}

// Dequeue blocks until a task arrives on the named queue or the context is
// cancelled. The blocking pop uses a short timeout so cancellation is
// observed promptly.
func (q *RedisQueue) Dequeue(ctx context.Context, queueName string) (*Task, error) {
	for {
		result, err := q.client.BRPop(ctx, redisPopTimeout, queueName).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				default:
					continue
				}
			}

			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			return nil, fmt.Errorf("failed to pop task from queue %s: %w", queueName, err)
		}

		if len(result) < 2 {
			continue
		}

		var task Task

		err = json.Unmarshal([]byte(result[1]), &task)
		if err != nil {
			q.logger.ErrorContext(ctx, "Discarding malformed task", "queue", queueName, "error", err)

			continue
		}

		return &task, nil
	}
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
