package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const DefaultRedisQueue = "queue:render"

// Redis is a FIFO backed by a Redis list (RPUSH / BLPOP).
type Redis struct {
	client *redis.Client
	name   string
}

var _ Queue = (*Redis)(nil)

type redisEntry struct {
	JobID      string    `json:"job_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func NewRedis(redisURL, name string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisWithClient(client, name), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, name string) *Redis {
	if name == "" {
		name = DefaultRedisQueue
	}
	return &Redis{client: client, name: name}
}

func (q *Redis) Close() error {
	return q.client.Close()
}

func (q *Redis) Push(ctx context.Context, jobID string) error {
	data, err := json.Marshal(redisEntry{JobID: jobID, EnqueuedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal queue entry: %w", err)
	}
	return q.client.RPush(ctx, q.name, data).Err()
}

func (q *Redis) Pop(ctx context.Context, timeout time.Duration) (string, bool, error) {
	result, err := q.client.BLPop(ctx, timeout, q.name).Result()
	if err == redis.Nil {
		return "", false, nil // No job available
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return "", false, fmt.Errorf("unexpected redis response")
	}

	var entry redisEntry
	if err := json.Unmarshal([]byte(result[1]), &entry); err != nil {
		return "", false, fmt.Errorf("failed to unmarshal queue entry: %w", err)
	}
	return entry.JobID, true, nil
}

// Purge drops ids left over from a previous process; their jobs are failed
// by the store sweep.
func (q *Redis) Purge(ctx context.Context) error {
	return q.client.Del(ctx, q.name).Err()
}

func (q *Redis) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.name).Result()
}
