package queue

import (
	"context"
	"sync"
	"time"
)

// Memory is an unbounded in-process FIFO.
type Memory struct {
	mu    sync.Mutex
	items []string
	ready chan struct{}
}

var _ Queue = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{ready: make(chan struct{}, 1)}
}

func (q *Memory) Push(ctx context.Context, jobID string) error {
	q.mu.Lock()
	q.items = append(q.items, jobID)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

func (q *Memory) Pop(ctx context.Context, timeout time.Duration) (string, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			id := q.items[0]
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				select {
				case q.ready <- struct{}{}:
				default:
				}
			}
			return id, true, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-timer.C:
			return "", false, nil
		case <-q.ready:
		}
	}
}

func (q *Memory) Purge(ctx context.Context) error {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
	return nil
}

func (q *Memory) Len(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

func (q *Memory) Close() error { return nil }
