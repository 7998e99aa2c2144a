package queue

import (
	"context"
	"time"
)

// Queue is a FIFO of job ids. It is not the durability mechanism: a job id
// lost with the queue is recovered by the store's startup sweep.
type Queue interface {
	Push(ctx context.Context, jobID string) error
	// Pop waits up to timeout; ok is false when nothing arrived.
	Pop(ctx context.Context, timeout time.Duration) (jobID string, ok bool, err error)
	Purge(ctx context.Context) error
	Len(ctx context.Context) (int64, error)
	Close() error
}
