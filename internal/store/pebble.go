package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pebble "github.com/cockroachdb/pebble"

	"github.com/bobarin/storyreel/internal/models"
)

var jobKeyPrefix = []byte("job/")

// PebbleBackend stores one key per job in an embedded pebble database.
type PebbleBackend struct {
	db *pebble.DB
}

var _ Backend = (*PebbleBackend)(nil)

func NewPebbleBackend(dir string) (*PebbleBackend, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}
	return &PebbleBackend{db: db}, nil
}

func jobKey(id string) []byte {
	return append(append([]byte(nil), jobKeyPrefix...), id...)
}

// prefixUpperBound returns the smallest key greater than every key with prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (b *PebbleBackend) Load(ctx context.Context) ([]models.RenderJob, error) {
	iter, err := b.db.NewIter(&pebble.IterOptions{
		LowerBound: jobKeyPrefix,
		UpperBound: prefixUpperBound(jobKeyPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var jobs []models.RenderJob
	for iter.First(); iter.Valid(); iter.Next() {
		var job models.RenderJob
		if err := json.Unmarshal(iter.Value(), &job); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job %s: %w", iter.Key(), err)
		}
		jobs = append(jobs, job)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return jobs, nil
}

func (b *PebbleBackend) Get(ctx context.Context, id string) (*models.RenderJob, error) {
	data, closer, err := b.db.Get(jobKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	defer closer.Close()

	var job models.RenderJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

func (b *PebbleBackend) Save(ctx context.Context, job models.RenderJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return b.db.Set(jobKey(job.ID), data, pebble.Sync)
}

func (b *PebbleBackend) Close() error {
	return b.db.Close()
}
