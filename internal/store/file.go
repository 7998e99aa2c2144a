package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bobarin/storyreel/internal/models"
)

// FileBackend keeps every job in one JSON document keyed by id. Each save
// rewrites the document through a temp file and rename.
type FileBackend struct {
	path string
	mu   sync.Mutex
	docs map[string]models.RenderJob
}

var _ Backend = (*FileBackend)(nil)

func NewFileBackend(path string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	b := &FileBackend{path: path, docs: make(map[string]models.RenderJob)}
	if err := b.read(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *FileBackend) read() error {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read job file %s: %w", b.path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &b.docs); err != nil {
		return fmt.Errorf("failed to parse job file %s: %w", b.path, err)
	}
	return nil
}

func (b *FileBackend) Load(ctx context.Context) ([]models.RenderJob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	jobs := make([]models.RenderJob, 0, len(b.docs))
	for _, job := range b.docs {
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (b *FileBackend) Get(ctx context.Context, id string) (*models.RenderJob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, ok := b.docs[id]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

func (b *FileBackend) Save(ctx context.Context, job models.RenderJob) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.docs[job.ID] = job
	data, err := json.MarshalIndent(b.docs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal jobs: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".jobs-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp job file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp job file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp job file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp job file: %w", err)
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace job file: %w", err)
	}
	return nil
}

func (b *FileBackend) Close() error { return nil }
