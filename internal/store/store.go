package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a job is absent from memory and the backend.
var ErrNotFound = errors.New("job not found")

// DefaultInlineJobs is how many recent completed jobs keep their inline
// base64 artifact in memory.
const DefaultInlineJobs = 4

// RestartMessage is written on jobs that were in flight when the process stopped.
const RestartMessage = "interrupted by server restart before completion; please resubmit"

// Backend persists job documents. Save overwrites the whole document for a
// job (last write wins).
type Backend interface {
	Load(ctx context.Context) ([]models.RenderJob, error)
	Get(ctx context.Context, id string) (*models.RenderJob, error) // nil, nil when absent
	Save(ctx context.Context, job models.RenderJob) error
	Close() error
}

// Store is the in-memory job map and its persisted mirror. All reads and
// writes go through one mutex; every mutation is flushed before the lock is
// released. Inline submission media is dropped once a job is terminal, and
// only the most recent completed jobs keep their inline artifact.
type Store struct {
	mu      sync.Mutex
	jobs    map[string]*models.RenderJob
	backend Backend
	logger  zerolog.Logger
	now     func() time.Time

	maxInline int
	inlined   []string // job ids holding VideoBase64, oldest first
}

func New(backend Backend, logger zerolog.Logger) *Store {
	return &Store{
		jobs:      make(map[string]*models.RenderJob),
		backend:   backend,
		logger:    logger.With().Str("component", "store").Logger(),
		now:       time.Now,
		maxInline: DefaultInlineJobs,
	}
}

// SetInlineLimit sets how many completed jobs keep their inline artifact in
// memory. n <= 0 keeps none.
func (s *Store) SetInlineLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxInline = max(n, 0)
	s.trimInline()
}

// Load repopulates the map from the backend.
func (s *Store) Load(ctx context.Context) (int, error) {
	jobs, err := s.backend.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load jobs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range jobs {
		job := jobs[i]
		s.jobs[job.ID] = &job
	}
	return len(jobs), nil
}

// Get returns a copy of the job.
func (s *Store) Get(ctx context.Context, id string) (models.RenderJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, ok := s.jobs[id]; ok {
		return job.Clone(), nil
	}

	job, err := s.backend.Get(ctx, id)
	if err != nil {
		return models.RenderJob{}, fmt.Errorf("failed to read job %s: %w", id, err)
	}
	if job == nil {
		return models.RenderJob{}, ErrNotFound
	}
	s.jobs[id] = job
	return job.Clone(), nil
}

// Put inserts or replaces a job and flushes it.
func (s *Store) Put(ctx context.Context, job models.RenderJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job.UpdatedAt = s.now()
	stored := job.Clone()
	prev, existed := s.jobs[job.ID]
	if err := s.flush(ctx, &stored); err != nil {
		if existed {
			s.jobs[job.ID] = prev
		}
		return err
	}
	s.jobs[job.ID] = &stored
	s.settle(&stored)
	return nil
}

// Update applies fn to the stored job under the lock and flushes the result.
func (s *Store) Update(ctx context.Context, id string, fn func(*models.RenderJob)) (models.RenderJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.RenderJob{}, ErrNotFound
	}
	fn(job)
	job.UpdatedAt = s.now()
	s.settle(job)
	if err := s.flush(ctx, job); err != nil {
		return job.Clone(), err
	}
	return job.Clone(), nil
}

// Sweep fails every pending or processing job. The queue is not durable, so
// such jobs would never be dequeued again.
func (s *Store) Sweep(ctx context.Context, message string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := 0
	var firstErr error
	for _, job := range s.jobs {
		if job.Status.IsTerminal() {
			continue
		}
		now := s.now()
		job.Status = models.JobStatusFailed
		job.Error = message
		job.Message = message
		job.UpdatedAt = now
		job.CompletedAt = &now
		s.settle(job)
		swept++
		if err := s.flush(ctx, job); err != nil && firstErr == nil {
			firstErr = err
		}
		s.logger.Warn().Str("job_id", job.ID).Msg("marked stale job failed")
	}
	return swept, firstErr
}

// List returns copies sorted newest first.
func (s *Store) List(ctx context.Context) []models.RenderJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.RenderJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Store) Close() error {
	return s.backend.Close()
}

// settle drops inline submission media from a terminal job and records a
// new inline artifact. Caller holds s.mu.
func (s *Store) settle(job *models.RenderJob) {
	if !job.Status.IsTerminal() {
		return
	}
	job.Spec = job.Spec.WithoutInlineMedia()

	if job.Result == nil || job.Result.VideoBase64 == "" || slices.Contains(s.inlined, job.ID) {
		return
	}
	s.inlined = append(s.inlined, job.ID)
	s.trimInline()
}

// trimInline clears the inline artifact of the oldest jobs beyond the limit.
// Caller holds s.mu.
func (s *Store) trimInline() {
	for len(s.inlined) > s.maxInline {
		id := s.inlined[0]
		s.inlined = s.inlined[1:]
		if job, ok := s.jobs[id]; ok && job.Result != nil {
			job.Result.VideoBase64 = ""
		}
	}
}

// flush persists a job without inline media. Caller holds s.mu.
func (s *Store) flush(ctx context.Context, job *models.RenderJob) error {
	persisted := job.Clone()
	persisted.Spec = persisted.Spec.WithoutInlineMedia()
	if persisted.Result != nil {
		persisted.Result.VideoBase64 = ""
	}
	if err := s.backend.Save(ctx, persisted); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to persist job")
		return fmt.Errorf("failed to persist job %s: %w", job.ID, err)
	}
	return nil
}
