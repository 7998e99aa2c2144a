package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bobarin/storyreel/internal/metrics"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/queue"
	"github.com/bobarin/storyreel/internal/store"
)

const (
	defaultPollTimeout = 5 * time.Second
	dequeueRetryDelay  = time.Second
)

// Renderer turns one job into a finished artifact. report is called with
// increasing progress values.
type Renderer interface {
	Render(ctx context.Context, job models.RenderJob, report func(progress int, message string)) (*models.RenderResult, error)
}

// Scheduler accepts jobs and renders them one at a time, in submission
// order, on a single background worker.
type Scheduler struct {
	store    *store.Store
	queue    queue.Queue
	renderer Renderer
	logger   zerolog.Logger

	pollTimeout time.Duration
	newID       func() string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(st *store.Store, q queue.Queue, renderer Renderer, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:       st,
		queue:       q,
		renderer:    renderer,
		logger:      logger.With().Str("component", "worker").Logger(),
		pollTimeout: defaultPollTimeout,
		newID:       uuid.NewString,
	}
}

// Recover loads persisted jobs, fails any left pending or processing by a
// previous process, and drops queue entries that may refer to them. Call it
// once before Start.
func (s *Scheduler) Recover(ctx context.Context) error {
	loaded, err := s.store.Load(ctx)
	if err != nil {
		return err
	}

	swept, err := s.store.Sweep(ctx, store.RestartMessage)
	if err != nil {
		return fmt.Errorf("failed to sweep stale jobs: %w", err)
	}

	if err := s.queue.Purge(ctx); err != nil {
		return fmt.Errorf("failed to purge queue: %w", err)
	}
	metrics.SetQueueDepth(0)

	s.logger.Info().Int("loaded", loaded).Int("swept", swept).Msg("job store recovered")
	return nil
}

// Submit validates spec, records a pending job and enqueues it. It returns
// without waiting for the render.
func (s *Scheduler) Submit(ctx context.Context, spec models.RenderSpec) (models.RenderJob, error) {
	spec.ApplyDefaults()
	if err := spec.Validate(); err != nil {
		return models.RenderJob{}, err
	}

	now := time.Now().UTC()
	job := models.RenderJob{
		ID:        s.newID(),
		Status:    models.JobStatusPending,
		Message:   "queued",
		Spec:      spec,
		CreatedAt: now,
	}

	if err := s.store.Put(ctx, job); err != nil {
		return models.RenderJob{}, err
	}

	if err := s.queue.Push(ctx, job.ID); err != nil {
		s.finish(ctx, job.ID, nil, fmt.Errorf("failed to enqueue job: %w", err))
		return models.RenderJob{}, fmt.Errorf("failed to enqueue job: %w", err)
	}

	metrics.JobSubmitted()
	s.refreshDepth(ctx)
	s.logger.Info().Str("job_id", job.ID).Int("images", len(spec.Images)).Int("scenes", len(spec.Scenes)).Msg("job submitted")
	return job, nil
}

// Status returns the current state of a job.
func (s *Scheduler) Status(ctx context.Context, id string) (models.RenderJob, error) {
	return s.store.Get(ctx, id)
}

// List returns up to limit jobs, newest first. limit <= 0 returns all.
func (s *Scheduler) List(ctx context.Context, limit int) ([]models.RenderJob, int) {
	jobs := s.store.List(ctx)
	total := len(jobs)
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, total
}

// Start launches the worker goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return errors.New("worker already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	// Renders are not cancelled by Stop; an interrupted job is failed by the
	// next Recover.
	renderCtx := context.WithoutCancel(ctx)

	go func() {
		defer close(s.done)
		s.processQueue(loopCtx, renderCtx)
	}()

	s.logger.Info().Msg("worker started")
	return nil
}

// Stop asks the worker to exit after its current job and waits until it
// does or ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		s.logger.Info().Msg("worker stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("worker still rendering at shutdown; job will be failed on restart")
		return ctx.Err()
	}
}

func (s *Scheduler) processQueue(loopCtx, renderCtx context.Context) {
	for {
		select {
		case <-loopCtx.Done():
			return
		default:
		}

		id, ok, err := s.queue.Pop(loopCtx, s.pollTimeout)
		if err != nil {
			if loopCtx.Err() != nil {
				return
			}
			s.logger.Error().Err(err).Msg("error dequeuing job")
			select {
			case <-loopCtx.Done():
				return
			case <-time.After(dequeueRetryDelay):
			}
			continue
		}
		if !ok {
			continue // no job available
		}

		s.refreshDepth(renderCtx)
		s.process(renderCtx, id)
	}
}

// process runs one job through the renderer and records the outcome.
func (s *Scheduler) process(ctx context.Context, id string) {
	logger := s.logger.With().Str("job_id", id).Logger()

	claimed := false
	job, err := s.store.Update(ctx, id, func(j *models.RenderJob) {
		if j.Status != models.JobStatusPending {
			return
		}
		claimed = true
		j.Status = models.JobStatusProcessing
		j.Progress = 0
		j.Message = "processing"
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to claim job")
		return
	}
	if !claimed {
		logger.Warn().Str("status", string(job.Status)).Msg("dequeued job is not pending; skipping")
		return
	}

	logger.Info().Msg("processing job")
	start := time.Now()

	result, err := s.render(ctx, job)
	if err == nil {
		err = verifyArtifact(result)
	}
	status := s.finish(ctx, id, result, err)

	elapsed := time.Since(start)
	metrics.JobFinished(string(status), elapsed)
	if err != nil {
		logger.Error().Err(err).Dur("elapsed", elapsed).Msg("job failed")
		return
	}
	logger.Info().Dur("elapsed", elapsed).Float64("duration", result.Duration).Msg("job completed")
}

func (s *Scheduler) render(ctx context.Context, job models.RenderJob) (result *models.RenderResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render panicked: %v", r)
		}
	}()

	report := func(progress int, message string) {
		if _, err := s.store.Update(ctx, job.ID, func(j *models.RenderJob) {
			if progress > j.Progress && progress < 100 {
				j.Progress = progress
			}
			if message != "" {
				j.Message = message
			}
		}); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to record progress")
		}
	}
	return s.renderer.Render(ctx, job, report)
}

// finish records the terminal state and returns it.
func (s *Scheduler) finish(ctx context.Context, id string, result *models.RenderResult, renderErr error) models.JobStatus {
	status := models.JobStatusCompleted
	if renderErr != nil {
		status = models.JobStatusFailed
	}

	if _, err := s.store.Update(ctx, id, func(j *models.RenderJob) {
		now := time.Now().UTC()
		j.Status = status
		j.CompletedAt = &now
		if renderErr != nil {
			j.Error = renderErr.Error()
			j.Message = "failed"
			return
		}
		j.Progress = 100
		j.Message = "completed"
		j.Result = result
		j.Error = ""
	}); err != nil {
		s.logger.Error().Err(err).Str("job_id", id).Msg("failed to record job outcome")
	}
	return status
}

func (s *Scheduler) refreshDepth(ctx context.Context) {
	if n, err := s.queue.Len(ctx); err == nil {
		metrics.SetQueueDepth(n)
	}
}

// verifyArtifact requires the reported video to exist and be non-empty.
func verifyArtifact(result *models.RenderResult) error {
	if result == nil || result.VideoPath == "" {
		return errors.New("render returned no artifact")
	}
	info, err := os.Stat(result.VideoPath)
	if err != nil {
		return fmt.Errorf("artifact missing: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("artifact %s is empty", result.VideoPath)
	}
	return nil
}
