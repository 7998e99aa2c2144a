package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/queue"
	"github.com/bobarin/storyreel/internal/store"
)

// fakeRenderer writes a small artifact per job and records call order and
// overlap.
type fakeRenderer struct {
	dir    string
	delay  time.Duration
	fail   map[string]bool
	empty  bool
	mu     sync.Mutex
	order  []string
	active atomic.Int32
	peak   atomic.Int32
}

func (f *fakeRenderer) Render(ctx context.Context, job models.RenderJob, report func(int, string)) (*models.RenderResult, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.order = append(f.order, job.Spec.Images[0])
	f.mu.Unlock()

	report(20, "rendering")
	time.Sleep(f.delay)
	report(75, "assembling")

	if f.fail[job.Spec.Images[0]] {
		return nil, errors.New("all 1 scenes failed to render")
	}

	path := filepath.Join(f.dir, job.ID+".mp4")
	content := []byte("video")
	if f.empty {
		content = nil
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return nil, err
	}
	return &models.RenderResult{VideoPath: path, VideoURL: "http://x/" + job.ID, Duration: 1}, nil
}

func newTestScheduler(t *testing.T, storePath string, r Renderer) *Scheduler {
	t.Helper()
	backend, err := store.NewFileBackend(storePath)
	if err != nil {
		t.Fatalf("failed to open backend: %v", err)
	}
	s := New(store.New(backend, zerolog.Nop()), queue.NewMemory(), r, zerolog.Nop())
	s.pollTimeout = 20 * time.Millisecond
	if err := s.Recover(context.Background()); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	return s
}

func waitTerminal(t *testing.T, s *Scheduler, id string) models.RenderJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.Status(context.Background(), id)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if job.Status.IsTerminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return models.RenderJob{}
}

func spec(name string) models.RenderSpec {
	return models.RenderSpec{Images: []string{name}}
}

func TestSubmitReturnsPendingImmediately(t *testing.T) {
	s := newTestScheduler(t, filepath.Join(t.TempDir(), "jobs.json"), &fakeRenderer{dir: t.TempDir()})

	job, err := s.Submit(context.Background(), spec("a.png"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if job.Status != models.JobStatusPending || job.ID == "" {
		t.Errorf("unexpected job %+v", job)
	}
	if job.Spec.Resolution != models.DefaultResolution || job.Spec.FPS != models.DefaultFPS {
		t.Errorf("expected defaults applied, got %+v", job.Spec)
	}

	got, err := s.Status(context.Background(), job.ID)
	if err != nil || got.Status != models.JobStatusPending {
		t.Errorf("expected pending job in store, got %+v, %v", got, err)
	}
}

func TestSubmitRejectsInvalidSpec(t *testing.T) {
	s := newTestScheduler(t, filepath.Join(t.TempDir(), "jobs.json"), &fakeRenderer{dir: t.TempDir()})

	_, err := s.Submit(context.Background(), models.RenderSpec{})
	var inputErr *models.InputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("expected InputError, got %v", err)
	}
	if jobs, _ := s.List(context.Background(), 0); len(jobs) != 0 {
		t.Errorf("invalid submission should not be stored")
	}
}

func TestJobsRunInOrderOneAtATime(t *testing.T) {
	r := &fakeRenderer{dir: t.TempDir(), delay: 20 * time.Millisecond}
	s := newTestScheduler(t, filepath.Join(t.TempDir(), "jobs.json"), r)

	var ids []string
	for i := 0; i < 4; i++ {
		job, err := s.Submit(context.Background(), spec(fmt.Sprintf("img-%d.png", i)))
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		ids = append(ids, job.ID)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop(context.Background())

	for _, id := range ids {
		job := waitTerminal(t, s, id)
		if job.Status != models.JobStatusCompleted {
			t.Errorf("job %s: expected completed, got %s (%s)", id, job.Status, job.Error)
		}
		if job.Progress != 100 || job.CompletedAt == nil || job.Result == nil {
			t.Errorf("job %s: incomplete terminal state %+v", id, job)
		}
	}

	want := []string{"img-0.png", "img-1.png", "img-2.png", "img-3.png"}
	if diff := cmp.Diff(want, r.order); diff != "" {
		t.Errorf("render order mismatch (-want +got):\n%s", diff)
	}
	if r.peak.Load() != 1 {
		t.Errorf("expected one render at a time, saw %d", r.peak.Load())
	}
}

func TestFailedRenderRecordsError(t *testing.T) {
	r := &fakeRenderer{dir: t.TempDir(), fail: map[string]bool{"bad.png": true}}
	s := newTestScheduler(t, filepath.Join(t.TempDir(), "jobs.json"), r)

	bad, _ := s.Submit(context.Background(), spec("bad.png"))
	good, _ := s.Submit(context.Background(), spec("good.png"))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop(context.Background())

	job := waitTerminal(t, s, bad.ID)
	if job.Status != models.JobStatusFailed || job.Error == "" {
		t.Errorf("expected failed job with error, got %+v", job)
	}
	if job.Result != nil {
		t.Errorf("failed job should carry no result")
	}

	if job := waitTerminal(t, s, good.ID); job.Status != models.JobStatusCompleted {
		t.Errorf("a failure must not stop the worker, got %s", job.Status)
	}
}

func TestEmptyArtifactFailsJob(t *testing.T) {
	r := &fakeRenderer{dir: t.TempDir(), empty: true}
	s := newTestScheduler(t, filepath.Join(t.TempDir(), "jobs.json"), r)

	job, _ := s.Submit(context.Background(), spec("a.png"))
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if got := waitTerminal(t, s, job.ID); got.Status != models.JobStatusFailed {
		t.Errorf("expected empty artifact to fail the job, got %s", got.Status)
	}
}

func TestRecoverSweepsInterruptedJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	r := &fakeRenderer{dir: t.TempDir()}

	first := newTestScheduler(t, path, r)
	pending, _ := first.Submit(context.Background(), spec("pending.png"))
	processing, _ := first.Submit(context.Background(), spec("processing.png"))
	if _, err := first.store.Update(context.Background(), processing.ID, func(j *models.RenderJob) {
		j.Status = models.JobStatusProcessing
		j.Progress = 40
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// Simulate a restart: a new scheduler over the same store file.
	second := newTestScheduler(t, path, r)
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer second.Stop(context.Background())

	for _, id := range []string{pending.ID, processing.ID} {
		job, err := second.Status(context.Background(), id)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if job.Status != models.JobStatusFailed || job.Error != store.RestartMessage {
			t.Errorf("job %s: expected restart failure, got %s %q", id, job.Status, job.Error)
		}
	}

	time.Sleep(100 * time.Millisecond)
	if len(r.order) != 0 {
		t.Errorf("swept jobs must not be re-rendered, got %v", r.order)
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	r := &fakeRenderer{dir: t.TempDir(), delay: 50 * time.Millisecond}
	s := newTestScheduler(t, filepath.Join(t.TempDir(), "jobs.json"), r)

	job, _ := s.Submit(context.Background(), spec("a.png"))
	s.Start(context.Background())
	defer s.Stop(context.Background())

	last := 0
	for {
		got, _ := s.Status(context.Background(), job.ID)
		if got.Progress < last {
			t.Fatalf("progress went backwards: %d -> %d", last, got.Progress)
		}
		last = got.Progress
		if got.Status.IsTerminal() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if last != 100 {
		t.Errorf("expected 100 at completion, got %d", last)
	}
}

func TestStartTwice(t *testing.T) {
	s := newTestScheduler(t, filepath.Join(t.TempDir(), "jobs.json"), &fakeRenderer{dir: t.TempDir()})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop(context.Background())

	if err := s.Start(context.Background()); err == nil {
		t.Error("expected error starting twice")
	}
}

func TestListNewestFirst(t *testing.T) {
	s := newTestScheduler(t, filepath.Join(t.TempDir(), "jobs.json"), &fakeRenderer{dir: t.TempDir()})

	for i := 0; i < 3; i++ {
		if _, err := s.Submit(context.Background(), spec(fmt.Sprintf("%d.png", i))); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	jobs, total := s.List(context.Background(), 2)
	if total != 3 || len(jobs) != 2 {
		t.Fatalf("expected 2 of 3 jobs, got %d of %d", len(jobs), total)
	}
	if jobs[0].Spec.Images[0] != "2.png" {
		t.Errorf("expected newest first, got %s", jobs[0].Spec.Images[0])
	}
}
