package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	jobsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storyreel_jobs_submitted_total",
			Help: "Render jobs accepted for processing.",
		},
	)

	jobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyreel_jobs_finished_total",
			Help: "Render jobs that reached a terminal state, by status.",
		},
		[]string{"status"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storyreel_job_duration_seconds",
			Help:    "Wall time from dequeue to terminal state.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		},
		[]string{"status"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "storyreel_queue_depth",
			Help: "Job ids waiting in the FIFO queue.",
		},
	)

	sceneClips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyreel_scene_clips_total",
			Help: "Scene clip outcomes (rendered/skipped).",
		},
		[]string{"outcome"},
	)

	encoderSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storyreel_encoder_seconds",
			Help:    "Encoder invocation latency by step and outcome.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 180, 600, 1800},
		},
		[]string{"step", "outcome"},
	)

	ttsChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyreel_tts_chunks_total",
			Help: "Speech synthesis requests by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	publishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyreel_publish_total",
			Help: "Artifact publish attempts by backend and outcome.",
		},
		[]string{"backend", "outcome"},
	)
)

// MustRegister registers collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			jobsSubmitted, jobsFinished, jobDuration, queueDepth,
			sceneClips, encoderSeconds, ttsChunks, publishes,
		)
	})
}

func JobSubmitted() { jobsSubmitted.Inc() }

func JobFinished(status string, elapsed time.Duration) {
	jobsFinished.WithLabelValues(status).Inc()
	jobDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func SetQueueDepth(n int64) { queueDepth.Set(float64(n)) }

func SceneClip(rendered bool) {
	if rendered {
		sceneClips.WithLabelValues("rendered").Inc()
		return
	}
	sceneClips.WithLabelValues("skipped").Inc()
}

func ObserveEncoder(step string, err error, elapsed time.Duration) {
	encoderSeconds.WithLabelValues(step, outcome(err)).Observe(elapsed.Seconds())
}

func TTSChunk(provider string, err error) {
	ttsChunks.WithLabelValues(provider, outcome(err)).Inc()
}

func Publish(backend string, err error) {
	publishes.WithLabelValues(backend, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
