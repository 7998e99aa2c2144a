package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bobarin/storyreel/internal/api"
	"github.com/bobarin/storyreel/internal/config"
	"github.com/bobarin/storyreel/internal/ffmpeg"
	"github.com/bobarin/storyreel/internal/logging"
	"github.com/bobarin/storyreel/internal/metrics"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/narration"
	"github.com/bobarin/storyreel/internal/queue"
	"github.com/bobarin/storyreel/internal/render"
	"github.com/bobarin/storyreel/internal/services"
	"github.com/bobarin/storyreel/internal/storage"
	"github.com/bobarin/storyreel/internal/store"
	"github.com/bobarin/storyreel/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("storyreel exited with error")
	}
	logger.Info().Msg("Server exited")
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	logger.Info().Msg("Starting storyreel API...")
	metrics.MustRegister()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Job store
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open job store: %w", err)
	}
	jobs := store.New(backend, logger)
	defer jobs.Close()
	logger.Info().Str("backend", cfg.JobStore).Msg("Opened job store")

	// Queue
	q, err := openQueue(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to queue: %w", err)
	}
	defer q.Close()
	logger.Info().Str("backend", cfg.QueueBackend).Msg("Connected to queue")

	// Publishing
	publisher, err := storage.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	if c, ok := publisher.(io.Closer); ok {
		defer c.Close()
	}
	logger.Info().Str("backend", publisher.Name()).Msg("Initialized storage")

	// Rendering
	exec := ffmpeg.NewExecutor(ffmpeg.ExecRunner{}, cfg.FFmpegPath, cfg.FFprobePath, logger)

	narrator, err := newNarrator(ctx, cfg, exec, logger)
	if err != nil {
		return err
	}

	maxLong, maxShort, err := resolutionCeiling(cfg.MaxResolution)
	if err != nil {
		return err
	}

	pipeline := render.NewPipeline(exec, render.NewResolver(cfg.InputFetchParallel, cfg.InputRoot, logger), narrator, publisher, render.PipelineConfig{
		TempDir:          cfg.TempDir,
		ArtifactDir:      cfg.ServeDir,
		MaxLong:          maxLong,
		MaxShort:         maxShort,
		MaxFPS:           cfg.MaxFPS,
		InlineMaxBytes:   cfg.InlineMaxBytes,
		SceneTimeout:     cfg.SceneTimeout,
		FallbackSecs:     cfg.FallbackSceneSecs,
		SubtitleMaxChars: cfg.SubtitleMaxChars,
		SubtitleFontSize: cfg.SubtitleFontSize,
		Assembly: render.AssemblerConfig{
			Timeout:      cfg.AssemblyTimeout,
			FontPath:     cfg.SubtitleFontPath,
			FontName:     cfg.SubtitleFontName,
			FallbackFont: cfg.SubtitleFallbackFont,
		},
	}, logger)

	// Scheduler
	scheduler := worker.New(jobs, q, pipeline, logger)
	if err := scheduler.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}
	if cfg.WorkerEnabled {
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		logger.Info().Msg("Worker enabled, starting background processing...")
	} else {
		logger.Warn().Msg("WORKER_ENABLED=false, jobs will queue but not render")
	}

	// HTTP
	auth := api.AuthConfig{APIKey: cfg.BackendAPIKey, JWTIssuer: cfg.JWTIssuer}
	if cfg.JWTSecret != "" {
		auth.JWTSecret = []byte(cfg.JWTSecret)
	}
	if cfg.BackendAPIKey == "" && cfg.JWTSecret == "" {
		logger.Warn().Msg("No BACKEND_API_KEY or JWT_SECRET set, API is unprotected (dev mode)")
	}

	handler := api.NewHandler(scheduler, cfg.HeartbeatInterval, logger)
	server := &http.Server{
		Addr: ":" + cfg.APIPort,
		Handler: api.NewRouter(handler, api.RouterConfig{
			Auth:               auth,
			CorsAllowedOrigins: cfg.CorsAllowedOrigins,
			ServeDir:           cfg.ServeDir,
			Logger:             logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("port", cfg.APIPort).Msg("API server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Worker did not stop cleanly")
		}
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openBackend(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	switch cfg.JobStore {
	case "pebble":
		return store.NewPebbleBackend(cfg.JobStorePath)
	case "postgres":
		return store.NewPostgresBackend(ctx, cfg.DatabaseURL)
	default:
		return store.NewFileBackend(cfg.JobStorePath)
	}
}

func openQueue(cfg *config.Config) (queue.Queue, error) {
	if cfg.QueueBackend == "redis" {
		return queue.NewRedis(cfg.RedisURL, cfg.RedisQueue)
	}
	return queue.NewMemory(), nil
}

// newNarrator returns nil when no speech provider is configured.
func newNarrator(ctx context.Context, cfg *config.Config, exec *ffmpeg.Executor, logger zerolog.Logger) (*narration.Narrator, error) {
	tts, err := services.NewTTSService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize TTS provider: %w", err)
	}
	if tts == nil {
		logger.Warn().Msg("No TTS_PROVIDER set, narration jobs will fail")
		return nil, nil
	}
	logger.Info().Str("provider", tts.Name()).Msg("TTS provider configured")

	return narration.NewNarrator(tts, exec, narration.Config{
		Voices:  narration.NewVoiceTable(cfg.Voices, cfg.DefaultVoice),
		Emotion: cfg.TTSEmotionMarkup,
	}, logger), nil
}

// resolutionCeiling reads MAX_RESOLUTION as an orientation-free bound.
func resolutionCeiling(res string) (long, short int, err error) {
	w, h, err := models.ParseResolution(res)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid MAX_RESOLUTION: %w", err)
	}
	return max(w, h), min(w, h), nil
}
