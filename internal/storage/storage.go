package storage

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bobarin/storyreel/internal/config"
)

const (
	// Upload timeout per attempt; rendered videos run to hundreds of MB
	uploadTimeout = 300 * time.Second

	// Retry configuration
	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
)

// Publisher makes a finished artifact reachable and returns its URL.
// localPath stays on disk after Publish returns.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, key, localPath, contentType string) (string, error)
}

// New builds the publisher selected by STORAGE_BACKEND.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Publisher, error) {
	logger = logger.With().Str("component", "storage").Str("backend", cfg.StorageBackend).Logger()

	switch cfg.StorageBackend {
	case "", "local":
		return NewLocalPublisher(cfg.ServeDir, cfg.PublicBaseURL)
	case "supabase":
		return NewSupabasePublisher(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket, logger), nil
	case "s3":
		return NewS3Publisher(S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		}, logger), nil
	case "gcs":
		return NewGCSPublisher(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile, logger)
	case "sftp":
		return NewSFTPPublisher(SFTPConfig{
			Host:          cfg.SFTPHost,
			User:          cfg.SFTPUser,
			Password:      cfg.SFTPPassword,
			PrivateKey:    cfg.SFTPPrivateKey,
			HostKey:       cfg.SFTPHostKey,
			RemoteDir:     cfg.SFTPRemoteDir,
			PublicBaseURL: cfg.SFTPPublicBaseURL,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// joinURL appends key to base with exactly one slash between them.
func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

// retryDelay calculates exponential backoff with jitter: base * 2^attempt + random jitter
func retryDelay(attempt int) time.Duration {
	delay := float64(baseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	// 0-25% jitter
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

// isRetryableError checks if a network-level error is worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

// isRetryableStatus checks if an HTTP status code is worth retrying
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || // 429
		status == http.StatusRequestTimeout || // 408
		status == http.StatusBadGateway || // 502
		status == http.StatusServiceUnavailable || // 503
		status == http.StatusGatewayTimeout // 504
}

// truncate limits a string to maxLen characters for log output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
