package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// SupabasePublisher uploads artifacts to a Supabase Storage bucket.
type SupabasePublisher struct {
	url        string
	serviceKey string
	Bucket     string
	client     *http.Client
	logger     zerolog.Logger
}

func NewSupabasePublisher(url, serviceKey, bucket string, logger zerolog.Logger) *SupabasePublisher {
	return &SupabasePublisher{
		url:        url,
		serviceKey: serviceKey,
		Bucket:     bucket,
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
	}
}

func (s *SupabasePublisher) Name() string { return "supabase" }

func (s *SupabasePublisher) Publish(ctx context.Context, key, localPath, contentType string) (string, error) {
	if err := s.UploadFile(ctx, key, localPath, contentType); err != nil {
		return "", err
	}
	return s.GetPublicURL(key), nil
}

// UploadFile uploads a local file with retries and exponential backoff.
// Uses PUT with Content-Length and x-upsert; the file is reopened for each
// attempt instead of being held in memory.
func (s *SupabasePublisher) UploadFile(ctx context.Context, key, localPath, contentType string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", localPath, err)
	}

	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, key)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			s.logger.Warn().Str("key", key).Int("attempt", attempt).Dur("wait", delay).Msg("upload retry")

			select {
			case <-ctx.Done():
				return fmt.Errorf("upload cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		status, body, err := s.put(ctx, url, localPath, info.Size(), contentType)
		if err != nil {
			lastErr = fmt.Errorf("failed to upload: %w", err)
			if isRetryableError(err) {
				s.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("upload attempt failed (retryable)")
				continue
			}
			return lastErr
		}

		if status == http.StatusOK || status == http.StatusCreated {
			if attempt > 0 {
				s.logger.Info().Str("key", key).Int("attempt", attempt+1).Msg("upload succeeded after retry")
			}
			return nil
		}

		lastErr = fmt.Errorf("upload failed with status %d: %s", status, truncate(body, 500))

		if isRetryableStatus(status) {
			s.logger.Warn().Int("status", status).Int("attempt", attempt+1).Str("body", truncate(body, 200)).Msg("upload attempt rejected (retryable)")
			continue
		}

		// Non-retryable status (400, 401, 403, 404, 413, etc.)
		return lastErr
	}

	return fmt.Errorf("upload failed after %d attempts: %w", maxRetries+1, lastErr)
}

func (s *SupabasePublisher) put(ctx context.Context, url, localPath string, size int64, contentType string) (int, string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	// Each attempt gets its own timeout, bounded by the caller's ctx
	uploadCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(uploadCtx, http.MethodPut, url, f)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), nil
}

// GetPublicURL returns the public URL for a file
func (s *SupabasePublisher) GetPublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.url, s.Bucket, key)
}
