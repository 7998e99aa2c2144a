package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	gcs "cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// GCSPublisher streams artifacts into a Cloud Storage bucket.
type GCSPublisher struct {
	client *gcs.Client
	bucket string
	logger zerolog.Logger
}

// NewGCSPublisher uses the credentials file when given, otherwise
// application default credentials.
func NewGCSPublisher(ctx context.Context, bucket, credentialsFile string, logger zerolog.Logger) (*GCSPublisher, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSPublisher{client: client, bucket: bucket, logger: logger}, nil
}

func (p *GCSPublisher) Name() string { return "gcs" }

func (p *GCSPublisher) Publish(ctx context.Context, key, localPath, contentType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	wc := p.client.Bucket(p.bucket).Object(key).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := io.Copy(wc, f); err != nil {
		wc.Close()
		return "", fmt.Errorf("failed to stream %s to gs://%s/%s: %w", localPath, p.bucket, key, err)
	}
	// Close completes the upload
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize gs://%s/%s: %w", p.bucket, key, err)
	}

	p.logger.Info().Str("bucket", p.bucket).Str("key", key).Msg("uploaded object")
	return gcsPublicURL(p.bucket, key), nil
}

// Close releases the client.
func (p *GCSPublisher) Close() error {
	return p.client.Close()
}

func gcsPublicURL(bucket, key string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, key)
}
