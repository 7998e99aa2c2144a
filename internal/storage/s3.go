package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // S3-compatible endpoint (MinIO, R2); empty for AWS
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string // overrides the uploader's object location
}

// S3Publisher uploads artifacts with the multipart-capable uploader.
type S3Publisher struct {
	uploader *manager.Uploader
	cfg      S3Config
	logger   zerolog.Logger
}

func NewS3Publisher(cfg S3Config, logger zerolog.Logger) *S3Publisher {
	opts := s3.Options{
		Region: cfg.Region,
	}
	if cfg.AccessKeyID != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	return &S3Publisher{
		uploader: manager.NewUploader(s3.New(opts)),
		cfg:      cfg,
		logger:   logger,
	}
}

func (p *S3Publisher) Name() string { return "s3" }

func (p *S3Publisher) Publish(ctx context.Context, key, localPath, contentType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	out, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %s to bucket %s: %w", key, p.cfg.Bucket, err)
	}

	p.logger.Info().Str("bucket", p.cfg.Bucket).Str("key", key).Msg("uploaded object")
	return p.objectURL(key, out.Location), nil
}

func (p *S3Publisher) objectURL(key, location string) string {
	if p.cfg.PublicBaseURL != "" {
		return joinURL(p.cfg.PublicBaseURL, key)
	}
	if location != "" {
		return location
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.cfg.Bucket, p.cfg.Region, key)
}
