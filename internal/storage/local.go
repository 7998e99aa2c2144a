package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
)

// LocalPublisher keeps artifacts in the directory served under /videos/.
type LocalPublisher struct {
	dir     string
	baseURL string
}

func NewLocalPublisher(dir, publicBaseURL string) (*LocalPublisher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create serve dir %s: %w", dir, err)
	}
	return &LocalPublisher{dir: dir, baseURL: publicBaseURL}, nil
}

func (p *LocalPublisher) Name() string { return "local" }

// Path is where key lives on disk.
func (p *LocalPublisher) Path(key string) string {
	return filepath.Join(p.dir, filepath.Base(key))
}

// URL is the public link for key.
func (p *LocalPublisher) URL(key string) string {
	return joinURL(p.baseURL, "videos/"+url.PathEscape(filepath.Base(key)))
}

func (p *LocalPublisher) Publish(ctx context.Context, key, localPath, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dst := p.Path(key)
	src, err := filepath.Abs(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", localPath, err)
	}
	abs, err := filepath.Abs(dst)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dst, err)
	}

	if src != abs {
		if err := CopyFile(localPath, dst); err != nil {
			return "", err
		}
	}

	info, err := os.Stat(dst)
	if err != nil {
		return "", fmt.Errorf("published artifact missing: %w", err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("published artifact %s is empty", dst)
	}
	return p.URL(key), nil
}

// CopyFile copies src to dst through a temp file in dst's directory so
// readers never observe a partial file.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".publish-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return nil
}
