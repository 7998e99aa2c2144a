package render

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bobarin/storyreel/internal/models"
)

const (
	maxInputBytes       = 200 << 20
	defaultFetchTimeout = 60 * time.Second

	// shorter strings are treated as paths that do not exist
	minRawBase64 = 32
)

var extByMIME = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"audio/mpeg":      ".mp3",
	"audio/mp3":       ".mp3",
	"audio/wav":       ".wav",
	"audio/x-wav":     ".wav",
	"audio/wave":      ".wav",
	"audio/ogg":       ".ogg",
	"audio/mp4":       ".m4a",
	"audio/aac":       ".aac",
	"video/mp4":       ".mp4",
	"application/ogg": ".ogg",
}

// Resolver turns scene references (data URI, raw base64, local path or
// http(s) URL) into local files. Local paths must lie under inputRoot; with
// no root they are refused.
type Resolver struct {
	client    *http.Client
	parallel  int
	inputRoot string
	logger    zerolog.Logger
}

func NewResolver(parallel int, inputRoot string, logger zerolog.Logger) *Resolver {
	if parallel <= 0 {
		parallel = 4
	}
	return &Resolver{
		client:    &http.Client{Timeout: defaultFetchTimeout},
		parallel:  parallel,
		inputRoot: inputRoot,
		logger:   logger.With().Str("component", "resolver").Logger(),
	}
}

// Fetch materializes ref into dir using base as the file name stem. Local
// paths are returned unchanged. Failures are InputErrors naming field.
func (r *Resolver) Fetch(ctx context.Context, field, ref, dir, base string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", &models.InputError{Field: field, Reason: "is empty"}
	}

	switch {
	case strings.HasPrefix(ref, "data:"):
		data, mimeType, err := decodeDataURI(ref)
		if err != nil {
			return "", &models.InputError{Field: field, Reason: "invalid data URI", Err: err}
		}
		return writeInput(field, dir, base, extFor(mimeType, data), data)

	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		return r.download(ctx, field, ref, dir, base)
	}

	if local, ok, err := r.localFile(field, ref); ok {
		return local, err
	}

	if len(ref) >= minRawBase64 {
		if data, ok := decodeBase64(ref); ok {
			return writeInput(field, dir, base, extFor("", data), data)
		}
	}
	return "", &models.InputError{Field: field, Reason: "is not a readable file, URL or base64 payload"}
}

// localFile reports whether ref names an existing file and, if so, whether it
// may be read. Relative refs are taken from inputRoot.
func (r *Resolver) localFile(field, ref string) (string, bool, error) {
	p := ref
	if r.inputRoot != "" && !filepath.IsAbs(p) {
		p = filepath.Join(r.inputRoot, p)
	}
	info, err := os.Stat(p)
	if err != nil {
		return "", false, nil
	}

	if r.inputRoot == "" {
		return "", true, &models.InputError{Field: field, Reason: "local paths are not accepted"}
	}
	if !withinDir(r.inputRoot, p) {
		return "", true, &models.InputError{Field: field, Reason: "is outside the input directory"}
	}
	if info.IsDir() || info.Size() == 0 {
		return "", true, &models.InputError{Field: field, Reason: "is not a non-empty file"}
	}
	return p, true, nil
}

// withinDir reports whether p resolves, symlinks followed, to dir or a
// descendant of it.
func withinDir(dir, p string) bool {
	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return false
	}
	target, err := filepath.EvalSymlinks(p)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// FetchAll resolves refs concurrently with at most parallel downloads in
// flight. fieldFmt and stem take the index (e.g. "scenes[%d].image",
// "image_%03d"). Empty refs yield an empty path and no error. Errors are
// reported per index and do not stop the others.
func (r *Resolver) FetchAll(ctx context.Context, fieldFmt, stem string, refs []string, dir string) ([]string, []error) {
	paths := make([]string, len(refs))
	errs := make([]error, len(refs))

	var g errgroup.Group
	g.SetLimit(r.parallel)
	for i, ref := range refs {
		if strings.TrimSpace(ref) == "" {
			continue
		}
		g.Go(func() error {
			paths[i], errs[i] = r.Fetch(ctx, fmt.Sprintf(fieldFmt, i), ref, dir, fmt.Sprintf(stem, i))
			return nil
		})
	}
	g.Wait()
	return paths, errs
}

func (r *Resolver) download(ctx context.Context, field, url, dir, base string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &models.InputError{Field: field, Reason: "invalid URL", Err: err}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", &models.InputError{Field: field, Reason: "download failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &models.InputError{Field: field, Reason: fmt.Sprintf("download returned status %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxInputBytes+1))
	if err != nil {
		return "", &models.InputError{Field: field, Reason: "download interrupted", Err: err}
	}
	if len(data) > maxInputBytes {
		return "", &models.InputError{Field: field, Reason: "exceeds the 200MB input limit"}
	}

	ext := strings.ToLower(path.Ext(req.URL.Path))
	if ext == "" || len(ext) > 5 {
		ext = extFor(resp.Header.Get("Content-Type"), data)
	}
	r.logger.Debug().Str("field", field).Int("bytes", len(data)).Msg("downloaded input")
	return writeInput(field, dir, base, ext, data)
}

func writeInput(field, dir, base, ext string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", &models.InputError{Field: field, Reason: "is empty"}
	}
	p := filepath.Join(dir, base+ext)
	if err := os.WriteFile(p, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", field, err)
	}
	return p, nil
}

// decodeDataURI parses "data:<mime>[;base64],<payload>".
func decodeDataURI(uri string) ([]byte, string, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("missing comma")
	}
	mimeType := meta
	isBase64 := false
	if strings.HasSuffix(meta, ";base64") {
		mimeType = strings.TrimSuffix(meta, ";base64")
		isBase64 = true
	}
	if !isBase64 {
		return []byte(payload), mimeType, nil
	}
	data, ok := decodeBase64(payload)
	if !ok {
		return nil, "", fmt.Errorf("invalid base64 payload")
	}
	return data, mimeType, nil
}

func decodeBase64(s string) ([]byte, bool) {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' {
			return -1
		}
		return r
	}, s)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(s); err == nil && len(data) > 0 {
			return data, true
		}
	}
	return nil, false
}

func extFor(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = mt
	}
	if ext, ok := extByMIME[strings.ToLower(mimeType)]; ok {
		return ext
	}
	return ".bin"
}
