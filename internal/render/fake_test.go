package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/bobarin/storyreel/internal/ffmpeg"
)

// fakeEncoder stands in for ffmpeg/ffprobe. ffmpeg calls create their output
// file; ffprobe answers from durations keyed by file base name.
type fakeEncoder struct {
	mu        sync.Mutex
	calls     [][]string
	durations map[string]string
	fail      func(args []string) bool
	stderr    string
}

func (f *fakeEncoder) Run(ctx context.Context, name string, args ...string) (ffmpeg.Result, error) {
	last := args[len(args)-1]
	if name == "ffprobe" {
		if d, ok := f.durations[filepath.Base(last)]; ok {
			return ffmpeg.Result{Stdout: d + "\n"}, nil
		}
		return ffmpeg.Result{Stdout: "2.000000\n"}, nil
	}

	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	f.mu.Unlock()

	if f.fail != nil && f.fail(args) {
		stderr := f.stderr
		if stderr == "" {
			stderr = "Invalid data found when processing input"
		}
		return ffmpeg.Result{Stderr: stderr, ExitCode: 1}, errors.New("exit status 1")
	}
	if err := os.WriteFile(last, []byte("fake media"), 0644); err != nil {
		return ffmpeg.Result{ExitCode: 1}, err
	}
	return ffmpeg.Result{}, nil
}

// callsWith returns recorded ffmpeg invocations containing every fragment.
func (f *fakeEncoder) callsWith(fragments ...string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out [][]string
	for _, c := range f.calls {
		joined := strings.Join(c, " ")
		ok := true
		for _, frag := range fragments {
			if !strings.Contains(joined, frag) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, c)
		}
	}
	return out
}

func newFakeExecutor(f *fakeEncoder) *ffmpeg.Executor {
	return ffmpeg.NewExecutor(f, "ffmpeg", "ffprobe", zerolog.Nop())
}

// touch writes a small placeholder file and returns its path.
func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("placeholder"), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// argAfter returns the value following flag in args.
func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}
