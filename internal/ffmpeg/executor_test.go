package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeRunner simulates encoder runs.
type fakeRunner struct {
	run func(ctx context.Context, name string, args ...string) (Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	if f.run == nil {
		return Result{}, nil
	}
	return f.run(ctx, name, args...)
}

func TestExecutorRunSuccess(t *testing.T) {
	var gotName string
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (Result, error) {
		gotName = name
		return Result{Stdout: "ok"}, nil
	}}

	exec := NewExecutor(runner, "ffmpeg-custom", "", zerolog.Nop())
	res, err := exec.Run(context.Background(), "concat", New().Output("o.mp4"), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotName != "ffmpeg-custom" {
		t.Errorf("expected ffmpeg-custom, got %s", gotName)
	}
	if res.Stdout != "ok" {
		t.Errorf("expected captured stdout, got %q", res.Stdout)
	}
}

func TestExecutorRunEncoderFailure(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (Result, error) {
		return Result{Stderr: "img.png: No such file or directory", ExitCode: 1}, errors.New("exit status 1")
	}}

	exec := NewExecutor(runner, "", "", zerolog.Nop())
	_, err := exec.Run(context.Background(), "scene 1", New(), time.Second)

	var encErr *EncoderError
	if !errors.As(err, &encErr) {
		t.Fatalf("expected EncoderError, got %T: %v", err, err)
	}
	if encErr.Category != CategoryMissingFile {
		t.Errorf("expected missing_file, got %s", encErr.Category)
	}
	if encErr.ExitCode != 1 {
		t.Errorf("expected exit code 1, got %d", encErr.ExitCode)
	}
}

func TestExecutorRunTimeout(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (Result, error) {
		<-ctx.Done()
		return Result{ExitCode: -1}, ctx.Err()
	}}

	exec := NewExecutor(runner, "", "", zerolog.Nop())
	_, err := exec.Run(context.Background(), "scene 1", New(), 20*time.Millisecond)
	if !IsTimeout(err) {
		t.Fatalf("expected TimeoutError, got %T: %v", err, err)
	}
}

func TestProbeDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mp3")
	os.WriteFile(path, []byte("x"), 0644)

	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (Result, error) {
		if name != "ffprobe" {
			t.Errorf("expected ffprobe, got %s", name)
		}
		if args[len(args)-1] != path {
			t.Errorf("expected path as last arg, got %v", args)
		}
		return Result{Stdout: "3.250000\n"}, nil
	}}

	exec := NewExecutor(runner, "", "", zerolog.Nop())
	d, err := exec.ProbeDuration(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 3.25 {
		t.Errorf("expected 3.25, got %v", d)
	}
}

func TestProbeDurationMissingFile(t *testing.T) {
	exec := NewExecutor(&fakeRunner{}, "", "", zerolog.Nop())
	if _, err := exec.ProbeDuration(context.Background(), "/does/not/exist.mp3"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseDuration(t *testing.T) {
	if _, err := ParseDuration("N/A"); err == nil {
		t.Error("expected error for N/A")
	}
	if _, err := ParseDuration("0.000"); err == nil {
		t.Error("expected error for zero duration")
	}
	d, err := ParseDuration(" 12.5 \n")
	if err != nil || d != 12.5 {
		t.Errorf("expected 12.5, got %v, %v", d, err)
	}
}

func TestWriteConcatList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	if err := WriteConcatList(path, []string{"/w/scene_000.mp4", "/w/it's.mp4"}); err != nil {
		t.Fatalf("WriteConcatList failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0] != "file '/w/scene_000.mp4'" {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if lines[1] != `file '/w/it'\''s.mp4'` {
		t.Errorf("unexpected escaped line %q", lines[1])
	}

	if err := WriteConcatList(path, nil); err == nil {
		t.Error("expected error for empty list")
	}
}

func TestConcatCopiesStreams(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "merged.mp3")

	var gotArgs []string
	var listBody string
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (Result, error) {
		gotArgs = args
		for i, a := range args {
			if a == "-i" {
				data, _ := os.ReadFile(args[i+1])
				listBody = string(data)
			}
		}
		return Result{}, nil
	}}

	exec := NewExecutor(runner, "", "", zerolog.Nop())
	if err := exec.Concat(context.Background(), "merge", []string{filepath.Join(dir, "a.mp3"), filepath.Join(dir, "b.mp3")}, out, time.Second); err != nil {
		t.Fatalf("Concat failed: %v", err)
	}

	joined := strings.Join(gotArgs, " ")
	if !strings.Contains(joined, "-f concat -safe 0 -i") || !strings.Contains(joined, "-c copy "+out) {
		t.Errorf("unexpected args %v", gotArgs)
	}
	if strings.Count(listBody, "file '") != 2 {
		t.Errorf("unexpected list %q", listBody)
	}
	if _, err := os.Stat(filepath.Join(dir, "merged_list.txt")); !os.IsNotExist(err) {
		t.Error("expected list file to be removed")
	}
}
