package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bobarin/storyreel/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	probeTimeout = 30 * time.Second
	stderrTail   = 4000
)

// Executor runs ffmpeg/ffprobe with a per-step timeout and turns failures
// into EncoderError or TimeoutError.
type Executor struct {
	runner  Runner
	ffmpeg  string
	ffprobe string
	logger  zerolog.Logger
}

func NewExecutor(runner Runner, ffmpegPath, ffprobePath string, logger zerolog.Logger) *Executor {
	if runner == nil {
		runner = ExecRunner{}
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Executor{
		runner:  runner,
		ffmpeg:  ffmpegPath,
		ffprobe: ffprobePath,
		logger:  logger.With().Str("component", "ffmpeg").Logger(),
	}
}

// Run executes cmd as step within timeout.
func (e *Executor) Run(ctx context.Context, step string, cmd *Command, timeout time.Duration) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.logger.Debug().Str("step", step).Str("cmd", cmd.String()).Msg("running encoder")

	start := time.Now()
	res, err := e.runner.Run(runCtx, e.ffmpeg, cmd.Args()...)
	metrics.ObserveEncoder(step, err, time.Since(start))
	if err == nil {
		return res, nil
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		e.logger.Warn().Str("step", step).Dur("limit", timeout).Msg("encoder timed out")
		return res, &TimeoutError{Step: step, Limit: timeout}
	}
	if ctx.Err() != nil {
		return res, fmt.Errorf("%s cancelled: %w", step, ctx.Err())
	}

	encErr := &EncoderError{
		Step:     step,
		Category: Classify(res.Stderr),
		ExitCode: res.ExitCode,
		Stderr:   tail(res.Stderr, stderrTail),
		Err:      err,
	}
	e.logger.Warn().
		Str("step", step).
		Str("category", string(encErr.Category)).
		Int("exit_code", res.ExitCode).
		Str("stderr", lastLine(res.Stderr)).
		Msg("encoder failed")
	return res, encErr
}

// ProbeDuration returns the container duration of a media file in seconds.
func (e *Executor) ProbeDuration(ctx context.Context, path string) (float64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	res, err := e.runner.Run(probeCtx, e.ffprobe, ProbeDurationArgs(path)...)
	if err != nil {
		if errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
			return 0, &TimeoutError{Step: "probe", Limit: probeTimeout}
		}
		return 0, &EncoderError{
			Step:     "probe",
			Category: Classify(res.Stderr),
			ExitCode: res.ExitCode,
			Stderr:   tail(res.Stderr, stderrTail),
			Err:      err,
		}
	}
	return ParseDuration(res.Stdout)
}

// ParseDuration parses ffprobe's duration output.
func ParseDuration(out string) (float64, error) {
	value := strings.TrimSpace(out)
	if i := strings.IndexByte(value, '\n'); i >= 0 {
		value = strings.TrimSpace(value[:i])
	}
	d, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("non-positive duration %q", value)
	}
	return d, nil
}

// WriteConcatList writes a concat demuxer list in the given order.
func WriteConcatList(path string, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("no files to concatenate")
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, p := range files {
		fmt.Fprintf(w, "file '%s'\n", strings.ReplaceAll(p, "'", `'\''`))
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	return f.Close()
}

// ConcatCommand builds a concat-demuxer command over listPath. Without
// codec arguments the streams are copied.
func ConcatCommand(listPath, output string, codecArgs ...string) *Command {
	if len(codecArgs) == 0 {
		codecArgs = []string{"-c", "copy"}
	}
	return New().
		Input(listPath, "-f", "concat", "-safe", "0").
		Out(codecArgs...).
		Output(output)
}

// Concat joins files in order into output. The list file is written next
// to output and removed afterwards.
func (e *Executor) Concat(ctx context.Context, step string, files []string, output string, timeout time.Duration, codecArgs ...string) error {
	abs := make([]string, len(files))
	for i, f := range files {
		p, err := filepath.Abs(f)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", f, err)
		}
		abs[i] = p
	}

	listPath := strings.TrimSuffix(output, filepath.Ext(output)) + "_list.txt"
	if err := WriteConcatList(listPath, abs); err != nil {
		return err
	}
	defer Cleanup(listPath)

	_, err := e.Run(ctx, step, ConcatCommand(listPath, output, codecArgs...), timeout)
	return err
}

// Cleanup removes temporary files, ignoring errors.
func Cleanup(paths ...string) {
	for _, path := range paths {
		if path != "" {
			os.Remove(path)
		}
	}
}
