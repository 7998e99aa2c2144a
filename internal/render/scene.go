package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/bobarin/storyreel/internal/ffmpeg"
	"github.com/bobarin/storyreel/internal/models"
)

const (
	silentSource = "anullsrc=channel_layout=stereo:sample_rate=44100"

	DurationFromAudio    = "audio"
	DurationFromDeclared = "declared"
	DurationFromFallback = "fallback"
)

// SceneConfig bounds every scene clip.
type SceneConfig struct {
	Width, Height int
	FPS           int
	Timeout       time.Duration
	FallbackSecs  float64
}

// SceneInput is one resolved scene.
type SceneInput struct {
	Index     int
	ImagePath string
	AudioPath string  // empty renders a silent track
	Declared  float64 // seconds, 0 when not declared
}

// Clip is a rendered scene.
type Clip struct {
	Index          int
	Path           string
	Duration       float64
	DurationSource string
	Silent         bool
}

// SceneSynthesizer renders one still image plus audio into a fixed-length
// clip. All clips share codec, size, frame rate and audio layout so the
// assembler can concatenate them by stream copy.
type SceneSynthesizer struct {
	exec   *ffmpeg.Executor
	cfg    SceneConfig
	logger zerolog.Logger
}

func NewSceneSynthesizer(exec *ffmpeg.Executor, cfg SceneConfig, logger zerolog.Logger) *SceneSynthesizer {
	if cfg.FallbackSecs <= 0 {
		cfg.FallbackSecs = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	return &SceneSynthesizer{
		exec:   exec,
		cfg:    cfg,
		logger: logger.With().Str("component", "scene").Logger(),
	}
}

// Duration picks the clip length: probed audio, then declared, then the
// fallback. An audio file that cannot be probed is an InputError.
func (s *SceneSynthesizer) Duration(ctx context.Context, in SceneInput) (float64, string, error) {
	if in.AudioPath != "" {
		d, err := s.exec.ProbeDuration(ctx, in.AudioPath)
		if err != nil {
			return 0, "", &models.InputError{
				Field:  fmt.Sprintf("scenes[%d].audio", in.Index),
				Reason: "cannot be read as audio",
				Err:    err,
			}
		}
		if in.Declared > 0 && abs(in.Declared-d) > 0.5 {
			s.logger.Debug().
				Int("scene", in.Index).
				Float64("declared", in.Declared).
				Float64("probed", d).
				Msg("declared duration differs from audio; using audio")
		}
		return d, DurationFromAudio, nil
	}
	if in.Declared > 0 {
		return in.Declared, DurationFromDeclared, nil
	}
	return s.cfg.FallbackSecs, DurationFromFallback, nil
}

// Command builds the encoder invocation for one scene.
func (s *SceneSynthesizer) Command(in SceneInput, duration float64, output string) *ffmpeg.Command {
	w, h, fps := s.cfg.Width, s.cfg.Height, s.cfg.FPS

	cmd := ffmpeg.New().Input(in.ImagePath, "-loop", "1", "-framerate", strconv.Itoa(fps))
	if in.AudioPath != "" {
		cmd.Input(in.AudioPath)
	} else {
		cmd.Input(silentSource, "-f", "lavfi")
	}

	return cmd.
		VideoFilter(
			fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", w, h),
			fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black", w, h),
			"setsar=1",
			"format=yuv420p",
			fmt.Sprintf("fps=%d", fps),
		).
		Out(
			"-map", "0:v:0", "-map", "1:a:0",
			"-c:v", "libx264", "-preset", "veryfast", "-tune", "stillimage", "-crf", "28",
			"-c:a", "aac", "-b:a", "128k", "-ar", "44100", "-ac", "2",
			"-t", strconv.FormatFloat(duration, 'f', 3, 64),
			"-threads", "2",
			"-movflags", "+faststart",
		).
		Output(output)
}

// Synthesize renders in into outDir. Any error means the scene is skipped.
func (s *SceneSynthesizer) Synthesize(ctx context.Context, in SceneInput, outDir string) (*Clip, error) {
	if in.ImagePath == "" {
		return nil, &models.InputError{Field: fmt.Sprintf("scenes[%d].image", in.Index), Reason: "is missing"}
	}

	duration, source, err := s.Duration(ctx, in)
	if err != nil {
		return nil, err
	}

	output := filepath.Join(outDir, fmt.Sprintf("scene_%03d.mp4", in.Index))
	step := fmt.Sprintf("scene %d", in.Index)
	if _, err := s.exec.Run(ctx, step, s.Command(in, duration, output), s.cfg.Timeout); err != nil {
		return nil, err
	}

	info, err := os.Stat(output)
	if err != nil || info.Size() == 0 {
		return nil, fmt.Errorf("%s produced no output", step)
	}

	s.logger.Debug().
		Int("scene", in.Index).
		Float64("duration", duration).
		Str("source", source).
		Bool("silent", in.AudioPath == "").
		Msg("scene rendered")

	return &Clip{
		Index:          in.Index,
		Path:           output,
		Duration:       duration,
		DurationSource: source,
		Silent:         in.AudioPath == "",
	}, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
