package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/bobarin/storyreel/internal/ffmpeg"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/subtitles"
)

// AssemblerConfig holds the assembly budget and font settings.
type AssemblerConfig struct {
	Timeout      time.Duration // whole assembly, all steps
	FontPath     string
	FontName     string
	FallbackFont string
}

// AssembleRequest is one job's assembly input.
type AssembleRequest struct {
	Clips    []Clip // in scene order
	Audio    string // optional track replacing clip audio
	Cues     []models.SubtitleCue
	Burn     bool
	FontSize int
	Width    int
	Height   int
	WorkDir  string
}

// Artifact is the assembled video.
type Artifact struct {
	Path         string
	Duration     float64
	Size         int64
	SubtitlePath string // sidecar SRT when cues exist and were not burned
	FontFallback bool
	Reencoded    bool
}

// Assembler concatenates scene clips and optionally burns in subtitles.
type Assembler struct {
	exec   *ffmpeg.Executor
	cfg    AssemblerConfig
	logger zerolog.Logger
}

func NewAssembler(exec *ffmpeg.Executor, cfg AssemblerConfig, logger zerolog.Logger) *Assembler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1800 * time.Second
	}
	return &Assembler{
		exec:   exec,
		cfg:    cfg,
		logger: logger.With().Str("component", "assembler").Logger(),
	}
}

// Assemble runs concat, audio mux, burn-in and verification within the
// assembly budget.
func (a *Assembler) Assemble(ctx context.Context, req AssembleRequest) (*Artifact, error) {
	if len(req.Clips) == 0 {
		return nil, fmt.Errorf("no clips to assemble")
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	art := &Artifact{}
	current, reencoded, err := a.concat(ctx, req)
	if err != nil {
		return nil, err
	}
	art.Reencoded = reencoded

	if req.Audio != "" {
		if current, err = a.muxAudio(ctx, current, req.Audio, req.WorkDir); err != nil {
			return nil, err
		}
	}

	if len(req.Cues) > 0 {
		if req.Burn {
			burned, fallback, err := a.burn(ctx, current, req)
			if err != nil {
				return nil, err
			}
			current, art.FontFallback = burned, fallback
		} else {
			art.SubtitlePath = filepath.Join(req.WorkDir, "subtitles.srt")
			if err := subtitles.WriteSRT(req.Cues, art.SubtitlePath); err != nil {
				return nil, err
			}
		}
	}

	info, err := os.Stat(current)
	if err != nil {
		return nil, fmt.Errorf("assembled video missing: %w", err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("assembled video is empty")
	}
	duration, err := a.exec.ProbeDuration(ctx, current)
	if err != nil {
		return nil, fmt.Errorf("assembled video unreadable: %w", err)
	}

	art.Path = current
	art.Size = info.Size()
	art.Duration = duration
	return art, nil
}

// concat joins clips by stream copy, re-encoding only when the copy fails.
func (a *Assembler) concat(ctx context.Context, req AssembleRequest) (string, bool, error) {
	files := make([]string, len(req.Clips))
	for i, c := range req.Clips {
		files[i] = c.Path
	}

	output := filepath.Join(req.WorkDir, "joined.mp4")
	err := a.exec.Concat(ctx, "concat", files, output, a.cfg.Timeout)
	if err == nil {
		return output, false, nil
	}

	var encErr *ffmpeg.EncoderError
	if !errors.As(err, &encErr) {
		return "", false, err
	}
	a.logger.Warn().Err(err).Int("clips", len(files)).Msg("stream-copy concat failed; re-encoding")

	output = filepath.Join(req.WorkDir, "joined_reencoded.mp4")
	err = a.exec.Concat(ctx, "concat re-encode", files, output, a.cfg.Timeout,
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "28", "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", "128k", "-ar", "44100", "-ac", "2",
		"-movflags", "+faststart")
	if err != nil {
		return "", false, err
	}
	return output, true, nil
}

// muxAudio replaces the clip audio with one track for the whole video.
func (a *Assembler) muxAudio(ctx context.Context, video, audio, workDir string) (string, error) {
	output := filepath.Join(workDir, "with_audio.mp4")
	cmd := ffmpeg.New().
		Input(video).
		Input(audio).
		Out(
			"-map", "0:v:0", "-map", "1:a:0",
			"-c:v", "copy",
			"-c:a", "aac", "-b:a", "128k", "-ar", "44100", "-ac", "2",
			"-shortest",
			"-movflags", "+faststart",
		).
		Output(output)
	if _, err := a.exec.Run(ctx, "audio mux", cmd, a.cfg.Timeout); err != nil {
		return "", err
	}
	return output, nil
}

// burn writes an ASS script and composites it. If the encoder rejects the
// configured font, the burn is retried once with the fallback family.
func (a *Assembler) burn(ctx context.Context, video string, req AssembleRequest) (string, bool, error) {
	font := subtitles.ResolveFont(a.cfg.FontPath, a.cfg.FontName, a.cfg.FallbackFont)
	if font.Fallback {
		a.logger.Warn().Str("font_path", a.cfg.FontPath).Str("fallback", font.Name).Msg("subtitle font asset missing; using fallback")
	}

	output, err := a.burnWith(ctx, video, req, font)
	if err == nil || font.Fallback || ffmpeg.IsTimeout(err) {
		return output, font.Fallback, err
	}

	a.logger.Warn().Err(err).Msg("burn-in failed with configured font; retrying with fallback")
	font = subtitles.ResolveFont("", "", a.cfg.FallbackFont)
	output, err = a.burnWith(ctx, video, req, font)
	return output, true, err
}

func (a *Assembler) burnWith(ctx context.Context, video string, req AssembleRequest, font subtitles.Font) (string, error) {
	style := subtitles.DefaultStyle(font.Name, req.Width, req.Height)
	if req.FontSize > 0 {
		style.FontSize = req.FontSize
	}

	assPath := filepath.Join(req.WorkDir, "subtitles.ass")
	if err := subtitles.WriteASS(req.Cues, style, assPath); err != nil {
		return "", err
	}

	output := filepath.Join(req.WorkDir, "burned.mp4")
	cmd := ffmpeg.New().
		Input(video).
		VideoFilter(assFilter(assPath, font.Dir)).
		Out(
			"-c:v", "libx264", "-preset", "veryfast", "-crf", "26", "-pix_fmt", "yuv420p",
			"-c:a", "copy",
			"-threads", "2",
			"-movflags", "+faststart",
		).
		Output(output)
	if _, err := a.exec.Run(ctx, "subtitle burn", cmd, a.cfg.Timeout); err != nil {
		return "", err
	}
	return output, nil
}

func assFilter(assPath, fontsDir string) string {
	f := fmt.Sprintf("ass='%s'", ffmpeg.EscapeFilterPath(assPath))
	if fontsDir != "" {
		f += fmt.Sprintf(":fontsdir='%s'", ffmpeg.EscapeFilterPath(fontsDir))
	}
	return f
}
