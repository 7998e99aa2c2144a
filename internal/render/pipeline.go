package render

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/bobarin/storyreel/internal/ffmpeg"
	"github.com/bobarin/storyreel/internal/metrics"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/narration"
	"github.com/bobarin/storyreel/internal/storage"
	"github.com/bobarin/storyreel/internal/subtitles"
)

// Progress checkpoints reported while a job renders.
const (
	progressStart     = 5
	progressNarration = 10
	progressScenes    = 20
	progressAssembly  = 75
	progressPublish   = 90
	progressDone      = 100

	narrationSpan = progressScenes - progressNarration
	sceneSpan     = 50
)

// PipelineConfig carries per-deployment limits. Scene dimensions and fps are
// derived per job from the submitted spec and these ceilings.
type PipelineConfig struct {
	TempDir        string
	ArtifactDir    string // finished videos, one file per job
	MaxLong        int
	MaxShort       int
	MaxFPS         int
	InlineMaxBytes int64

	SceneTimeout     time.Duration
	FallbackSecs     float64
	SubtitleMaxChars int
	SubtitleFontSize int

	Assembly AssemblerConfig
}

// Pipeline renders one job end to end: narration, scene clips, cues,
// assembly, publishing.
type Pipeline struct {
	exec      *ffmpeg.Executor
	resolver  *Resolver
	narrator  *narration.Narrator // nil when no speech provider is configured
	assembler *Assembler
	publisher storage.Publisher
	cfg       PipelineConfig
	logger    zerolog.Logger
}

func NewPipeline(exec *ffmpeg.Executor, resolver *Resolver, narrator *narration.Narrator, publisher storage.Publisher, cfg PipelineConfig, logger zerolog.Logger) *Pipeline {
	if cfg.MaxLong <= 0 || cfg.MaxShort <= 0 {
		cfg.MaxLong, cfg.MaxShort = 854, 480
	}
	if cfg.MaxFPS <= 0 {
		cfg.MaxFPS = 30
	}
	return &Pipeline{
		exec:      exec,
		resolver:  resolver,
		narrator:  narrator,
		assembler: NewAssembler(exec, cfg.Assembly, logger),
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}
}

// Render produces the job's artifact. report receives monotonically
// increasing progress values with a short status message.
func (p *Pipeline) Render(ctx context.Context, job models.RenderJob, report func(progress int, message string)) (*models.RenderResult, error) {
	if report == nil {
		report = func(int, string) {}
	}
	logger := p.logger.With().Str("job_id", job.ID).Logger()
	spec := job.Spec

	if err := os.MkdirAll(p.cfg.TempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	workDir, err := os.MkdirTemp(p.cfg.TempDir, "job-"+job.ID+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	defer os.RemoveAll(workDir)

	report(progressStart, "preparing inputs")

	reqW, reqH, err := models.ParseResolution(spec.Resolution)
	if err != nil {
		return nil, &models.InputError{Field: "resolution", Reason: "must look like 1080x1920", Err: err}
	}
	width, height := FitResolution(reqW, reqH, p.cfg.MaxLong, p.cfg.MaxShort)
	fps := CapFPS(spec.FPS, p.cfg.MaxFPS)
	if width != reqW || height != reqH {
		logger.Info().Str("requested", spec.Resolution).Int("width", width).Int("height", height).Msg("resolution capped")
	}

	// Global audio: synthesized narration or a submitted track.
	var (
		narr        *narration.Narration
		globalAudio string
		audioSecs   float64
	)
	switch {
	case spec.Narration != nil:
		if p.narrator == nil {
			return nil, &models.InputError{Field: "narration", Reason: "no speech provider is configured"}
		}
		report(progressNarration, "synthesizing narration")
		narr, err = p.narrator.Narrate(ctx, *spec.Narration, workDir, func(done, total int) {
			report(progressNarration+narrationSpan*done/total, fmt.Sprintf("narration segment %d/%d", done, total))
		})
		if err != nil {
			return nil, fmt.Errorf("narration failed: %w", err)
		}
		globalAudio, audioSecs = narr.AudioPath, narr.Duration

	case spec.Audio != "":
		globalAudio, err = p.resolver.Fetch(ctx, "audio", spec.Audio, workDir, "global_audio")
		if err != nil {
			return nil, err
		}
		audioSecs, err = p.exec.ProbeDuration(ctx, globalAudio)
		if err != nil {
			return nil, &models.InputError{Field: "audio", Reason: "cannot be read as audio", Err: err}
		}
	}

	inputs := p.prefetch(ctx, spec, workDir, audioSecs, logger)
	report(progressScenes, fmt.Sprintf("rendering %d scenes", len(inputs)))

	clips, err := p.renderScenes(ctx, inputs, width, height, fps, workDir, report, logger)
	if err != nil {
		return nil, err
	}

	var clipSecs float64
	for _, c := range clips {
		clipSecs += c.Duration
	}
	cues := p.cues(spec, narr, clipSecs, logger)

	report(progressAssembly, "assembling video")
	req := AssembleRequest{
		Clips:   clips,
		Audio:   globalAudio,
		Cues:    cues,
		Width:   width,
		Height:  height,
		WorkDir: workDir,
	}
	if spec.Subtitles != nil {
		req.Burn = spec.Subtitles.Burn
		req.FontSize = spec.Subtitles.FontSize
	}
	if req.FontSize <= 0 {
		req.FontSize = p.cfg.SubtitleFontSize
	}
	art, err := p.assembler.Assemble(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("assembly failed: %w", err)
	}

	report(progressPublish, "publishing")
	result, err := p.publish(ctx, job.ID, art)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Int("clips", len(clips)).
		Int("scenes", len(inputs)).
		Float64("duration", result.Duration).
		Int64("bytes", result.ByteSize).
		Bool("reencoded", art.Reencoded).
		Bool("font_fallback", art.FontFallback).
		Msg("render finished")

	report(progressDone, "completed")
	return result, nil
}

// prefetch resolves every scene input concurrently. A scene whose image or
// audio cannot be resolved carries the error and is skipped later.
func (p *Pipeline) prefetch(ctx context.Context, spec models.RenderSpec, workDir string, audioSecs float64, logger zerolog.Logger) []sceneJob {
	if len(spec.Images) > 0 {
		paths, errs := p.resolver.FetchAll(ctx, "images[%d]", "image_%03d", spec.Images, workDir)

		var perImage float64
		if audioSecs > 0 {
			perImage = audioSecs / float64(len(spec.Images))
		}
		jobs := make([]sceneJob, len(spec.Images))
		for i := range spec.Images {
			jobs[i] = sceneJob{
				in:  SceneInput{Index: i, ImagePath: paths[i], Declared: perImage},
				err: errs[i],
			}
		}
		return jobs
	}

	images := make([]string, len(spec.Scenes))
	audios := make([]string, len(spec.Scenes))
	for i, sc := range spec.Scenes {
		images[i], audios[i] = sc.Image, sc.Audio
	}
	imgPaths, imgErrs := p.resolver.FetchAll(ctx, "scenes[%d].image", "scene_%03d_image", images, workDir)
	audPaths, audErrs := p.resolver.FetchAll(ctx, "scenes[%d].audio", "scene_%03d_audio", audios, workDir)

	jobs := make([]sceneJob, len(spec.Scenes))
	for i, sc := range spec.Scenes {
		jobs[i] = sceneJob{
			in: SceneInput{
				Index:     i,
				ImagePath: imgPaths[i],
				AudioPath: audPaths[i],
				Declared:  sc.Duration,
			},
			err: errors.Join(imgErrs[i], audErrs[i]),
		}
	}
	return jobs
}

type sceneJob struct {
	in  SceneInput
	err error
}

// renderScenes encodes scenes one at a time, in order. Failed scenes are
// skipped; the job fails only when none succeed.
func (p *Pipeline) renderScenes(ctx context.Context, jobs []sceneJob, width, height, fps int, workDir string, report func(int, string), logger zerolog.Logger) ([]Clip, error) {
	synth := NewSceneSynthesizer(p.exec, SceneConfig{
		Width:        width,
		Height:       height,
		FPS:          fps,
		Timeout:      p.cfg.SceneTimeout,
		FallbackSecs: p.cfg.FallbackSecs,
	}, p.logger)

	clips := make([]Clip, 0, len(jobs))
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := job.err
		var clip *Clip
		if err == nil {
			clip, err = synth.Synthesize(ctx, job.in, workDir)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			metrics.SceneClip(false)
			logger.Warn().Err(err).Int("scene", job.in.Index).Msg("scene skipped")
		} else {
			metrics.SceneClip(true)
			clips = append(clips, *clip)
		}
		report(progressScenes+sceneSpan*(i+1)/len(jobs), fmt.Sprintf("scene %d/%d", i+1, len(jobs)))
	}

	if len(clips) == 0 {
		return nil, fmt.Errorf("all %d scenes failed to render", len(jobs))
	}
	return clips, nil
}

// cues picks the subtitle source: explicit cues, an SRT document, flat
// text, then the narration timeline.
func (p *Pipeline) cues(spec models.RenderSpec, narr *narration.Narration, clipSecs float64, logger zerolog.Logger) []models.SubtitleCue {
	sub := spec.Subtitles
	if sub == nil {
		return nil
	}

	opts := subtitles.DefaultOptions()
	opts.MaxChars = p.cfg.SubtitleMaxChars
	if sub.Speed > 0 {
		opts.Speed = sub.Speed
	}

	var cues []models.SubtitleCue
	switch {
	case len(sub.Cues) > 0:
		cues = subtitles.Sanitize(sub.Cues)
	case sub.SRT != "":
		cues = subtitles.Sanitize(subtitles.ParseSRT(sub.SRT))
	case sub.Text != "":
		opts.TotalDuration = clipSecs
		if narr != nil {
			opts.TotalDuration = narr.Duration
		}
		cues = subtitles.Generate(sub.Text, opts)
	case narr != nil:
		cues = subtitles.FromTimeline(narr.Timeline, opts)
	}

	if len(cues) == 0 && sub.HasSource() {
		logger.Warn().Msg("subtitle source produced no cues")
	}
	return cues
}

// publish moves the artifact into the artifact directory, hands it to the
// publisher and builds the result.
func (p *Pipeline) publish(ctx context.Context, jobID string, art *Artifact) (*models.RenderResult, error) {
	key := jobID + ".mp4"
	finalPath := filepath.Join(p.cfg.ArtifactDir, key)
	if err := storage.CopyFile(art.Path, finalPath); err != nil {
		return nil, fmt.Errorf("failed to store artifact: %w", err)
	}

	url, err := p.publisher.Publish(ctx, key, finalPath, "video/mp4")
	metrics.Publish(p.publisher.Name(), err)
	if err != nil {
		return nil, fmt.Errorf("failed to publish artifact: %w", err)
	}

	result := &models.RenderResult{
		VideoPath: finalPath,
		VideoURL:  url,
		Duration:  art.Duration,
		ByteSize:  art.Size,
	}

	if art.SubtitlePath != "" {
		srtKey := jobID + ".srt"
		srtPath := filepath.Join(p.cfg.ArtifactDir, srtKey)
		if err := storage.CopyFile(art.SubtitlePath, srtPath); err != nil {
			return nil, fmt.Errorf("failed to store subtitles: %w", err)
		}
		srtURL, err := p.publisher.Publish(ctx, srtKey, srtPath, "application/x-subrip")
		metrics.Publish(p.publisher.Name(), err)
		if err != nil {
			return nil, fmt.Errorf("failed to publish subtitles: %w", err)
		}
		result.SubtitleURL = srtURL
	}

	if p.cfg.InlineMaxBytes > 0 && art.Size < p.cfg.InlineMaxBytes {
		data, err := os.ReadFile(finalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact: %w", err)
		}
		result.VideoBase64 = base64.StdEncoding.EncodeToString(data)
	}
	return result, nil
}
