package narration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/bobarin/storyreel/internal/ffmpeg"
	"github.com/bobarin/storyreel/internal/metrics"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/services"
)

const defaultMergeTimeout = 5 * time.Minute

// Narration is the synthesized track of one script.
type Narration struct {
	AudioPath string
	Duration  float64
	Segments  []models.NarrationSegment
	Timeline  []models.TimelineEntry
}

// Config tunes a Narrator.
type Config struct {
	Voices VoiceTable
	// Emotion enables SSML slow-down markup for providers that accept it.
	Emotion      bool
	MergeTimeout time.Duration
}

// Narrator turns a tagged script into one audio file and its timeline.
type Narrator struct {
	tts    services.TTSService
	exec   *ffmpeg.Executor
	cfg    Config
	logger zerolog.Logger
}

func NewNarrator(tts services.TTSService, exec *ffmpeg.Executor, cfg Config, logger zerolog.Logger) *Narrator {
	if cfg.MergeTimeout <= 0 {
		cfg.MergeTimeout = defaultMergeTimeout
	}
	return &Narrator{
		tts:    tts,
		exec:   exec,
		cfg:    cfg,
		logger: logger.With().Str("component", "narration").Logger(),
	}
}

// Narrate synthesizes spec.Script into workDir. Segments and their chunks
// are synthesized sequentially in order. onSegment, if set, is called after
// each segment with the number done and the total.
func (n *Narrator) Narrate(ctx context.Context, spec models.NarrationSpec, workDir string, onSegment func(done, total int)) (*Narration, error) {
	segments := Parse(spec.Script)
	if len(segments) == 0 {
		return nil, &models.InputError{Field: "narration.script", Reason: "contains no text"}
	}
	if n.tts == nil {
		return nil, &models.InputError{Field: "narration", Reason: "no speech provider is configured"}
	}

	rate := spec.Rate
	if rate <= 0 {
		rate = 1.0
	}
	emotion := n.cfg.Emotion && spec.Emotion && services.SupportsSSML(n.tts)

	var (
		segFiles []string
		timeline []models.TimelineEntry
		cursor   float64
	)
	for i := range segments {
		seg := &segments[i]
		seg.Voice = n.cfg.Voices.Resolve(seg.Tag)

		path, dur, err := n.synthesizeSegment(ctx, seg, rate, emotion, workDir)
		if err != nil {
			return nil, fmt.Errorf("segment %d [%s]: %w", seg.Index, seg.Tag, err)
		}
		seg.AudioPath = path
		seg.Duration = dur

		timeline = append(timeline, models.TimelineEntry{
			Index: seg.Index,
			Tag:   seg.Tag,
			Text:  seg.Text,
			Start: cursor,
			End:   cursor + dur,
			Voice: seg.Voice,
		})
		cursor += dur
		segFiles = append(segFiles, path)

		if onSegment != nil {
			onSegment(i+1, len(segments))
		}
	}

	out, err := n.merge(ctx, "narration merge", segFiles, filepath.Join(workDir, "narration"+filepath.Ext(segFiles[0])))
	if err != nil {
		return nil, err
	}

	n.logger.Info().
		Int("segments", len(segments)).
		Float64("duration", cursor).
		Msg("narration synthesized")

	return &Narration{
		AudioPath: out,
		Duration:  cursor,
		Segments:  segments,
		Timeline:  timeline,
	}, nil
}

// synthesizeSegment returns the segment's audio path and summed chunk
// durations.
func (n *Narrator) synthesizeSegment(ctx context.Context, seg *models.NarrationSegment, rate float64, emotion bool, workDir string) (string, float64, error) {
	limit := n.tts.PayloadLimit()
	chunks := Chunk(seg.Text, limit)

	var (
		files []string
		total float64
	)
	for j, chunk := range chunks {
		payload, ssml := chunk, false
		if emotion {
			payload, ssml = ApplyEmotion(chunk, limit)
		}

		resp, err := n.tts.GenerateSpeech(ctx, services.SpeechRequest{
			Text:    payload,
			VoiceID: seg.Voice,
			Rate:    rate,
			SSML:    ssml,
		})
		metrics.TTSChunk(n.tts.Name(), err)
		if err != nil {
			if services.IsPayloadTooLarge(err) {
				n.logger.Error().
					Str("provider", n.tts.Name()).
					Int("limit", limit).
					Int("bytes", len(payload)).
					Msg("provider rejected chunk size; chunk limit is misconfigured")
			}
			return "", 0, fmt.Errorf("chunk %d: %w", j, err)
		}

		format := resp.Format
		if format == "" {
			format = "mp3"
		}
		path := filepath.Join(workDir, fmt.Sprintf("seg_%03d_chunk_%03d.%s", seg.Index, j, format))
		if err := os.WriteFile(path, resp.AudioData, 0644); err != nil {
			return "", 0, fmt.Errorf("failed to write chunk audio: %w", err)
		}

		d, err := n.exec.ProbeDuration(ctx, path)
		if err != nil {
			return "", 0, fmt.Errorf("chunk %d: %w", j, err)
		}
		total += d
		files = append(files, path)
	}

	out, err := n.merge(ctx, fmt.Sprintf("segment %d merge", seg.Index), files,
		filepath.Join(workDir, fmt.Sprintf("seg_%03d%s", seg.Index, filepath.Ext(files[0]))))
	if err != nil {
		return "", 0, err
	}
	return out, total, nil
}

// merge concatenates files by stream copy. A single file is returned as is.
func (n *Narrator) merge(ctx context.Context, step string, files []string, output string) (string, error) {
	if len(files) == 1 {
		return files[0], nil
	}
	if err := n.exec.Concat(ctx, step, files, output, n.cfg.MergeTimeout); err != nil {
		return "", err
	}
	return output, nil
}
