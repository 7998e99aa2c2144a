package render

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/storage"
)

type pipelineFixture struct {
	pipeline    *Pipeline
	encoder     *fakeEncoder
	inputs      string
	artifactDir string
}

func newPipelineFixture(t *testing.T, f *fakeEncoder) *pipelineFixture {
	t.Helper()
	artifactDir := filepath.Join(t.TempDir(), "videos")
	pub, err := storage.NewLocalPublisher(artifactDir, "http://render.test")
	if err != nil {
		t.Fatalf("NewLocalPublisher failed: %v", err)
	}

	inputs := t.TempDir()
	exec := newFakeExecutor(f)
	p := NewPipeline(exec, NewResolver(2, inputs, zerolog.Nop()), nil, pub, PipelineConfig{
		TempDir:          t.TempDir(),
		ArtifactDir:      artifactDir,
		MaxLong:          854,
		MaxShort:         480,
		MaxFPS:           30,
		InlineMaxBytes:   1024,
		SubtitleMaxChars: 35,
	}, zerolog.Nop())

	return &pipelineFixture{pipeline: p, encoder: f, inputs: inputs, artifactDir: artifactDir}
}

func TestRenderScenes(t *testing.T) {
	f := &fakeEncoder{durations: map[string]string{"a1.mp3": "1.5", "joined.mp4": "4.5"}}
	fx := newPipelineFixture(t, f)

	img := touch(t, fx.inputs, "img.png")
	audio := touch(t, fx.inputs, "a1.mp3")

	job := models.RenderJob{
		ID: "job-1",
		Spec: models.RenderSpec{
			Scenes: []models.SceneSpec{
				{Image: img, Audio: audio},
				{Image: img, Duration: 3},
			},
			Resolution: "1080x1920",
			FPS:        60,
		},
	}

	var progress []int
	result, err := fx.pipeline.Render(context.Background(), job, func(p int, msg string) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if result.VideoURL != "http://render.test/videos/job-1.mp4" {
		t.Errorf("unexpected url %s", result.VideoURL)
	}
	if result.VideoPath != filepath.Join(fx.artifactDir, "job-1.mp4") {
		t.Errorf("unexpected path %s", result.VideoPath)
	}
	if _, err := os.Stat(result.VideoPath); err != nil {
		t.Errorf("artifact missing: %v", err)
	}
	if result.Duration != 4.5 {
		t.Errorf("expected probed duration 4.5, got %v", result.Duration)
	}
	if result.VideoBase64 == "" {
		t.Error("expected inline base64 for a small artifact")
	}

	if diff := cmp.Diff([]int{5, 20, 45, 70, 75, 90, 100}, progress); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}

	scenes := f.callsWith("-loop")
	if len(scenes) != 2 {
		t.Fatalf("expected 2 scene encodes, got %d", len(scenes))
	}
	if got := argAfter(scenes[0], "-t"); got != "1.500" {
		t.Errorf("scene 0 should follow audio, got -t %s", got)
	}
	if got := argAfter(scenes[1], "-t"); got != "3.000" {
		t.Errorf("scene 1 should follow declared duration, got -t %s", got)
	}
	if !strings.Contains(argAfter(scenes[0], "-vf"), "scale=480:854") {
		t.Errorf("expected capped resolution, got %s", argAfter(scenes[0], "-vf"))
	}
	if !strings.Contains(argAfter(scenes[0], "-vf"), "fps=30") {
		t.Errorf("expected capped fps, got %s", argAfter(scenes[0], "-vf"))
	}
}

func TestRenderSkipsFailedScene(t *testing.T) {
	f := &fakeEncoder{
		fail: func(args []string) bool {
			return strings.HasSuffix(args[len(args)-1], "scene_001.mp4")
		},
	}
	fx := newPipelineFixture(t, f)
	img := touch(t, fx.inputs, "img.png")

	job := models.RenderJob{
		ID: "job-2",
		Spec: models.RenderSpec{
			Images:     []string{img, img, "/missing/image.png"},
			Resolution: "1080x1920",
			FPS:        24,
		},
	}

	if _, err := fx.pipeline.Render(context.Background(), job, nil); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	concat := f.callsWith("-f concat")
	if len(concat) != 1 {
		t.Fatalf("expected one concat, got %d", len(concat))
	}
	list := argAfter(concat[0], "-i")
	if !strings.HasSuffix(list, "joined_list.txt") {
		t.Errorf("unexpected concat input %s", list)
	}
	if len(f.callsWith("-loop")) != 2 {
		t.Errorf("expected the unresolvable image to be skipped before encoding")
	}
}

func TestRenderAllScenesFail(t *testing.T) {
	f := &fakeEncoder{fail: func([]string) bool { return true }}
	fx := newPipelineFixture(t, f)
	img := touch(t, fx.inputs, "img.png")

	job := models.RenderJob{
		ID:   "job-3",
		Spec: models.RenderSpec{Images: []string{img, img}, Resolution: "1080x1920", FPS: 24},
	}

	_, err := fx.pipeline.Render(context.Background(), job, nil)
	if err == nil || !strings.Contains(err.Error(), "all 2 scenes failed") {
		t.Fatalf("expected all-scenes failure, got %v", err)
	}
	if len(f.callsWith("-f concat")) != 0 {
		t.Error("did not expect assembly")
	}
}

func TestRenderImagesShareGlobalAudio(t *testing.T) {
	f := &fakeEncoder{durations: map[string]string{"track.mp3": "9"}}
	fx := newPipelineFixture(t, f)
	img := touch(t, fx.inputs, "img.png")
	track := touch(t, fx.inputs, "track.mp3")

	job := models.RenderJob{
		ID: "job-4",
		Spec: models.RenderSpec{
			Images:     []string{img, img, img},
			Audio:      track,
			Resolution: "1920x1080",
			FPS:        24,
		},
	}

	if _, err := fx.pipeline.Render(context.Background(), job, nil); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	for i, call := range f.callsWith("-loop") {
		if got := argAfter(call, "-t"); got != "3.000" {
			t.Errorf("image %d: expected 3s share of the track, got %s", i, got)
		}
		if !strings.Contains(argAfter(call, "-vf"), "scale=854:480") {
			t.Errorf("expected landscape ceiling, got %s", argAfter(call, "-vf"))
		}
	}
	if len(f.callsWith(track, "-shortest")) != 1 {
		t.Error("expected global audio mux")
	}
}

func TestRenderSidecarSubtitles(t *testing.T) {
	f := &fakeEncoder{}
	fx := newPipelineFixture(t, f)
	img := touch(t, fx.inputs, "img.png")

	job := models.RenderJob{
		ID: "job-5",
		Spec: models.RenderSpec{
			Images:     []string{img},
			Subtitles:  &models.SubtitleConfig{SRT: "1\n00:00:00,000 --> 00:00:02,000\n첫 번째 자막\n"},
			Resolution: "1080x1920",
			FPS:        24,
		},
	}

	result, err := fx.pipeline.Render(context.Background(), job, nil)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if result.SubtitleURL != "http://render.test/videos/job-5.srt" {
		t.Errorf("unexpected subtitle url %s", result.SubtitleURL)
	}
	data, err := os.ReadFile(filepath.Join(fx.artifactDir, "job-5.srt"))
	if err != nil {
		t.Fatalf("expected published srt: %v", err)
	}
	if !strings.Contains(string(data), "첫 번째 자막") {
		t.Errorf("unexpected srt content:\n%s", data)
	}
}

func TestRenderNarrationWithoutProvider(t *testing.T) {
	fx := newPipelineFixture(t, &fakeEncoder{})
	img := touch(t, fx.inputs, "img.png")

	job := models.RenderJob{
		ID: "job-6",
		Spec: models.RenderSpec{
			Images:     []string{img},
			Narration:  &models.NarrationSpec{Script: "[narrator] 안녕하세요."},
			Resolution: "1080x1920",
			FPS:        24,
		},
	}

	_, err := fx.pipeline.Render(context.Background(), job, nil)
	if err == nil || !strings.Contains(err.Error(), "no speech provider") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestCueSourcePriority(t *testing.T) {
	fx := newPipelineFixture(t, &fakeEncoder{})
	logger := zerolog.Nop()

	explicit := []models.SubtitleCue{{Index: 1, Start: 0, End: 1, Text: "explicit"}}
	spec := models.RenderSpec{Subtitles: &models.SubtitleConfig{
		Cues: explicit,
		SRT:  "1\n00:00:00,000 --> 00:00:01,000\nsrt\n",
		Text: "text",
	}}
	if got := fx.pipeline.cues(spec, nil, 10, logger); len(got) != 1 || got[0].Text != "explicit" {
		t.Errorf("expected explicit cues first, got %+v", got)
	}

	spec.Subtitles.Cues = nil
	if got := fx.pipeline.cues(spec, nil, 10, logger); len(got) != 1 || got[0].Text != "srt" {
		t.Errorf("expected srt cues second, got %+v", got)
	}

	spec.Subtitles.SRT = ""
	got := fx.pipeline.cues(spec, nil, 10, logger)
	if len(got) != 1 || got[0].Text != "text" {
		t.Fatalf("expected generated cue, got %+v", got)
	}

	if got := fx.pipeline.cues(models.RenderSpec{}, nil, 10, logger); got != nil {
		t.Errorf("expected no cues without config, got %+v", got)
	}
}

func TestSRTCuesAreSanitized(t *testing.T) {
	fx := newPipelineFixture(t, &fakeEncoder{})

	srt := "1\n00:00:05,000 --> 00:00:04,000\nbackwards\n\n" +
		"2\n00:00:01,000 --> 00:00:03,000\nfirst\n\n" +
		"3\n00:00:02,000 --> 00:00:06,000\noverlapping\n"
	spec := models.RenderSpec{Subtitles: &models.SubtitleConfig{SRT: srt}}

	got := fx.pipeline.cues(spec, nil, 10, zerolog.Nop())
	want := []models.SubtitleCue{
		{Index: 1, Start: 1, End: 3, Text: "first"},
		{Index: 2, Start: 3, End: 6, Text: "overlapping"},
		{Index: 3, Start: 6, End: 6.1, Text: "backwards"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("cue mismatch (-want +got):\n%s", diff)
	}
}
