package narration

import (
	"context"
	"errors"
	"math"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/bobarin/storyreel/internal/ffmpeg"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/services"
)

// fakeTTS records requests and returns fixed audio bytes.
type fakeTTS struct {
	mu       sync.Mutex
	limit    int
	ssml     bool
	err      error
	requests []services.SpeechRequest
}

func (f *fakeTTS) Name() string       { return "fake" }
func (f *fakeTTS) PayloadLimit() int  { return f.limit }
func (f *fakeTTS) SupportsSSML() bool { return f.ssml }

func (f *fakeTTS) GenerateSpeech(ctx context.Context, r services.SpeechRequest) (*services.TTSResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r)
	if f.err != nil {
		return nil, f.err
	}
	return &services.TTSResponse{AudioData: []byte("audio:" + r.Text), Format: "mp3"}, nil
}

// fakeRunner answers ffprobe with a fixed duration and creates ffmpeg outputs.
type fakeRunner struct {
	mu      sync.Mutex
	concats int
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (ffmpeg.Result, error) {
	if name == "ffprobe" {
		return ffmpeg.Result{Stdout: "1.5\n"}, nil
	}
	f.mu.Lock()
	f.concats++
	f.mu.Unlock()
	os.WriteFile(args[len(args)-1], []byte("merged"), 0644)
	return ffmpeg.Result{}, nil
}

func newTestNarrator(tts services.TTSService, runner ffmpeg.Runner) *Narrator {
	exec := ffmpeg.NewExecutor(runner, "ffmpeg", "ffprobe", zerolog.Nop())
	voices := NewVoiceTable(map[string]string{"narrator": "v-narrator", "man": "v-man"}, "v-default")
	return NewNarrator(tts, exec, Config{Voices: voices, Emotion: true}, zerolog.Nop())
}

func TestNarrateTimeline(t *testing.T) {
	tts := &fakeTTS{limit: 5000}
	runner := &fakeRunner{}
	n := newTestNarrator(tts, runner)

	var progress []int
	out, err := n.Narrate(context.Background(), models.NarrationSpec{
		Script: "[narrator] 옛날 옛적에. [man2] 안녕하세요. [woman] 반가워요.",
		Rate:   0.9,
	}, t.TempDir(), func(done, total int) { progress = append(progress, done) })
	if err != nil {
		t.Fatalf("Narrate failed: %v", err)
	}

	if len(out.Timeline) != 3 {
		t.Fatalf("expected 3 timeline entries, got %d", len(out.Timeline))
	}
	for i, e := range out.Timeline {
		if math.Abs(e.Start-1.5*float64(i)) > 1e-9 || math.Abs(e.End-1.5*float64(i+1)) > 1e-9 {
			t.Errorf("entry %d spans %.2f-%.2f", i, e.Start, e.End)
		}
	}
	if out.Duration != 4.5 {
		t.Errorf("expected 4.5s, got %v", out.Duration)
	}

	wantVoices := []string{"v-narrator", "v-man", "v-default"}
	for i, r := range tts.requests {
		if r.VoiceID != wantVoices[i] || r.Rate != 0.9 {
			t.Errorf("request %d: voice %s rate %v", i, r.VoiceID, r.Rate)
		}
	}
	if runner.concats != 1 {
		t.Errorf("expected only the final merge to run, got %d encoder calls", runner.concats)
	}
	if !strings.HasSuffix(out.AudioPath, "narration.mp3") {
		t.Errorf("unexpected audio path %s", out.AudioPath)
	}
	if len(progress) != 3 || progress[2] != 3 {
		t.Errorf("unexpected progress callbacks %v", progress)
	}
}

func TestNarrateSingleChunkBypassesMerge(t *testing.T) {
	runner := &fakeRunner{}
	n := newTestNarrator(&fakeTTS{limit: 5000}, runner)

	out, err := n.Narrate(context.Background(), models.NarrationSpec{Script: "한 문장뿐입니다."}, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Narrate failed: %v", err)
	}
	if runner.concats != 0 {
		t.Errorf("expected no merge, got %d encoder calls", runner.concats)
	}
	if !strings.Contains(out.AudioPath, "seg_000_chunk_000") {
		t.Errorf("expected the chunk file itself, got %s", out.AudioPath)
	}
}

func TestNarrateChunksRespectLimit(t *testing.T) {
	tts := &fakeTTS{limit: 40}
	runner := &fakeRunner{}
	n := newTestNarrator(tts, runner)

	script := "[narrator] " + strings.Repeat("바다가 보인다. ", 10)
	out, err := n.Narrate(context.Background(), models.NarrationSpec{Script: script}, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Narrate failed: %v", err)
	}

	if len(tts.requests) < 2 {
		t.Fatalf("expected several chunks, got %d", len(tts.requests))
	}
	for _, r := range tts.requests {
		if len(r.Text) > 40 {
			t.Errorf("chunk of %d bytes sent to provider", len(r.Text))
		}
	}
	if want := 1.5 * float64(len(tts.requests)); out.Duration != want {
		t.Errorf("expected %.1fs, got %v", want, out.Duration)
	}
}

func TestNarrateEmotionMarkup(t *testing.T) {
	tts := &fakeTTS{limit: 5000, ssml: true}
	n := newTestNarrator(tts, &fakeRunner{})

	_, err := n.Narrate(context.Background(), models.NarrationSpec{Script: "눈물이 났다.", Emotion: true}, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Narrate failed: %v", err)
	}
	if !tts.requests[0].SSML || !strings.HasPrefix(tts.requests[0].Text, "<speak>") {
		t.Errorf("expected SSML request, got %+v", tts.requests[0])
	}

	plain := &fakeTTS{limit: 5000}
	n = newTestNarrator(plain, &fakeRunner{})
	if _, err := n.Narrate(context.Background(), models.NarrationSpec{Script: "눈물이 났다.", Emotion: true}, t.TempDir(), nil); err != nil {
		t.Fatalf("Narrate failed: %v", err)
	}
	if plain.requests[0].SSML {
		t.Error("markup sent to a provider without SSML support")
	}
}

func TestNarrateProviderError(t *testing.T) {
	tts := &fakeTTS{limit: 5000, err: &services.ProviderError{Provider: "fake", StatusCode: 401}}
	n := newTestNarrator(tts, &fakeRunner{})

	_, err := n.Narrate(context.Background(), models.NarrationSpec{Script: "안녕."}, t.TempDir(), nil)
	var pe *services.ProviderError
	if !errors.As(err, &pe) || pe.Kind() != services.KindAuth {
		t.Fatalf("expected auth ProviderError, got %v", err)
	}
}

func TestNarrateEmptyScript(t *testing.T) {
	n := newTestNarrator(&fakeTTS{limit: 5000}, &fakeRunner{})
	_, err := n.Narrate(context.Background(), models.NarrationSpec{Script: "[narrator]   "}, t.TempDir(), nil)

	var inputErr *models.InputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("expected InputError, got %v", err)
	}
}
