package subtitles

import (
	"math"
	"strings"
	"testing"

	"github.com/bobarin/storyreel/internal/models"
)

func checkCueInvariants(t *testing.T, cues []models.SubtitleCue) {
	t.Helper()
	for i, c := range cues {
		if c.Index != i+1 {
			t.Errorf("cue %d has index %d", i, c.Index)
		}
		if c.End <= c.Start {
			t.Errorf("cue %d: end %.3f not after start %.3f", i, c.End, c.Start)
		}
		if c.Text == "" {
			t.Errorf("cue %d has empty text", i)
		}
		if i > 0 && c.Start < cues[i-1].End {
			t.Errorf("cue %d starts at %.3f before previous end %.3f", i, c.Start, cues[i-1].End)
		}
	}
}

func TestGenerateInvariants(t *testing.T) {
	texts := []string{
		"안녕하세요.",
		"오늘은 날씨가 좋습니다. 산책을 나가 볼까요? 강아지도 함께 갑니다!",
		"하나. 둘. 셋. 넷. 다섯.",
		"This line is long enough that it has to be broken into several cues before display, no matter the font.",
	}
	for _, text := range texts {
		cues := Generate(text, DefaultOptions())
		if len(cues) == 0 {
			t.Errorf("no cues for %q", text)
		}
		checkCueInvariants(t, cues)
		for _, c := range cues {
			d := c.End - c.Start
			if d < DefaultMinDuration-0.001 || d > DefaultMaxDuration+0.001 {
				t.Errorf("cue %q lasts %.3fs", c.Text, d)
			}
			if runeLen(c.Text) > DefaultMaxChars {
				t.Errorf("cue %q exceeds %d chars", c.Text, DefaultMaxChars)
			}
		}
	}
}

func TestGenerateGap(t *testing.T) {
	cues := Generate("첫 번째 문장입니다. 두 번째 문장입니다.", DefaultOptions())
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(cues))
	}
	if gap := cues[1].Start - cues[0].End; math.Abs(gap-DefaultGap) > 0.002 {
		t.Errorf("expected %.1fs gap, got %.3f", DefaultGap, gap)
	}
}

func TestGenerateMatchesMeasuredDuration(t *testing.T) {
	text := "바다는 오늘도 조용히 숨을 쉬고 있었다. 파도는 작은 돌을 굴리며 노래했다. 우리는 모래 위에 이름을 적었다."
	opts := DefaultOptions()
	opts.TotalDuration = 12
	opts.Gap = 0

	cues := Generate(text, opts)
	checkCueInvariants(t, cues)

	sum := 0.0
	for _, c := range cues {
		sum += c.End - c.Start
	}
	if math.Abs(sum-12) > 0.01 {
		t.Errorf("expected cue durations to sum to 12s, got %.3f", sum)
	}
}

func TestGenerateEndsWithNarration(t *testing.T) {
	text := strings.Repeat("바다는 오늘도 조용히 숨을 쉬고 있었다. ", 40)
	opts := DefaultOptions()
	opts.TotalDuration = 120

	cues := Generate(text, opts)
	checkCueInvariants(t, cues)
	if len(cues) < 2 {
		t.Fatalf("expected several cues, got %d", len(cues))
	}

	last := cues[len(cues)-1]
	if last.End > opts.TotalDuration+0.01 {
		t.Errorf("last cue ends at %.3f, after the %.0fs narration", last.End, opts.TotalDuration)
	}
	if last.End < opts.TotalDuration-0.5 {
		t.Errorf("last cue ends at %.3f, well before the narration ends", last.End)
	}
	if gap := cues[1].Start - cues[0].End; math.Abs(gap-DefaultGap) > 0.002 {
		t.Errorf("expected %.1fs gap, got %.3f", DefaultGap, gap)
	}
}

func TestGenerateShortNarrationStaysInside(t *testing.T) {
	opts := DefaultOptions()
	opts.TotalDuration = 1.5

	// Four cues clamped to MinDuration would otherwise run past 4s.
	cues := Generate("하나. 둘. 셋. 넷.", opts)
	checkCueInvariants(t, cues)
	if last := cues[len(cues)-1]; last.End > opts.TotalDuration+0.01 {
		t.Errorf("last cue ends at %.3f, after %.1fs", last.End, opts.TotalDuration)
	}
}

func TestGenerateClampsDuration(t *testing.T) {
	opts := DefaultOptions()
	opts.Speed = 0.01 // 15s per character before clamping

	cues := Generate("가나다.", opts)
	if len(cues) != 1 {
		t.Fatalf("expected 1 cue, got %d", len(cues))
	}
	if d := cues[0].End - cues[0].Start; d != DefaultMaxDuration {
		t.Errorf("expected duration clamped to %.0fs, got %.3f", DefaultMaxDuration, d)
	}
}

func TestGenerateNormalizesNumerals(t *testing.T) {
	cues := Generate("할머니는 일흔여섯 살입니다.", DefaultOptions())
	if len(cues) != 1 || cues[0].Text != "할머니는 76살입니다." {
		t.Errorf("unexpected cues: %+v", cues)
	}

	opts := DefaultOptions()
	opts.Normalize = false
	cues = Generate("할머니는 일흔여섯 살입니다.", opts)
	if cues[0].Text != "할머니는 일흔여섯 살입니다." {
		t.Errorf("expected raw text, got %q", cues[0].Text)
	}
}

func TestFromTimeline(t *testing.T) {
	entries := []models.TimelineEntry{
		{Index: 0, Tag: "narrator", Text: "안녕하세요.", Start: 0, End: 2.5},
		{Index: 1, Tag: "man", Text: "", Start: 2.5, End: 3},
		{Index: 2, Tag: "woman", Text: "저는 오늘 아주 긴 이야기를 들려드리려고 합니다, 끝까지 들어 주세요.", Start: 3, End: 9},
	}

	cues := FromTimeline(entries, DefaultOptions())
	checkCueInvariants(t, cues)
	if len(cues) < 3 {
		t.Fatalf("expected the long entry to be split, got %d cues", len(cues))
	}
	if cues[0].Start != 0 || cues[0].End != 2.5 {
		t.Errorf("first cue should span the first entry, got %+v", cues[0])
	}
	if last := cues[len(cues)-1]; last.End != 9 {
		t.Errorf("last cue should end with its entry, got %.3f", last.End)
	}
}

func TestSanitize(t *testing.T) {
	cues := Sanitize([]models.SubtitleCue{
		{Start: 5, End: 6, Text: "셋"},
		{Start: 0, End: 3, Text: "하나"},
		{Start: 2, End: 2.5, Text: "둘"},
		{Start: 7, End: 8, Text: "   "},
	})

	if len(cues) != 3 {
		t.Fatalf("expected 3 cues, got %d", len(cues))
	}
	checkCueInvariants(t, cues)
	if cues[1].Text != "둘" || cues[1].Start != 3 {
		t.Errorf("expected overlapping cue pushed to 3s, got %+v", cues[1])
	}
}

func TestShift(t *testing.T) {
	in := []models.SubtitleCue{{Index: 1, Start: 1, End: 2, Text: "a"}}
	out := Shift(in, 1.5)
	if out[0].Start != 2.5 || out[0].End != 3.5 {
		t.Errorf("unexpected shift result %+v", out[0])
	}
	if in[0].Start != 1 {
		t.Error("Shift modified its input")
	}
}
