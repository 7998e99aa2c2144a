package subtitles

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("가격은 3.5달러입니다. 정말요?! 네.\n새 줄입니다")
	want := []string{"가격은 3.5달러입니다.", "정말요?!", "네.", "새 줄입니다"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SplitSentences mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitSentencesKeepsClosingQuote(t *testing.T) {
	got := SplitSentences(`그가 말했다. "안녕!" 그리고 떠났다.`)
	want := []string{"그가 말했다.", `"안녕!"`, "그리고 떠났다."}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SplitSentences mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitLongPrefersClauses(t *testing.T) {
	sentence := "어머니는 시장에 가셨고, 아버지는 회사에 출근하셨으며, 나는 집에서 숙제를 했다."
	got := SplitLong(sentence, 20)
	if len(got) < 2 {
		t.Fatalf("expected multiple pieces, got %v", got)
	}
	if !strings.HasSuffix(got[0], ",") {
		t.Errorf("expected first piece to end at clause punctuation, got %q", got[0])
	}
}

func TestSplitLongConjunction(t *testing.T) {
	got := SplitLong("우리는 밤새 이야기를 나누었다 그리고 새벽이 되어서야 잠이 들었다", 20)
	if len(got) < 2 || !strings.HasPrefix(got[1], "그리고") {
		t.Errorf("expected a break before the conjunction, got %q", got)
	}
}

func TestSplitLongHardCut(t *testing.T) {
	got := SplitLong(strings.Repeat("가", 80), 35)
	want := []string{strings.Repeat("가", 35), strings.Repeat("가", 35), strings.Repeat("가", 10)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SplitLong mismatch (-want +got):\n%s", diff)
	}
}

func TestSegmentBounds(t *testing.T) {
	texts := []string{
		"",
		"짧다.",
		"The quick brown fox jumps over the lazy dog, and then it runs far away into the forest because it is late.",
		"할머니는 일흔여섯 살이 되던 해에 처음으로 바다를 보았다. 그날 바람은 차가웠지만 마음은 따뜻했다! 정말 그랬을까?",
		strings.Repeat("아주긴단어", 30),
	}

	for _, text := range texts {
		for _, max := range []int{5, 12, 35} {
			for _, piece := range Segment(text, max) {
				if strings.TrimSpace(piece) == "" {
					t.Errorf("empty piece for %q", text)
				}
				if n := runeLen(piece); n > max {
					t.Errorf("piece %q has %d runes, max %d", piece, n, max)
				}
			}
		}
	}
}
