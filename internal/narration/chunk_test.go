package narration

import (
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"
)

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func TestChunkProperties(t *testing.T) {
	texts := []string{
		"짧은 문장.",
		strings.Repeat("할머니는 바닷가 마을에서 평생을 보내셨다. ", 40),
		strings.Repeat("쉼표가, 아주, 많은, 문장이다, ", 30),
		strings.Repeat("띄어쓰기없는아주긴문장", 50),
		"The quick brown fox jumps over the lazy dog! Again? And again... " + strings.Repeat("word ", 300),
		"줄바꿈\n\n이 있는\n텍스트입니다.",
	}

	for _, text := range texts {
		for _, limit := range []int{1, 7, 50, 300, 5000} {
			chunks := Chunk(text, limit)
			effective := limit
			if effective < utf8.UTFMax {
				effective = utf8.UTFMax
			}
			for _, c := range chunks {
				if strings.TrimSpace(c) == "" {
					t.Errorf("limit %d: empty chunk", limit)
				}
				if len(c) > effective {
					t.Errorf("limit %d: chunk of %d bytes", limit, len(c))
				}
				if !utf8.ValidString(c) {
					t.Errorf("limit %d: chunk splits a rune: %q", limit, c)
				}
			}
			if got, want := stripSpace(strings.Join(chunks, " ")), stripSpace(text); got != want {
				t.Errorf("limit %d: chunks do not reconstruct text\n got: %q\nwant: %q", limit, got, want)
			}
		}
	}
}

func TestChunkKeepsSentences(t *testing.T) {
	text := "첫 문장입니다. 두 번째 문장입니다. 세 번째 문장입니다."
	chunks := Chunk(text, 50)
	for _, c := range chunks {
		if !strings.HasSuffix(c, ".") {
			t.Errorf("chunk %q does not end on a sentence", c)
		}
	}
	if len(Chunk(text, 5000)) != 1 {
		t.Error("expected a single chunk under the limit")
	}
	if Chunk("  ", 100) != nil {
		t.Error("expected no chunks for blank text")
	}
}

func TestApplyEmotion(t *testing.T) {
	payload, ssml := ApplyEmotion("그날 나는 눈물을 흘렸다 & 웃었다", 5000)
	if !ssml {
		t.Fatal("expected markup for emotional chunk")
	}
	if !strings.HasPrefix(payload, `<speak><prosody rate="slow">`) || !strings.Contains(payload, "&amp;") {
		t.Errorf("unexpected payload %q", payload)
	}

	plain := "평범한 하루였다"
	if got, ssml := ApplyEmotion(plain, 5000); ssml || got != plain {
		t.Errorf("expected plain chunk, got %q", got)
	}

	sad := "Her grief was quiet."
	if got, ssml := ApplyEmotion(sad, len(sad)+5); ssml || got != sad {
		t.Errorf("expected fallback to plain text when markup exceeds limit, got %q", got)
	}
}
