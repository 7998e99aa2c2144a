package narration

import (
	"bytes"
	"encoding/xml"
	"strings"
	"unicode/utf8"

	"github.com/bobarin/storyreel/internal/subtitles"
)

const clauseBreaks = ",;:、，；"

// Chunk splits text into pieces of at most limit bytes for a synthesis
// request. Sentences are kept whole where possible; an oversized sentence
// is split at clause punctuation, then whitespace, then cut on rune
// boundaries. Chunks are never empty and, with whitespace ignored, join
// back to text. Limits below utf8.UTFMax are raised to it.
func Chunk(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit < utf8.UTFMax {
		limit = utf8.UTFMax
	}
	if len(text) <= limit {
		return []string{text}
	}

	var pieces []string
	for _, s := range subtitles.SplitSentences(text) {
		pieces = append(pieces, splitOversize(s, limit)...)
	}
	return pack(pieces, limit)
}

// pack joins neighbouring pieces with a space while they fit.
func pack(pieces []string, limit int) []string {
	var out []string
	cur := ""
	for _, p := range pieces {
		switch {
		case cur == "":
			cur = p
		case len(cur)+1+len(p) <= limit:
			cur += " " + p
		default:
			out = append(out, cur)
			cur = p
		}
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

func splitOversize(s string, limit int) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if len(s) <= limit {
		return []string{s}
	}

	if parts := splitAfterAny(s, clauseBreaks); len(parts) > 1 {
		return refine(parts, limit)
	}
	if words := strings.Fields(s); len(words) > 1 {
		return refine(words, limit)
	}
	return cutBytes(s, limit)
}

// refine packs parts and sends any that are still too big down the cascade.
func refine(parts []string, limit int) []string {
	var out []string
	for _, p := range parts {
		out = append(out, splitOversize(p, limit)...)
	}
	return pack(out, limit)
}

func splitAfterAny(s, chars string) []string {
	var parts []string
	start := 0
	for i, r := range s {
		if strings.ContainsRune(chars, r) {
			end := i + utf8.RuneLen(r)
			if p := strings.TrimSpace(s[start:end]); p != "" {
				parts = append(parts, p)
			}
			start = end
		}
	}
	if p := strings.TrimSpace(s[start:]); p != "" {
		parts = append(parts, p)
	}
	return parts
}

// cutBytes cuts s into pieces of at most limit bytes without splitting a rune.
func cutBytes(s string, limit int) []string {
	var out []string
	for len(s) > 0 {
		n := limit
		if n >= len(s) {
			n = len(s)
		} else {
			for n > 0 && !utf8.RuneStart(s[n]) {
				n--
			}
		}
		if p := strings.TrimSpace(s[:n]); p != "" {
			out = append(out, p)
		}
		s = s[n:]
	}
	return out
}

// emotionKeywords mark passages read more slowly.
var emotionKeywords = []string{
	"눈물", "슬픔", "슬퍼", "절망", "이별", "죽음", "그리움", "잃",
	"tears", "grief", "loss", "despair", "desperate", "farewell",
}

// IsEmotional reports whether chunk contains a slow-down keyword.
func IsEmotional(chunk string) bool {
	lower := strings.ToLower(chunk)
	for _, k := range emotionKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// ApplyEmotion wraps an emotional chunk in SSML prosody markup. The plain
// chunk is returned when there is no keyword or the markup would push the
// payload over limit.
func ApplyEmotion(chunk string, limit int) (string, bool) {
	if !IsEmotional(chunk) {
		return chunk, false
	}

	var buf bytes.Buffer
	buf.WriteString(`<speak><prosody rate="slow">`)
	if err := xml.EscapeText(&buf, []byte(chunk)); err != nil {
		return chunk, false
	}
	buf.WriteString(`</prosody></speak>`)

	if limit > 0 && buf.Len() > limit {
		return chunk, false
	}
	return buf.String(), true
}
