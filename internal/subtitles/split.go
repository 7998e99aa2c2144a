package subtitles

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	terminators = ".!?…。！？"
	closers     = "\"'”’)]」』"
	clausePunct = ",;:、，；"
)

// conjunctions start a new clause when they begin a word.
var conjunctions = map[string]bool{
	"그리고": true, "하지만": true, "그러나": true, "그래서": true, "그런데": true,
	"그러면": true, "또는": true, "그러니까": true, "그러자": true, "그리하여": true,
	"and": true, "but": true, "so": true, "because": true, "or": true, "then": true, "while": true,
}

// connectiveEndings close a clause when a word ends with them.
var connectiveEndings = []string{"지만", "는데", "면서", "니까", "어서", "아서", "으며", "는데도"}

func isTerminator(r rune) bool { return strings.ContainsRune(terminators, r) }
func isCloser(r rune) bool     { return strings.ContainsRune(closers, r) }

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// SplitSentences splits on newlines and sentence terminators, keeping each
// terminator with its sentence. A terminator only ends a sentence when it is
// followed by whitespace or the end of the line, so "3.5" stays intact.
func SplitSentences(text string) []string {
	var out []string
	text = strings.ReplaceAll(text, "\r\n", "\n")

	for _, line := range strings.Split(text, "\n") {
		runes := []rune(line)
		var cur strings.Builder
		flush := func() {
			if s := strings.TrimSpace(cur.String()); s != "" {
				out = append(out, s)
			}
			cur.Reset()
		}

		for i := 0; i < len(runes); i++ {
			cur.WriteRune(runes[i])
			if !isTerminator(runes[i]) {
				continue
			}
			for i+1 < len(runes) && (isTerminator(runes[i+1]) || isCloser(runes[i+1])) {
				i++
				cur.WriteRune(runes[i])
			}
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				flush()
			}
		}
		flush()
	}
	return out
}

// SplitLong breaks a sentence longer than maxChars runes. It tries clause
// punctuation, then conjunction boundaries, then whitespace, and finally
// cuts by rune count. Every returned piece is non-empty and at most maxChars
// runes long.
func SplitLong(sentence string, maxChars int) []string {
	sentence = strings.TrimSpace(sentence)
	if sentence == "" {
		return nil
	}
	if maxChars <= 0 || runeLen(sentence) <= maxChars {
		return []string{sentence}
	}

	if parts := splitAfterPunct(sentence); len(parts) > 1 {
		return packAndSplit(parts, maxChars)
	}
	if parts := splitAtConjunctions(sentence); len(parts) > 1 {
		return packAndSplit(parts, maxChars)
	}
	if words := strings.Fields(sentence); len(words) > 1 {
		return packAndSplit(words, maxChars)
	}
	return cutRunes(sentence, maxChars)
}

// packAndSplit joins neighbouring parts with a space while they fit, then
// sends anything still too long to the next level of the cascade.
func packAndSplit(parts []string, maxChars int) []string {
	var out []string
	cur := ""
	emit := func() {
		if cur == "" {
			return
		}
		out = append(out, SplitLong(cur, maxChars)...)
		cur = ""
	}

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		switch {
		case cur == "":
			cur = p
		case runeLen(cur)+1+runeLen(p) <= maxChars:
			cur += " " + p
		default:
			emit()
			cur = p
		}
	}
	emit()
	return out
}

func splitAfterPunct(s string) []string {
	var parts []string
	start := 0
	for i, r := range s {
		if strings.ContainsRune(clausePunct, r) {
			end := i + utf8.RuneLen(r)
			parts = append(parts, s[start:end])
			start = end
		}
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return nonEmpty(parts)
}

func splitAtConjunctions(s string) []string {
	words := strings.Fields(s)
	var parts []string
	var cur []string
	for _, w := range words {
		bare := strings.ToLower(strings.TrimFunc(w, unicode.IsPunct))
		if conjunctions[bare] && len(cur) > 0 {
			parts = append(parts, strings.Join(cur, " "))
			cur = nil
		}
		cur = append(cur, w)
		if endsWithConnective(bare) {
			parts = append(parts, strings.Join(cur, " "))
			cur = nil
		}
	}
	if len(cur) > 0 {
		parts = append(parts, strings.Join(cur, " "))
	}
	return parts
}

func endsWithConnective(word string) bool {
	for _, e := range connectiveEndings {
		if strings.HasSuffix(word, e) && word != e {
			return true
		}
	}
	return false
}

func cutRunes(s string, maxChars int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > 0 {
		n := maxChars
		if n > len(runes) {
			n = len(runes)
		}
		if piece := strings.TrimSpace(string(runes[:n])); piece != "" {
			out = append(out, piece)
		}
		runes = runes[n:]
	}
	return out
}

func nonEmpty(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// Segment runs sentence splitting and the long-sentence cascade.
func Segment(text string, maxChars int) []string {
	var out []string
	for _, s := range SplitSentences(text) {
		out = append(out, SplitLong(s, maxChars)...)
	}
	return out
}
