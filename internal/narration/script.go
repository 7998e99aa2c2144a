package narration

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/bobarin/storyreel/internal/models"
)

// DefaultTag labels text that appears before the first tag.
const DefaultTag = "narrator"

var tagPattern = regexp.MustCompile(`\[([^\[\]\n]+)\]`)

// Parse splits a tagged script ("[narrator] ... [man2] ...") into ordered
// segments. A span runs until the next tag or the end of the script; spans
// with no text are dropped. Voices are not resolved here.
func Parse(script string) []models.NarrationSegment {
	var segments []models.NarrationSegment
	add := func(tag, text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		segments = append(segments, models.NarrationSegment{
			Index: len(segments),
			Tag:   tag,
			Text:  text,
		})
	}

	locs := tagPattern.FindAllStringSubmatchIndex(script, -1)
	if len(locs) == 0 {
		add(DefaultTag, script)
		return segments
	}

	add(DefaultTag, script[:locs[0][0]])
	for i, loc := range locs {
		end := len(script)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		tag := strings.TrimSpace(script[loc[2]:loc[3]])
		if tag == "" {
			tag = DefaultTag
		}
		add(tag, script[loc[1]:end])
	}
	return segments
}

// VoiceTable maps speaker tags to provider voice ids.
type VoiceTable struct {
	Voices  map[string]string
	Default string
}

// NewVoiceTable copies voices with lower-cased tags.
func NewVoiceTable(voices map[string]string, def string) VoiceTable {
	t := VoiceTable{Voices: make(map[string]string, len(voices)), Default: def}
	for tag, v := range voices {
		t.Voices[strings.ToLower(strings.TrimSpace(tag))] = v
	}
	return t
}

// Resolve picks a voice by exact tag, then the tag without trailing digits
// ("man2" -> "man"), then the default.
func (t VoiceTable) Resolve(tag string) string {
	key := strings.ToLower(strings.TrimSpace(tag))
	if v, ok := t.Voices[key]; ok {
		return v
	}
	if base := strings.TrimRightFunc(key, unicode.IsDigit); base != key && base != "" {
		if v, ok := t.Voices[base]; ok {
			return v
		}
	}
	return t.Default
}
