package subtitles

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/bobarin/storyreel/internal/models"
)

var srtBlockSep = regexp.MustCompile(`\n\s*\n`)

var srtTimeLine = regexp.MustCompile(`^\s*(\d+):(\d{2}):(\d{2})[,.](\d{1,3})\s*-->\s*(\d+):(\d{2}):(\d{2})[,.](\d{1,3})`)

// ParseSRT reads SubRip text. Malformed blocks are skipped.
func ParseSRT(doc string) []models.SubtitleCue {
	doc = strings.TrimPrefix(doc, "\ufeff")
	doc = strings.ReplaceAll(doc, "\r\n", "\n")

	var cues []models.SubtitleCue
	for _, block := range srtBlockSep.Split(strings.TrimSpace(doc), -1) {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		for i, line := range lines {
			m := srtTimeLine.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			text := strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
			if text == "" {
				break
			}
			cues = append(cues, models.SubtitleCue{
				Start: srtSeconds(m[1], m[2], m[3], m[4]),
				End:   srtSeconds(m[5], m[6], m[7], m[8]),
				Text:  text,
			})
			break
		}
	}
	return cues
}

func srtSeconds(h, m, s, ms string) float64 {
	hi, _ := strconv.Atoi(h)
	mi, _ := strconv.Atoi(m)
	si, _ := strconv.Atoi(s)
	for len(ms) < 3 {
		ms += "0"
	}
	msi, _ := strconv.Atoi(ms)
	return float64(hi*3600+mi*60+si) + float64(msi)/1000
}

// FormatSRTTime renders seconds as HH:MM:SS,mmm.
func FormatSRTTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMs := int64(seconds*1000 + 0.5)
	h := totalMs / 3600000
	m := (totalMs % 3600000) / 60000
	s := (totalMs % 60000) / 1000
	ms := totalMs % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// FormatSRT renders cues as SubRip text.
func FormatSRT(cues []models.SubtitleCue) string {
	var sb strings.Builder
	for i, c := range cues {
		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n\n", i+1, FormatSRTTime(c.Start), FormatSRTTime(c.End), c.Text)
	}
	return sb.String()
}

// WriteSRT writes cues to path.
func WriteSRT(cues []models.SubtitleCue, path string) error {
	if err := os.WriteFile(path, []byte(FormatSRT(cues)), 0644); err != nil {
		return fmt.Errorf("failed to write SRT file: %w", err)
	}
	return nil
}
