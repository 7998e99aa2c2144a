package subtitles

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bobarin/storyreel/internal/models"
)

// ---------------------------------------------------------------------------
// ASS subtitle script
//
// Burned-in captions go through ASS instead of the plain subtitles filter so
// the font family is explicit; Hangul otherwise renders with whatever
// fontconfig picks. Cues sit bottom-center on an opaque rounded-off box.
// ---------------------------------------------------------------------------

const (
	// ASS colors are in &HAABBGGRR format (hex, note: BGR not RGB)
	assColorWhite    = "&H00FFFFFF"
	assColorBoxBlack = "&H80000000" // 50% transparent black box

	borderStyleBox = 3 // opaque box behind the text
)

// Style is the single Default style of a generated script.
type Style struct {
	FontName string
	FontSize int
	Outline  int // box padding when BorderStyle is 3
	MarginV  int
	PlayResX int
	PlayResY int
}

// DefaultStyle scales font size and margins to the output height.
func DefaultStyle(fontName string, width, height int) Style {
	size := height * 45 / 1000
	if size < 16 {
		size = 16
	}
	return Style{
		FontName: fontName,
		FontSize: size,
		Outline:  max(2, size/8),
		MarginV:  height / 12,
		PlayResX: width,
		PlayResY: height,
	}
}

// Font is the outcome of font resolution for burn-in.
type Font struct {
	Name     string
	Dir      string // passed as fontsdir; empty when using a system font
	Fallback bool
}

// ResolveFont uses the configured font asset when it exists on disk and
// substitutes the fallback family name otherwise.
func ResolveFont(assetPath, family, fallback string) Font {
	if assetPath != "" && family != "" {
		if info, err := os.Stat(assetPath); err == nil && !info.IsDir() {
			return Font{Name: family, Dir: filepath.Dir(assetPath)}
		}
	}
	if fallback == "" {
		fallback = "Sans"
	}
	return Font{Name: fallback, Fallback: true}
}

// BuildASS renders cues as an ASS script.
func BuildASS(cues []models.SubtitleCue, style Style) string {
	var sb strings.Builder

	// Script header
	sb.WriteString("[Script Info]\n")
	sb.WriteString("ScriptType: v4.00+\n")
	fmt.Fprintf(&sb, "PlayResX: %d\n", style.PlayResX)
	fmt.Fprintf(&sb, "PlayResY: %d\n", style.PlayResY)
	sb.WriteString("WrapStyle: 0\n")
	sb.WriteString("ScaledBorderAndShadow: yes\n")
	sb.WriteString("\n")

	// Style definitions
	sb.WriteString("[V4+ Styles]\n")
	sb.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&sb,
		"Style: Default,%s,%d,%s,%s,%s,%s,-1,0,0,0,100,100,0,0,%d,%d,0,2,%d,%d,%d,1\n",
		style.FontName, style.FontSize,
		assColorWhite,    // PrimaryColour (text)
		assColorWhite,    // SecondaryColour
		assColorBoxBlack, // OutlineColour (box fill for BorderStyle 3)
		assColorBoxBlack, // BackColour
		borderStyleBox,
		style.Outline,
		style.PlayResX/20, style.PlayResX/20,
		style.MarginV,
	)
	sb.WriteString("\n")

	// Events (dialogue lines)
	sb.WriteString("[Events]\n")
	sb.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, c := range cues {
		fmt.Fprintf(&sb, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
			formatASSTime(c.Start), formatASSTime(c.End), escapeASSText(c.Text))
	}
	return sb.String()
}

// WriteASS writes the script for cues to outputPath.
func WriteASS(cues []models.SubtitleCue, style Style, outputPath string) error {
	if len(cues) == 0 {
		return fmt.Errorf("no cues to write")
	}
	if err := os.WriteFile(outputPath, []byte(BuildASS(cues, style)), 0644); err != nil {
		return fmt.Errorf("failed to write ASS subtitle file: %w", err)
	}
	return nil
}

// escapeASSText neutralizes override blocks and maps newlines to \N.
func escapeASSText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "{", "(")
	text = strings.ReplaceAll(text, "}", ")")
	return strings.ReplaceAll(text, "\n", `\N`)
}

// formatASSTime converts seconds to ASS timestamp format: H:MM:SS.CC (centiseconds)
func formatASSTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}

	totalCs := int64(seconds*100 + 0.5)
	hours := totalCs / 360000
	minutes := (totalCs % 360000) / 6000
	secs := (totalCs % 6000) / 100
	centiseconds := totalCs % 100

	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, secs, centiseconds)
}
