package subtitles

import (
	"sort"
	"strings"

	"github.com/bobarin/storyreel/internal/models"
)

const (
	DefaultMaxChars    = 35
	DefaultMinDuration = 1.0
	DefaultMaxDuration = 10.0
	DefaultGap         = 0.2

	// baseCharSeconds is the reading pace at speed 1.0 when no measured
	// narration length is available.
	baseCharSeconds = 0.15

	minCueSpan = 0.1
)

// Options controls segmentation and timing.
type Options struct {
	MaxChars    int
	MinDuration float64
	MaxDuration float64
	Gap         float64
	// TotalDuration is the measured narration length in seconds. When set,
	// cues and the gaps between them fit within it.
	TotalDuration float64
	// Speed scales the heuristic pace when TotalDuration is unknown.
	Speed float64
	// Normalize rewrites spoken numerals to digits in cue text.
	Normalize bool
}

func DefaultOptions() Options {
	return Options{
		MaxChars:    DefaultMaxChars,
		MinDuration: DefaultMinDuration,
		MaxDuration: DefaultMaxDuration,
		Gap:         DefaultGap,
		Speed:       1.0,
		Normalize:   true,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxChars <= 0 {
		o.MaxChars = d.MaxChars
	}
	if o.MinDuration <= 0 {
		o.MinDuration = d.MinDuration
	}
	if o.MaxDuration < o.MinDuration {
		o.MaxDuration = d.MaxDuration
	}
	if o.Gap < 0 {
		o.Gap = 0
	}
	if o.Speed <= 0 {
		o.Speed = 1.0
	}
	return o
}

func (o Options) perCharSeconds(totalChars, cues int) float64 {
	if o.TotalDuration > 0 && totalChars > 0 {
		if speech := o.TotalDuration - float64(cues-1)*o.Gap; speech > 0 {
			return speech / float64(totalChars)
		}
		return o.TotalDuration / float64(totalChars)
	}
	return baseCharSeconds / o.Speed
}

func (o Options) display(text string) string {
	if o.Normalize {
		return Normalize(text)
	}
	return text
}

// Generate segments flat narration text into timed cues. Each cue lasts
// len(text) * perChar seconds clamped to [MinDuration, MaxDuration], and
// consecutive cues are separated by Gap. With TotalDuration set, the last
// cue ends no later than TotalDuration.
func Generate(text string, opts Options) []models.SubtitleCue {
	opts = opts.withDefaults()
	pieces := Segment(text, opts.MaxChars)
	if len(pieces) == 0 {
		return nil
	}

	totalChars := 0
	for _, p := range pieces {
		totalChars += runeLen(p)
	}
	perChar := opts.perCharSeconds(totalChars, len(pieces))

	cues := make([]models.SubtitleCue, 0, len(pieces))
	t := 0.0
	for i, p := range pieces {
		d := clamp(float64(runeLen(p))*perChar, opts.MinDuration, opts.MaxDuration)
		cues = append(cues, models.SubtitleCue{
			Index: i + 1,
			Start: round3(t),
			End:   round3(t + d),
			Text:  opts.display(p),
		})
		t += d + opts.Gap
	}
	if opts.TotalDuration > 0 {
		cues = fitWithin(cues, opts.TotalDuration)
	}
	return Sanitize(cues)
}

// fitWithin scales cue times so the last cue ends by total. Duration clamping
// can otherwise push the tail past the measured narration.
func fitWithin(cues []models.SubtitleCue, total float64) []models.SubtitleCue {
	end := cues[len(cues)-1].End
	if end <= total {
		return cues
	}
	scale := total / end
	for i := range cues {
		cues[i].Start = round3(cues[i].Start * scale)
		cues[i].End = round3(cues[i].End * scale)
	}
	return cues
}

// FromTimeline derives cues from measured segment spans. A segment longer
// than MaxChars is split and its span shared by character count.
func FromTimeline(entries []models.TimelineEntry, opts Options) []models.SubtitleCue {
	opts = opts.withDefaults()

	var cues []models.SubtitleCue
	for _, e := range entries {
		span := e.End - e.Start
		pieces := Segment(e.Text, opts.MaxChars)
		if span <= 0 || len(pieces) == 0 {
			continue
		}

		total := 0
		for _, p := range pieces {
			total += runeLen(p)
		}

		t := e.Start
		for j, p := range pieces {
			end := t + span*float64(runeLen(p))/float64(total)
			if j == len(pieces)-1 {
				end = e.End
			}
			cues = append(cues, models.SubtitleCue{
				Start: round3(t),
				End:   round3(end),
				Text:  opts.display(p),
			})
			t = end
		}
	}
	return Sanitize(cues)
}

// Sanitize drops empty cues, orders by start, removes overlap and renumbers
// from 1. After Sanitize every cue has End > Start and starts no earlier
// than the previous cue's end.
func Sanitize(cues []models.SubtitleCue) []models.SubtitleCue {
	out := make([]models.SubtitleCue, 0, len(cues))
	for _, c := range cues {
		c.Text = strings.TrimSpace(c.Text)
		if c.Text == "" {
			continue
		}
		if c.Start < 0 {
			c.Start = 0
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })

	prevEnd := 0.0
	for i := range out {
		if out[i].Start < prevEnd {
			out[i].Start = prevEnd
		}
		if out[i].End <= out[i].Start {
			out[i].End = round3(out[i].Start + minCueSpan)
		}
		out[i].Index = i + 1
		prevEnd = out[i].End
	}
	return out
}

// Shift moves every cue by offset seconds.
func Shift(cues []models.SubtitleCue, offset float64) []models.SubtitleCue {
	out := make([]models.SubtitleCue, len(cues))
	for i, c := range cues {
		c.Start += offset
		c.End += offset
		out[i] = c
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round3(v float64) float64 {
	if v < 0 {
		return -round3(-v)
	}
	return float64(int64(v*1000+0.5)) / 1000
}
