package ffmpeg

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category is the caller-facing classification of an encoder failure.
type Category string

const (
	CategoryMissingFile  Category = "missing_file"
	CategoryCorruptMedia Category = "corrupt_media"
	CategoryPermission   Category = "permission"
	CategoryUnknown      Category = "unknown"
)

var categoryMarkers = []struct {
	category Category
	markers  []string
}{
	{CategoryPermission, []string{"permission denied", "operation not permitted"}},
	{CategoryMissingFile, []string{"no such file or directory", "does not exist", "could not open file"}},
	{CategoryCorruptMedia, []string{
		"invalid data found when processing input",
		"moov atom not found",
		"could not find codec parameters",
		"invalid argument",
		"error while decoding",
		"decoding error",
		"unsupported codec",
		"header missing",
	}},
}

// Classify maps encoder stderr to a Category.
func Classify(stderr string) Category {
	lower := strings.ToLower(stderr)
	for _, c := range categoryMarkers {
		for _, m := range c.markers {
			if strings.Contains(lower, m) {
				return c.category
			}
		}
	}
	return CategoryUnknown
}

// EncoderError is a non-zero encoder exit with its captured diagnostics.
type EncoderError struct {
	Step     string
	Category Category
	ExitCode int
	Stderr   string // tail of stderr
	Err      error
}

func (e *EncoderError) Error() string {
	detail := lastLine(e.Stderr)
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	return fmt.Sprintf("%s failed (%s, exit %d): %s", e.Step, e.Category, e.ExitCode, detail)
}

func (e *EncoderError) Unwrap() error { return e.Err }

// TimeoutError means an external process exceeded its budget.
type TimeoutError struct {
	Step  string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Step, e.Limit)
}

// IsTimeout reports whether err wraps a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

func tail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
