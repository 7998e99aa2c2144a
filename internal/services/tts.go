package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// TTSService: common interface for text-to-speech providers
// Every provider implements this interface so the narrator can use whichever
// is configured without knowing the underlying API.
// ---------------------------------------------------------------------------

// SpeechRequest is one synthesis call. Text is either plain text or, when
// SSML is set, a <speak> document.
type SpeechRequest struct {
	Text    string
	VoiceID string  // provider voice id; empty uses the provider default
	Rate    float64 // speaking rate multiplier, 0 means 1.0
	SSML    bool
}

func (r SpeechRequest) rate() float64 {
	if r.Rate <= 0 {
		return 1.0
	}
	return r.Rate
}

// TTSResponse is the common response type from any TTS provider.
type TTSResponse struct {
	AudioData  []byte
	DurationMs int    // estimate; the narrator probes the written file
	Format     string // "mp3", "wav", etc.
}

// TTSService is the interface that any TTS provider must implement.
type TTSService interface {
	Name() string
	GenerateSpeech(ctx context.Context, req SpeechRequest) (*TTSResponse, error)
	// PayloadLimit is the largest request text in bytes the provider accepts.
	PayloadLimit() int
}

// SSMLSupporter is implemented by providers that accept SSML input.
type SSMLSupporter interface {
	SupportsSSML() bool
}

// SupportsSSML reports whether svc accepts SSML payloads.
func SupportsSSML(svc TTSService) bool {
	s, ok := svc.(SSMLSupporter)
	return ok && s.SupportsSSML()
}

// WithPayloadLimit overrides the provider's payload limit. A limit <= 0
// returns svc unchanged.
func WithPayloadLimit(svc TTSService, limit int) TTSService {
	if limit <= 0 {
		return svc
	}
	return &limitedService{TTSService: svc, limit: limit}
}

type limitedService struct {
	TTSService
	limit int
}

func (l *limitedService) PayloadLimit() int  { return l.limit }
func (l *limitedService) SupportsSSML() bool { return SupportsSSML(l.TTSService) }

// ---------------------------------------------------------------------------
// Provider errors
// ---------------------------------------------------------------------------

// ProviderErrorKind classifies a failed synthesis call.
type ProviderErrorKind string

const (
	KindAuth            ProviderErrorKind = "auth"
	KindQuota           ProviderErrorKind = "quota"
	KindPayloadTooLarge ProviderErrorKind = "payload_too_large"
	KindService         ProviderErrorKind = "service"
	KindUnknown         ProviderErrorKind = "unknown"
)

// ProviderError is a non-success answer from a speech provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func newProviderError(provider string, status int, body []byte) *ProviderError {
	return &ProviderError{Provider: provider, StatusCode: status, Body: truncate(string(body), 500)}
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 && e.Err != nil {
		return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s returned status %d (%s): %s", e.Provider, e.StatusCode, e.Kind(), e.Body)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Kind() ProviderErrorKind {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return KindAuth
	case e.StatusCode == http.StatusTooManyRequests:
		return KindQuota
	case e.StatusCode == http.StatusRequestEntityTooLarge:
		return KindPayloadTooLarge
	case e.StatusCode >= 500:
		return KindService
	case e.StatusCode == http.StatusBadRequest && mentionsLength(e.Body):
		return KindPayloadTooLarge
	}
	return KindUnknown
}

// mentionsLength catches providers that answer an oversized input with 400.
func mentionsLength(body string) bool {
	b := strings.ToLower(body)
	return strings.Contains(b, "too long") || strings.Contains(b, "exceeds") || strings.Contains(b, "maximum length")
}

// IsPayloadTooLarge reports whether err is a provider rejecting the input size.
func IsPayloadTooLarge(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind() == KindPayloadTooLarge
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// estimateAudioDuration estimates duration from text length and speed.
// Average narration pace is ~140 words per minute; scripts without spaces
// (Korean, Japanese) fall back to ~7 characters per second.
func estimateAudioDuration(text string, speed float64) int {
	if speed <= 0 {
		speed = 1.0
	}
	words := len(strings.Fields(text))
	byWords := float64(words) / (140.0 * speed) * 60
	byRunes := float64(utf8.RuneCountInString(text)) / (7.0 * speed)
	seconds := byWords
	if byRunes > seconds {
		seconds = byRunes
	}
	return int(seconds * 1000)
}
