package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ---------------------------------------------------------------------------
// Google Cloud Text-to-Speech
// REST v1 text:synthesize with an API key. Accepts SSML, which is how the
// emotion markup reaches the voice.
// ---------------------------------------------------------------------------

const (
	googleTTSBaseURL      = "https://texttospeech.googleapis.com"
	googleTTSPayloadLimit = 5000 // bytes of text or SSML per request
	googleDefaultVoice    = "ko-KR-Neural2-C"
)

// GoogleTTSService handles text-to-speech via Google Cloud TTS.
type GoogleTTSService struct {
	apiKey   string
	language string
	baseURL  string
	client   *http.Client
}

// Ensure GoogleTTSService implements TTSService at compile time.
var (
	_ TTSService    = (*GoogleTTSService)(nil)
	_ SSMLSupporter = (*GoogleTTSService)(nil)
)

func NewGoogleTTSService(apiKey, language string) *GoogleTTSService {
	if language == "" {
		language = "ko-KR"
	}
	return &GoogleTTSService{
		apiKey:   apiKey,
		language: language,
		baseURL:  googleTTSBaseURL,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

// WithBaseURL points the service at another endpoint (tests, proxies).
func (s *GoogleTTSService) WithBaseURL(baseURL string) *GoogleTTSService {
	s.baseURL = baseURL
	return s
}

func (s *GoogleTTSService) Name() string       { return "google" }
func (s *GoogleTTSService) PayloadLimit() int  { return googleTTSPayloadLimit }
func (s *GoogleTTSService) SupportsSSML() bool { return true }

type googleSynthesisInput struct {
	Text string `json:"text,omitempty"`
	SSML string `json:"ssml,omitempty"`
}

type googleVoiceSelection struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name,omitempty"`
}

type googleAudioConfig struct {
	AudioEncoding string  `json:"audioEncoding"`
	SpeakingRate  float64 `json:"speakingRate,omitempty"`
}

type googleSynthesizeRequest struct {
	Input       googleSynthesisInput `json:"input"`
	Voice       googleVoiceSelection `json:"voice"`
	AudioConfig googleAudioConfig    `json:"audioConfig"`
}

type googleSynthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// GenerateSpeech synthesizes MP3 audio.
func (s *GoogleTTSService) GenerateSpeech(ctx context.Context, r SpeechRequest) (*TTSResponse, error) {
	voice := r.VoiceID
	if voice == "" {
		voice = googleDefaultVoice
	}

	body := googleSynthesizeRequest{
		Voice:       googleVoiceSelection{LanguageCode: s.language, Name: voice},
		AudioConfig: googleAudioConfig{AudioEncoding: "MP3", SpeakingRate: r.rate()},
	}
	if r.SSML {
		body.Input.SSML = r.Text
	} else {
		body.Input.Text = r.Text
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Google TTS request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text:synthesize?key=%s", s.baseURL, s.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google TTS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: s.Name(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read Google TTS response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newProviderError(s.Name(), resp.StatusCode, respBody)
	}

	var out googleSynthesizeResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to decode Google TTS response: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(out.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Google TTS audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("Google TTS returned empty audio")
	}

	return &TTSResponse{
		AudioData:  audio,
		DurationMs: estimateAudioDuration(r.Text, r.rate()),
		Format:     "mp3",
	}, nil
}
