package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// Default Cartesia API version
	CartesiaAPIVersion = "2024-06-10"

	cartesiaDefaultVoice  = "a0e99841-438c-4a64-b679-ae501e7d6091"
	cartesiaModel         = "sonic-multilingual"
	cartesiaPayloadLimit  = 2000
	cartesiaDefaultLocale = "ko"
)

type CartesiaService struct {
	apiKey         string
	apiURL         string
	apiVersion     string
	language       string
	defaultVoiceID string
	client         *http.Client
}

// Ensure CartesiaService implements TTSService at compile time.
var _ TTSService = (*CartesiaService)(nil)

// NewCartesiaService creates a Cartesia service. voiceID is the fallback
// when a request carries none.
func NewCartesiaService(apiKey, apiURL, voiceID string) *CartesiaService {
	if voiceID == "" {
		voiceID = cartesiaDefaultVoice
	}
	return &CartesiaService{
		apiKey:         apiKey,
		apiURL:         apiURL,
		apiVersion:     CartesiaAPIVersion,
		language:       cartesiaDefaultLocale,
		defaultVoiceID: voiceID,
		client:         &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *CartesiaService) Name() string      { return "cartesia" }
func (s *CartesiaService) PayloadLimit() int { return cartesiaPayloadLimit }

// CartesiaRequest matches the Cartesia /tts/bytes request body.
type CartesiaRequest struct {
	ModelID      string                    `json:"model_id"`
	Transcript   string                    `json:"transcript"`
	Voice        CartesiaVoiceSpecifier    `json:"voice"`
	Language     string                    `json:"language,omitempty"`
	OutputFormat CartesiaOutputFormat      `json:"output_format"`
	Config       *CartesiaGenerationConfig `json:"generation_config,omitempty"`
}

type CartesiaVoiceSpecifier struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type CartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate"`
	BitRate    int    `json:"bit_rate,omitempty"`
}

type CartesiaGenerationConfig struct {
	Speed *float64 `json:"speed,omitempty"` // 0.6 to 1.5
}

// GenerateSpeech generates audio from text using Cartesia TTS.
func (s *CartesiaService) GenerateSpeech(ctx context.Context, r SpeechRequest) (*TTSResponse, error) {
	voice := s.defaultVoiceID
	if r.VoiceID != "" {
		voice = r.VoiceID
	}

	reqBody := CartesiaRequest{
		ModelID:    cartesiaModel,
		Transcript: r.Text,
		Voice:      CartesiaVoiceSpecifier{Mode: "id", ID: voice},
		Language:   s.language,
		OutputFormat: CartesiaOutputFormat{
			Container:  "mp3",
			SampleRate: 44100,
			BitRate:    192000,
		},
	}
	if rate := r.rate(); rate != 1.0 {
		speed := clampRate(rate, 0.6, 1.5)
		reqBody.Config = &CartesiaGenerationConfig{Speed: &speed}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/tts/bytes", s.apiURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set required headers
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cartesia-Version", s.apiVersion)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: s.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, newProviderError(s.Name(), resp.StatusCode, body)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("cartesia returned empty audio")
	}

	return &TTSResponse{
		AudioData:  audioData,
		DurationMs: estimateAudioDuration(r.Text, r.rate()),
		Format:     "mp3",
	}, nil
}
