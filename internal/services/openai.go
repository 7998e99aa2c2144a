package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// ---------------------------------------------------------------------------
// OpenAI speech (audio/speech endpoint via go-openai)
// ---------------------------------------------------------------------------

const (
	openAIDefaultVoice  = openai.VoiceAlloy
	openAIPayloadLimit  = 4096 // input characters; counted as bytes to stay under
	openAIDefaultModel  = openai.TTSModel1
	openAIMinSpeed      = 0.25
	openAIMaxSpeed      = 4.0
	openAIProviderLabel = "openai"
)

type OpenAIService struct {
	client *openai.Client
	model  openai.SpeechModel
}

var _ TTSService = (*OpenAIService)(nil)

func NewOpenAIService(apiKey, model string) *OpenAIService {
	return NewOpenAIServiceWithConfig(openai.DefaultConfig(apiKey), model)
}

// NewOpenAIServiceWithConfig allows a custom base URL or HTTP client.
func NewOpenAIServiceWithConfig(cfg openai.ClientConfig, model string) *OpenAIService {
	m := openai.SpeechModel(model)
	if model == "" {
		m = openAIDefaultModel
	}
	return &OpenAIService{
		client: openai.NewClientWithConfig(cfg),
		model:  m,
	}
}

func (s *OpenAIService) Name() string      { return openAIProviderLabel }
func (s *OpenAIService) PayloadLimit() int { return openAIPayloadLimit }

// GenerateSpeech synthesizes MP3 audio.
func (s *OpenAIService) GenerateSpeech(ctx context.Context, r SpeechRequest) (*TTSResponse, error) {
	voice := openai.SpeechVoice(r.VoiceID)
	if r.VoiceID == "" {
		voice = openAIDefaultVoice
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          r.Text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          clampRate(r.rate(), openAIMinSpeed, openAIMaxSpeed),
	})
	if err != nil {
		return nil, s.wrapError(err)
	}
	defer resp.Close()

	audioData, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read OpenAI speech response: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("OpenAI returned empty audio")
	}

	return &TTSResponse{
		AudioData:  audioData,
		DurationMs: estimateAudioDuration(r.Text, r.rate()),
		Format:     "mp3",
	}, nil
}

func (s *OpenAIService) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: s.Name(), StatusCode: apiErr.HTTPStatusCode, Body: truncate(apiErr.Message, 500), Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{Provider: s.Name(), StatusCode: reqErr.HTTPStatusCode, Body: truncate(string(reqErr.Body), 500), Err: err}
	}
	return &ProviderError{Provider: s.Name(), Err: err}
}
