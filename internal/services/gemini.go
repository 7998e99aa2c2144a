package services

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Gemini speech generation
// The TTS models answer with raw 16-bit PCM in InlineData; it is wrapped in
// a WAV header so ffprobe and the concat demuxer can read it.
// ---------------------------------------------------------------------------

const (
	geminiDefaultVoice  = "Kore"
	geminiPayloadLimit  = 4000
	geminiPCMSampleRate = 24000

	geminiSlowPrefix  = "Read slowly: "
	geminiBriskPrefix = "Read briskly: "
)

type GeminiService struct {
	client *genai.Client
	model  string
}

var _ TTSService = (*GeminiService)(nil)

// NewGeminiService creates a Gemini speech service. baseURL may be empty.
func NewGeminiService(ctx context.Context, apiKey, model, baseURL string) (*GeminiService, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiService{client: client, model: model}, nil
}

func (s *GeminiService) Name() string      { return "gemini" }
// PayloadLimit leaves room for the pace prefix added to each request.
func (s *GeminiService) PayloadLimit() int {
	return geminiPayloadLimit - max(len(geminiSlowPrefix), len(geminiBriskPrefix))
}

// GenerateSpeech asks the model for an AUDIO modality response.
func (s *GeminiService) GenerateSpeech(ctx context.Context, r SpeechRequest) (*TTSResponse, error) {
	voice := r.VoiceID
	if voice == "" {
		voice = geminiDefaultVoice
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(geminiPrompt(r.Text, r.rate())), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	})
	if err != nil {
		return nil, s.wrapError(err)
	}

	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if p.InlineData == nil || len(p.InlineData.Data) == 0 {
				continue
			}
			rate := sampleRateFromMIME(p.InlineData.MIMEType)
			return &TTSResponse{
				AudioData:  pcmToWAV(p.InlineData.Data, rate, 1, 16),
				DurationMs: len(p.InlineData.Data) * 1000 / (rate * 2),
				Format:     "wav",
			}, nil
		}
	}
	return nil, fmt.Errorf("gemini returned no audio")
}

// geminiPrompt prefixes a pace instruction when rate is off 1.0.
func geminiPrompt(text string, rate float64) string {
	switch {
	case rate < 0.95:
		return geminiSlowPrefix + text
	case rate > 1.05:
		return geminiBriskPrefix + text
	}
	return text
}

func (s *GeminiService) wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: s.Name(), StatusCode: apiErr.Code, Body: truncate(apiErr.Message, 500), Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &ProviderError{Provider: s.Name(), StatusCode: apiErrPtr.Code, Body: truncate(apiErrPtr.Message, 500), Err: err}
	}
	return &ProviderError{Provider: s.Name(), Err: err}
}

// sampleRateFromMIME reads "rate=" from e.g. "audio/L16;codec=pcm;rate=24000".
func sampleRateFromMIME(mime string) int {
	for _, part := range strings.Split(mime, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && strings.EqualFold(k, "rate") {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				return n
			}
		}
	}
	return geminiPCMSampleRate
}

// pcmToWAV prepends a canonical 44-byte RIFF header to little-endian PCM.
func pcmToWAV(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	blockAlign := channels * bitsPerSample / 8
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
