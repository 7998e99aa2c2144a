package services

import (
	"context"
	"fmt"

	"github.com/bobarin/storyreel/internal/config"
)

// NewTTSService builds the configured provider. It returns nil when no
// provider is configured; narration jobs then fail at submission time.
func NewTTSService(ctx context.Context, cfg *config.Config) (TTSService, error) {
	var svc TTSService
	switch cfg.TTSProvider {
	case "":
		return nil, nil
	case "google":
		svc = NewGoogleTTSService(cfg.GoogleTTSKey, cfg.GoogleTTSLanguage)
	case "elevenlabs":
		svc = NewElevenLabsService(cfg.ElevenLabsKey, cfg.DefaultVoice)
	case "cartesia":
		svc = NewCartesiaService(cfg.CartesiaKey, cfg.CartesiaURL, cfg.DefaultVoice)
	case "openai":
		svc = NewOpenAIService(cfg.OpenAIKey, cfg.OpenAITTSModel)
	case "gemini":
		g, err := NewGeminiService(ctx, cfg.GeminiKey, cfg.GeminiTTSModel, "")
		if err != nil {
			return nil, err
		}
		// The pace prefix counts against the request size too.
		return WithPayloadLimit(g, min(cfg.TTSPayloadLimit, g.PayloadLimit())), nil
	default:
		return nil, fmt.Errorf("unknown TTS provider %q", cfg.TTSProvider)
	}
	return WithPayloadLimit(svc, cfg.TTSPayloadLimit), nil
}
