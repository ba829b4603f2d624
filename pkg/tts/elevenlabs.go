package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"
)

// ElevenLabs model IDs.
const (
	ModelMultilingualV2 = "eleven_multilingual_v2"
	ModelTurboV2_5      = "eleven_turbo_v2_5"
	ModelFlashV2_5      = "eleven_flash_v2_5"
)

// ElevenLabs synthesizes speech with the ElevenLabs API.
type ElevenLabs struct {
	config  *Config
	api     *apiClient
	baseURL string
	voiceID string
}

var _ Provider = (*ElevenLabs)(nil)

// NewElevenLabs creates an ElevenLabs provider. The voice may be a preset
// name such as "sarah" or a raw voice ID.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.VoiceID = DefaultElevenLabsVoice
	cfg.Apply(opts...)
	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}

	api := newAPIClient(providerElevenLabs, cfg)
	api.setHeaders = func(req *http.Request) {
		req.Header.Set("xi-api-key", cfg.APIKey)
		if req.Method == http.MethodPost {
			req.Header.Set("Accept", "audio/pcm")
		}
	}
	api.parseError = parseElevenLabsError

	return &ElevenLabs{
		config:  cfg,
		api:     api,
		baseURL: baseURL,
		voiceID: ResolveElevenLabsVoice(cfg.VoiceID),
	}, nil
}

type elevenLabsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// Synthesize implements Provider.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if text == "" {
		return nil, WrapError(providerElevenLabs, ErrEmptyText)
	}
	start := time.Now()

	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s",
		e.baseURL, url.PathEscape(e.voiceID), url.QueryEscape(string(e.config.OutputFormat)))
	audio, err := e.api.postJSON(ctx, endpoint, elevenLabsRequest{
		Text:          text,
		ModelID:       e.config.ModelID,
		VoiceSettings: e.config.VoiceSettings,
	})
	if err != nil {
		return nil, err
	}

	latency := time.Since(start).Milliseconds()
	format := pcmFormat(e.config.OutputFormat)
	e.api.logger.Debug("synthesized audio",
		"chars", len(text), "bytes", len(audio), "latency_ms", latency, "model", e.config.ModelID)

	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  PCMDuration(len(audio), format),
		CharCount: len(text),
		LatencyMs: latency,
		Provider:  providerElevenLabs,
	}, nil
}

// Health checks the API key against the user endpoint.
func (e *ElevenLabs) Health(ctx context.Context) error {
	_, err := e.api.get(ctx, e.baseURL+"/user")
	return err
}

// Voices lists the voices available to the account.
func (e *ElevenLabs) Voices(ctx context.Context) ([]Voice, error) {
	data, err := e.api.get(ctx, e.baseURL+"/voices")
	if err != nil {
		return nil, err
	}
	var resp struct {
		Voices []Voice `json:"voices"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("decode voices: %w", err))
	}
	return resp.Voices, nil
}

// VoiceID returns the resolved voice ID.
func (e *ElevenLabs) VoiceID() string { return e.voiceID }

// Close implements Provider.
func (e *ElevenLabs) Close() error {
	e.api.close()
	return nil
}

func parseElevenLabsError(status int, body []byte) error {
	var resp struct {
		Detail struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"detail"`
	}
	apiErr := &APIError{StatusCode: status, Message: string(body), Provider: providerElevenLabs}
	if json.Unmarshal(body, &resp) == nil && resp.Detail.Message != "" {
		apiErr.Message = resp.Detail.Message
		apiErr.Code = resp.Detail.Status
	}
	return apiErr
}
