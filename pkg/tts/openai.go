package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

const (
	openAIBaseURL  = "https://api.openai.com/v1"
	providerOpenAI = "openai"
)

// OpenAI voices.
const (
	VoiceAlloy   = "alloy"
	VoiceNova    = "nova"
	VoiceShimmer = "shimmer"
)

// OpenAI models.
const (
	ModelTTS1   = "tts-1"
	ModelTTS1HD = "tts-1-hd"
)

// OpenAI synthesizes speech with the OpenAI speech endpoint. Output is
// always 24kHz mono PCM16.
type OpenAI struct {
	config  *Config
	api     *apiClient
	baseURL string
}

var _ Provider = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelTTS1
	cfg.VoiceID = VoiceShimmer
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = VoiceShimmer
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = openAIBaseURL
	}

	api := newAPIClient(providerOpenAI, cfg)
	api.setHeaders = func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	api.parseError = parseOpenAIError

	return &OpenAI{config: cfg, api: api, baseURL: baseURL}, nil
}

type openAIRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize implements Provider.
func (o *OpenAI) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if text == "" {
		return nil, WrapError(providerOpenAI, ErrEmptyText)
	}
	start := time.Now()

	audio, err := o.api.postJSON(ctx, o.baseURL+"/audio/speech", openAIRequest{
		Model:          o.config.ModelID,
		Voice:          o.config.VoiceID,
		Input:          text,
		ResponseFormat: "pcm",
	})
	if err != nil {
		return nil, err
	}

	latency := time.Since(start).Milliseconds()
	format := pcmFormat(EncodingPCM24)
	o.api.logger.Debug("synthesized audio",
		"chars", len(text), "bytes", len(audio), "latency_ms", latency, "voice", o.config.VoiceID)

	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  PCMDuration(len(audio), format),
		CharCount: len(text),
		LatencyMs: latency,
		Provider:  providerOpenAI,
	}, nil
}

// Health checks the API key against the models endpoint.
func (o *OpenAI) Health(ctx context.Context) error {
	_, err := o.api.get(ctx, o.baseURL+"/models")
	return err
}

// Close implements Provider.
func (o *OpenAI) Close() error {
	o.api.close()
	return nil
}

func parseOpenAIError(status int, body []byte) error {
	var resp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: status, Message: string(body), Provider: providerOpenAI}
	if json.Unmarshal(body, &resp) == nil && resp.Error.Message != "" {
		apiErr.Message = resp.Error.Message
		apiErr.Code = resp.Error.Code
	}
	return apiErr
}
