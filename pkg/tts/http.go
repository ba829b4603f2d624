package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/go-focuscoach/internal/httpc"
)

// apiClient is the HTTP plumbing shared by the providers.
type apiClient struct {
	provider   string
	client     *http.Client
	logger     *slog.Logger
	maxRetries int
	retryDelay time.Duration
	setHeaders func(*http.Request)
	parseError func(status int, body []byte) error
}

func newAPIClient(provider string, cfg *Config) *apiClient {
	client := cfg.Client
	if client == nil {
		client = httpc.NewClient(cfg.Timeout)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &apiClient{
		provider:   provider,
		client:     client,
		logger:     logger.With("component", "tts."+provider),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
}

// postJSON posts payload and returns the response body, retrying rate
// limits and server errors with linear backoff.
func (a *apiClient) postJSON(ctx context.Context, url string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(a.provider, fmt.Errorf("marshal payload: %w", err))
	}

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(a.retryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, WrapError(a.provider, fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if a.setHeaders != nil {
			a.setHeaders(req)
		}

		data, err := a.do(req)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if apiErr, ok := err.(*APIError); ok && !apiErr.IsRetryable() {
			return nil, err
		}
		a.logger.Warn("retrying request", "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

// get performs a GET and returns the response body.
func (a *apiClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, WrapError(a.provider, err)
	}
	if a.setHeaders != nil {
		a.setHeaders(req)
	}
	return a.do(req)
}

func (a *apiClient) do(req *http.Request) ([]byte, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, WrapError(a.provider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(a.provider, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, a.parseError(resp.StatusCode, data)
	}
	return data, nil
}

func (a *apiClient) close() {
	a.client.CloseIdleConnections()
}
