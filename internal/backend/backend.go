// Package backend holds the concrete model providers behind
// gateway.Provider. Each one maps its vendor's failures onto the gateway's
// error types so retry decisions are made in one place.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"MiniChat/internal/config"
	"MiniChat/internal/gateway"
)

// New creates the provider selected by cfg
func New(ctx context.Context, cfg config.Config, httpClient *http.Client, logger *slog.Logger) (gateway.Provider, error) {
	model := cfg.ResolvedModel()
	switch cfg.Backend {
	case config.BackendGemini:
		return NewGeminiProvider(ctx, cfg.APIKey, model, cfg.BaseURL, httpClient)
	case config.BackendAnthropic:
		return NewAnthropicProvider(cfg.APIKey, model, cfg.BaseURL, httpClient), nil
	case config.BackendOpenAI:
		return NewOpenAIProvider(config.BackendOpenAI, baseURLOr(cfg.BaseURL, OpenAIBaseURL), cfg.APIKey, model, httpClient), nil
	case config.BackendGrok:
		return NewOpenAIProvider(config.BackendGrok, baseURLOr(cfg.BaseURL, GrokBaseURL), cfg.APIKey, model, httpClient), nil
	case config.BackendOllama:
		return NewOllamaProvider(cfg.OllamaURL, model, httpClient, logger), nil
	}
	return nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
}

func baseURLOr(url, fallback string) string {
	if url != "" {
		return url
	}
	return fallback
}

// doJSON sends reqBody (if any) as JSON and decodes a 200 response into
// respBody. Non-200 responses become *gateway.StatusError and undecodable
// bodies wrap gateway.ErrMalformedResponse.
func doJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, reqBody, respBody any) error {
	var body io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("content-type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return statusError(resp, respData)
	}

	if err := json.Unmarshal(respData, respBody); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w: %w", gateway.ErrMalformedResponse, err)
	}
	return nil
}

func statusError(resp *http.Response, body []byte) *gateway.StatusError {
	statusErr := gateway.NewStatusError(resp.StatusCode, string(body))
	statusErr.RetryAfter = parseRetryAfter(resp.Header.Get("retry-after"))
	return statusErr
}

// parseRetryAfter accepts delta-seconds or an HTTP date
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if retryTime, err := time.Parse(time.RFC1123, value); err == nil {
		if d := time.Until(retryTime); d > 0 {
			return d
		}
	}
	return 0
}
