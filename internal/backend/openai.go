package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"MiniChat/internal/gateway"
	"MiniChat/internal/session"
)

const (
	OpenAIBaseURL = "https://api.openai.com/v1"
	GrokBaseURL   = "https://api.grok.x.ai/v1"
)

// OpenAIRequest represents the request body for OpenAI-compatible APIs
type OpenAIRequest struct {
	Model    string              `json:"model"`
	Messages []map[string]string `json:"messages"`
}

// OpenAIResponse represents the response from OpenAI-compatible APIs
type OpenAIResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage map[string]interface{} `json:"usage"`
}

// OpenAIModelsResponse represents the response from the /models endpoint
type OpenAIModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// OpenAIProvider talks to OpenAI or any API that speaks its chat format
type OpenAIProvider struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAIProvider creates an OpenAI-compatible provider
func NewOpenAIProvider(name, baseURL, apiKey, model string, httpClient *http.Client) *OpenAIProvider {
	return &OpenAIProvider{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: httpClient,
	}
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

func (p *OpenAIProvider) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}

// Complete calls /chat/completions
func (p *OpenAIProvider) Complete(ctx context.Context, systemPrompt string, turns []session.Turn) (gateway.Reply, error) {
	if p.apiKey == "" {
		return gateway.Reply{}, fmt.Errorf("%s: %w", p.name, gateway.ErrMissingCredential)
	}

	reqBody := OpenAIRequest{
		Model:    p.model,
		Messages: chatMessages(systemPrompt, turns),
	}

	var apiResp OpenAIResponse
	if err := doJSON(ctx, p.httpClient, http.MethodPost, p.baseURL+"/chat/completions", p.headers(), reqBody, &apiResp); err != nil {
		return gateway.Reply{}, fmt.Errorf("%s: %w", p.name, err)
	}

	if len(apiResp.Choices) == 0 {
		return gateway.Reply{}, fmt.Errorf("empty response from %s: %w", p.name, gateway.ErrMalformedResponse)
	}

	return gateway.Reply{
		Text:  apiResp.Choices[0].Message.Content,
		Usage: usageCounters(apiResp.Usage),
	}, nil
}

// Ping lists models to verify the credential
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	if p.apiKey == "" {
		return fmt.Errorf("%s: %w", p.name, gateway.ErrMissingCredential)
	}
	var modelsResp OpenAIModelsResponse
	if err := doJSON(ctx, p.httpClient, http.MethodGet, p.baseURL+"/models", p.headers(), nil, &modelsResp); err != nil {
		return fmt.Errorf("%s: %w", p.name, err)
	}
	return nil
}

// usageCounters keeps the numeric entries of a decoded usage object
func usageCounters(usage map[string]interface{}) map[string]int64 {
	counters := make(map[string]int64, len(usage))
	for key, value := range usage {
		if n, ok := value.(float64); ok {
			counters[key] = int64(n)
		}
	}
	return counters
}
