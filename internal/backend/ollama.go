package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"MiniChat/internal/gateway"
	"MiniChat/internal/session"
)

// OllamaRequest represents the request body for Ollama API
type OllamaRequest struct {
	Model    string              `json:"model"`
	Messages []map[string]string `json:"messages"`
	Stream   bool                `json:"stream"`
}

// OllamaResponse represents the response from Ollama API
type OllamaResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Message   struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool  `json:"done"`
	PromptEvalCount int64 `json:"prompt_eval_count"`
	EvalCount       int64 `json:"eval_count"`
}

// OllamaTagsResponse represents the response from Ollama /api/tags endpoint
type OllamaTagsResponse struct {
	Models []OllamaModel `json:"models"`
}

// OllamaModel represents a single model in the Ollama tags response
type OllamaModel struct {
	Name       string `json:"name"`
	ModifiedAt string `json:"modified_at"`
	Size       int64  `json:"size"`
	Digest     string `json:"digest"`
}

// OllamaProvider talks to a local Ollama server
type OllamaProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaProvider creates a provider for the Ollama server at baseURL
func NewOllamaProvider(baseURL, model string, httpClient *http.Client, logger *slog.Logger) *OllamaProvider {
	return &OllamaProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

// Complete calls /api/chat without streaming
func (p *OllamaProvider) Complete(ctx context.Context, systemPrompt string, turns []session.Turn) (gateway.Reply, error) {
	reqBody := OllamaRequest{
		Model:    p.model,
		Messages: chatMessages(systemPrompt, turns),
		Stream:   false,
	}

	var apiResp OllamaResponse
	if err := doJSON(ctx, p.httpClient, http.MethodPost, p.baseURL+"/api/chat", nil, reqBody, &apiResp); err != nil {
		return gateway.Reply{}, fmt.Errorf("ollama: %w", err)
	}

	return gateway.Reply{
		Text: apiResp.Message.Content,
		Usage: map[string]int64{
			"input_tokens":  apiResp.PromptEvalCount,
			"output_tokens": apiResp.EvalCount,
		},
	}, nil
}

// ListModels fetches the list of available Ollama models
func (p *OllamaProvider) ListModels(ctx context.Context) ([]OllamaModel, error) {
	var tagsResp OllamaTagsResponse
	if err := doJSON(ctx, p.httpClient, http.MethodGet, p.baseURL+"/api/tags", nil, nil, &tagsResp); err != nil {
		return nil, fmt.Errorf("failed to list models (is Ollama running?): %w", err)
	}
	return tagsResp.Models, nil
}

// Ping checks that the server is reachable and the model is pulled
func (p *OllamaProvider) Ping(ctx context.Context) error {
	models, err := p.ListModels(ctx)
	if err != nil {
		return err
	}
	for _, model := range models {
		if model.Name == p.model {
			return nil
		}
	}
	p.logger.Warn("model not found on Ollama server", "model", p.model, "available", len(models))
	return nil
}

// chatMessages converts a conversation to the role/content maps used by the
// Ollama and OpenAI-compatible APIs
func chatMessages(systemPrompt string, turns []session.Turn) []map[string]string {
	messages := make([]map[string]string, 0, len(turns)+1)
	if systemPrompt != "" {
		messages = append(messages, map[string]string{
			"role":    string(session.RoleSystem),
			"content": systemPrompt,
		})
	}
	for _, turn := range turns {
		messages = append(messages, map[string]string{
			"role":    string(turn.Role),
			"content": turn.Text,
		})
	}
	return messages
}
