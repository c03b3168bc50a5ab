package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"MiniChat/internal/gateway"
	"MiniChat/internal/session"
)

const anthropicMaxTokens = 4096

// AnthropicProvider calls the Messages API through the official SDK
type AnthropicProvider struct {
	client anthropic.Client
	apiKey string
	model  string
}

// NewAnthropicProvider creates a provider. The SDK's own retries are turned
// off since the gateway owns the retry policy.
func NewAnthropicProvider(apiKey, model, baseURL string, httpClient *http.Client) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		apiKey: apiKey,
		model:  model,
	}
}

func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete sends the conversation as a single Messages request
func (p *AnthropicProvider) Complete(ctx context.Context, systemPrompt string, turns []session.Turn) (gateway.Reply, error) {
	if p.apiKey == "" {
		return gateway.Reply{}, fmt.Errorf("anthropic: %w", gateway.ErrMissingCredential)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: anthropicMaxTokens,
		Messages:  anthropicMessages(turns),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return gateway.Reply{}, fmt.Errorf("anthropic: %w", anthropicError(err))
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return gateway.Reply{}, fmt.Errorf("no text content from anthropic (stop reason %q): %w", msg.StopReason, gateway.ErrMalformedResponse)
	}

	return gateway.Reply{
		Text: text.String(),
		Usage: map[string]int64{
			"input_tokens":  msg.Usage.InputTokens,
			"output_tokens": msg.Usage.OutputTokens,
		},
	}, nil
}

// anthropicMessages converts turns to SDK params. System turns have no
// Messages API role and are sent as user text.
func anthropicMessages(turns []session.Turn) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, turn := range turns {
		block := anthropic.NewTextBlock(turn.Text)
		if turn.Role == session.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	return messages
}

// anthropicError keeps the SDK error in the chain and adds the status code
// the gateway classifies on.
func anthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		statusErr := gateway.NewStatusError(apiErr.StatusCode, apiErr.RawJSON())
		if apiErr.Response != nil {
			statusErr.RetryAfter = parseRetryAfter(apiErr.Response.Header.Get("retry-after"))
		}
		return fmt.Errorf("%w (request %s)", statusErr, apiErr.RequestID)
	}
	return err
}
