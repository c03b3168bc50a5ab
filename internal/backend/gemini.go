package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"MiniChat/internal/gateway"
	"MiniChat/internal/session"
)

// GeminiProvider calls the Gemini API through the genai SDK
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a provider. Without an API key the provider is
// still returned and fails every call with gateway.ErrMissingCredential.
func NewGeminiProvider(ctx context.Context, apiKey, model, baseURL string, httpClient *http.Client) (*GeminiProvider, error) {
	p := &GeminiProvider{model: model}
	if apiKey == "" {
		return p, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	p.client = client
	return p, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Complete sends the conversation to GenerateContent
func (p *GeminiProvider) Complete(ctx context.Context, systemPrompt string, turns []session.Turn) (gateway.Reply, error) {
	if p.client == nil {
		return gateway.Reply{}, fmt.Errorf("gemini: %w", gateway.ErrMissingCredential)
	}

	var config *genai.GenerateContentConfig
	if systemPrompt != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		}
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, geminiContents(turns), config)
	if err != nil {
		return gateway.Reply{}, fmt.Errorf("gemini: %w", geminiError(err))
	}
	if len(resp.Candidates) == 0 {
		reason := "no candidates"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + string(resp.PromptFeedback.BlockReason)
		}
		return gateway.Reply{}, fmt.Errorf("gemini %s: %w", reason, gateway.ErrMalformedResponse)
	}

	reply := gateway.Reply{Text: resp.Text()}
	if usage := resp.UsageMetadata; usage != nil {
		reply.Usage = map[string]int64{
			"input_tokens":  int64(usage.PromptTokenCount),
			"output_tokens": int64(usage.CandidatesTokenCount),
		}
	}
	return reply, nil
}

// Ping fetches the configured model, which checks the key and the model
// name without generating anything.
func (p *GeminiProvider) Ping(ctx context.Context) error {
	if p.client == nil {
		return fmt.Errorf("gemini: %w", gateway.ErrMissingCredential)
	}
	if _, err := p.client.Models.Get(ctx, p.model, nil); err != nil {
		return fmt.Errorf("gemini: %w", geminiError(err))
	}
	return nil
}

// geminiContents maps assistant turns to the model role and everything else
// to the user role.
func geminiContents(turns []session.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		role := genai.RoleUser
		if turn.Role == session.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, genai.Role(role)))
	}
	return contents
}

func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		return fmt.Errorf("%w (%s)", gateway.NewStatusError(apiErr.Code, apiErr.Message), apiErr.Status)
	}
	return err
}
