// Package ai wraps the external generation providers (OpenRouter for text,
// Clipdrop for images) and the post-processing applied to their output.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/rewind/internal/shared"
	"github.com/go-resty/resty/v2"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultTextModel  = "x-ai/grok-4-fast:free"

	// Generation calls get a longer ceiling than resource reads; the model can
	// legitimately take tens of seconds.
	textTimeout = 30 * time.Second
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// TextClient calls the OpenRouter chat completions API.
type TextClient struct {
	client *resty.Client
	model  string
	logger *log.Logger
}

// NewTextClient creates a text generation client. An empty API key produces a
// client that reports itself unconfigured; handlers turn that into a
// "service not configured" response instead of calling out.
func NewTextClient(apiKey, model string, logger *log.Logger) *TextClient {
	if model == "" {
		model = defaultTextModel
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	client := resty.New().
		SetBaseURL(openRouterBaseURL).
		SetTimeout(textTimeout).
		SetAuthToken(apiKey)

	if apiKey == "" {
		client = nil
	}

	return &TextClient{client: client, model: model, logger: logger}
}

// Configured reports whether an API key was provided.
func (t *TextClient) Configured() bool {
	return t.client != nil
}

// SetBaseURL overrides the provider endpoint, for tests.
func (t *TextClient) SetBaseURL(u string) {
	if t.client != nil {
		t.client.SetBaseURL(u)
	}
}

// Complete sends a single-user-message chat completion and returns the
// trimmed response text. maxTokens of zero leaves the provider default.
func (t *TextClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if !t.Configured() {
		return "", fmt.Errorf("%w: text generation", shared.ErrServiceNotConfigured)
	}

	payload := chatRequest{
		Model:     t.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
	}

	var result chatResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&result).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrProviderFailed, err)
	}
	if resp.IsError() {
		t.logger.Error("text provider error", "status", resp.StatusCode(), "body", resp.String())
		return "", fmt.Errorf("%w: status %d", shared.ErrProviderFailed, resp.StatusCode())
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", shared.ErrProviderFailed)
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}
