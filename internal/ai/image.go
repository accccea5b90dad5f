package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/rewind/internal/shared"
	"github.com/go-resty/resty/v2"
)

const (
	clipdropBaseURL = "https://clipdrop-api.co"

	// Image synthesis is the slowest call this server makes.
	imageTimeout = 120 * time.Second
)

// ImageClient calls the Clipdrop text-to-image API.
type ImageClient struct {
	client *resty.Client
	logger *log.Logger
}

// NewImageClient creates an image generation client. An empty API key
// produces a client that reports itself unconfigured.
func NewImageClient(apiKey string, logger *log.Logger) *ImageClient {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	var client *resty.Client
	if apiKey != "" {
		client = resty.New().
			SetBaseURL(clipdropBaseURL).
			SetTimeout(imageTimeout).
			SetHeader("x-api-key", apiKey)
	}

	return &ImageClient{client: client, logger: logger}
}

// Configured reports whether an API key was provided.
func (i *ImageClient) Configured() bool {
	return i.client != nil
}

// SetBaseURL overrides the provider endpoint, for tests.
func (i *ImageClient) SetBaseURL(u string) {
	if i.client != nil {
		i.client.SetBaseURL(u)
	}
}

// Generate synthesizes an image from a visual prompt and returns the raw
// bytes, typically PNG.
func (i *ImageClient) Generate(ctx context.Context, prompt string) ([]byte, error) {
	if !i.Configured() {
		return nil, fmt.Errorf("%w: image generation", shared.ErrServiceNotConfigured)
	}

	resp, err := i.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"prompt": prompt}).
		SetHeader("Content-Type", "application/json").
		Post("/text-to-image/v1")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrProviderFailed, err)
	}
	if resp.IsError() {
		i.logger.Error("image provider error", "status", resp.StatusCode(), "body", resp.String())
		return nil, fmt.Errorf("%w: status %d", shared.ErrProviderFailed, resp.StatusCode())
	}

	return resp.Body(), nil
}
