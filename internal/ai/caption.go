package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const defaultCaptionURL = "https://api-inference.huggingface.co/models/Salesforce/blip-image-captioning-large"

// HFCaptioner implements Captioner against a HuggingFace image-to-text
// inference endpoint.
type HFCaptioner struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewHFCaptioner builds a captioner. baseURL is optional and exists for
// tests.
func NewHFCaptioner(apiKey, baseURL string, logger zerolog.Logger) *HFCaptioner {
	if baseURL == "" {
		baseURL = defaultCaptionURL
	}
	return &HFCaptioner{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With().Str("component", "captioner").Logger(),
	}
}

type captionResponse struct {
	GeneratedText string `json:"generated_text"`
}

// Caption posts the raw image bytes and returns the generated caption.
func (c *HFCaptioner) Caption(ctx context.Context, image []byte) (string, error) {
	if c.apiKey == "" {
		return "", ErrCaptionUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(image))
	if err != nil {
		return "", fmt.Errorf("build caption request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: caption endpoint returned %d", ErrRequest, resp.StatusCode)
	}

	var out []captionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode caption response: %w", err)
	}
	if len(out) == 0 || out[0].GeneratedText == "" {
		return "", ErrEmptyResponse
	}

	return out[0].GeneratedText, nil
}
