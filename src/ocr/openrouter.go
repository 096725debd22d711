package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"
	maxRetries      = 3
	initialDelay    = 1 * time.Second

	prompt = "Perform OCR on this image. Return ONLY the raw extracted text with:\n" +
		"- No formatting\n" +
		"- No XML/HTML tags\n" +
		"- No markdown\n" +
		"- No explanations\n" +
		"- Preserve line breaks accurately from the visual layout.\n" +
		"If no text found, return '" + noTextMarker + "'"
)

type Config struct {
	APIKey    string
	Model     string
	Providers []string
	Endpoint  string        // DefaultEndpoint when empty
	Backoff   time.Duration // first retry delay, initialDelay when zero
}

// OpenRouter API structures
type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

type Content struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ProviderPreferences struct {
	Order          []string `json:"order,omitempty"`
	AllowFallbacks *bool    `json:"allow_fallbacks,omitempty"`
}

type ChatRequest struct {
	Model       string               `json:"model"`
	Messages    []Message            `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
	Provider    *ProviderPreferences `json:"provider,omitempty"`
}

type ChatResponse struct {
	Choices []Choice  `json:"choices"`
	Error   *APIError `json:"error,omitempty"`
}

type Choice struct {
	Message ResponseMessage `json:"message"`
}

type ResponseMessage struct {
	Content string `json:"content"`
}

type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"` // string or number
}

// OpenRouter recognizes text with a vision model behind the OpenRouter API.
type OpenRouter struct {
	cfg    Config
	client *http.Client
	logger zerolog.Logger
}

// NewOpenRouter creates a client. Configuration errors surface on Recognize.
func NewOpenRouter(cfg Config, logger zerolog.Logger) *OpenRouter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = initialDelay
	}
	return &OpenRouter{
		cfg:    cfg,
		client: &http.Client{Timeout: 45 * time.Second},
		logger: logger.With().Str("component", "ocr").Logger(),
	}
}

// providerPreferences pins the configured providers without fallbacks.
func (o *OpenRouter) providerPreferences() *ProviderPreferences {
	if len(o.cfg.Providers) == 0 {
		return nil
	}
	allowFallbacks := false
	return &ProviderPreferences{Order: o.cfg.Providers, AllowFallbacks: &allowFallbacks}
}

// Recognize sends the image to the model, retrying transient failures.
func (o *OpenRouter) Recognize(ctx context.Context, png []byte) (string, error) {
	if o.cfg.APIKey == "" {
		return "", fmt.Errorf("%w: API key is required", ErrNotConfigured)
	}
	if o.cfg.Model == "" {
		return "", fmt.Errorf("%w: model is required", ErrNotConfigured)
	}

	request := ChatRequest{
		Model: o.cfg.Model,
		Messages: []Message{{
			Role: "user",
			Content: []Content{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &ImageURL{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
				}},
			},
		}},
		Temperature: 0.1,
		MaxTokens:   2000,
		Provider:    o.providerPreferences(),
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(o.cfg.Backoff) * (1.5 * float64(attempt)))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		response, err := o.do(ctx, request)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			o.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("vision request failed")
			lastErr = err
			continue
		}
		if len(response.Choices) == 0 {
			lastErr = fmt.Errorf("no choices in API response")
			continue
		}
		return cleanExtractedText(response.Choices[0].Message.Content), nil
	}

	return "", fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

func (o *OpenRouter) do(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.Endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	req.Header.Set("X-Title", "Screen Lookup")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	var response ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("API error: %s (type: %s, code: %v)", response.Error.Message, response.Error.Type, response.Error.Code)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	return &response, nil
}
