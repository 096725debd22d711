// Package translate renders recognized text in another language.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultEndpoint = "https://api-free.deepl.com/v2/translate"
	DefaultFrom     = "ja"
	DefaultTo       = "en"
)

var ErrNotConfigured = errors.New("translator not configured")

// Translator turns text into the target language.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

type Config struct {
	APIKey   string
	Endpoint string // DefaultEndpoint when empty
	From     string // DefaultFrom when empty
	To       string // DefaultTo when empty
}

// DeepL v2 API structures
type Request struct {
	Text       []string `json:"text"`
	SourceLang string   `json:"source_lang,omitempty"`
	TargetLang string   `json:"target_lang"`
}

type Response struct {
	Translations []Translation `json:"translations"`
	Message      string        `json:"message,omitempty"`
}

type Translation struct {
	DetectedSourceLanguage string `json:"detected_source_language"`
	Text                   string `json:"text"`
}

// DeepL translates through the DeepL HTTP API.
type DeepL struct {
	cfg    Config
	client *http.Client
	logger zerolog.Logger
}

func NewDeepL(cfg Config, logger zerolog.Logger) *DeepL {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.From == "" {
		cfg.From = DefaultFrom
	}
	if cfg.To == "" {
		cfg.To = DefaultTo
	}
	return &DeepL{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger.With().Str("component", "translate").Logger(),
	}
}

func (d *DeepL) Translate(ctx context.Context, text string) (string, error) {
	if d.cfg.APIKey == "" {
		return "", fmt.Errorf("%w: API key is required", ErrNotConfigured)
	}
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	jsonData, err := json.Marshal(Request{
		Text:       []string{text},
		SourceLang: strings.ToUpper(d.cfg.From),
		TargetLang: strings.ToUpper(d.cfg.To),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.Endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "DeepL-Auth-Key "+d.cfg.APIKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	var response Response
	decodeErr := json.NewDecoder(resp.Body).Decode(&response)
	switch {
	case resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("authentication failed")
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("rate limit exceeded")
	case resp.StatusCode != http.StatusOK:
		if response.Message != "" {
			return "", fmt.Errorf("API error: %s (status %d)", response.Message, resp.StatusCode)
		}
		return "", fmt.Errorf("API returned status %d", resp.StatusCode)
	case decodeErr != nil:
		return "", fmt.Errorf("failed to decode response: %w", decodeErr)
	case len(response.Translations) == 0:
		return "", fmt.Errorf("no translations in API response")
	}

	out := response.Translations[0]
	d.logger.Debug().Str("from", out.DetectedSourceLanguage).Str("to", d.cfg.To).Int("chars", len(out.Text)).Msg("text translated")
	return out.Text, nil
}
