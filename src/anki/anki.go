// Package anki exports dictionary entries as flashcards through the
// AnkiConnect add-on.
package anki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"screen-lookup/src/messages"
)

const (
	DefaultURL   = "http://localhost:8765"
	DefaultDeck  = "Japanese"
	DefaultModel = "Basic"

	apiVersion = 6
	noteTag    = "screen-lookup"

	frontTemplate = "{term}\n{reading}"
	backTemplate  = "{definition}"
)

type Config struct {
	URL   string // DefaultURL when empty
	Deck  string // DefaultDeck when empty
	Model string // DefaultModel when empty
}

// AnkiConnect request envelope
type Request struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
}

type Response struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

type Note struct {
	DeckName  string            `json:"deckName"`
	ModelName string            `json:"modelName"`
	Fields    map[string]string `json:"fields"`
	Tags      []string          `json:"tags"`
}

// Client talks to a running AnkiConnect instance.
type Client struct {
	cfg    Config
	client *http.Client
	logger zerolog.Logger
}

func New(cfg Config, logger zerolog.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Deck == "" {
		cfg.Deck = DefaultDeck
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With().Str("component", "anki").Logger(),
	}
}

// AddCard creates a note from e in the configured deck and returns its id.
func (c *Client) AddCard(ctx context.Context, e messages.Entry) (int64, error) {
	if strings.TrimSpace(e.Term) == "" {
		return 0, fmt.Errorf("card has no term")
	}
	note := Note{
		DeckName:  c.cfg.Deck,
		ModelName: c.cfg.Model,
		Fields: map[string]string{
			"Front": strings.TrimSpace(render(frontTemplate, e)),
			"Back":  render(backTemplate, e),
		},
		Tags: []string{noteTag},
	}
	var id int64
	if err := c.invoke(ctx, "addNote", map[string]any{"note": note}, &id); err != nil {
		return 0, err
	}
	c.logger.Info().Int64("note_id", id).Str("term", e.Term).Str("deck", c.cfg.Deck).Msg("card added")
	return id, nil
}

// Version reports the AnkiConnect API version, which doubles as a reachability check.
func (c *Client) Version(ctx context.Context) (int, error) {
	var v int
	err := c.invoke(ctx, "version", nil, &v)
	return v, err
}

// DeckNames lists the decks of the open collection.
func (c *Client) DeckNames(ctx context.Context) ([]string, error) {
	var names []string
	err := c.invoke(ctx, "deckNames", nil, &names)
	return names, err
}

func (c *Client) invoke(ctx context.Context, action string, params, result any) error {
	body, err := json.Marshal(Request{Action: action, Version: apiVersion, Params: params})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("AnkiConnect request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("AnkiConnect returned status %d", resp.StatusCode)
	}

	var response Response
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Error != nil {
		return fmt.Errorf("AnkiConnect error: %s", *response.Error)
	}
	if len(response.Result) == 0 || string(response.Result) == "null" {
		return fmt.Errorf("AnkiConnect %s returned no result", action)
	}
	if err := json.Unmarshal(response.Result, result); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", action, err)
	}
	return nil
}

func render(tmpl string, e messages.Entry) string {
	return strings.NewReplacer(
		"{term}", e.Term,
		"{reading}", e.Reading,
		"{definition}", e.Definition,
	).Replace(tmpl)
}
