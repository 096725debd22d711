package anki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screen-lookup/src/messages"
)

type rawRequest struct {
	Action  string          `json:"action"`
	Version int             `json:"version"`
	Params  json.RawMessage `json:"params"`
}

func ankiServer(t *testing.T, handler func(req rawRequest) string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req rawRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, apiVersion, req.Version)
		_, _ = w.Write([]byte(handler(req)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAddCardSendsRenderedNote(t *testing.T) {
	var got Note
	srv := ankiServer(t, func(req rawRequest) string {
		assert.Equal(t, "addNote", req.Action)
		var params struct {
			Note Note `json:"note"`
		}
		require.NoError(t, json.Unmarshal(req.Params, &params))
		got = params.Note
		return `{"result": 1496198395707, "error": null}`
	})

	c := New(Config{URL: srv.URL, Deck: "Mining"}, zerolog.Nop())
	id, err := c.AddCard(context.Background(), messages.Entry{Term: "猫", Reading: "ねこ", Definition: "cat"})
	require.NoError(t, err)
	assert.Equal(t, int64(1496198395707), id)

	assert.Equal(t, "Mining", got.DeckName)
	assert.Equal(t, DefaultModel, got.ModelName)
	assert.Equal(t, "猫\nねこ", got.Fields["Front"])
	assert.Equal(t, "cat", got.Fields["Back"])
	assert.Equal(t, []string{noteTag}, got.Tags)
}

func TestAddCardWithoutReadingTrimsFront(t *testing.T) {
	srv := ankiServer(t, func(req rawRequest) string {
		assert.Contains(t, string(req.Params), `"Front":"犬"`)
		return `{"result": 7, "error": null}`
	})
	_, err := New(Config{URL: srv.URL}, zerolog.Nop()).AddCard(context.Background(), messages.Entry{Term: "犬", Definition: "dog"})
	require.NoError(t, err)
}

func TestAnkiConnectErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"error field", `{"result": null, "error": "cannot create note because it is a duplicate"}`, "AnkiConnect error: cannot create note because it is a duplicate"},
		{"null result", `{"result": null, "error": null}`, "returned no result"},
		{"garbage", `not json`, "failed to decode response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := ankiServer(t, func(rawRequest) string { return tt.body })
			_, err := New(Config{URL: srv.URL}, zerolog.Nop()).AddCard(context.Background(), messages.Entry{Term: "猫"})
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestAddCardNeedsTerm(t *testing.T) {
	_, err := New(Config{URL: "http://127.0.0.1:1"}, zerolog.Nop()).AddCard(context.Background(), messages.Entry{Definition: "x"})
	assert.ErrorContains(t, err, "no term")
}

func TestVersionAndDecks(t *testing.T) {
	srv := ankiServer(t, func(req rawRequest) string {
		switch req.Action {
		case "version":
			return `{"result": 6, "error": null}`
		case "deckNames":
			return `{"result": ["Default", "Japanese"], "error": null}`
		}
		return `{"result": null, "error": "unsupported action"}`
	})
	c := New(Config{URL: srv.URL}, zerolog.Nop())

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, v)

	decks, err := c.DeckNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Default", "Japanese"}, decks)
}
