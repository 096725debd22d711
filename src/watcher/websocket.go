package watcher

import (
	"context"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"screen-lookup/src/messages"
)

// DefaultReconnectDelay is the pause between websocket connection attempts.
const DefaultReconnectDelay = 3 * time.Second

// WebSocket reads text frames from a server and submits each as a lookup.
// The connection is re-established until ctx is done.
type WebSocket struct {
	url    string
	delay  time.Duration
	dialer *websocket.Dialer
	logger zerolog.Logger
}

func NewWebSocket(url string, delay time.Duration, logger zerolog.Logger) *WebSocket {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return &WebSocket{
		url:    url,
		delay:  delay,
		dialer: websocket.DefaultDialer,
		logger: logger.With().Str("component", "websocket").Str("url", url).Logger(),
	}
}

func (w *WebSocket) Name() string { return "websocket" }

func (w *WebSocket) Run(ctx context.Context, sub Submitter) error {
	for {
		if err := w.session(ctx, sub); err != nil && ctx.Err() == nil {
			w.logger.Warn().Err(err).Dur("retry_in", w.delay).Msg("websocket disconnected")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.delay):
		}
	}
}

// session serves one connection until it fails or ctx is done.
func (w *WebSocket) session(ctx context.Context, sub Submitter) error {
	conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	w.logger.Info().Msg("websocket connected")

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage {
			continue
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			continue
		}
		_, _ = submit(ctx, sub, messages.Request{
			Kind:    messages.KindLookup,
			Payload: messages.Payload{Text: text},
			Source:  messages.SourceWebSocket,
		}, w.logger)
	}
}
