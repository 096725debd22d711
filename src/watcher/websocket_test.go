package watcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"screen-lookup/src/messages"
)

func wsServer(t *testing.T, frames ...string) (string, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		conns.Add(1)
		for _, f := range frames {
			_ = c.WriteMessage(websocket.TextMessage, []byte(f))
		}
		_ = c.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3})
		// server drops the connection after the frames
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), &conns
}

func TestWebSocketSubmitsTextFrames(t *testing.T) {
	url, _ := wsServer(t, "猫", "  ", "犬")
	w := NewWebSocket(url, time.Hour, zerolog.Nop())

	sub := newRecordingSubmitter()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, sub) }()

	req := sub.next(t)
	assert.Equal(t, messages.KindLookup, req.Kind)
	assert.Equal(t, messages.SourceWebSocket, req.Source)
	assert.Equal(t, "猫", req.Payload.Text)
	assert.Equal(t, "犬", sub.next(t).Payload.Text)
	sub.none(t, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("websocket watcher did not stop")
	}
}

func TestWebSocketReconnects(t *testing.T) {
	url, conns := wsServer(t, "x")
	w := NewWebSocket(url, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx, newRecordingSubmitter()) }()

	assert.Eventually(t, func() bool { return conns.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestWebSocketUnreachableKeepsRetrying(t *testing.T) {
	w := NewWebSocket("ws://127.0.0.1:1", 5*time.Millisecond, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Run(ctx, newRecordingSubmitter()), context.DeadlineExceeded)
}
