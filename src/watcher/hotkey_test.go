package watcher

import (
	"context"
	"testing"
	"time"

	gohook "github.com/robotn/gohook"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screen-lookup/src/messages"
)

func TestKeyNameToRawcodes(t *testing.T) {
	tests := []struct {
		keyName  string
		expected []uint16
	}{
		// Modifier keys
		{"ctrl", []uint16{162, 163}},
		{"alt", []uint16{164, 165}},
		{"shift", []uint16{160, 161}},
		{"cmd", []uint16{91, 92}},

		// Letter keys
		{"q", []uint16{81}},
		{"e", []uint16{69}},
		{"o", []uint16{79}},
		{"T", []uint16{84}},

		// Number keys
		{"0", []uint16{48}},
		{"9", []uint16{57}},

		// Function keys
		{"f1", []uint16{112}},
		{"f12", []uint16{123}},
		{"f24", []uint16{135}},
		{"f25", nil},
		{"f01", nil},

		// Special keys
		{"space", []uint16{32}},
		{"enter", []uint16{13}},
		{"esc", []uint16{27}},

		{"unknown", nil},
	}

	for _, tt := range tests {
		t.Run(tt.keyName, func(t *testing.T) {
			assert.Equal(t, tt.expected, keyNameToRawcodes(tt.keyName))
		})
	}
}

func TestParseHotkey(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"Ctrl+Alt+Q", []string{"ctrl", "alt", "q"}},
		{"Ctrl+Shift+O", []string{"ctrl", "shift", "o"}},
		{"Alt+F4", []string{"alt", "f4"}},
		{"Ctrl+Win+E", []string{"ctrl", "cmd", "e"}},
		{"Super+Alt+T", []string{"cmd", "alt", "t"}},
		{"Control + S", []string{"ctrl", "s"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseHotkey(tt.input))
		})
	}
}

func TestComboFiresOncePerPress(t *testing.T) {
	c, err := newCombo("Ctrl+Shift+S")
	require.NoError(t, err)

	assert.False(t, c.press(162))
	assert.False(t, c.press(161))
	assert.True(t, c.press(83))
	// state resets after firing
	assert.False(t, c.press(83))

	c.press(163)
	c.press(160)
	c.release(160)
	assert.False(t, c.press(83), "released shift must not count")
}

func TestNewComboRejectsUnknownKeys(t *testing.T) {
	_, err := newCombo("Ctrl+Hyper+S")
	assert.Error(t, err)
	_, err = newCombo("")
	assert.Error(t, err)
}

func TestHotkeySubmitsCapture(t *testing.T) {
	events := make(chan gohook.Event, 8)
	ended := make(chan struct{})
	region := messages.Region{Width: 50, Height: 40}
	h := NewHotkey("Ctrl+S", region, zerolog.Nop())
	h.start = func() chan gohook.Event { return events }
	h.end = func() { close(ended) }

	sub := newRecordingSubmitter()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, sub) }()

	events <- gohook.Event{Kind: gohook.KeyDown, Rawcode: 162}
	events <- gohook.Event{Kind: gohook.MouseMove}
	events <- gohook.Event{Kind: gohook.KeyDown, Rawcode: 83}

	req := sub.next(t)
	assert.Equal(t, messages.KindCapture, req.Kind)
	assert.Equal(t, region, req.Payload.Region)
	assert.Equal(t, messages.SourceHotkey, req.Source)
	assert.Zero(t, req.Token)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("hotkey watcher did not stop")
	}
	<-ended
}
