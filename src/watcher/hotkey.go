package watcher

import (
	"context"
	"fmt"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
	"github.com/rs/zerolog"

	"screen-lookup/src/messages"
)

// Hotkey submits a capture of Region whenever the configured key
// combination is pressed.
type Hotkey struct {
	combo  string
	region messages.Region
	logger zerolog.Logger

	// start and end default to the process-wide gohook event hook.
	start func() chan gohook.Event
	end   func()
}

func NewHotkey(combo string, region messages.Region, logger zerolog.Logger) *Hotkey {
	return &Hotkey{
		combo:  combo,
		region: region,
		logger: logger.With().Str("component", "hotkey").Logger(),
		start:  func() chan gohook.Event { return gohook.Start() },
		end:    gohook.End,
	}
}

func (h *Hotkey) Name() string { return "hotkey" }

func (h *Hotkey) Run(ctx context.Context, sub Submitter) error {
	keys, err := newCombo(h.combo)
	if err != nil {
		return err
	}
	h.logger.Info().Str("hotkey", h.combo).Msg("hotkey listener configured")

	evChan := h.start()
	if evChan == nil {
		return fmt.Errorf("hotkey hook did not start")
	}
	defer h.end()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-evChan:
			if !ok {
				h.logger.Info().Msg("event channel closed")
				return nil
			}
			switch ev.Kind {
			case gohook.KeyDown:
				if keys.press(ev.Rawcode) {
					h.logger.Info().Str("hotkey", h.combo).Msg("hotkey activated")
					_, _ = submit(ctx, sub, messages.Request{
						Kind:    messages.KindCapture,
						Payload: messages.Payload{Region: h.region},
						Source:  messages.SourceHotkey,
					}, h.logger)
				}
			case gohook.KeyUp:
				keys.release(ev.Rawcode)
			}
		}
	}
}

// combo tracks which keys of a hotkey are held down.
type combo struct {
	mu   sync.Mutex
	keys []comboKey
}

type comboKey struct {
	name     string
	rawcodes []uint16
	pressed  bool
}

func newCombo(hotkeyConfig string) (*combo, error) {
	c := &combo{}
	for _, name := range parseHotkey(hotkeyConfig) {
		rawcodes := keyNameToRawcodes(name)
		if len(rawcodes) == 0 {
			return nil, fmt.Errorf("hotkey %q: unknown key %q", hotkeyConfig, name)
		}
		c.keys = append(c.keys, comboKey{name: name, rawcodes: rawcodes})
	}
	if len(c.keys) == 0 {
		return nil, fmt.Errorf("hotkey %q: no keys", hotkeyConfig)
	}
	return c, nil
}

// press records a key down and reports whether the whole combination is now
// held. A completed combination resets so it fires once per press.
func (c *combo) press(rawcode uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(rawcode, true)
	for i := range c.keys {
		if !c.keys[i].pressed {
			return false
		}
	}
	for i := range c.keys {
		c.keys[i].pressed = false
	}
	return true
}

func (c *combo) release(rawcode uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(rawcode, false)
}

func (c *combo) set(rawcode uint16, pressed bool) {
	for i := range c.keys {
		for _, rc := range c.keys[i].rawcodes {
			if rc == rawcode {
				c.keys[i].pressed = pressed
				break
			}
		}
	}
}

// parseHotkey converts a hotkey string like "Ctrl+Alt+q" to normalized key names
func parseHotkey(hotkeyConfig string) []string {
	var keys []string
	for _, part := range strings.Split(strings.ToLower(hotkeyConfig), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			continue
		case "control":
			keys = append(keys, "ctrl")
		case "win", "cmd", "super":
			keys = append(keys, "cmd")
		default:
			keys = append(keys, part)
		}
	}
	return keys
}

var specialRawcodes = map[string][]uint16{
	// left and right variants
	"ctrl":  {162, 163},
	"alt":   {164, 165},
	"shift": {160, 161},
	"cmd":   {91, 92},

	"space":     {32},
	"enter":     {13},
	"return":    {13},
	"esc":       {27},
	"escape":    {27},
	"tab":       {9},
	"backspace": {8},
	"delete":    {46},
	"del":       {46},
	"insert":    {45},
	"ins":       {45},
	"home":      {36},
	"end":       {35},
	"pageup":    {33},
	"pgup":      {33},
	"pagedown":  {34},
	"pgdn":      {34},
	"left":      {37},
	"up":        {38},
	"right":     {39},
	"down":      {40},
}

// keyNameToRawcodes maps a key name to its Windows virtual key codes.
func keyNameToRawcodes(keyName string) []uint16 {
	keyName = strings.ToLower(strings.TrimSpace(keyName))
	if codes, ok := specialRawcodes[keyName]; ok {
		return codes
	}
	if len(keyName) == 1 {
		switch ch := keyName[0]; {
		case ch >= 'a' && ch <= 'z':
			return []uint16{uint16(ch-'a') + 65}
		case ch >= '0' && ch <= '9':
			return []uint16{uint16(ch-'0') + 48}
		}
	}
	// F1-F24 are VK 112-135
	var n int
	if _, err := fmt.Sscanf(keyName, "f%d", &n); err == nil && n >= 1 && n <= 24 && keyName == fmt.Sprintf("f%d", n) {
		return []uint16{uint16(111 + n)}
	}
	return nil
}
