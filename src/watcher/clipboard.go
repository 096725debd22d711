package watcher

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.design/x/clipboard"

	"screen-lookup/src/messages"
)

// MaxClipboardRunes bounds the text submitted from one clipboard change.
const MaxClipboardRunes = 200

var initOnce = sync.OnceValue(clipboard.Init)

// Clipboard submits a lookup for every new non-empty text copied.
type Clipboard struct {
	logger zerolog.Logger
	watch  func(ctx context.Context) (<-chan []byte, error)
}

func NewClipboard(logger zerolog.Logger) *Clipboard {
	return &Clipboard{
		logger: logger.With().Str("component", "clipboard").Logger(),
		watch: func(ctx context.Context) (<-chan []byte, error) {
			if err := initOnce(); err != nil {
				return nil, err
			}
			return clipboard.Watch(ctx, clipboard.FmtText), nil
		},
	}
}

func (c *Clipboard) Name() string { return "clipboard" }

func (c *Clipboard) Run(ctx context.Context, sub Submitter) error {
	changes, err := c.watch(ctx)
	if err != nil {
		return err
	}

	var last string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-changes:
			if !ok {
				return ctx.Err()
			}
			text := clipText(data)
			if text == "" || text == last {
				continue
			}
			last = text
			_, _ = submit(ctx, sub, messages.Request{
				Kind:    messages.KindLookup,
				Payload: messages.Payload{Text: text},
				Source:  messages.SourceClipboard,
			}, c.logger)
		}
	}
}

func clipText(data []byte) string {
	if !utf8.Valid(data) {
		return ""
	}
	text := strings.TrimSpace(string(data))
	if utf8.RuneCountInString(text) > MaxClipboardRunes {
		text = string([]rune(text)[:MaxClipboardRunes])
	}
	return text
}
