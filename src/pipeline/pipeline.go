// Package pipeline implements the blocking operation run by worker slots:
// capture a region, recognize its text, look the text up.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"screen-lookup/src/messages"
	"screen-lookup/src/ocr"
)

// Grabber captures a screen region as PNG bytes.
type Grabber interface {
	Grab(region messages.Region) ([]byte, error)
}

// Dictionary resolves text to entries.
type Dictionary interface {
	Lookup(text string) []messages.Entry
}

// CardMaker exports an entry as a flashcard.
type CardMaker interface {
	AddCard(ctx context.Context, e messages.Entry) (int64, error)
}

// Translator renders text in the target language.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// ErrDisabled is returned for a request kind whose backend is not configured.
var ErrDisabled = errors.New("feature disabled")

// Pipeline satisfies worker.Operation.
type Pipeline struct {
	grabber       Grabber
	recognizer    ocr.Recognizer
	dict          Dictionary
	cards         CardMaker
	translator    Translator
	defaultRegion messages.Region
	logger        zerolog.Logger
}

type Option func(*Pipeline)

// WithCards enables KindCreateCard.
func WithCards(c CardMaker) Option {
	return func(p *Pipeline) { p.cards = c }
}

// WithTranslator enables KindTranslate.
func WithTranslator(t Translator) Option {
	return func(p *Pipeline) { p.translator = t }
}

func New(g Grabber, r ocr.Recognizer, d Dictionary, defaultRegion messages.Region, logger zerolog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		grabber:       g,
		recognizer:    r,
		dict:          d,
		defaultRegion: defaultRegion,
		logger:        logger.With().Str("component", "pipeline").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Perform runs one request to completion on the calling slot thread.
func (p *Pipeline) Perform(ctx context.Context, req messages.Request) (string, []messages.Entry, error) {
	switch req.Kind {
	case messages.KindCapture:
		return p.capture(ctx, req)
	case messages.KindLookup:
		return req.Payload.Text, p.dict.Lookup(req.Payload.Text), nil
	case messages.KindCreateCard:
		return p.createCard(ctx, req.Payload.Card)
	case messages.KindTranslate:
		if p.translator == nil {
			return "", nil, fmt.Errorf("translate: %w", ErrDisabled)
		}
		text, err := p.translator.Translate(ctx, req.Payload.Text)
		if err != nil {
			return "", nil, fmt.Errorf("translate: %w", err)
		}
		return text, nil, nil
	default:
		return "", nil, fmt.Errorf("unsupported request kind %d", req.Kind)
	}
}

func (p *Pipeline) capture(ctx context.Context, req messages.Request) (string, []messages.Entry, error) {
	region := req.Payload.Region
	if region.Empty() {
		region = p.defaultRegion
	}

	start := time.Now()
	img, err := p.grabber.Grab(region)
	if err != nil {
		return "", nil, fmt.Errorf("capture: %w", err)
	}
	p.logger.Debug().Stringer("token", req.Token).Int("bytes", len(img)).
		Dur("took", time.Since(start)).Msg("region captured")

	// the capture may have outlived its request
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	text, err := p.recognizer.Recognize(ctx, img)
	if err != nil {
		return "", nil, fmt.Errorf("recognize: %w", err)
	}
	if text == "" {
		return "", nil, nil
	}
	return text, p.dict.Lookup(text), nil
}

// createCard reports the added card as its result text.
func (p *Pipeline) createCard(ctx context.Context, e messages.Entry) (string, []messages.Entry, error) {
	if p.cards == nil {
		return "", nil, fmt.Errorf("create card: %w", ErrDisabled)
	}
	id, err := p.cards.AddCard(ctx, e)
	if err != nil {
		return "", nil, fmt.Errorf("create card: %w", err)
	}
	p.logger.Debug().Int64("note_id", id).Str("term", e.Term).Msg("card created")
	return "Card added: " + e.Term, []messages.Entry{e}, nil
}
