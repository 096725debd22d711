package uihost

import (
	"strings"

	"github.com/rs/zerolog"

	"screen-lookup/src/messages"
)

// AutoTranslate wraps a view and asks for a translation of every shown text.
// The follow-up intent is accepted on the UI thread, like a click.
type AutoTranslate struct {
	next   Applier
	sink   IntentSink
	logger zerolog.Logger
}

func NewAutoTranslate(next Applier, logger zerolog.Logger) *AutoTranslate {
	return &AutoTranslate{next: next, logger: logger.With().Str("component", "view").Logger()}
}

// Bind sets where translate intents go. Until then texts are only shown.
func (a *AutoTranslate) Bind(sink IntentSink) { a.sink = sink }

func (a *AutoTranslate) Apply(u messages.UIUpdate) {
	a.next.Apply(u)
	if u.Kind != messages.ShowText || a.sink == nil || strings.TrimSpace(u.Text) == "" {
		return
	}
	if err := a.sink.Accept(messages.Intent{Kind: messages.KindTranslate, Text: u.Text, Source: u.Source}); err != nil {
		a.logger.Warn().Err(err).Stringer("token", u.Token).Msg("translation not requested")
	}
}
