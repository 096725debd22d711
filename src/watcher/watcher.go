// Package watcher wraps external event sources that inject token-less
// requests into the orchestrator.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"screen-lookup/src/messages"
)

// Submitter is the orchestrator entry point. Tokens are always assigned
// by the submitter.
type Submitter interface {
	Submit(ctx context.Context, req messages.Request) (messages.Token, error)
}

// Watcher is one event source. Run blocks until ctx is done or the source
// fails for good.
type Watcher interface {
	Name() string
	Run(ctx context.Context, sub Submitter) error
}

// Group runs watchers side by side. A failing watcher does not stop the
// others.
type Group struct {
	watchers []Watcher
	logger   zerolog.Logger
}

func NewGroup(logger zerolog.Logger, watchers ...Watcher) *Group {
	return &Group{watchers: watchers, logger: logger.With().Str("component", "watcher").Logger()}
}

// Add registers another watcher. Must be called before Run.
func (g *Group) Add(w Watcher) { g.watchers = append(g.watchers, w) }

func (g *Group) Len() int { return len(g.watchers) }

// Run blocks until every watcher has returned and reports all failures.
// Cancellation is not a failure. The group has no shared context, so one
// failing watcher leaves the others running.
func (g *Group) Run(ctx context.Context, sub Submitter) error {
	var (
		eg   errgroup.Group
		mu   sync.Mutex
		errs error
	)
	for _, w := range g.watchers {
		eg.Go(func() error {
			g.logger.Info().Str("watcher", w.Name()).Msg("watcher started")
			err := w.Run(ctx, sub)
			if err == nil || errors.Is(err, context.Canceled) {
				g.logger.Info().Str("watcher", w.Name()).Msg("watcher finished")
				return nil
			}
			g.logger.Error().Err(err).Str("watcher", w.Name()).Msg("watcher stopped")
			err = fmt.Errorf("%s: %w", w.Name(), err)
			mu.Lock()
			errs = multierr.Append(errs, err)
			mu.Unlock()
			return err
		})
	}
	// Wait yields the first failure, which errs already holds.
	if err := eg.Wait(); err != nil {
		return errs
	}
	return nil
}

// submit hands req to sub and logs the outcome the way every source does.
func submit(ctx context.Context, sub Submitter, req messages.Request, logger zerolog.Logger) (messages.Token, error) {
	tok, err := sub.Submit(ctx, req)
	switch {
	case err == nil:
		logger.Debug().Stringer("token", tok).Stringer("kind", req.Kind).Stringer("source", req.Source).Msg("request submitted")
	case errors.Is(err, messages.ErrBusy):
		logger.Info().Stringer("token", tok).Stringer("kind", req.Kind).Msg("request rejected, busy")
	case errors.Is(err, messages.ErrChannelClosed):
		logger.Info().Msg("orchestrator closed, request dropped")
	default:
		logger.Warn().Err(err).Stringer("kind", req.Kind).Msg("submit failed")
	}
	return tok, err
}
