package watcher

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/utils/clock"

	"screen-lookup/src/messages"
)

// DefaultAutoInterval is the pause between automatic captures.
const DefaultAutoInterval = 3 * time.Second

var ErrAutoRunning = errors.New("auto capture already running")

// AutoCapture re-captures Region on a fixed interval, starting immediately.
type AutoCapture struct {
	region   messages.Region
	interval time.Duration
	clock    clock.WithTicker
	running  atomic.Bool
	logger   zerolog.Logger
}

func NewAutoCapture(region messages.Region, interval time.Duration, logger zerolog.Logger) *AutoCapture {
	if interval <= 0 {
		interval = DefaultAutoInterval
	}
	return &AutoCapture{
		region:   region,
		interval: interval,
		clock:    clock.RealClock{},
		logger:   logger.With().Str("component", "auto").Logger(),
	}
}

func (a *AutoCapture) Name() string { return "auto" }

// Run fails with ErrAutoRunning while another Run of the same watcher is
// active.
func (a *AutoCapture) Run(ctx context.Context, sub Submitter) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAutoRunning
	}
	defer a.running.Store(false)

	ticker := a.clock.NewTicker(a.interval)
	defer ticker.Stop()
	a.logger.Info().Dur("interval", a.interval).Msg("auto capture started")

	for {
		if _, err := submit(ctx, sub, messages.Request{
			Kind:    messages.KindCapture,
			Payload: messages.Payload{Region: a.region},
			Source:  messages.SourceAuto,
		}, a.logger); errors.Is(err, messages.ErrChannelClosed) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
		}
	}
}
