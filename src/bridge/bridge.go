// Package bridge connects the synchronous UI thread with the asynchronous
// reactor. It owns the UI-side queue pair and the three forwarders between
// them; nothing else crosses the boundary.
package bridge

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"screen-lookup/src/messages"
	"screen-lookup/src/queue"
	"screen-lookup/src/uihost"
)

// Submitter is the orchestrator capability used by the inbound forwarder.
type Submitter interface {
	Submit(ctx context.Context, req messages.Request) (messages.Token, error)
}

// Upstream is the orchestrator side of the bridge.
type Upstream interface {
	Submitter
	Outbound() *queue.Queue[messages.UIUpdate]
	Close()
}

// Invoker schedules work on the UI thread.
type Invoker interface {
	Invoke(fn func()) error
}

// Config sizes the UI-side queues. Zero means unbounded.
type Config struct {
	IntentQueueSize int
	UpdateQueueSize int
}

// Bridge is the sync/async channel bridge.
type Bridge struct {
	up      Upstream
	invoker Invoker
	applier uihost.Applier
	logger  zerolog.Logger

	intents *queue.Queue[messages.Intent]
	updates *queue.Queue[messages.UIUpdate]

	uiClosed  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a bridge. Start launches its forwarders.
func New(cfg Config, up Upstream, invoker Invoker, applier uihost.Applier, logger zerolog.Logger) *Bridge {
	return &Bridge{
		up:      up,
		invoker: invoker,
		applier: applier,
		logger:  logger.With().Str("component", "bridge").Logger(),
		intents: queue.New[messages.Intent](cfg.IntentQueueSize),
		updates: queue.New[messages.UIUpdate](cfg.UpdateQueueSize),

		uiClosed: make(chan struct{}),
	}
}

// Accept hands an Intent from the UI thread to the reactor. It never blocks;
// a full intent queue yields messages.ErrBusy.
func (b *Bridge) Accept(in messages.Intent) error {
	switch err := b.intents.TrySend(in); {
	case err == nil:
		return nil
	case errors.Is(err, queue.ErrFull):
		return messages.ErrBusy
	default:
		return messages.ErrChannelClosed
	}
}

// Start launches the inbound and outbound forwarders and the invoker thread.
func (b *Bridge) Start(ctx context.Context) {
	b.wg.Add(3)
	go b.inbound(ctx)
	go b.outbound(ctx)
	go b.invoke(ctx)
}

// CloseUI closes both UI-side queues. The host calls it when its loop exits.
func (b *Bridge) CloseUI() {
	b.closeOnce.Do(func() {
		b.intents.Close()
		b.updates.Close()
		close(b.uiClosed)
	})
}

// Wait blocks until all forwarders have exited.
func (b *Bridge) Wait() { b.wg.Wait() }

// inbound: intents -> orchestrator. Closing the intent queue closes the
// orchestrator.
func (b *Bridge) inbound(ctx context.Context) {
	defer b.wg.Done()
	defer b.up.Close()

	for {
		in, err := b.intents.Recv(ctx)
		if err != nil {
			b.logger.Debug().Err(err).Msg("inbound forwarder exiting")
			return
		}
		tok, err := b.up.Submit(ctx, messages.RequestFromIntent(in))
		switch {
		case err == nil:
		case errors.Is(err, messages.ErrBusy):
			// the orchestrator already told the UI
		case errors.Is(err, messages.ErrChannelClosed):
			return
		default:
			b.logger.Warn().Err(err).Stringer("kind", in.Kind).Msg("intent not submitted")
		}
		b.logger.Trace().Stringer("token", tok).Stringer("kind", in.Kind).Msg("intent forwarded")
	}
}

// outbound: orchestrator updates -> UI-side update queue. Exiting closes the
// orchestrator's outbound queue so it stops forwarding.
func (b *Bridge) outbound(ctx context.Context) {
	defer b.wg.Done()
	src := b.up.Outbound()
	defer src.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-b.uiClosed:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		u, err := src.Recv(ctx)
		if err != nil {
			b.updates.Close()
			b.logger.Debug().Err(err).Msg("outbound forwarder exiting")
			return
		}
		if err := b.updates.Send(ctx, u); err != nil {
			b.logger.Debug().Err(err).Msg("outbound forwarder exiting, ui side closed")
			return
		}
	}
}

// invoke runs on its own locked thread and applies each update through the
// host's cross-thread invoke, preserving queue order.
func (b *Bridge) invoke(ctx context.Context) {
	defer b.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		u, err := b.updates.Recv(ctx)
		if err != nil {
			b.logger.Debug().Err(err).Msg("invoker exiting")
			return
		}
		if err := b.invoker.Invoke(func() { b.applier.Apply(u) }); err != nil {
			b.updates.Close()
			b.logger.Debug().Err(err).Msg("invoker exiting, ui loop stopped")
			return
		}
	}
}
