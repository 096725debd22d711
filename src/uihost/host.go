// Package uihost owns the dedicated UI thread: it runs the toolkit loop and
// is the only way other threads get work onto it.
package uihost

import (
	"sync"

	"github.com/rs/zerolog"

	"screen-lookup/src/messages"
)

// Toolkit is a GUI run loop bound to the thread that calls Run.
type Toolkit interface {
	// Run blocks on the calling thread until the loop exits.
	Run()
	// Do schedules fn on the loop thread. Callable from any goroutine.
	Do(fn func())
	// Quit asks the loop to exit. Callable from any goroutine.
	Quit()
}

// Applier mutates UI state. Apply is only ever called on the UI thread.
type Applier interface {
	Apply(messages.UIUpdate)
}

// IntentSink is the single capability UI callbacks get: a synchronous,
// non-blocking hand-off of an Intent.
type IntentSink interface {
	Accept(messages.Intent) error
}

// Host runs a Toolkit and guards cross-thread invocation.
type Host struct {
	tk     Toolkit
	logger zerolog.Logger

	mu      sync.RWMutex
	stopped bool
	hooks   []func()
}

// NewHost wraps tk.
func NewHost(tk Toolkit, logger zerolog.Logger) *Host {
	return &Host{tk: tk, logger: logger.With().Str("component", "uihost").Logger()}
}

// OnExit registers fn to run after the loop exits, in registration order.
func (h *Host) OnExit(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, fn)
}

// Run blocks on the toolkit loop. It must be called from the dedicated UI
// thread (the main goroutine, locked in init).
func (h *Host) Run() {
	h.logger.Info().Msg("ui loop starting")
	h.tk.Run()

	h.mu.Lock()
	h.stopped = true
	hooks := h.hooks
	h.hooks = nil
	h.mu.Unlock()

	h.logger.Info().Int("hooks", len(hooks)).Msg("ui loop exited")
	for _, fn := range hooks {
		fn()
	}
}

// Invoke schedules fn on the UI thread. Calls from one goroutine run in call
// order. After the loop has exited it returns messages.ErrChannelClosed.
func (h *Host) Invoke(fn func()) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return messages.ErrChannelClosed
	}
	h.tk.Do(fn)
	return nil
}

// Quit asks the toolkit loop to exit.
func (h *Host) Quit() { h.tk.Quit() }

// Stopped reports whether the loop has exited.
func (h *Host) Stopped() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stopped
}
