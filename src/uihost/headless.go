package uihost

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"screen-lookup/src/messages"
	"screen-lookup/src/queue"
)

// Headless is a Toolkit without a window: a loop over a FIFO of closures on
// whichever thread calls Run.
type Headless struct {
	tasks  *queue.Queue[func()]
	logger zerolog.Logger
}

// NewHeadless creates a headless toolkit.
func NewHeadless(logger zerolog.Logger) *Headless {
	return &Headless{tasks: queue.New[func()](0), logger: logger}
}

func (h *Headless) Run() {
	for {
		fn, err := h.tasks.Recv(context.Background())
		if err != nil {
			return
		}
		h.call(fn)
	}
}

func (h *Headless) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().Interface("panic", r).Msg("ui task panicked")
		}
	}()
	fn()
}

func (h *Headless) Do(fn func()) {
	if err := h.tasks.TrySend(fn); err != nil {
		h.logger.Debug().Msg("ui task after quit dropped")
	}
}

// Quit lets already queued tasks run, then ends Run.
func (h *Headless) Quit() { h.tasks.Close() }

// HeadlessView records every applied update and optionally prints results.
type HeadlessView struct {
	mu      sync.Mutex
	state   State
	updates []messages.UIUpdate
	out     io.Writer
	logger  zerolog.Logger
}

// NewHeadlessView creates a view; out may be nil.
func NewHeadlessView(out io.Writer, logger zerolog.Logger) *HeadlessView {
	return &HeadlessView{out: out, logger: logger.With().Str("component", "view").Logger()}
}

func (v *HeadlessView) Apply(u messages.UIUpdate) {
	v.mu.Lock()
	v.state.Apply(u)
	v.updates = append(v.updates, u)
	status := v.state.Status
	v.mu.Unlock()

	v.logger.Debug().Stringer("kind", u.Kind).Stringer("token", u.Token).Str("status", status).Msg("update applied")
	if v.out == nil {
		return
	}
	switch u.Kind {
	case messages.ShowText:
		fmt.Fprintln(v.out, u.Text)
		if len(u.Entries) > 0 {
			fmt.Fprintln(v.out, strings.TrimRight(FormatEntries(u.Entries), "\n"))
		}
	case messages.ShowTranslation:
		fmt.Fprintln(v.out, "=> "+u.Text)
	case messages.ShowError, messages.ShowStatus:
		fmt.Fprintln(v.out, status)
	}
}

// Updates returns a copy of everything applied so far.
func (v *HeadlessView) Updates() []messages.UIUpdate {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]messages.UIUpdate(nil), v.updates...)
}

// State returns the current view state.
func (v *HeadlessView) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}
