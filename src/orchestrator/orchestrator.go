// Package orchestrator owns the correlation-token bookkeeping between request
// producers, the worker pool and the UI. It is the only place that decides
// whether a result is still live.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/utils/clock"

	"screen-lookup/src/messages"
	"screen-lookup/src/metrics"
	"screen-lookup/src/queue"
	"screen-lookup/src/worker"
)

const (
	StatusBusy        = "Busy, please retry"
	StatusNoTextFound = "No text found"

	defaultForwardYield = 250 * time.Millisecond
)

// Pool is the execution capability the orchestrator dispatches to.
type Pool interface {
	Submit(ctx context.Context, req messages.Request, cb worker.ResultCallback) error
}

// SupersedePolicy decides which pending operations a newly accepted one replaces.
type SupersedePolicy int

const (
	// SupersedeSameKind replaces every older live operation of the same kind.
	SupersedeSameKind SupersedePolicy = iota
	// SupersedeNone delivers every result.
	SupersedeNone
)

// Config tunes the orchestrator.
type Config struct {
	Supersede SupersedePolicy // default SupersedeSameKind
	// Timeout supersedes an operation that has not produced a result in time.
	// Zero disables timeouts.
	Timeout time.Duration
	// ForwardYield bounds how long ForwardToUI waits on a full bounded outbound
	// queue.
	ForwardYield time.Duration
	// OutboundSize bounds the outbound UIUpdate queue, 0 for unbounded.
	OutboundSize int
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l.With().Str("component", "orchestrator").Logger() }
}

// WithMetrics records orchestrator activity on c.
func WithMetrics(c *metrics.Collectors) Option {
	return func(o *Orchestrator) { o.metrics = c }
}

// WithClock replaces the clock used for timeouts and latency.
func WithClock(c clock.WithDelayedExecution) Option {
	return func(o *Orchestrator) { o.clock = c }
}

type pendingOp struct {
	token      messages.Token
	kind       messages.Kind
	source     messages.Source
	started    time.Time
	superseded bool
	timedOut   bool
	cancel     context.CancelCauseFunc
	timer      clock.Timer

	// dispatching is set while the op is being handed to the pool.
	dispatching bool
	// by is the newer op whose dispatch provisionally superseded this one.
	// While by.dispatching, a result is held and a deadline is deferred until
	// the pool's answer decides the outcome.
	by      *pendingOp
	held    *messages.Result
	expired bool
}

func (op *pendingOp) provisional() bool { return op.by != nil && op.by.dispatching }

// Orchestrator correlates requests with results and turns results into UI
// updates.
type Orchestrator struct {
	cfg     Config
	pool    Pool
	clock   clock.WithDelayedExecution
	logger  zerolog.Logger
	metrics *metrics.Collectors

	out     *queue.Queue[messages.UIUpdate]
	results *queue.Queue[messages.Result]

	mu      sync.Mutex
	next    messages.Token
	pending map[messages.Token]*pendingOp
	idle    bool
	closed  bool

	// fwdMu keeps each decide-then-forward step atomic relative to the others.
	fwdMu sync.Mutex
}

// New creates an orchestrator dispatching to pool.
func New(pool Pool, cfg Config, opts ...Option) *Orchestrator {
	if cfg.ForwardYield <= 0 {
		cfg.ForwardYield = defaultForwardYield
	}
	o := &Orchestrator{
		cfg:     cfg,
		pool:    pool,
		clock:   clock.RealClock{},
		logger:  zerolog.Nop(),
		out:     queue.New[messages.UIUpdate](cfg.OutboundSize),
		results: queue.New[messages.Result](0),
		pending: make(map[messages.Token]*pendingOp),
		idle:    true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Outbound is the async-to-sync queue of UI updates.
func (o *Orchestrator) Outbound() *queue.Queue[messages.UIUpdate] { return o.out }

// Live returns the number of pending operations that are not superseded.
func (o *Orchestrator) Live() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.liveLocked()
}

// Submit assigns a fresh token to req, records it pending and dispatches it to
// the pool without blocking. A rejected request returns its token together with
// messages.ErrBusy; no result will ever exist for that token.
//
// Older live operations of the same kind are marked superseded in the critical
// section that records the new one. The pool's answer confirms or restores them.
func (o *Orchestrator) Submit(ctx context.Context, req messages.Request) (messages.Token, error) {
	if req.Token != 0 {
		return 0, fmt.Errorf("%w: got %v", messages.ErrTokenPreassigned, req.Token)
	}

	jobCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		cancel(messages.ErrChannelClosed)
		return 0, messages.ErrChannelClosed
	}
	o.next++
	token := o.next
	req.Token = token
	op := &pendingOp{
		token:       token,
		kind:        req.Kind,
		source:      req.Source,
		started:     o.clock.Now(),
		cancel:      cancel,
		dispatching: true,
	}
	var marked []*pendingOp
	if o.cfg.Supersede == SupersedeSameKind {
		for _, other := range o.pending {
			if other.kind == req.Kind && !other.superseded {
				other.superseded = true
				other.by = op
				marked = append(marked, other)
			}
		}
	}
	wasIdle := o.idle
	o.idle = false
	if o.cfg.Timeout > 0 {
		op.timer = o.clock.AfterFunc(o.cfg.Timeout, func() { o.expire(token) })
	}
	o.pending[token] = op
	o.mu.Unlock()

	err := o.pool.Submit(jobCtx, req, o.post)

	o.fwdMu.Lock()
	defer o.fwdMu.Unlock()
	if err != nil {
		o.reject(op, marked, wasIdle, err)
		if errors.Is(err, messages.ErrBusy) {
			o.logger.Info().Stringer("token", token).Stringer("kind", req.Kind).Msg("pool busy, request rejected")
			return token, messages.ErrBusy
		}
		return token, err
	}
	o.accept(op, marked)

	o.logger.Debug().
		Stringer("token", token).
		Stringer("kind", req.Kind).
		Stringer("source", req.Source).
		Int("superseded", len(marked)).
		Msg("request dispatched")
	return token, nil
}

// accept confirms the supersede marks of a dispatched op. Callers hold fwdMu.
func (o *Orchestrator) accept(op *pendingOp, marked []*pendingOp) {
	o.mu.Lock()
	op.dispatching = false
	settled := false
	for _, other := range marked {
		if other.by != op {
			continue
		}
		other.by = nil
		if other.held != nil {
			delete(o.pending, other.token)
			o.stop(other, nil)
			o.metrics.Discarded(metrics.ReasonSuperseded)
			other.held = nil
			settled = true
			continue
		}
		o.stop(other, messages.ErrSuperseded)
		o.logger.Debug().Stringer("token", other.token).Stringer("by", op.token).Msg("superseded by newer request")
	}
	o.mu.Unlock()
	if settled {
		o.emit()
	}
}

// reject withdraws a dispatch the pool refused and restores the operations it
// had provisionally superseded. Callers hold fwdMu.
func (o *Orchestrator) reject(op *pendingOp, marked []*pendingOp, wasIdle bool, err error) {
	var updates []messages.UIUpdate
	if errors.Is(err, messages.ErrBusy) {
		updates = append(updates, messages.UIUpdate{Kind: messages.ShowStatus, Token: op.token, Text: StatusBusy, Source: op.source})
	}

	o.mu.Lock()
	op.dispatching = false
	delete(o.pending, op.token)
	o.stop(op, err)
	for _, other := range marked {
		if other.by != op {
			continue
		}
		other.by = nil
		other.superseded = false
		switch {
		case other.held != nil:
			delete(o.pending, other.token)
			o.stop(other, nil)
			updates = append(updates, toUpdate(other, *other.held))
			other.held = nil
		case other.expired:
			other.superseded = true
			other.timedOut = true
			other.cancel(messages.ErrTimeout)
			o.logger.Warn().Stringer("token", other.token).Dur("timeout", o.cfg.Timeout).Msg("operation timed out")
			updates = append(updates, timeoutUpdate(other))
		}
	}
	// Nothing settled through this dispatch, so an idle UI stays idle.
	if o.liveLocked() == 0 {
		o.idle = wasIdle
	}
	o.mu.Unlock()

	o.emit(updates...)
}

// Supersede marks token as superseded so its eventual result is discarded.
// It reports whether a live operation was affected.
func (o *Orchestrator) Supersede(token messages.Token) bool {
	o.fwdMu.Lock()
	defer o.fwdMu.Unlock()

	o.mu.Lock()
	op, ok := o.pending[token]
	if !ok || (op.superseded && !op.provisional()) {
		o.mu.Unlock()
		return false
	}
	op.superseded = true
	op.by = nil
	if op.held != nil {
		delete(o.pending, token)
		op.held = nil
		o.metrics.Discarded(metrics.ReasonSuperseded)
	}
	o.stop(op, messages.ErrSuperseded)
	o.mu.Unlock()

	o.emit()
	return true
}

// OnResult consumes a result. Unknown tokens yield messages.ErrProtocol and are
// discarded; superseded tokens are discarded silently; anything else becomes
// exactly one UI update.
func (o *Orchestrator) OnResult(r messages.Result) error {
	o.fwdMu.Lock()
	defer o.fwdMu.Unlock()

	o.mu.Lock()
	op, ok := o.pending[r.Token]
	if !ok {
		o.mu.Unlock()
		o.metrics.Discarded(metrics.ReasonProtocol)
		o.logger.Warn().Stringer("token", r.Token).Msg("result for unknown token discarded")
		return fmt.Errorf("%w: no pending operation for %v", messages.ErrProtocol, r.Token)
	}
	if op.provisional() {
		if op.held != nil {
			o.mu.Unlock()
			return fmt.Errorf("%w: duplicate result for %v", messages.ErrProtocol, r.Token)
		}
		op.held = &r
		o.mu.Unlock()
		return nil
	}
	delete(o.pending, r.Token)
	o.stop(op, nil)
	o.mu.Unlock()

	o.metrics.ObserveLatency(op.kind.String(), o.clock.Since(op.started))

	if op.superseded {
		reason := metrics.ReasonSuperseded
		if op.timedOut {
			reason = metrics.ReasonTimeout
		}
		o.metrics.Discarded(reason)
		o.logger.Debug().Stringer("token", r.Token).Str("reason", reason).Msg("result discarded")
		o.emit()
		return nil
	}

	o.emit(toUpdate(op, r))
	return nil
}

// ForwardToUI pushes u onto the outbound queue. It never blocks longer than the
// configured forward yield; messages.ErrChannelClosed means the UI side has
// shut down.
func (o *Orchestrator) ForwardToUI(u messages.UIUpdate) error {
	err := o.out.TrySend(u)
	if errors.Is(err, queue.ErrFull) {
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.ForwardYield)
		err = o.out.Send(ctx, u)
		cancel()
	}
	switch {
	case err == nil:
		o.metrics.Forwarded(u.Kind.String())
		return nil
	case errors.Is(err, queue.ErrClosed):
		return messages.ErrChannelClosed
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: outbound queue full at %d", messages.ErrBusy, o.out.Cap())
	default:
		return err
	}
}

// Run drains pool results in arrival order until Close.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		r, err := o.results.Recv(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				return nil
			}
			return err
		}
		if err := o.OnResult(r); err != nil {
			o.logger.Debug().Err(err).Msg("result rejected")
		}
	}
}

// Close stops accepting requests, cancels pending jobs and ends Run once the
// already-posted results are drained.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	for _, op := range o.pending {
		o.stop(op, messages.ErrChannelClosed)
	}
	o.mu.Unlock()

	o.results.Close()
	o.logger.Info().Msg("orchestrator closed")
}

// post is the pool callback. It runs on a worker slot and must not block.
func (o *Orchestrator) post(r messages.Result) {
	if err := o.results.TrySend(r); err != nil {
		o.logger.Debug().Stringer("token", r.Token).Msg("result arrived after close, dropped")
	}
}

func (o *Orchestrator) expire(token messages.Token) {
	o.fwdMu.Lock()
	defer o.fwdMu.Unlock()

	o.mu.Lock()
	op, ok := o.pending[token]
	if ok && op.provisional() {
		op.expired = true
	}
	if !ok || op.superseded {
		o.mu.Unlock()
		return
	}
	op.superseded = true
	op.timedOut = true
	op.cancel(messages.ErrTimeout)
	o.mu.Unlock()

	o.logger.Warn().Stringer("token", token).Dur("timeout", o.cfg.Timeout).Msg("operation timed out")
	o.emit(timeoutUpdate(op))
}

func timeoutUpdate(op *pendingOp) messages.UIUpdate {
	return messages.UIUpdate{
		Kind:   messages.ShowError,
		Token:  op.token,
		Text:   messages.ErrTimeout.Error(),
		Source: op.source,
	}
}

// emit forwards updates and then an Idle once nothing live remains. Callers
// hold fwdMu.
func (o *Orchestrator) emit(updates ...messages.UIUpdate) {
	for _, u := range updates {
		o.forward(u)
	}
	o.mu.Lock()
	settle := !o.idle && o.liveLocked() == 0
	if settle {
		o.idle = true
	}
	o.mu.Unlock()
	if settle {
		o.forward(messages.UIUpdate{Kind: messages.Idle})
	}
}

func (o *Orchestrator) forward(u messages.UIUpdate) {
	err := o.ForwardToUI(u)
	switch {
	case err == nil:
	case errors.Is(err, messages.ErrChannelClosed):
		o.logger.Info().Stringer("kind", u.Kind).Msg("ui side closed, update not delivered")
	default:
		o.logger.Warn().Err(err).Stringer("kind", u.Kind).Stringer("token", u.Token).Msg("update not delivered")
	}
}

// stop releases the timer and job context of op, recording cause on the
// context. It is safe to call under mu.
func (o *Orchestrator) stop(op *pendingOp, cause error) {
	if op.timer != nil {
		op.timer.Stop()
	}
	op.cancel(cause)
}

func (o *Orchestrator) liveLocked() int {
	n := 0
	for _, op := range o.pending {
		if !op.superseded {
			n++
		}
	}
	return n
}

func toUpdate(op *pendingOp, r messages.Result) messages.UIUpdate {
	u := messages.UIUpdate{Token: r.Token, Source: op.source}
	switch {
	case r.Failed():
		u.Kind = messages.ShowError
		u.Text = r.Err.Error()
	case strings.TrimSpace(r.Text) == "":
		u.Kind = messages.ShowStatus
		u.Text = StatusNoTextFound
	case r.Kind == messages.KindCreateCard:
		u.Kind = messages.ShowStatus
		u.Text = r.Text
	case r.Kind == messages.KindTranslate:
		u.Kind = messages.ShowTranslation
		u.Text = r.Text
	default:
		u.Kind = messages.ShowText
		u.Text = r.Text
		u.Entries = r.Entries
	}
	return u
}
