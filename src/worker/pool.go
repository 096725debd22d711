// Package worker runs blocking, thread-affine operations on a fixed set of
// OS-thread-pinned slots so they never execute on free-floating goroutines.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"screen-lookup/src/messages"
	"screen-lookup/src/metrics"
	"screen-lookup/src/queue"
)

// ResultCallback is invoked exactly once per admitted job, from the slot that ran
// it. It must not block; the orchestrator passes a closure that posts back into
// its own results queue.
type ResultCallback func(messages.Result)

// Operation is the blocking call a slot performs for one request.
type Operation interface {
	Perform(ctx context.Context, req messages.Request) (text string, entries []messages.Entry, err error)
}

// OperationFunc adapts a function to Operation.
type OperationFunc func(ctx context.Context, req messages.Request) (string, []messages.Entry, error)

func (f OperationFunc) Perform(ctx context.Context, req messages.Request) (string, []messages.Entry, error) {
	return f(ctx, req)
}

// ThreadInit prepares per-thread state (COM and the like). It runs once per
// slot thread before its first job; release runs when the slot exits.
type ThreadInit func() (release func(), err error)

// Policy decides what happens when every slot is busy.
type Policy int

const (
	// PolicyQueue holds up to QueueDepth jobs and rejects beyond that.
	PolicyQueue Policy = iota
	// PolicyReject rejects as soon as every slot is busy.
	PolicyReject
)

func (p Policy) String() string {
	if p == PolicyReject {
		return "reject"
	}
	return "queue"
}

// ParsePolicy accepts "queue" or "reject".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "queue":
		return PolicyQueue, nil
	case "reject":
		return PolicyReject, nil
	default:
		return PolicyQueue, fmt.Errorf("unknown pool policy %q", s)
	}
}

// Config sizes the pool.
type Config struct {
	Size       int // slots; defaults to NumCPU when <= 0
	QueueDepth int // jobs waiting beyond Size; ignored under PolicyReject
	Policy     Policy
	ThreadInit ThreadInit
}

// Option customizes a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pool) { p.logger = l.With().Str("component", "pool").Logger() }
}

// WithMetrics records pool activity on c.
func WithMetrics(c *metrics.Collectors) Option {
	return func(p *Pool) { p.metrics = c }
}

// Pool is a fixed-size worker pool with bounded admission.
type Pool struct {
	cfg     Config
	op      Operation
	logger  zerolog.Logger
	metrics *metrics.Collectors

	sem  chan struct{}
	jobs *queue.Queue[job]

	mu     sync.Mutex
	closed bool
	nextID int
	wg     sync.WaitGroup
}

type job struct {
	ctx      context.Context
	req      messages.Request
	cb       ResultCallback
	admitted time.Time
}

// slot is the per-thread state of one worker.
type slot struct {
	id      int
	inited  bool
	release func()
}

// New creates a worker pool and starts its slots.
func New(cfg Config, op Operation, opts ...Option) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = runtime.NumCPU()
	}
	if cfg.QueueDepth < 0 || cfg.Policy == PolicyReject {
		cfg.QueueDepth = 0
	}
	p := &Pool{
		cfg:    cfg,
		op:     op,
		logger: zerolog.Nop(),
		sem:    make(chan struct{}, cfg.Size+cfg.QueueDepth),
		jobs:   queue.New[job](0),
	}
	for _, o := range opts {
		o(p)
	}
	for i := 0; i < cfg.Size; i++ {
		p.spawn()
	}
	p.logger.Info().
		Int("size", cfg.Size).
		Int("queue_depth", cfg.QueueDepth).
		Stringer("policy", cfg.Policy).
		Msg("worker pool started")
	return p
}

// Config returns the effective configuration.
func (p *Pool) Config() Config { return p.cfg }

// Submit admits a job without blocking. It returns messages.ErrBusy when the
// pool is at capacity and messages.ErrChannelClosed after Close. On a nil
// error cb will be called exactly once.
func (p *Pool) Submit(ctx context.Context, req messages.Request, cb ResultCallback) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return messages.ErrChannelClosed
	}

	select {
	case p.sem <- struct{}{}:
	default:
		p.metrics.PoolRejected()
		p.logger.Debug().Stringer("token", req.Token).Msg("pool at capacity, rejecting")
		return messages.ErrBusy
	}

	if err := p.jobs.TrySend(job{ctx: ctx, req: req, cb: cb, admitted: time.Now()}); err != nil {
		<-p.sem
		return messages.ErrChannelClosed
	}
	p.metrics.PoolAdmitted()
	return nil
}

// Run submits req and waits for its result.
func (p *Pool) Run(ctx context.Context, req messages.Request) (messages.Result, error) {
	done := make(chan messages.Result, 1)
	if err := p.Submit(ctx, req, func(r messages.Result) { done <- r }); err != nil {
		return messages.Result{}, err
	}
	select {
	case r := <-done:
		return r, nil
	case <-ctx.Done():
		return messages.Result{}, ctx.Err()
	}
}

// Close stops admission, lets queued jobs drain and waits for every slot.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.jobs.Close()
	p.wg.Wait()
	p.logger.Info().Msg("worker pool stopped")
}

func (p *Pool) spawn() {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.mu.Unlock()

	p.wg.Add(1)
	go p.runSlot(&slot{id: id})
}

func (p *Pool) runSlot(s *slot) {
	defer p.wg.Done()
	runtime.LockOSThread()

	for {
		j, err := p.jobs.Recv(context.Background())
		if err != nil {
			p.releaseThread(s)
			runtime.UnlockOSThread()
			return
		}
		if p.execute(s, j) {
			// Leave the thread locked: the runtime terminates it when this
			// goroutine exits, so no state from the faulted call is reused.
			p.releaseThread(s)
			p.spawn()
			return
		}
	}
}

// execute runs one job and reports whether the slot faulted.
func (p *Pool) execute(s *slot, j job) (faulted bool) {
	var (
		res     messages.Result
		outcome = "success"
	)
	defer func() {
		if r := recover(); r != nil {
			faulted = true
			outcome = "fault"
			res = messages.Failure(j.req, fmt.Errorf("%w: slot %d: %v", messages.ErrPoolFault, s.id, r))
			p.logger.Error().
				Int("slot", s.id).
				Stringer("token", j.req.Token).
				Interface("panic", r).
				Msg("slot faulted, retiring thread")
		}
		p.metrics.PoolCompleted(outcome)
		<-p.sem
		j.cb(res)
	}()

	if err := j.ctx.Err(); err != nil {
		outcome = "cancelled"
		res = messages.Failure(j.req, fmt.Errorf("cancelled before start: %w", context.Cause(j.ctx)))
		return false
	}

	if !s.inited && p.cfg.ThreadInit != nil {
		release, err := p.cfg.ThreadInit()
		if err != nil {
			outcome = "failure"
			res = messages.Failure(j.req, fmt.Errorf("%w: thread init: %w", messages.ErrOperationFailure, err))
			return false
		}
		s.inited, s.release = true, release
		p.logger.Debug().Int("slot", s.id).Msg("thread initialized")
	}

	p.logger.Debug().
		Int("slot", s.id).
		Stringer("token", j.req.Token).
		Stringer("kind", j.req.Kind).
		Dur("queued", time.Since(j.admitted)).
		Msg("job started")

	text, entries, err := p.op.Perform(j.ctx, j.req)
	if err != nil {
		outcome = "failure"
		res = messages.Failure(j.req, fmt.Errorf("%w: %w", messages.ErrOperationFailure, err))
		return false
	}
	res = messages.Success(j.req, text, entries)
	return false
}

func (p *Pool) releaseThread(s *slot) {
	if s.release == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Int("slot", s.id).Interface("panic", r).Msg("thread release panicked")
		}
	}()
	s.release()
	s.release = nil
}
