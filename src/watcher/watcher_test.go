package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"screen-lookup/src/messages"
)

type recordingSubmitter struct {
	mu   sync.Mutex
	last messages.Token
	err  error
	reqs chan messages.Request
}

func newRecordingSubmitter() *recordingSubmitter {
	return &recordingSubmitter{reqs: make(chan messages.Request, 64)}
}

func (r *recordingSubmitter) Submit(_ context.Context, req messages.Request) (messages.Token, error) {
	r.mu.Lock()
	r.last++
	tok, err := r.last, r.err
	r.mu.Unlock()
	r.reqs <- req
	return tok, err
}

func (r *recordingSubmitter) fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *recordingSubmitter) next(t *testing.T) messages.Request {
	t.Helper()
	select {
	case req := <-r.reqs:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("no request submitted")
		return messages.Request{}
	}
}

func (r *recordingSubmitter) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case req := <-r.reqs:
		t.Fatalf("unexpected request %+v", req)
	case <-time.After(wait):
	}
}

type funcWatcher struct {
	name string
	run  func(ctx context.Context, sub Submitter) error
}

func (f funcWatcher) Name() string { return f.name }

func (f funcWatcher) Run(ctx context.Context, sub Submitter) error { return f.run(ctx, sub) }

func TestGroupCollectsFailuresAndIgnoresCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := NewGroup(zerolog.Nop(),
		funcWatcher{"broken", func(context.Context, Submitter) error { return errors.New("no device") }},
		funcWatcher{"also-broken", func(context.Context, Submitter) error { return errors.New("no display") }},
	)
	g.Add(funcWatcher{"steady", func(ctx context.Context, _ Submitter) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	assert.Equal(t, 3, g.Len())

	done := make(chan error, 1)
	go func() { done <- g.Run(ctx, newRecordingSubmitter()) }()

	// failures do not stop the steady watcher
	select {
	case <-done:
		t.Fatal("group returned before cancel")
	case <-time.After(50 * time.Millisecond):
	}
	cancel()

	err := <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: no device")
	assert.Contains(t, err.Error(), "also-broken: no display")
	assert.NotContains(t, err.Error(), "steady")
}

func TestGroupEmpty(t *testing.T) {
	assert.NoError(t, NewGroup(zerolog.Nop()).Run(context.Background(), newRecordingSubmitter()))
}

func TestGroupErrorsKeepTheirCause(t *testing.T) {
	errNoDevice := errors.New("no device")
	g := NewGroup(zerolog.Nop(),
		funcWatcher{"hotkey", func(context.Context, Submitter) error { return errNoDevice }},
		funcWatcher{"clipboard", func(context.Context, Submitter) error { return context.Canceled }},
		funcWatcher{"tray", func(context.Context, Submitter) error { return nil }},
	)

	err := g.Run(context.Background(), newRecordingSubmitter())
	require.ErrorIs(t, err, errNoDevice)
	assert.Len(t, multierr.Errors(err), 1)
	assert.EqualError(t, err, "hotkey: no device")
}

func TestGroupOnlyCancelledIsNil(t *testing.T) {
	g := NewGroup(zerolog.Nop(),
		funcWatcher{"a", func(context.Context, Submitter) error { return context.Canceled }},
		funcWatcher{"b", func(context.Context, Submitter) error { return nil }},
	)
	assert.NoError(t, g.Run(context.Background(), newRecordingSubmitter()))
}
