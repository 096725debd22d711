package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"screen-lookup/src/messages"
)

func newTestAuto(fc *testingclock.FakeClock) *AutoCapture {
	a := NewAutoCapture(messages.Region{X: 1, Y: 2, Width: 30, Height: 40}, 0, zerolog.Nop())
	a.clock = fc
	return a
}

func TestAutoCaptureRepeatsOnInterval(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	a := newTestAuto(fc)
	assert.Equal(t, DefaultAutoInterval, a.interval)

	ctx, cancel := context.WithCancel(context.Background())
	sub := newRecordingSubmitter()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, sub) }()

	req := sub.next(t)
	assert.Equal(t, messages.KindCapture, req.Kind)
	assert.Equal(t, messages.SourceAuto, req.Source)
	assert.Equal(t, 30, req.Payload.Region.Width)
	assert.Zero(t, req.Token)

	require.Eventually(t, fc.HasWaiters, time.Second, 5*time.Millisecond)
	sub.none(t, 30*time.Millisecond)
	fc.Step(DefaultAutoInterval)
	sub.next(t)
	fc.Step(DefaultAutoInterval)
	sub.next(t)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestAutoCaptureRefusesSecondStart(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	a := newTestAuto(fc)

	ctx, cancel := context.WithCancel(context.Background())
	sub := newRecordingSubmitter()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, sub) }()
	sub.next(t)

	assert.ErrorIs(t, a.Run(ctx, sub), ErrAutoRunning)

	cancel()
	<-done
	// stopped, so it may start again
	ctx2, cancel2 := context.WithCancel(context.Background())
	go func() { done <- a.Run(ctx2, sub) }()
	sub.next(t)
	cancel2()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestAutoCaptureStopsWhenOrchestratorCloses(t *testing.T) {
	a := newTestAuto(testingclock.NewFakeClock(time.Now()))
	sub := newRecordingSubmitter()
	sub.fail(messages.ErrChannelClosed)
	assert.NoError(t, a.Run(context.Background(), sub))
}
