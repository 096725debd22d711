package watcher

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screen-lookup/src/messages"
)

func startResident(t *testing.T, sub Submitter) *ResidentClient {
	t.Helper()
	r := NewResident(ResidentAddr(0), messages.Region{Width: 10, Height: 10}, zerolog.Nop())
	if err := r.Listen(); err != nil {
		t.Skipf("loopback TCP unavailable in this environment: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, sub) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("resident did not stop")
		}
	})
	return &ResidentClient{Addr: r.Addr(), Timeout: 2 * time.Second}
}

func TestResidentPing(t *testing.T) {
	c := startResident(t, newRecordingSubmitter())
	assert.True(t, c.Ping(context.Background()))
}

func TestResidentCaptureAndLookup(t *testing.T) {
	sub := newRecordingSubmitter()
	c := startResident(t, sub)

	tok, err := c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, messages.Token(1), tok)
	req := sub.next(t)
	assert.Equal(t, messages.KindCapture, req.Kind)
	assert.Equal(t, messages.SourceResident, req.Source)
	assert.Equal(t, messages.Region{Width: 10, Height: 10}, req.Payload.Region)

	tok, err = c.Lookup(context.Background(), "猫\nと 犬")
	require.NoError(t, err)
	assert.Equal(t, messages.Token(2), tok)
	assert.Equal(t, "猫 と 犬", sub.next(t).Payload.Text)
}

func TestResidentBusyAndErrors(t *testing.T) {
	sub := newRecordingSubmitter()
	c := startResident(t, sub)

	sub.fail(messages.ErrBusy)
	_, err := c.Capture(context.Background())
	assert.ErrorIs(t, err, messages.ErrBusy)

	sub.fail(errors.New("closed for the day"))
	_, err = c.Capture(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed for the day")

	_, err = c.Lookup(context.Background(), "   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty lookup text")

	_, err = c.request(context.Background(), "DANCE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestResidentClientNoResident(t *testing.T) {
	lis, err := net.Listen("tcp", ResidentAddr(0))
	if err != nil {
		t.Skipf("loopback TCP unavailable in this environment: %v", err)
	}
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	c := &ResidentClient{Addr: addr, Timeout: 200 * time.Millisecond}
	assert.False(t, c.Ping(context.Background()))
	_, err = c.Capture(context.Background())
	assert.Error(t, err)
}
