package watcher

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"runtime"
	"sync"
	"time"

	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"screen-lookup/src/messages"
)

const trayTitle = "Screen Lookup"

// Tray shows a notification-area icon with Capture and Quit items. It is
// only used without the window, where the main thread runs the headless loop.
type Tray struct {
	region messages.Region
	onQuit func()
	logger zerolog.Logger
}

// NewTray creates the tray source. onQuit runs when Quit is chosen.
func NewTray(region messages.Region, onQuit func(), logger zerolog.Logger) *Tray {
	return &Tray{region: region, onQuit: onQuit, logger: logger.With().Str("component", "tray").Logger()}
}

func (t *Tray) Name() string { return "tray" }

type trayMenu struct {
	capture <-chan struct{}
	quit    <-chan struct{}
}

func (t *Tray) Run(ctx context.Context, sub Submitter) error {
	ready := make(chan trayMenu, 1)
	exited := make(chan struct{})
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		systray.Run(func() {
			systray.SetIcon(trayIcon())
			systray.SetTitle(trayTitle)
			systray.SetTooltip(trayTitle)
			mCapture := systray.AddMenuItem("Capture Screen", "Capture the screen")
			systray.AddSeparator()
			mQuit := systray.AddMenuItem("Quit", "Quit the application")
			ready <- trayMenu{capture: mCapture.ClickedCh, quit: mQuit.ClickedCh}
		}, func() { close(exited) })
	}()
	defer func() {
		systray.Quit()
		select {
		case <-exited:
		case <-time.After(2 * time.Second):
			t.logger.Warn().Msg("tray did not exit")
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case m := <-ready:
		t.logger.Info().Msg("tray ready")
		return t.loop(ctx, m, sub)
	}
}

func (t *Tray) loop(ctx context.Context, m trayMenu, sub Submitter) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.capture:
			_, _ = submit(ctx, sub, messages.Request{
				Kind:    messages.KindCapture,
				Payload: messages.Payload{Region: t.region},
				Source:  messages.SourceTray,
			}, t.logger)
		case <-m.quit:
			t.logger.Info().Msg("quit selected")
			if t.onQuit != nil {
				t.onQuit()
			}
			return nil
		}
	}
}

// trayIcon draws a dashed selection frame as a 16x16 PNG.
var trayIcon = sync.OnceValue(func() []byte {
	const size = 16
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	frame := color.NRGBA{R: 0x00, G: 0x78, B: 0xd4, A: 0xff}
	for i := 2; i < size-2; i++ {
		if i%3 == 2 {
			continue
		}
		img.Set(i, 2, frame)
		img.Set(i, size-3, frame)
		img.Set(2, i, frame)
		img.Set(size-3, i, frame)
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
})
