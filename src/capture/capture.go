// Package capture grabs screen regions as PNG. Calls block and must run on a
// worker slot thread.
package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/kbinani/screenshot"

	"screen-lookup/src/messages"
)

// Screen captures from the attached displays.
type Screen struct{}

// Grab captures region and encodes it as PNG. A zero region means the primary
// display.
func (Screen) Grab(region messages.Region) ([]byte, error) {
	if region.Empty() {
		b, err := PrimaryBounds()
		if err != nil {
			return nil, err
		}
		region = b
	} else if vb, err := VirtualBounds(); err == nil {
		region = Clamp(region, vb)
		if region.Empty() {
			return nil, fmt.Errorf("capture region lies outside every display")
		}
	}

	bounds := image.Rect(region.X, region.Y, region.X+region.Width, region.Y+region.Height)
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("failed to capture region: %w", err)
	}
	return EncodePNG(img)
}

// PrimaryBounds returns the bounds of display 0.
func PrimaryBounds() (messages.Region, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return messages.Region{}, fmt.Errorf("no active displays found")
	}
	b := screenshot.GetDisplayBounds(0)
	return messages.Region{X: b.Min.X, Y: b.Min.Y, Width: b.Dx(), Height: b.Dy()}, nil
}

// VirtualBounds returns the union of all active displays.
func VirtualBounds() (messages.Region, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return messages.Region{}, fmt.Errorf("no active displays found")
	}
	union := screenshot.GetDisplayBounds(0)
	for i := 1; i < n; i++ {
		union = union.Union(screenshot.GetDisplayBounds(i))
	}
	return messages.Region{X: union.Min.X, Y: union.Min.Y, Width: union.Dx(), Height: union.Dy()}, nil
}

// Clamp limits region to within bounds. The result may be empty.
func Clamp(region, bounds messages.Region) messages.Region {
	r := image.Rect(region.X, region.Y, region.X+region.Width, region.Y+region.Height)
	b := image.Rect(bounds.X, bounds.Y, bounds.X+bounds.Width, bounds.Y+bounds.Height)
	in := r.Intersect(b)
	return messages.Region{X: in.Min.X, Y: in.Min.Y, Width: in.Dx(), Height: in.Dy()}
}

// EncodePNG converts a captured image to PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image as PNG: %w", err)
	}
	return buf.Bytes(), nil
}
