package capture

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/kbinani/screenshot"

	"screen-lookup/src/messages"
)

func TestEncodePNG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.SetRGBA(1, 1, color.RGBA{R: 200, A: 255})

	data, err := EncodePNG(img)
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bounds().Dx() != 4 || decoded.Bounds().Dy() != 3 {
		t.Errorf("Unexpected bounds %v", decoded.Bounds())
	}
	r, _, _, _ := decoded.At(1, 1).RGBA()
	if r>>8 != 200 {
		t.Errorf("Expected red 200, got %d", r>>8)
	}
}

func TestClamp(t *testing.T) {
	bounds := messages.Region{Width: 1920, Height: 1080}
	got := Clamp(messages.Region{X: 1800, Y: 1000, Width: 400, Height: 400}, bounds)
	want := messages.Region{X: 1800, Y: 1000, Width: 120, Height: 80}
	if got != want {
		t.Errorf("Clamp = %+v, want %+v", got, want)
	}
	if !Clamp(messages.Region{X: 3000, Width: 10, Height: 10}, bounds).Empty() {
		t.Error("Expected empty region outside bounds")
	}
}

func TestGrabPrimaryDisplay(t *testing.T) {
	if screenshot.NumActiveDisplays() == 0 {
		t.Skip("Skipping capture test: no active displays")
	}
	data, err := Screen{}.Grab(messages.Region{X: 0, Y: 0, Width: 16, Height: 16})
	if err != nil {
		t.Fatalf("Grab: %v", err)
	}
	if len(data) == 0 {
		t.Error("Expected PNG data")
	}
}
