// Package ocr turns captured images into text.
package ocr

import (
	"context"
	"errors"
	"strings"
)

// ErrNotConfigured is returned by a recognizer missing its key or model.
var ErrNotConfigured = errors.New("recognizer not configured")

// Recognizer extracts text from a PNG image. An image without text yields
// "" and a nil error.
type Recognizer interface {
	Recognize(ctx context.Context, png []byte) (string, error)
}

// Static returns a fixed text for every image. Used when no model is
// configured and in tests.
type Static struct {
	Text string
}

func (s Static) Recognize(ctx context.Context, _ []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.Text, nil
}

const noTextMarker = "NO_TEXT_FOUND"

func cleanExtractedText(text string) string {
	text = strings.TrimSpace(text)
	if text == noTextMarker || text == "</image>" {
		return ""
	}
	text = strings.TrimSuffix(text, "</image>")
	return strings.TrimSpace(text)
}
