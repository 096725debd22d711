package uihost

import (
	"fmt"
	"strings"

	"screen-lookup/src/messages"
)

const (
	StatusReady     = "Ready"
	StatusCapturing = "Capturing..."
	StatusLookingUp   = "Looking up..."
	StatusAddingCard  = "Adding card..."
	StatusTranslating = "Translating..."
)

// State is what a view shows. Both views derive their widgets from it.
type State struct {
	Status  string
	Text        string
	Entries     []messages.Entry
	Translation string
	Working     bool
}

// Begin marks an operation started from the UI.
func (s *State) Begin(kind messages.Kind) {
	s.Working = true
	switch kind {
	case messages.KindCapture:
		s.Status = StatusCapturing
	case messages.KindCreateCard:
		s.Status = StatusAddingCard
	case messages.KindTranslate:
		s.Status = StatusTranslating
	default:
		s.Status = StatusLookingUp
	}
}

// Apply folds one update into the state.
func (s *State) Apply(u messages.UIUpdate) {
	switch u.Kind {
	case messages.ShowText:
		s.Text = u.Text
		s.Entries = u.Entries
		s.Translation = ""
		s.Status = StatusReady
	case messages.ShowTranslation:
		s.Translation = u.Text
		s.Status = StatusReady
	case messages.ShowError:
		s.Status = "Failed: " + u.Text
	case messages.ShowStatus:
		s.Status = u.Text
	case messages.Idle:
		s.Working = false
		switch s.Status {
		case StatusCapturing, StatusLookingUp, StatusAddingCard, StatusTranslating, "":
			s.Status = StatusReady
		}
	}
}

// FormatEntries renders dictionary hits one per line.
func FormatEntries(entries []messages.Entry) string {
	var b strings.Builder
	for _, e := range entries {
		if e.Reading != "" {
			fmt.Fprintf(&b, "%s [%s] %s\n", e.Term, e.Reading, e.Definition)
		} else {
			fmt.Fprintf(&b, "%s %s\n", e.Term, e.Definition)
		}
	}
	return b.String()
}

// Card is the entry an "add card" action exports: the first dictionary hit.
func (s *State) Card() (messages.Entry, bool) {
	if len(s.Entries) == 0 {
		return messages.Entry{}, false
	}
	return s.Entries[0], true
}
