package messages

import "fmt"

// Message is the base interface for everything that crosses a domain boundary.
type Message interface {
	Type() string
}

// MessageType constants for type identification
const (
	TypeIntent   = "Intent"
	TypeRequest  = "Request"
	TypeResult   = "Result"
	TypeUIUpdate = "UIUpdate"
)

// Token correlates a Request with its eventual Result. Zero means unassigned.
type Token uint64

func (t Token) String() string { return fmt.Sprintf("T%d", uint64(t)) }

// Region represents a screen region to capture
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Empty reports whether the region has no area.
func (r Region) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Source identifies who produced a request.
type Source int

const (
	SourceManual Source = iota
	SourceHotkey
	SourceClipboard
	SourceWebSocket
	SourceResident
	SourceTray
	SourceAuto
)

func (s Source) String() string {
	switch s {
	case SourceManual:
		return "manual"
	case SourceHotkey:
		return "hotkey"
	case SourceClipboard:
		return "clipboard"
	case SourceWebSocket:
		return "websocket"
	case SourceResident:
		return "resident"
	case SourceTray:
		return "tray"
	case SourceAuto:
		return "auto"
	default:
		return "unknown"
	}
}

// Kind is the operation a Request asks for.
type Kind int

const (
	KindCapture Kind = iota + 1
	KindLookup
	KindCreateCard
	KindTranslate
)

func (k Kind) String() string {
	switch k {
	case KindCapture:
		return "capture"
	case KindLookup:
		return "lookup"
	case KindCreateCard:
		return "create-card"
	case KindTranslate:
		return "translate"
	default:
		return "unknown"
	}
}

// Intent - produced on the UI thread when the user asks for something
type Intent struct {
	Kind   Kind
	Region Region // capture target, zero means "configured default"
	Text   string // lookup or translate text
	Card   Entry  // entry to export as a flashcard
	Source Source
}

func (m Intent) Type() string { return TypeIntent }

// Payload carries the operation input of a Request.
type Payload struct {
	Region Region
	Text   string
	Card   Entry
}

// Request - async-domain form of an Intent or an external event.
// Token is assigned by the orchestrator; producers leave it zero.
type Request struct {
	Token   Token
	Kind    Kind
	Payload Payload
	Source  Source
}

func (m Request) Type() string { return TypeRequest }

// RequestFromIntent re-wraps an Intent without assigning a token.
func RequestFromIntent(in Intent) Request {
	return Request{
		Kind:    in.Kind,
		Payload: Payload{Region: in.Region, Text: in.Text, Card: in.Card},
		Source:  in.Source,
	}
}

// Entry is one dictionary hit.
type Entry struct {
	Term       string `json:"term"`
	Reading    string `json:"reading,omitempty"`
	Definition string `json:"definition"`
}

// Result - outcome of a blocking operation. Err == nil means success.
type Result struct {
	Token   Token
	Kind    Kind
	Text    string
	Entries []Entry
	Err     error
}

func (m Result) Type() string { return TypeResult }

// Failed reports whether the result carries a failure reason.
func (m Result) Failed() bool { return m.Err != nil }

// Success builds a successful Result for req.
func Success(req Request, text string, entries []Entry) Result {
	return Result{Token: req.Token, Kind: req.Kind, Text: text, Entries: entries}
}

// Failure builds a failed Result for req.
func Failure(req Request, err error) Result {
	return Result{Token: req.Token, Kind: req.Kind, Err: err}
}

// UpdateKind is the UI mutation a UIUpdate describes.
type UpdateKind int

const (
	ShowText UpdateKind = iota + 1
	ShowError
	ShowStatus
	ShowTranslation
	Idle
)

func (k UpdateKind) String() string {
	switch k {
	case ShowText:
		return "show-text"
	case ShowError:
		return "show-error"
	case ShowStatus:
		return "show-status"
	case ShowTranslation:
		return "show-translation"
	case Idle:
		return "idle"
	default:
		return "unknown"
	}
}

// UIUpdate - a UI state mutation, applied on the UI thread exactly once
type UIUpdate struct {
	Kind    UpdateKind
	Token   Token
	Text    string
	Entries []Entry
	Source  Source
}

func (m UIUpdate) Type() string { return TypeUIUpdate }

// Status builds a transient status update.
func Status(text string) UIUpdate {
	return UIUpdate{Kind: ShowStatus, Text: text}
}
