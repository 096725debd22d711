// Package fyneui is the windowed toolkit and view.
package fyneui

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog"

	"screen-lookup/src/messages"
	"screen-lookup/src/uihost"
)

const appID = "io.github.screen-lookup"

// Toolkit is the windowed uihost.Toolkit. fyne.Do is its cross-thread invoke.
type Toolkit struct {
	app fyne.App
	win fyne.Window
}

// New creates the application and its main window. Call it on the UI
// thread before Run.
func New(title string) *Toolkit {
	a := app.NewWithID(appID)
	w := a.NewWindow(title)
	w.Resize(fyne.NewSize(520, 380))
	return &Toolkit{app: a, win: w}
}

// Window is the main window, for building the view.
func (f *Toolkit) Window() fyne.Window { return f.win }

func (f *Toolkit) Run() { f.win.ShowAndRun() }

func (f *Toolkit) Do(fn func()) { fyne.Do(fn) }

func (f *Toolkit) Quit() { fyne.Do(f.app.Quit) }

// View is the window content: capture, translate and add-card buttons, a
// lookup entry and labels for status, recognized text, translation and
// dictionary results.
type View struct {
	state  uihost.State
	sink   uihost.IntentSink
	region messages.Region
	logger zerolog.Logger

	status      *widget.Label
	text        *widget.Label
	translation *widget.Label
	results     *widget.Label
	entry       *widget.Entry
	cardBtn     *widget.Button
}

// NewView builds the widgets into win. Bind must be called before the
// loop starts delivering clicks.
func NewView(win fyne.Window, region messages.Region, logger zerolog.Logger) *View {
	v := &View{
		region:  region,
		logger:  logger.With().Str("component", "view").Logger(),
		status:      widget.NewLabel(uihost.StatusReady),
		text:        widget.NewLabel(""),
		translation: widget.NewLabel(""),
		results:     widget.NewLabel(""),
		entry:       widget.NewEntry(),
	}
	v.text.Wrapping = fyne.TextWrapWord
	v.translation.Wrapping = fyne.TextWrapWord
	v.results.Wrapping = fyne.TextWrapWord
	v.entry.SetPlaceHolder("Text to look up")
	v.entry.OnSubmitted = func(s string) { v.lookup(s) }

	captureBtn := widget.NewButton("Capture", v.capture)
	lookupBtn := widget.NewButton("Look up", func() { v.lookup(v.entry.Text) })
	translateBtn := widget.NewButton("Translate", v.translate)
	v.cardBtn = widget.NewButton("Add card", v.addCard)
	v.cardBtn.Disable()

	top := container.NewVBox(
		container.NewGridWithColumns(3, captureBtn, translateBtn, v.cardBtn),
		container.NewBorder(nil, nil, nil, lookupBtn, v.entry),
	)
	body := container.NewVScroll(container.NewVBox(v.text, v.translation, widget.NewSeparator(), v.results))
	win.SetContent(container.NewBorder(top, v.status, nil, nil, body))
	return v
}

// Bind sets the sink UI callbacks hand intents to.
func (v *View) Bind(sink uihost.IntentSink) { v.sink = sink }

func (v *View) capture() {
	v.submit(messages.Intent{Kind: messages.KindCapture, Region: v.region, Source: messages.SourceManual})
}

func (v *View) lookup(s string) {
	if s == "" {
		return
	}
	v.submit(messages.Intent{Kind: messages.KindLookup, Text: s, Source: messages.SourceManual})
}

func (v *View) translate() {
	if v.state.Text == "" {
		return
	}
	v.submit(messages.Intent{Kind: messages.KindTranslate, Text: v.state.Text, Source: messages.SourceManual})
}

// addCard exports the first dictionary hit.
func (v *View) addCard() {
	card, ok := v.state.Card()
	if !ok {
		return
	}
	v.submit(messages.Intent{Kind: messages.KindCreateCard, Card: card, Source: messages.SourceManual})
}

func (v *View) submit(in messages.Intent) {
	if v.sink == nil {
		return
	}
	v.state.Begin(in.Kind)
	if err := v.sink.Accept(in); err != nil {
		v.logger.Warn().Err(err).Msg("intent not accepted")
		v.state.Apply(messages.Status(messages.ErrBusy.Error()))
	}
	v.render()
}

// Apply runs on the UI thread via fyne.Do.
func (v *View) Apply(u messages.UIUpdate) {
	v.state.Apply(u)
	v.render()
}

func (v *View) render() {
	v.status.SetText(v.state.Status)
	v.text.SetText(v.state.Text)
	v.translation.SetText(v.state.Translation)
	v.results.SetText(uihost.FormatEntries(v.state.Entries))
	if _, ok := v.state.Card(); ok {
		v.cardBtn.Enable()
	} else {
		v.cardBtn.Disable()
	}
}
