// Package app assembles the configured components and runs them until the UI
// loop exits.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"screen-lookup/src/anki"
	"screen-lookup/src/bridge"
	"screen-lookup/src/capture"
	"screen-lookup/src/config"
	"screen-lookup/src/dictionary"
	"screen-lookup/src/messages"
	"screen-lookup/src/metrics"
	"screen-lookup/src/ocr"
	"screen-lookup/src/orchestrator"
	"screen-lookup/src/osthread"
	"screen-lookup/src/pipeline"
	"screen-lookup/src/translate"
	"screen-lookup/src/uihost"
	"screen-lookup/src/watcher"
	"screen-lookup/src/worker"
)

// UI is a toolkit with the view it drives. Bind, when set, receives the
// bridge so UI callbacks can submit intents.
type UI struct {
	Toolkit uihost.Toolkit
	View    uihost.Applier
	Bind    func(uihost.IntentSink)
}

// Options selects the UI and replaces collaborators in tests.
type Options struct {
	// UI defaults to a headless loop printing results to Out.
	UI  *UI
	Out io.Writer
	// Operation replaces the capture/recognize/lookup pipeline.
	Operation worker.Operation
}

// App is the running system: pool, orchestrator, bridge, UI host and watchers.
type App struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.Collectors

	pool     *worker.Pool
	orch     *orchestrator.Orchestrator
	host     *uihost.Host
	bridge   *bridge.Bridge
	watchers *watcher.Group
	resident *watcher.Resident
	headless bool
}

// New builds every component. It must run on the UI thread when a windowed
// toolkit is supplied.
func New(cfg *config.Config, opts Options, logger zerolog.Logger) (*App, error) {
	region, err := cfg.Region()
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		logger:  logger.With().Str("component", "app").Logger(),
		metrics: metrics.New(),
	}

	op := opts.Operation
	if op == nil {
		if op, err = NewPipeline(cfg, logger); err != nil {
			return nil, err
		}
	}
	if a.pool, err = NewPool(cfg, op, logger, a.metrics); err != nil {
		return nil, err
	}

	a.orch = orchestrator.New(a.pool, orchestrator.Config{
		Timeout:      cfg.OCRDeadline(),
		ForwardYield: cfg.ForwardYield(),
		OutboundSize: cfg.UpdateQueueSize,
	}, orchestrator.WithLogger(logger), orchestrator.WithMetrics(a.metrics))

	ui := opts.UI
	if ui == nil {
		a.headless = true
		ui = &UI{Toolkit: uihost.NewHeadless(logger), View: uihost.NewHeadlessView(opts.Out, logger)}
	}
	view := ui.View
	var autoTranslate *uihost.AutoTranslate
	if cfg.TranslateEnabled && cfg.TranslateAuto {
		autoTranslate = uihost.NewAutoTranslate(view, logger)
		view = autoTranslate
	}
	a.host = uihost.NewHost(ui.Toolkit, logger)
	a.bridge = bridge.New(bridge.Config{
		IntentQueueSize: cfg.IntentQueueSize,
		UpdateQueueSize: cfg.UpdateQueueSize,
	}, a.orch, a.host, view, logger)
	a.host.OnExit(a.bridge.CloseUI)
	if ui.Bind != nil {
		ui.Bind(a.bridge)
	}
	if autoTranslate != nil {
		autoTranslate.Bind(a.bridge)
	}

	a.resident = watcher.NewResident(watcher.ResidentAddr(cfg.ResidentPort), region, logger)
	a.watchers = watcher.NewGroup(logger, a.resident)
	if cfg.Hotkey != "" {
		a.watchers.Add(watcher.NewHotkey(cfg.Hotkey, region, logger))
	}
	if cfg.WatchClipboard {
		a.watchers.Add(watcher.NewClipboard(logger))
	}
	if cfg.ListenToWS {
		a.watchers.Add(watcher.NewWebSocket(cfg.WSURL, watcher.DefaultReconnectDelay, logger))
	}
	if cfg.TrayEnabled && a.headless {
		a.watchers.Add(watcher.NewTray(region, a.host.Quit, logger))
	}
	if cfg.AutoCapture {
		a.watchers.Add(watcher.NewAutoCapture(region, cfg.AutoCaptureInterval(), logger))
	}
	return a, nil
}

// NewPipeline builds the production operation from cfg.
func NewPipeline(cfg *config.Config, logger zerolog.Logger) (*pipeline.Pipeline, error) {
	region, err := cfg.Region()
	if err != nil {
		return nil, err
	}
	dict, err := dictionary.Load(cfg.DictionaryPath)
	if err != nil {
		return nil, err
	}
	logger.Info().Int("terms", dict.Len()).Str("path", cfg.DictionaryPath).Msg("dictionary loaded")
	var opts []pipeline.Option
	if cfg.AnkiEnabled {
		opts = append(opts, pipeline.WithCards(anki.New(anki.Config{
			URL:   cfg.AnkiURL,
			Deck:  cfg.AnkiDeck,
			Model: cfg.AnkiModel,
		}, logger)))
	}
	if cfg.TranslateEnabled {
		opts = append(opts, pipeline.WithTranslator(translate.NewDeepL(translate.Config{
			APIKey:   cfg.TranslateAPIKey,
			Endpoint: cfg.TranslateURL,
			From:     cfg.TranslateFrom,
			To:       cfg.TranslateTo,
		}, logger)))
	}
	return pipeline.New(capture.Screen{}, NewRecognizer(cfg, logger), dict, region, logger, opts...), nil
}

// NewRecognizer returns the OpenRouter client, or a recognizer that never
// finds text when no key or model is configured.
func NewRecognizer(cfg *config.Config, logger zerolog.Logger) ocr.Recognizer {
	if cfg.APIKey == "" || cfg.Model == "" {
		logger.Warn().Msg("OPENROUTER_API_KEY or MODEL not set, text recognition disabled")
		return ocr.Static{}
	}
	return ocr.NewOpenRouter(ocr.Config{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		Providers: cfg.Providers,
	}, logger)
}

// NewPool sizes a worker pool from cfg. Every slot initializes its thread
// with osthread.Init.
func NewPool(cfg *config.Config, op worker.Operation, logger zerolog.Logger, m *metrics.Collectors) (*worker.Pool, error) {
	policy, err := worker.ParsePolicy(cfg.PoolPolicy)
	if err != nil {
		return nil, err
	}
	return worker.New(worker.Config{
		Size:       cfg.PoolSize,
		QueueDepth: cfg.PoolQueueDepth,
		Policy:     policy,
		ThreadInit: osthread.Init,
	}, op, worker.WithLogger(logger), worker.WithMetrics(m)), nil
}

// Intents is the UI-side entry point.
func (a *App) Intents() uihost.IntentSink { return a.bridge }

// Submit injects a request on the reactor side, as watchers do.
func (a *App) Submit(ctx context.Context, req messages.Request) (messages.Token, error) {
	return a.orch.Submit(ctx, req)
}

// Quit asks the UI loop to exit; Run then shuts everything down.
func (a *App) Quit() { a.host.Quit() }

// ResidentAddr is the bound resident address once Run has started it.
func (a *App) ResidentAddr() string { return a.resident.Addr() }

// Metrics exposes the collectors.
func (a *App) Metrics() *metrics.Collectors { return a.metrics }

// Run blocks on the UI loop on the calling thread, which must be the
// dedicated UI thread. Cancelling ctx quits the loop. Run returns after every
// component has stopped, with the errors they reported.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var eg errgroup.Group
	// the orchestrator stops when the bridge closes it, after draining
	eg.Go(func() error { return a.orch.Run(context.WithoutCancel(ctx)) })
	eg.Go(func() error { return a.watchers.Run(ctx, a.orch) })
	if a.cfg.MetricsAddr != "" {
		eg.Go(func() error { return a.metrics.Serve(ctx, a.cfg.MetricsAddr, a.logger) })
	}
	a.bridge.Start(ctx)

	stop := context.AfterFunc(ctx, a.host.Quit)
	defer stop()

	a.logger.Info().
		Bool("headless", a.headless).
		Str("hotkey", a.cfg.Hotkey).
		Int("watchers", a.watchers.Len()).
		Msg("screen lookup running")
	a.host.Run()

	// The host's exit hook has closed the UI side; the bridge now drains and
	// closes the orchestrator.
	cancel()
	a.bridge.Wait()
	err := eg.Wait()
	a.pool.Close()
	a.logger.Info().Msg("screen lookup stopped")
	return err
}

// Delegate is a resident instance reachable over loopback.
type Delegate interface {
	Ping(ctx context.Context) bool
	Capture(ctx context.Context) (messages.Token, error)
}

// RunOnce asks a resident instance to capture. Without one it runs a single
// capture on a private pool and prints the outcome to opts.Out.
func RunOnce(ctx context.Context, cfg *config.Config, d Delegate, opts Options, logger zerolog.Logger) error {
	if d != nil && d.Ping(ctx) {
		tok, err := d.Capture(ctx)
		if err != nil {
			return fmt.Errorf("resident capture: %w", err)
		}
		logger.Info().Stringer("token", tok).Msg("delegated to resident")
		return nil
	}
	logger.Info().Msg("no resident detected, running standalone")

	op := opts.Operation
	if op == nil {
		var err error
		if op, err = NewPipeline(cfg, logger); err != nil {
			return err
		}
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	return runStandalone(ctx, cfg, op, out, logger)
}

func runStandalone(ctx context.Context, cfg *config.Config, op worker.Operation, out io.Writer, logger zerolog.Logger) (err error) {
	region, err := cfg.Region()
	if err != nil {
		return err
	}
	pool, err := NewPool(cfg, op, logger, nil)
	if err != nil {
		return err
	}
	defer pool.Close()

	if d := cfg.OCRDeadline(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	start := time.Now()
	res, err := pool.Run(ctx, messages.Request{
		Token:   1,
		Kind:    messages.KindCapture,
		Payload: messages.Payload{Region: region},
		Source:  messages.SourceManual,
	})
	if err != nil {
		return err
	}
	if res.Failed() {
		return res.Err
	}
	logger.Info().Dur("took", time.Since(start)).Int("chars", len(res.Text)).Msg("capture completed")

	if res.Text == "" {
		_, err = fmt.Fprintln(out, orchestrator.StatusNoTextFound)
		return err
	}
	_, werr := fmt.Fprintln(out, res.Text)
	err = multierr.Append(err, werr)
	if len(res.Entries) > 0 {
		_, werr = io.WriteString(out, uihost.FormatEntries(res.Entries))
		err = multierr.Append(err, werr)
	}
	return err
}
