package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"screen-lookup/src/app"
	"screen-lookup/src/capture"
	"screen-lookup/src/config"
	"screen-lookup/src/logutil"
	"screen-lookup/src/uihost/fyneui"
	"screen-lookup/src/watcher"
)

// The UI toolkit loop must own the main thread.
func init() { runtime.LockOSThread() }

type mainOptions struct {
	headless   bool
	runOnce    bool
	configPath string
	apiKeyPath string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return runWithArgs(normalizeLegacyArgs(os.Args))
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"screen-lookup"}
	}
	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "screen-lookup",
		Short:         "Capture screen text and look it up",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithOptions(cmd.Context(), *opts)
		},
	}

	cmd.Flags().BoolVar(&opts.headless, "headless", false, "Run without a window; results are printed")
	cmd.Flags().BoolVar(&opts.runOnce, "run-once", false, "Ask a running instance to capture, else capture once and print")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to a TOML config file")
	cmd.Flags().StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (highest precedence)")

	return cmd
}

// normalizeLegacyArgs maps single-dash long flags to their double-dash form.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	normalized := make([]string, len(args))
	copy(normalized, args)

	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range []string{"run-once", "headless", "config", "api-key-path"} {
			switch {
			case arg == "-"+name:
				normalized[i] = "--" + name
			case strings.HasPrefix(arg, "-"+name+"="):
				normalized[i] = "-" + arg
			}
		}
	}
	return normalized
}

func runWithOptions(ctx context.Context, opts mainOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.LoadWithOptions(config.LoadOptions{
		APIKeyPathOverride: opts.apiKeyPath,
		ConfigPath:         opts.configPath,
	})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logutil.Init(logutil.Options{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		FileOutput: cfg.EnableFileLogging,
	})
	defer logutil.Close()
	enableDPIAwareness()
	logger := *logutil.Get()
	logger.Info().
		Str("model", cfg.Model).
		Str("api_key", logutil.RedactKey(cfg.APIKey)).
		Str("api_key_path", cfg.APIKeyPath).
		Int("pool_size", cfg.PoolSize).
		Str("pool_policy", cfg.PoolPolicy).
		Msg("configuration loaded")
	if b, err := capture.VirtualBounds(); err == nil {
		logger.Info().Interface("virtual_screen", b).Msg("displays detected")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := watcher.NewResidentClient(cfg.ResidentPort)
	if opts.runOnce {
		return app.RunOnce(ctx, cfg, client, app.Options{Out: os.Stdout}, logger)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	alive := client.Ping(pingCtx)
	cancel()
	if alive {
		return fmt.Errorf("an instance is already running on port %d", cfg.ResidentPort)
	}

	appOpts := app.Options{Out: os.Stdout}
	if !opts.headless {
		tk := fyneui.New("Screen Lookup")
		region, _ := cfg.Region()
		view := fyneui.NewView(tk.Window(), region, logger)
		appOpts.UI = &app.UI{Toolkit: tk, View: view, Bind: view.Bind}
	}

	a, err := app.New(cfg, appOpts, logger)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
