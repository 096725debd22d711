package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"screen-lookup/src/app"
	"screen-lookup/src/config"
	"screen-lookup/src/dictionary"
	"screen-lookup/src/logutil"
	"screen-lookup/src/messages"
	"screen-lookup/src/ocr"
	"screen-lookup/src/uihost"
)

const (
	maxFileSizeMB = 10
	maxFileSize   = maxFileSizeMB * 1024 * 1024
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

type cliOptions struct {
	filePath   string
	text       string
	dictPath   string
	jsonOutput bool
	verbose    bool
	apiKeyPath string
}

// env holds what a run needs beyond its options.
type env struct {
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
	recognizer func(cfg *config.Config, logger zerolog.Logger) ocr.Recognizer
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	e := env{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr, recognizer: app.NewRecognizer}
	return runWithArgs(os.Args, e)
}

func runWithArgs(args []string, e env) error {
	if len(args) == 0 {
		args = []string{"lookup"}
	}
	opts := &cliOptions{}
	cmd := newRootCmd(opts, e)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions, e env) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lookup",
		Short:         "Recognize text in a PNG and look it up in the dictionary",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (opts.filePath == "") == (opts.text == "") {
				return fmt.Errorf("exactly one of --file or --text is required")
			}
			return runWithOptions(cmd.Context(), *opts, e)
		},
	}

	cmd.Flags().StringVar(&opts.filePath, "file", "", "Path to PNG file (use '-' for stdin)")
	cmd.Flags().StringVar(&opts.text, "text", "", "Text to look up without recognition")
	cmd.Flags().StringVar(&opts.dictPath, "dict", "", "Dictionary TSV file (defaults to DICTIONARY_PATH)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	cmd.Flags().StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (highest precedence)")

	return cmd
}

func runWithOptions(ctx context.Context, opts cliOptions, e env) error {
	if ctx == nil {
		ctx = context.Background()
	}
	// stdout carries only the result
	logger := zerolog.Nop()
	if opts.verbose {
		logger, _ = logutil.New(logutil.Options{Level: "debug", Format: "console", Writer: e.stderr})
	}

	cfg, err := config.LoadWithOptions(config.LoadOptions{APIKeyPathOverride: opts.apiKeyPath})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Debug().Str("model", cfg.Model).Str("api_key_path", cfg.APIKeyPath).Msg("config loaded")

	dictPath := opts.dictPath
	if dictPath == "" {
		dictPath = cfg.DictionaryPath
	}
	dict, err := dictionary.Load(dictPath)
	if err != nil {
		return err
	}
	logger.Debug().Int("terms", dict.Len()).Str("path", dictPath).Msg("dictionary loaded")

	start := time.Now()
	text, source := opts.text, "text"
	if opts.filePath != "" {
		if cfg.APIKey == "" {
			return fmt.Errorf("OPENROUTER_API_KEY not found. Checked key file %s and OPENROUTER_API_KEY env var", cfg.APIKeyPath)
		}
		if cfg.Model == "" {
			return fmt.Errorf("MODEL is required")
		}
		imageData, err := readImage(opts.filePath, e.stdin)
		if err != nil {
			return err
		}
		logger.Debug().Int("bytes", len(imageData)).Msg("image read")
		if text, err = e.recognizer(cfg, logger).Recognize(ctx, imageData); err != nil {
			return fmt.Errorf("OCR failed: %w", err)
		}
		source = opts.filePath
	}
	entries := dict.Lookup(text)
	elapsed := time.Since(start)
	logger.Debug().Dur("took", elapsed).Int("entries", len(entries)).Msg("lookup completed")

	return outputResult(e.stdout, LookupResult{
		Text:      text,
		Source:    source,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Duration:  elapsed.Seconds(),
		CharCount: len([]rune(text)),
		Entries:   entries,
	}, opts.jsonOutput)
}

func readImage(filePath string, stdin io.Reader) ([]byte, error) {
	var (
		imageData []byte
		err       error
	)
	if filePath == "-" {
		imageData, err = io.ReadAll(io.LimitReader(stdin, maxFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		imageData, err = os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
		}
	}
	if err := validatePNG(imageData); err != nil {
		return nil, err
	}
	return imageData, nil
}

func validatePNG(data []byte) error {
	switch {
	case len(data) == 0:
		return fmt.Errorf("input file is empty")
	case len(data) > maxFileSize:
		return fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	case len(data) < len(pngMagic) || !bytes.Equal(data[:len(pngMagic)], pngMagic):
		return fmt.Errorf("input is not a valid PNG file (invalid magic number)")
	}
	return nil
}

type LookupResult struct {
	Text      string           `json:"text"`
	Source    string           `json:"source"`
	Timestamp string           `json:"timestamp"`
	Duration  float64          `json:"duration_seconds"`
	CharCount int              `json:"character_count"`
	Entries   []messages.Entry `json:"entries"`
}

func outputResult(w io.Writer, result LookupResult, jsonOutput bool) error {
	if jsonOutput {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(result); err != nil {
			return fmt.Errorf("failed to encode JSON output: %w", err)
		}
		return nil
	}
	if strings.TrimSpace(result.Text) == "" {
		_, err := fmt.Fprintln(w, "No text found")
		return err
	}
	_, err := fmt.Fprintf(w, "%s\n%s", result.Text, uihost.FormatEntries(result.Entries))
	return err
}
