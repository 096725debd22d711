package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/multierr"

	"screen-lookup/src/anki"
	"screen-lookup/src/messages"
	"screen-lookup/src/translate"
)

const (
	DefaultAPIKeyPath = "/run/secrets/api_keys/openrouter"
	APIKeyPathEnvVar  = "OPENROUTER_API_KEY_FILE"
	EnvPathEnvVar     = "SCREEN_LOOKUP"
	ConfigFileName    = "screen-lookup.toml"

	DefaultHotkey       = "Ctrl+Shift+S"
	DefaultResidentPort = 49500
	DefaultWSURL        = "ws://localhost:8080"

	DefaultAutoCaptureIntervalSec = 3
)

type LoadOptions struct {
	APIKeyPathOverride string
	ConfigPath         string // explicit TOML file; replaces the default search
}

type Config struct {
	APIKey     string   `koanf:"-"`
	APIKeyPath string   `koanf:"api_key_path"`
	Model      string   `koanf:"model"`
	Providers  []string `koanf:"providers"`

	EnableFileLogging bool   `koanf:"enable_file_logging"`
	LogLevel          string `koanf:"log_level"`
	LogFormat         string `koanf:"log_format"` // console or json

	Hotkey         string `koanf:"hotkey"`
	CaptureRegion  string `koanf:"capture_region"` // "x,y,w,h"; empty means primary display
	OCRDeadlineSec int    `koanf:"ocr_deadline_sec"`

	PoolSize        int    `koanf:"pool_size"`
	PoolQueueDepth  int    `koanf:"pool_queue_depth"`
	PoolPolicy      string `koanf:"pool_policy"` // queue or reject
	IntentQueueSize int    `koanf:"intent_queue_size"`
	UpdateQueueSize int    `koanf:"update_queue_size"`
	ForwardYieldMS  int    `koanf:"forward_yield_ms"`

	WatchClipboard bool   `koanf:"watch_clipboard"`
	ListenToWS     bool   `koanf:"listen_to_ws"`
	WSURL          string `koanf:"ws_url"`
	ResidentPort   int    `koanf:"resident_port"`
	TrayEnabled    bool   `koanf:"tray_enabled"`

	AutoCapture            bool `koanf:"auto_capture"`
	AutoCaptureIntervalSec int  `koanf:"auto_capture_interval_sec"`

	AnkiEnabled bool   `koanf:"anki_enabled"`
	AnkiURL     string `koanf:"anki_url"`
	AnkiDeck    string `koanf:"anki_deck"`
	AnkiModel   string `koanf:"anki_model"`

	TranslateEnabled bool   `koanf:"translate_enabled"`
	TranslateAuto    bool   `koanf:"translate_auto"` // translate every recognized text
	TranslateAPIKey  string `koanf:"translate_api_key"`
	TranslateURL     string `koanf:"translate_url"`
	TranslateFrom    string `koanf:"translate_from"`
	TranslateTo      string `koanf:"translate_to"`

	MetricsAddr    string `koanf:"metrics_addr"`
	DictionaryPath string `koanf:"dictionary_path"`
}

func defaults() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "console",
		Hotkey:          DefaultHotkey,
		OCRDeadlineSec:  20,
		PoolSize:        2,
		PoolQueueDepth:  4,
		PoolPolicy:      "queue",
		IntentQueueSize: 64,
		UpdateQueueSize: 128,
		ForwardYieldMS:  250,
		WSURL:           DefaultWSURL,
		ResidentPort:    DefaultResidentPort,

		AutoCaptureIntervalSec: DefaultAutoCaptureIntervalSec,
		AnkiURL:                anki.DefaultURL,
		AnkiDeck:               anki.DefaultDeck,
		AnkiModel:              anki.DefaultModel,
		TranslateAuto:          true,
		TranslateURL:           translate.DefaultEndpoint,
		TranslateFrom:          translate.DefaultFrom,
		TranslateTo:            translate.DefaultTo,
	}
}

// LoadWithOptions resolves configuration in priority order (last wins):
// built-in defaults, TOML file, .env file, process environment, options.
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	cfg := defaults()

	k := koanf.New(".")
	for _, path := range configPaths(opts) {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	// .env in the executable directory, else the file named by SCREEN_LOOKUP.
	// godotenv never overrides variables already set in the process.
	envPath := resolveEnvPath()
	dotenvValues := readDotenvValues(envPath)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	applyEnv(cfg)

	cfg.APIKeyPath = resolveAPIKeyPath(opts, cfg.APIKeyPath, dotenvValues)
	cfg.APIKey = resolveAPIKey(cfg.APIKeyPath)

	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	cfg.Model = getEnvWithDefault("MODEL", cfg.Model)
	if providersStr := os.Getenv("PROVIDERS"); providersStr != "" {
		cfg.Providers = splitList(providersStr)
	}
	cfg.EnableFileLogging = getEnvBool("ENABLE_FILE_LOGGING", cfg.EnableFileLogging)
	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvWithDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.Hotkey = getEnvWithDefault("HOTKEY", cfg.Hotkey)
	cfg.CaptureRegion = getEnvWithDefault("CAPTURE_REGION", cfg.CaptureRegion)
	cfg.OCRDeadlineSec = getEnvPositiveInt("OCR_DEADLINE_SEC", cfg.OCRDeadlineSec)
	cfg.PoolSize = getEnvPositiveInt("POOL_SIZE", cfg.PoolSize)
	cfg.PoolQueueDepth = getEnvInt("POOL_QUEUE_DEPTH", cfg.PoolQueueDepth)
	cfg.PoolPolicy = getEnvWithDefault("POOL_POLICY", cfg.PoolPolicy)
	cfg.IntentQueueSize = getEnvInt("INTENT_QUEUE_SIZE", cfg.IntentQueueSize)
	cfg.UpdateQueueSize = getEnvInt("UPDATE_QUEUE_SIZE", cfg.UpdateQueueSize)
	cfg.ForwardYieldMS = getEnvPositiveInt("FORWARD_YIELD_MS", cfg.ForwardYieldMS)
	cfg.WatchClipboard = getEnvBool("WATCH_CLIPBOARD", cfg.WatchClipboard)
	cfg.ListenToWS = getEnvBool("LISTEN_TO_WS", cfg.ListenToWS)
	cfg.WSURL = getEnvWithDefault("WS_URL", cfg.WSURL)
	cfg.ResidentPort = getEnvPositiveInt("RESIDENT_PORT", cfg.ResidentPort)
	cfg.TrayEnabled = getEnvBool("TRAY_ENABLED", cfg.TrayEnabled)
	cfg.AutoCapture = getEnvBool("AUTO_CAPTURE", cfg.AutoCapture)
	cfg.AutoCaptureIntervalSec = getEnvPositiveInt("AUTO_CAPTURE_INTERVAL_SEC", cfg.AutoCaptureIntervalSec)
	cfg.AnkiEnabled = getEnvBool("ANKI_ENABLED", cfg.AnkiEnabled)
	cfg.AnkiURL = getEnvWithDefault("ANKI_URL", cfg.AnkiURL)
	cfg.AnkiDeck = getEnvWithDefault("ANKI_DECK", cfg.AnkiDeck)
	cfg.AnkiModel = getEnvWithDefault("ANKI_MODEL", cfg.AnkiModel)
	cfg.TranslateEnabled = getEnvBool("TRANSLATE_ENABLED", cfg.TranslateEnabled)
	cfg.TranslateAuto = getEnvBool("TRANSLATE_AUTO", cfg.TranslateAuto)
	cfg.TranslateAPIKey = getEnvWithDefault("DEEPL_API_KEY", cfg.TranslateAPIKey)
	cfg.TranslateURL = getEnvWithDefault("TRANSLATE_URL", cfg.TranslateURL)
	cfg.TranslateFrom = getEnvWithDefault("TRANSLATE_FROM", cfg.TranslateFrom)
	cfg.TranslateTo = getEnvWithDefault("TRANSLATE_TO", cfg.TranslateTo)
	cfg.MetricsAddr = getEnvWithDefault("METRICS_ADDR", cfg.MetricsAddr)
	cfg.DictionaryPath = getEnvWithDefault("DICTIONARY_PATH", cfg.DictionaryPath)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error
	if c.PoolSize < 1 {
		err = multierr.Append(err, fmt.Errorf("pool_size must be positive, got %d", c.PoolSize))
	}
	if c.PoolQueueDepth < 0 {
		err = multierr.Append(err, fmt.Errorf("pool_queue_depth must not be negative, got %d", c.PoolQueueDepth))
	}
	switch strings.ToLower(c.PoolPolicy) {
	case "queue", "reject":
	default:
		err = multierr.Append(err, fmt.Errorf("pool_policy must be queue or reject, got %q", c.PoolPolicy))
	}
	if c.IntentQueueSize < 0 || c.UpdateQueueSize < 0 {
		err = multierr.Append(err, fmt.Errorf("queue sizes must not be negative"))
	}
	if c.AutoCaptureIntervalSec < 1 {
		err = multierr.Append(err, fmt.Errorf("auto_capture_interval_sec must be positive, got %d", c.AutoCaptureIntervalSec))
	}
	if c.TranslateEnabled && c.TranslateAPIKey == "" {
		err = multierr.Append(err, fmt.Errorf("translate_enabled needs translate_api_key or DEEPL_API_KEY"))
	}
	if _, rerr := c.Region(); rerr != nil {
		err = multierr.Append(err, rerr)
	}
	return err
}

// Region parses CaptureRegion. An empty value yields the zero region.
func (c *Config) Region() (messages.Region, error) {
	return ParseRegion(c.CaptureRegion)
}

// OCRDeadline is the per-operation timeout.
func (c *Config) OCRDeadline() time.Duration {
	return time.Duration(c.OCRDeadlineSec) * time.Second
}

// AutoCaptureInterval is the pause between automatic captures.
func (c *Config) AutoCaptureInterval() time.Duration {
	return time.Duration(c.AutoCaptureIntervalSec) * time.Second
}

// ForwardYield is the bounded wait for a full outbound queue.
func (c *Config) ForwardYield() time.Duration {
	return time.Duration(c.ForwardYieldMS) * time.Millisecond
}

// ParseRegion parses "x,y,w,h".
func ParseRegion(s string) (messages.Region, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return messages.Region{}, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return messages.Region{}, fmt.Errorf("capture_region %q: want x,y,w,h", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return messages.Region{}, fmt.Errorf("capture_region %q: %w", s, err)
		}
		v[i] = n
	}
	r := messages.Region{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
	if r.Empty() {
		return messages.Region{}, fmt.Errorf("capture_region %q: width and height must be positive", s)
	}
	return r, nil
}

func configPaths(opts LoadOptions) []string {
	if p := strings.TrimSpace(opts.ConfigPath); p != "" {
		return []string{p}
	}
	var paths []string
	if execPath, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(execPath), ConfigFileName))
	}
	// working directory, highest priority
	return append(paths, ConfigFileName)
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}

	execDir := filepath.Dir(execPath)
	exeEnv := filepath.Join(execDir, ".env")
	if _, err := os.Stat(exeEnv); err == nil {
		return exeEnv
	}

	if alt := os.Getenv(EnvPathEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func readDotenvValues(envPath string) map[string]string {
	if envPath == "" {
		return map[string]string{}
	}

	values, err := godotenv.Read(envPath)
	if err != nil {
		return map[string]string{}
	}

	return values
}

func resolveAPIKeyPath(opts LoadOptions, fromFile string, dotenvValues map[string]string) string {
	keyPath := DefaultAPIKeyPath

	if p := strings.TrimSpace(fromFile); p != "" {
		keyPath = p
	}

	if envPath := strings.TrimSpace(os.Getenv(APIKeyPathEnvVar)); envPath != "" {
		keyPath = envPath
	}

	if dotenvPath := strings.TrimSpace(dotenvValues[APIKeyPathEnvVar]); dotenvPath != "" {
		keyPath = dotenvPath
	}

	if overridePath := strings.TrimSpace(opts.APIKeyPathOverride); overridePath != "" {
		keyPath = overridePath
	}

	return keyPath
}

func resolveAPIKey(keyPath string) string {
	if data, err := os.ReadFile(keyPath); err == nil {
		if fileKey := strings.TrimSpace(string(data)); fileKey != "" {
			return fileKey
		}
	}

	return os.Getenv("OPENROUTER_API_KEY")
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvPositiveInt(key string, defaultValue int) int {
	if n := getEnvInt(key, defaultValue); n > 0 {
		return n
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
