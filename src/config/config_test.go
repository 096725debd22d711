package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"screen-lookup/src/messages"
)

func TestLoad(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test_api_key")
	t.Setenv(APIKeyPathEnvVar, filepath.Join(t.TempDir(), "missing"))
	t.Setenv("MODEL", "test_model")
	t.Setenv("ENABLE_FILE_LOGGING", "true")
	t.Setenv("HOTKEY", "Ctrl+Shift+T")

	cfg, err := LoadWithOptions(LoadOptions{ConfigPath: filepath.Join(t.TempDir(), "none.toml")})
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.APIKey != "test_api_key" {
		t.Errorf("Expected APIKey to be 'test_api_key', got '%s'", cfg.APIKey)
	}
	if cfg.Model != "test_model" {
		t.Errorf("Expected Model to be 'test_model', got '%s'", cfg.Model)
	}
	if !cfg.EnableFileLogging {
		t.Errorf("Expected EnableFileLogging to be true, got %v", cfg.EnableFileLogging)
	}
	if cfg.Hotkey != "Ctrl+Shift+T" {
		t.Errorf("Expected Hotkey to be 'Ctrl+Shift+T', got '%s'", cfg.Hotkey)
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadWithOptions(LoadOptions{ConfigPath: filepath.Join(t.TempDir(), "none.toml")})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PoolSize != 2 || cfg.PoolQueueDepth != 4 || cfg.PoolPolicy != "queue" {
		t.Errorf("Unexpected pool defaults: %d/%d/%s", cfg.PoolSize, cfg.PoolQueueDepth, cfg.PoolPolicy)
	}
	if cfg.OCRDeadline() != 20*time.Second {
		t.Errorf("Expected 20s deadline, got %v", cfg.OCRDeadline())
	}
	if cfg.ForwardYield() != 250*time.Millisecond {
		t.Errorf("Expected 250ms forward yield, got %v", cfg.ForwardYield())
	}
	if cfg.ResidentPort != DefaultResidentPort || cfg.WSURL != DefaultWSURL {
		t.Errorf("Unexpected watcher defaults: %d %s", cfg.ResidentPort, cfg.WSURL)
	}
}

func TestTOMLFileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	content := `
pool_size = 6
pool_policy = "reject"
capture_region = "10,20,300,200"
providers = ["a", "b"]
watch_clipboard = true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("POOL_SIZE", "3")

	cfg, err := LoadWithOptions(LoadOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PoolSize != 3 {
		t.Errorf("Expected env to win with pool size 3, got %d", cfg.PoolSize)
	}
	if cfg.PoolPolicy != "reject" {
		t.Errorf("Expected policy from file, got %q", cfg.PoolPolicy)
	}
	if !cfg.WatchClipboard {
		t.Error("Expected watch_clipboard from file")
	}
	if len(cfg.Providers) != 2 {
		t.Errorf("Expected providers from file, got %v", cfg.Providers)
	}
	r, err := cfg.Region()
	if err != nil || r != (messages.Region{X: 10, Y: 20, Width: 300, Height: 200}) {
		t.Errorf("Unexpected region %+v, %v", r, err)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := defaults()
	cfg.PoolSize = 0
	cfg.PoolPolicy = "drop"
	cfg.CaptureRegion = "1,2,3"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected validation error")
	}
	for _, want := range []string{"pool_size", "pool_policy", "capture_region"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected %q in %v", want, err)
		}
	}
}

func TestParseRegion(t *testing.T) {
	cases := []struct {
		in      string
		want    messages.Region
		wantErr bool
	}{
		{"", messages.Region{}, false},
		{" 0, 0, 640, 480 ", messages.Region{Width: 640, Height: 480}, false},
		{"0,0,0,480", messages.Region{}, true},
		{"a,b,c,d", messages.Region{}, true},
	}
	for _, c := range cases {
		got, err := ParseRegion(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("ParseRegion(%q) err = %v, wantErr %v", c.in, err, c.wantErr)
		}
		if got != c.want {
			t.Errorf("ParseRegion(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestAPIKeyFilePrecedence(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key")
	if err := os.WriteFile(keyFile, []byte("  file-key\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENROUTER_API_KEY", "env-key")

	cfg, err := LoadWithOptions(LoadOptions{APIKeyPathOverride: keyFile, ConfigPath: filepath.Join(dir, "none.toml")})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "file-key" {
		t.Errorf("Expected key from file, got %q", cfg.APIKey)
	}
	if cfg.APIKeyPath != keyFile {
		t.Errorf("Expected override path, got %q", cfg.APIKeyPath)
	}
}

func TestAutoCaptureAnkiAndTranslateSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	content := `
auto_capture = true
anki_enabled = true
anki_deck = "Mining"
translate_enabled = true
translate_to = "de"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AUTO_CAPTURE_INTERVAL_SEC", "5")
	t.Setenv("DEEPL_API_KEY", "deepl-key")

	cfg, err := LoadWithOptions(LoadOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.AutoCapture || cfg.AutoCaptureInterval() != 5*time.Second {
		t.Errorf("Unexpected auto capture %v every %v", cfg.AutoCapture, cfg.AutoCaptureInterval())
	}
	if !cfg.AnkiEnabled || cfg.AnkiDeck != "Mining" || cfg.AnkiModel != "Basic" || cfg.AnkiURL != "http://localhost:8765" {
		t.Errorf("Unexpected anki settings %q %q %q", cfg.AnkiDeck, cfg.AnkiModel, cfg.AnkiURL)
	}
	if !cfg.TranslateEnabled || !cfg.TranslateAuto || cfg.TranslateAPIKey != "deepl-key" ||
		cfg.TranslateFrom != "ja" || cfg.TranslateTo != "de" {
		t.Errorf("Unexpected translate settings %+v", cfg)
	}
}

func TestAutoCaptureDefaults(t *testing.T) {
	cfg := defaults()
	if cfg.AutoCapture {
		t.Error("Expected auto capture off by default")
	}
	if cfg.AutoCaptureInterval() != 3*time.Second {
		t.Errorf("Expected 3s interval, got %v", cfg.AutoCaptureInterval())
	}
}

func TestValidateTranslateNeedsKey(t *testing.T) {
	cfg := defaults()
	cfg.TranslateEnabled = true
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DEEPL_API_KEY") {
		t.Errorf("Expected missing key error, got %v", err)
	}
}
