// Package logutil builds the process logger: zerolog records written to a
// size-rotated debug file, or discarded when file logging is off.
package logutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	LogFileName  = "screen_lookup_debug.log"
	maxSizeBytes = 10 * 1024 * 1024 // 10 MB
	maxArchives  = 3
)

// Options configures the logger
type Options struct {
	Level      string // trace|debug|info|warn|error
	Format     string // console|json
	FileOutput bool   // write to LogFileName in Dir; otherwise discard
	Dir        string // directory for the log file, "." when empty
	Writer     io.Writer
}

// Logger is the project-wide logging type
type Logger = zerolog.Logger

var (
	once   sync.Once
	root   atomic.Pointer[zerolog.Logger]
	closer io.Closer
)

// Init configures the process-wide root logger. Only the first call has effect.
func Init(opt Options) {
	once.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		l, c := New(opt)
		closer = c
		root.Store(&l)
	})
}

// Get returns the root logger, a disabled one when Init was never called.
func Get() *Logger {
	if l := root.Load(); l != nil {
		return l
	}
	nop := zerolog.Nop()
	return &nop
}

// Named returns a child logger with a component field
func Named(component string) Logger {
	return Get().With().Str("component", component).Logger()
}

// Close flushes and closes the log file, if any.
func Close() error {
	if closer == nil {
		return nil
	}
	return closer.Close()
}

// New builds a standalone logger from opt. The returned closer is nil unless a
// log file was opened.
func New(opt Options) (zerolog.Logger, io.Closer) {
	var (
		w io.Writer = io.Discard
		c io.Closer
	)
	switch {
	case opt.Writer != nil:
		w = opt.Writer
	case opt.FileOutput:
		rw, err := OpenRotating(filepath.Join(dirOrDot(opt.Dir), LogFileName))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		} else {
			w, c = rw, rw
		}
	}
	if strings.EqualFold(opt.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}
	return zerolog.New(w).Level(parseLevel(opt.Level)).With().Timestamp().Logger(), c
}

// parseLevel supports string-only levels
func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func dirOrDot(d string) string {
	if d == "" {
		return "."
	}
	return d
}

// RotatingWriter appends to a file and rotates it at 10MB, keeping 3 archives.
type RotatingWriter struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenRotating opens path for appending, rotating it first if already too big.
func OpenRotating(path string) (*RotatingWriter, error) {
	rotateIfNeeded(path, 0)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return nil, err
	}
	return &RotatingWriter{path: path, f: f}, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	// naive rotation check per write
	if st, err := w.f.Stat(); err == nil && st.Size()+int64(len(p)) > maxSizeBytes {
		_ = w.f.Close()
		rotateIfNeeded(w.path, int64(len(p)))
		nf, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return 0, err
		}
		w.f = nf
	}
	return w.f.Write(p)
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// rotateIfNeeded shifts path -> .1 -> .2 -> .3 (oldest discarded) when the
// file plus pending bytes would exceed the limit.
func rotateIfNeeded(path string, pending int64) {
	st, err := os.Stat(path)
	if err != nil || st.Size()+pending <= maxSizeBytes {
		return
	}
	_ = os.Remove(archiveName(path, maxArchives))
	for i := maxArchives - 1; i >= 1; i-- {
		_ = os.Rename(archiveName(path, i), archiveName(path, i+1))
	}
	_ = os.Rename(path, archiveName(path, 1))
}

func archiveName(path string, n int) string { return fmt.Sprintf("%s.%d", path, n) }

// RedactKey masks an API key, leaving first/last 4 chars: xxxx...yyyy
func RedactKey(k string) string {
	if len(k) <= 8 {
		return "********"
	}
	return fmt.Sprintf("%s...%s", k[:4], k[len(k)-4:])
}
