// Package applog configures file-backed structured logging.
package applog

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// FilePrefix starts every log file name.
	FilePrefix = "chargewatch-"
	// DefaultMaxDays is how many daily files Init keeps.
	DefaultMaxDays = 7
)

// DailyRotator writes to <prefix>YYYY-MM-DD.log in dir, switching files at
// each calendar day and pruning all but the newest maxDays files.
type DailyRotator struct {
	mu      sync.Mutex
	dir     string
	prefix  string
	maxDays int
	date    string
	file    *os.File
	now     func() time.Time
}

func NewDailyRotator(dir string, maxDays int) *DailyRotator {
	return &DailyRotator{
		dir:     dir,
		prefix:  FilePrefix,
		maxDays: maxDays,
		now:     time.Now,
	}
}

// SetNow replaces the time source. Used in tests only.
func (r *DailyRotator) SetNow(fn func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = fn
}

// Path returns the file the next write on the given day lands in.
func (r *DailyRotator) Path(day time.Time) string {
	return filepath.Join(r.dir, r.prefix+day.Format("2006-01-02")+".log")
}

func (r *DailyRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if day := now.Format("2006-01-02"); day != r.date {
		if err := r.openLocked(now); err != nil {
			return 0, err
		}
	}
	return r.file.Write(p)
}

func (r *DailyRotator) openLocked(now time.Time) error {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
	f, err := os.OpenFile(r.Path(now), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	r.file = f
	r.date = now.Format("2006-01-02")
	r.pruneLocked()
	return nil
}

func (r *DailyRotator) pruneLocked() {
	if r.maxDays <= 0 {
		return
	}
	files, err := filepath.Glob(filepath.Join(r.dir, r.prefix+"*.log"))
	if err != nil || len(files) <= r.maxDays {
		return
	}
	// Date-stamped names sort chronologically.
	sort.Strings(files)
	for _, f := range files[:len(files)-r.maxDays] {
		os.Remove(f)
	}
}

func (r *DailyRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.date = ""
	return err
}

type InitConfig struct {
	LogDir   string
	LogLevel string
	// Stderr additionally copies every record to standard error. The
	// headless commands set it; the dashboard owns the terminal and does not.
	Stderr bool
}

// Init installs a slog text handler over a DailyRotator in cfg.LogDir as
// slog.Default and points the stdlib log package at the same file. The
// caller closes the returned io.Closer on exit.
func Init(cfg InitConfig) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	rotator := NewDailyRotator(cfg.LogDir, DefaultMaxDays)

	var out io.Writer = rotator
	if cfg.Stderr {
		out = io.MultiWriter(rotator, os.Stderr)
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: ParseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)
	log.SetOutput(out)
	log.SetFlags(0)
	return logger, rotator, nil
}

// ParseLevel maps debug, info, warn and error to slog levels, ignoring
// case. Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
