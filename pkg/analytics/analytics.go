// Package analytics reports authentication failures to an offline analytics
// pipeline as JSON lines:
//
//	{"time":"2026-01-02T15:04:05.123Z","event":"auth_failure","identity":"alice@example.com","aor":"sip:alice@example.com"}
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// EventAuthFailure is the event name of a failed verification.
const EventAuthFailure = "auth_failure"

// Reporter receives authentication failures.
type Reporter interface {
	ReportAuthFailure(ctx context.Context, identity, aor string) error
}

// Nop discards events.
type Nop struct{}

// ReportAuthFailure implements Reporter.
func (Nop) ReportAuthFailure(context.Context, string, string) error { return nil }

// Config configures the file sink.
type Config struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Path       string `mapstructure:"path" yaml:"path" validate:"required_if=Enabled true"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

type event struct {
	Time     time.Time `json:"time"`
	Event    string    `json:"event"`
	Identity string    `json:"identity"`
	AoR      string    `json:"aor"`
}

// Writer appends one JSON document per event to an io.Writer.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewWriter returns a reporter writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, now: time.Now}
}

// ReportAuthFailure implements Reporter.
func (w *Writer) ReportAuthFailure(_ context.Context, identity, aor string) error {
	line, err := json.Marshal(event{
		Time:     w.now().UTC(),
		Event:    EventAuthFailure,
		Identity: identity,
		AoR:      aor,
	})
	if err != nil {
		return err
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(line); err != nil {
		return fmt.Errorf("failed to write analytics event: %w", err)
	}
	return nil
}

// Close closes the underlying writer if it is an io.Closer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if c, ok := w.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// New returns the reporter described by cfg and a function releasing it.
// A disabled config yields Nop.
func New(cfg Config) (Reporter, func() error, error) {
	if !cfg.Enabled {
		return Nop{}, func() error { return nil }, nil
	}
	if cfg.Path == "" {
		return nil, nil, errors.New("analytics: path is required when enabled")
	}
	w := NewWriter(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
	return w, w.Close, nil
}
