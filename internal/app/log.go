package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// dkHandler is a custom slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<opID>\t<message>\t<key=value ...>
type dkHandler struct {
	w     io.Writer
	opID  string
	min   slog.Level
	attrs []slog.Attr
}

func (h *dkHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.min
}

func (h *dkHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")
	level := r.Level.String()

	_, err := fmt.Fprintf(h.w, "%s\t%s\t%s\t%s", ts, level, h.opID, r.Message)
	if err != nil {
		return err
	}

	// Write pre-set attrs.
	for _, a := range h.attrs {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
	}

	// Write per-record attrs.
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
		return true
	})

	_, err = fmt.Fprintln(h.w)
	return err
}

func (h *dkHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &dkHandler{
		w:     h.w,
		opID:  h.opID,
		min:   h.min,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *dkHandler) WithGroup(string) slog.Handler { return h }

// parseLevel maps a config level string to a slog.Level. Unknown or empty
// strings mean info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger creates a structured logger that writes to both a per-day file
// under logDir and stderr. It returns the slog.Logger, the open log file
// (for cleanup), and any error.
func newLogger(logDir, opID string, min slog.Level) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	name := fmt.Sprintf("dotkeep-%s.log", time.Now().UTC().Format("20060102"))
	logPath := filepath.Join(logDir, name)
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	w := io.MultiWriter(f, os.Stderr)
	handler := &dkHandler{w: w, opID: opID, min: min}
	return slog.New(handler), f, nil
}

// slogAdapter wraps *slog.Logger to satisfy the dot.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
