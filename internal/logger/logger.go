package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// MirrorFunc receives a rendered log line for forwarding outside the process.
type MirrorFunc func(level slog.Level, line string)

var (
	log    *slog.Logger
	mirror atomic.Pointer[mirrorTarget]
)

type mirrorTarget struct {
	fn  MirrorFunc
	min slog.Level
}

func init() {
	level := slog.LevelInfo
	if os.Getenv("GATEKEEPER_DEBUG") == "true" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	log = slog.New(&mirrorHandler{next: slog.NewTextHandler(os.Stderr, opts)})
}

// SetMirror tees every record at or above min to fn. A nil fn disables mirroring.
func SetMirror(fn MirrorFunc, min slog.Level) {
	if fn == nil {
		mirror.Store(nil)
		return
	}
	mirror.Store(&mirrorTarget{fn: fn, min: min})
}

func Debug(msg string, args ...any) {
	log.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	log.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	log.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	log.Error(msg, args...)
}

func Fatal(msg string, args ...any) {
	log.Error(msg, args...)
	os.Exit(1)
}

type mirrorHandler struct {
	next  slog.Handler
	attrs []slog.Attr
}

func (h *mirrorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.next.Enabled(ctx, level) {
		return true
	}
	t := mirror.Load()
	return t != nil && level >= t.min
}

func (h *mirrorHandler) Handle(ctx context.Context, r slog.Record) error {
	if t := mirror.Load(); t != nil && r.Level >= t.min {
		t.fn(r.Level, h.render(r))
	}

	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *mirrorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &mirrorHandler{next: h.next.WithAttrs(attrs), attrs: merged}
}

func (h *mirrorHandler) WithGroup(name string) slog.Handler {
	return &mirrorHandler{next: h.next.WithGroup(name), attrs: h.attrs}
}

// render formats a record as "msg key=value ..." for chat delivery.
func (h *mirrorHandler) render(r slog.Record) string {
	var b strings.Builder
	b.WriteString(r.Message)

	write := func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Resolve())
		return true
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(write)

	return b.String()
}
