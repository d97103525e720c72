package gg2d

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler drops every record. Enabled reports false so the per-frame
// Debug calls in the pool, texture cache and coordinator skip formatting.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// defaultLogger is read by NewRenderer, which may run on any goroutine.
var defaultLogger atomic.Pointer[slog.Logger]

func init() {
	defaultLogger.Store(newNopLogger())
}

// SetLogger sets the logger that renderers created afterwards use when no
// WithLogger option is given. Pass nil to silence gg2d again, which is the
// default.
//
// A renderer captures its logger once, in NewRenderer, and hands it to its
// vertex buffer pool, texture cache and frame coordinator. Frame completion
// runs on the device's goroutine (backend/native waits on a fence per frame),
// so the handler must be safe for concurrent use. Every slog handler in the
// standard library is.
//
// Levels:
//   - [slog.LevelDebug]: per frame (skipped ticks, pipeline switches, pool
//     growth, texture copy-on-write)
//   - [slog.LevelInfo]: renderer created and closed
//   - [slog.LevelWarn]: frames abandoned for want of a drawable
//
// backend/native takes its own logger in native.Config and warns there about
// fence waits that fail or time out.
//
// Example:
//
//	gg2d.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	defaultLogger.Store(l)
}

// Logger returns the logger new renderers default to.
func Logger() *slog.Logger {
	return defaultLogger.Load()
}
