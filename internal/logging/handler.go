// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package logging configures slog for plugman. Records carry the service
// and version, the OpenTelemetry trace and span ids, and the module a call
// is running on behalf of.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/trace"
)

// Supported output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Attribute keys added from context.
const (
	KeyPlugin   = "plugin"
	KeyModuleID = "module_id"
	KeyTraceID  = "trace_id"
	KeySpanID   = "span_id"
)

type moduleKey struct{}

type moduleRef struct {
	name string
	id   string
}

// WithModule marks ctx as running on behalf of module name with instance id.
// Records logged with ctx gain plugin and module_id attributes.
func WithModule(ctx context.Context, name, id string) context.Context {
	return context.WithValue(ctx, moduleKey{}, moduleRef{name: name, id: id})
}

// ModuleFrom returns the module set by WithModule.
func ModuleFrom(ctx context.Context) (name, id string, ok bool) {
	ref, ok := ctx.Value(moduleKey{}).(moduleRef)
	return ref.name, ref.id, ok
}

// contextHandler adds trace and module attributes taken from the context.
type contextHandler struct {
	next slog.Handler
	// boundPlugin is set once a "plugin" attribute was bound with WithAttrs,
	// so context values do not duplicate it.
	boundPlugin bool
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String(KeyTraceID, sc.TraceID().String()),
			slog.String(KeySpanID, sc.SpanID().String()),
		)
	}
	if name, id, ok := ModuleFrom(ctx); ok && !h.boundPlugin && !recordHas(r, KeyPlugin) {
		r.AddAttrs(slog.String(KeyPlugin, name), slog.String(KeyModuleID, id))
	}
	return h.next.Handle(ctx, r) //nolint:wrapcheck // slog.Handler passthrough
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := h.boundPlugin
	for _, a := range attrs {
		if a.Key == KeyPlugin {
			bound = true
		}
	}
	return &contextHandler{next: h.next.WithAttrs(attrs), boundPlugin: bound}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name), boundPlugin: h.boundPlugin}
}

func recordHas(r slog.Record, key string) bool {
	found := false
	r.Attrs(func(a slog.Attr) bool {
		found = a.Key == key
		return !found
	})
	return found
}

// ParseLevel parses "debug", "info", "warn" or "error", case-insensitively.
// The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, oops.Code("INVALID_LOG_LEVEL").With("level", s).Wrap(err)
	}
	return level, nil
}

// ValidFormat reports whether Setup accepts format. Empty means JSON.
func ValidFormat(format string) bool {
	switch format {
	case "", FormatJSON, FormatText:
		return true
	}
	return false
}

// Setup returns a logger writing format to w (os.Stderr when nil).
func Setup(service, version, format string, level slog.Level, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}

	var base slog.Handler = slog.NewJSONHandler(w, opts)
	if format == FormatText {
		base = slog.NewTextHandler(w, opts)
	}
	base = base.WithAttrs([]slog.Attr{
		slog.String("service", service),
		slog.String("version", version),
	})
	return slog.New(&contextHandler{next: base})
}

// SetDefault installs a Setup logger writing to stderr as slog's default.
func SetDefault(service, version, format string, level slog.Level) *slog.Logger {
	logger := Setup(service, version, format, level, nil)
	slog.SetDefault(logger)
	return logger
}

// HCLog returns the logger handed to go-plugin clients, so binary module
// output uses the same format and level as plugman's own.
func HCLog(format string, level slog.Level, w io.Writer) hclog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       "plugman",
		Level:      hclogLevel(level),
		Output:     w,
		JSONFormat: format != FormatText,
	})
}

func hclogLevel(level slog.Level) hclog.Level {
	switch {
	case level <= slog.LevelDebug:
		return hclog.Debug
	case level <= slog.LevelInfo:
		return hclog.Info
	case level <= slog.LevelWarn:
		return hclog.Warn
	default:
		return hclog.Error
	}
}
