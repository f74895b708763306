// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func jsonLogger(t *testing.T, level slog.Level) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return Setup("plugman", "1.0.0", FormatJSON, level, &buf), &buf
}

// lastEntry decodes the last JSON line written to buf.
func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry), "not JSON: %s", buf.String())
	return entry
}

func tracedContext(t *testing.T) context.Context {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestSetup_Formats(t *testing.T) {
	tests := []struct {
		format string
		check  func(t *testing.T, out string)
	}{
		{format: FormatJSON, check: func(t *testing.T, out string) {
			var entry map[string]any
			require.NoError(t, json.Unmarshal([]byte(out), &entry))
			assert.Equal(t, "loaded", entry["msg"])
			assert.Equal(t, "plugman", entry["service"])
			assert.Equal(t, "1.0.0", entry["version"])
		}},
		{format: "", check: func(t *testing.T, out string) {
			assert.True(t, json.Valid([]byte(out)), "empty format is JSON: %s", out)
		}},
		{format: FormatText, check: func(t *testing.T, out string) {
			assert.Contains(t, out, "msg=loaded")
			assert.Contains(t, out, "service=plugman")
		}},
	}

	for _, tt := range tests {
		t.Run("format="+tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			Setup("plugman", "1.0.0", tt.format, slog.LevelInfo, &buf).Info("loaded")
			tt.check(t, strings.TrimSpace(buf.String()))
		})
	}
}

func TestSetup_LevelFilters(t *testing.T) {
	logger, buf := jsonLogger(t, slog.LevelWarn)

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestHandler_TraceIDs(t *testing.T) {
	logger, buf := jsonLogger(t, slog.LevelInfo)

	logger.InfoContext(tracedContext(t), "traced")
	entry := lastEntry(t, buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry[KeyTraceID])
	assert.Equal(t, "00f067aa0ba902b7", entry[KeySpanID])

	logger.Info("untraced")
	entry = lastEntry(t, buf)
	assert.NotContains(t, entry, KeyTraceID)
	assert.NotContains(t, entry, KeySpanID)
}

func TestHandler_ModuleFromContext(t *testing.T) {
	logger, buf := jsonLogger(t, slog.LevelInfo)
	ctx := WithModule(context.Background(), "greeter", "01J0000000000000000000000A")

	logger.InfoContext(ctx, "hook ran")
	entry := lastEntry(t, buf)
	assert.Equal(t, "greeter", entry[KeyPlugin])
	assert.Equal(t, "01J0000000000000000000000A", entry[KeyModuleID])

	name, id, ok := ModuleFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, "greeter", name)
	assert.Equal(t, "01J0000000000000000000000A", id)

	_, _, ok = ModuleFrom(context.Background())
	assert.False(t, ok)
}

func TestHandler_ExplicitPluginIsNotDuplicated(t *testing.T) {
	ctx := WithModule(context.Background(), "greeter", "01J0000000000000000000000A")

	t.Run("bound with With", func(t *testing.T) {
		logger, buf := jsonLogger(t, slog.LevelInfo)
		logger.With(KeyPlugin, "echo").InfoContext(ctx, "from lua")
		assert.Equal(t, 1, strings.Count(buf.String(), `"plugin"`), buf.String())
		assert.Equal(t, "echo", lastEntry(t, buf)[KeyPlugin])
	})

	t.Run("on the record", func(t *testing.T) {
		logger, buf := jsonLogger(t, slog.LevelInfo)
		logger.InfoContext(ctx, "explicit", KeyPlugin, "echo")
		assert.Equal(t, 1, strings.Count(buf.String(), `"plugin"`), buf.String())
		assert.NotContains(t, lastEntry(t, buf), KeyModuleID)
	})
}

func TestHandler_GroupKeepsContextAttrs(t *testing.T) {
	logger, buf := jsonLogger(t, slog.LevelInfo)
	ctx := WithModule(tracedContext(t), "greeter", "id")

	logger.WithGroup("hook").InfoContext(ctx, "grouped", "name", "on_enable")
	entry := lastEntry(t, buf)
	group, ok := entry["hook"].(map[string]any)
	require.True(t, ok, "missing group: %v", entry)
	assert.Equal(t, "on_enable", group["name"])
	assert.Equal(t, "greeter", group[KeyPlugin])
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	logger := SetDefault("plugman", "2.0.0", FormatJSON, slog.LevelInfo)
	assert.Same(t, logger, slog.Default())
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "", want: slog.LevelInfo},
		{in: "debug", want: slog.LevelDebug},
		{in: "WARN", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidFormat(t *testing.T) {
	for _, f := range []string{"", FormatJSON, FormatText} {
		assert.True(t, ValidFormat(f), f)
	}
	assert.False(t, ValidFormat("xml"))
}

func TestHCLog(t *testing.T) {
	var buf bytes.Buffer
	logger := HCLog(FormatJSON, slog.LevelWarn, &buf)

	assert.False(t, logger.IsInfo())
	assert.True(t, logger.IsWarn())

	logger.Named("greeter").Warn("module stderr", "line", "boom")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "plugman.greeter", entry["@module"])
	assert.Equal(t, "module stderr", entry["@message"])
}
