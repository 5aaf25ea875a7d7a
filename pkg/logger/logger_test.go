package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("snapprint", "info", &buf)

	l.Info("hello", slog.String("key", "value"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "snapprint", entry["service"])
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "value", entry["key"])
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("snapprint", "warn", &buf)

	l.Info("dropped")
	assert.Zero(t, buf.Len())

	l.Warn("kept")
	assert.NotZero(t, buf.Len())
}

func TestCorrelationIDRoundTrip(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "corr-123")
	assert.Equal(t, "corr-123", CorrelationIDFromContext(ctx))
	assert.Empty(t, CorrelationIDFromContext(context.Background()))
}

func TestFromContext_Fallback(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))

	var buf bytes.Buffer
	l := NewWithWriter("snapprint", "info", &buf)
	ctx := NewContext(context.Background(), l)
	assert.Equal(t, l, FromContext(ctx))
}

func TestWithContext_EnrichesFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter("snapprint", "info", &buf)

	ctx := WithCorrelationID(context.Background(), "corr-9")
	ctx = WithUserID(ctx, "user-1")

	WithContext(ctx, base).Info("enriched")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "corr-9", entry["correlation_id"])
	assert.Equal(t, "user-1", entry["user_id"])
}
