package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "shardstore", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Enabled = false

	shutdown, err := Init(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(ctx))
	assert.False(t, IsEnabled())
}

func TestTracerReturnsNoOp(t *testing.T) {
	tracer = nil
	enabled = false

	tr := Tracer()
	require.NotNil(t, tr)
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()

	// Works as a no-op even without initialization.
	newCtx, span := StartSpan(ctx, SpanStoreFile)
	require.NotNil(t, newCtx)
	require.NotNil(t, span)

	span.End()
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()

	require.NotPanics(t, func() {
		RecordError(ctx, nil)
	})

	require.NotPanics(t, func() {
		RecordError(ctx, errors.New("test error"))
	})
}

func TestSetAttributes(t *testing.T) {
	ctx := context.Background()

	require.NotPanics(t, func() {
		SetAttributes(ctx, File("f-1", "alice")...)
	})
}

func TestTraceIDWithoutSpan(t *testing.T) {
	assert.Equal(t, "", TraceID(context.Background()))
	assert.Equal(t, "", SpanID(context.Background()))
}

func TestAttributeHelpers(t *testing.T) {
	t.Run("File", func(t *testing.T) {
		attrs := File("f-42", "bob")
		require.Len(t, attrs, 2)
		assert.Equal(t, AttrFileID, string(attrs[0].Key))
		assert.Equal(t, "f-42", attrs[0].Value.AsString())
		assert.Equal(t, AttrFileOwner, string(attrs[1].Key))
		assert.Equal(t, "bob", attrs[1].Value.AsString())
	})

	t.Run("Chunk", func(t *testing.T) {
		attrs := Chunk(3, true)
		require.Len(t, attrs, 2)
		assert.Equal(t, AttrChunkNumber, string(attrs[0].Key))
		assert.Equal(t, int64(3), attrs[0].Value.AsInt64())
		assert.Equal(t, AttrReplica, string(attrs[1].Key))
		assert.True(t, attrs[1].Value.AsBool())
	})

	t.Run("Node", func(t *testing.T) {
		attrs := Node(7, "node-a")
		require.Len(t, attrs, 2)
		assert.Equal(t, int64(7), attrs[0].Value.AsInt64())
		assert.Equal(t, "node-a", attrs[1].Value.AsString())
	})
}

func TestInitProfilingDisabled(t *testing.T) {
	shutdown, err := InitProfiling(ProfilingConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown())
	assert.False(t, IsProfilingEnabled())
}

func TestParseProfileType(t *testing.T) {
	_, err := parseProfileType("cpu")
	assert.NoError(t, err)

	_, err = parseProfileType("heap_dump")
	assert.Error(t, err)
}
