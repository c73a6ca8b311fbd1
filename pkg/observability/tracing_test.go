package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpansExported(t *testing.T) {
	var out bytes.Buffer
	cfg := DefaultTracingConfig()
	cfg.Output = &out
	shutdown, err := InitTracing(cfg)
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "pipeline.procedure")
	span.SetAttribute("cases.read", int64(3))
	span.SetAttribute("spilled", false)
	span.SetAttribute("procedure", "aggregate")
	span.End(nil)

	_, failed := StartSpan(context.Background(), "pipeline.procedure")
	failed.End(errors.New("corrupt input"))

	require.NoError(t, shutdown(context.Background()))
	require.NoError(t, Shutdown(context.Background()), "second shutdown is a no-op")

	got := out.String()
	assert.Contains(t, got, "pipeline.procedure")
	assert.Contains(t, got, "cases.read")
	assert.Contains(t, got, "aggregate")
	assert.Contains(t, got, "corrupt input")
}

func TestTracerWithoutInit(t *testing.T) {
	_, span := StartSpan(context.Background(), "noop")
	span.SetAttribute("k", struct{}{})
	span.End(nil)
	assert.NotNil(t, Tracer())
}
