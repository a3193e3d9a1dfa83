// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(t.Context(), Config{Enabled: false})
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(t.Context()))

	_, span := Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestNewProviderInvalidExporter(t *testing.T) {
	_, err := NewProvider(t.Context(), Config{Enabled: true, ServiceName: "test", ExporterType: "carrier-pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported exporter type")
}

func TestNewProviderHTTPExporterShutsDown(t *testing.T) {
	p, err := NewProvider(t.Context(), Config{
		Enabled:      true,
		ServiceName:  "test",
		ExporterType: "http",
		Endpoint:     "127.0.0.1:1",
		SamplingRate: 0,
	})
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(t.Context()))

	// Leave the global provider as a no-op for other tests.
	_, err = NewProvider(t.Context(), Config{})
	require.NoError(t, err)
}

func TestSegmentAttributes(t *testing.T) {
	attrs := SegmentAttributes("cam1", "/rec/a.mp4")
	assert.Equal(t, []attribute.KeyValue{
		attribute.String(SourceKey, "cam1"),
		attribute.String(SegmentPathKey, "/rec/a.mp4"),
	}, attrs)

	res := SegmentResultAttributes(42, "complete", "end")
	assert.Len(t, res, 3)
	assert.Equal(t, int64(42), res[0].Value.AsInt64())
}

func TestStillAttributesOmitsEmptyCommand(t *testing.T) {
	assert.Len(t, StillAttributes("", 10), 1)
	assert.Len(t, StillAttributes("raspistill", 10), 2)
}

func TestRootSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), rootSampler(1.5).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), rootSampler(0).Description())
	assert.Contains(t, rootSampler(0.25).Description(), "TraceIDRatioBased")
}
