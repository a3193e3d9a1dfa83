// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span attribute keys.
const (
	SourceKey = "campipe.source"

	SegmentPathKey   = "segment.path"
	SegmentBytesKey  = "segment.bytes"
	SegmentStatusKey = "segment.status"
	SegmentReasonKey = "segment.reason"

	StillCommandKey = "still.command"
	StillBytesKey   = "still.bytes"

	ErrorKey = "error"
)

// SegmentAttributes describe an opened segment.
func SegmentAttributes(source, path string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SourceKey, source),
		attribute.String(SegmentPathKey, path),
	}
}

// SegmentResultAttributes describe how a segment ended.
func SegmentResultAttributes(bytes int64, status, reason string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(SegmentBytesKey, bytes),
		attribute.String(SegmentStatusKey, status),
		attribute.String(SegmentReasonKey, reason),
	}
}

// StillAttributes describe one still capture.
func StillAttributes(command string, bytes int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if command != "" {
		attrs = append(attrs, attribute.String(StillCommandKey, command))
	}
	return append(attrs, attribute.Int(StillBytesKey, bytes))
}
