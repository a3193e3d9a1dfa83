// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSource     = "source"
	FieldRequester  = "requester"
	FieldSegmentID  = "segment_id"
	FieldSubject    = "subject"
	FieldTopic      = "topic"
	FieldBrokerURL  = "broker_url"
	FieldBrokerPort = "broker_port"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPID       = "pid"
	FieldCommand   = "command"

	// Media / stream fields
	FieldFrameKind  = "frame_kind"
	FieldFrameSize  = "frame_size"
	FieldBytes      = "bytes"
	FieldFPS        = "fps"
	FieldResolution = "resolution"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldReason   = "reason"

	// Path fields
	FieldPath = "path"
)
