// Package audit persists an asynchronous audit trail for state-changing and
// sensitive routes. The recorder is a pure observer: both writes per request
// are fire-and-forget and their failures are only logged, never propagated.
package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Sensitivity classifies an audited route.
type Sensitivity string

const (
	SensitivityNormal    Sensitivity = "normal"
	SensitivitySensitive Sensitivity = "sensitive"
)

// Status is the lifecycle of an audit entry: created pending at request
// start, finalized asynchronously once the response is known.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Entry is one audited request. Request and response snapshots are sanitized
// before they reach the store.
type Entry struct {
	RequestID    string
	Timestamp    time.Time
	Method       string
	URL          string
	ActorID      string
	Sensitivity  Sensitivity
	RequestBody  json.RawMessage
	ResponseBody json.RawMessage
	Status       Status
	DurationMs   int64
	Error        string
}

// Final carries the completion patch for a pending entry.
type Final struct {
	Status       Status
	ResponseBody json.RawMessage
	DurationMs   int64
	Error        string
}

// Store is the external keyed audit store.
type Store interface {
	CreatePending(ctx context.Context, e *Entry) error
	Finalize(ctx context.Context, requestID string, final Final) error
}
