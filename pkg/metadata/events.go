// Package metadata implements the run-scoped metadata collector. All
// pipeline components submit append-only events to one collector; a single
// drain goroutine serializes them so the three rendered outputs (text log,
// event table, JSON summary) are built from the same consistent log.
package metadata

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// EventType classifies a pipeline event
type EventType string

const (
	// EventSourceStarted marks the start of a source task
	EventSourceStarted EventType = "source_started"
	// EventAttempt records one fetch attempt, successful or not
	EventAttempt EventType = "attempt"
	// EventRetryScheduled records a backoff delay before the next attempt
	EventRetryScheduled EventType = "retry_scheduled"
	// EventChunkWritten records one finalized chunk file
	EventChunkWritten EventType = "chunk_written"
	// EventRecordDropped records one record dropped during validation
	EventRecordDropped EventType = "record_dropped"
	// EventSourceFinished marks a source task reaching a terminal state
	EventSourceFinished EventType = "source_finished"
	// EventError records a source-level error
	EventError EventType = "error"
)

// Event is the single append-only event class accepted by the collector.
type Event struct {
	Time    time.Time              `json:"time"`
	Source  string                 `json:"source"`
	Type    EventType              `json:"type"`
	Message string                 `json:"message"`
	Detail  map[string]interface{} `json:"detail,omitempty"`
}

// detailString renders the detail map as stable "k=v" pairs for the text
// and tabular outputs.
func (e *Event) detailString() string {
	if len(e.Detail) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Detail))
	for k := range e.Detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Detail[k]))
	}
	return strings.Join(parts, " ")
}
