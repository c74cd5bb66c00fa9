package models

import (
	"time"
)

// SourceStatus is the terminal outcome of one source's sync task.
type SourceStatus string

const (
	// StatusSucceeded means the full stream was fetched, validated and chunked
	StatusSucceeded SourceStatus = "succeeded"
	// StatusPartial means some chunks were finalized before a terminal failure
	StatusPartial SourceStatus = "partial"
	// StatusFailed means the source produced no finalized output
	StatusFailed SourceStatus = "failed"
)

// severity orders statuses from best to worst for run aggregation.
func (s SourceStatus) severity() int {
	switch s {
	case StatusSucceeded:
		return 0
	case StatusPartial:
		return 1
	case StatusFailed:
		return 2
	default:
		return 3
	}
}

// Worst returns the worse of two statuses.
func Worst(a, b SourceStatus) SourceStatus {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

// SyncResult summarizes one source's sync task. Exactly one SyncResult is
// produced per enabled source per run.
type SyncResult struct {
	Source         string        `json:"name"`
	Status         SourceStatus  `json:"status"`
	RecordsFetched int           `json:"records_fetched"`
	RecordsDropped int           `json:"records_dropped"`
	RetriesUsed    int           `json:"retries_used"`
	ChunksWritten  int           `json:"chunks_written"`
	Duration       time.Duration `json:"duration_ms"`
	Error          string        `json:"error,omitempty"`
}

// RunTotals aggregates counts across all sources in a run.
type RunTotals struct {
	RecordsFetched int `json:"records_fetched"`
	RecordsDropped int `json:"records_dropped"`
	RetriesUsed    int `json:"retries_used"`
	ChunksWritten  int `json:"chunks_written"`
	SourcesFailed  int `json:"sources_failed"`
}

// RunMetadata is the consolidated execution record of one run. It is created
// at run start, mutated only by the metadata collector, and read-only once
// finalized.
type RunMetadata struct {
	RunID     string       `json:"run_id"`
	StartTime time.Time    `json:"start_time"`
	EndTime   time.Time    `json:"end_time"`
	Sources   []SyncResult `json:"sources"`
	Totals    RunTotals    `json:"totals"`
	Status    SourceStatus `json:"status"`
}

// OverallStatus returns the worst status among all sources; a run with no
// sources reports success.
func (m *RunMetadata) OverallStatus() SourceStatus {
	status := StatusSucceeded
	for _, r := range m.Sources {
		status = Worst(status, r.Status)
	}
	return status
}
