// Package models provides the data model shared across the oceansync
// pipeline: raw and normalized observation records, sync windows, chunks,
// and per-run result structures.
package models

import (
	"time"
)

// RawRecord is a single unnormalized observation as produced by a source
// adapter. The field set varies by provider; the Processor maps it into the
// canonical schema.
type RawRecord struct {
	// Source is the name of the adapter that produced the record
	Source string
	// Fields holds the provider-specific column values
	Fields map[string]interface{}
}

// NewRawRecord creates a raw record for the given source
func NewRawRecord(source string, fields map[string]interface{}) *RawRecord {
	return &RawRecord{Source: source, Fields: fields}
}

// NormalizedRecord is an observation in the canonical schema. Timestamps are
// UTC instants and measurements use standardized units (degrees Celsius,
// PSU, dbar, m/s, meters).
type NormalizedRecord struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	// Depth in meters below surface; zero for surface-only observations
	Depth float64 `json:"depth"`
	// Measurements holds measured quantities keyed by canonical name
	// (e.g. "temperature_c", "salinity_psu")
	Measurements map[string]float64 `json:"measurements"`
	Source       string             `json:"source"`
}

// CanonicalColumns is the fixed, ordered column set of chunk files. Rows are
// rendered in this order; absent measurements render as empty cells.
var CanonicalColumns = []string{
	"time",
	"latitude",
	"longitude",
	"depth_m",
	"temperature_c",
	"salinity_psu",
	"pressure_dbar",
	"wind_speed_ms",
	"wave_height_m",
}

// MeasurementColumns is the subset of CanonicalColumns that are measured
// quantities (everything after the dimension columns).
var MeasurementColumns = CanonicalColumns[4:]

// Window bounds one synchronization request against a source.
type Window struct {
	// Start and End bound the requested time range
	Start time.Time
	End   time.Time
	// ProfileLimit caps the number of profiles fetched (0 = no cap)
	ProfileLimit int
	// StationLimit caps the number of stations queried (0 = no cap)
	StationLimit int
}

// Chunk is a row-bounded segment of a source's normalized output destined
// for a single atomically-written file.
type Chunk struct {
	// Index is the zero-based position of the chunk in stream order
	Index int
	// Rows is the ordered subsequence of normalized records
	Rows []*NormalizedRecord
	// Path is the final destination of the chunk file
	Path string
}
