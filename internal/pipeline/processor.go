package pipeline

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/seastate/oceansync/pkg/config"
	"github.com/seastate/oceansync/pkg/metadata"
	"github.com/seastate/oceansync/pkg/models"
	"github.com/seastate/oceansync/pkg/source"
	"github.com/seastate/oceansync/pkg/syncerrors"
)

// Drop reason codes attached to validation events.
const (
	ReasonMissingTime     = "missing_time"
	ReasonBadTime         = "bad_time"
	ReasonMissingPosition = "missing_position"
	ReasonPositionRange   = "position_out_of_range"
	ReasonOutOfRegion     = "out_of_region"
	ReasonBadQC           = "bad_qc"
	ReasonNoMeasurements  = "no_measurements"
)

// timeLayouts are accepted timestamp formats, tried in order.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// measurementAliases maps provider field names to canonical measurement
// columns. Fields with unit-bearing names are converted by convertValue.
var measurementAliases = map[string]string{
	"temperature":   "temperature_c",
	"temp":          "temperature_c",
	"wtmp":          "temperature_c",
	"temperature_c": "temperature_c",
	"temperature_k": "temperature_c",
	"salinity":      "salinity_psu",
	"psal":          "salinity_psu",
	"salinity_psu":  "salinity_psu",
	"pressure":      "pressure_dbar",
	"pres":          "pressure_dbar",
	"pressure_dbar": "pressure_dbar",
	"wind_speed":    "wind_speed_ms",
	"wspd":          "wind_speed_ms",
	"wind_speed_ms": "wind_speed_ms",
	"wind_speed_kn": "wind_speed_ms",
	"wave_height":   "wave_height_m",
	"wvht":          "wave_height_m",
	"wave_height_m": "wave_height_m",
}

// Processor consumes one source's raw record stream, normalizes it into the
// canonical schema, drops invalid rows with a reason code, and partitions
// the cleaned stream into row-bounded chunks.
type Processor struct {
	src       string
	region    *config.RegionConfig
	writer    *ChunkWriter
	collector *metadata.Collector
	logger    *zap.Logger

	fetched int
	dropped int
}

// NewProcessor creates a processor for one source task.
func NewProcessor(src string, region *config.RegionConfig, writer *ChunkWriter, collector *metadata.Collector, logger *zap.Logger) *Processor {
	return &Processor{
		src:       src,
		region:    region,
		writer:    writer,
		collector: collector,
		logger:    logger,
	}
}

// Counts returns records fetched and dropped so far.
func (p *Processor) Counts() (fetched, dropped int) {
	return p.fetched, p.dropped
}

// Process drains the stream to completion. Record-level validation failures
// are absorbed as drop events; a mid-stream source error or a chunk write
// failure terminates processing and is returned to the caller. On clean
// completion the residual partial chunk is flushed.
func (p *Processor) Process(ctx context.Context, stream *source.RecordStream) error {
	records := stream.Records
	errs := stream.Errors

	for {
		select {
		case rec, ok := <-records:
			if !ok {
				// Stream exhausted; surface a trailing error if the
				// adapter reported one before closing
				if errs != nil {
					if err, ok := <-errs; ok && err != nil {
						return err
					}
				}
				return p.writer.Flush()
			}
			p.fetched++
			if err := p.handleRecord(rec); err != nil {
				return err
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return syncerrors.Wrap(ctx.Err(), syncerrors.ErrorTypeTimeout, "processing cancelled")
		}
	}
}

// handleRecord normalizes one raw record and appends it to the current
// chunk. Validation failures drop the record; only write errors propagate.
func (p *Processor) handleRecord(rec *models.RawRecord) error {
	norm, reason := p.normalize(rec)
	if norm == nil {
		p.dropped++
		p.collector.Emit(p.src, metadata.EventRecordDropped, "record dropped",
			map[string]interface{}{"reason": reason})
		p.logger.Debug("record dropped", zap.String("reason", reason))
		return nil
	}
	return p.writer.Add(norm)
}

// normalize maps a raw record into the canonical schema. A nil record with
// a reason code means the record is invalid and must be dropped.
func (p *Processor) normalize(rec *models.RawRecord) (*models.NormalizedRecord, string) {
	ts, reason := parseTime(rec.Fields)
	if reason != "" {
		return nil, reason
	}

	lat, latOK := toFloat(rec.Fields["latitude"])
	lon, lonOK := toFloat(rec.Fields["longitude"])
	if !latOK || !lonOK {
		return nil, ReasonMissingPosition
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, ReasonPositionRange
	}
	if p.region != nil && !p.region.Contains(lat, lon) {
		return nil, ReasonOutOfRegion
	}

	if qc, ok := toFloat(rec.Fields["qc"]); ok && qc > 2 {
		return nil, ReasonBadQC
	}

	measurements := make(map[string]float64)
	for field, canonical := range measurementAliases {
		raw, ok := rec.Fields[field]
		if !ok {
			continue
		}
		v, ok := toFloat(raw)
		if !ok {
			continue
		}
		measurements[canonical] = convertValue(field, v)
	}
	if len(measurements) == 0 {
		return nil, ReasonNoMeasurements
	}

	depth := 0.0
	if d, ok := toFloat(rec.Fields["depth"]); ok {
		depth = d
	} else if d, ok := toFloat(rec.Fields["depth_m"]); ok {
		depth = d
	} else if pres, ok := measurements["pressure_dbar"]; ok {
		// 1 dbar is close to 1 m of seawater; good enough for placement
		depth = pres
	}

	return &models.NormalizedRecord{
		Time:         ts.UTC(),
		Latitude:     lat,
		Longitude:    lon,
		Depth:        depth,
		Measurements: measurements,
		Source:       rec.Source,
	}, ""
}

// convertValue standardizes units based on the provider field name.
func convertValue(field string, v float64) float64 {
	switch field {
	case "temperature_k":
		return v - 273.15
	case "wind_speed_kn":
		return v * 0.514444
	default:
		return v
	}
}

// parseTime extracts and normalizes the record timestamp to UTC.
func parseTime(fields map[string]interface{}) (time.Time, string) {
	raw, ok := fields["time"]
	if !ok {
		return time.Time{}, ReasonMissingTime
	}

	switch v := raw.(type) {
	case time.Time:
		return v, ""
	case string:
		if v == "" {
			return time.Time{}, ReasonMissingTime
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, v); err == nil {
				return ts, ""
			}
		}
		return time.Time{}, ReasonBadTime
	default:
		return time.Time{}, ReasonBadTime
	}
}

// toFloat coerces a raw field value to float64.
func toFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		if v == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
