package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/seastate/oceansync/pkg/config"
	"github.com/seastate/oceansync/pkg/metadata"
	"github.com/seastate/oceansync/pkg/models"
	"github.com/seastate/oceansync/pkg/source"
	"github.com/seastate/oceansync/pkg/syncerrors"
)

// streamOf feeds the given records in order, then an optional trailing
// error, the way a real adapter produces its stream.
func streamOf(records []*models.RawRecord, trailing error) *source.RecordStream {
	rc := make(chan *models.RawRecord)
	ec := make(chan error, 1)
	go func() {
		defer close(rc)
		defer close(ec)
		for _, r := range records {
			rc <- r
		}
		if trailing != nil {
			ec <- trailing
		}
	}()
	return &source.RecordStream{Records: rc, Errors: ec}
}

func validRaw(i int) *models.RawRecord {
	return models.NewRawRecord("erddap", map[string]interface{}{
		"time":        time.Date(2026, 8, 1, 0, 0, i, 0, time.UTC).Format(time.RFC3339),
		"latitude":    "32.5",
		"longitude":   "-117.25",
		"temperature": "16.4",
	})
}

func newTestProcessor(t *testing.T, region *config.RegionConfig, chunkSize int) (*Processor, *ChunkWriter, *metadata.Collector) {
	t.Helper()
	log := zaptest.NewLogger(t)
	collector := metadata.NewCollector(log)
	t.Cleanup(func() { collector.Finalize() })

	writer, err := NewChunkWriter(t.TempDir(), "erddap", chunkSize, log, nil)
	require.NoError(t, err)
	return NewProcessor("erddap", region, writer, collector, log), writer, collector
}

// Ten raw records with two missing a required field: exactly those two are
// dropped and the remaining eight are chunked.
func TestProcessDropsInvalidRecords(t *testing.T) {
	var records []*models.RawRecord
	for i := 0; i < 8; i++ {
		records = append(records, validRaw(i))
	}
	noTime := models.NewRawRecord("erddap", map[string]interface{}{
		"latitude": "1", "longitude": "2", "temperature": "3",
	})
	noPosition := models.NewRawRecord("erddap", map[string]interface{}{
		"time": "2026-08-01T00:00:00Z", "temperature": "3",
	})
	records = append(records, noTime, noPosition)

	proc, writer, _ := newTestProcessor(t, nil, 100)
	require.NoError(t, proc.Process(context.Background(), streamOf(records, nil)))

	fetched, dropped := proc.Counts()
	assert.Equal(t, 10, fetched)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, 1, writer.ChunksWritten())
}

func TestProcessEmitsDropEvents(t *testing.T) {
	proc, _, collector := newTestProcessor(t, nil, 10)
	bad := models.NewRawRecord("erddap", map[string]interface{}{
		"time": "not-a-timestamp", "latitude": "1", "longitude": "2", "temperature": "3",
	})
	require.NoError(t, proc.Process(context.Background(), streamOf([]*models.RawRecord{bad}, nil)))

	collector.Finalize()
	events := collector.Events()
	require.Len(t, events, 1)
	assert.Equal(t, metadata.EventRecordDropped, events[0].Type)
	assert.Equal(t, ReasonBadTime, events[0].Detail["reason"])
}

func TestProcessSurfacesTrailingError(t *testing.T) {
	boom := syncerrors.New(syncerrors.ErrorTypeTransport, "connection reset")
	proc, writer, _ := newTestProcessor(t, nil, 2)

	err := proc.Process(context.Background(), streamOf([]*models.RawRecord{validRaw(0), validRaw(1)}, boom))
	require.Error(t, err)
	assert.True(t, syncerrors.IsType(err, syncerrors.ErrorTypeTransport))
	// The full chunk finalized before the error persists
	assert.Equal(t, 1, writer.ChunksWritten())
}

func TestProcessHonorsCancellation(t *testing.T) {
	proc, _, _ := newTestProcessor(t, nil, 10)

	// Open stream that never produces: cancellation must unblock Process
	rc := make(chan *models.RawRecord)
	ec := make(chan error)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := proc.Process(ctx, &source.RecordStream{Records: rc, Errors: ec})
	require.Error(t, err)
	assert.True(t, syncerrors.IsType(err, syncerrors.ErrorTypeTimeout))
}

func TestNormalizeTimestampToUTC(t *testing.T) {
	proc, _, _ := newTestProcessor(t, nil, 10)
	raw := models.NewRawRecord("erddap", map[string]interface{}{
		"time":        "2026-08-01T10:00:00+02:00",
		"latitude":    "0",
		"longitude":   "0",
		"temperature": "1",
	})
	norm, reason := proc.normalize(raw)
	require.Empty(t, reason)
	assert.Equal(t, time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC), norm.Time)
}

func TestNormalizeUnitConversions(t *testing.T) {
	proc, _, _ := newTestProcessor(t, nil, 10)
	raw := models.NewRawRecord("copernicus", map[string]interface{}{
		"time":          "2026-08-01T00:00:00Z",
		"latitude":      10.0,
		"longitude":     20.0,
		"temperature_k": 288.15,
		"wind_speed_kn": 10.0,
	})
	norm, reason := proc.normalize(raw)
	require.Empty(t, reason)
	assert.InDelta(t, 15.0, norm.Measurements["temperature_c"], 1e-9)
	assert.InDelta(t, 5.14444, norm.Measurements["wind_speed_ms"], 1e-4)
}

func TestNormalizeFieldAliases(t *testing.T) {
	proc, _, _ := newTestProcessor(t, nil, 10)
	raw := models.NewRawRecord("ndbc", map[string]interface{}{
		"time":        "2026-08-01T00:00:00Z",
		"latitude":    10.0,
		"longitude":   20.0,
		"wtmp":        "18.2",
		"wspd":        "7.5",
		"wvht":        "1.4",
		"pressure":    "1013.2",
	})
	norm, reason := proc.normalize(raw)
	require.Empty(t, reason)
	assert.InDelta(t, 18.2, norm.Measurements["temperature_c"], 1e-9)
	assert.InDelta(t, 7.5, norm.Measurements["wind_speed_ms"], 1e-9)
	assert.InDelta(t, 1.4, norm.Measurements["wave_height_m"], 1e-9)
	assert.InDelta(t, 1013.2, norm.Measurements["pressure_dbar"], 1e-9)
}

func TestNormalizeRejectsOutOfRangePositions(t *testing.T) {
	proc, _, _ := newTestProcessor(t, nil, 10)
	raw := models.NewRawRecord("erddap", map[string]interface{}{
		"time": "2026-08-01T00:00:00Z", "latitude": "95", "longitude": "0", "temperature": "1",
	})
	norm, reason := proc.normalize(raw)
	assert.Nil(t, norm)
	assert.Equal(t, ReasonPositionRange, reason)
}

func TestNormalizeRegionFilter(t *testing.T) {
	region := &config.RegionConfig{LatMin: 20, LatMax: 50, LonMin: -130, LonMax: -60}
	proc, _, _ := newTestProcessor(t, region, 10)

	inside := models.NewRawRecord("ndbc", map[string]interface{}{
		"time": "2026-08-01T00:00:00Z", "latitude": 30.0, "longitude": -120.0, "temperature": "1",
	})
	outside := models.NewRawRecord("ndbc", map[string]interface{}{
		"time": "2026-08-01T00:00:00Z", "latitude": 10.0, "longitude": -120.0, "temperature": "1",
	})

	norm, reason := proc.normalize(inside)
	require.Empty(t, reason)
	require.NotNil(t, norm)

	norm, reason = proc.normalize(outside)
	assert.Nil(t, norm)
	assert.Equal(t, ReasonOutOfRegion, reason)
}

func TestNormalizeQCFilter(t *testing.T) {
	proc, _, _ := newTestProcessor(t, nil, 10)
	raw := models.NewRawRecord("argovis", map[string]interface{}{
		"time": "2026-08-01T00:00:00Z", "latitude": 0.0, "longitude": 0.0,
		"temperature": 5.0, "qc": 4,
	})
	norm, reason := proc.normalize(raw)
	assert.Nil(t, norm)
	assert.Equal(t, ReasonBadQC, reason)
}

func TestNormalizeDepthFromPressure(t *testing.T) {
	proc, _, _ := newTestProcessor(t, nil, 10)
	raw := models.NewRawRecord("argovis", map[string]interface{}{
		"time": "2026-08-01T00:00:00Z", "latitude": 0.0, "longitude": 0.0,
		"pressure_dbar": 150.0, "temperature": 5.0,
	})
	norm, reason := proc.normalize(raw)
	require.Empty(t, reason)
	assert.InDelta(t, 150.0, norm.Depth, 1e-9)
}

func TestNormalizeRequiresMeasurements(t *testing.T) {
	proc, _, _ := newTestProcessor(t, nil, 10)
	raw := models.NewRawRecord("erddap", map[string]interface{}{
		"time": "2026-08-01T00:00:00Z", "latitude": "0", "longitude": "0",
	})
	norm, reason := proc.normalize(raw)
	assert.Nil(t, norm)
	assert.Equal(t, ReasonNoMeasurements, reason)
}
