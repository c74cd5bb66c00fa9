package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/seastate/oceansync/pkg/models"
	"github.com/seastate/oceansync/pkg/syncerrors"
)

func testRecord(i int) *models.NormalizedRecord {
	return &models.NormalizedRecord{
		Time:      time.Date(2026, 8, 1, 0, 0, i, 0, time.UTC),
		Latitude:  30.5,
		Longitude: -120.25,
		Measurements: map[string]float64{
			"temperature_c": 15.0 + float64(i),
		},
		Source: "erddap",
	}
}

func readChunk(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

// Five records with a row limit of two must produce chunks of 2, 2 and 1
// whose concatenation reproduces the stream in order.
func TestChunkPartitioning(t *testing.T) {
	root := t.TempDir()
	var finalized []models.Chunk
	w, err := NewChunkWriter(root, "erddap", 2, zaptest.NewLogger(t), func(c models.Chunk) {
		finalized = append(finalized, c)
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, w.Add(testRecord(i)))
	}
	require.NoError(t, w.Flush())

	require.Equal(t, 3, w.ChunksWritten())
	require.Len(t, finalized, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{finalized[0].Index, finalized[1].Index, finalized[2].Index})

	var all [][]string
	for i := 0; i < 3; i++ {
		path := filepath.Join(root, "erddap", fmt.Sprintf("erddap_chunk_%04d.csv", i))
		rows := readChunk(t, path)
		require.Equal(t, models.CanonicalColumns, rows[0])
		assert.LessOrEqual(t, len(rows)-1, 2)
		all = append(all, rows[1:]...)
	}

	require.Len(t, all, 5)
	for i, row := range all {
		assert.Equal(t, testRecord(i).Time.Format(time.RFC3339), row[0], "row %d out of order", i)
	}
}

func TestFlushWithoutRecordsWritesNothing(t *testing.T) {
	root := t.TempDir()
	w, err := NewChunkWriter(root, "ndbc", 10, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	entries, err := os.ReadDir(filepath.Join(root, "ndbc"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// No temporary file may be visible at a final chunk path, and cleanup must
// remove residual temp files from an interrupted run.
func TestNoTempFilesSurvive(t *testing.T) {
	root := t.TempDir()
	w, err := NewChunkWriter(root, "argovis", 1, zaptest.NewLogger(t), nil)
	require.NoError(t, err)

	require.NoError(t, w.Add(testRecord(0)))
	require.NoError(t, w.Add(testRecord(1)))

	dir := filepath.Join(root, "argovis")
	// Simulate a crashed attempt leaving a temp file behind
	stale := filepath.Join(dir, ".argovis_chunk_0099.csv.tmp")
	require.NoError(t, os.WriteFile(stale, []byte("partial"), 0o644))

	w.Cleanup()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
	assert.Len(t, entries, 2)
}

// A failing chunk write surfaces an io-typed error and leaves chunks
// finalized before the failure intact on disk.
func TestFinalizeFailureKeepsEarlierChunks(t *testing.T) {
	root := t.TempDir()
	w, err := NewChunkWriter(root, "erddap", 2, zaptest.NewLogger(t), nil)
	require.NoError(t, err)

	require.NoError(t, w.Add(testRecord(0)))
	require.NoError(t, w.Add(testRecord(1))) // finalizes chunk 0

	// A directory squatting on the next temp path makes its creation fail
	dir := filepath.Join(root, "erddap")
	blocker := filepath.Join(dir, ".erddap_chunk_0001.csv.tmp")
	require.NoError(t, os.Mkdir(blocker, 0o755))

	require.NoError(t, w.Add(testRecord(2)))
	err = w.Add(testRecord(3))
	require.Error(t, err)
	assert.True(t, syncerrors.IsType(err, syncerrors.ErrorTypeIO))
	assert.False(t, syncerrors.IsRetryable(err))
	assert.Equal(t, 1, w.ChunksWritten())

	rows := readChunk(t, filepath.Join(dir, "erddap_chunk_0000.csv"))
	require.Len(t, rows, 3) // header + 2 records
	assert.Equal(t, testRecord(0).Time.Format(time.RFC3339), rows[1][0])
}

func TestRenderRowFormatsMeasurements(t *testing.T) {
	rec := &models.NormalizedRecord{
		Time:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Latitude:  10,
		Longitude: 20,
		Depth:     5.5,
		Measurements: map[string]float64{
			"temperature_c": 14.25,
			"salinity_psu":  35.1,
		},
	}
	row := renderRow(rec)
	require.Len(t, row, len(models.CanonicalColumns))
	assert.Equal(t, "2026-08-01T12:00:00Z", row[0])
	assert.Equal(t, "5.5", row[3])
	assert.Equal(t, "14.25", row[4]) // temperature_c
	assert.Equal(t, "35.1", row[5])  // salinity_psu
	assert.Equal(t, "", row[6])      // pressure_dbar absent
}
