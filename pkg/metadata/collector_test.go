package metadata

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/seastate/oceansync/pkg/models"
)

func TestCollectorRunID(t *testing.T) {
	c := NewCollector(zaptest.NewLogger(t))
	defer c.Finalize()
	assert.NotEmpty(t, c.RunID())
}

func TestFinalizeAggregatesTotals(t *testing.T) {
	c := NewCollector(zaptest.NewLogger(t))

	c.RecordResult(models.SyncResult{
		Source: "erddap", Status: models.StatusSucceeded,
		RecordsFetched: 10, RecordsDropped: 2, RetriesUsed: 1, ChunksWritten: 3,
	})
	c.RecordResult(models.SyncResult{
		Source: "ndbc", Status: models.StatusFailed,
		RecordsFetched: 4, RetriesUsed: 2, Error: "transport: boom",
	})

	meta := c.Finalize()
	assert.Equal(t, 14, meta.Totals.RecordsFetched)
	assert.Equal(t, 2, meta.Totals.RecordsDropped)
	assert.Equal(t, 3, meta.Totals.RetriesUsed)
	assert.Equal(t, 3, meta.Totals.ChunksWritten)
	assert.Equal(t, 1, meta.Totals.SourcesFailed)
	assert.Equal(t, models.StatusFailed, meta.Status)
	assert.False(t, meta.EndTime.IsZero())
}

func TestEmitAfterFinalizeIsDropped(t *testing.T) {
	c := NewCollector(zaptest.NewLogger(t))
	c.Finalize()
	// Must not panic or block
	c.Emit("erddap", EventAttempt, "late event", nil)
	c.RecordResult(models.SyncResult{Source: "erddap"})

	meta := c.Finalize()
	assert.Empty(t, meta.Sources)
}

func TestConcurrentEmitters(t *testing.T) {
	c := NewCollector(zaptest.NewLogger(t))

	const perSource = 50
	sources := []string{"erddap", "copernicus", "ndbc", "argovis"}
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src string) {
			defer wg.Done()
			for i := 0; i < perSource; i++ {
				c.Emit(src, EventRecordDropped, "record dropped", map[string]interface{}{"i": i})
			}
		}(src)
	}
	wg.Wait()
	c.Finalize()

	assert.Len(t, c.Events(), len(sources)*perSource)
}

// The collector's core contract: all three renderings are built from the
// same event log and agree on every count.
func TestRenderingsAgree(t *testing.T) {
	c := NewCollector(zaptest.NewLogger(t))

	for i := 0; i < 3; i++ {
		c.Emit("erddap", EventChunkWritten, "chunk written", map[string]interface{}{"index": i})
	}
	c.Emit("erddap", EventRecordDropped, "record dropped", map[string]interface{}{"reason": "bad_time"})
	c.Emit("ndbc", EventRetryScheduled, "retrying after backoff", map[string]interface{}{"attempt": 1})

	c.RecordResult(models.SyncResult{
		Source: "erddap", Status: models.StatusSucceeded,
		RecordsFetched: 7, RecordsDropped: 1, ChunksWritten: 3,
	})
	c.RecordResult(models.SyncResult{
		Source: "ndbc", Status: models.StatusSucceeded,
		RecordsFetched: 5, RetriesUsed: 1, ChunksWritten: 1,
	})
	meta := c.Finalize()

	// JSON summary
	var jsonBuf bytes.Buffer
	require.NoError(t, c.WriteJSONSummary(&jsonBuf))
	var decoded models.RunMetadata
	require.NoError(t, json.Unmarshal(jsonBuf.Bytes(), &decoded))
	assert.Equal(t, meta.RunID, decoded.RunID)
	assert.Equal(t, 12, decoded.Totals.RecordsFetched)
	assert.Equal(t, 4, decoded.Totals.ChunksWritten)

	// Event table: one row per event plus header
	var tableBuf bytes.Buffer
	require.NoError(t, c.WriteEventTable(&tableBuf))
	scanner := bufio.NewScanner(&tableBuf)
	require.True(t, scanner.Scan())
	assert.Equal(t, "timestamp\tsource\tevent_type\tdetail", scanner.Text())
	rows, chunkRows := 0, 0
	for scanner.Scan() {
		rows++
		if strings.Contains(scanner.Text(), string(EventChunkWritten)) {
			chunkRows++
		}
	}
	assert.Equal(t, len(c.Events()), rows)
	// chunk events in the table match chunks_written in the summary for erddap
	assert.Equal(t, decoded.Sources[0].ChunksWritten, chunkRows)

	// Text log carries the same per-source counts
	var textBuf bytes.Buffer
	require.NoError(t, c.WriteTextLog(&textBuf))
	text := textBuf.String()
	assert.Contains(t, text, fmt.Sprintf("run %s started", meta.RunID))
	assert.Contains(t, text, "source erddap: succeeded fetched=7 dropped=1 retries=0 chunks=3")
	assert.Contains(t, text, "source ndbc: succeeded fetched=5 dropped=0 retries=1 chunks=1")
	assert.Contains(t, text, "status=succeeded")
}

func TestWriteArtifacts(t *testing.T) {
	c := NewCollector(zaptest.NewLogger(t))
	c.Emit("argovis", EventSourceStarted, "source task started", nil)
	c.RecordResult(models.SyncResult{Source: "argovis", Status: models.StatusSucceeded})
	c.Finalize()

	dir := t.TempDir()
	require.NoError(t, c.WriteArtifacts(dir, ArtifactWriter{TextLog: true, EventTable: true, JSONSummary: true}))

	for _, name := range []string{
		"run_" + c.RunID() + ".log",
		"run_" + c.RunID() + "_events.tsv",
		"run_" + c.RunID() + "_summary.json",
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestWriteArtifactsRespectsToggles(t *testing.T) {
	c := NewCollector(zaptest.NewLogger(t))
	c.Finalize()

	dir := t.TempDir()
	require.NoError(t, c.WriteArtifacts(dir, ArtifactWriter{JSONSummary: true}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), "_summary.json"))
}
