package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/seastate/oceansync/pkg/models"
	"github.com/seastate/oceansync/pkg/pool"
	"github.com/seastate/oceansync/pkg/syncerrors"
)

// rowPool recycles the scratch slice used to render CSV rows; csv.Writer
// does not retain the slice after Write.
var rowPool = pool.New(func() []string {
	return make([]string, 0, len(models.CanonicalColumns))
})

// ChunkWriter partitions one source's normalized stream into row-bounded
// chunk files. Each chunk is written to a temporary file and atomically
// promoted by rename, so a partially-written chunk is never visible at its
// final path. Chunk numbering is sequential from 0 in stream order.
type ChunkWriter struct {
	dir       string
	source    string
	chunkSize int
	logger    *zap.Logger

	// onChunk is invoked after each chunk is finalized
	onChunk func(chunk models.Chunk)

	index int
	buf   []*models.NormalizedRecord
}

// NewChunkWriter creates a writer for one source's output directory.
func NewChunkWriter(root, source string, chunkSize int, logger *zap.Logger, onChunk func(models.Chunk)) (*ChunkWriter, error) {
	dir := filepath.Join(root, source)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeIO, "failed to create output directory")
	}
	return &ChunkWriter{
		dir:       dir,
		source:    source,
		chunkSize: chunkSize,
		logger:    logger,
		onChunk:   onChunk,
	}, nil
}

// Add appends one record to the current chunk, finalizing it when full.
func (w *ChunkWriter) Add(rec *models.NormalizedRecord) error {
	w.buf = append(w.buf, rec)
	if len(w.buf) >= w.chunkSize {
		return w.finalize()
	}
	return nil
}

// Flush finalizes the residual partial chunk, if any. Called once after the
// source stream completes successfully.
func (w *ChunkWriter) Flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	return w.finalize()
}

// ChunksWritten returns the number of finalized chunks.
func (w *ChunkWriter) ChunksWritten() int {
	return w.index
}

// finalize writes the buffered rows to a temp file and promotes it.
func (w *ChunkWriter) finalize() error {
	final := filepath.Join(w.dir, fmt.Sprintf("%s_chunk_%04d.csv", w.source, w.index))
	tmp := filepath.Join(w.dir, fmt.Sprintf(".%s_chunk_%04d.csv.tmp", w.source, w.index))

	if err := w.writeFile(tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return syncerrors.Wrap(err, syncerrors.ErrorTypeIO, "failed to promote chunk file")
	}

	chunk := models.Chunk{Index: w.index, Rows: w.buf, Path: final}
	w.logger.Debug("chunk finalized",
		zap.Int("index", chunk.Index), zap.Int("rows", len(chunk.Rows)), zap.String("path", final))

	w.index++
	w.buf = nil
	if w.onChunk != nil {
		w.onChunk(chunk)
	}
	return nil
}

// writeFile renders the buffered rows as canonical CSV at path.
func (w *ChunkWriter) writeFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeIO, "failed to create chunk file")
	}

	cw := csv.NewWriter(f)
	if err := cw.Write(models.CanonicalColumns); err != nil {
		_ = f.Close()
		return syncerrors.Wrap(err, syncerrors.ErrorTypeIO, "failed to write chunk header")
	}
	row := rowPool.Get()
	defer func() { rowPool.Put(row) }()
	for _, rec := range w.buf {
		row = appendRow(row[:0], rec)
		if err := cw.Write(row); err != nil {
			_ = f.Close()
			return syncerrors.Wrap(err, syncerrors.ErrorTypeIO, "failed to write chunk row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = f.Close()
		return syncerrors.Wrap(err, syncerrors.ErrorTypeIO, "failed to flush chunk file")
	}
	if err := f.Close(); err != nil {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeIO, "failed to close chunk file")
	}
	return nil
}

// Cleanup removes residual temporary files left by an interrupted run.
func (w *ChunkWriter) Cleanup() {
	pattern := filepath.Join(w.dir, ".*.tmp")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			w.logger.Debug("removed residual temp file", zap.String("path", m))
		}
	}
}

// renderRow formats one record in canonical column order.
func renderRow(rec *models.NormalizedRecord) []string {
	return appendRow(make([]string, 0, len(models.CanonicalColumns)), rec)
}

// appendRow appends the record's canonical columns to row.
func appendRow(row []string, rec *models.NormalizedRecord) []string {
	row = append(row,
		rec.Time.UTC().Format(time.RFC3339),
		formatFloat(rec.Latitude),
		formatFloat(rec.Longitude),
		formatFloat(rec.Depth),
	)
	for _, col := range models.MeasurementColumns {
		if v, ok := rec.Measurements[col]; ok {
			row = append(row, formatFloat(v))
		} else {
			row = append(row, "")
		}
	}
	return row
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
