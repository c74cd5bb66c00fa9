// Package pipeline implements the oceansync core: the synchronizer that
// drives per-source fetch tasks under bounded concurrency, the processor
// that normalizes and chunks raw records, and the chunk writer that
// guarantees atomic chunk files.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/seastate/oceansync/pkg/config"
	"github.com/seastate/oceansync/pkg/logger"
	"github.com/seastate/oceansync/pkg/metadata"
	"github.com/seastate/oceansync/pkg/models"
	"github.com/seastate/oceansync/pkg/source"
	"github.com/seastate/oceansync/pkg/syncerrors"
)

// Synchronizer orchestrates source adapters for one run. Each enabled
// source runs as one task under a bounded worker pool; tasks are isolated,
// so one source's failure never cancels or delays the others.
type Synchronizer struct {
	cfg       *config.Config
	collector *metadata.Collector
	logger    *zap.Logger

	// newSource is the adapter factory; overridable in tests
	newSource func(name string, sc config.SourceConfig) (source.Source, error)
}

// NewSynchronizer creates a synchronizer for one run.
func NewSynchronizer(cfg *config.Config, collector *metadata.Collector, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		cfg:       cfg,
		collector: collector,
		logger:    logger,
		newSource: source.Create,
	}
}

// Run synchronizes the named sources (all enabled sources when names is
// empty) and returns the finalized run metadata. Only configuration errors
// abort the run; per-source failures are reported in the metadata.
func (s *Synchronizer) Run(ctx context.Context, names []string) (*models.RunMetadata, error) {
	selected, err := s.selectSources(names)
	if err != nil {
		return nil, err
	}

	if s.cfg.Sync.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Sync.RunTimeout)
		defer cancel()
	}

	workers := s.cfg.Sync.Workers
	if workers <= 0 || workers > len(selected) {
		workers = len(selected)
	}
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	done := make(chan struct{}, len(selected))

	for _, name := range selected {
		go func(name string) {
			defer func() { done <- struct{}{} }()
			sem <- struct{}{}
			defer func() { <-sem }()

			result := s.runSource(ctx, name)
			s.collector.RecordResult(result)
		}(name)
	}
	for range selected {
		<-done
	}

	return s.collector.Finalize(), nil
}

// selectSources resolves the requested source names against the
// configuration. Unknown names are configuration errors; names is empty
// means all enabled sources.
func (s *Synchronizer) selectSources(names []string) ([]string, error) {
	if len(names) == 0 {
		return s.cfg.Sources.Enabled(), nil
	}
	var selected []string
	for _, name := range names {
		sc, ok := s.cfg.Sources.ByName(name)
		if !ok {
			return nil, syncerrors.Newf(syncerrors.ErrorTypeConfig, "unknown source %q", name)
		}
		if !sc.Enabled {
			s.logger.Warn("requested source is disabled, skipping", zap.String("source", name))
			continue
		}
		selected = append(selected, name)
	}
	return selected, nil
}

// runSource drives one source task through its attempt loop:
// Pending -> Running -> (Retrying -> Running)* -> terminal. Retries apply
// only to transport-class errors; auth and config errors terminate the
// source immediately. Exactly one SyncResult is produced.
func (s *Synchronizer) runSource(ctx context.Context, name string) models.SyncResult {
	// Tag the task context so adapters logging via logger.WithContext carry
	// the run and source identifiers
	ctx = context.WithValue(ctx, logger.SourceKey, name)
	log := s.logger.With(zap.String("source", name))
	started := time.Now()
	result := models.SyncResult{Source: name, Status: models.StatusFailed}

	sc, _ := s.cfg.Sources.ByName(name)
	src, err := s.newSource(name, sc)
	if err != nil {
		result.Error = err.Error()
		result.Duration = time.Since(started)
		s.collector.Emit(name, metadata.EventError, err.Error(), nil)
		return result
	}

	window := buildWindow(sc)
	s.collector.Emit(name, metadata.EventSourceStarted, "source task started", map[string]interface{}{
		"window_start": window.Start.Format(time.RFC3339),
		"window_end":   window.End.Format(time.RFC3339),
	})
	log.Info("source task started")

	maxAttempts := s.cfg.Sync.MaxAttempts
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fetched, dropped, chunks, err := s.attempt(ctx, src, sc, window)
		result.RecordsFetched = fetched
		result.RecordsDropped = dropped
		// Chunks finalized by an earlier attempt persist on disk, so a
		// later empty-handed attempt must not hide them
		if chunks > result.ChunksWritten {
			result.ChunksWritten = chunks
		}

		s.collector.Emit(name, metadata.EventAttempt, "fetch attempt finished", map[string]interface{}{
			"attempt": attempt,
			"ok":      err == nil,
		})

		if err == nil {
			result.Status = models.StatusSucceeded
			result.Duration = time.Since(started)
			s.finishSource(log, result)
			return result
		}
		lastErr = err

		if ctx.Err() != nil || !syncerrors.IsRetryable(err) || attempt == maxAttempts {
			break
		}

		delay := backoffDelay(s.cfg.Sync.RetryDelay, s.cfg.Sync.MaxRetryDelay, attempt)
		s.collector.Emit(name, metadata.EventRetryScheduled, "retrying after backoff", map[string]interface{}{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
		})
		log.Warn("attempt failed, retrying",
			zap.Int("attempt", attempt), zap.Duration("backoff", delay), zap.Error(err))

		// A retry counts only once its backoff completes; a deadline firing
		// mid-backoff means no further attempt runs
		select {
		case <-time.After(delay):
			result.RetriesUsed++
		case <-ctx.Done():
			lastErr = syncerrors.Wrap(ctx.Err(), syncerrors.ErrorTypeTimeout, "run deadline exceeded")
			attempt = maxAttempts
		}
	}

	// Terminal failure; output finalized before the failure stays valid
	if result.ChunksWritten > 0 {
		result.Status = models.StatusPartial
	} else {
		result.Status = models.StatusFailed
	}
	if lastErr != nil {
		result.Error = lastErr.Error()
		s.collector.Emit(name, metadata.EventError, lastErr.Error(), map[string]interface{}{
			"error_type": string(syncerrors.TypeOf(lastErr)),
		})
	}
	result.Duration = time.Since(started)
	s.finishSource(log, result)
	return result
}

// attempt performs one full fetch-validate-chunk pass for a source.
func (s *Synchronizer) attempt(ctx context.Context, src source.Source, sc config.SourceConfig, window models.Window) (fetched, dropped, chunks int, err error) {
	name := src.Name()
	log := s.logger.With(zap.String("source", name))

	writer, err := NewChunkWriter(s.cfg.Output.Root, name, s.cfg.Output.ChunkSize, log, func(chunk models.Chunk) {
		s.collector.Emit(name, metadata.EventChunkWritten, "chunk written", map[string]interface{}{
			"index": chunk.Index,
			"rows":  len(chunk.Rows),
			"path":  chunk.Path,
		})
	})
	if err != nil {
		return 0, 0, 0, err
	}
	if s.cfg.Output.CleanupTempFiles {
		defer writer.Cleanup()
	}

	stream, err := src.Fetch(ctx, window)
	if err != nil {
		return 0, 0, 0, err
	}

	proc := NewProcessor(name, sc.Region, writer, s.collector, log)
	err = proc.Process(ctx, stream)
	fetched, dropped = proc.Counts()
	return fetched, dropped, writer.ChunksWritten(), err
}

func (s *Synchronizer) finishSource(log *zap.Logger, result models.SyncResult) {
	s.collector.Emit(result.Source, metadata.EventSourceFinished, "source task finished", map[string]interface{}{
		"status":          string(result.Status),
		"records_fetched": result.RecordsFetched,
		"records_dropped": result.RecordsDropped,
		"retries_used":    result.RetriesUsed,
		"chunks_written":  result.ChunksWritten,
	})
	log.Info("source task finished",
		zap.String("status", string(result.Status)),
		zap.Int("records_fetched", result.RecordsFetched),
		zap.Int("records_dropped", result.RecordsDropped),
		zap.Int("retries_used", result.RetriesUsed),
		zap.Int("chunks_written", result.ChunksWritten),
		zap.Duration("duration", result.Duration))
}

// buildWindow derives the sync window from a source block.
func buildWindow(sc config.SourceConfig) models.Window {
	end := time.Now().UTC()
	return models.Window{
		Start:        end.AddDate(0, 0, -sc.DaysBack),
		End:          end,
		ProfileLimit: sc.ProfileLimit,
		StationLimit: sc.StationLimit,
	}
}
