// Package oceansync synchronizes observational data from multiple
// independent, heterogeneous oceanographic data providers into normalized,
// chunked CSV files, tracking per-source success and failure and producing
// a consistent execution record per run.
//
// # Architecture
//
// One run drives four stages:
//
// 1. Config: an immutable, validated snapshot of run parameters built once
// at startup from defaults, a YAML file, and OCEANSYNC_* environment
// overrides (pkg/config).
//
// 2. Source adapters: one per provider (ERDDAP, Copernicus, NDBC, Argovis),
// each producing a lazy stream of raw records with typed error translation
// at the adapter boundary (pkg/source/...).
//
// 3. Pipeline: the synchronizer runs one task per enabled source under a
// bounded worker pool with retry, exponential backoff with jitter, and
// failure isolation; the processor normalizes, validates, and partitions
// each stream into atomically-written chunk files (internal/pipeline).
//
// 4. Metadata collector: a single-writer event sink that renders the same
// event log as a text execution log, a tabular event log, and a JSON run
// summary, all agreeing on every count (pkg/metadata).
//
// # Quick Start
//
//	cfg, err := config.Load("oceansync.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	collector := metadata.NewCollector(logger.Get())
//	sync := pipeline.NewSynchronizer(cfg, collector, logger.Get())
//	meta, err := sync.Run(context.Background(), nil)
//
// The oceansync CLI (cmd/oceansync) wraps this with source selection,
// output placement, and exit-status mapping.
package oceansync
