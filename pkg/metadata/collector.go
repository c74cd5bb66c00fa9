package metadata

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seastate/oceansync/pkg/models"
	"github.com/seastate/oceansync/pkg/syncerrors"
)

// entry is the envelope drained by the collector goroutine; exactly one of
// event/result is set.
type entry struct {
	event  *Event
	result *models.SyncResult
}

// Collector is the process-wide, run-scoped event sink. It is created at run
// start and torn down by Finalize; no state survives across runs. Concurrent
// source tasks submit events through a buffered channel drained by a single
// goroutine, so the rendered outputs never interleave partially.
type Collector struct {
	logger *zap.Logger

	mu        sync.Mutex
	finalized bool
	ch        chan entry
	done      chan struct{}

	// written only by the drain goroutine until Finalize returns
	events []Event
	meta   models.RunMetadata
}

// NewCollector creates a collector for a new run and starts its drain
// goroutine. The run identifier is generated here and shared by all log
// artifacts.
func NewCollector(logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger,
		ch:     make(chan entry, 256),
		done:   make(chan struct{}),
		meta: models.RunMetadata{
			RunID:     uuid.NewString(),
			StartTime: time.Now().UTC(),
		},
	}
	go c.drain()
	return c
}

// RunID returns the run identifier shared by all artifacts of this run.
func (c *Collector) RunID() string {
	return c.meta.RunID
}

func (c *Collector) drain() {
	defer close(c.done)
	for e := range c.ch {
		switch {
		case e.event != nil:
			c.events = append(c.events, *e.event)
		case e.result != nil:
			c.meta.Sources = append(c.meta.Sources, *e.result)
		}
	}
}

// Emit submits one event. Events emitted after Finalize are discarded.
func (c *Collector) Emit(source string, typ EventType, message string, detail map[string]interface{}) {
	ev := Event{
		Time:    time.Now().UTC(),
		Source:  source,
		Type:    typ,
		Message: message,
		Detail:  detail,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		c.logger.Warn("event after run finalization dropped",
			zap.String("source", source), zap.String("type", string(typ)))
		return
	}
	c.ch <- entry{event: &ev}
}

// RecordResult submits the terminal SyncResult of one source.
func (c *Collector) RecordResult(result models.SyncResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return
	}
	c.ch <- entry{result: &result}
}

// Finalize closes the event sink, waits for the drain goroutine, computes
// aggregate totals, and returns the finished RunMetadata. The returned
// metadata is a copy; the collector accepts no further writes.
func (c *Collector) Finalize() *models.RunMetadata {
	c.mu.Lock()
	if c.finalized {
		c.mu.Unlock()
		meta := c.meta
		return &meta
	}
	c.finalized = true
	close(c.ch)
	c.mu.Unlock()

	<-c.done

	c.meta.EndTime = time.Now().UTC()
	for _, r := range c.meta.Sources {
		c.meta.Totals.RecordsFetched += r.RecordsFetched
		c.meta.Totals.RecordsDropped += r.RecordsDropped
		c.meta.Totals.RetriesUsed += r.RetriesUsed
		c.meta.Totals.ChunksWritten += r.ChunksWritten
		if r.Status == models.StatusFailed {
			c.meta.Totals.SourcesFailed++
		}
	}
	c.meta.Status = c.meta.OverallStatus()

	meta := c.meta
	return &meta
}

// Events returns the ordered event log. Valid only after Finalize.
func (c *Collector) Events() []Event {
	return c.events
}

// WriteTextLog renders the human-readable execution log.
func (c *Collector) WriteTextLog(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "run %s started %s\n", c.meta.RunID, c.meta.StartTime.Format(time.RFC3339)); err != nil {
		return err
	}
	for _, ev := range c.events {
		line := fmt.Sprintf("%s [%s] %s: %s", ev.Time.Format(time.RFC3339), ev.Source, ev.Type, ev.Message)
		if d := ev.detailString(); d != "" {
			line += " (" + d + ")"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	for _, r := range c.meta.Sources {
		if _, err := fmt.Fprintf(w, "source %s: %s fetched=%d dropped=%d retries=%d chunks=%d\n",
			r.Source, r.Status, r.RecordsFetched, r.RecordsDropped, r.RetriesUsed, r.ChunksWritten); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "run %s finished %s status=%s\n", c.meta.RunID, c.meta.EndTime.Format(time.RFC3339), c.meta.Status)
	return err
}

// WriteEventTable renders the structured tabular event log, one row per
// event with a fixed column set.
func (c *Collector) WriteEventTable(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "timestamp\tsource\tevent_type\tdetail"); err != nil {
		return err
	}
	for _, ev := range c.events {
		detail := ev.Message
		if d := ev.detailString(); d != "" {
			detail += " " + d
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			ev.Time.Format(time.RFC3339Nano), ev.Source, ev.Type, detail); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSONSummary renders the JSON run summary.
func (c *Collector) WriteJSONSummary(w io.Writer) error {
	data, err := json.MarshalIndent(&c.meta, "", "  ")
	if err != nil {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeIO, "failed to marshal run summary")
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// ArtifactWriter selects which artifacts WriteArtifacts produces.
type ArtifactWriter struct {
	TextLog     bool
	EventTable  bool
	JSONSummary bool
}

// WriteArtifacts writes the enabled log artifacts under dir, named by the
// run identifier.
func (c *Collector) WriteArtifacts(dir string, opts ArtifactWriter) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeIO, "failed to create log directory")
	}

	write := func(name string, render func(io.Writer) error) error {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return syncerrors.Wrap(err, syncerrors.ErrorTypeIO, "failed to create log artifact")
		}
		defer func() { _ = f.Close() }()
		return render(f)
	}

	if opts.TextLog {
		if err := write(fmt.Sprintf("run_%s.log", c.meta.RunID), c.WriteTextLog); err != nil {
			return err
		}
	}
	if opts.EventTable {
		if err := write(fmt.Sprintf("run_%s_events.tsv", c.meta.RunID), c.WriteEventTable); err != nil {
			return err
		}
	}
	if opts.JSONSummary {
		if err := write(fmt.Sprintf("run_%s_summary.json", c.meta.RunID), c.WriteJSONSummary); err != nil {
			return err
		}
	}
	return nil
}
