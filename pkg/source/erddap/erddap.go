// Package erddap provides a source adapter for ERDDAP tabledap servers.
// It fetches observation rows as CSV pages and streams them lazily.
package erddap

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/seastate/oceansync/pkg/clients"
	"github.com/seastate/oceansync/pkg/config"
	"github.com/seastate/oceansync/pkg/logger"
	"github.com/seastate/oceansync/pkg/models"
	"github.com/seastate/oceansync/pkg/source"
	"github.com/seastate/oceansync/pkg/syncerrors"
)

const (
	sourceName  = "erddap"
	description = "ERDDAP tabledap server (paged CSV queries)"

	defaultBaseURL = "https://coastwatch.pfeg.noaa.gov/erddap"
	defaultDataset = "erdGlobecBottle"
	pageSize       = 1000
)

// columns requested from the dataset, in canonical-friendly naming
var queryColumns = []string{"time", "latitude", "longitude", "temperature", "salinity"}

func init() {
	_ = source.Register(sourceName, description, New)
}

// Source fetches observation rows from an ERDDAP tabledap dataset.
type Source struct {
	cfg    config.SourceConfig
	client *clients.HTTPClient
	logger *zap.Logger
	base   string
}

// New creates an ERDDAP adapter from its source block.
func New(cfg config.SourceConfig) (source.Source, error) {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	httpCfg := clients.DefaultHTTPConfig()
	httpCfg.RequestTimeout = cfg.RequestTimeout
	httpCfg.RateLimitPerSec = cfg.RateLimitPerSec

	log := logger.With(zap.String("source", sourceName))
	return &Source{
		cfg:    cfg,
		client: clients.NewHTTPClient(httpCfg, log),
		logger: log,
		base:   base,
	}, nil
}

// Name returns the registered source name
func (s *Source) Name() string { return sourceName }

// Description returns the adapter description
func (s *Source) Description() string { return description }

// Fetch streams dataset rows page by page. Each page is one tabledap CSV
// request; the stream ends when a page comes back short.
func (s *Source) Fetch(ctx context.Context, window models.Window) (*source.RecordStream, error) {
	records := make(chan *models.RawRecord)
	errs := make(chan error, 1)

	go func() {
		defer close(records)
		defer close(errs)

		for page := 1; ; page++ {
			rows, err := s.fetchPage(ctx, window, page)
			if err != nil {
				errs <- err
				return
			}
			for _, row := range rows {
				select {
				case records <- row:
				case <-ctx.Done():
					errs <- syncerrors.Wrap(ctx.Err(), syncerrors.ErrorTypeTimeout, "fetch cancelled")
					return
				}
			}
			if len(rows) < pageSize {
				return
			}
		}
	}()

	return &source.RecordStream{Records: records, Errors: errs}, nil
}

// fetchPage requests one CSV page and parses it into raw records.
func (s *Source) fetchPage(ctx context.Context, window models.Window, page int) ([]*models.RawRecord, error) {
	u := s.queryURL(window, page)
	body, err := s.client.Get(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	return parseCSV(body)
}

// queryURL builds the tabledap CSV query for one page.
func (s *Source) queryURL(window models.Window, page int) string {
	query := ""
	for i, col := range queryColumns {
		if i > 0 {
			query += ","
		}
		query += col
	}
	query += fmt.Sprintf("&time>=%s", window.Start.UTC().Format(time.RFC3339))
	query += fmt.Sprintf("&time<=%s", window.End.UTC().Format(time.RFC3339))
	query += fmt.Sprintf("&page=%d&itemsPerPage=%d", page, pageSize)
	return fmt.Sprintf("%s/tabledap/%s.csv?%s", s.base, defaultDataset, url.PathEscape(query))
}

// parseCSV decodes a tabledap CSV response. The first row holds column
// names, the second holds units; both are skipped for data.
func parseCSV(body []byte) ([]*models.RawRecord, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeValidation, "malformed CSV header")
	}
	// Units row; absent on empty responses
	if _, err := reader.Read(); err == io.EOF {
		return nil, nil
	} else if err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeValidation, "malformed CSV units row")
	}

	var rows []*models.RawRecord
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeValidation, "malformed CSV row")
		}
		fields := make(map[string]interface{}, len(header))
		for i, col := range header {
			if i < len(record) {
				fields[col] = record[i]
			}
		}
		rows = append(rows, models.NewRawRecord(sourceName, fields))
	}
	return rows, nil
}
