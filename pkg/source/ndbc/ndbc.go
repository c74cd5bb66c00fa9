// Package ndbc provides a source adapter for the NDBC buoy network. The
// fetch is two-phase: the active station list first, then each station's
// realtime meteorological record file.
package ndbc

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
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
	sourceName  = "ndbc"
	description = "NDBC buoy network (station list then realtime records)"

	defaultBaseURL = "https://www.ndbc.noaa.gov"
	missingValue   = "MM"
)

func init() {
	_ = source.Register(sourceName, description, New)
}

// station is one entry of the active station list.
type station struct {
	ID  string  `xml:"id,attr"`
	Lat float64 `xml:"lat,attr"`
	Lon float64 `xml:"lon,attr"`
}

type stationList struct {
	Stations []station `xml:"station"`
}

// Source fetches realtime buoy observations from NDBC.
type Source struct {
	cfg    config.SourceConfig
	client *clients.HTTPClient
	logger *zap.Logger
	base   string
}

// New creates an NDBC adapter from its source block.
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

// Fetch lists active stations, filters them by region and station limit,
// then streams each station's realtime records that fall in the window.
func (s *Source) Fetch(ctx context.Context, window models.Window) (*source.RecordStream, error) {
	records := make(chan *models.RawRecord)
	errs := make(chan error, 1)

	go func() {
		defer close(records)
		defer close(errs)

		stations, err := s.fetchStations(ctx, window)
		if err != nil {
			errs <- err
			return
		}
		for _, st := range stations {
			rows, err := s.fetchStationRecords(ctx, st, window)
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
		}
	}()

	return &source.RecordStream{Records: records, Errors: errs}, nil
}

// fetchStations retrieves and filters the active station list.
func (s *Source) fetchStations(ctx context.Context, window models.Window) ([]station, error) {
	body, err := s.client.Get(ctx, s.base+"/activestations.xml", nil)
	if err != nil {
		return nil, err
	}

	var list stationList
	if err := xml.Unmarshal(body, &list); err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeValidation, "malformed station list")
	}

	var selected []station
	for _, st := range list.Stations {
		if s.cfg.Region != nil && !s.cfg.Region.Contains(st.Lat, st.Lon) {
			continue
		}
		selected = append(selected, st)
		if window.StationLimit > 0 && len(selected) >= window.StationLimit {
			break
		}
	}
	logger.WithContext(ctx).Debug("stations selected",
		zap.Int("total", len(list.Stations)), zap.Int("selected", len(selected)))
	return selected, nil
}

// fetchStationRecords fetches one station's realtime file and parses the
// rows inside the window.
func (s *Source) fetchStationRecords(ctx context.Context, st station, window models.Window) ([]*models.RawRecord, error) {
	u := fmt.Sprintf("%s/data/realtime2/%s.txt", s.base, st.ID)
	body, err := s.client.Get(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	return parseRealtime(string(body), st, window)
}

// parseRealtime decodes the NDBC realtime2 fixed-column text format. The
// first two lines are the column-name and unit headers; missing values are
// the literal "MM".
func parseRealtime(body string, st station, window models.Window) ([]*models.RawRecord, error) {
	lines := strings.Split(body, "\n")
	if len(lines) < 2 || !strings.HasPrefix(lines[0], "#") {
		return nil, syncerrors.New(syncerrors.ErrorTypeValidation, "malformed realtime file")
	}
	header := strings.Fields(strings.TrimPrefix(lines[0], "#"))

	var rows []*models.RawRecord
	for _, line := range lines[2:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Fields(line)
		if len(cols) < 5 {
			continue
		}

		ts, err := parseTimestamp(cols)
		if err != nil {
			// Keep the row; the processor drops it with a reason code
			ts = time.Time{}
		}
		if !ts.IsZero() && (ts.Before(window.Start) || ts.After(window.End)) {
			continue
		}

		fields := map[string]interface{}{
			"station":   st.ID,
			"latitude":  st.Lat,
			"longitude": st.Lon,
		}
		if !ts.IsZero() {
			fields["time"] = ts.Format(time.RFC3339)
		}
		for i := 5; i < len(header) && i < len(cols); i++ {
			if cols[i] == missingValue {
				continue
			}
			switch header[i] {
			case "WTMP":
				fields["temperature"] = cols[i]
			case "WSPD":
				fields["wind_speed"] = cols[i]
			case "WVHT":
				fields["wave_height"] = cols[i]
			case "PRES":
				fields["pressure"] = cols[i]
			}
		}
		rows = append(rows, models.NewRawRecord(sourceName, fields))
	}
	return rows, nil
}

// parseTimestamp builds a UTC instant from the YY MM DD hh mm columns.
func parseTimestamp(cols []string) (time.Time, error) {
	var parts [5]int
	for i := 0; i < 5; i++ {
		v, err := strconv.Atoi(cols[i])
		if err != nil {
			return time.Time{}, err
		}
		parts[i] = v
	}
	return time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], 0, 0, time.UTC), nil
}
