// Package argovis provides a source adapter for Argo float profiles served
// by an Argovis-style API. Each profile's per-level measurements are decoded
// and flattened into one raw record per level, carrying the level QC flag.
package argovis

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/seastate/oceansync/pkg/clients"
	"github.com/seastate/oceansync/pkg/config"
	"github.com/seastate/oceansync/pkg/logger"
	"github.com/seastate/oceansync/pkg/models"
	"github.com/seastate/oceansync/pkg/source"
	"github.com/seastate/oceansync/pkg/syncerrors"
)

const (
	sourceName  = "argovis"
	description = "Argo float profiles via Argovis API (per-level decoding)"

	defaultBaseURL = "https://argovis-api.colorado.edu"
)

func init() {
	_ = source.Register(sourceName, description, New)
}

// profile is one Argo profile with its measurement levels.
type profile struct {
	ID          string    `json:"_id"`
	Timestamp   time.Time `json:"timestamp"`
	Geolocation struct {
		// GeoJSON point: [longitude, latitude]
		Coordinates []float64 `json:"coordinates"`
	} `json:"geolocation"`
	Measurements []level `json:"measurements"`
}

type level struct {
	PressureDbar float64 `json:"pres"`
	Temperature  float64 `json:"temp"`
	Salinity     float64 `json:"psal"`
	QC           int     `json:"qc"`
}

// Source fetches Argo profiles and decodes their levels.
type Source struct {
	cfg    config.SourceConfig
	client *clients.HTTPClient
	logger *zap.Logger
	base   string
}

// New creates an Argovis adapter from its source block.
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

// Fetch retrieves the profiles in the window and streams one raw record per
// measurement level, in profile then level order.
func (s *Source) Fetch(ctx context.Context, window models.Window) (*source.RecordStream, error) {
	records := make(chan *models.RawRecord)
	errs := make(chan error, 1)

	go func() {
		defer close(records)
		defer close(errs)

		profiles, err := s.fetchProfiles(ctx, window)
		if err != nil {
			errs <- err
			return
		}
		for _, p := range profiles {
			// Profiles without a usable geolocation stream without position
			// fields; the validation stage drops them with a missing-position
			// reason so the loss is visible in the run log
			hasPosition := len(p.Geolocation.Coordinates) == 2
			for _, lvl := range p.Measurements {
				fields := map[string]interface{}{
					"profile_id":    p.ID,
					"time":          p.Timestamp.UTC().Format(time.RFC3339),
					"pressure_dbar": lvl.PressureDbar,
					"temperature":   lvl.Temperature,
					"salinity_psu":  lvl.Salinity,
					"qc":            lvl.QC,
				}
				if hasPosition {
					fields["longitude"] = p.Geolocation.Coordinates[0]
					fields["latitude"] = p.Geolocation.Coordinates[1]
				}
				raw := models.NewRawRecord(sourceName, fields)
				select {
				case records <- raw:
				case <-ctx.Done():
					errs <- syncerrors.Wrap(ctx.Err(), syncerrors.ErrorTypeTimeout, "fetch cancelled")
					return
				}
			}
		}
	}()

	return &source.RecordStream{Records: records, Errors: errs}, nil
}

// fetchProfiles retrieves the profile set for the window.
func (s *Source) fetchProfiles(ctx context.Context, window models.Window) ([]profile, error) {
	u := fmt.Sprintf("%s/argo?startDate=%s&endDate=%s&limit=%d",
		s.base,
		window.Start.UTC().Format(time.RFC3339),
		window.End.UTC().Format(time.RFC3339),
		window.ProfileLimit,
	)
	body, err := s.client.Get(ctx, u, nil)
	if err != nil {
		return nil, err
	}

	var profiles []profile
	if err := json.Unmarshal(body, &profiles); err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeValidation, "malformed profile response")
	}
	return profiles, nil
}
