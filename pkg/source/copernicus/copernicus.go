// Package copernicus provides a source adapter for a Copernicus-style
// authenticated REST service. It lists profile metadata for the window,
// then fetches and flattens each profile's measurement levels.
package copernicus

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
	sourceName  = "copernicus"
	description = "Copernicus marine REST service (authenticated profile fetch)"

	defaultBaseURL = "https://data.marine.copernicus.eu"
)

func init() {
	_ = source.Register(sourceName, description, New)
}

// profileMeta is one entry of the profile listing response.
type profileMeta struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Latitude float64   `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Platform string    `json:"platform"`
}

type profileList struct {
	Profiles []profileMeta `json:"profiles"`
}

// profileData is one profile's measurement response. Temperatures are
// delivered in kelvin; the processor converts them.
type profileData struct {
	Levels []struct {
		PressureDbar float64 `json:"pressure_dbar"`
		TemperatureK float64 `json:"temperature_k"`
		SalinityPSU  float64 `json:"salinity_psu"`
	} `json:"levels"`
}

// Source fetches profiles from an authenticated REST endpoint.
type Source struct {
	cfg    config.SourceConfig
	client *clients.HTTPClient
	logger *zap.Logger
	base   string
	token  string
}

// New creates a Copernicus adapter from its source block.
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
		token:  cfg.Credentials["token"],
	}, nil
}

// Name returns the registered source name
func (s *Source) Name() string { return sourceName }

// Description returns the adapter description
func (s *Source) Description() string { return description }

// Fetch lists profile metadata for the window, then streams each profile's
// levels as flattened raw records. A missing token fails immediately with
// an auth error; the service itself enforces it with 401 otherwise.
func (s *Source) Fetch(ctx context.Context, window models.Window) (*source.RecordStream, error) {
	if s.token == "" {
		return nil, syncerrors.New(syncerrors.ErrorTypeAuth, "copernicus token is not configured")
	}

	records := make(chan *models.RawRecord)
	errs := make(chan error, 1)

	go func() {
		defer close(records)
		defer close(errs)

		metas, err := s.listProfiles(ctx, window)
		if err != nil {
			errs <- err
			return
		}
		for _, meta := range metas {
			data, err := s.fetchProfile(ctx, meta.ID)
			if err != nil {
				errs <- err
				return
			}
			for _, lvl := range data.Levels {
				raw := models.NewRawRecord(sourceName, map[string]interface{}{
					"time":          meta.Time.UTC().Format(time.RFC3339),
					"latitude":      meta.Latitude,
					"longitude":     meta.Longitude,
					"platform":      meta.Platform,
					"pressure_dbar": lvl.PressureDbar,
					"temperature_k": lvl.TemperatureK,
					"salinity_psu":  lvl.SalinityPSU,
				})
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

func (s *Source) authHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.token}
}

// listProfiles fetches profile metadata for the window, capped by the
// configured profile limit.
func (s *Source) listProfiles(ctx context.Context, window models.Window) ([]profileMeta, error) {
	u := fmt.Sprintf("%s/api/profiles?start=%s&end=%s&limit=%d",
		s.base,
		window.Start.UTC().Format(time.RFC3339),
		window.End.UTC().Format(time.RFC3339),
		window.ProfileLimit,
	)
	body, err := s.client.Get(ctx, u, s.authHeaders())
	if err != nil {
		return nil, err
	}

	var list profileList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeValidation, "malformed profile listing")
	}
	return list.Profiles, nil
}

// fetchProfile fetches one profile's measurement levels.
func (s *Source) fetchProfile(ctx context.Context, id string) (*profileData, error) {
	u := fmt.Sprintf("%s/api/profiles/%s/data", s.base, id)
	body, err := s.client.Get(ctx, u, s.authHeaders())
	if err != nil {
		return nil, err
	}

	var data profileData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeValidation, "malformed profile data")
	}
	return &data, nil
}
