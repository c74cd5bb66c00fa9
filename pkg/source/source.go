// Package source defines the capability boundary between the synchronizer
// and the provider adapters. Each provider lives in its own subpackage and
// registers a factory at init time; the synchronizer only ever sees the
// Source interface and lazy record streams.
package source

import (
	"context"

	"github.com/seastate/oceansync/pkg/models"
)

// RecordStream is a lazy, finite sequence of raw records. The producer
// closes Records when the stream is exhausted; a mid-stream failure is
// delivered on Errors and terminates the stream. Both channels are owned
// exclusively by one adapter/processor pair.
type RecordStream struct {
	Records <-chan *models.RawRecord
	Errors  <-chan error
}

// Source is the capability every provider adapter implements. Fetch returns
// immediately with a lazily-produced stream so validation and chunking can
// begin before the full transfer completes. Adapters enforce the configured
// request timeout per network call and translate failures into the typed
// taxonomy at this boundary: transport errors for network/5xx failures,
// auth errors for 401/403, validation errors for malformed responses.
type Source interface {
	// Name returns the provider's registered name
	Name() string
	// Description returns a one-line human-readable description
	Description() string
	// Fetch starts producing raw records for the given window
	Fetch(ctx context.Context, window models.Window) (*RecordStream, error)
}
