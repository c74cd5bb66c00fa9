package erddap

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seastate/oceansync/pkg/config"
	"github.com/seastate/oceansync/pkg/models"
	"github.com/seastate/oceansync/pkg/source"
	"github.com/seastate/oceansync/pkg/syncerrors"
)

func testWindow() models.Window {
	end := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	return models.Window{Start: end.AddDate(0, 0, -7), End: end}
}

// drain consumes a record stream to completion and returns the records plus
// any trailing error.
func drain(t *testing.T, stream *source.RecordStream) ([]*models.RawRecord, error) {
	t.Helper()
	var records []*models.RawRecord
	for r := range stream.Records {
		records = append(records, r)
	}
	if err, ok := <-stream.Errors; ok && err != nil {
		return records, err
	}
	return records, nil
}

func TestParseCSVSkipsHeaderAndUnitsRows(t *testing.T) {
	body := strings.Join([]string{
		"time,latitude,longitude,temperature,salinity",
		"UTC,degrees_north,degrees_east,degree_C,PSU",
		"2026-08-10T00:00:00Z,44.65,-124.18,11.2,33.1",
		"2026-08-10T01:00:00Z,44.65,-124.18,11.4,33.0",
	}, "\n")

	rows, err := parseCSV([]byte(body))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "erddap", rows[0].Source)
	assert.Equal(t, "2026-08-10T00:00:00Z", rows[0].Fields["time"])
	assert.Equal(t, "11.2", rows[0].Fields["temperature"])
	assert.Equal(t, "33.0", rows[1].Fields["salinity"])
}

func TestParseCSVEmptyResponses(t *testing.T) {
	rows, err := parseCSV(nil)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// header only, no units row
	rows, err = parseCSV([]byte("time,latitude,longitude\n"))
	require.NoError(t, err)
	assert.Empty(t, rows)

	// header and units but no data
	rows, err = parseCSV([]byte("time,latitude\nUTC,degrees_north\n"))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestParseCSVShortRows(t *testing.T) {
	body := "a,b,c\nu,u,u\n1,2\n"
	rows, err := parseCSV([]byte(body))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0].Fields["a"])
	assert.Equal(t, "2", rows[0].Fields["b"])
	_, ok := rows[0].Fields["c"]
	assert.False(t, ok)
}

func TestFetchPagesUntilShortPage(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("page")
		pages = append(pages, q)

		var b strings.Builder
		b.WriteString("time,latitude,longitude,temperature,salinity\n")
		b.WriteString("UTC,degrees_north,degrees_east,degree_C,PSU\n")
		n := 3 // short page ends the stream
		if q == "1" {
			n = pageSize
		}
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, "2026-08-10T00:00:%02dZ,44.65,-124.18,11.2,33.1\n", i%60)
		}
		fmt.Fprint(w, b.String())
	}))
	defer srv.Close()

	src, err := New(config.SourceConfig{BaseURL: srv.URL, RequestTimeout: 5 * time.Second})
	require.NoError(t, err)

	stream, err := src.Fetch(context.Background(), testWindow())
	require.NoError(t, err)
	records, err := drain(t, stream)
	require.NoError(t, err)

	assert.Len(t, records, pageSize+3)
	assert.Equal(t, []string{"1", "2"}, pages)
}

func TestFetchSurfacesTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	src, err := New(config.SourceConfig{BaseURL: srv.URL, RequestTimeout: 5 * time.Second})
	require.NoError(t, err)

	stream, err := src.Fetch(context.Background(), testWindow())
	require.NoError(t, err)
	records, err := drain(t, stream)
	assert.Empty(t, records)
	require.Error(t, err)
	assert.True(t, syncerrors.IsType(err, syncerrors.ErrorTypeTransport))
	assert.True(t, syncerrors.IsRetryable(err))
}

func TestQueryURLCarriesWindow(t *testing.T) {
	src := &Source{base: "https://example.org/erddap"}
	u := src.queryURL(testWindow(), 2)
	assert.Contains(t, u, "/tabledap/"+defaultDataset+".csv")
	assert.Contains(t, u, "2026-08-08T00:00:00Z")
	assert.Contains(t, u, "2026-08-15T00:00:00Z")
	assert.Contains(t, u, "page=2")
}
