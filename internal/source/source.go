// Package source fetches feature collections from layer source locators.
//
// Locator forms:
//
//	towns.geojson            file relative to the data dir
//	file:///abs/path.geojson absolute file
//	https://host/data.json   HTTP fetch
//	duckdb:SELECT ...        SQL query against the local DuckDB database
//
// Fetches are idempotent, side-effect-free retrievals. A failed fetch or
// parse surfaces as ErrSourceLoad and stays isolated to its layer.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
)

// ErrSourceLoad marks a fetch or parse failure for one layer.
var ErrSourceLoad = errors.New("source load failed")

// Fetcher retrieves and decodes one source locator.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (*geojson.FeatureCollection, error)
}

// New returns the default fetcher: files under dataDir, http(s) URLs, and
// duckdb queries when db is non-nil.
func New(dataDir string, db QueryExecutor) Fetcher {
	return &dispatcher{
		file: &FileFetcher{DataDir: dataDir},
		http: &HTTPFetcher{Client: &http.Client{Timeout: 60 * time.Second}},
		db:   &DuckDBFetcher{DB: db},
	}
}

type dispatcher struct {
	file *FileFetcher
	http *HTTPFetcher
	db   *DuckDBFetcher
}

func (d *dispatcher) Fetch(ctx context.Context, locator string) (*geojson.FeatureCollection, error) {
	switch {
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		return d.http.Fetch(ctx, locator)
	case strings.HasPrefix(locator, "duckdb:"):
		return d.db.Fetch(ctx, locator)
	default:
		return d.file.Fetch(ctx, locator)
	}
}

// FileFetcher reads GeoJSON files. Relative locators resolve under DataDir.
type FileFetcher struct {
	DataDir string
}

func (f *FileFetcher) Fetch(ctx context.Context, locator string) (*geojson.FeatureCollection, error) {
	path := strings.TrimPrefix(locator, "file://")
	if !filepath.IsAbs(path) && f.DataDir != "" {
		path = filepath.Join(f.DataDir, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrSourceLoad, locator, err)
	}
	return decode(locator, data)
}

// HTTPFetcher retrieves GeoJSON over HTTP.
type HTTPFetcher struct {
	Client *http.Client
}

func (f *HTTPFetcher) Fetch(ctx context.Context, locator string) (*geojson.FeatureCollection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceLoad, locator, err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s: %v", ErrSourceLoad, locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetching %s: status %d", ErrSourceLoad, locator, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrSourceLoad, locator, err)
	}
	return decode(locator, data)
}

func decode(locator string, data []byte) (*geojson.FeatureCollection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrSourceLoad, locator, err)
	}
	return fc, nil
}
