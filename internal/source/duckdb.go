package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// QueryExecutor is the subset of *sql.DB the DuckDB fetcher needs.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// DuckDBFetcher builds a feature collection from a SQL query. The query must
// return a "geometry" column holding GeoJSON geometry text (DuckDB spatial's
// ST_AsGeoJSON output); every other column becomes a feature property.
type DuckDBFetcher struct {
	DB QueryExecutor
}

func (f *DuckDBFetcher) Fetch(ctx context.Context, locator string) (*geojson.FeatureCollection, error) {
	if f.DB == nil {
		return nil, fmt.Errorf("%w: %s: database not available", ErrSourceLoad, locator)
	}

	query := strings.TrimPrefix(locator, "duckdb:")
	rows, err := f.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: querying %s: %v", ErrSourceLoad, locator, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceLoad, locator, err)
	}

	geomIdx := -1
	for i, col := range columns {
		if strings.EqualFold(col, "geometry") || strings.EqualFold(col, "geom") {
			geomIdx = i
			break
		}
	}
	if geomIdx < 0 {
		return nil, fmt.Errorf("%w: %s: query has no geometry column", ErrSourceLoad, locator)
	}

	fc := geojson.NewFeatureCollection()
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrSourceLoad, locator, err)
		}

		geomText, ok := asString(values[geomIdx])
		if !ok {
			continue
		}
		geom, err := geojson.UnmarshalGeometry([]byte(geomText))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: bad geometry: %v", ErrSourceLoad, locator, err)
		}

		feat := geojson.NewFeature(geom.Geometry())
		for i, col := range columns {
			if i == geomIdx {
				continue
			}
			feat.Properties[col] = normalize(values[i])
		}
		fc.Append(feat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceLoad, locator, err)
	}
	return fc, nil
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return "", false
	}
}

// normalize converts driver scan values to JSON-friendly property values.
func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return v
	}
}
