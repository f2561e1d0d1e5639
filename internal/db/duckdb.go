// Package db owns the process-wide DuckDB handle behind duckdb: feature
// sources. The database file lives under the data directory and is opened
// once for the process lifetime.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
)

// Config locates the database file.
type Config struct {
	DataDir string
	DBName  string
}

var (
	instance *sql.DB
	once     sync.Once
	initErr  error
)

// Get opens the shared connection on first call and returns it afterwards.
// The spatial extension supplies ST_AsGeoJSON for query-backed layers and
// parquet covers GeoParquet tables; a failed INSTALL usually means the
// extension is already present, so those errors are ignored.
func Get(cfg Config) (*sql.DB, error) {
	once.Do(func() {
		dir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(dir, 0755); err != nil {
			initErr = fmt.Errorf("creating duckdb dir: %w", err)
			return
		}

		instance, initErr = sql.Open("duckdb", filepath.Join(dir, cfg.DBName+".duckdb"))
		if initErr != nil {
			return
		}

		for _, ext := range []string{"spatial", "parquet"} {
			_, _ = instance.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext))
		}
	})
	return instance, initErr
}

// Close releases the shared connection, if one was opened.
func Close() error {
	if instance == nil {
		return nil
	}
	return instance.Close()
}
