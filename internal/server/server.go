// Package server wires the HTTP surface for one viewer session.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/vtmaps/mapview/internal/api"
	"github.com/vtmaps/mapview/internal/config"
	"github.com/vtmaps/mapview/internal/db"
	"github.com/vtmaps/mapview/internal/service"
	"github.com/vtmaps/mapview/internal/source"
)

// Config holds the server configuration.
type Config struct {
	Host       string
	Port       string
	DataDir    string
	ConfigPath string
}

// Server is the mapview HTTP server.
type Server struct {
	config  Config
	mux     *http.ServeMux
	humaAPI huma.API
	db      *sql.DB
	viewer  *service.Viewer
	log     *slog.Logger
}

// New creates a server for the viewer config at cfg.ConfigPath.
func New(cfg Config, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}

	viewerCfg, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()

	humaConfig := huma.DefaultConfig("mapview API", "1.0.0")
	humaConfig.Info.Description = "Configuration-driven map rendering and selection API."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	humaAPI := humago.New(mux, humaConfig)

	s := &Server{
		config:  cfg,
		mux:     mux,
		humaAPI: humaAPI,
		log:     log,
	}

	// DuckDB is optional: without it, duckdb: source locators fail with a
	// per-layer load error and file/http layers are unaffected.
	conn, err := db.Get(db.Config{DataDir: cfg.DataDir, DBName: "mapview"})
	if err != nil {
		log.Warn("duckdb unavailable", "err", err)
	} else {
		s.db = conn
	}

	var exec source.QueryExecutor
	if s.db != nil {
		exec = s.db
	}
	fetcher := source.New(cfg.DataDir, exec)
	s.viewer = service.NewViewer(viewerCfg, fetcher, service.DefaultBus, log)

	s.routes()
	return s, nil
}

// Load fetches and composes every configured layer.
func (s *Server) Load(ctx context.Context) {
	result := s.viewer.Load(ctx)
	s.log.Info("layers loaded",
		"loaded", len(result.Layers),
		"failed", len(result.Failures))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close closes server resources.
func (s *Server) Close() error {
	return db.Close()
}

// OpenAPI returns the generated OpenAPI spec.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Viewer exposes the session, mainly for tests.
func (s *Server) Viewer() *service.Viewer {
	return s.viewer
}

func (s *Server) routes() {
	api.NewHandler(s.viewer).RegisterRoutes(s.humaAPI)
	api.NewEventHandler(service.DefaultBus).RegisterRoutes(s.humaAPI)
}
