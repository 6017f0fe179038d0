// Package server wires the HTTP surface: listing submission, the JSON read
// API, the live websocket endpoint and the operational endpoints.
package server

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"partyboard/internal/bus"
	"partyboard/internal/config"
	"partyboard/internal/domain"
	"partyboard/internal/ingest"
	"partyboard/internal/stats"
)

// databasePinger is the slice of the connection pool used by readiness checks.
type databasePinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	echo  *echo.Echo
	cfg   *config.Config
	gate  *ingest.Gate
	store domain.ListingStore
	bus   *bus.Bus
	stats *stats.Refresher
	clock clockwork.Clock
	db    databasePinger
}

func New(cfg *config.Config, gate *ingest.Gate, store domain.ListingStore, b *bus.Bus, statsRef *stats.Refresher, db databasePinger, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:  e,
		cfg:   cfg,
		gate:  gate,
		store: store,
		bus:   b,
		stats: statsRef,
		clock: clock,
		db:    db,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	return s.echo.Start(":" + s.cfg.Port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
