package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"partyboard/internal/domain"
)

func validationFailed(err error) bool {
	return errors.Is(err, domain.ErrDurationTooLong) || errors.Is(err, domain.ErrWorldOutOfRange)
}

func (s *Server) handleContribute(c echo.Context) error {
	var listing domain.Listing
	if err := c.Bind(&listing); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid listing"})
	}

	err := s.gate.Submit(c.Request().Context(), &listing)
	if validationFailed(err) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err != nil {
		slog.Error("Failed to accept listing", "listing_id", listing.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to store listing"})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) handleContributeMultiple(c echo.Context) error {
	var listings []domain.Listing
	if err := c.Bind(&listings); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid listings"})
	}

	accepted := s.gate.SubmitMany(c.Request().Context(), listings)

	return c.JSON(http.StatusOK, map[string]int{
		"accepted": accepted,
		"total":    len(listings),
	})
}

func (s *Server) handleListings(c echo.Context) error {
	results, err := s.store.QueryWindow(c.Request().Context(), s.cfg.QueryWindow)
	if err != nil {
		slog.Error("Failed to query listings", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to query listings"})
	}

	// The store leaves ordering open; soonest-expiring first reads best.
	sort.Slice(results, func(i, j int) bool {
		return results[i].TimeLeft < results[j].TimeLeft
	})

	if results == nil {
		results = []domain.QueriedListing{}
	}
	return c.JSON(http.StatusOK, results)
}

func (s *Server) handleStats(c echo.Context) error {
	snapshot, ok := s.stats.Current()
	if !ok {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "stats not computed yet"})
	}
	return c.JSON(http.StatusOK, snapshot)
}
