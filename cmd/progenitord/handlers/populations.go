// Package handlers binds the evolution engine to the daemon's HTTP surface.
// Each handler is a constructor taking the service it depends on, so tests
// can drive handlers against an in-memory engine.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"progenitor/internal/platform"
	"progenitor/internal/storage"
	"progenitor/pkg/progenitor"
)

// Service is the slice of the client the HTTP layer needs.
type Service interface {
	CreatePopulation(ctx context.Context, req progenitor.CreateRequest) (progenitor.CreateSummary, error)
	ListPopulations(ctx context.Context) ([]progenitor.PopulationItem, error)
	GetPopulation(ctx context.Context, id string) (progenitor.PopulationItem, error)
	Evolve(ctx context.Context, populationID string, req progenitor.EvolveRequest) (progenitor.EvolveSummary, error)
	GetBestIndividual(ctx context.Context, populationID string) (*progenitor.IndividualItem, error)
	GetIndividuals(ctx context.Context, populationID string) ([]progenitor.IndividualItem, error)
	GetHistory(ctx context.Context, populationID string, limit int) ([]progenitor.HistoryItem, error)
	DeletePopulation(ctx context.Context, id string) error
	Stats(ctx context.Context) (progenitor.StatsSummary, error)
}

func CreatePopulationHandler(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req progenitor.CreateRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		summary, err := svc.CreatePopulation(c.Request().Context(), req)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusCreated, summary)
	}
}

func ListPopulationsHandler(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		populations, err := svc.ListPopulations(c.Request().Context())
		if err != nil {
			return httpError(err)
		}
		if populations == nil {
			populations = []progenitor.PopulationItem{}
		}
		return c.JSON(http.StatusOK, populations)
	}
}

func GetPopulationHandler(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		population, err := svc.GetPopulation(c.Request().Context(), c.Param("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, population)
	}
}

func EvolveHandler(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req progenitor.EvolveRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		summary, err := svc.Evolve(c.Request().Context(), c.Param("id"), req)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, summary)
	}
}

func BestIndividualHandler(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		best, err := svc.GetBestIndividual(c.Request().Context(), c.Param("id"))
		if err != nil {
			return httpError(err)
		}
		// A population with no individuals reports null, not 404.
		return c.JSON(http.StatusOK, best)
	}
}

func IndividualsHandler(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		individuals, err := svc.GetIndividuals(c.Request().Context(), c.Param("id"))
		if err != nil {
			return httpError(err)
		}
		if individuals == nil {
			individuals = []progenitor.IndividualItem{}
		}
		return c.JSON(http.StatusOK, individuals)
	}
}

func HistoryHandler(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 0
		if raw := c.QueryParam("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
			}
			limit = parsed
		}
		history, err := svc.GetHistory(c.Request().Context(), c.Param("id"), limit)
		if err != nil {
			return httpError(err)
		}
		if history == nil {
			history = []progenitor.HistoryItem{}
		}
		return c.JSON(http.StatusOK, history)
	}
}

func DeletePopulationHandler(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := svc.DeletePopulation(c.Request().Context(), c.Param("id")); err != nil {
			return httpError(err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func HealthHandler(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		stats, err := svc.Stats(c.Request().Context())
		if err != nil {
			return httpError(err)
		}
		status := http.StatusOK
		if !stats.StoreConnected {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, stats)
	}
}

func httpError(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, platform.ErrInvalidDomain), errors.Is(err, platform.ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
