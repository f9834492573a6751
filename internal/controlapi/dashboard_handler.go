package controlapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/rafaeljc/tagflow/internal/dashboard"
	"github.com/rafaeljc/tagflow/internal/logger"
)

const defaultWindowDays = 30

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := a.dashboard.Summary(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("failed to build dashboard summary", slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, "ERR_INTERNAL", "Failed to build dashboard summary")
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, sum)
}

// handleDistribution processes GET /api/v1/dashboard/distribution.
func (a *API) handleDistribution(w http.ResponseWriter, r *http.Request) {
	dist, err := a.dashboard.StatusDistribution(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("failed to load status distribution", slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, "ERR_INTERNAL", "Failed to load status distribution")
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, newList(dist))
}

// handleTransitionAnalytics processes GET /api/v1/dashboard/transitions?days=N.
func (a *API) handleTransitionAnalytics(w http.ResponseWriter, r *http.Request) {
	days, err := parseOptionalInt(r, "days", defaultWindowDays)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "ERR_INVALID_QUERY_PARAM", err.Error())
		return
	}

	edges, err := a.dashboard.TransitionAnalytics(r.Context(), days)
	if err != nil {
		if errors.Is(err, dashboard.ErrInvalidWindow) {
			writeError(w, r, http.StatusBadRequest, "ERR_INVALID_QUERY_PARAM", err.Error())
			return
		}
		logger.FromContext(r.Context()).Error("failed to load transition analytics", slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, "ERR_INTERNAL", "Failed to load transition analytics")
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, newList(edges))
}
