package controlapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/rafaeljc/tagflow/internal/lifecycle"
	"github.com/rafaeljc/tagflow/internal/logger"
)

const (
	defaultReviewPage = 50
	maxReviewPage     = 200
)

// handleListReviews processes GET /api/v1/reviews?limit=N, oldest first.
func (a *API) handleListReviews(w http.ResponseWriter, r *http.Request) {
	limit, err := parseOptionalInt(r, "limit", defaultReviewPage)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "ERR_INVALID_QUERY_PARAM", err.Error())
		return
	}
	if limit < 1 {
		limit = defaultReviewPage
	}
	if limit > maxReviewPage {
		limit = maxReviewPage
	}

	reviews, err := a.reviews.ListPending(r.Context(), limit)
	if err != nil {
		logger.FromContext(r.Context()).Error("failed to list reviews", slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, "ERR_INTERNAL", "Failed to list reviews")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, newList(reviews))
}

// handleResolveReview processes POST /api/v1/reviews/{id}/resolve.
//
// An approval applies the reviewed transition. If that apply fails the
// review stays approved and the response carries the failed result.
func (a *API) handleResolveReview(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, r, http.StatusBadRequest, "ERR_INVALID_INPUT", "Review id must be a positive integer")
		return
	}

	var req ResolveReviewRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "ERR_INVALID_JSON", "Invalid JSON payload: "+err.Error())
		return
	}
	req.Sanitize()
	if err := a.validate.Struct(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, validationError(err))
		return
	}

	outcome, err := a.lifecycle.ResolveReview(r.Context(), id, lifecycle.ReviewDecision(req.Decision), req.Operator)
	if err != nil {
		status, code := errorStatus(err)
		if status >= 500 {
			log.Error("failed to resolve review", slog.Int64("review_id", id), slog.String("error", err.Error()))
			writeError(w, r, status, code, "Failed to resolve review")
			return
		}
		writeError(w, r, status, code, err.Error())
		return
	}
	a.dashboard.Invalidate()

	status := http.StatusOK
	if outcome.Result != nil && !outcome.Result.Success {
		status, _ = errorStatus(outcome.Result.Err)
	}

	log.Info("review resolved",
		slog.Int64("review_id", id),
		slog.String("decision", req.Decision),
		slog.String("operator", req.Operator),
		slog.Int("status", status),
	)
	render.Status(r, status)
	render.JSON(w, r, outcome)
}
