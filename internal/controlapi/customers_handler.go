package controlapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/rafaeljc/tagflow/internal/lifecycle"
	"github.com/rafaeljc/tagflow/internal/logger"
	"github.com/rafaeljc/tagflow/internal/ruleengine"
)

const (
	defaultHistoryLimit = 50
	maxCustomerIDLen    = 128
)

// customerID reads and checks the {id} path parameter.
func customerID(r *http.Request) (string, *ErrorResponse) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" || len(id) > maxCustomerIDLen {
		return "", &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: fmt.Sprintf("Customer id must be between 1 and %d characters", maxCustomerIDLen),
		}
	}
	return id, nil
}

// handleEvaluate processes GET /api/v1/customers/{id}/evaluation.
// It evaluates against fresh metrics and changes nothing.
func (a *API) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	id, errResp := customerID(r)
	if errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	eval, err := a.lifecycle.Evaluate(r.Context(), id)
	if err != nil {
		status, code := errorStatus(err)
		if status >= 500 {
			log.Error("failed to evaluate customer", slog.String("customer_id", id), slog.String("error", err.Error()))
			writeError(w, r, status, code, "Failed to evaluate customer")
			return
		}
		writeError(w, r, status, code, err.Error())
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, eval)
}

// handleApply processes POST /api/v1/customers/{id}/transitions.
//
// The body of both success and failure is the StatusTransitionResult;
// the status code reflects why a failure happened.
func (a *API) handleApply(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	id, errResp := customerID(r)
	if errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	var req ApplyTransitionRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("invalid json payload", slog.String("error", err.Error()))
		writeError(w, r, http.StatusBadRequest, "ERR_INVALID_JSON", "Invalid JSON payload: "+err.Error())
		return
	}
	req.Sanitize()
	if err := a.validate.Struct(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, validationError(err))
		return
	}

	toTag, err := ruleengine.ParseStatusTag(req.ToTag)
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_UNKNOWN_TAG",
			Message: err.Error(),
			Details: []ErrorDetail{{Field: "to_tag", Issue: "must be a known status tag"}},
		})
		return
	}

	result := a.lifecycle.Apply(r.Context(), lifecycle.ApplyRequest{
		CustomerID: id,
		ToTag:      toTag,
		Reason:     req.Reason,
		AppliedBy:  req.Operator,
		Trigger:    lifecycle.TriggerOperator,
	})

	if !result.Success {
		status, _ := errorStatus(result.Err)
		render.Status(r, status)
		render.JSON(w, r, result)
		return
	}

	a.dashboard.Invalidate()
	log.Info("manual transition applied",
		slog.String("customer_id", id),
		slog.String("from_tag", string(result.PreviousTag)),
		slog.String("to_tag", string(result.NewTag)),
		slog.String("operator", req.Operator),
	)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// handleHistory processes GET /api/v1/customers/{id}/transitions?limit=N,
// newest first.
func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	id, errResp := customerID(r)
	if errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	limit, err := parseOptionalInt(r, "limit", defaultHistoryLimit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "ERR_INVALID_QUERY_PARAM", err.Error())
		return
	}

	history, err := a.dashboard.CustomerHistory(r.Context(), id, limit)
	if err != nil {
		log.Error("failed to load customer history", slog.String("customer_id", id), slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, "ERR_INTERNAL", "Failed to load transition history")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, newList(history))
}

// parseOptionalInt extracts an integer from the query string.
// If the parameter is missing, it returns the defaultValue.
// It only returns an error if the parameter is present but malformed.
func parseOptionalInt(r *http.Request, key string, defaultValue int) (int, error) {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultValue, nil
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, fmt.Errorf("parameter '%s' must be an integer", key)
	}
	return val, nil
}
