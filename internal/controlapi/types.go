package controlapi

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/rafaeljc/tagflow/internal/lifecycle"
	"github.com/rafaeljc/tagflow/internal/ruleengine"
)

// ApplyTransitionRequest is the payload of POST /customers/{id}/transitions.
type ApplyTransitionRequest struct {
	// ToTag accepts the code ("ST_002") or the label ("progressing").
	ToTag string `json:"to_tag" validate:"required,max=32"`

	Reason string `json:"reason" validate:"required,max=500"`

	// Operator is the applied_by of the transition. "auto" is reserved for the engine.
	Operator string `json:"applied_by" validate:"required,max=128,ne=auto"`
}

// Sanitize trims whitespace from every field.
func (r *ApplyTransitionRequest) Sanitize() {
	r.ToTag = strings.TrimSpace(r.ToTag)
	r.Reason = strings.TrimSpace(r.Reason)
	r.Operator = strings.TrimSpace(r.Operator)
}

// ResolveReviewRequest is the payload of POST /reviews/{id}/resolve.
type ResolveReviewRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Operator string `json:"operator" validate:"required,max=128,ne=auto"`
}

func (r *ResolveReviewRequest) Sanitize() {
	r.Decision = strings.ToLower(strings.TrimSpace(r.Decision))
	r.Operator = strings.TrimSpace(r.Operator)
}

// RuleView is the wire form of a catalog rule.
type RuleView struct {
	ruleengine.TransitionRule
	FromNames []string `json:"from_names"`
	ToName    string   `json:"to_name"`
}

// RulesResponse lists the catalog.
type RulesResponse struct {
	Rules        []RuleView             `json:"rules"`
	CriticalTags []ruleengine.StatusTag `json:"critical_tags"`
	TerminalTags []ruleengine.StatusTag `json:"terminal_tags"`
}

// ListResponse wraps list endpoints.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Count int `json:"count"`
}

func newList[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Data: items, Count: len(items)}
}

// ErrorResponse represents a standard structured API error.
type ErrorResponse struct {
	// Code is a machine-readable error code (e.g., "ERR_INVALID_INPUT").
	Code string `json:"code"`

	// Message is a human-readable description of the error.
	Message string `json:"message"`

	// Details provides optional granular validation errors.
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail provides context about specific field validation failures.
type ErrorDetail struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Code: code, Message: message})
}

// validationError converts validator failures into ErrorDetails.
func validationError(err error) ErrorResponse {
	resp := ErrorResponse{Code: "ERR_INVALID_INPUT", Message: "Request validation failed"}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		resp.Message = err.Error()
		return resp
	}
	for _, fe := range verrs {
		resp.Details = append(resp.Details, ErrorDetail{
			Field: fe.Field(),
			Issue: issueFor(fe),
		})
	}
	return resp
}

func issueFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "ne":
		return fmt.Sprintf("must not be %q", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// newValidator reports field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// errorStatus maps lifecycle errors to HTTP status codes and error codes.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, lifecycle.ErrCustomerNotFound):
		return http.StatusNotFound, "ERR_CUSTOMER_NOT_FOUND"
	case errors.Is(err, lifecycle.ErrReviewNotFound):
		return http.StatusNotFound, "ERR_REVIEW_NOT_FOUND"
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return http.StatusUnprocessableEntity, "ERR_INVALID_TRANSITION"
	case errors.Is(err, lifecycle.ErrManualOverrideNotAllowed):
		return http.StatusForbidden, "ERR_OVERRIDE_NOT_ALLOWED"
	case errors.Is(err, lifecycle.ErrStaleTag):
		return http.StatusConflict, "ERR_STALE_TAG"
	case errors.Is(err, lifecycle.ErrReviewResolved):
		return http.StatusConflict, "ERR_REVIEW_RESOLVED"
	case errors.Is(err, lifecycle.ErrNothingToApply):
		return http.StatusUnprocessableEntity, "ERR_NOTHING_TO_APPLY"
	default:
		return http.StatusInternalServerError, "ERR_INTERNAL"
	}
}
