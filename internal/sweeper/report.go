package sweeper

import (
	"time"

	"github.com/rafaeljc/tagflow/internal/ruleengine"
)

// Action is what the sweep did with one customer.
type Action string

const (
	ActionApplied         Action = "applied"
	ActionManualReview    Action = "manual_review"
	ActionNoChange        Action = "no_change"
	ActionError           Action = "error"
	ActionSkippedTerminal Action = "skipped_terminal"
)

// CustomerResult is the per-customer line of a report.
type CustomerResult struct {
	CustomerID string               `json:"customer_id"`
	Action     Action               `json:"action"`
	FromTag    ruleengine.StatusTag `json:"from_tag"`
	ToTag      ruleengine.StatusTag `json:"to_tag,omitempty"`
	Confidence float64              `json:"confidence,omitempty"`
	ReviewID   int64                `json:"review_id,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// DailyEvaluationReport summarizes one sweep. The counters always satisfy
// TransitionsApplied + ManualReviews + Errors + NoChange == TotalEvaluated;
// terminal customers are counted apart in SkippedTerminal.
type DailyEvaluationReport struct {
	SweepID    string    `json:"sweep_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms"`

	TotalEvaluated     int `json:"total_evaluated"`
	TransitionsApplied int `json:"transitions_applied"`
	ManualReviews      int `json:"manual_reviews_queued"`
	Errors             int `json:"errors"`
	NoChange           int `json:"no_change"`
	SkippedTerminal    int `json:"skipped_terminal"`

	// Cancelled is set when the context ended the sweep between batches.
	Cancelled bool `json:"cancelled"`

	Results []CustomerResult `json:"results"`
}

func (r *DailyEvaluationReport) record(res CustomerResult) {
	r.Results = append(r.Results, res)

	switch res.Action {
	case ActionSkippedTerminal:
		r.SkippedTerminal++
		return
	case ActionApplied:
		r.TransitionsApplied++
	case ActionManualReview:
		r.ManualReviews++
	case ActionNoChange:
		r.NoChange++
	default:
		r.Errors++
	}
	r.TotalEvaluated++
}

// Balanced reports whether the counters add up.
func (r *DailyEvaluationReport) Balanced() bool {
	return r.TransitionsApplied+r.ManualReviews+r.Errors+r.NoChange == r.TotalEvaluated
}
