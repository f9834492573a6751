package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rafaeljc/tagflow/internal/ruleengine"
)

// AppliedByAuto marks transitions committed by the engine itself.
// Any other AppliedBy value is an operator id.
const AppliedByAuto = "auto"

// Automation triggers recorded on a Transition.
const (
	TriggerDailySweep   = "daily_sweep"
	TriggerManualReview = "manual_review"
	TriggerOperator     = "operator"
)

// Profile is the read model of a customer.
type Profile struct {
	ID           string
	CurrentTag   ruleengine.StatusTag
	TagAppliedAt time.Time
	Tier         string
	CreatedAt    time.Time
}

// Transition is an append-only audit record. It is never updated or deleted.
type Transition struct {
	ID                uuid.UUID            `json:"id"`
	CustomerID        string               `json:"customer_id"`
	FromTag           ruleengine.StatusTag `json:"from_tag"`
	ToTag             ruleengine.StatusTag `json:"to_tag"`
	AppliedBy         string               `json:"applied_by"`
	Reason            string               `json:"reason"`
	AutomationTrigger string               `json:"automation_trigger,omitempty"`
	RuleID            string               `json:"rule_id,omitempty"`
	Confidence        *float64             `json:"confidence,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
}

// Notification is the message handed to the notification channel.
type Notification struct {
	CustomerID string               `json:"customer_id"`
	Team       string               `json:"team"`
	Priority   string               `json:"priority"`
	Template   string               `json:"template"`
	FromTag    ruleengine.StatusTag `json:"from_tag"`
	ToTag      ruleengine.StatusTag `json:"to_tag"`
}

// TransitionEvent is the analytics record emitted after a commit.
type TransitionEvent struct {
	CustomerID string               `json:"customer_id"`
	FromTag    ruleengine.StatusTag `json:"from_tag"`
	ToTag      ruleengine.StatusTag `json:"to_tag"`
	AppliedBy  string               `json:"applied_by"`
	ElapsedMs  int64                `json:"elapsed_ms"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// ReviewStatus is the state of a manual review item.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// ReviewDecision is an operator's verdict on a review item.
type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "approve"
	DecisionReject  ReviewDecision = "reject"
)

// Review is an evaluation held for human sign-off.
type Review struct {
	ID         int64                 `json:"id"`
	CustomerID string                `json:"customer_id"`
	Evaluation ruleengine.Evaluation `json:"evaluation"`
	Status     ReviewStatus          `json:"status"`
	ResolvedBy string                `json:"resolved_by,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	ResolvedAt *time.Time            `json:"resolved_at,omitempty"`
}

// TagCount is one bucket of the status distribution.
type TagCount struct {
	Tag   ruleengine.StatusTag `json:"tag"`
	Name  string               `json:"name"`
	Count int64                `json:"count"`
}

// EdgeStat aggregates transitions along one (from, to) edge.
type EdgeStat struct {
	FromTag       ruleengine.StatusTag `json:"from_tag"`
	ToTag         ruleengine.StatusTag `json:"to_tag"`
	Total         int64                `json:"total"`
	Automatic     int64                `json:"automatic"`
	Manual        int64                `json:"manual"`
	AvgConfidence *float64             `json:"avg_confidence,omitempty"`
}

// ProfileStore reads customer profiles.
type ProfileStore interface {
	// GetProfile returns ErrCustomerNotFound for unknown ids.
	GetProfile(ctx context.Context, customerID string) (*Profile, error)

	// ListActive returns up to limit customers with id > afterID, ordered by id.
	// Customers in terminal tags are included; callers decide whether to skip them.
	ListActive(ctx context.Context, afterID string, limit int) ([]*Profile, error)
}

// MetricsStore reads fresh learning metrics. Results must never be cached.
type MetricsStore interface {
	GetMetrics(ctx context.Context, customerID string) (ruleengine.Metrics, error)
}

// TransitionStore persists the audit log and the current-tag projection.
type TransitionStore interface {
	// CommitTransition inserts t and moves the customer's current tag from
	// t.FromTag to t.ToTag in one atomic unit. It returns ErrStaleTag when the
	// current tag no longer equals t.FromTag. ID and CreatedAt are populated.
	CommitTransition(ctx context.Context, t *Transition) error

	// ListTransitions returns the newest transitions first.
	ListTransitions(ctx context.Context, customerID string, limit int) ([]*Transition, error)
}

// Notifier delivers rule notifications to the owning team.
type Notifier interface {
	SendNotification(ctx context.Context, n Notification) error
}

// ContentUnlocker grants access to gated course content.
type ContentUnlocker interface {
	UnlockContent(ctx context.Context, customerID, contentKey string) error
}

// CertificateIssuer issues completion certificates.
type CertificateIssuer interface {
	IssueCertificate(ctx context.Context, customerID string, tag ruleengine.StatusTag) error
}

// CampaignStarter enrolls customers into outreach campaigns.
type CampaignStarter interface {
	StartCampaign(ctx context.Context, customerID, campaign string) error
}

// AnalyticsSink records transition events.
type AnalyticsSink interface {
	TrackStatusTransition(ctx context.Context, ev TransitionEvent) error
}

// ReviewQueue holds evaluations awaiting human sign-off.
type ReviewQueue interface {
	Enqueue(ctx context.Context, customerID string, eval ruleengine.Evaluation) (*Review, error)
	ListPending(ctx context.Context, limit int) ([]*Review, error)

	// Resolve marks a pending review. It returns ErrReviewNotFound or
	// ErrReviewResolved when the item is missing or already decided.
	Resolve(ctx context.Context, id int64, decision ReviewDecision, operator string) (*Review, error)
}

// DashboardQuery is the read-only aggregation surface for reporting UIs.
type DashboardQuery interface {
	StatusDistribution(ctx context.Context) ([]TagCount, error)
	TransitionAnalytics(ctx context.Context, since time.Time) ([]EdgeStat, error)
	CustomerHistory(ctx context.Context, customerID string, limit int) ([]*Transition, error)
	PendingReviewCount(ctx context.Context) (int64, error)
}
