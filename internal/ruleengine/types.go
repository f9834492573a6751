// Package ruleengine provides the core logic for status tag lifecycle evaluation.
// It implements a Strategy pattern where each comparison operator is evaluated
// against a customer's learning metrics to score candidate transitions from an
// immutable rule catalog.
package ruleengine

import (
	"fmt"
	"strings"
	"time"
)

// StatusTag is a customer's lifecycle bucket. The set of tags is closed.
type StatusTag string

const (
	TagActiveLearning StatusTag = "ST_001"
	TagProgressing    StatusTag = "ST_002"
	TagMastery        StatusTag = "ST_003"
	TagDecliningRisk  StatusTag = "ST_004"
	TagReengagement   StatusTag = "ST_005"
	TagChurned        StatusTag = "ST_006"
)

// InitialTag is the tag every customer starts in. Reachability checks start here.
const InitialTag = TagActiveLearning

var allTags = []StatusTag{
	TagActiveLearning,
	TagProgressing,
	TagMastery,
	TagDecliningRisk,
	TagReengagement,
	TagChurned,
}

var tagNames = map[StatusTag]string{
	TagActiveLearning: "Active-Learning",
	TagProgressing:    "Progressing",
	TagMastery:        "Mastery",
	TagDecliningRisk:  "Declining-Risk",
	TagReengagement:   "Re-engagement",
	TagChurned:        "Churned",
}

// AllTags returns the closed set of status tags in declaration order.
func AllTags() []StatusTag {
	out := make([]StatusTag, len(allTags))
	copy(out, allTags)
	return out
}

// Valid reports whether the tag belongs to the closed set.
func (t StatusTag) Valid() bool {
	_, ok := tagNames[t]
	return ok
}

// Name returns the human-readable label (e.g. "Declining-Risk").
func (t StatusTag) Name() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return string(t)
}

// ParseStatusTag accepts either the code ("ST_004") or the label ("declining-risk").
func ParseStatusTag(s string) (StatusTag, error) {
	s = strings.TrimSpace(s)
	if tag := StatusTag(strings.ToUpper(s)); tag.Valid() {
		return tag, nil
	}
	for tag, name := range tagNames {
		if strings.EqualFold(name, s) {
			return tag, nil
		}
	}
	return "", fmt.Errorf("unknown status tag %q", s)
}

// Operator is a comparison used by a Condition.
type Operator string

const (
	OpGreaterOrEqual Operator = ">="
	OpLessOrEqual    Operator = "<="
	OpLess           Operator = "<"
	OpEqual          Operator = "=="
	OpIn             Operator = "in"
)

// RuleGroup orders rules in the catalog. Earlier groups win ties.
type RuleGroup string

const (
	GroupProgression  RuleGroup = "progression"
	GroupRisk         RuleGroup = "risk"
	GroupReengagement RuleGroup = "re-engagement"
	GroupChurn        RuleGroup = "churn"
	GroupRecovery     RuleGroup = "recovery"
)

var groupPriority = map[RuleGroup]int{
	GroupProgression:  0,
	GroupRisk:         1,
	GroupReengagement: 2,
	GroupChurn:        3,
	GroupRecovery:     4,
}

// Notification is the metadata attached to a rule and sent when it is applied.
type Notification struct {
	Team     string `json:"team"`
	Priority string `json:"priority"`
	Template string `json:"template"`
}

// TransitionRule is a declarative edge in the lifecycle state machine.
type TransitionRule struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Group RuleGroup `json:"group"`

	// From is the set of tags this rule may fire from.
	From []StatusTag `json:"from"`
	To   StatusTag   `json:"to"`

	// Conditions are ANDed. Order is preserved in evaluation results.
	Conditions []Condition `json:"conditions"`

	ManualOverrideAllowed bool         `json:"manual_override_allowed"`
	Notification          Notification `json:"notification"`
}

// AppliesFrom reports whether tag is one of the rule's source tags.
func (r *TransitionRule) AppliesFrom(tag StatusTag) bool {
	for _, f := range r.From {
		if f == tag {
			return true
		}
	}
	return false
}

// ActionKind identifies a side effect fired when a customer enters a tag.
type ActionKind string

const (
	ActionNotify           ActionKind = "notify"
	ActionUnlockContent    ActionKind = "unlock_content"
	ActionIssueCertificate ActionKind = "issue_certificate"
	ActionStartCampaign    ActionKind = "start_campaign"
)

// Action is a tag-entry side effect. Target is the content key or campaign name.
type Action struct {
	Kind   ActionKind `json:"kind"`
	Target string     `json:"target,omitempty"`
}

// ConditionResult is the outcome of one condition against one metrics snapshot.
type ConditionResult struct {
	Metric     Metric   `json:"metric"`
	Operator   Operator `json:"operator"`
	Expected   string   `json:"expected"`
	Actual     *Value   `json:"actual,omitempty"`
	Met        bool     `json:"met"`
	Confidence float64  `json:"confidence"`
}

// RuleResult aggregates the condition results for one rule.
type RuleResult struct {
	RuleID        string            `json:"rule_id"`
	To            StatusTag         `json:"to"`
	ConditionsMet bool              `json:"conditions_met"`
	Confidence    float64           `json:"confidence"`
	Conditions    []ConditionResult `json:"conditions"`
}

// Recommendation is the transition the engine proposes for a customer.
type Recommendation struct {
	RuleID       string       `json:"rule_id"`
	From         StatusTag    `json:"from"`
	To           StatusTag    `json:"to"`
	Confidence   float64      `json:"confidence"`
	Notification Notification `json:"notification"`
}

// ReviewReason explains why an evaluation was routed to a human.
type ReviewReason string

const (
	ReviewAmbiguous      ReviewReason = "ambiguous"
	ReviewLowConfidence  ReviewReason = "low_confidence"
	ReviewCriticalStatus ReviewReason = "critical_status"
)

// Evaluation is the ephemeral result of evaluating one customer.
type Evaluation struct {
	CustomerID  string          `json:"customer_id"`
	CurrentTag  StatusTag       `json:"current_tag"`
	Recommended *Recommendation `json:"recommended_transition,omitempty"`
	Confidence  float64         `json:"confidence"`
	RuleResults []RuleResult    `json:"rule_results"`
	Terminal    bool            `json:"terminal"`

	RequiresManualReview bool           `json:"requires_manual_review"`
	ReviewReasons        []ReviewReason `json:"review_reasons,omitempty"`

	// NextEvaluationDate is nil for terminal tags.
	NextEvaluationDate *time.Time `json:"next_evaluation_date,omitempty"`
}

// MetRuleCount returns how many rules had every condition satisfied.
func (e *Evaluation) MetRuleCount() int {
	n := 0
	for _, r := range e.RuleResults {
		if r.ConditionsMet {
			n++
		}
	}
	return n
}
