package testsupport

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rafaeljc/tagflow/internal/lifecycle"
	"github.com/rafaeljc/tagflow/internal/ruleengine"
)

// Compile-time checks: MemoryStore stands in for the Postgres adapters.
var (
	_ lifecycle.ProfileStore    = (*MemoryStore)(nil)
	_ lifecycle.MetricsStore    = (*MemoryStore)(nil)
	_ lifecycle.TransitionStore = (*MemoryStore)(nil)
	_ lifecycle.ReviewQueue     = (*MemoryStore)(nil)
	_ lifecycle.DashboardQuery  = (*MemoryStore)(nil)
)

// MemoryStore is a thread-safe in-memory implementation of the lifecycle
// storage ports. Error fields inject failures per customer.
type MemoryStore struct {
	mu          sync.Mutex
	profiles    map[string]*lifecycle.Profile
	metrics     map[string]ruleengine.Metrics
	transitions []*lifecycle.Transition
	reviews     []*lifecycle.Review
	nextReview  int64

	// ProfileErr and MetricsErr fail reads for the given customer ids.
	ProfileErr map[string]error
	MetricsErr map[string]error

	// CommitErr fails every CommitTransition call when set.
	CommitErr error

	// ListErr fails ListActive when set.
	ListErr error

	// OnList runs after each ListActive page (tests use it to cancel mid-sweep).
	OnList func(page int)
	pages  int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:   make(map[string]*lifecycle.Profile),
		metrics:    make(map[string]ruleengine.Metrics),
		ProfileErr: make(map[string]error),
		MetricsErr: make(map[string]error),
	}
}

// PutCustomer seeds a customer with its current tag and metrics snapshot.
func (m *MemoryStore) PutCustomer(id string, tag ruleengine.StatusTag, metrics ruleengine.Metrics) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	m.profiles[id] = &lifecycle.Profile{
		ID:           id,
		CurrentTag:   tag,
		TagAppliedAt: now.Add(-48 * time.Hour),
		CreatedAt:    now.Add(-30 * 24 * time.Hour),
	}
	m.metrics[id] = metrics
}

// SetTag changes a customer's tag without recording a transition
// (simulates a concurrent writer).
func (m *MemoryStore) SetTag(id string, tag ruleengine.StatusTag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[id]; ok {
		p.CurrentTag = tag
	}
}

// Tag returns the customer's current tag.
func (m *MemoryStore) Tag(id string) ruleengine.StatusTag {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[id]; ok {
		return p.CurrentTag
	}
	return ""
}

// Transitions returns a copy of the audit log in insertion order.
func (m *MemoryStore) Transitions() []lifecycle.Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]lifecycle.Transition, len(m.transitions))
	for i, t := range m.transitions {
		out[i] = *t
	}
	return out
}

// Reviews returns a copy of every review item.
func (m *MemoryStore) Reviews() []lifecycle.Review {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]lifecycle.Review, len(m.reviews))
	for i, r := range m.reviews {
		out[i] = *r
	}
	return out
}

func (m *MemoryStore) GetProfile(ctx context.Context, id string) (*lifecycle.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ProfileErr[id]; err != nil {
		return nil, err
	}
	p, ok := m.profiles[id]
	if !ok {
		return nil, fmt.Errorf("customer %s: %w", id, lifecycle.ErrCustomerNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) ListActive(ctx context.Context, afterID string, limit int) ([]*lifecycle.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()

	if m.ListErr != nil {
		m.mu.Unlock()
		return nil, m.ListErr
	}

	ids := make([]string, 0, len(m.profiles))
	for id := range m.profiles {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]*lifecycle.Profile, len(ids))
	for i, id := range ids {
		cp := *m.profiles[id]
		out[i] = &cp
	}
	m.pages++
	page, hook := m.pages, m.OnList
	m.mu.Unlock()

	if hook != nil {
		hook(page)
	}
	return out, nil
}

func (m *MemoryStore) GetMetrics(ctx context.Context, id string) (ruleengine.Metrics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.MetricsErr[id]; err != nil {
		return nil, err
	}
	metrics, ok := m.metrics[id]
	if !ok {
		return nil, fmt.Errorf("metrics for %s: %w", id, lifecycle.ErrCustomerNotFound)
	}
	out := make(ruleengine.Metrics, len(metrics))
	for k, v := range metrics {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) CommitTransition(ctx context.Context, t *lifecycle.Transition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CommitErr != nil {
		return m.CommitErr
	}
	p, ok := m.profiles[t.CustomerID]
	if !ok {
		return lifecycle.ErrCustomerNotFound
	}
	if p.CurrentTag != t.FromTag {
		return lifecycle.ErrStaleTag
	}

	t.ID = uuid.New()
	t.CreatedAt = time.Now().UTC()
	p.CurrentTag = t.ToTag
	p.TagAppliedAt = t.CreatedAt

	cp := *t
	m.transitions = append(m.transitions, &cp)
	return nil
}

func (m *MemoryStore) ListTransitions(ctx context.Context, id string, limit int) ([]*lifecycle.Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*lifecycle.Transition
	for i := len(m.transitions) - 1; i >= 0 && len(out) < limit; i-- {
		if m.transitions[i].CustomerID == id {
			cp := *m.transitions[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) Enqueue(ctx context.Context, id string, eval ruleengine.Evaluation) (*lifecycle.Review, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	// One pending review per customer: a newer evaluation replaces it.
	for _, r := range m.reviews {
		if r.CustomerID == id && r.Status == lifecycle.ReviewPending {
			r.Evaluation = eval
			r.CreatedAt = time.Now().UTC()
			cp := *r
			return &cp, nil
		}
	}

	m.nextReview++
	r := &lifecycle.Review{
		ID:         m.nextReview,
		CustomerID: id,
		Evaluation: eval,
		Status:     lifecycle.ReviewPending,
		CreatedAt:  time.Now().UTC(),
	}
	m.reviews = append(m.reviews, r)
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) ListPending(ctx context.Context, limit int) ([]*lifecycle.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*lifecycle.Review
	for _, r := range m.reviews {
		if r.Status == lifecycle.ReviewPending && len(out) < limit {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) Resolve(ctx context.Context, id int64, decision lifecycle.ReviewDecision, operator string) (*lifecycle.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.reviews {
		if r.ID != id {
			continue
		}
		if r.Status != lifecycle.ReviewPending {
			return nil, lifecycle.ErrReviewResolved
		}
		now := time.Now().UTC()
		r.Status = lifecycle.ReviewRejected
		if decision == lifecycle.DecisionApprove {
			r.Status = lifecycle.ReviewApproved
		}
		r.ResolvedBy = operator
		r.ResolvedAt = &now
		cp := *r
		return &cp, nil
	}
	return nil, lifecycle.ErrReviewNotFound
}

func (m *MemoryStore) StatusDistribution(ctx context.Context) ([]lifecycle.TagCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[ruleengine.StatusTag]int64)
	for _, p := range m.profiles {
		counts[p.CurrentTag]++
	}
	out := make([]lifecycle.TagCount, 0, len(counts))
	for _, tag := range ruleengine.AllTags() {
		out = append(out, lifecycle.TagCount{Tag: tag, Name: tag.Name(), Count: counts[tag]})
	}
	return out, nil
}

func (m *MemoryStore) TransitionAnalytics(ctx context.Context, since time.Time) ([]lifecycle.EdgeStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type key struct{ from, to ruleengine.StatusTag }
	stats := make(map[key]*lifecycle.EdgeStat)
	for _, t := range m.transitions {
		if t.CreatedAt.Before(since) {
			continue
		}
		k := key{t.FromTag, t.ToTag}
		s, ok := stats[k]
		if !ok {
			s = &lifecycle.EdgeStat{FromTag: t.FromTag, ToTag: t.ToTag}
			stats[k] = s
		}
		s.Total++
		if t.AppliedBy == lifecycle.AppliedByAuto {
			s.Automatic++
		} else {
			s.Manual++
		}
	}

	out := make([]lifecycle.EdgeStat, 0, len(stats))
	for _, s := range stats {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b lifecycle.EdgeStat) int {
		if c := strings.Compare(string(a.FromTag), string(b.FromTag)); c != 0 {
			return c
		}
		return strings.Compare(string(a.ToTag), string(b.ToTag))
	})
	return out, nil
}

func (m *MemoryStore) CustomerHistory(ctx context.Context, id string, limit int) ([]*lifecycle.Transition, error) {
	return m.ListTransitions(ctx, id, limit)
}

func (m *MemoryStore) PendingReviewCount(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, r := range m.reviews {
		if r.Status == lifecycle.ReviewPending {
			n++
		}
	}
	return n, nil
}

// Compile-time checks: RecordingActions stands in for the Redis outbox.
var (
	_ lifecycle.Notifier          = (*RecordingActions)(nil)
	_ lifecycle.ContentUnlocker   = (*RecordingActions)(nil)
	_ lifecycle.CertificateIssuer = (*RecordingActions)(nil)
	_ lifecycle.CampaignStarter   = (*RecordingActions)(nil)
	_ lifecycle.AnalyticsSink     = (*RecordingActions)(nil)
)

// RecordingActions records every side effect. Fail maps an action kind
// ("notify", "unlock_content", "issue_certificate", "start_campaign",
// "analytics") to the error it should return.
type RecordingActions struct {
	mu    sync.Mutex
	Fail  map[string]error
	Calls []string

	Notifications []lifecycle.Notification
	Events        []lifecycle.TransitionEvent
}

// NewRecordingActions creates a recorder that succeeds by default.
func NewRecordingActions() *RecordingActions {
	return &RecordingActions{Fail: make(map[string]error)}
}

func (r *RecordingActions) record(kind, detail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, kind+":"+detail)
	return r.Fail[kind]
}

// CallLog returns a copy of the recorded calls as "kind:detail".
func (r *RecordingActions) CallLog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.Calls)
}

func (r *RecordingActions) SendNotification(ctx context.Context, n lifecycle.Notification) error {
	r.mu.Lock()
	r.Notifications = append(r.Notifications, n)
	r.mu.Unlock()
	return r.record(string(ruleengine.ActionNotify), n.CustomerID+":"+n.Template)
}

func (r *RecordingActions) UnlockContent(ctx context.Context, customerID, contentKey string) error {
	return r.record(string(ruleengine.ActionUnlockContent), customerID+":"+contentKey)
}

func (r *RecordingActions) IssueCertificate(ctx context.Context, customerID string, tag ruleengine.StatusTag) error {
	return r.record(string(ruleengine.ActionIssueCertificate), customerID+":"+string(tag))
}

func (r *RecordingActions) StartCampaign(ctx context.Context, customerID, campaign string) error {
	return r.record(string(ruleengine.ActionStartCampaign), customerID+":"+campaign)
}

func (r *RecordingActions) TrackStatusTransition(ctx context.Context, ev lifecycle.TransitionEvent) error {
	r.mu.Lock()
	r.Events = append(r.Events, ev)
	r.mu.Unlock()
	return r.record("analytics", ev.CustomerID)
}

// Dependencies wires a MemoryStore and a RecordingActions into every port.
func Dependencies(store *MemoryStore, actions *RecordingActions) lifecycle.Dependencies {
	return lifecycle.Dependencies{
		Profiles:     store,
		Metrics:      store,
		Transitions:  store,
		Reviews:      store,
		Notifier:     actions,
		Content:      actions,
		Certificates: actions,
		Campaigns:    actions,
		Analytics:    actions,
	}
}
