package ruleengine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
)

// ErrInvalidCatalog wraps every catalog validation failure.
var ErrInvalidCatalog = errors.New("invalid rule catalog")

// CatalogSpec is the serialized form of a catalog (e.g. a JSON file).
type CatalogSpec struct {
	Rules []TransitionRule `json:"rules"`

	// CriticalTags are business-critical states: any transition into or out
	// of them requires human sign-off regardless of confidence.
	CriticalTags []StatusTag `json:"critical_tags"`

	// TagActions are the side effects fired when a customer enters a tag.
	TagActions map[StatusTag][]Action `json:"tag_actions"`
}

// Catalog is the authoritative, ordered, immutable set of transition rules.
// It is built once at startup and injected into the services that need it.
//
// Rule order is part of the contract: when several rules are satisfied with
// equal confidence, the earlier rule wins.
type Catalog struct {
	rules    []TransitionRule
	byFrom   map[StatusTag][]int
	edges    map[edge]int
	critical map[StatusTag]struct{}
	actions  map[StatusTag][]Action
}

type edge struct {
	from StatusTag
	to   StatusTag
}

// NewCatalog validates the spec and freezes it. Any malformed rule fails here,
// never at evaluation time.
func NewCatalog(spec CatalogSpec) (*Catalog, error) {
	c := &Catalog{
		rules:    make([]TransitionRule, 0, len(spec.Rules)),
		byFrom:   make(map[StatusTag][]int),
		edges:    make(map[edge]int),
		critical: make(map[StatusTag]struct{}),
		actions:  make(map[StatusTag][]Action),
	}

	if len(spec.Rules) == 0 {
		return nil, fmt.Errorf("%w: no rules defined", ErrInvalidCatalog)
	}

	seenIDs := make(map[string]struct{}, len(spec.Rules))
	lastPriority := -1

	for i := range spec.Rules {
		rule := cloneRule(spec.Rules[i])

		if err := validateRule(&rule); err != nil {
			return nil, fmt.Errorf("%w: rule %q: %v", ErrInvalidCatalog, rule.ID, err)
		}
		if _, dup := seenIDs[rule.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate rule id %q", ErrInvalidCatalog, rule.ID)
		}
		seenIDs[rule.ID] = struct{}{}

		priority := groupPriority[rule.Group]
		if priority < lastPriority {
			return nil, fmt.Errorf("%w: rule %q (group %s) is out of priority order", ErrInvalidCatalog, rule.ID, rule.Group)
		}
		lastPriority = priority

		idx := len(c.rules)
		c.rules = append(c.rules, rule)
		for _, from := range rule.From {
			c.byFrom[from] = append(c.byFrom[from], idx)
			e := edge{from: from, to: rule.To}
			if _, exists := c.edges[e]; !exists {
				c.edges[e] = idx
			}
		}
	}

	for _, tag := range spec.CriticalTags {
		if !tag.Valid() {
			return nil, fmt.Errorf("%w: unknown critical tag %q", ErrInvalidCatalog, tag)
		}
		c.critical[tag] = struct{}{}
	}

	for tag, actions := range spec.TagActions {
		if !tag.Valid() {
			return nil, fmt.Errorf("%w: actions defined for unknown tag %q", ErrInvalidCatalog, tag)
		}
		for _, a := range actions {
			if err := validateAction(a); err != nil {
				return nil, fmt.Errorf("%w: tag %s: %v", ErrInvalidCatalog, tag, err)
			}
		}
		c.actions[tag] = slices.Clone(actions)
	}

	if err := c.checkReachability(); err != nil {
		return nil, err
	}

	return c, nil
}

// MustCatalog is NewCatalog for static configuration; it panics on error.
func MustCatalog(spec CatalogSpec) *Catalog {
	c, err := NewCatalog(spec)
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCatalogJSON decodes and validates a catalog file.
func LoadCatalogJSON(r io.Reader) (*Catalog, error) {
	var spec CatalogSpec
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidCatalog, err)
	}
	return NewCatalog(spec)
}

// validateRule checks a single rule in isolation.
func validateRule(rule *TransitionRule) error {
	if rule.ID == "" {
		return errors.New("id is required")
	}
	if _, ok := groupPriority[rule.Group]; !ok {
		return fmt.Errorf("unknown group %q", rule.Group)
	}
	if len(rule.From) == 0 {
		return errors.New("from set is empty")
	}
	if !rule.To.Valid() {
		return fmt.Errorf("unknown target tag %q", rule.To)
	}
	for _, from := range rule.From {
		if !from.Valid() {
			return fmt.Errorf("unknown source tag %q", from)
		}
		if from == rule.To {
			return fmt.Errorf("self-loop on %s", from)
		}
	}
	if len(rule.Conditions) == 0 {
		return errors.New("at least one condition is required")
	}
	for _, cond := range rule.Conditions {
		if err := validateCondition(cond); err != nil {
			return err
		}
	}
	return nil
}

// validateCondition enforces the typed metric mapping: known metric, known
// operator, and operands whose kind matches the metric.
func validateCondition(cond Condition) error {
	kind, ok := cond.Metric.Kind()
	if !ok {
		return fmt.Errorf("unknown metric %q", cond.Metric)
	}

	switch cond.Operator {
	case OpGreaterOrEqual, OpLessOrEqual, OpLess:
		if kind != KindNumber {
			return fmt.Errorf("operator %s requires a numeric metric, %s is %s", cond.Operator, cond.Metric, kind)
		}
		if cond.Value.Kind != KindNumber {
			return fmt.Errorf("operator %s on %s requires a numeric operand", cond.Operator, cond.Metric)
		}
	case OpEqual:
		if cond.Value.Kind != kind {
			return fmt.Errorf("operand for %s must be %s", cond.Metric, kind)
		}
	case OpIn:
		if len(cond.Set) == 0 {
			return fmt.Errorf("operator in on %s requires at least one member", cond.Metric)
		}
		for _, m := range cond.Set {
			if m.Kind != kind {
				return fmt.Errorf("member %q of %s must be %s", m.String(), cond.Metric, kind)
			}
		}
	default:
		return fmt.Errorf("unknown operator %q on %s", cond.Operator, cond.Metric)
	}
	return nil
}

func validateAction(a Action) error {
	switch a.Kind {
	case ActionNotify, ActionIssueCertificate:
		return nil
	case ActionUnlockContent, ActionStartCampaign:
		if a.Target == "" {
			return fmt.Errorf("action %s requires a target", a.Kind)
		}
		return nil
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
}

// checkReachability rejects dangling rules: every rule must have at least one
// source tag reachable from InitialTag.
func (c *Catalog) checkReachability() error {
	reachable := map[StatusTag]bool{InitialTag: true}
	for changed := true; changed; {
		changed = false
		for _, rule := range c.rules {
			if reachable[rule.To] {
				continue
			}
			for _, from := range rule.From {
				if reachable[from] {
					reachable[rule.To] = true
					changed = true
					break
				}
			}
		}
	}

	for _, rule := range c.rules {
		ok := false
		for _, from := range rule.From {
			if reachable[from] {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("%w: rule %q is dangling: none of its source tags %v is reachable from %s",
				ErrInvalidCatalog, rule.ID, rule.From, InitialTag)
		}
	}
	return nil
}

func cloneRule(r TransitionRule) TransitionRule {
	r.From = slices.Clone(r.From)
	conds := make([]Condition, len(r.Conditions))
	for i, c := range r.Conditions {
		c.Set = slices.Clone(c.Set)
		conds[i] = c
	}
	r.Conditions = conds
	return r
}

// Rules returns a copy of the rules in catalog order.
func (c *Catalog) Rules() []TransitionRule {
	out := make([]TransitionRule, len(c.rules))
	for i, r := range c.rules {
		out[i] = cloneRule(r)
	}
	return out
}

// RulesFrom returns the rules whose source set contains tag, in catalog order.
// The returned rules share memory with the catalog and must not be modified.
func (c *Catalog) RulesFrom(tag StatusTag) []*TransitionRule {
	idxs := c.byFrom[tag]
	out := make([]*TransitionRule, len(idxs))
	for i, idx := range idxs {
		out[i] = &c.rules[idx]
	}
	return out
}

// RuleFor returns the first rule (catalog order) with the (from, to) edge.
func (c *Catalog) RuleFor(from, to StatusTag) (*TransitionRule, bool) {
	idx, ok := c.edges[edge{from: from, to: to}]
	if !ok {
		return nil, false
	}
	return &c.rules[idx], true
}

// Allows reports whether some rule has the (from, to) edge.
func (c *Catalog) Allows(from, to StatusTag) bool {
	_, ok := c.edges[edge{from: from, to: to}]
	return ok
}

// IsTerminal reports whether no rule leaves tag.
func (c *Catalog) IsTerminal(tag StatusTag) bool {
	return len(c.byFrom[tag]) == 0
}

// IsCritical reports whether tag requires human sign-off.
func (c *Catalog) IsCritical(tag StatusTag) bool {
	_, ok := c.critical[tag]
	return ok
}

// ActionsFor returns the side effects fired on entering tag.
func (c *Catalog) ActionsFor(tag StatusTag) []Action {
	return slices.Clone(c.actions[tag])
}

// TerminalTags lists tags without outbound rules.
func (c *Catalog) TerminalTags() []StatusTag {
	var out []StatusTag
	for _, tag := range allTags {
		if c.IsTerminal(tag) {
			out = append(out, tag)
		}
	}
	return out
}

// Spec returns a serializable copy of the catalog.
func (c *Catalog) Spec() CatalogSpec {
	spec := CatalogSpec{
		Rules:      c.Rules(),
		TagActions: make(map[StatusTag][]Action, len(c.actions)),
	}
	for _, tag := range allTags {
		if c.IsCritical(tag) {
			spec.CriticalTags = append(spec.CriticalTags, tag)
		}
		if actions, ok := c.actions[tag]; ok {
			spec.TagActions[tag] = slices.Clone(actions)
		}
	}
	return spec
}
