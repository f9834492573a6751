package ruleengine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Condition is a single metric comparison gating a transition.
// Value holds the operand for comparisons; Set holds the members for "in".
type Condition struct {
	Metric   Metric
	Operator Operator
	Value    Value
	Set      []Value
}

// When builds a comparison condition. Numbers and strings are accepted.
func When(metric Metric, op Operator, operand any) Condition {
	return Condition{Metric: metric, Operator: op, Value: toValue(operand)}
}

// WhenIn builds a membership condition.
func WhenIn(metric Metric, members ...any) Condition {
	set := make([]Value, len(members))
	for i, m := range members {
		set[i] = toValue(m)
	}
	return Condition{Metric: metric, Operator: OpIn, Set: set}
}

func toValue(v any) Value {
	switch x := v.(type) {
	case Value:
		return x
	case string:
		return Text(x)
	case int:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case float64:
		return Number(x)
	default:
		panic(fmt.Sprintf("ruleengine: unsupported condition operand %T", v))
	}
}

// Expected renders the operand for display and evaluation results.
func (c Condition) Expected() string {
	if c.Operator != OpIn {
		return c.Value.String()
	}
	parts := make([]string, len(c.Set))
	for i, v := range c.Set {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %s", c.Metric, c.Operator, c.Expected())
}

type conditionJSON struct {
	Metric   Metric          `json:"metric"`
	Operator Operator        `json:"operator"`
	Value    json.RawMessage `json:"value"`
}

// MarshalJSON emits {"metric","operator","value"} with an array value for "in".
func (c Condition) MarshalJSON() ([]byte, error) {
	var (
		raw []byte
		err error
	)
	if c.Operator == OpIn {
		raw, err = json.Marshal(c.Set)
	} else {
		raw, err = json.Marshal(c.Value)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(conditionJSON{Metric: c.Metric, Operator: c.Operator, Value: raw})
}

// UnmarshalJSON decodes the catalog file form. Semantic checks happen in NewCatalog.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var aux conditionJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.Metric = aux.Metric
	c.Operator = aux.Operator
	c.Value = Value{}
	c.Set = nil

	raw := bytes.TrimSpace(aux.Value)
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &c.Set); err != nil {
			return fmt.Errorf("condition on %s: %w", aux.Metric, err)
		}
		return nil
	}
	if err := json.Unmarshal(raw, &c.Value); err != nil {
		return fmt.Errorf("condition on %s: %w", aux.Metric, err)
	}
	return nil
}
