package ruleengine

// EqualityEvaluator implements the ConditionEvaluator interface for "==".
// Confidence is binary.
type EqualityEvaluator struct{}

// Eval checks the metric value equals the operand (same kind, same payload).
func (e *EqualityEvaluator) Eval(cond Condition, actual Value) (bool, float64) {
	if actual.Equal(cond.Value) {
		return true, 1.0
	}
	return false, 0
}

// MembershipEvaluator implements the ConditionEvaluator interface for "in".
// Confidence is binary.
type MembershipEvaluator struct{}

// Eval checks the metric value is one of the condition's members.
func (e *MembershipEvaluator) Eval(cond Condition, actual Value) (bool, float64) {
	for _, member := range cond.Set {
		if actual.Equal(member) {
			return true, 1.0
		}
	}
	return false, 0
}
