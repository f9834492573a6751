package ruleengine

// ConditionEvaluator is the interface that all operator strategies must implement.
// It encapsulates how a single comparison is scored against a metric value.
type ConditionEvaluator interface {
	// Eval scores the condition against the actual metric value.
	//
	// Returns:
	// - met: True if the comparison holds.
	// - confidence: A score in [0,1]. Exactly 1.0 when met.
	//
	// Catalog validation guarantees the operand kinds match the metric kind,
	// so implementations only handle the kinds they were compiled for.
	Eval(cond Condition, actual Value) (met bool, confidence float64)
}

// clamp01 bounds a score to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
