package ruleengine

import "math"

// ThresholdEvaluator implements the ConditionEvaluator interface for the
// ordered numeric operators (>=, <=, <).
//
// When the comparison holds the confidence is exactly 1.0. When it does not,
// the confidence degrades with the relative distance from the threshold:
//
//	confidence = max(0, 1 - |actual - threshold| / |threshold|)
//
// For a non-negative ">=" threshold this reduces to actual/threshold.
// A zero threshold has no scale to measure distance against, and a strict
// comparison failing exactly on its threshold has no distance at all; both
// score 0 so an unmet condition never reports full confidence.
type ThresholdEvaluator struct {
	Op Operator
}

// Eval compares the numeric metric against the numeric operand.
func (e *ThresholdEvaluator) Eval(cond Condition, actual Value) (bool, float64) {
	threshold := cond.Value.Num

	var met bool
	switch e.Op {
	case OpGreaterOrEqual:
		met = actual.Num >= threshold
	case OpLessOrEqual:
		met = actual.Num <= threshold
	case OpLess:
		met = actual.Num < threshold
	}

	if met {
		return true, 1.0
	}
	if threshold == 0 || actual.Num == threshold {
		return false, 0
	}
	return false, clamp01(1 - math.Abs(actual.Num-threshold)/math.Abs(threshold))
}
