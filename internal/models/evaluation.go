package models

import (
	"fmt"
	"strings"
)

// EvaluationPolicy governs which review fields a competition accepts.
type EvaluationPolicy string

const (
	// EvaluationText accepts free-text reviews only.
	EvaluationText EvaluationPolicy = "TEXT"
	// EvaluationPoints requires a 0..10 score and drops text.
	EvaluationPoints EvaluationPolicy = "POINTS"
	// EvaluationBoth accepts optional text and an optional score.
	EvaluationBoth EvaluationPolicy = "BOTH"
)

const (
	// MinReviewPoints is the lowest accepted review score.
	MinReviewPoints = 0
	// MaxReviewPoints is the highest accepted review score.
	MaxReviewPoints = 10
)

// ParseEvaluationPolicy parses a policy name case-insensitively.
func ParseEvaluationPolicy(value string) (EvaluationPolicy, error) {
	policy := EvaluationPolicy(strings.ToUpper(strings.TrimSpace(value)))
	if !policy.Valid() {
		return "", fmt.Errorf("unknown evaluation policy %q", value)
	}
	return policy, nil
}

// Valid reports whether the policy is one of the known variants.
func (p EvaluationPolicy) Valid() bool {
	switch p {
	case EvaluationText, EvaluationPoints, EvaluationBoth:
		return true
	default:
		return false
	}
}

// PointsInRange reports whether a score lies within the accepted bounds.
func PointsInRange(points int) bool {
	return points >= MinReviewPoints && points <= MaxReviewPoints
}
