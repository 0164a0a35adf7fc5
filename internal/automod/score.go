package automod

import (
	"fmt"
	"math"
	"time"
)

// MatchThreshold is the fixed score above which a rule is considered matched.
const MatchThreshold = 50

// ConfidenceCap keeps reported confidence below full certainty.
const ConfidenceCap = 95

// RuleRef pairs a rule's identity with its evaluable definition.
type RuleRef struct {
	ID         uint64     // Rule identifier.
	Name       string     // Display name.
	Priority   int        // Evaluation priority, higher first.
	Definition Definition // Conditions, actions and gating fields.
}

// TestResult is the outcome of scoring one rule against one payload.
// It is ephemeral and never persisted.
type TestResult struct {
	RuleID              uint64   `json:"ruleId"`              // Rule identity.
	RuleName            string   `json:"ruleName"`            // Rule display name.
	Matched             bool     `json:"matched"`             // Whether the score cleared the threshold.
	Score               float64  `json:"score"`               // Weighted match score, 0-100.
	Confidence          float64  `json:"confidence"`          // Score capped at 95.
	TriggeredConditions []string `json:"triggeredConditions"` // "<TYPE>: <reason>" per matched condition.
	RecommendedActions  []string `json:"recommendedActions"`  // Configured action types when matched.
	Actions             []Action `json:"actions,omitempty"`   // Full action objects when matched.
	ProcessingTimeMS    float64  `json:"processingTime"`      // Evaluation duration in milliseconds.
}

// ScoreRule evaluates every condition of a rule and aggregates the weighted
// results into a 0-100 score. A condition's weight counts toward the maximum
// whether or not it matches; only matched conditions contribute to the total.
func ScoreRule(ref RuleRef, payload *ContentPayload) TestResult {
	started := time.Now()

	result := TestResult{
		RuleID:              ref.ID,
		RuleName:            ref.Name,
		TriggeredConditions: []string{},
		RecommendedActions:  []string{},
	}

	totalScore := 0.0
	maxScore := 0.0
	for _, cond := range ref.Definition.Conditions {
		weight := cond.EffectiveWeight()
		maxScore += weight

		evaluated := EvaluateCondition(cond, payload)
		if evaluated.Matched {
			totalScore += weight * evaluated.Score
			result.TriggeredConditions = append(result.TriggeredConditions,
				fmt.Sprintf("%s: %s", cond.Type, evaluated.Reason))
		}
	}

	if maxScore > 0 {
		result.Score = totalScore / maxScore * 100
	}
	result.Matched = result.Score > MatchThreshold
	result.Confidence = math.Min(result.Score, ConfidenceCap)

	if result.Matched {
		for _, action := range ref.Definition.Actions {
			result.RecommendedActions = append(result.RecommendedActions, string(action.Type))
		}
		result.Actions = ref.Definition.Actions
	}

	result.ProcessingTimeMS = float64(time.Since(started).Microseconds()) / 1000
	return result
}
