package automod

import "time"

// SimulationResult aggregates scoring every candidate rule against one payload.
type SimulationResult struct {
	TotalRules         int          `json:"totalRules"`         // Rules evaluated.
	MatchedRules       []TestResult `json:"matchedRules"`       // Results for rules that matched.
	RecommendedActions []string     `json:"recommendedActions"` // De-duplicated action types across matched rules.
	OverallScore       float64      `json:"overallScore"`       // Mean score over every evaluated rule.
	ProcessingTimeMS   float64      `json:"processingTime"`     // Total duration in milliseconds.
}

// Simulate scores every rule against the payload. Unmatched rules contribute
// to the overall score average but are omitted from MatchedRules. Recommended
// actions are the union of matched rules' action types in first-seen order;
// per-rule action objects stay available on each matched result.
func Simulate(rules []RuleRef, payload *ContentPayload) SimulationResult {
	started := time.Now()

	result := SimulationResult{
		TotalRules:         len(rules),
		MatchedRules:       []TestResult{},
		RecommendedActions: []string{},
	}

	scoreSum := 0.0
	seen := map[string]bool{}
	for _, rule := range rules {
		scored := ScoreRule(rule, payload)
		scoreSum += scored.Score
		if !scored.Matched {
			continue
		}
		result.MatchedRules = append(result.MatchedRules, scored)
		for _, action := range scored.RecommendedActions {
			if seen[action] {
				continue
			}
			seen[action] = true
			result.RecommendedActions = append(result.RecommendedActions, action)
		}
	}

	if len(rules) > 0 {
		result.OverallScore = scoreSum / float64(len(rules))
	}
	result.ProcessingTimeMS = float64(time.Since(started).Microseconds()) / 1000
	return result
}
