package services

import (
	"math"
	"sort"
	"strings"

	"github.com/industriq/blackbox/internal/database"
)

// CausalMatch is one rule whose triggers were observed in the event window.
type CausalMatch struct {
	RuleID                 uint                         `json:"rule_id"`
	RuleName               string                       `json:"rule_name"`
	RuleNameAr             string                       `json:"rule_name_ar"`
	RootCause              string                       `json:"root_cause"`
	ConfidenceBoost        float64                      `json:"confidence_boost"`
	TriggerScore           float64                      `json:"trigger_score"`
	RecommendedActions     []database.RecommendedAction `json:"recommended_actions"`
	EstimatedDowntimeHours float64                      `json:"estimated_downtime_hours"`
}

// EvaluateCausalRules scores each in-scope rule against the concatenated
// window-event summaries. A trigger earns full credit when its metric keyword
// appears in the text, plus half credit when a qualifying keyword for its
// condition also appears. Rules earning at least one full trigger are
// returned sorted best first. Pure function.
func EvaluateCausalRules(rules []database.RCARule, assetType string, summaries string) []CausalMatch {
	text := strings.ToLower(summaries)

	var matches []CausalMatch
	for i := range rules {
		rule := &rules[i]
		if !rule.AppliesToAssetType(assetType) {
			continue
		}
		if len(rule.Triggers) == 0 {
			continue
		}

		score := 0.0
		for _, trigger := range rule.Triggers {
			if trigger.Metric != "" && strings.Contains(text, strings.ToLower(trigger.Metric)) {
				score += 1
			}
			score += conditionCredit(trigger.Condition, text)
		}

		if score < 1 {
			continue
		}

		matches = append(matches, CausalMatch{
			RuleID:                 rule.ID,
			RuleName:               rule.Name,
			RuleNameAr:             rule.NameAr,
			RootCause:              rule.RootCauseCategory,
			ConfidenceBoost:        rule.ConfidenceBoost,
			TriggerScore:           score / float64(len(rule.Triggers)),
			RecommendedActions:     rule.RecommendedActions,
			EstimatedDowntimeHours: rule.EstimatedDowntimeHours,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].TriggerScore != matches[j].TriggerScore {
			return matches[i].TriggerScore > matches[j].TriggerScore
		}
		return matches[i].RuleName < matches[j].RuleName
	})

	return matches
}

// conditionCredit awards partial credit when the text qualifies the trigger
// condition. An absent or unrecognized condition earns nothing extra but
// never disqualifies the trigger.
func conditionCredit(condition, text string) float64 {
	switch condition {
	case "high":
		if strings.Contains(text, "high") || strings.Contains(text, "exceeded") {
			return 0.5
		}
	case "low":
		if strings.Contains(text, "low") || strings.Contains(text, "below") {
			return 0.5
		}
	}
	return 0
}

// ComputeRootCauseScores aggregates both strategies into a normalized
// probability distribution over root-cause categories. Historical matches
// contribute similarity x confidence; rule matches contribute trigger score
// x confidence boost, doubled, because a rule firing is direct evidence.
// With no contribution at all, UNKNOWN is seeded. The top five categories
// are retained. Pure function.
func ComputeRootCauseScores(patternMatches []HistoricalMatch, causalMatches []CausalMatch) database.ScoreMap {
	scores := database.ScoreMap{}

	for _, pm := range patternMatches {
		scores[pm.RootCause] += pm.Similarity * pm.Confidence
	}
	for _, cm := range causalMatches {
		scores[cm.RootCause] += cm.TriggerScore * cm.ConfidenceBoost * 2
	}

	if len(scores) == 0 {
		scores["UNKNOWN"] = 0.3
	}

	var total float64
	for _, v := range scores {
		total += v
	}
	if total > 0 {
		for k, v := range scores {
			scores[k] = roundScore(v / total)
		}
	}

	return topScores(scores, 5)
}

// topScores keeps the n highest-scoring categories, breaking ties by name
// for determinism.
func topScores(scores database.ScoreMap, n int) database.ScoreMap {
	if len(scores) <= n {
		return scores
	}

	type entry struct {
		cause string
		score float64
	}
	entries := make([]entry, 0, len(scores))
	for cause, score := range scores {
		entries = append(entries, entry{cause, score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].cause < entries[j].cause
	})

	top := database.ScoreMap{}
	for _, e := range entries[:n] {
		top[e.cause] = e.score
	}
	return top
}

func roundScore(v float64) float64 {
	return math.Round(v*1000) / 1000
}
