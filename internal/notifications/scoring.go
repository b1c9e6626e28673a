// internal/notifications/scoring.go

package notifications

import (
	"math"
	"time"
)

// Scorer computes a relevance score for a candidate notification.
// Implementations must be deterministic: identical inputs produce
// identical output, so scoring stays testable.
type Scorer interface {
	Score(tpl *Template, prefs *Preferences, pattern *BehaviorPattern, context map[string]string, now time.Time) Intelligence
}

// Factor weights. When the optional context factor is absent the remaining
// weights are renormalized so the reported weights still sum to 1.0.
const (
	weightBaseImportance      = 0.30
	weightCategoryPreference  = 0.20
	weightTimingRelevance     = 0.15
	weightContextRelevance    = 0.15
	weightRecentBehavior      = 0.10
	weightPredictedEngagement = 0.10

	neutralValue  = 0.5
	maxConfidence = 0.95
)

// WeightedScorer is the default scoring strategy: a fixed weighted sum
// over behavior statistics, scaled to [0,10].
type WeightedScorer struct{}

// NewWeightedScorer creates the default scorer
func NewWeightedScorer() Scorer {
	return &WeightedScorer{}
}

// Score computes the weighted relevance score. Missing behavior data
// defaults to neutral 0.5; the scorer never fails on absent optional data.
func (s *WeightedScorer) Score(tpl *Template, prefs *Preferences, pattern *BehaviorPattern, context map[string]string, now time.Time) Intelligence {
	predicted := predictedEngagement(tpl.Category, pattern)

	factors := []ScoreFactor{
		{Name: "base_importance", Weight: weightBaseImportance, Value: priorityValue(tpl.Priority)},
		{Name: "category_preference", Weight: weightCategoryPreference, Value: categoryPreference(tpl.Category, prefs, pattern)},
		{Name: "timing_relevance", Weight: weightTimingRelevance, Value: hourlyActivity(pattern, now.Hour())},
	}

	if len(context) > 0 {
		factors = append(factors, ScoreFactor{
			Name:   "context_relevance",
			Weight: weightContextRelevance,
			Value:  contextRelevance(context),
		})
	}

	factors = append(factors,
		ScoreFactor{Name: "recent_behavior", Weight: weightRecentBehavior, Value: recentBehavior(pattern, now)},
		ScoreFactor{Name: "predicted_engagement", Weight: weightPredictedEngagement, Value: predicted},
	)

	// Renormalize so the present factors always sum to 1.0
	var totalWeight float64
	for _, f := range factors {
		totalWeight += f.Weight
	}
	var score float64
	for i := range factors {
		factors[i].Weight = factors[i].Weight / totalWeight
		score += factors[i].Weight * clamp01(factors[i].Value)
	}

	snapshot := make(map[string]string, len(context))
	for k, v := range context {
		snapshot[k] = v
	}

	return Intelligence{
		Score:               math.Min(10, math.Max(0, score*10)),
		Confidence:          math.Min(maxConfidence, 0.5+0.05*float64(len(factors))),
		Factors:             factors,
		PredictedEngagement: predicted,
		Context:             snapshot,
	}
}

func priorityValue(p Priority) float64 {
	switch p {
	case PriorityUrgent:
		return 1.0
	case PriorityHigh:
		return 0.75
	case PriorityMedium:
		return 0.5
	case PriorityLow:
		return 0.25
	default:
		return neutralValue
	}
}

func categoryPreference(cat Category, prefs *Preferences, pattern *BehaviorPattern) float64 {
	if prefs != nil && !prefs.Categories.Enabled(cat) {
		return 0
	}
	if pattern == nil || pattern.CategoryEngagement == nil {
		return neutralValue
	}
	engagement, ok := pattern.CategoryEngagement[cat]
	if !ok {
		return neutralValue
	}
	return engagement
}

func hourlyActivity(pattern *BehaviorPattern, hour int) float64 {
	if pattern == nil || len(pattern.HourlyActivity) != 24 {
		return neutralValue
	}
	return pattern.HourlyActivity[((hour%24)+24)%24]
}

// recentBehavior averages activity over the three hours before now
func recentBehavior(pattern *BehaviorPattern, now time.Time) float64 {
	if pattern == nil || len(pattern.HourlyActivity) != 24 {
		return neutralValue
	}
	var sum float64
	for i := 1; i <= 3; i++ {
		sum += hourlyActivity(pattern, now.Hour()-i)
	}
	return sum / 3
}

// contextRelevance rewards richer caller context. Bounded so three or
// more context keys count as fully relevant.
func contextRelevance(context map[string]string) float64 {
	return math.Min(1.0, 0.4+0.2*float64(len(context)))
}

// predictedEngagement estimates how likely the user is to engage,
// dampened by churn risk.
func predictedEngagement(cat Category, pattern *BehaviorPattern) float64 {
	if pattern == nil || pattern.CategoryEngagement == nil {
		return neutralValue
	}
	engagement, ok := pattern.CategoryEngagement[cat]
	if !ok {
		return neutralValue
	}
	return clamp01(engagement * (1 - 0.5*clamp01(pattern.ChurnRisk)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
