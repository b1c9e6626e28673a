package notifications

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var scoreTime = time.Date(2025, 6, 12, 14, 0, 0, 0, time.UTC)

func TestScoreIsDeterministic(t *testing.T) {
	scorer := NewWeightedScorer()
	tpl := testTemplate("t", CategoryMessages, PriorityHigh)
	prefs := DefaultPreferences(1)
	pattern := flatPattern(1, 0.6)
	context := map[string]string{"listing_id": "42"}

	first := scorer.Score(tpl, prefs, pattern, context, scoreTime)
	second := scorer.Score(tpl, prefs, pattern, context, scoreTime)

	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.Factors, second.Factors)
}

func TestScoreWeightsSumToOne(t *testing.T) {
	scorer := NewWeightedScorer()
	tpl := testTemplate("t", CategoryMessages, PriorityMedium)
	prefs := DefaultPreferences(1)

	cases := []map[string]string{
		nil,
		{"listing_id": "42"},
		{"a": "1", "b": "2", "c": "3"},
	}

	for _, context := range cases {
		result := scorer.Score(tpl, prefs, flatPattern(1, 0.5), context, scoreTime)
		var total float64
		for _, f := range result.Factors {
			total += f.Weight
		}
		assert.InDelta(t, 1.0, total, 1e-9)
	}
}

func TestScoreContextFactorOnlyWhenPresent(t *testing.T) {
	scorer := NewWeightedScorer()
	tpl := testTemplate("t", CategoryMessages, PriorityMedium)
	prefs := DefaultPreferences(1)

	without := scorer.Score(tpl, prefs, nil, nil, scoreTime)
	with := scorer.Score(tpl, prefs, nil, map[string]string{"k": "v"}, scoreTime)

	assert.Len(t, without.Factors, 5)
	assert.Len(t, with.Factors, 6)

	names := make([]string, 0, len(with.Factors))
	for _, f := range with.Factors {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "context_relevance")
}

func TestScoreMissingBehaviorDefaultsNeutral(t *testing.T) {
	scorer := NewWeightedScorer()
	tpl := testTemplate("t", CategoryMessages, PriorityMedium)
	prefs := DefaultPreferences(1)

	result := scorer.Score(tpl, prefs, nil, nil, scoreTime)

	// Every factor except base importance is neutral 0.5 and medium
	// priority is itself 0.5, so the score lands exactly at 5
	assert.InDelta(t, 5.0, result.Score, 1e-9)
}

func TestScoreConfidenceFormula(t *testing.T) {
	scorer := NewWeightedScorer()
	tpl := testTemplate("t", CategoryMessages, PriorityMedium)
	prefs := DefaultPreferences(1)

	five := scorer.Score(tpl, prefs, nil, nil, scoreTime)
	assert.InDelta(t, 0.75, five.Confidence, 1e-9)

	six := scorer.Score(tpl, prefs, nil, map[string]string{"k": "v"}, scoreTime)
	assert.InDelta(t, 0.80, six.Confidence, 1e-9)
}

func TestScoreRangeBounds(t *testing.T) {
	scorer := NewWeightedScorer()
	prefs := DefaultPreferences(1)

	urgent := testTemplate("t", CategorySecurity, PriorityUrgent)
	hot := flatPattern(1, 1.0)
	hot.CategoryEngagement[CategorySecurity] = 1.0
	high := scorer.Score(urgent, prefs, hot, map[string]string{"a": "1", "b": "2", "c": "3"}, scoreTime)
	assert.LessOrEqual(t, high.Score, 10.0)
	assert.Greater(t, high.Score, 8.0)

	low := testTemplate("t", CategoryPromotions, PriorityLow)
	cold := flatPattern(1, 0)
	cold.CategoryEngagement = map[Category]float64{CategoryPromotions: 0}
	bottom := scorer.Score(low, prefs, cold, nil, scoreTime)
	assert.GreaterOrEqual(t, bottom.Score, 0.0)
	assert.Less(t, bottom.Score, 2.0)
}

func TestScoreOptedOutCategoryZeroesPreference(t *testing.T) {
	scorer := NewWeightedScorer()
	tpl := testTemplate("t", CategoryPromotions, PriorityMedium)
	prefs := DefaultPreferences(1)
	prefs.Categories = CategoryOptIns{CategoryPromotions: false}

	result := scorer.Score(tpl, prefs, flatPattern(1, 0.5), nil, scoreTime)
	for _, f := range result.Factors {
		if f.Name == "category_preference" {
			assert.Zero(t, f.Value)
			return
		}
	}
	t.Fatal("category_preference factor missing")
}

// A disengaged user receiving a promotion scores low and is predicted
// not to engage
func TestScoreDisengagedPromotion(t *testing.T) {
	scorer := NewWeightedScorer()
	tpl := testTemplate("t", CategoryPromotions, PriorityMedium)
	prefs := DefaultPreferences(1)

	pattern := flatPattern(1, 0.2)
	pattern.CategoryEngagement = map[Category]float64{CategoryPromotions: 0.1}

	result := scorer.Score(tpl, prefs, pattern, nil, scoreTime)

	assert.Less(t, result.Score, 4.0)
	assert.LessOrEqual(t, result.PredictedEngagement, 0.1)
}

func TestScoreChurnDampensPrediction(t *testing.T) {
	scorer := NewWeightedScorer()
	tpl := testTemplate("t", CategoryMessages, PriorityMedium)
	prefs := DefaultPreferences(1)

	steady := flatPattern(1, 0.5)
	churning := flatPattern(1, 0.5)
	churning.ChurnRisk = 1.0

	a := scorer.Score(tpl, prefs, steady, nil, scoreTime)
	b := scorer.Score(tpl, prefs, churning, nil, scoreTime)

	assert.InDelta(t, a.PredictedEngagement/2, b.PredictedEngagement, 1e-9)
}
