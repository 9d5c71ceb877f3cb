package services

import (
	"context"
	"errors"
	"testing"

	"studyprogress/internal/config"
	"studyprogress/internal/models"
	contextutils "studyprogress/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDifficultyService(st *memStore, mutate func(*config.DifficultyConfig)) *DifficultyService {
	cfg := config.Defaults().Engine.Difficulty
	if mutate != nil {
		mutate(&cfg)
	}
	return NewDifficultyServiceWithLogger(st, nil, cfg, nil, testLogger())
}

func addReviews(st *memStore, itemID, n int, outcome models.ReviewOutcome, score, rt float64) {
	for i := 0; i < n; i++ {
		_ = st.AppendReview(context.Background(), models.ReviewEvent{
			UserID: 1, ItemID: itemID, Outcome: outcome, Score: score, ResponseTimeSeconds: rt,
		})
	}
}

func TestDifficultyService_CalculateOptimalDifficultyValidates(t *testing.T) {
	svc := newDifficultyService(newMemStore(), nil)
	window := models.PerformanceWindow{Scores: []float64{2, 2, 2}}

	_, err := svc.CalculateOptimalDifficulty(window, 6, moderate())
	assert.Equal(t, contextutils.ErrorCodeInvalidInput, contextutils.GetErrorCode(err))

	bad := moderate()
	bad.AdaptationSpeed = 2
	_, err = svc.CalculateOptimalDifficulty(window, 3, bad)
	assert.Equal(t, contextutils.ErrorCodeInvalidInput, contextutils.GetErrorCode(err))

	bad = moderate()
	bad.Aggressiveness = "reckless"
	_, err = svc.CalculateOptimalDifficulty(window, 3, bad)
	assert.Equal(t, contextutils.ErrorCodeInvalidInput, contextutils.GetErrorCode(err))

	p, err := svc.CalculateOptimalDifficulty(window, 3, moderate())
	require.NoError(t, err)
	assert.Equal(t, 2.5, p.RecommendedDifficulty)
}

func TestAdjustItemSetDifficulty_IsolatesFailures(t *testing.T) {
	st := newMemStore()
	st.sets[1] = []int{1, 2, 3, 4}
	for _, id := range st.sets[1] {
		st.difficulty[id] = 3
	}
	addReviews(st, 1, 3, models.OutcomeNeedsPractice, 1, 20)
	addReviews(st, 2, 3, models.OutcomeMastered, 4, 5)
	addReviews(st, 3, 3, models.OutcomeNeedsPractice, 1, 20)
	st.failSetDifficulty[3] = errors.New("connection reset")

	svc := newDifficultyService(st, func(c *config.DifficultyConfig) { c.Aggressiveness = "aggressive" })
	report, err := svc.AdjustItemSetDifficulty(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1, report.ItemSetID)
	assert.Equal(t, 4, report.Evaluated)
	// item 2 rounds back to its current value, item 4 has no history
	assert.Equal(t, 2, report.Skipped)

	require.Len(t, report.Changes, 1)
	change := report.Changes[0]
	assert.Equal(t, 1, change.ItemID)
	assert.Equal(t, 3.0, change.From)
	assert.Equal(t, 2.0, change.To)
	assert.Equal(t, ReasonLowPerformance, change.Profile.AdjustmentReason)
	assert.InDelta(t, 2.2, change.Profile.RecommendedDifficulty, 1e-9)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, 3, report.Failures[0].ItemID)
	assert.Contains(t, report.Failures[0].Error, "connection reset")

	assert.Equal(t, 2.0, st.difficulty[1])
	assert.Equal(t, 3.0, st.difficulty[2])
	assert.Equal(t, 3.0, st.difficulty[3])
	assert.Equal(t, 3.0, st.difficulty[4])
}

func TestAdjustItemsDifficulty_ReadFailureReported(t *testing.T) {
	st := newMemStore()
	st.difficulty[1] = 3
	addReviews(st, 1, 3, models.OutcomeNeedsPractice, 1, 20)
	st.failGetDifficulty[2] = errors.New("timeout")

	svc := newDifficultyService(st, func(c *config.DifficultyConfig) { c.Aggressiveness = "aggressive" })
	report, err := svc.AdjustItemsDifficulty(context.Background(), []int{2, 1, 99})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Evaluated)
	require.Len(t, report.Changes, 1)
	assert.Equal(t, 1, report.Changes[0].ItemID)
	require.Len(t, report.Failures, 2)
	assert.Equal(t, 2, report.Failures[0].ItemID)
	assert.Equal(t, 99, report.Failures[1].ItemID)
}

func TestAdjustItemsDifficulty_DeduplicatesIDs(t *testing.T) {
	st := newMemStore()
	st.difficulty[1] = 3
	addReviews(st, 1, 3, models.OutcomeNeedsPractice, 1, 20)

	svc := newDifficultyService(st, func(c *config.DifficultyConfig) { c.Aggressiveness = "aggressive" })
	report, err := svc.AdjustItemsDifficulty(context.Background(), []int{1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Evaluated)
	assert.Len(t, report.Changes, 1)
}

func TestAdjustItemsDifficulty_MaterialityThreshold(t *testing.T) {
	st := newMemStore()
	st.difficulty[1] = 3
	addReviews(st, 1, 3, models.OutcomeNeedsPractice, 1, 20)

	svc := newDifficultyService(st, func(c *config.DifficultyConfig) {
		c.Aggressiveness = "aggressive"
		c.MaterialityThreshold = 1
	})
	report, err := svc.AdjustItemsDifficulty(context.Background(), []int{1})
	require.NoError(t, err)
	assert.Empty(t, report.Changes)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 3.0, st.difficulty[1])
}

func TestAdjustItemsDifficulty_UsesWindowSize(t *testing.T) {
	st := newMemStore()
	st.difficulty[1] = 3
	addReviews(st, 1, 10, models.OutcomeMastered, 5, 20)
	addReviews(st, 1, 3, models.OutcomeNeedsPractice, 1, 20)

	svc := newDifficultyService(st, func(c *config.DifficultyConfig) {
		c.Aggressiveness = "aggressive"
		c.WindowSize = 3
	})
	report, err := svc.AdjustItemsDifficulty(context.Background(), []int{1})
	require.NoError(t, err)
	require.Len(t, report.Changes, 1)
	assert.Equal(t, 2.0, report.Changes[0].To)
}

func TestAdjustItemsDifficulty_RejectsBadConfig(t *testing.T) {
	svc := newDifficultyService(newMemStore(), func(c *config.DifficultyConfig) { c.Aggressiveness = "wild" })
	_, err := svc.AdjustItemsDifficulty(context.Background(), []int{1})
	assert.Equal(t, contextutils.ErrorCodeInvalidInput, contextutils.GetErrorCode(err))
}

type fixedPolicy struct{ target float64 }

func (p fixedPolicy) Recommend(_ models.PerformanceWindow, current float64, _ models.DifficultySettings) models.DifficultyProfile {
	return models.DifficultyProfile{CurrentDifficulty: current, RecommendedDifficulty: p.target, AdjustmentReason: "fixed"}
}

func TestAdjustItemsDifficulty_UsesInjectedPolicy(t *testing.T) {
	st := newMemStore()
	st.difficulty[1] = 2
	svc := NewDifficultyServiceWithLogger(st, fixedPolicy{target: 4.6}, config.Defaults().Engine.Difficulty, nil, testLogger())

	report, err := svc.AdjustItemsDifficulty(context.Background(), []int{1})
	require.NoError(t, err)
	require.Len(t, report.Changes, 1)
	assert.Equal(t, 5.0, report.Changes[0].To)
	assert.Equal(t, "fixed", report.Changes[0].Profile.AdjustmentReason)
	assert.Equal(t, 5.0, st.difficulty[1])
}
