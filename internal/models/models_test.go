package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMasteryRecord_ApplyStaysInRange(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := MasteryRecord{UserID: 1, ItemID: 2}

	for i := 0; i < 8; i++ {
		rec = rec.Apply(OutcomeMastered, now)
		assert.LessOrEqual(t, rec.MasteryLevel, MaxMastery)
	}
	assert.Equal(t, MaxMastery, rec.MasteryLevel)
	assert.Equal(t, 8, rec.TimesSeen)
	assert.Equal(t, 8, rec.TimesCorrect)

	for i := 0; i < 8; i++ {
		rec = rec.Apply(OutcomeNeedsPractice, now)
		assert.GreaterOrEqual(t, rec.MasteryLevel, MinMastery)
	}
	assert.Equal(t, MinMastery, rec.MasteryLevel)
	assert.Equal(t, 16, rec.TimesSeen)
	assert.Equal(t, 8, rec.TimesCorrect)
	assert.Equal(t, now, *rec.LastReviewedAt)
}

func TestMasteryRecord_ApplyDoesNotAliasTimestamp(t *testing.T) {
	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := MasteryRecord{}.Apply(OutcomeMastered, first)
	b := a.Apply(OutcomeMastered, first.Add(time.Hour))
	assert.Equal(t, first, *a.LastReviewedAt)
	assert.Equal(t, first.Add(time.Hour), *b.LastReviewedAt)
}

func TestReviewOutcome(t *testing.T) {
	assert.True(t, OutcomeMastered.Valid())
	assert.True(t, OutcomeNeedsPractice.Valid())
	assert.False(t, ReviewOutcome("maybe").Valid())

	assert.True(t, OutcomeMastered.IsCorrect())
	assert.False(t, OutcomeNeedsPractice.IsCorrect())

	assert.Equal(t, 5.0, OutcomeMastered.DefaultScore())
	assert.Equal(t, 1.0, OutcomeNeedsPractice.DefaultScore())
}

func TestClampDifficulty(t *testing.T) {
	assert.Equal(t, 1.0, ClampDifficulty(-3))
	assert.Equal(t, 5.0, ClampDifficulty(9))
	assert.Equal(t, 3.4, ClampDifficulty(3.4))
}

func TestEnumsValid(t *testing.T) {
	assert.True(t, ActivityQuizTaking.Valid())
	assert.False(t, ActivityType("sleeping").Valid())
	assert.True(t, GoalStatusArchived.Valid())
	assert.False(t, GoalStatus("lost").Valid())
	assert.True(t, BulkActionDelete.Valid())
	assert.False(t, BulkAction("shred").Valid())
	assert.True(t, AggressivenessModerate.Valid())
	assert.False(t, Aggressiveness("wild").Valid())
}

func TestPriorityRank(t *testing.T) {
	assert.Less(t, PriorityCritical.Rank(), PriorityHigh.Rank())
	assert.Less(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Less(t, PriorityMedium.Rank(), PriorityLow.Rank())
}
