// Package models defines the data structures shared by the progress engine.
package models

import (
	"time"
)

// Mastery and difficulty bounds
const (
	MinMastery    = 0
	MaxMastery    = 5
	MinDifficulty = 1.0
	MaxDifficulty = 5.0
	MinScore      = 0.0
	MaxScore      = 5.0
)

// ReviewOutcome is the learner's self-assessment of a single item review
type ReviewOutcome string

// Review outcome constants
const (
	OutcomeMastered      ReviewOutcome = "mastered"       // OutcomeMastered marks a correct recall
	OutcomeNeedsPractice ReviewOutcome = "needs_practice" // OutcomeNeedsPractice marks a miss
)

// Valid reports whether o is a known outcome
func (o ReviewOutcome) Valid() bool {
	switch o {
	case OutcomeMastered, OutcomeNeedsPractice:
		return true
	}
	return false
}

// IsCorrect reports whether the outcome counts as a correct answer
func (o ReviewOutcome) IsCorrect() bool {
	return o == OutcomeMastered
}

// DefaultScore is the review score recorded when the caller supplies none
func (o ReviewOutcome) DefaultScore() float64 {
	switch o {
	case OutcomeMastered:
		return MaxScore
	case OutcomeNeedsPractice:
		return 1
	}
	return MinScore
}

// MasteryRecord is one learner's standing on one item
type MasteryRecord struct {
	UserID         int        `json:"user_id"`
	ItemID         int        `json:"item_id"`
	MasteryLevel   int        `json:"mastery_level"`
	TimesSeen      int        `json:"times_seen"`
	TimesCorrect   int        `json:"times_correct"`
	LastReviewedAt *time.Time `json:"last_reviewed_at,omitempty"`
}

// Apply returns the record after one review. Mastery moves one step per review
// and never leaves [MinMastery, MaxMastery].
func (m MasteryRecord) Apply(outcome ReviewOutcome, at time.Time) MasteryRecord {
	next := m
	next.TimesSeen++
	if outcome.IsCorrect() {
		next.TimesCorrect++
		next.MasteryLevel++
	} else {
		next.MasteryLevel--
	}
	next.MasteryLevel = ClampMastery(next.MasteryLevel)
	reviewed := at
	next.LastReviewedAt = &reviewed
	return next
}

// ReviewEvent is one entry in the append-only review history
type ReviewEvent struct {
	ID                  int64         `json:"id,omitempty"`
	UserID              int           `json:"user_id"`
	ItemID              int           `json:"item_id"`
	SessionID           string        `json:"session_id,omitempty"`
	Outcome             ReviewOutcome `json:"outcome"`
	Score               float64       `json:"score"`
	ResponseTimeSeconds float64       `json:"response_time_seconds"`
	ReviewedAt          time.Time     `json:"reviewed_at"`
}

// ClampMastery bounds a mastery level
func ClampMastery(level int) int {
	if level < MinMastery {
		return MinMastery
	}
	if level > MaxMastery {
		return MaxMastery
	}
	return level
}

// ClampDifficulty bounds a difficulty value
func ClampDifficulty(d float64) float64 {
	if d < MinDifficulty {
		return MinDifficulty
	}
	if d > MaxDifficulty {
		return MaxDifficulty
	}
	return d
}

// ReviewSubmission is a review as reported by a caller. A nil Score takes the outcome's default.
type ReviewSubmission struct {
	ItemID              int           `json:"item_id" validate:"required,gt=0"`
	Outcome             ReviewOutcome `json:"outcome" validate:"required,oneof=mastered needs_practice"`
	Score               *float64      `json:"score,omitempty" validate:"omitempty,gte=0,lte=5"`
	ResponseTimeSeconds float64       `json:"response_time_seconds" validate:"gte=0"`
}
