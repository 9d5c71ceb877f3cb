package services

import (
	"math"

	"studyprogress/internal/models"
)

// Quiz scoring constants
const (
	basePoints     = 100
	maxSpeedPoints = 50
)

// ScoreResponse awards points for one quiz answer. A correct answer earns the base
// points plus a bonus proportional to the unused part of the answer window.
func ScoreResponse(responseTimeSeconds float64, isCorrect bool, windowSeconds float64) (points, timeBonus int) {
	if !isCorrect || windowSeconds <= 0 {
		return 0, 0
	}
	if responseTimeSeconds < 0 {
		responseTimeSeconds = 0
	}
	points = basePoints + int(math.Floor(maxSpeedPoints*(windowSeconds-responseTimeSeconds)/windowSeconds))
	if points < 0 {
		points = 0
	}
	return points, points - basePoints
}

// GradeForPercentage maps a percentage of correct answers to a letter grade
func GradeForPercentage(pct float64) models.Grade {
	switch {
	case pct >= 90:
		return models.GradeA
	case pct >= 80:
		return models.GradeB
	case pct >= 70:
		return models.GradeC
	case pct >= 60:
		return models.GradeD
	default:
		return models.GradeF
	}
}

// GradeFor grades a finished quiz
func GradeFor(correct, total int) models.Grade {
	if total <= 0 {
		return models.GradeF
	}
	return GradeForPercentage(float64(correct*100) / float64(total))
}
