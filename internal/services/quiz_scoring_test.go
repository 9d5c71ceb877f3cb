package services

import (
	"testing"

	"studyprogress/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestScoreResponse(t *testing.T) {
	tests := []struct {
		name          string
		responseTime  float64
		correct       bool
		expectedPts   int
		expectedBonus int
	}{
		{"instant correct", 0, true, 150, 50},
		{"half window", 15, true, 125, 25},
		{"just inside window", 29.9, true, 100, 0},
		{"at window", 30, true, 100, 0},
		{"six seconds", 6, true, 140, 40},
		{"incorrect fast", 0, false, 0, 0},
		{"incorrect slow", 30, false, 0, 0},
		{"negative time treated as instant", -2, true, 150, 50},
		{"late answer loses points", 40, true, 83, -17},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pts, bonus := ScoreResponse(tt.responseTime, tt.correct, 30)
			assert.Equal(t, tt.expectedPts, pts)
			assert.Equal(t, tt.expectedBonus, bonus)
		})
	}
}

func TestScoreResponse_NeverNegative(t *testing.T) {
	pts, _ := ScoreResponse(1000, true, 30)
	assert.Equal(t, 0, pts)

	pts, bonus := ScoreResponse(1, true, 0)
	assert.Zero(t, pts)
	assert.Zero(t, bonus)
}

func TestGradeForPercentage(t *testing.T) {
	tests := []struct {
		pct      float64
		expected models.Grade
	}{
		{100, models.GradeA},
		{90, models.GradeA},
		{89.9, models.GradeB},
		{80, models.GradeB},
		{79.9, models.GradeC},
		{70, models.GradeC},
		{60, models.GradeD},
		{59.9, models.GradeF},
		{0, models.GradeF},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, GradeForPercentage(tt.pct), "pct=%v", tt.pct)
	}
}

func TestGradeFor(t *testing.T) {
	assert.Equal(t, models.GradeA, GradeFor(9, 10))
	assert.Equal(t, models.GradeB, GradeFor(8, 9))
	assert.Equal(t, models.GradeD, GradeFor(2, 3))
	assert.Equal(t, models.GradeF, GradeFor(1, 3))
	assert.Equal(t, models.GradeF, GradeFor(0, 0))
}
