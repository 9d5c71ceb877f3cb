package serviceinterfaces

import (
	"context"

	"studyprogress/internal/models"
)

// DifficultyService defines the interface for difficulty recalibration
type DifficultyService interface {
	// CalculateOptimalDifficulty validates its inputs and evaluates the policy
	CalculateOptimalDifficulty(window models.PerformanceWindow, current float64, settings models.DifficultySettings) (*models.DifficultyProfile, error)

	// AdjustItemSetDifficulty recalibrates every item of a set
	AdjustItemSetDifficulty(ctx context.Context, itemSetID int) (*models.RecalibrationReport, error)

	// AdjustItemsDifficulty recalibrates the given items
	AdjustItemsDifficulty(ctx context.Context, itemIDs []int) (*models.RecalibrationReport, error)
}
