package handlers

import (
	"net/http"
	"strconv"

	"studyprogress/internal/models"
	"studyprogress/internal/observability"
	"studyprogress/internal/services"

	"github.com/gin-gonic/gin"
)

// DifficultySettingsRequest overrides individual recalibration settings; unset fields keep the defaults
type DifficultySettingsRequest struct {
	Aggressiveness    *models.Aggressiveness `json:"aggressiveness"`
	AdaptationSpeed   *float64               `json:"adaptation_speed"`
	MinimumDataPoints *int                   `json:"minimum_data_points"`
}

// DifficultyProfileRequest is the body of POST /v1/difficulty/profile
type DifficultyProfileRequest struct {
	RecentScores      []float64                  `json:"recent_scores"`
	ResponseTimes     []float64                  `json:"response_times"`
	RetentionRates    []float64                  `json:"retention_rates"`
	CurrentDifficulty float64                    `json:"current_difficulty"`
	Settings          *DifficultySettingsRequest `json:"settings"`
}

// DifficultyHandler handles difficulty profile and recalibration requests
type DifficultyHandler struct {
	difficultyService services.DifficultyServiceInterface
	defaults          models.DifficultySettings
	logger            *observability.Logger
}

// NewDifficultyHandler creates a new DifficultyHandler
func NewDifficultyHandler(difficultyService services.DifficultyServiceInterface, defaults models.DifficultySettings, logger *observability.Logger) *DifficultyHandler {
	return &DifficultyHandler{
		difficultyService: difficultyService,
		defaults:          defaults,
		logger:            logger,
	}
}

// settingsFor merges request overrides into the configured defaults
func (h *DifficultyHandler) settingsFor(req *DifficultySettingsRequest) models.DifficultySettings {
	settings := h.defaults
	if req == nil {
		return settings
	}
	if req.Aggressiveness != nil {
		settings.Aggressiveness = *req.Aggressiveness
	}
	if req.AdaptationSpeed != nil {
		settings.AdaptationSpeed = *req.AdaptationSpeed
	}
	if req.MinimumDataPoints != nil {
		settings.MinimumDataPoints = *req.MinimumDataPoints
	}
	return settings
}

// CalculateProfile evaluates a difficulty recommendation for a caller-supplied window
func (h *DifficultyHandler) CalculateProfile(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "calculate_difficulty_profile")
	defer observability.FinishSpan(span, nil)

	var req DifficultyProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	window := models.PerformanceWindow{
		Scores:         req.RecentScores,
		ResponseTimes:  req.ResponseTimes,
		RetentionRates: req.RetentionRates,
	}
	profile, err := h.difficultyService.CalculateOptimalDifficulty(window, req.CurrentDifficulty, h.settingsFor(req.Settings))
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// RecalibrateItemSet recalibrates every item of the set named in the path
func (h *DifficultyHandler) RecalibrateItemSet(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "recalibrate_item_set")
	defer observability.FinishSpan(span, nil)

	setID, err := strconv.Atoi(c.Param("id"))
	if err != nil || setID <= 0 {
		HandleValidationError(c, "item set id", c.Param("id"), "must be a positive integer")
		return
	}
	span.SetAttributes(observability.AttributeItemSetID(setID))

	report, err := h.difficultyService.AdjustItemSetDifficulty(ctx, setID)
	if err != nil {
		h.logger.Error(ctx, "Item set recalibration failed", err, map[string]interface{}{
			"item_set_id": setID,
		})
		HandleAppError(c, err)
		return
	}

	h.logger.Info(ctx, "Item set recalibrated", map[string]interface{}{
		"item_set_id": setID,
		"evaluated":   report.Evaluated,
		"changed":     len(report.Changes),
		"failed":      len(report.Failures),
	})
	c.JSON(http.StatusOK, report)
}
