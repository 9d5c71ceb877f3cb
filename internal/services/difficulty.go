package services

import (
	"math"

	"studyprogress/internal/models"
)

// Heuristic thresholds of the recalibration ladder
const (
	insufficientDataConfidence = 0.1

	highScoreThreshold     = 4.5
	highRetentionThreshold = 0.85
	lowScoreThreshold      = 2.5
	lowRetentionThreshold  = 0.6
	velocityThreshold      = 0.5

	slowResponseSeconds = 45.0
	slowAccurateScore   = 3.5
	slowAdjustment      = -0.2

	fastResponseSeconds = 10.0
	fastAccurateScore   = 4.0
	fastAdjustment      = 0.3

	velocityWindow = 3
	velocityMinLen = 5
)

// Adjustment reasons
const (
	ReasonInsufficientData = "insufficient data"
	ReasonHighPerformance  = "high performance"
	ReasonLowPerformance   = "low performance"
	ReasonSlowButAccurate  = "slow but accurate"
	ReasonFastAndAccurate  = "fast and accurate"
	ReasonNoChange         = "no change"
)

// DifficultyPolicy turns an item's performance window into a recommendation.
// Implementations must be pure.
type DifficultyPolicy interface {
	Recommend(window models.PerformanceWindow, current float64, settings models.DifficultySettings) models.DifficultyProfile
}

// HeuristicPolicy is the first-match threshold ladder
type HeuristicPolicy struct{}

// Recommend implements DifficultyPolicy
func (HeuristicPolicy) Recommend(window models.PerformanceWindow, current float64, settings models.DifficultySettings) models.DifficultyProfile {
	return CalculateOptimalDifficulty(window, current, settings)
}

// stepFor is the size of a performance-driven change
func stepFor(a models.Aggressiveness) float64 {
	switch a {
	case models.AggressivenessAggressive:
		return 0.8
	case models.AggressivenessModerate:
		return 0.5
	case models.AggressivenessConservative:
		return 0.3
	}
	return 0
}

// CalculateOptimalDifficulty recommends a difficulty for one item from its recent history.
// Inputs are expected to be validated; out-of-range values are clamped rather than rejected.
func CalculateOptimalDifficulty(window models.PerformanceWindow, current float64, settings models.DifficultySettings) models.DifficultyProfile {
	current = models.ClampDifficulty(current)
	speed := math.Max(0, math.Min(1, settings.AdaptationSpeed))
	minPoints := settings.MinimumDataPoints
	if minPoints < 1 {
		minPoints = 1
	}

	dataPoints := len(window.Scores)
	if dataPoints < minPoints {
		return models.DifficultyProfile{
			CurrentDifficulty:     current,
			RecommendedDifficulty: current,
			AdjustmentReason:      ReasonInsufficientData,
			ConfidenceLevel:       insufficientDataConfidence,
		}
	}

	avgScore := mean(window.Scores)
	variability := stddev(window.Scores, avgScore)
	avgResponse, hasResponse := meanOK(window.ResponseTimes)
	avgRetention, hasRetention := meanOK(window.RetentionRates)

	var velocity float64
	if dataPoints >= velocityMinLen {
		first := mean(window.Scores[:velocityWindow])
		last := mean(window.Scores[dataPoints-velocityWindow:])
		velocity = (last - first) / math.Max(1, variability)
	}

	// Missing response times or retention rates never satisfy a threshold.
	proposed := current
	reason := ReasonNoChange
	step := stepFor(settings.Aggressiveness)
	switch {
	case avgScore >= highScoreThreshold && hasRetention && avgRetention >= highRetentionThreshold && velocity > velocityThreshold:
		proposed = math.Min(models.MaxDifficulty, current+step)
		reason = ReasonHighPerformance
	case avgScore <= lowScoreThreshold || (hasRetention && avgRetention <= lowRetentionThreshold) || velocity < -velocityThreshold:
		proposed = math.Max(models.MinDifficulty, current-step)
		reason = ReasonLowPerformance
	case hasResponse && avgResponse > slowResponseSeconds && avgScore >= slowAccurateScore:
		proposed = current + slowAdjustment
		reason = ReasonSlowButAccurate
	case hasResponse && avgResponse < fastResponseSeconds && avgScore >= fastAccurateScore:
		proposed = current + fastAdjustment
		reason = ReasonFastAndAccurate
	}

	recommended := current + (proposed-current)*speed
	recommended = models.ClampDifficulty(math.Round(recommended*10) / 10)

	confidence := math.Min(1, float64(dataPoints)/10) * math.Max(0.1, 1-variability/5)

	return models.DifficultyProfile{
		CurrentDifficulty:     current,
		RecommendedDifficulty: recommended,
		AdjustmentReason:      reason,
		ConfidenceLevel:       confidence,
		LearningVelocity:      velocity,
	}
}

func mean(xs []float64) float64 {
	m, _ := meanOK(xs)
	return m
}

func meanOK(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs)), true
}

// stddev is the population standard deviation
func stddev(xs []float64, m float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sq float64
	for _, x := range xs {
		sq += (x - m) * (x - m)
	}
	return math.Sqrt(sq / float64(len(xs)))
}

// windowFromReviews builds a performance window from reviews ordered oldest first.
// Retention is 1 for a correct review and 0 otherwise.
func windowFromReviews(reviews []models.ReviewEvent) models.PerformanceWindow {
	w := models.PerformanceWindow{
		Scores:         make([]float64, 0, len(reviews)),
		ResponseTimes:  make([]float64, 0, len(reviews)),
		RetentionRates: make([]float64, 0, len(reviews)),
	}
	for _, r := range reviews {
		w.Scores = append(w.Scores, r.Score)
		w.ResponseTimes = append(w.ResponseTimes, r.ResponseTimeSeconds)
		retained := 0.0
		if r.Outcome.IsCorrect() {
			retained = 1
		}
		w.RetentionRates = append(w.RetentionRates, retained)
	}
	return w
}
