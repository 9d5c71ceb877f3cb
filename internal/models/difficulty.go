package models

// Aggressiveness selects the step size of a difficulty change
type Aggressiveness string

// Aggressiveness constants
const (
	AggressivenessConservative Aggressiveness = "conservative"
	AggressivenessModerate     Aggressiveness = "moderate"
	AggressivenessAggressive   Aggressiveness = "aggressive"
)

// Valid reports whether a is a known aggressiveness
func (a Aggressiveness) Valid() bool {
	switch a {
	case AggressivenessConservative, AggressivenessModerate, AggressivenessAggressive:
		return true
	}
	return false
}

// PerformanceWindow is the recent history of one item, oldest first
type PerformanceWindow struct {
	Scores         []float64 `json:"recent_scores"`
	ResponseTimes  []float64 `json:"response_times"`
	RetentionRates []float64 `json:"retention_rates"`
}

// DifficultySettings tunes a recalibration run
type DifficultySettings struct {
	Aggressiveness    Aggressiveness `json:"aggressiveness" validate:"required,oneof=conservative moderate aggressive"`
	AdaptationSpeed   float64        `json:"adaptation_speed" validate:"gte=0,lte=1"`
	MinimumDataPoints int            `json:"minimum_data_points" validate:"gte=1"`
}

// DifficultyProfile is a recommendation for one item; it is never stored as-is
type DifficultyProfile struct {
	ItemID                int     `json:"item_id,omitempty"`
	CurrentDifficulty     float64 `json:"current_difficulty"`
	RecommendedDifficulty float64 `json:"recommended_difficulty"`
	AdjustmentReason      string  `json:"adjustment_reason"`
	ConfidenceLevel       float64 `json:"confidence_level"`
	LearningVelocity      float64 `json:"learning_velocity"`
}

// DifficultyChange records one item's written-back difficulty
type DifficultyChange struct {
	ItemID  int               `json:"item_id"`
	From    float64           `json:"from"`
	To      float64           `json:"to"`
	Profile DifficultyProfile `json:"profile"`
}

// ItemFailure records an item that could not be recalibrated
type ItemFailure struct {
	ItemID int    `json:"item_id"`
	Error  string `json:"error"`
}

// RecalibrationReport summarizes a batch recalibration
type RecalibrationReport struct {
	ItemSetID int                `json:"item_set_id,omitempty"`
	Evaluated int                `json:"evaluated"`
	Skipped   int                `json:"skipped"`
	Changes   []DifficultyChange `json:"changes"`
	Failures  []ItemFailure      `json:"failures,omitempty"`
}
