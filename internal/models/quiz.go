package models

import "time"

// Grade is the letter grade of a finished quiz
type Grade string

// Grade constants
const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// QuizSession is the persisted summary of a timed quiz run
type QuizSession struct {
	SessionID           string     `json:"session_id"`
	UserID              int        `json:"user_id"`
	ItemSetID           int        `json:"item_set_id"`
	TotalItems          int        `json:"total_items"`
	CorrectAnswers      int        `json:"correct_answers"`
	TotalScore          int        `json:"total_score"`
	DurationSeconds     int        `json:"duration_seconds"`
	AverageResponseTime float64    `json:"average_response_time"`
	Grade               Grade      `json:"grade,omitempty"`
	StartedAt           time.Time  `json:"started_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

// QuizResponse is the single recorded answer for one item of a quiz
type QuizResponse struct {
	QuizSessionID       string        `json:"quiz_session_id"`
	ItemID              int           `json:"item_id"`
	UserAnswer          ReviewOutcome `json:"user_answer"`
	IsCorrect           bool          `json:"is_correct"`
	ResponseTimeSeconds float64       `json:"response_time_seconds"`
	PointsEarned        int           `json:"points_earned"`
	TimeBonus           int           `json:"time_bonus"`
	TimedOut            bool          `json:"timed_out"`
}

// QuizState is the in-memory view of a quiz for the learner
type QuizState struct {
	QuizSessionID    string         `json:"quiz_session_id"`
	ItemSetID        int            `json:"item_set_id"`
	CurrentIndex     int            `json:"current_index"`
	CurrentItemID    int            `json:"current_item_id,omitempty"`
	TotalItems       int            `json:"total_items"`
	CorrectAnswers   int            `json:"correct_answers"`
	TotalScore       int            `json:"total_score"`
	RemainingSeconds int            `json:"remaining_seconds"`
	Completed        bool           `json:"completed"`
	LastResponse     *QuizResponse  `json:"last_response,omitempty"`
	Result           *QuizSession   `json:"result,omitempty"`
	Responses        []QuizResponse `json:"responses,omitempty"`
}
