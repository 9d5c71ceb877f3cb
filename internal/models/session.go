package models

import "time"

// ActivityType names what the learner is doing during a study session
type ActivityType string

// Activity type constants
const (
	ActivityGeneral        ActivityType = "general"
	ActivityFlashcardStudy ActivityType = "flashcard_study"
	ActivityNoteReview     ActivityType = "note_review"
	ActivityQuizTaking     ActivityType = "quiz_taking"
)

// Valid reports whether a is a known activity type
func (a ActivityType) Valid() bool {
	switch a {
	case ActivityGeneral, ActivityFlashcardStudy, ActivityNoteReview, ActivityQuizTaking:
		return true
	}
	return false
}

func (a ActivityType) String() string { return string(a) }

// StudySession is a learner's timed study session
type StudySession struct {
	SessionID      string       `json:"session_id"`
	UserID         int          `json:"user_id"`
	StartTime      time.Time    `json:"start_time"`
	ElapsedSeconds int          `json:"elapsed_seconds"`
	ActivityType   ActivityType `json:"activity_type"`
	IsActive       bool         `json:"is_active"`
	IsPaused       bool         `json:"is_paused"`
	EndTime        *time.Time   `json:"end_time,omitempty"`
}

// Checkpoint is the crash-recovery snapshot of a live session.
// ReferenceTime is the instant elapsed counting is measured from; it moves forward on resume.
type Checkpoint struct {
	SessionID      string       `json:"session_id"`
	UserID         int          `json:"user_id"`
	StartTime      time.Time    `json:"start_time"`
	ReferenceTime  time.Time    `json:"reference_time"`
	ElapsedSeconds int          `json:"elapsed_seconds"`
	ActivityType   ActivityType `json:"activity_type"`
	IsPaused       bool         `json:"is_paused"`
	SavedAt        time.Time    `json:"saved_at"`
}
