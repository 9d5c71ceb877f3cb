package models

import "time"

// GoalStatus is the stored lifecycle state of a goal
type GoalStatus string

// Goal status constants
const (
	GoalStatusActive    GoalStatus = "active"
	GoalStatusPaused    GoalStatus = "paused"
	GoalStatusArchived  GoalStatus = "archived"
	GoalStatusCompleted GoalStatus = "completed"
)

// Valid reports whether s is a known goal status
func (s GoalStatus) Valid() bool {
	switch s {
	case GoalStatusActive, GoalStatusPaused, GoalStatusArchived, GoalStatusCompleted:
		return true
	}
	return false
}

// Goal is a learner's dated study goal
type Goal struct {
	ID              int        `json:"id"`
	UserID          int        `json:"user_id"`
	Title           string     `json:"title"`
	StartDate       time.Time  `json:"start_date"`
	EndDate         time.Time  `json:"end_date"`
	GracePeriodDays int        `json:"grace_period_days"`
	Status          GoalStatus `json:"status"`
	Progress        float64    `json:"progress"`
	ArchiveReason   *string    `json:"archive_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// GoalFilter narrows ListGoals. An empty filter returns every goal of the user.
type GoalFilter struct {
	Statuses []GoalStatus
}

// GoalPatch holds the fields a bulk action may change; nil fields are left alone
type GoalPatch struct {
	EndDate       *time.Time
	Status        *GoalStatus
	ArchiveReason *string
}

// Classification is the deadline state reported for a goal
type Classification string

// Classification constants
const (
	ClassificationDueTomorrow        Classification = "due_tomorrow"
	ClassificationDueSoon            Classification = "due_soon"
	ClassificationOverdueInGrace     Classification = "overdue_in_grace"
	ClassificationOverdueCritical    Classification = "overdue_critical"
	ClassificationAutoArchiveWarning Classification = "auto_archive_warning"
	ClassificationMilestone50        Classification = "milestone_50"
	ClassificationMilestone75        Classification = "milestone_75"
)

// Priority orders notifications for display
type Priority string

// Priority constants
const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank sorts priorities with critical first
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

// GoalNotification is one classified notice for a goal
type GoalNotification struct {
	GoalID         int            `json:"goal_id"`
	Classification Classification `json:"classification"`
	Priority       Priority       `json:"priority"`
	Message        string         `json:"message"`
}

// BulkAction is a state transition applied to many goals at once
type BulkAction string

// Bulk action constants
const (
	BulkActionExtend  BulkAction = "extend"
	BulkActionPause   BulkAction = "pause"
	BulkActionArchive BulkAction = "archive"
	BulkActionDelete  BulkAction = "delete"
)

// Valid reports whether a is a known bulk action
func (a BulkAction) Valid() bool {
	switch a {
	case BulkActionExtend, BulkActionPause, BulkActionArchive, BulkActionDelete:
		return true
	}
	return false
}

// BulkActionParams carries action-specific arguments
type BulkActionParams struct {
	Days   int    `json:"days,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// BulkActionFailure records why one goal id was not updated
type BulkActionFailure struct {
	GoalID int    `json:"goal_id"`
	Error  string `json:"error"`
}

// BulkActionResult summarizes a best-effort bulk action
type BulkActionResult struct {
	Action       BulkAction          `json:"action"`
	SuccessCount int                 `json:"success_count"`
	Total        int                 `json:"total"`
	Failures     []BulkActionFailure `json:"failures,omitempty"`
}
