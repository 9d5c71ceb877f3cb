package services

import (
	"fmt"
	"time"

	"studyprogress/internal/config"
	"studyprogress/internal/models"
	contextutils "studyprogress/internal/utils"
)

// GoalPolicy holds the day thresholds used to classify goals
type GoalPolicy struct {
	DueSoonDays     int
	AutoArchiveDays int
	Location        *time.Location
}

// GoalPolicyFromConfig builds a policy from configuration
func GoalPolicyFromConfig(cfg config.GoalsConfig) GoalPolicy {
	return GoalPolicy{
		DueSoonDays:     cfg.DueSoonDays,
		AutoArchiveDays: cfg.AutoArchiveDays,
		Location:        cfg.Location(),
	}
}

// ClassifyGoal derives the deadline notifications of one goal from its end date,
// grace period and the current time. Only active goals are classified.
func ClassifyGoal(goal models.Goal, now time.Time, policy GoalPolicy) []models.GoalNotification {
	if goal.Status != models.GoalStatusActive {
		return nil
	}

	var out []models.GoalNotification
	add := func(c models.Classification, p models.Priority, msg string) {
		out = append(out, models.GoalNotification{GoalID: goal.ID, Classification: c, Priority: p, Message: msg})
	}

	daysUntilDue := contextutils.DaysUntil(now, goal.EndDate, policy.Location)
	switch {
	case daysUntilDue == 1:
		add(models.ClassificationDueTomorrow, models.PriorityHigh,
			fmt.Sprintf("%q is due tomorrow", goal.Title))
	case daysUntilDue > 1 && daysUntilDue <= policy.DueSoonDays:
		add(models.ClassificationDueSoon, models.PriorityMedium,
			fmt.Sprintf("%q is due in %d days", goal.Title, daysUntilDue))
	case daysUntilDue <= 0:
		daysOverdue := -daysUntilDue
		switch {
		case daysOverdue == 0:
			add(models.ClassificationOverdueInGrace, models.PriorityMedium,
				fmt.Sprintf("%q is due today", goal.Title))
		case daysOverdue <= goal.GracePeriodDays:
			add(models.ClassificationOverdueInGrace, models.PriorityMedium,
				fmt.Sprintf("%q is %d days overdue, %d grace days left", goal.Title, daysOverdue, goal.GracePeriodDays-daysOverdue))
		default:
			add(models.ClassificationOverdueCritical, models.PriorityCritical,
				fmt.Sprintf("%q is %d days overdue, past its %d day grace period", goal.Title, daysOverdue, goal.GracePeriodDays))
		}
		if daysOverdue > policy.AutoArchiveDays {
			add(models.ClassificationAutoArchiveWarning, models.PriorityHigh,
				fmt.Sprintf("%q has been overdue for %d days and is a candidate for archiving", goal.Title, daysOverdue))
		}
	}

	switch {
	case goal.Progress >= 50 && goal.Progress < 75:
		add(models.ClassificationMilestone50, models.PriorityLow,
			fmt.Sprintf("%q is halfway done", goal.Title))
	case goal.Progress >= 75 && goal.Progress < 100:
		add(models.ClassificationMilestone75, models.PriorityLow,
			fmt.Sprintf("%q is 75%% done", goal.Title))
	}
	return out
}
