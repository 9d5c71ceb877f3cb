package services

import (
	"context"
	"sort"

	"studyprogress/internal/models"
	"studyprogress/internal/observability"
	"studyprogress/internal/serviceinterfaces"
	"studyprogress/internal/store"
	contextutils "studyprogress/internal/utils"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
)

// GoalServiceInterface defines the interface for the goal deadline monitor
type GoalServiceInterface = serviceinterfaces.GoalService

// GoalService classifies goal deadlines and applies bulk goal actions
type GoalService struct {
	store   store.ProgressStore
	policy  GoalPolicy
	clock   contextutils.Clock
	metrics *observability.EngineMetrics
	logger  *observability.Logger
}

var _ GoalServiceInterface = (*GoalService)(nil)

// NewGoalServiceWithLogger creates a GoalService
func NewGoalServiceWithLogger(progress store.ProgressStore, policy GoalPolicy, clock contextutils.Clock, metrics *observability.EngineMetrics, logger *observability.Logger) *GoalService {
	if clock == nil {
		clock = contextutils.SystemClock{}
	}
	if metrics == nil {
		metrics = &observability.EngineMetrics{}
	}
	return &GoalService{store: progress, policy: policy, clock: clock, metrics: metrics, logger: logger}
}

// GetNotifications returns the user's goal notifications, most urgent first
func (s *GoalService) GetNotifications(ctx context.Context, userID int) (result []models.GoalNotification, err error) {
	ctx, span := observability.TraceGoalFunction(ctx, "GetNotifications", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	goals, err := s.store.ListGoals(ctx, userID, models.GoalFilter{Statuses: []models.GoalStatus{models.GoalStatusActive}})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	result = []models.GoalNotification{}
	for _, g := range goals {
		result = append(result, ClassifyGoal(g, now, s.policy)...)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Priority.Rank() != result[j].Priority.Rank() {
			return result[i].Priority.Rank() < result[j].Priority.Rank()
		}
		return result[i].GoalID < result[j].GoalID
	})

	span.SetAttributes(attribute.Int("notifications.count", len(result)))
	return result, nil
}

// ApplyBulkAction applies action to each requested goal independently. Per-goal failures are
// reported in the result; only an invalid request is returned as an error. Repeated ids are
// applied once but still count toward Total.
func (s *GoalService) ApplyBulkAction(ctx context.Context, userID int, goalIDs []int, action models.BulkAction, params models.BulkActionParams) (result *models.BulkActionResult, err error) {
	ctx, span := observability.TraceGoalFunction(ctx, "ApplyBulkAction",
		observability.AttributeUserID(userID), observability.AttributeAction(string(action)),
		attribute.Int("goals.requested", len(goalIDs)))
	defer observability.FinishSpan(span, &err)

	if !action.Valid() {
		return nil, contextutils.InvalidInputf("unknown bulk action %q", action)
	}
	if action == models.BulkActionExtend && params.Days < 1 {
		return nil, contextutils.InvalidInputf("extend needs a positive number of days, got %d", params.Days)
	}

	result = &models.BulkActionResult{Action: action, Total: len(goalIDs)}
	failed := make(map[int]bool)
	for _, id := range lo.Uniq(goalIDs) {
		if err := s.applyOne(ctx, userID, id, action, params); err != nil {
			failed[id] = true
			result.Failures = append(result.Failures, models.BulkActionFailure{GoalID: id, Error: err.Error()})
			observability.Add(ctx, s.metrics.BulkActionFailed, 1)
		}
	}
	result.SuccessCount = len(lo.Reject(goalIDs, func(id int, _ int) bool { return failed[id] }))

	s.logger.Info(ctx, "Applied bulk goal action", map[string]interface{}{
		"user_id":       userID,
		"action":        string(action),
		"success_count": result.SuccessCount,
		"total":         result.Total,
	})
	return result, nil
}

func (s *GoalService) applyOne(ctx context.Context, userID, goalID int, action models.BulkAction, params models.BulkActionParams) error {
	goal, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return err
	}
	if goal.UserID != userID {
		return contextutils.WrapError(contextutils.ErrRecordNotFound, "goal not found")
	}

	switch action {
	case models.BulkActionExtend:
		end := goal.EndDate.AddDate(0, 0, params.Days)
		_, err = s.store.UpdateGoal(ctx, goalID, models.GoalPatch{EndDate: &end})
	case models.BulkActionPause:
		status := models.GoalStatusPaused
		_, err = s.store.UpdateGoal(ctx, goalID, models.GoalPatch{Status: &status})
	case models.BulkActionArchive:
		status := models.GoalStatusArchived
		patch := models.GoalPatch{Status: &status}
		if params.Reason != "" {
			reason := params.Reason
			patch.ArchiveReason = &reason
		}
		_, err = s.store.UpdateGoal(ctx, goalID, patch)
	case models.BulkActionDelete:
		err = s.store.DeleteGoal(ctx, goalID)
	default:
		err = contextutils.InvalidInputf("unknown bulk action %q", action)
	}
	if err != nil {
		s.logger.Warn(ctx, "Bulk goal action failed for goal", map[string]interface{}{
			"goal_id": goalID,
			"action":  string(action),
			"error":   err.Error(),
		})
	}
	return err
}
