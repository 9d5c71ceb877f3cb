package services

import (
	"context"
	"testing"
	"time"

	"studyprogress/internal/models"
	contextutils "studyprogress/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGoalFixture(t *testing.T) (*GoalService, *memStore) {
	t.Helper()
	st := newMemStore()
	return NewGoalServiceWithLogger(st, testPolicy, newFakeClock(), nil, testLogger()), st
}

func addGoal(t *testing.T, st *memStore, g models.Goal) int {
	t.Helper()
	if g.UserID == 0 {
		g.UserID = 1
	}
	require.NoError(t, st.CreateGoal(context.Background(), &g))
	return g.ID
}

func TestGetNotifications_SortedByPriority(t *testing.T) {
	svc, st := newGoalFixture(t)
	addGoal(t, st, models.Goal{Title: "halfway", EndDate: day(time.April, 30), Progress: 55})
	addGoal(t, st, models.Goal{Title: "late", EndDate: day(time.March, 1), GracePeriodDays: 2})
	addGoal(t, st, models.Goal{Title: "tomorrow", EndDate: day(time.March, 11)})
	addGoal(t, st, models.Goal{Title: "paused", EndDate: day(time.March, 1), Status: models.GoalStatusPaused})
	addGoal(t, st, models.Goal{UserID: 2, Title: "someone else", EndDate: day(time.March, 11)})
	addGoal(t, st, models.Goal{Title: "soon", EndDate: day(time.March, 12)})

	got, err := svc.GetNotifications(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, got, 4)
	assert.Equal(t, models.ClassificationOverdueCritical, got[0].Classification)
	assert.Equal(t, 2, got[0].GoalID)
	assert.Equal(t, models.ClassificationDueTomorrow, got[1].Classification)
	assert.Equal(t, 3, got[1].GoalID)
	assert.Equal(t, models.ClassificationDueSoon, got[2].Classification)
	assert.Equal(t, 6, got[2].GoalID)
	assert.Equal(t, models.ClassificationMilestone50, got[3].Classification)
	assert.Equal(t, 1, got[3].GoalID)
}

func TestGetNotifications_EmptyIsNotNil(t *testing.T) {
	svc, _ := newGoalFixture(t)
	got, err := svc.GetNotifications(context.Background(), 1)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestApplyBulkAction_ExtendWithMissingGoal(t *testing.T) {
	svc, st := newGoalFixture(t)
	var ids []int
	for i := 0; i < 4; i++ {
		ids = append(ids, addGoal(t, st, models.Goal{Title: "g", EndDate: day(time.March, 5)}))
	}
	ids = append(ids, 404)

	result, err := svc.ApplyBulkAction(context.Background(), 1, ids, models.BulkActionExtend, models.BulkActionParams{Days: 7})
	require.NoError(t, err)
	assert.Equal(t, 4, result.SuccessCount)
	assert.Equal(t, 5, result.Total)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 404, result.Failures[0].GoalID)

	for _, id := range ids[:4] {
		g, err := st.GetGoal(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, day(time.March, 12), g.EndDate)
	}
}

func TestApplyBulkAction_OtherUsersGoalsUntouched(t *testing.T) {
	svc, st := newGoalFixture(t)
	mine := addGoal(t, st, models.Goal{Title: "mine"})
	theirs := addGoal(t, st, models.Goal{UserID: 2, Title: "theirs"})

	result, err := svc.ApplyBulkAction(context.Background(), 1, []int{mine, theirs}, models.BulkActionPause, models.BulkActionParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, theirs, result.Failures[0].GoalID)

	g, _ := st.GetGoal(context.Background(), mine)
	assert.Equal(t, models.GoalStatusPaused, g.Status)
	g, _ = st.GetGoal(context.Background(), theirs)
	assert.Equal(t, models.GoalStatusActive, g.Status)
}

func TestApplyBulkAction_RepeatedIDsAppliedOnce(t *testing.T) {
	svc, st := newGoalFixture(t)
	a := addGoal(t, st, models.Goal{EndDate: day(time.March, 5)})
	b := addGoal(t, st, models.Goal{EndDate: day(time.March, 5)})

	result, err := svc.ApplyBulkAction(context.Background(), 1, []int{a, a, b}, models.BulkActionExtend, models.BulkActionParams{Days: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, result.SuccessCount)
	assert.Equal(t, 3, result.Total)

	g, _ := st.GetGoal(context.Background(), a)
	assert.Equal(t, day(time.March, 6), g.EndDate)
}

func TestApplyBulkAction_ArchiveAndDelete(t *testing.T) {
	svc, st := newGoalFixture(t)
	ctx := context.Background()
	a := addGoal(t, st, models.Goal{})
	b := addGoal(t, st, models.Goal{})

	result, err := svc.ApplyBulkAction(ctx, 1, []int{a}, models.BulkActionArchive, models.BulkActionParams{Reason: "overdue"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
	g, _ := st.GetGoal(ctx, a)
	assert.Equal(t, models.GoalStatusArchived, g.Status)
	require.NotNil(t, g.ArchiveReason)
	assert.Equal(t, "overdue", *g.ArchiveReason)

	result, err = svc.ApplyBulkAction(ctx, 1, []int{b, b}, models.BulkActionDelete, models.BulkActionParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	_, err = st.GetGoal(ctx, b)
	assert.ErrorIs(t, err, contextutils.ErrRecordNotFound)

	result, err = svc.ApplyBulkAction(ctx, 1, []int{b}, models.BulkActionDelete, models.BulkActionParams{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.SuccessCount)
	assert.Len(t, result.Failures, 1)
}

func TestApplyBulkAction_RejectsBadRequests(t *testing.T) {
	svc, st := newGoalFixture(t)
	id := addGoal(t, st, models.Goal{EndDate: day(time.March, 5)})

	_, err := svc.ApplyBulkAction(context.Background(), 1, []int{id}, "snooze", models.BulkActionParams{})
	assert.Equal(t, contextutils.ErrorCodeInvalidInput, contextutils.GetErrorCode(err))

	_, err = svc.ApplyBulkAction(context.Background(), 1, []int{id}, models.BulkActionExtend, models.BulkActionParams{Days: 0})
	assert.Equal(t, contextutils.ErrorCodeInvalidInput, contextutils.GetErrorCode(err))

	g, _ := st.GetGoal(context.Background(), id)
	assert.Equal(t, day(time.March, 5), g.EndDate)
}

func TestApplyBulkAction_EmptyList(t *testing.T) {
	svc, _ := newGoalFixture(t)
	result, err := svc.ApplyBulkAction(context.Background(), 1, nil, models.BulkActionPause, models.BulkActionParams{})
	require.NoError(t, err)
	assert.Zero(t, result.Total)
	assert.Zero(t, result.SuccessCount)
}
