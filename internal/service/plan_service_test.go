package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"peakform/coach-app/internal/domain"
	"peakform/coach-app/internal/planner"
	"peakform/coach-app/internal/policy"
	"peakform/coach-app/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type planFixture struct {
	users     *fakeUserRepo
	plans     *fakePlanRepo
	sessions  *fakeSessionRepo
	contexts  *fakeContextRepo
	generator *fakeGenerator
	service   PlanService
	userID    primitive.ObjectID
}

func newPlanFixture(t *testing.T) *planFixture {
	t.Helper()
	f := &planFixture{
		users:     newFakeUserRepo(),
		plans:     newFakePlanRepo(),
		sessions:  newFakeSessionRepo(),
		contexts:  newFakeContextRepo(),
		generator: &fakeGenerator{result: validWeek()},
	}
	id, err := f.users.Create(context.Background(), &domain.User{
		Name: "Kai", WeightKg: 80, SleepTarget: 8, Onboarded: true,
	})
	require.NoError(t, err)
	f.userID = id
	f.service = NewPlanService(f.plans, f.sessions, f.users, f.contexts,
		f.generator, policy.DefaultTable(), storage.NoopArchiver{})
	return f
}

// validWeek is a generated set that satisfies every policy rule.
func validWeek() *planner.Result {
	return &planner.Result{
		IntroMessage: "Here is your week.",
		Sessions: []planner.GeneratedSession{
			{Domain: domain.DomainCardio, DayOfWeek: 0, Title: "Zone 2 ride",
				Detail: domain.SessionDetail{"zone": 2, "durationMinutes": 60}},
			{Domain: domain.DomainCardio, DayOfWeek: 3, Title: "Zone 2 run",
				Detail: domain.SessionDetail{"zone": 2, "durationMinutes": 60}},
			{Domain: domain.DomainStrength, DayOfWeek: 1, Title: "Full body A",
				Detail: domain.SessionDetail{"type": "fullbody", "durationMinutes": 45,
					"warmup": "5 min easy spin", "cooldown": "stretch"}},
			{Domain: domain.DomainMindfulness, DayOfWeek: 2, Title: "Morning meditation",
				Detail: domain.SessionDetail{"type": "meditation", "durationMinutes": 10}},
		},
	}
}

func testWeekStart() time.Time {
	return domain.WeekStartOf(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))
}

func TestGenerateActivatesImmediately(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()

	result, err := f.service.Generate(ctx, f.userID, testWeekStart(), GenerateOptions{})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, domain.PlanActive, result.Status)
	assert.Empty(t, result.Issues)
	assert.Equal(t, "Here is your week.", result.Intro)

	planID, err := primitive.ObjectIDFromHex(result.PlanID)
	require.NoError(t, err)
	sessions, err := f.sessions.GetByPlanID(ctx, planID)
	require.NoError(t, err)
	assert.Len(t, sessions, 4)
	for _, s := range sessions {
		assert.Equal(t, domain.SessionPlanned, s.Status)
		assert.Equal(t, f.userID, s.UserID)
	}

	plan, err := f.plans.GetByID(ctx, planID)
	require.NoError(t, err)
	briefs := plan.TrackingBriefs[domain.DomainNutrition]
	require.Len(t, briefs, 2)
	assert.Equal(t, float64(2400), briefs[0].Target) // 80 kg * 30
	assert.Equal(t, float64(144), briefs[1].Target)  // 80 kg * 1.8
}

func TestGenerateDraftWaitsForConfirmation(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()

	result, err := f.service.Generate(ctx, f.userID, testWeekStart(), GenerateOptions{Draft: true})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, domain.PlanDraft, result.Status)
	assert.Zero(t, f.plans.activeCount(f.userID, testWeekStart()))
}

func TestGenerateUpstreamFailureWritesNothing(t *testing.T) {
	f := newPlanFixture(t)
	f.generator.err = errors.New("model unavailable")

	result, err := f.service.Generate(context.Background(), f.userID, testWeekStart(), GenerateOptions{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "model unavailable")
	assert.Empty(t, f.plans.plans)
	assert.Empty(t, f.sessions.sessions)
}

func TestGenerateCompensatesFailedSessionInsert(t *testing.T) {
	f := newPlanFixture(t)
	f.sessions.createErr = errors.New("write conflict")
	// Ordered inserts commit a prefix before the batch errors.
	f.sessions.createPartial = 1

	result, err := f.service.Generate(context.Background(), f.userID, testWeekStart(), GenerateOptions{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Empty(t, f.plans.plans, "failed generation must not leave a plan row behind")
	assert.Empty(t, f.sessions.sessions, "failed generation must not leave session rows behind")
}

func TestGenerateSurfacesConstraintIssuesWithoutBlocking(t *testing.T) {
	f := newPlanFixture(t)
	f.generator.result = &planner.Result{Sessions: []planner.GeneratedSession{
		{Domain: domain.DomainCardio, DayOfWeek: 0, Title: "Short ride",
			Detail: domain.SessionDetail{"zone": 2, "durationMinutes": 30}},
	}}

	result, err := f.service.Generate(context.Background(), f.userID, testWeekStart(), GenerateOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success, "issues are advisory, the plan is still persisted")
	require.Len(t, result.Issues, 1)
	assert.Contains(t, result.Issues[0], "45")
}

func TestGenerateFiltersExpiredContextItems(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()
	past := time.Now().UTC().Add(-24 * time.Hour)
	future := time.Now().UTC().Add(24 * time.Hour)

	_, err := f.contexts.Create(ctx, &domain.UserContextItem{
		UserID: f.userID, Category: domain.ContextPhysical, Scope: domain.ScopeTemporary,
		Text: "healed ankle sprain", ExpiresAt: &past,
	})
	require.NoError(t, err)
	_, err = f.contexts.Create(ctx, &domain.UserContextItem{
		UserID: f.userID, Category: domain.ContextSchedule, Scope: domain.ScopeTemporary,
		Text: "travelling this week", ExpiresAt: &future,
	})
	require.NoError(t, err)

	_, err = f.service.Generate(ctx, f.userID, testWeekStart(), GenerateOptions{})
	require.NoError(t, err)

	require.Len(t, f.generator.lastReq.ContextItems, 1)
	assert.Equal(t, "travelling this week", f.generator.lastReq.ContextItems[0].Text)
}

func TestConfirmSupersedesPriorActivePlan(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()
	week := testWeekStart()

	first, err := f.service.Generate(ctx, f.userID, week, GenerateOptions{})
	require.NoError(t, err)
	firstID, _ := primitive.ObjectIDFromHex(first.PlanID)

	second, err := f.service.Generate(ctx, f.userID, week, GenerateOptions{Draft: true})
	require.NoError(t, err)
	secondID, _ := primitive.ObjectIDFromHex(second.PlanID)

	confirmed, err := f.service.Confirm(ctx, f.userID, secondID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanActive, confirmed.Status)

	assert.Equal(t, 1, f.plans.activeCount(f.userID, week), "at most one active plan per week")
	old, err := f.plans.GetByID(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanSuperseded, old.Status)
}

func TestHistoryExportsSupersededSnapshots(t *testing.T) {
	f := newPlanFixture(t)
	archiver := newFakeArchiver()
	f.service = NewPlanService(f.plans, f.sessions, f.users, f.contexts,
		f.generator, policy.DefaultTable(), archiver)
	ctx := context.Background()
	week := testWeekStart()

	first, err := f.service.Generate(ctx, f.userID, week, GenerateOptions{})
	require.NoError(t, err)
	second, err := f.service.Generate(ctx, f.userID, week, GenerateOptions{})
	require.NoError(t, err)
	require.True(t, second.Success)

	entries, err := f.service.History(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, first.PlanID, entries[0].PlanID)
	assert.True(t, entries[0].WeekStart.Equal(week))
	assert.Equal(t, "https://archive.example/plan-archives/"+first.PlanID+".json?sig=test", entries[0].DownloadURL)
	assert.Len(t, archiver.archived, 1, "the superseded plan was snapshotted once")
}

func TestHistoryWithoutArchiveBucketListsPlansWithoutURLs(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()
	week := testWeekStart()

	first, err := f.service.Generate(ctx, f.userID, week, GenerateOptions{})
	require.NoError(t, err)
	_, err = f.service.Generate(ctx, f.userID, week, GenerateOptions{})
	require.NoError(t, err)

	entries, err := f.service.History(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, first.PlanID, entries[0].PlanID)
	assert.Empty(t, entries[0].DownloadURL)
}

func TestConfirmRejectsNonDraftAndForeignPlans(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()

	result, err := f.service.Generate(ctx, f.userID, testWeekStart(), GenerateOptions{})
	require.NoError(t, err)
	planID, _ := primitive.ObjectIDFromHex(result.PlanID)

	_, err = f.service.Confirm(ctx, f.userID, planID)
	assert.ErrorIs(t, err, ErrPlanNotDraft)

	_, err = f.service.Confirm(ctx, primitive.NewObjectID(), planID)
	assert.ErrorIs(t, err, ErrPlanNotFound)

	_, err = f.service.Confirm(ctx, f.userID, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestMidWeekReplanPreservesCompletedWork(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()
	week := testWeekStart()

	first, err := f.service.Generate(ctx, f.userID, week, GenerateOptions{})
	require.NoError(t, err)
	firstID, _ := primitive.ObjectIDFromHex(first.PlanID)

	// Complete the day-0 ride before the replan cutoff.
	sessions, err := f.sessions.GetByPlanID(ctx, firstID)
	require.NoError(t, err)
	var completedID primitive.ObjectID
	for _, s := range sessions {
		if s.DayOfWeek == 0 {
			completedID = s.ID
		}
	}
	require.False(t, completedID.IsZero())
	_, err = f.service.Complete(ctx, f.userID, completedID, nil)
	require.NoError(t, err)

	// Replan from Wednesday.
	cutoff := week.AddDate(0, 0, 2)
	f.generator.result = &planner.Result{
		IntroMessage: "Adjusted for the rest of the week.",
		Sessions: []planner.GeneratedSession{
			{Domain: domain.DomainCardio, DayOfWeek: 4, Title: "Zone 2 ride B",
				Detail: domain.SessionDetail{"zone": 2, "durationMinutes": 60}},
		},
	}
	second, err := f.service.Generate(ctx, f.userID, week, GenerateOptions{StartFromDate: &cutoff})
	require.NoError(t, err)
	require.True(t, second.Success)
	secondID, _ := primitive.ObjectIDFromHex(second.PlanID)

	assert.Equal(t, 2, f.generator.lastReq.StartDay, "only the remaining days are regenerated")

	// The completed session moved to the new plan, unchanged and not duplicated.
	newSessions, err := f.sessions.GetByPlanID(ctx, secondID)
	require.NoError(t, err)
	require.Len(t, newSessions, 2)
	var kept *domain.Session
	for i := range newSessions {
		if newSessions[i].ID == completedID {
			kept = &newSessions[i]
		}
	}
	require.NotNil(t, kept, "completed pre-cutoff session must follow the replan")
	assert.Equal(t, domain.SessionCompleted, kept.Status)
	assert.Equal(t, "Zone 2 ride", kept.Title)

	// Uncompleted pre-cutoff sessions stay behind on the superseded plan.
	oldPlan, err := f.plans.GetByID(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanSuperseded, oldPlan.Status)
	assert.Equal(t, 1, f.plans.activeCount(f.userID, week))
}

func TestGenerateRejectsStartDateOutsideWeek(t *testing.T) {
	f := newPlanFixture(t)
	elsewhere := testWeekStart().AddDate(0, 0, 14)

	_, err := f.service.Generate(context.Background(), f.userID, testWeekStart(), GenerateOptions{StartFromDate: &elsewhere})
	assert.ErrorIs(t, err, ErrStartDateOutsideWeek)
}

func TestGenerateAcceptsStartDateInOtherLocation(t *testing.T) {
	f := newPlanFixture(t)
	// Wednesday of the plan week, expressed in a non-UTC zone.
	loc := time.FixedZone("UTC+5", 5*60*60)
	wednesday := testWeekStart().AddDate(0, 0, 2).Add(9 * time.Hour).In(loc)

	result, err := f.service.Generate(context.Background(), f.userID, testWeekStart(), GenerateOptions{StartFromDate: &wednesday})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, f.generator.lastReq.StartDay)
}

func TestCompleteTransitionsAndReportsProgress(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()

	result, err := f.service.Generate(ctx, f.userID, testWeekStart(), GenerateOptions{})
	require.NoError(t, err)
	planID, _ := primitive.ObjectIDFromHex(result.PlanID)
	sessions, _ := f.sessions.GetByPlanID(ctx, planID)

	done, err := f.service.Complete(ctx, f.userID, sessions[0].ID,
		domain.SessionDetail{"actualMinutes": 58})
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, done.Session.Status)
	require.NotNil(t, done.Session.CompletedAt)
	assert.Equal(t, domain.SessionDetail{"actualMinutes": 58}, done.Session.Completed)
	assert.Equal(t, 1, done.Progress.Completed)
	assert.Equal(t, 4, done.Progress.Total)
	assert.InDelta(t, 0.25, done.Progress.Rate, 1e-9)
}

func TestCompleteIsIdempotent(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()

	result, _ := f.service.Generate(ctx, f.userID, testWeekStart(), GenerateOptions{})
	planID, _ := primitive.ObjectIDFromHex(result.PlanID)
	sessions, _ := f.sessions.GetByPlanID(ctx, planID)
	target := sessions[0].ID

	first, err := f.service.Complete(ctx, f.userID, target, nil)
	require.NoError(t, err)
	second, err := f.service.Complete(ctx, f.userID, target, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Progress.Completed, second.Progress.Completed)
}

func TestCompleteRejectsSkippedSession(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()

	result, _ := f.service.Generate(ctx, f.userID, testWeekStart(), GenerateOptions{})
	planID, _ := primitive.ObjectIDFromHex(result.PlanID)
	sessions, _ := f.sessions.GetByPlanID(ctx, planID)
	target := sessions[0].ID

	_, err := f.service.Adapt(ctx, f.userID, target, AdaptRequest{Action: AdaptSkip})
	require.NoError(t, err)
	_, err = f.service.Complete(ctx, f.userID, target, nil)
	assert.ErrorIs(t, err, ErrSessionFinal)
}

func TestCompleteEnforcesOwnership(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()

	result, _ := f.service.Generate(ctx, f.userID, testWeekStart(), GenerateOptions{})
	planID, _ := primitive.ObjectIDFromHex(result.PlanID)
	sessions, _ := f.sessions.GetByPlanID(ctx, planID)

	_, err := f.service.Complete(ctx, primitive.NewObjectID(), sessions[0].ID, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAdaptSkipRejectsCompletedSession(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()

	result, _ := f.service.Generate(ctx, f.userID, testWeekStart(), GenerateOptions{})
	planID, _ := primitive.ObjectIDFromHex(result.PlanID)
	sessions, _ := f.sessions.GetByPlanID(ctx, planID)
	target := sessions[0].ID

	_, err := f.service.Complete(ctx, f.userID, target, nil)
	require.NoError(t, err)
	_, err = f.service.Adapt(ctx, f.userID, target, AdaptRequest{Action: AdaptSkip})
	assert.ErrorIs(t, err, ErrSessionFinal)
}

func TestAdaptReschedule(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()

	result, _ := f.service.Generate(ctx, f.userID, testWeekStart(), GenerateOptions{})
	planID, _ := primitive.ObjectIDFromHex(result.PlanID)
	sessions, _ := f.sessions.GetByPlanID(ctx, planID)
	target := sessions[0].ID

	_, err := f.service.Adapt(ctx, f.userID, target, AdaptRequest{Action: AdaptReschedule})
	assert.ErrorIs(t, err, ErrRescheduleNeedsDate)

	newDate := testWeekStart().AddDate(0, 0, 5)
	moved, err := f.service.Adapt(ctx, f.userID, target, AdaptRequest{Action: AdaptReschedule, NewDate: &newDate})
	require.NoError(t, err)
	assert.Equal(t, 5, moved.DayOfWeek)
	assert.Equal(t, newDate, moved.Date)
	assert.Equal(t, domain.SessionPlanned, moved.Status, "rescheduling must not touch status")
}

func TestAdaptModifyMergesDetail(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()

	result, _ := f.service.Generate(ctx, f.userID, testWeekStart(), GenerateOptions{})
	planID, _ := primitive.ObjectIDFromHex(result.PlanID)
	sessions, _ := f.sessions.GetByPlanID(ctx, planID)
	var ride *domain.Session
	for i := range sessions {
		if sessions[i].Title == "Zone 2 ride" {
			ride = &sessions[i]
		}
	}
	require.NotNil(t, ride)

	title := "Zone 2 ride (indoor)"
	modified, err := f.service.Adapt(ctx, f.userID, ride.ID, AdaptRequest{
		Action: AdaptModify,
		Patch:  domain.SessionDetail{"durationMinutes": 50, "location": "trainer"},
		Title:  &title,
	})
	require.NoError(t, err)
	assert.Equal(t, "Zone 2 ride (indoor)", modified.Title)
	assert.Equal(t, 50, modified.Detail["durationMinutes"])
	assert.Equal(t, "trainer", modified.Detail["location"])
	assert.Equal(t, 2, modified.Detail["zone"], "untouched keys survive the merge")
}

func TestAdaptUnknownAction(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()

	result, _ := f.service.Generate(ctx, f.userID, testWeekStart(), GenerateOptions{})
	planID, _ := primitive.ObjectIDFromHex(result.PlanID)
	sessions, _ := f.sessions.GetByPlanID(ctx, planID)

	_, err := f.service.Adapt(ctx, f.userID, sessions[0].ID, AdaptRequest{Action: "duplicate"})
	assert.ErrorIs(t, err, ErrUnknownAdaptAction)
}

func TestLogExtraCountsTowardProgress(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()
	week := testWeekStart()

	_, err := f.service.LogExtra(ctx, f.userID, domain.Domain("parkour"), "Roof run", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidDomain)

	date := week.AddDate(0, 0, 1)
	sess, err := f.service.LogExtra(ctx, f.userID, domain.DomainCardio, "Pickup football", &date,
		domain.SessionDetail{"durationMinutes": 40})
	require.NoError(t, err)
	assert.True(t, sess.IsExtra)
	assert.Equal(t, domain.SessionCompleted, sess.Status)
	require.NotNil(t, sess.CompletedAt)

	progress, err := f.service.Progress(ctx, f.userID, week)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.Completed)
	assert.Equal(t, 1, progress.Total)
}

func TestProgressExcludesSkippedSessions(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()

	result, _ := f.service.Generate(ctx, f.userID, testWeekStart(), GenerateOptions{})
	planID, _ := primitive.ObjectIDFromHex(result.PlanID)
	sessions, _ := f.sessions.GetByPlanID(ctx, planID)

	_, err := f.service.Adapt(ctx, f.userID, sessions[0].ID, AdaptRequest{Action: AdaptSkip})
	require.NoError(t, err)

	progress, err := f.service.Progress(ctx, f.userID, testWeekStart())
	require.NoError(t, err)
	assert.Equal(t, 3, progress.Total, "skipped sessions leave the denominator")
	assert.Equal(t, 0, progress.Completed)
}

func TestActivePlanRequiresAnActivePlan(t *testing.T) {
	f := newPlanFixture(t)
	_, err := f.service.ActivePlan(context.Background(), f.userID, testWeekStart())
	assert.ErrorIs(t, err, ErrNoActivePlan)
}
