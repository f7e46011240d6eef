package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"peakform/coach-app/internal/domain"
	"peakform/coach-app/internal/planner"
	"peakform/coach-app/internal/policy"
	"peakform/coach-app/internal/repository"
	"peakform/coach-app/internal/storage"
	"peakform/coach-app/internal/validator"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrNoActivePlan         = errors.New("no active plan for this week")
	ErrPlanNotDraft         = errors.New("plan is not in draft state")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionFinal         = errors.New("session is already in a final state")
	ErrUnknownAdaptAction   = errors.New("unknown adapt action")
	ErrInvalidDomain        = errors.New("invalid domain")
	ErrRescheduleNeedsDate  = errors.New("reschedule requires a new date")
	ErrStartDateOutsideWeek = errors.New("startFromDate is not inside the requested week")
)

// GenerateOptions controls one plan-generation request.
type GenerateOptions struct {
	// Draft leaves the new plan pending user confirmation; otherwise it is
	// activated immediately (superseding any prior active plan for the week).
	Draft bool
	// PlanningContext is an optional free-text scheduling hint passed to the
	// generation collaborator.
	PlanningContext string
	// StartFromDate scopes a mid-week replan: sessions already completed
	// before this date are preserved and days before it are not regenerated.
	StartFromDate *time.Time
}

// GenerateResult is the structured outcome of a generation request.
// A failed upstream call yields Success=false and no persisted rows.
type GenerateResult struct {
	Success bool              `json:"success"`
	PlanID  string            `json:"planId,omitempty"`
	Status  domain.PlanStatus `json:"status,omitempty"`
	Intro   string            `json:"intro,omitempty"`
	Issues  []string          `json:"issues,omitempty"` // constraint violations, non-fatal
	Error   string            `json:"error,omitempty"`
}

// DomainProgress is the completed/total count for one domain in one week.
type DomainProgress struct {
	Domain    domain.Domain `json:"domain"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
	Rate      float64       `json:"rate"`
}

// WeeklyProgress summarizes a week: per-domain and overall completion.
type WeeklyProgress struct {
	WeekStart time.Time        `json:"weekStart"`
	Domains   []DomainProgress `json:"domains"`
	Completed int              `json:"completed"`
	Total     int              `json:"total"`
	Rate      float64          `json:"rate"`
}

// CompletionResult pairs the updated session with recomputed weekly progress.
type CompletionResult struct {
	Session  *domain.Session `json:"session"`
	Progress *WeeklyProgress `json:"progress"`
}

// PlanView is a plan together with its sessions, ready for presentation.
type PlanView struct {
	Plan     *domain.WeeklyPlan `json:"plan"`
	Sessions []domain.Session   `json:"sessions"`
}

// ArchiveEntry is one superseded plan in the history export. DownloadURL is
// empty when the plan was superseded without a snapshot (no bucket
// configured at the time).
type ArchiveEntry struct {
	PlanID      string    `json:"planId"`
	WeekStart   time.Time `json:"weekStart"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
}

// AdaptAction type for session adaptation operations.
type AdaptAction string

const (
	AdaptSkip       AdaptAction = "skip"
	AdaptReschedule AdaptAction = "reschedule"
	AdaptModify     AdaptAction = "modify"
)

// AdaptRequest carries the parameters of one Adapt call.
type AdaptRequest struct {
	Action  AdaptAction          `json:"action"`
	NewDate *time.Time           `json:"newDate,omitempty"` // reschedule
	Patch   domain.SessionDetail `json:"patch,omitempty"`   // modify: shallow merge into detail
	Title   *string              `json:"title,omitempty"`   // modify: optional title update
}

// PlanService owns the weekly plan lifecycle.
type PlanService interface {
	Generate(ctx context.Context, userID primitive.ObjectID, weekStart time.Time, opts GenerateOptions) (*GenerateResult, error)
	Confirm(ctx context.Context, userID, planID primitive.ObjectID) (*domain.WeeklyPlan, error)
	Complete(ctx context.Context, userID, sessionID primitive.ObjectID, completed domain.SessionDetail) (*CompletionResult, error)
	Adapt(ctx context.Context, userID, sessionID primitive.ObjectID, req AdaptRequest) (*domain.Session, error)
	LogExtra(ctx context.Context, userID primitive.ObjectID, d domain.Domain, title string, date *time.Time, detail domain.SessionDetail) (*domain.Session, error)
	ActivePlan(ctx context.Context, userID primitive.ObjectID, weekStart time.Time) (*PlanView, error)
	Progress(ctx context.Context, userID primitive.ObjectID, weekStart time.Time) (*WeeklyProgress, error)
	History(ctx context.Context, userID primitive.ObjectID) ([]ArchiveEntry, error)
}

// planService implements the PlanService interface.
type planService struct {
	planRepo    repository.WeeklyPlanRepository
	sessionRepo repository.SessionRepository
	userRepo    repository.UserRepository
	contextRepo repository.ContextItemRepository
	generator   planner.Generator
	table       *policy.Table
	archiver    storage.PlanArchiver
	logger      *slog.Logger
}

// NewPlanService creates a new instance of planService.
func NewPlanService(
	planRepo repository.WeeklyPlanRepository,
	sessionRepo repository.SessionRepository,
	userRepo repository.UserRepository,
	contextRepo repository.ContextItemRepository,
	generator planner.Generator,
	table *policy.Table,
	archiver storage.PlanArchiver,
) PlanService {
	return &planService{
		planRepo:    planRepo,
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
		contextRepo: contextRepo,
		generator:   generator,
		table:       table,
		archiver:    archiver,
		logger:      slog.Default().With("component", "plan_service"),
	}
}

// === Generation ===

// Generate requests a session set from the generation collaborator, validates
// it against policy, and persists a plan. Upstream failures return
// Success=false with nothing committed; constraint violations are returned as
// non-fatal issues alongside the persisted plan.
func (s *planService) Generate(ctx context.Context, userID primitive.ObjectID, weekStart time.Time, opts GenerateOptions) (*GenerateResult, error) {
	weekStart = domain.WeekStartOf(weekStart)

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	startDay := 0
	var replanFrom *time.Time
	if opts.StartFromDate != nil {
		if !domain.WeekStartOf(*opts.StartFromDate).Equal(weekStart) {
			return nil, ErrStartDateOutsideWeek
		}
		if d := domain.DayOfWeekOf(*opts.StartFromDate); d > 0 {
			startDay = d
			t := opts.StartFromDate.UTC()
			replanFrom = &t
		}
	}

	items, err := s.contextRepo.GetByUserID(ctx, userID)
	if err != nil {
		return &GenerateResult{Success: false, Error: err.Error()}, nil
	}
	now := time.Now().UTC()
	active := items[:0]
	for _, item := range items {
		if !item.Expired(now) {
			active = append(active, item)
		}
	}

	generated, err := s.generator.GeneratePlan(ctx, planner.Request{
		Profile:         user,
		ContextItems:    active,
		PlanningContext: opts.PlanningContext,
		WeekStart:       weekStart,
		StartDay:        startDay,
	})
	if err != nil {
		// Upstream failure: nothing has been written.
		return &GenerateResult{Success: false, Error: err.Error()}, nil
	}

	sessions := make([]domain.Session, 0, len(generated.Sessions))
	for _, g := range generated.Sessions {
		sessions = append(sessions, domain.Session{
			UserID:    userID,
			Domain:    g.Domain,
			DayOfWeek: g.DayOfWeek,
			Date:      weekStart.AddDate(0, 0, g.DayOfWeek),
			Title:     g.Title,
			SortOrder: g.SortOrder,
			Status:    domain.SessionPlanned,
			Detail:    g.Detail,
		})
	}

	verdict := validator.Validate(sessions, s.table)

	plan := &domain.WeeklyPlan{
		UserID:         userID,
		WeekStart:      weekStart,
		Status:         domain.PlanDraft,
		Intro:          generated.IntroMessage,
		TrackingBriefs: trackingBriefs(user),
		ReplanFrom:     replanFrom,
	}
	planID, err := s.planRepo.Create(ctx, plan)
	if err != nil {
		return &GenerateResult{Success: false, Error: err.Error()}, nil
	}

	for i := range sessions {
		sessions[i].PlanID = &planID
	}
	if _, err := s.sessionRepo.CreateMany(ctx, sessions); err != nil {
		// Compensate so no half-written plan survives. Ordered inserts can
		// commit a prefix of the batch before the error.
		_ = s.sessionRepo.DeleteByPlanID(ctx, planID)
		_ = s.planRepo.Delete(ctx, planID)
		return &GenerateResult{Success: false, Error: err.Error()}, nil
	}

	if !opts.Draft {
		if err := s.activate(ctx, plan); err != nil {
			return &GenerateResult{Success: false, PlanID: planID.Hex(), Error: err.Error()}, nil
		}
	}

	return &GenerateResult{
		Success: true,
		PlanID:  planID.Hex(),
		Status:  plan.Status,
		Intro:   plan.Intro,
		Issues:  verdict.Issues,
	}, nil
}

// Confirm transitions a draft plan to active, superseding any prior active
// plan for the same week.
func (s *planService) Confirm(ctx context.Context, userID, planID primitive.ObjectID) (*domain.WeeklyPlan, error) {
	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	if plan.UserID != userID {
		return nil, ErrPlanNotFound
	}
	if plan.Status != domain.PlanDraft {
		return nil, ErrPlanNotDraft
	}

	if err := s.activate(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// activate makes plan the single active plan for its week. Any prior active
// plan is superseded first; on a mid-week replan its completed sessions dated
// before the cutoff are re-attached to the new plan unchanged.
func (s *planService) activate(ctx context.Context, plan *domain.WeeklyPlan) error {
	old, err := s.planRepo.GetActive(ctx, plan.UserID, plan.WeekStart)
	switch {
	case err == nil && old.ID != plan.ID:
		if plan.ReplanFrom != nil {
			oldSessions, err := s.sessionRepo.GetByPlanID(ctx, old.ID)
			if err != nil {
				return err
			}
			var keep []primitive.ObjectID
			for _, sess := range oldSessions {
				if sess.Status == domain.SessionCompleted && sess.Date.Before(*plan.ReplanFrom) {
					keep = append(keep, sess.ID)
				}
			}
			if err := s.sessionRepo.Reassign(ctx, keep, plan.ID); err != nil {
				return err
			}
		}
		if err := s.planRepo.UpdateStatus(ctx, old.ID, domain.PlanSuperseded); err != nil {
			return err
		}
		// Archive is best effort; superseding must not fail on storage.
		old.Status = domain.PlanSuperseded
		remaining, err := s.sessionRepo.GetByPlanID(ctx, old.ID)
		if err == nil {
			key, err := s.archiver.ArchivePlan(ctx, old, remaining)
			switch {
			case err != nil:
				s.logger.Warn("failed to archive superseded plan", "planId", old.ID.Hex(), "error", err)
			case key != "":
				if err := s.planRepo.SetArchiveKey(ctx, old.ID, key); err != nil {
					s.logger.Warn("failed to record archive key", "planId", old.ID.Hex(), "error", err)
				}
			}
		}
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return err
	}

	if err := s.planRepo.UpdateStatus(ctx, plan.ID, domain.PlanActive); err != nil {
		return err
	}
	plan.Status = domain.PlanActive
	return nil
}

// === Session mutation ===

// Complete transitions a session to completed and returns it with recomputed
// weekly progress. Completing an already-completed session is a no-op;
// completing a skipped one is rejected (status transitions are monotone).
func (s *planService) Complete(ctx context.Context, userID, sessionID primitive.ObjectID, completed domain.SessionDetail) (*CompletionResult, error) {
	sess, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	switch sess.Status {
	case domain.SessionCompleted:
		// Duplicate delivery; re-derive and report current state.
	case domain.SessionSkipped:
		return nil, ErrSessionFinal
	default:
		now := time.Now().UTC()
		sess.Status = domain.SessionCompleted
		sess.CompletedAt = &now
		if completed != nil {
			sess.Completed = completed
		}
		if err := s.sessionRepo.Update(ctx, sess); err != nil {
			return nil, err
		}
	}

	progress, err := s.Progress(ctx, userID, domain.WeekStartOf(sess.Date))
	if err != nil {
		return nil, err
	}
	return &CompletionResult{Session: sess, Progress: progress}, nil
}

// Adapt applies a skip, reschedule, or modify action to a session.
func (s *planService) Adapt(ctx context.Context, userID, sessionID primitive.ObjectID, req AdaptRequest) (*domain.Session, error) {
	sess, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	switch req.Action {
	case AdaptSkip:
		if sess.Status == domain.SessionSkipped {
			return sess, nil // already skipped, nothing to do
		}
		if sess.Status == domain.SessionCompleted {
			return nil, ErrSessionFinal
		}
		sess.Status = domain.SessionSkipped

	case AdaptReschedule:
		if req.NewDate == nil {
			return nil, ErrRescheduleNeedsDate
		}
		// Status is deliberately left untouched.
		date := req.NewDate.UTC()
		sess.Date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
		sess.DayOfWeek = domain.DayOfWeekOf(sess.Date)

	case AdaptModify:
		sess.Detail = sess.Detail.Merge(req.Patch)
		if req.Title != nil && *req.Title != "" {
			sess.Title = *req.Title
		}

	default:
		return nil, ErrUnknownAdaptAction
	}

	if err := s.sessionRepo.Update(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// LogExtra records an activity performed outside any plan. The session is
// owned directly by the user and completed on insert.
func (s *planService) LogExtra(ctx context.Context, userID primitive.ObjectID, d domain.Domain, title string, date *time.Time, detail domain.SessionDetail) (*domain.Session, error) {
	if !d.Valid() {
		return nil, ErrInvalidDomain
	}
	now := time.Now().UTC()
	when := now
	if date != nil {
		when = date.UTC()
	}
	when = time.Date(when.Year(), when.Month(), when.Day(), 0, 0, 0, 0, time.UTC)

	sess := &domain.Session{
		UserID:      userID,
		Domain:      d,
		DayOfWeek:   domain.DayOfWeekOf(when),
		Date:        when,
		Title:       title,
		Status:      domain.SessionCompleted,
		Detail:      detail,
		CompletedAt: &now,
		IsExtra:     true,
	}
	id, err := s.sessionRepo.Create(ctx, sess)
	if err != nil {
		return nil, err
	}
	sess.ID = id
	return sess, nil
}

// === Read-only views ===

// ActivePlan returns the active plan for (user, week) with its sessions.
func (s *planService) ActivePlan(ctx context.Context, userID primitive.ObjectID, weekStart time.Time) (*PlanView, error) {
	weekStart = domain.WeekStartOf(weekStart)
	plan, err := s.planRepo.GetActive(ctx, userID, weekStart)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoActivePlan
		}
		return nil, err
	}
	sessions, err := s.sessionRepo.GetByPlanID(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	return &PlanView{Plan: plan, Sessions: sessions}, nil
}

// Progress computes the weekly completion summary over the active plan's
// sessions plus extras logged in the week. Skipped sessions are excluded.
func (s *planService) Progress(ctx context.Context, userID primitive.ObjectID, weekStart time.Time) (*WeeklyProgress, error) {
	weekStart = domain.WeekStartOf(weekStart)

	var sessions []domain.Session
	plan, err := s.planRepo.GetActive(ctx, userID, weekStart)
	if err == nil {
		sessions, err = s.sessionRepo.GetByPlanID(ctx, plan.ID)
		if err != nil {
			return nil, err
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	extras, err := s.sessionRepo.GetExtras(ctx, userID, weekStart, weekStart.AddDate(0, 0, 7))
	if err != nil {
		return nil, err
	}
	sessions = append(sessions, extras...)

	completed := make(map[domain.Domain]int)
	total := make(map[domain.Domain]int)
	for _, sess := range sessions {
		if sess.Status == domain.SessionSkipped {
			continue
		}
		total[sess.Domain]++
		if sess.Status == domain.SessionCompleted {
			completed[sess.Domain]++
		}
	}

	progress := &WeeklyProgress{WeekStart: weekStart}
	for _, d := range domain.AllDomains() {
		if total[d] == 0 {
			continue
		}
		progress.Domains = append(progress.Domains, DomainProgress{
			Domain:    d,
			Completed: completed[d],
			Total:     total[d],
			Rate:      rate(completed[d], total[d]),
		})
		progress.Completed += completed[d]
		progress.Total += total[d]
	}
	progress.Rate = rate(progress.Completed, progress.Total)
	return progress, nil
}

// History lists the user's superseded plans with presigned snapshot URLs
// where a snapshot was archived.
func (s *planService) History(ctx context.Context, userID primitive.ObjectID) ([]ArchiveEntry, error) {
	plans, err := s.planRepo.ListSuperseded(ctx, userID)
	if err != nil {
		return nil, err
	}

	entries := make([]ArchiveEntry, 0, len(plans))
	for _, plan := range plans {
		entry := ArchiveEntry{PlanID: plan.ID.Hex(), WeekStart: plan.WeekStart}
		if plan.ArchiveKey != "" {
			url, err := s.archiver.ArchiveDownloadURL(ctx, plan.ArchiveKey, storage.DefaultArchiveURLExpiry)
			if err != nil {
				return nil, err
			}
			entry.DownloadURL = url
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// === Helpers ===

func (s *planService) ownedSession(ctx context.Context, userID, sessionID primitive.ObjectID) (*domain.Session, error) {
	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func rate(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(completed)/float64(total)*100) / 100
}

// trackingBriefs computes the per-tracked-domain numeric targets for the week
// from the profile snapshot.
func trackingBriefs(user *domain.User) map[domain.Domain][]domain.TrackingBrief {
	weight := user.WeightKg
	if weight <= 0 {
		weight = 75
	}
	sleep := user.SleepTarget
	if sleep <= 0 {
		sleep = 8
	}
	return map[domain.Domain][]domain.TrackingBrief{
		domain.DomainNutrition: {
			{Metric: "calories", Target: math.Round(weight * 30), Unit: "kcal/day"},
			{Metric: "protein", Target: math.Round(weight * 1.8), Unit: "g/day"},
		},
		domain.DomainSleep: {
			{Metric: "sleep", Target: sleep, Unit: "hours/night"},
		},
	}
}
