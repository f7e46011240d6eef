package service

import (
	"context"
	"sort"
	"time"

	"peakform/coach-app/internal/domain"
	"peakform/coach-app/internal/planner"
	"peakform/coach-app/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// In-memory repository fakes. They copy on read and write so tests observe
// only what was persisted, the same way the Mongo implementations behave.

type fakeUserRepo struct {
	users map[primitive.ObjectID]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[primitive.ObjectID]*domain.User{}}
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) (primitive.ObjectID, error) {
	id := primitive.NewObjectID()
	clone := *user
	clone.ID = id
	r.users[id] = &clone
	return id, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *fakeUserRepo) GetByChatID(_ context.Context, chatID int64) (*domain.User, error) {
	for _, u := range r.users {
		if u.TelegramChatID != nil && *u.TelegramChatID == chatID {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	if _, ok := r.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

type fakePlanRepo struct {
	plans map[primitive.ObjectID]*domain.WeeklyPlan
}

func newFakePlanRepo() *fakePlanRepo {
	return &fakePlanRepo{plans: map[primitive.ObjectID]*domain.WeeklyPlan{}}
}

func (r *fakePlanRepo) Create(_ context.Context, plan *domain.WeeklyPlan) (primitive.ObjectID, error) {
	id := primitive.NewObjectID()
	plan.ID = id
	clone := *plan
	r.plans[id] = &clone
	return id, nil
}

func (r *fakePlanRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.WeeklyPlan, error) {
	p, ok := r.plans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *fakePlanRepo) GetActive(_ context.Context, userID primitive.ObjectID, weekStart time.Time) (*domain.WeeklyPlan, error) {
	for _, p := range r.plans {
		if p.UserID == userID && p.Status == domain.PlanActive && p.WeekStart.Equal(weekStart) {
			clone := *p
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakePlanRepo) UpdateStatus(_ context.Context, id primitive.ObjectID, status domain.PlanStatus) error {
	p, ok := r.plans[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Status = status
	return nil
}

func (r *fakePlanRepo) SetArchiveKey(_ context.Context, id primitive.ObjectID, key string) error {
	p, ok := r.plans[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.ArchiveKey = key
	return nil
}

func (r *fakePlanRepo) ListSuperseded(_ context.Context, userID primitive.ObjectID) ([]domain.WeeklyPlan, error) {
	var out []domain.WeeklyPlan
	for _, p := range r.plans {
		if p.UserID == userID && p.Status == domain.PlanSuperseded {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart.After(out[j].WeekStart) })
	return out, nil
}

func (r *fakePlanRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	if _, ok := r.plans[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.plans, id)
	return nil
}

func (r *fakePlanRepo) activeCount(userID primitive.ObjectID, weekStart time.Time) int {
	n := 0
	for _, p := range r.plans {
		if p.UserID == userID && p.Status == domain.PlanActive && p.WeekStart.Equal(weekStart) {
			n++
		}
	}
	return n
}

type fakeSessionRepo struct {
	sessions  map[primitive.ObjectID]*domain.Session
	createErr error // when set, CreateMany fails with it
	// createPartial is how many rows CreateMany commits before returning
	// createErr, mirroring Mongo's ordered-insert behavior.
	createPartial int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[primitive.ObjectID]*domain.Session{}}
}

func (r *fakeSessionRepo) Create(_ context.Context, sess *domain.Session) (primitive.ObjectID, error) {
	id := primitive.NewObjectID()
	clone := *sess
	clone.ID = id
	r.sessions[id] = &clone
	return id, nil
}

func (r *fakeSessionRepo) CreateMany(ctx context.Context, sessions []domain.Session) ([]primitive.ObjectID, error) {
	if r.createErr != nil {
		for i := 0; i < r.createPartial && i < len(sessions); i++ {
			_, _ = r.Create(ctx, &sessions[i])
		}
		return nil, r.createErr
	}
	ids := make([]primitive.ObjectID, 0, len(sessions))
	for i := range sessions {
		id, _ := r.Create(ctx, &sessions[i])
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Session, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *s
	return &clone, nil
}

func (r *fakeSessionRepo) GetByPlanID(_ context.Context, planID primitive.ObjectID) ([]domain.Session, error) {
	var out []domain.Session
	for _, s := range r.sessions {
		if s.PlanID != nil && *s.PlanID == planID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) GetExtras(_ context.Context, userID primitive.ObjectID, from, to time.Time) ([]domain.Session, error) {
	var out []domain.Session
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsExtra && !s.Date.Before(from) && s.Date.Before(to) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) Update(_ context.Context, sess *domain.Session) error {
	if _, ok := r.sessions[sess.ID]; !ok {
		return repository.ErrNotFound
	}
	clone := *sess
	r.sessions[sess.ID] = &clone
	return nil
}

func (r *fakeSessionRepo) Reassign(_ context.Context, ids []primitive.ObjectID, planID primitive.ObjectID) error {
	for _, id := range ids {
		s, ok := r.sessions[id]
		if !ok {
			return repository.ErrNotFound
		}
		pid := planID
		s.PlanID = &pid
	}
	return nil
}

func (r *fakeSessionRepo) DeleteByPlanID(_ context.Context, planID primitive.ObjectID) error {
	for id, s := range r.sessions {
		if s.PlanID != nil && *s.PlanID == planID {
			delete(r.sessions, id)
		}
	}
	return nil
}

type fakeOnboardingRepo struct {
	states map[int64]*domain.OnboardingState
}

func newFakeOnboardingRepo() *fakeOnboardingRepo {
	return &fakeOnboardingRepo{states: map[int64]*domain.OnboardingState{}}
}

func (r *fakeOnboardingRepo) Get(_ context.Context, chatID int64) (*domain.OnboardingState, error) {
	s, ok := r.states[chatID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *s
	clone.Answers = make(map[string]any, len(s.Answers))
	for k, v := range s.Answers {
		clone.Answers[k] = v
	}
	return &clone, nil
}

func (r *fakeOnboardingRepo) Upsert(_ context.Context, state *domain.OnboardingState) error {
	clone := *state
	clone.Answers = make(map[string]any, len(state.Answers))
	for k, v := range state.Answers {
		clone.Answers[k] = v
	}
	r.states[state.ChatID] = &clone
	return nil
}

func (r *fakeOnboardingRepo) Delete(_ context.Context, chatID int64) error {
	delete(r.states, chatID)
	return nil
}

type fakeContextRepo struct {
	items map[primitive.ObjectID]*domain.UserContextItem
}

func newFakeContextRepo() *fakeContextRepo {
	return &fakeContextRepo{items: map[primitive.ObjectID]*domain.UserContextItem{}}
}

func (r *fakeContextRepo) Create(_ context.Context, item *domain.UserContextItem) (primitive.ObjectID, error) {
	id := primitive.NewObjectID()
	clone := *item
	clone.ID = id
	r.items[id] = &clone
	return id, nil
}

func (r *fakeContextRepo) GetByUserID(_ context.Context, userID primitive.ObjectID) ([]domain.UserContextItem, error) {
	var out []domain.UserContextItem
	for _, item := range r.items {
		if item.UserID == userID {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (r *fakeContextRepo) Delete(_ context.Context, id, userID primitive.ObjectID) error {
	item, ok := r.items[id]
	if !ok || item.UserID != userID {
		return repository.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

// fakeGenerator returns a canned result or error and records the last request.
type fakeGenerator struct {
	result  *planner.Result
	err     error
	lastReq planner.Request
	calls   int
}

func (g *fakeGenerator) GeneratePlan(_ context.Context, req planner.Request) (*planner.Result, error) {
	g.calls++
	g.lastReq = req
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

// fakeArchiver snapshots in memory and hands out deterministic URLs.
type fakeArchiver struct {
	archived map[string][]domain.Session // object key -> sessions snapshotted
}

func newFakeArchiver() *fakeArchiver {
	return &fakeArchiver{archived: map[string][]domain.Session{}}
}

func (a *fakeArchiver) ArchivePlan(_ context.Context, plan *domain.WeeklyPlan, sessions []domain.Session) (string, error) {
	key := "plan-archives/" + plan.ID.Hex() + ".json"
	a.archived[key] = append([]domain.Session(nil), sessions...)
	return key, nil
}

func (a *fakeArchiver) ArchiveDownloadURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://archive.example/" + objectKey + "?sig=test", nil
}
