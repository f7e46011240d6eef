package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"peakform/coach-app/internal/domain"
	"peakform/coach-app/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrNoOnboarding = errors.New("no onboarding in progress for this chat")
)

// Callback operations the engine understands. The channel adapter encodes
// them as ob:<op>:<questionId>:<value>.
const (
	OnboardOpSelect = "sel"  // answer a single-select question
	OnboardOpToggle = "tog"  // flip membership in a multi-select set
	OnboardOpDone   = "done" // close a multi-select question
)

// PromptOption is one tappable answer of a prompt.
type PromptOption struct {
	Label      string `json:"label"`
	Op         string `json:"op"`
	QuestionID string `json:"questionId"`
	Value      string `json:"value"`
	Selected   bool   `json:"selected"` // current membership, for multi-select rendering
}

// Prompt is the structured record a channel adapter renders. No formatting
// happens here.
type Prompt struct {
	// Preface carries the texts of informational steps passed through on the
	// way to this prompt.
	Preface []string       `json:"preface,omitempty"`
	Text    string         `json:"text"`
	Options []PromptOption `json:"options,omitempty"` // empty means free text is expected

	MultiSelect bool   `json:"multiSelect,omitempty"`
	QuestionID  string `json:"questionId,omitempty"`

	// EditInPlace asks the adapter to update the previously rendered prompt
	// instead of sending a new one (multi-select toggles). EditMessageID is
	// the remembered id of that prompt, when known.
	EditInPlace   bool `json:"editInPlace,omitempty"`
	EditMessageID *int `json:"editMessageId,omitempty"`

	// Done signals onboarding finished; Generation carries the outcome of the
	// plan build triggered by the terminal step.
	Done       bool            `json:"done,omitempty"`
	Generation *GenerateResult `json:"generation,omitempty"`
}

// OnboardingService is the resumable conversation engine that collects
// baseline data. Every handler reloads state from storage before acting and
// persists it before returning; nothing relies on in-memory continuity
// between events.
type OnboardingService interface {
	// Active reports whether the chat is mid-onboarding.
	Active(ctx context.Context, chatID int64) (bool, error)
	// Begin creates (or resumes) the onboarding for a chat and returns the
	// first pending prompt.
	Begin(ctx context.Context, chatID int64, displayName string) (*Prompt, error)
	HandleText(ctx context.Context, chatID int64, text string) (*Prompt, error)
	HandleSelect(ctx context.Context, chatID int64, questionID, value string) (*Prompt, error)
	HandleToggle(ctx context.Context, chatID int64, questionID, value string) (*Prompt, error)
	HandleDone(ctx context.Context, chatID int64, questionID string) (*Prompt, error)
	// SetLastPromptID remembers the rendered prompt message for in-place edits.
	SetLastPromptID(ctx context.Context, chatID int64, messageID int) error
}

// onboardingService implements the OnboardingService interface.
type onboardingService struct {
	stateRepo   repository.OnboardingRepository
	userRepo    repository.UserRepository
	contextRepo repository.ContextItemRepository
	plans       PlanService
	steps       []Step
	logger      *slog.Logger
}

// NewOnboardingService creates a new instance of onboardingService.
func NewOnboardingService(
	stateRepo repository.OnboardingRepository,
	userRepo repository.UserRepository,
	contextRepo repository.ContextItemRepository,
	plans PlanService,
) OnboardingService {
	return &onboardingService{
		stateRepo:   stateRepo,
		userRepo:    userRepo,
		contextRepo: contextRepo,
		plans:       plans,
		steps:       onboardingSteps,
		logger:      slog.Default().With("component", "onboarding"),
	}
}

// Active reports whether persisted state exists for the chat.
func (s *onboardingService) Active(ctx context.Context, chatID int64) (bool, error) {
	_, err := s.stateRepo.Get(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Begin creates fresh state for the chat, resolving (or creating) its user
// row. If state already exists the current prompt is re-issued unchanged.
func (s *onboardingService) Begin(ctx context.Context, chatID int64, displayName string) (*Prompt, error) {
	if state, err := s.load(ctx, chatID); err == nil {
		return s.promptFor(ctx, state)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	user, err := s.userRepo.GetByChatID(ctx, chatID)
	if errors.Is(err, repository.ErrNotFound) {
		newUser := &domain.User{Name: displayName, TelegramChatID: &chatID}
		id, createErr := s.userRepo.Create(ctx, newUser)
		if createErr != nil {
			return nil, createErr
		}
		newUser.ID = id
		user = newUser
	} else if err != nil {
		return nil, err
	}

	state := &domain.OnboardingState{
		ChatID:  chatID,
		UserID:  &user.ID,
		Answers: map[string]any{},
	}
	return s.promptFor(ctx, state)
}

// HandleText consumes a free-text answer for the current basics field. Text
// arriving while a select question is pending re-issues the pending prompt.
func (s *onboardingService) HandleText(ctx context.Context, chatID int64, text string) (*Prompt, error) {
	state, err := s.load(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoOnboarding
		}
		return nil, err
	}

	step := s.steps[state.StepIndex]
	if step.Kind != StepBasics {
		return s.promptFor(ctx, state)
	}

	field := step.Fields[state.QuestionIndex]
	value, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(text, ",", ".")), 64)
	if err != nil || value < field.Min || value > field.Max {
		prompt, perr := s.promptFor(ctx, state)
		if perr != nil {
			return nil, perr
		}
		prompt.Text = fmt.Sprintf("Please send a number between %.0f and %.0f. %s", field.Min, field.Max, field.Text)
		return prompt, nil
	}

	state.Answers[field.Key] = value
	s.advance(state)
	return s.promptFor(ctx, state)
}

// HandleSelect answers a single-select question. A callback whose question id
// no longer matches the current position is a duplicate or stale delivery and
// must not advance the step again; the current prompt is re-issued instead.
func (s *onboardingService) HandleSelect(ctx context.Context, chatID int64, questionID, value string) (*Prompt, error) {
	state, q, err := s.loadQuestion(ctx, chatID, questionID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return s.promptFor(ctx, state)
	}

	state.Answers[q.Key] = value
	s.advance(state)
	return s.promptFor(ctx, state)
}

// HandleToggle flips membership of value in the current multi-select set
// without advancing. The distinguished "none" option clears the set.
func (s *onboardingService) HandleToggle(ctx context.Context, chatID int64, questionID, value string) (*Prompt, error) {
	state, q, err := s.loadQuestion(ctx, chatID, questionID)
	if err != nil {
		return nil, err
	}
	if q == nil || !q.Multi {
		return s.promptFor(ctx, state)
	}

	var isNone bool
	for _, opt := range q.Options {
		if opt.Value == value && opt.None {
			isNone = true
		}
	}

	set := toStringSet(state.Answers[q.Key])
	if isNone {
		set = []string{value}
	} else {
		set = toggle(set, value)
	}
	state.Answers[q.Key] = set

	if err := s.stateRepo.Upsert(ctx, state); err != nil {
		return nil, err
	}
	prompt := s.questionPrompt(*q, state)
	prompt.EditInPlace = true
	prompt.EditMessageID = state.LastPromptID
	return prompt, nil
}

// HandleDone closes the current multi-select question and advances, capturing
// whatever set the toggles produced (possibly empty).
func (s *onboardingService) HandleDone(ctx context.Context, chatID int64, questionID string) (*Prompt, error) {
	state, q, err := s.loadQuestion(ctx, chatID, questionID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return s.promptFor(ctx, state)
	}

	if _, ok := state.Answers[q.Key]; !ok {
		state.Answers[q.Key] = []string{}
	}
	s.advance(state)
	return s.promptFor(ctx, state)
}

// SetLastPromptID records the rendered message id on the persisted state.
func (s *onboardingService) SetLastPromptID(ctx context.Context, chatID int64, messageID int) error {
	state, err := s.stateRepo.Get(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil // state already torn down, nothing to remember
		}
		return err
	}
	state.LastPromptID = &messageID
	return s.stateRepo.Upsert(ctx, state)
}

// === Internals ===

// load fetches persisted state and repairs cursors that no longer resolve to
// a valid position in the step sequence (possible after a step-definition
// change).
func (s *onboardingService) load(ctx context.Context, chatID int64) (*domain.OnboardingState, error) {
	state, err := s.stateRepo.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if state.Answers == nil {
		state.Answers = map[string]any{}
	}
	if state.StepIndex < 0 || state.StepIndex >= len(s.steps) {
		s.logger.Warn("repairing out-of-range step cursor", "chatId", chatID, "stepIndex", state.StepIndex)
		// Land on the last step that still collects input. Jumping to the
		// terminal build step would finalize an incomplete answer set.
		repaired := len(s.steps) - 1
		for repaired > 0 && s.steps[repaired].Kind == StepBuild {
			repaired--
		}
		state.StepIndex = repaired
		state.QuestionIndex = 0
	}
	if state.QuestionIndex < 0 || state.QuestionIndex >= subItemCount(s.steps[state.StepIndex]) {
		state.QuestionIndex = 0
	}
	return state, nil
}

// loadQuestion loads state and resolves the current question iff it matches
// the callback's question id. A nil question with nil error means the
// callback is stale.
func (s *onboardingService) loadQuestion(ctx context.Context, chatID int64, questionID string) (*domain.OnboardingState, *Question, error) {
	state, err := s.load(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrNoOnboarding
		}
		return nil, nil, err
	}
	step := s.steps[state.StepIndex]
	if step.Kind != StepQuestions {
		return state, nil, nil
	}
	q := step.Questions[state.QuestionIndex]
	if q.ID != questionID {
		return state, nil, nil
	}
	return state, &q, nil
}

// advance moves the cursor one sub-item forward, rolling over to the next
// step when the current one is exhausted.
func (s *onboardingService) advance(state *domain.OnboardingState) {
	state.QuestionIndex++
	if state.QuestionIndex >= subItemCount(s.steps[state.StepIndex]) {
		state.StepIndex++
		state.QuestionIndex = 0
	}
}

// promptFor persists the state and returns the prompt for its position,
// passing through informational steps and firing the terminal build step.
func (s *onboardingService) promptFor(ctx context.Context, state *domain.OnboardingState) (*Prompt, error) {
	var preface []string
	for {
		step := s.steps[state.StepIndex]
		switch step.Kind {
		case StepWelcome, StepMethodology:
			preface = append(preface, step.Text)
			state.StepIndex++
			state.QuestionIndex = 0

		case StepQuestions:
			if err := s.stateRepo.Upsert(ctx, state); err != nil {
				return nil, err
			}
			prompt := s.questionPrompt(step.Questions[state.QuestionIndex], state)
			prompt.Preface = preface
			return prompt, nil

		case StepBasics:
			if err := s.stateRepo.Upsert(ctx, state); err != nil {
				return nil, err
			}
			field := step.Fields[state.QuestionIndex]
			return &Prompt{Preface: preface, Text: field.Text}, nil

		case StepBuild:
			return s.finalize(ctx, state, step, preface)
		}
	}
}

// questionPrompt renders a question at the current position as a structured
// prompt.
func (s *onboardingService) questionPrompt(q Question, state *domain.OnboardingState) *Prompt {
	selected := toStringSet(state.Answers[q.Key])
	prompt := &Prompt{Text: q.Text, MultiSelect: q.Multi, QuestionID: q.ID}
	for _, opt := range q.Options {
		op := OnboardOpSelect
		if q.Multi {
			op = OnboardOpToggle
		}
		prompt.Options = append(prompt.Options, PromptOption{
			Label:      opt.Label,
			Op:         op,
			QuestionID: q.ID,
			Value:      opt.Value,
			Selected:   contains(selected, opt.Value),
		})
	}
	if q.Multi {
		prompt.Options = append(prompt.Options, PromptOption{
			Label:      "Done",
			Op:         OnboardOpDone,
			QuestionID: q.ID,
		})
	}
	return prompt
}

// finalize runs the terminal build step: write the answer document onto the
// profile, mark onboarding complete, generate the current week's plan, and
// tear down the persisted state.
func (s *onboardingService) finalize(ctx context.Context, state *domain.OnboardingState, step Step, preface []string) (*Prompt, error) {
	if state.UserID == nil {
		return nil, ErrUserNotFound
	}
	user, err := s.userRepo.GetByID(ctx, *state.UserID)
	if err != nil {
		return nil, err
	}

	user.AgeYears = int(answerFloat(state.Answers, "basics.age"))
	user.WeightKg = answerFloat(state.Answers, "basics.weightKg")
	user.HeightCm = answerFloat(state.Answers, "basics.heightCm")
	user.SleepTarget = answerFloat(state.Answers, "basics.sleepHours")
	user.Baselines = state.Answers
	user.Onboarded = true
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	s.recordEquipment(ctx, user.ID, state.Answers)

	gen, err := s.plans.Generate(ctx, user.ID, domain.WeekStartOf(time.Now()), GenerateOptions{})
	if err != nil {
		gen = &GenerateResult{Success: false, Error: err.Error()}
	}

	if err := s.stateRepo.Delete(ctx, state.ChatID); err != nil {
		return nil, err
	}

	s.logger.Info("onboarding complete", "chatId", state.ChatID, "planOk", gen.Success)
	return &Prompt{Preface: preface, Text: step.Text, Done: true, Generation: gen}, nil
}

// recordEquipment turns the equipment multi-select answers into permanent
// context items so later replans keep seeing them.
func (s *onboardingService) recordEquipment(ctx context.Context, userID primitive.ObjectID, answers map[string]any) {
	for _, key := range []string{"cardio.equipment", "strength.equipment"} {
		set := toStringSet(answers[key])
		if len(set) == 0 {
			continue
		}
		item := &domain.UserContextItem{
			UserID:   userID,
			Category: domain.ContextEquipment,
			Scope:    domain.ScopePermanent,
			Source:   domain.SourceOnboarding,
			Text:     fmt.Sprintf("%s: %s", key, strings.Join(set, ", ")),
		}
		if _, err := s.contextRepo.Create(ctx, item); err != nil {
			s.logger.Warn("failed to record equipment context", "key", key, "error", err)
		}
	}
}

// === Helpers ===

func subItemCount(step Step) int {
	switch step.Kind {
	case StepQuestions:
		return len(step.Questions)
	case StepBasics:
		return len(step.Fields)
	default:
		return 1
	}
}

// toStringSet coerces a stored answer back into a string slice; BSON round
// trips []string as []any.
func toStringSet(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toggle(set []string, value string) []string {
	for i, v := range set {
		if v == value {
			return append(set[:i], set[i+1:]...)
		}
	}
	return append(set, value)
}

func contains(set []string, value string) bool {
	for _, v := range set {
		if v == value {
			return true
		}
	}
	return false
}

func answerFloat(answers map[string]any, key string) float64 {
	switch x := answers[key].(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	default:
		return 0
	}
}
