package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"peakform/coach-app/internal/agent"
	"peakform/coach-app/internal/repository"
	"peakform/coach-app/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Bot is the Telegram adapter. It routes messages either into the onboarding
// engine or into the assistant loop, and renders structured prompts as
// Telegram messages with inline keyboards.
type Bot struct {
	api        *tgbotapi.BotAPI
	onboarding service.OnboardingService
	plans      service.PlanService
	users      repository.UserRepository
	loop       *agent.Loop
	logger     *slog.Logger
}

func New(
	token string,
	onboarding service.OnboardingService,
	plans service.PlanService,
	users repository.UserRepository,
	loop *agent.Loop,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram client: %w", err)
	}
	return &Bot{
		api:        api,
		onboarding: onboarding,
		plans:      plans,
		users:      users,
		loop:       loop,
		logger:     slog.Default().With("component", "bot"),
	}, nil
}

// Run long-polls for updates until the context is cancelled. Each update is
// handled in its own goroutine; per-user ordering is enforced downstream by
// the loop's turn lock.
func (b *Bot) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)
	b.logger.Info("telegram bot started", "username", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.Text != "":
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	active, err := b.onboarding.Active(ctx, chatID)
	if err != nil {
		b.fail(chatID, "checking onboarding state", err)
		return
	}
	if active {
		prompt, err := b.onboarding.HandleText(ctx, chatID, msg.Text)
		if err != nil {
			b.fail(chatID, "onboarding", err)
			return
		}
		b.renderPrompt(ctx, chatID, prompt)
		return
	}

	user, err := b.users.GetByChatID(ctx, chatID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		b.fail(chatID, "loading profile", err)
		return
	}
	if user == nil || !user.Onboarded {
		prompt, err := b.onboarding.Begin(ctx, chatID, msg.From.FirstName)
		if err != nil {
			b.fail(chatID, "starting onboarding", err)
			return
		}
		b.renderPrompt(ctx, chatID, prompt)
		return
	}

	b.runTurn(ctx, chatID, user.ID, msg.Text)
}

func (b *Bot) runTurn(ctx context.Context, chatID int64, userID primitive.ObjectID, text string) {
	b.sendChatAction(chatID)
	result, err := b.loop.RunTurn(ctx, userID, text)
	if err != nil {
		if errors.Is(err, agent.ErrTurnInProgress) {
			b.send(chatID, "Still working on your last message, one moment.")
			return
		}
		b.fail(chatID, "assistant turn", err)
		return
	}
	reply := result.Reply
	if reply == "" {
		reply = "Done."
	}
	b.send(chatID, reply)
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	// Acknowledge first so the client stops its spinner regardless of outcome.
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.logger.Warn("callback ack failed", "error", err)
	}
	if query.Message == nil {
		return
	}
	chatID := query.Message.Chat.ID

	cb, err := ParseCallback(query.Data)
	if err != nil {
		b.logger.Warn("dropping callback", "error", err)
		return
	}

	switch cb.Kind {
	case CallbackOnboarding:
		b.handleOnboardingCallback(ctx, chatID, cb)
	case CallbackAction:
		b.handleSessionCallback(ctx, chatID, cb)
	}
}

func (b *Bot) handleOnboardingCallback(ctx context.Context, chatID int64, cb Callback) {
	var (
		prompt *service.Prompt
		err    error
	)
	switch cb.Op {
	case service.OnboardOpSelect:
		prompt, err = b.onboarding.HandleSelect(ctx, chatID, cb.Ref, cb.Value)
	case service.OnboardOpToggle:
		prompt, err = b.onboarding.HandleToggle(ctx, chatID, cb.Ref, cb.Value)
	case service.OnboardOpDone:
		prompt, err = b.onboarding.HandleDone(ctx, chatID, cb.Ref)
	default:
		b.logger.Warn("unknown onboarding op", "op", cb.Op)
		return
	}
	if err != nil {
		if errors.Is(err, service.ErrNoOnboarding) {
			return // stale button from a finished onboarding
		}
		b.fail(chatID, "onboarding", err)
		return
	}
	b.renderPrompt(ctx, chatID, prompt)
}

func (b *Bot) handleSessionCallback(ctx context.Context, chatID int64, cb Callback) {
	user, err := b.users.GetByChatID(ctx, chatID)
	if err != nil {
		b.fail(chatID, "loading profile", err)
		return
	}
	sessionID, err := primitive.ObjectIDFromHex(cb.Ref)
	if err != nil {
		b.logger.Warn("bad session id in callback", "ref", cb.Ref)
		return
	}

	switch cb.Op {
	case ActionComplete:
		result, err := b.plans.Complete(ctx, user.ID, sessionID, nil)
		if err != nil {
			b.fail(chatID, "completing session", err)
			return
		}
		b.send(chatID, fmt.Sprintf("Nice, %q is done. %d of %d sessions completed this week.",
			result.Session.Title, result.Progress.Completed, result.Progress.Total))
	case ActionSkip:
		sess, err := b.plans.Adapt(ctx, user.ID, sessionID, service.AdaptRequest{Action: service.AdaptSkip})
		if err != nil {
			b.fail(chatID, "skipping session", err)
			return
		}
		b.send(chatID, fmt.Sprintf("Skipped %q. It will feed into next week's planning.", sess.Title))
	default:
		b.logger.Warn("unknown session op", "op", cb.Op)
	}
}

// renderPrompt turns a structured onboarding prompt into Telegram messages.
func (b *Bot) renderPrompt(ctx context.Context, chatID int64, prompt *service.Prompt) {
	if prompt == nil {
		return
	}
	for _, text := range prompt.Preface {
		b.send(chatID, text)
	}

	if prompt.Done {
		b.send(chatID, renderGeneration(prompt.Generation))
		return
	}

	keyboard := promptKeyboard(prompt)

	if prompt.EditInPlace && prompt.EditMessageID != nil && keyboard != nil {
		edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, *prompt.EditMessageID, prompt.Text, *keyboard)
		if _, err := b.api.Send(edit); err != nil {
			b.logger.Warn("prompt edit failed", "error", err)
		}
		return
	}

	msg := tgbotapi.NewMessage(chatID, prompt.Text)
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}
	sent, err := b.api.Send(msg)
	if err != nil {
		b.logger.Error("prompt send failed", "error", err)
		return
	}
	if keyboard != nil {
		if err := b.onboarding.SetLastPromptID(ctx, chatID, sent.MessageID); err != nil {
			b.logger.Warn("recording prompt id failed", "error", err)
		}
	}
}

func promptKeyboard(prompt *service.Prompt) *tgbotapi.InlineKeyboardMarkup {
	if len(prompt.Options) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(prompt.Options))
	for _, opt := range prompt.Options {
		label := opt.Label
		if opt.Selected {
			label = "✓ " + label
		}
		data := Callback{Kind: CallbackOnboarding, Op: opt.Op, Ref: opt.QuestionID, Value: opt.Value}.Encode()
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, data)))
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &keyboard
}

func renderGeneration(result *service.GenerateResult) string {
	if result == nil || !result.Success {
		return "You're all set. I couldn't build this week's plan just now, ask me again in a bit."
	}
	var sb strings.Builder
	sb.WriteString("You're all set. ")
	if result.Intro != "" {
		sb.WriteString(result.Intro)
	} else {
		sb.WriteString("Your first weekly plan is ready, ask me \"what's my plan\" to see it.")
	}
	if len(result.Issues) > 0 {
		sb.WriteString("\n\nA few things I'll keep an eye on:\n")
		for _, issue := range result.Issues {
			sb.WriteString("- " + issue + "\n")
		}
	}
	return sb.String()
}

func (b *Bot) send(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Error("send failed", "chatId", chatID, "error", err)
	}
}

func (b *Bot) sendChatAction(chatID int64) {
	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		b.logger.Warn("chat action failed", "error", err)
	}
}

func (b *Bot) fail(chatID int64, stage string, err error) {
	b.logger.Error(stage+" failed", "chatId", chatID, "error", err)
	b.send(chatID, "Something went wrong on my end, please try again.")
}
