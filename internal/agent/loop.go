package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrTurnInProgress is returned when a turn for the same user is already
// running. Callers should tell the user to wait rather than queue the message.
var ErrTurnInProgress = errors.New("a turn for this user is already in progress")

const loopSystemPrompt = `You are a personal coaching assistant covering cardio, strength, mindfulness, nutrition and sleep.
You manage the user's weekly plan through the tools available to you.
Ground every statement about the plan or progress in tool output; never invent sessions or numbers.
When the user reports doing something, record it (complete_session for planned work, log_extra_session otherwise).
When life gets in the way, prefer adapting the plan over letting it go stale; use draft plans for big changes so the user can review first.
When the user mentions a lasting fact about their body, gear, surroundings or schedule, remember it with add_context_item.
Keep replies short and concrete.`

// chatClient is the slice of the OpenAI client the loop needs.
// *openai.Client satisfies it.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ToolResult records one executed operation within a turn.
type ToolResult struct {
	Operation string
	Output    map[string]any
}

// TurnResult is the outcome of one user message.
type TurnResult struct {
	Reply   string
	Results []ToolResult
}

// Loop drives the model/tool conversation for a single user message.
// Turns for the same user are serialized; concurrent turns are rejected.
type Loop struct {
	chat         chatClient
	model        string
	catalog      *Catalog
	locks        *userLocks
	maxToolCalls int
	turnTimeout  time.Duration
	logger       *slog.Logger
}

func NewLoop(client chatClient, model string, catalog *Catalog, maxToolCalls int, turnTimeout time.Duration, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		chat:         client,
		model:        model,
		catalog:      catalog,
		locks:        newUserLocks(),
		maxToolCalls: maxToolCalls,
		turnTimeout:  turnTimeout,
		logger:       logger,
	}
}

// RunTurn processes one user message, executing tool calls until the model
// produces a plain reply or the per-turn tool budget runs out.
func (l *Loop) RunTurn(ctx context.Context, userID primitive.ObjectID, message string) (*TurnResult, error) {
	if !l.locks.TryAcquire(userID.Hex()) {
		return nil, ErrTurnInProgress
	}
	defer l.locks.Release(userID.Hex())

	ctx, cancel := context.WithTimeout(ctx, l.turnTimeout)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: loopSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: message},
	}
	tools := l.catalog.Tools()
	result := &TurnResult{}

	calls := 0
	for {
		resp, err := l.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    l.model,
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("chat completion returned no choices")
		}
		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			result.Reply = msg.Content
			return result, nil
		}

		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			if calls >= l.maxToolCalls {
				l.logger.Warn("tool budget exhausted", "user", userID.Hex(), "calls", calls)
				result.Reply = "I had to stop partway through that. Could you break the request into smaller steps?"
				return result, nil
			}
			calls++

			output := l.catalog.Execute(ctx, userID, call.Function.Name, call.Function.Arguments)
			result.Results = append(result.Results, ToolResult{Operation: call.Function.Name, Output: output})
			l.logger.Info("tool executed", "user", userID.Hex(), "operation", call.Function.Name)

			payload, err := json.Marshal(output)
			if err != nil {
				payload = []byte(`{"error":"unserializable tool output"}`)
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    string(payload),
			})
		}
	}
}
