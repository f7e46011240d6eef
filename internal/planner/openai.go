package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"peakform/coach-app/internal/policy"

	openai "github.com/sashabaranov/go-openai"
)

const generatorSystemPrompt = `You are the planning engine of a personal coaching assistant.
Given the coaching policy and the user's profile, produce a weekly activity plan.
Respond with a single JSON object and nothing else:
{"introMessage": string, "sessions": [{"domain": string, "dayOfWeek": int, "title": string, "detail": object, "sortOrder": int}]}
Domains: cardio, strength, mindfulness. dayOfWeek is 0 (Monday) through 6 (Sunday).
Cardio detail must include "zone" and "durationMinutes". Strength detail must include
"type", "durationMinutes", "warmup" and "cooldown". Mindfulness detail must include
"type" and "durationMinutes".`

// openAIGenerator implements Generator against the OpenAI chat API.
type openAIGenerator struct {
	client  *openai.Client
	model   string
	table   *policy.Table
	timeout time.Duration
	logger  *slog.Logger
}

// NewOpenAIGenerator creates a Generator backed by the OpenAI chat API. Every
// call is bounded by the given timeout regardless of the caller's context.
func NewOpenAIGenerator(apiKey, model string, table *policy.Table, timeout time.Duration) Generator {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &openAIGenerator{
		client:  openai.NewClient(apiKey),
		model:   model,
		table:   table,
		timeout: timeout,
		logger:  slog.Default().With("component", "planner"),
	}
}

// GeneratePlan requests a week's session set and parses the structured reply.
func (g *openAIGenerator) GeneratePlan(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	brief := BuildBrief(g.table, req)

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: generatorSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: brief},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		g.logger.Error("generation call failed", "error", err)
		return nil, fmt.Errorf("plan generation: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrMalformedOutput
	}

	var result Result
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &result); err != nil {
		g.logger.Error("generation output did not parse", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	if err := checkResult(&result, req.StartDay); err != nil {
		g.logger.Error("generation output rejected", "error", err)
		return nil, err
	}

	g.logger.Info("plan generated", "sessions", len(result.Sessions), "startDay", req.StartDay)
	return &result, nil
}

// checkResult rejects structurally invalid output before it reaches the
// validator: unknown domains, tracked-only domains, days outside the
// requested window.
func checkResult(result *Result, startDay int) error {
	if len(result.Sessions) == 0 {
		return ErrMalformedOutput
	}
	for _, s := range result.Sessions {
		if !s.Domain.Valid() || !s.Domain.IsScheduled() {
			return fmt.Errorf("%w: session domain %q", ErrMalformedOutput, s.Domain)
		}
		if s.DayOfWeek < startDay || s.DayOfWeek > 6 {
			return fmt.Errorf("%w: dayOfWeek %d outside window [%d, 6]", ErrMalformedOutput, s.DayOfWeek, startDay)
		}
		if s.Title == "" {
			return fmt.Errorf("%w: session without title", ErrMalformedOutput)
		}
	}
	return nil
}
