package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// scriptedChat plays back a fixed sequence of responses and records the
// requests it saw.
type scriptedChat struct {
	mu        sync.Mutex
	responses []openai.ChatCompletionResponse
	requests  []openai.ChatCompletionRequest
	err       error
	block     chan struct{} // when set, the first call blocks until closed
}

func (c *scriptedChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	c.mu.Lock()
	first := len(c.requests) == 0
	c.requests = append(c.requests, req)
	block := c.block
	c.mu.Unlock()

	if block != nil && first {
		select {
		case <-block:
		case <-ctx.Done():
			return openai.ChatCompletionResponse{}, ctx.Err()
		}
	}
	if c.err != nil {
		return openai.ChatCompletionResponse{}, c.err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.responses) == 0 {
		return openai.ChatCompletionResponse{}, errors.New("script exhausted")
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

func textResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
	}}
}

func toolCallResponse(callID, name, args string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleAssistant,
			ToolCalls: []openai.ToolCall{{
				ID:       callID,
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: name, Arguments: args},
			}},
		}},
	}}
}

func testCatalog(executed *[]string) *Catalog {
	c := NewCatalog()
	_ = c.Register(Operation{
		Name:       "get_current_plan",
		Parameters: objectSchema(nil, nil),
		Handle: func(context.Context, primitive.ObjectID, map[string]any) (map[string]any, error) {
			*executed = append(*executed, "get_current_plan")
			return map[string]any{"plan": "here"}, nil
		},
	})
	return c
}

func newTestLoop(chat chatClient, catalog *Catalog, maxCalls int) *Loop {
	return NewLoop(chat, "test-model", catalog, maxCalls, 5*time.Second, nil)
}

func TestRunTurnPlainReply(t *testing.T) {
	chat := &scriptedChat{responses: []openai.ChatCompletionResponse{textResponse("All good.")}}
	var executed []string
	loop := newTestLoop(chat, testCatalog(&executed), 4)

	result, err := loop.RunTurn(context.Background(), primitive.NewObjectID(), "how's my week?")
	require.NoError(t, err)
	assert.Equal(t, "All good.", result.Reply)
	assert.Empty(t, result.Results)
	assert.Empty(t, executed)

	// The catalog is advertised on every request.
	require.Len(t, chat.requests, 1)
	require.Len(t, chat.requests[0].Tools, 1)
	assert.Equal(t, "get_current_plan", chat.requests[0].Tools[0].Function.Name)
}

func TestRunTurnExecutesToolCallsThenReplies(t *testing.T) {
	chat := &scriptedChat{responses: []openai.ChatCompletionResponse{
		toolCallResponse("call-1", "get_current_plan", "{}"),
		textResponse("Your plan has 4 sessions."),
	}}
	var executed []string
	loop := newTestLoop(chat, testCatalog(&executed), 4)

	result, err := loop.RunTurn(context.Background(), primitive.NewObjectID(), "what's my plan?")
	require.NoError(t, err)
	assert.Equal(t, "Your plan has 4 sessions.", result.Reply)
	assert.Equal(t, []string{"get_current_plan"}, executed)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "get_current_plan", result.Results[0].Operation)
	assert.Equal(t, map[string]any{"plan": "here"}, result.Results[0].Output)

	// The second request carries the tool result back to the model.
	require.Len(t, chat.requests, 2)
	msgs := chat.requests[1].Messages
	last := msgs[len(msgs)-1]
	assert.Equal(t, openai.ChatMessageRoleTool, last.Role)
	assert.Equal(t, "call-1", last.ToolCallID)
	assert.Contains(t, last.Content, "here")
}

func TestRunTurnStopsAtToolBudget(t *testing.T) {
	chat := &scriptedChat{responses: []openai.ChatCompletionResponse{
		toolCallResponse("call-1", "get_current_plan", "{}"),
		toolCallResponse("call-2", "get_current_plan", "{}"),
		toolCallResponse("call-3", "get_current_plan", "{}"),
	}}
	var executed []string
	loop := newTestLoop(chat, testCatalog(&executed), 2)

	result, err := loop.RunTurn(context.Background(), primitive.NewObjectID(), "loop forever")
	require.NoError(t, err)
	assert.Len(t, executed, 2, "execution stops at the cap")
	assert.NotEmpty(t, result.Reply, "the user still gets a response")
}

func TestRunTurnSerializesPerUser(t *testing.T) {
	block := make(chan struct{})
	chat := &scriptedChat{
		responses: []openai.ChatCompletionResponse{textResponse("done")},
		block:     block,
	}
	var executed []string
	loop := newTestLoop(chat, testCatalog(&executed), 4)
	userID := primitive.NewObjectID()

	firstDone := make(chan error, 1)
	go func() {
		_, err := loop.RunTurn(context.Background(), userID, "first")
		firstDone <- err
	}()

	// Wait until the first turn holds the lock inside the chat call.
	require.Eventually(t, func() bool {
		chat.mu.Lock()
		defer chat.mu.Unlock()
		return len(chat.requests) == 1
	}, time.Second, 5*time.Millisecond)

	_, err := loop.RunTurn(context.Background(), userID, "second")
	assert.ErrorIs(t, err, ErrTurnInProgress)

	// A different user is not blocked by this user's turn.
	otherChat := &scriptedChat{responses: []openai.ChatCompletionResponse{textResponse("hi")}}
	otherLoop := newTestLoop(otherChat, testCatalog(&executed), 4)
	_, err = otherLoop.RunTurn(context.Background(), primitive.NewObjectID(), "hello")
	assert.NoError(t, err)

	close(block)
	require.NoError(t, <-firstDone)

	// The lock is released once the turn finishes.
	_, err = loop.RunTurn(context.Background(), userID, "third")
	assert.Error(t, err, "script is exhausted, but the lock itself is free")
	assert.NotErrorIs(t, err, ErrTurnInProgress)
}

func TestRunTurnPropagatesUpstreamError(t *testing.T) {
	chat := &scriptedChat{err: errors.New("rate limited")}
	var executed []string
	loop := newTestLoop(chat, testCatalog(&executed), 4)

	_, err := loop.RunTurn(context.Background(), primitive.NewObjectID(), "hi")
	assert.ErrorContains(t, err, "rate limited")
}
