package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func echoOp(name string) Operation {
	return Operation{
		Name:        name,
		Description: "echoes its arguments",
		Parameters:  objectSchema(nil, nil),
		Handle: func(_ context.Context, _ primitive.ObjectID, args map[string]any) (map[string]any, error) {
			return args, nil
		},
	}
}

func TestRegisterRejectsDuplicatesAndInvalidOps(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register(echoOp("echo")))
	assert.Error(t, c.Register(echoOp("echo")))
	assert.Error(t, c.Register(Operation{Name: "", Handle: echoOp("x").Handle}))
	assert.Error(t, c.Register(Operation{Name: "no_handler"}))
	assert.Equal(t, []string{"echo"}, c.Names())
}

func TestToolsPreserveRegistrationOrder(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register(echoOp("first")))
	require.NoError(t, c.Register(echoOp("second")))

	tools := c.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, "first", tools[0].Function.Name)
	assert.Equal(t, "second", tools[1].Function.Name)
	assert.Equal(t, "echoes its arguments", tools[0].Function.Description)
}

func TestExecuteNeverReturnsAnError(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register(echoOp("echo")))
	require.NoError(t, c.Register(Operation{
		Name: "fails",
		Handle: func(context.Context, primitive.ObjectID, map[string]any) (map[string]any, error) {
			return nil, errors.New("storage unavailable")
		},
	}))
	require.NoError(t, c.Register(Operation{
		Name: "silent",
		Handle: func(context.Context, primitive.ObjectID, map[string]any) (map[string]any, error) {
			return nil, nil
		},
	}))
	user := primitive.NewObjectID()

	out := c.Execute(context.Background(), user, "echo", `{"k":"v"}`)
	assert.Equal(t, map[string]any{"k": "v"}, out)

	out = c.Execute(context.Background(), user, "echo", "")
	assert.Equal(t, map[string]any{}, out)

	out = c.Execute(context.Background(), user, "echo", `{broken`)
	assert.Contains(t, out["error"], "invalid arguments")

	out = c.Execute(context.Background(), user, "fails", "{}")
	assert.Equal(t, "storage unavailable", out["error"])

	out = c.Execute(context.Background(), user, "silent", "{}")
	assert.Equal(t, map[string]any{"ok": true}, out)

	out = c.Execute(context.Background(), user, "missing_op", "{}")
	assert.Contains(t, out["error"], "unknown operation")
}

func TestBuildCatalogRegistersPlanLifecycle(t *testing.T) {
	// The concrete handlers are exercised through the plan service tests; here
	// we pin the catalog surface the model sees.
	c := BuildCatalog(nil, nil)
	assert.Equal(t, []string{
		"get_current_plan",
		"get_weekly_progress",
		"generate_week_plan",
		"confirm_plan",
		"complete_session",
		"adapt_session",
		"log_extra_session",
		"add_context_item",
		"get_plan_history",
		"list_context_items",
	}, c.Names())
}
