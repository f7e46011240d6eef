// Package agent is the boundary between the natural-language reasoning
// process and the planning core: a catalog of named operations, and a
// function-calling loop that dispatches to them with per-user serialization
// and a hard cap on chained calls.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Handler executes one operation for one user with validated arguments.
type Handler func(ctx context.Context, userID primitive.ObjectID, args map[string]any) (map[string]any, error)

// Operation is one named, describable entry of the catalog.
type Operation struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema of the arguments
	Handle      Handler
}

// Catalog is the registry of operations exposed to the reasoning process.
type Catalog struct {
	ops   map[string]Operation
	order []string
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{ops: make(map[string]Operation)}
}

// Register adds an operation. Duplicate names are rejected.
func (c *Catalog) Register(op Operation) error {
	if op.Name == "" {
		return fmt.Errorf("operation name cannot be empty")
	}
	if op.Handle == nil {
		return fmt.Errorf("operation %q has no handler", op.Name)
	}
	if _, exists := c.ops[op.Name]; exists {
		return fmt.Errorf("operation %q already registered", op.Name)
	}
	c.ops[op.Name] = op
	c.order = append(c.order, op.Name)
	return nil
}

// Names returns the registered operation names in registration order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Tools renders the catalog as function definitions for the chat API.
func (c *Catalog) Tools() []openai.Tool {
	tools := make([]openai.Tool, 0, len(c.order))
	for _, name := range c.order {
		op := c.ops[name]
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        op.Name,
				Description: op.Description,
				Parameters:  op.Parameters,
			},
		})
	}
	return tools
}

// Execute runs one operation and always returns a renderable payload: a
// failing operation yields {"error": ...} rather than an error, so the
// orchestration loop can continue and still produce a user-visible response.
func (c *Catalog) Execute(ctx context.Context, userID primitive.ObjectID, name, rawArgs string) map[string]any {
	op, ok := c.ops[name]
	if !ok {
		return map[string]any{"error": fmt.Sprintf("unknown operation %q", name)}
	}

	args := map[string]any{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return map[string]any{"error": fmt.Sprintf("invalid arguments for %s: %v", name, err)}
		}
	}

	out, err := op.Handle(ctx, userID, args)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	if out == nil {
		out = map[string]any{"ok": true}
	}
	return out
}
