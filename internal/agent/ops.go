package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"peakform/coach-app/internal/domain"
	"peakform/coach-app/internal/repository"
	"peakform/coach-app/internal/service"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BuildCatalog wires the plan lifecycle operations and read-only views into a
// catalog. Every handler converts its result to a plain renderable record.
func BuildCatalog(plans service.PlanService, contextRepo repository.ContextItemRepository) *Catalog {
	c := NewCatalog()

	mustRegister(c, Operation{
		Name:        "get_current_plan",
		Description: "Get the active weekly plan and its sessions for the current week.",
		Parameters:  objectSchema(nil, nil),
		Handle: func(ctx context.Context, userID primitive.ObjectID, args map[string]any) (map[string]any, error) {
			view, err := plans.ActivePlan(ctx, userID, time.Now().UTC())
			if err != nil {
				return nil, err
			}
			return asMap(view)
		},
	})

	mustRegister(c, Operation{
		Name:        "get_weekly_progress",
		Description: "Get per-domain completed/total counts and completion rate for the current week.",
		Parameters:  objectSchema(nil, nil),
		Handle: func(ctx context.Context, userID primitive.ObjectID, args map[string]any) (map[string]any, error) {
			progress, err := plans.Progress(ctx, userID, time.Now().UTC())
			if err != nil {
				return nil, err
			}
			return asMap(progress)
		},
	})

	mustRegister(c, Operation{
		Name: "generate_week_plan",
		Description: "Generate a weekly plan. Set draft=true to let the user review before it replaces " +
			"the current plan. Set start_from_date (YYYY-MM-DD) for a mid-week replan that keeps completed work.",
		Parameters: objectSchema(map[string]any{
			"draft":            map[string]any{"type": "boolean"},
			"planning_context": map[string]any{"type": "string", "description": "free-text scheduling constraints for this week"},
			"start_from_date":  map[string]any{"type": "string", "description": "YYYY-MM-DD; regenerate only from this date on"},
		}, nil),
		Handle: func(ctx context.Context, userID primitive.ObjectID, args map[string]any) (map[string]any, error) {
			opts := service.GenerateOptions{
				Draft:           boolArg(args, "draft"),
				PlanningContext: strArg(args, "planning_context"),
			}
			weekStart := time.Now().UTC()
			if from, ok, err := dateArg(args, "start_from_date"); err != nil {
				return nil, err
			} else if ok {
				opts.StartFromDate = &from
				weekStart = from
			}
			result, err := plans.Generate(ctx, userID, weekStart, opts)
			if err != nil {
				return nil, err
			}
			return asMap(result)
		},
	})

	mustRegister(c, Operation{
		Name:        "confirm_plan",
		Description: "Confirm a draft plan, making it this week's active plan.",
		Parameters: objectSchema(map[string]any{
			"plan_id": map[string]any{"type": "string"},
		}, []string{"plan_id"}),
		Handle: func(ctx context.Context, userID primitive.ObjectID, args map[string]any) (map[string]any, error) {
			planID, err := objectIDArg(args, "plan_id")
			if err != nil {
				return nil, err
			}
			plan, err := plans.Confirm(ctx, userID, planID)
			if err != nil {
				return nil, err
			}
			return asMap(plan)
		},
	})

	mustRegister(c, Operation{
		Name:        "complete_session",
		Description: "Mark a session as completed, optionally recording what was actually done.",
		Parameters: objectSchema(map[string]any{
			"session_id":       map[string]any{"type": "string"},
			"completed_detail": map[string]any{"type": "object", "description": "actual duration, load, notes"},
		}, []string{"session_id"}),
		Handle: func(ctx context.Context, userID primitive.ObjectID, args map[string]any) (map[string]any, error) {
			sessionID, err := objectIDArg(args, "session_id")
			if err != nil {
				return nil, err
			}
			result, err := plans.Complete(ctx, userID, sessionID, detailArg(args, "completed_detail"))
			if err != nil {
				return nil, err
			}
			return asMap(result)
		},
	})

	mustRegister(c, Operation{
		Name:        "adapt_session",
		Description: "Skip, reschedule (new_date YYYY-MM-DD) or modify (patch merged into detail) a session.",
		Parameters: objectSchema(map[string]any{
			"session_id": map[string]any{"type": "string"},
			"action":     map[string]any{"type": "string", "enum": []string{"skip", "reschedule", "modify"}},
			"new_date":   map[string]any{"type": "string"},
			"patch":      map[string]any{"type": "object"},
			"title":      map[string]any{"type": "string"},
		}, []string{"session_id", "action"}),
		Handle: func(ctx context.Context, userID primitive.ObjectID, args map[string]any) (map[string]any, error) {
			sessionID, err := objectIDArg(args, "session_id")
			if err != nil {
				return nil, err
			}
			req := service.AdaptRequest{
				Action: service.AdaptAction(strArg(args, "action")),
				Patch:  detailArg(args, "patch"),
			}
			if newDate, ok, err := dateArg(args, "new_date"); err != nil {
				return nil, err
			} else if ok {
				req.NewDate = &newDate
			}
			if title := strArg(args, "title"); title != "" {
				req.Title = &title
			}
			sess, err := plans.Adapt(ctx, userID, sessionID, req)
			if err != nil {
				return nil, err
			}
			return asMap(sess)
		},
	})

	mustRegister(c, Operation{
		Name:        "log_extra_session",
		Description: "Record an activity the user did outside the plan; it is logged as completed.",
		Parameters: objectSchema(map[string]any{
			"domain": map[string]any{"type": "string", "enum": []string{"cardio", "strength", "mindfulness", "nutrition", "sleep"}},
			"title":  map[string]any{"type": "string"},
			"date":   map[string]any{"type": "string", "description": "YYYY-MM-DD, defaults to today"},
			"detail": map[string]any{"type": "object"},
		}, []string{"domain", "title"}),
		Handle: func(ctx context.Context, userID primitive.ObjectID, args map[string]any) (map[string]any, error) {
			var date *time.Time
			if d, ok, err := dateArg(args, "date"); err != nil {
				return nil, err
			} else if ok {
				date = &d
			}
			sess, err := plans.LogExtra(ctx, userID, domain.Domain(strArg(args, "domain")), strArg(args, "title"), date, detailArg(args, "detail"))
			if err != nil {
				return nil, err
			}
			return asMap(sess)
		},
	})

	mustRegister(c, Operation{
		Name:        "add_context_item",
		Description: "Remember a fact about the user that future plans should respect.",
		Parameters: objectSchema(map[string]any{
			"category":   map[string]any{"type": "string", "enum": []string{"physical", "environment", "equipment", "schedule"}},
			"scope":      map[string]any{"type": "string", "enum": []string{"permanent", "temporary"}},
			"text":       map[string]any{"type": "string"},
			"expires_at": map[string]any{"type": "string", "description": "YYYY-MM-DD, for temporary facts"},
		}, []string{"category", "scope", "text"}),
		Handle: func(ctx context.Context, userID primitive.ObjectID, args map[string]any) (map[string]any, error) {
			item := &domain.UserContextItem{
				UserID:   userID,
				Category: domain.ContextCategory(strArg(args, "category")),
				Scope:    domain.ContextScope(strArg(args, "scope")),
				Source:   domain.SourceConversation,
				Text:     strArg(args, "text"),
			}
			if expires, ok, err := dateArg(args, "expires_at"); err != nil {
				return nil, err
			} else if ok {
				item.ExpiresAt = &expires
			}
			id, err := contextRepo.Create(ctx, item)
			if err != nil {
				return nil, err
			}
			return map[string]any{"id": id.Hex(), "text": item.Text}, nil
		},
	})

	mustRegister(c, Operation{
		Name:        "get_plan_history",
		Description: "List superseded plans from earlier in the coaching relationship, with snapshot download links where archived.",
		Parameters:  objectSchema(nil, nil),
		Handle: func(ctx context.Context, userID primitive.ObjectID, args map[string]any) (map[string]any, error) {
			entries, err := plans.History(ctx, userID)
			if err != nil {
				return nil, err
			}
			payload, err := asSlice(entries)
			if err != nil {
				return nil, err
			}
			return map[string]any{"plans": payload}, nil
		},
	})

	mustRegister(c, Operation{
		Name:        "list_context_items",
		Description: "List the remembered facts about the user.",
		Parameters:  objectSchema(nil, nil),
		Handle: func(ctx context.Context, userID primitive.ObjectID, args map[string]any) (map[string]any, error) {
			items, err := contextRepo.GetByUserID(ctx, userID)
			if err != nil {
				return nil, err
			}
			payload, err := asSlice(items)
			if err != nil {
				return nil, err
			}
			return map[string]any{"items": payload}, nil
		},
	})

	return c
}

func mustRegister(c *Catalog, op Operation) {
	if err := c.Register(op); err != nil {
		panic(err) // static catalog, a duplicate is a programming error
	}
}

// === Argument helpers ===

func objectSchema(properties map[string]any, required []string) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func strArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func boolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func detailArg(args map[string]any, key string) domain.SessionDetail {
	m, _ := args[key].(map[string]any)
	if len(m) == 0 {
		return nil
	}
	return domain.SessionDetail(m)
}

func dateArg(args map[string]any, key string) (time.Time, bool, error) {
	s := strArg(args, key)
	if s == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%s must be YYYY-MM-DD: %v", key, err)
	}
	return t.UTC(), true, nil
}

func objectIDArg(args map[string]any, key string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strArg(args, key))
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%s is not a valid id", key)
	}
	return id, nil
}

// asMap converts a structured result into a plain map via JSON, so every
// operation output is directly renderable.
func asMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func asSlice(v any) ([]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out []any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
