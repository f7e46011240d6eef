// Package planner is the boundary to the plan-generating collaborator. The
// collaborator's output is untrusted: the plan service always runs it through
// the constraint validator before anything is persisted.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"peakform/coach-app/internal/domain"
	"peakform/coach-app/internal/policy"
)

// ErrMalformedOutput indicates the collaborator returned output that does not
// parse into a plan. Callers surface this as an upstream failure with no
// partial writes.
var ErrMalformedOutput = errors.New("plan generator returned malformed output")

// GeneratedSession is one proposed session from the collaborator.
type GeneratedSession struct {
	Domain    domain.Domain        `json:"domain"`
	DayOfWeek int                  `json:"dayOfWeek"`
	Title     string               `json:"title"`
	Detail    domain.SessionDetail `json:"detail"`
	SortOrder int                  `json:"sortOrder"`
}

// Result is the collaborator's full response for one generation request.
type Result struct {
	IntroMessage string             `json:"introMessage"`
	Sessions     []GeneratedSession `json:"sessions"`
}

// Request carries everything a generation call may consult.
type Request struct {
	Profile         *domain.User
	ContextItems    []domain.UserContextItem // pre-filtered: expired items never reach the planner
	PlanningContext string                   // optional scheduling context from the caller
	WeekStart       time.Time
	StartDay        int // 0 = full week; >0 scopes generation to [StartDay, 6] for a mid-week replan
}

// Generator produces a proposed session set for one week.
type Generator interface {
	GeneratePlan(ctx context.Context, req Request) (*Result, error)
}

// BuildBrief assembles the policy brief handed to the collaborator: the
// prompt fragments of every domain, the profile numbers, the user's context
// facts and the generation window.
func BuildBrief(table *policy.Table, req Request) string {
	var b strings.Builder

	b.WriteString("Coaching policy (non-negotiable):\n")
	for _, d := range domain.AllDomains() {
		pol, ok := table.For(d)
		if !ok {
			continue
		}
		for _, frag := range pol.PromptFragments {
			fmt.Fprintf(&b, "- [%s] %s\n", d, frag)
		}
	}

	if p := req.Profile; p != nil {
		b.WriteString("\nUser profile:\n")
		if p.AgeYears > 0 {
			fmt.Fprintf(&b, "- age: %d\n", p.AgeYears)
		}
		if p.WeightKg > 0 {
			fmt.Fprintf(&b, "- weight: %.1f kg\n", p.WeightKg)
		}
		if p.HeightCm > 0 {
			fmt.Fprintf(&b, "- height: %.0f cm\n", p.HeightCm)
		}
		for key, val := range p.Baselines {
			fmt.Fprintf(&b, "- %s: %v\n", key, val)
		}
	}

	if len(req.ContextItems) > 0 {
		b.WriteString("\nUser context:\n")
		for _, item := range req.ContextItems {
			fmt.Fprintf(&b, "- (%s) %s\n", item.Category, item.Text)
		}
	}

	fmt.Fprintf(&b, "\nWeek starting %s.", req.WeekStart.Format("2006-01-02"))
	if req.StartDay > 0 {
		fmt.Fprintf(&b, " Plan only days %d through 6; earlier days are already settled.", req.StartDay)
	}
	if req.PlanningContext != "" {
		fmt.Fprintf(&b, "\nScheduling context: %s", req.PlanningContext)
	}

	return b.String()
}
