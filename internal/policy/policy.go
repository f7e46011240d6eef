// Package policy holds the fixed, non-negotiable rule set per coaching domain.
// The table is read-only at runtime: it is consulted by the constraint
// validator and its prompt fragments brief the plan generator.
package policy

import (
	"fmt"

	"peakform/coach-app/internal/domain"
)

// VolumeGoal is a weekly volume target for a domain (metric, target, unit).
type VolumeGoal struct {
	Metric string
	Target float64
	Unit   string
}

// SessionRule constrains one session subtype within a domain.
// A MaxPerWeek of 0 means no upper bound.
type SessionRule struct {
	Subtype        string
	MinDurationMin int
	MaxDurationMin int
	MinPerWeek     int
	MaxPerWeek     int
	Constraints    string // free-text guidance, surfaced to the generator only
}

// ShareRule requires a subtype to make up at least MinShare of the domain's
// summed weekly duration. Tolerance absorbs rounding on the computed ratio.
type ShareRule struct {
	Subtype   string
	MinShare  float64
	Tolerance float64
}

// DomainPolicy is the full rule set for one domain.
type DomainPolicy struct {
	Domain          domain.Domain
	Goals           []VolumeGoal
	SessionRules    []SessionRule
	RequiredFields  []string // logical per-session fields every session must declare (alias-tolerant)
	Share           *ShareRule
	PromptFragments []string
}

// Table is the immutable per-domain policy registry.
type Table struct {
	policies map[domain.Domain]DomainPolicy
}

// For returns the policy for d, if one exists.
func (t *Table) For(d domain.Domain) (DomainPolicy, bool) {
	p, ok := t.policies[d]
	return p, ok
}

// Scheduled returns the policies of all scheduled-session domains, in the
// fixed domain order.
func (t *Table) Scheduled() []DomainPolicy {
	var out []DomainPolicy
	for _, d := range domain.AllDomains() {
		if !d.IsScheduled() {
			continue
		}
		if p, ok := t.policies[d]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Rule returns the rule for a subtype within a domain, if one is defined.
func (p DomainPolicy) Rule(subtype string) (SessionRule, bool) {
	for _, r := range p.SessionRules {
		if r.Subtype == subtype {
			return r, true
		}
	}
	return SessionRule{}, false
}

// Validate checks the structural invariants of the table: every
// scheduled-session domain carries at least one session rule, and frequency
// bounds are non-negative with min <= max.
func (t *Table) Validate() error {
	for _, d := range domain.AllDomains() {
		p, ok := t.policies[d]
		if !ok {
			return fmt.Errorf("policy table: no policy for domain %q", d)
		}
		if d.IsScheduled() && len(p.SessionRules) == 0 {
			return fmt.Errorf("policy table: scheduled domain %q has no session rules", d)
		}
		for _, r := range p.SessionRules {
			if r.MinPerWeek < 0 || r.MaxPerWeek < 0 {
				return fmt.Errorf("policy table: %s/%s has negative frequency bound", d, r.Subtype)
			}
			if r.MaxPerWeek > 0 && r.MinPerWeek > r.MaxPerWeek {
				return fmt.Errorf("policy table: %s/%s frequency min %d exceeds max %d", d, r.Subtype, r.MinPerWeek, r.MaxPerWeek)
			}
		}
	}
	return nil
}
