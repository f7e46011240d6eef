// Package validator checks a proposed weekly session set against the policy
// table. Validation is pure: no I/O, no clock, identical verdicts for
// identical inputs. Malformed detail fields count as "rule not satisfied",
// never as a crash.
package validator

import (
	"fmt"
	"math"

	"peakform/coach-app/internal/domain"
	"peakform/coach-app/internal/policy"
)

// Verdict is the result of one validation pass. It is derived, not persisted.
type Verdict struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

// Validate checks sessions against the policy table and returns a verdict
// with one human-readable issue per violation. valid is true iff the issues
// list is empty.
func Validate(sessions []domain.Session, table *policy.Table) Verdict {
	var issues []string

	byDomain := make(map[domain.Domain][]domain.Session)
	for _, s := range sessions {
		byDomain[s.Domain] = append(byDomain[s.Domain], s)
	}

	for _, pol := range table.Scheduled() {
		ds := byDomain[pol.Domain]
		if len(ds) == 0 {
			continue
		}

		counts := make(map[string]int)
		durSums := make(map[string]int)
		totalDur := 0

		for _, s := range ds {
			subtype := Subtype(pol.Domain, s.Detail)
			if subtype != "" {
				counts[subtype]++
			}
			dur, hasDur := Duration(s.Detail)
			if hasDur {
				durSums[subtype] += dur
				totalDur += dur
			}

			if rule, ok := pol.Rule(subtype); ok {
				if rule.MinDurationMin > 0 {
					switch {
					case !hasDur:
						issues = append(issues, fmt.Sprintf(
							"%q has no parseable duration; %s sessions must be at least %d min",
							s.Title, subtype, rule.MinDurationMin))
					case dur < rule.MinDurationMin:
						issues = append(issues, fmt.Sprintf(
							"%q is %d min, below the %d min minimum for %s sessions",
							s.Title, dur, rule.MinDurationMin, subtype))
					}
				}
				if rule.MaxDurationMin > 0 && hasDur && dur > rule.MaxDurationMin {
					issues = append(issues, fmt.Sprintf(
						"%q is %d min, above the %d min maximum for %s sessions",
						s.Title, dur, rule.MaxDurationMin, subtype))
				}
			}

			for _, field := range pol.RequiredFields {
				if !HasField(s.Detail, field) {
					issues = append(issues, fmt.Sprintf("%q is missing a %s", s.Title, field))
				}
			}
		}

		for _, rule := range pol.SessionRules {
			if rule.MaxPerWeek > 0 && counts[rule.Subtype] > rule.MaxPerWeek {
				issues = append(issues, fmt.Sprintf(
					"%d %s sessions planned this week, the cap is %d",
					counts[rule.Subtype], rule.Subtype, rule.MaxPerWeek))
			}
		}

		if pol.Share != nil && totalDur > 0 {
			share := float64(durSums[pol.Share.Subtype]) / float64(totalDur)
			if share+pol.Share.Tolerance < pol.Share.MinShare {
				issues = append(issues, fmt.Sprintf(
					"%s makes up %d%% of weekly %s volume, target is at least %d%%",
					pol.Share.Subtype,
					int(math.Round(share*100)),
					pol.Domain,
					int(math.Round(pol.Share.MinShare*100))))
			}
		}
	}

	return Verdict{Valid: len(issues) == 0, Issues: issues}
}
