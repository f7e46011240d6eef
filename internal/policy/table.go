package policy

import "peakform/coach-app/internal/domain"

// Subtype identifiers, normalized form (lowercase, separators stripped).
const (
	SubtypeZone2      = "zone2"
	SubtypeZone5      = "zone5"
	SubtypeFullBody   = "fullbody"
	SubtypeMeditation = "meditation"
	SubtypeBreathwork = "breathwork"
)

// Logical field names checked by the structural-field rule.
const (
	FieldWarmup   = "warmup"
	FieldCooldown = "cooldown"
)

var defaultTable = &Table{policies: map[domain.Domain]DomainPolicy{
	domain.DomainCardio: {
		Domain: domain.DomainCardio,
		Goals: []VolumeGoal{
			{Metric: "weekly cardio volume", Target: 180, Unit: "min"},
		},
		SessionRules: []SessionRule{
			{
				Subtype:        SubtypeZone2,
				MinDurationMin: 45,
				MaxDurationMin: 120,
				MinPerWeek:     2,
				MaxPerWeek:     4,
				Constraints:    "conversational pace, nasal breathing possible throughout",
			},
			{
				Subtype:        SubtypeZone5,
				MinDurationMin: 20,
				MaxDurationMin: 30,
				MinPerWeek:     0,
				MaxPerWeek:     1,
				Constraints:    "short intervals near maximum effort, full recovery between repeats",
			},
		},
		Share: &ShareRule{Subtype: SubtypeZone2, MinShare: 0.70, Tolerance: 0.01},
		PromptFragments: []string{
			"Cardio is built around a large low-intensity base: at least 70% of weekly cardio minutes must be Zone 2.",
			"Zone 2 sessions are 45-120 minutes at conversational pace, 2-4 per week.",
			"At most one Zone 5 interval session per week, 20-30 minutes including recovery.",
		},
	},
	domain.DomainStrength: {
		Domain: domain.DomainStrength,
		Goals: []VolumeGoal{
			{Metric: "weekly strength sessions", Target: 2, Unit: "sessions"},
		},
		SessionRules: []SessionRule{
			{
				Subtype:        SubtypeFullBody,
				MinDurationMin: 30,
				MaxDurationMin: 75,
				MinPerWeek:     2,
				MaxPerWeek:     3,
				Constraints:    "compound movements first, leave 1-2 reps in reserve",
			},
		},
		RequiredFields: []string{FieldWarmup, FieldCooldown},
		PromptFragments: []string{
			"Strength work is 2-3 full-body sessions of 30-75 minutes per week.",
			"Every strength session must declare an explicit warm-up and cool-down block.",
		},
	},
	domain.DomainMindfulness: {
		Domain: domain.DomainMindfulness,
		Goals: []VolumeGoal{
			{Metric: "weekly mindfulness minutes", Target: 60, Unit: "min"},
		},
		SessionRules: []SessionRule{
			{
				Subtype:        SubtypeMeditation,
				MinDurationMin: 10,
				MaxDurationMin: 45,
				MinPerWeek:     3,
				MaxPerWeek:     7,
				Constraints:    "seated or lying practice, guided is fine",
			},
			{
				Subtype:        SubtypeBreathwork,
				MinDurationMin: 5,
				MaxDurationMin: 20,
				MinPerWeek:     0,
				MaxPerWeek:     7,
				Constraints:    "slow-paced breathing, never while driving",
			},
		},
		PromptFragments: []string{
			"Mindfulness is 3-7 short sessions per week; meditation sessions are at least 10 minutes.",
		},
	},
	domain.DomainNutrition: {
		Domain: domain.DomainNutrition,
		Goals: []VolumeGoal{
			{Metric: "daily protein", Target: 1.8, Unit: "g/kg bodyweight"},
		},
		PromptFragments: []string{
			"Nutrition is tracked daily against calorie and protein targets, not scheduled as sessions.",
		},
	},
	domain.DomainSleep: {
		Domain: domain.DomainSleep,
		Goals: []VolumeGoal{
			{Metric: "nightly sleep", Target: 8, Unit: "hours"},
		},
		PromptFragments: []string{
			"Sleep is tracked nightly against an hours target, not scheduled as sessions.",
		},
	},
}}

// DefaultTable returns the fixed policy table. Callers must treat it as
// read-only.
func DefaultTable() *Table {
	return defaultTable
}
