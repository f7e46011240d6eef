package validator

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"peakform/coach-app/internal/domain"
)

// Generated session details are untrusted: the same logical attribute arrives
// under several near-synonymous field names, and numeric values arrive as
// numbers or strings ("zone": 2 vs "zone": "Zone 2"). Resolution is an ordered
// alias list per logical attribute with one normalize function each, so the
// tolerance lives here and nowhere else.

var durationAliases = []string{"durationMinutes", "duration", "minutes", "durationMin", "lengthMinutes"}

var zoneAliases = []string{"zone", "intensity", "intensityZone"}

var subtypeAliases = []string{"type", "subtype", "style", "kind"}

// Duration resolves a session's planned duration in minutes from the detail
// payload. Returns false when no alias carries a parseable value.
func Duration(detail domain.SessionDetail) (int, bool) {
	for _, key := range durationAliases {
		if v, ok := lookup(detail, key); ok {
			if n, ok := asMinutes(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}

// Zone resolves a cardio intensity zone as an integer. Accepts 2, 2.0, "2",
// "Zone 2", "zone2" and "Z2" as the same value.
func Zone(detail domain.SessionDetail) (int, bool) {
	for _, key := range zoneAliases {
		if v, ok := lookup(detail, key); ok {
			if n, ok := asZone(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}

// Subtype infers the session subtype in normalized form ("zone2", "fullbody",
// "meditation", ...). Cardio subtypes derive from the zone field; other
// domains declare a type-like field. Returns "" when nothing resolves.
func Subtype(d domain.Domain, detail domain.SessionDetail) string {
	if d == domain.DomainCardio {
		if z, ok := Zone(detail); ok {
			return fmt.Sprintf("zone%d", z)
		}
		return ""
	}
	for _, key := range subtypeAliases {
		if v, ok := lookup(detail, key); ok {
			if s, ok := v.(string); ok && s != "" {
				return normalize(s)
			}
		}
	}
	return ""
}

// HasField reports whether the detail payload declares the logical field under
// any alias spelling with a non-empty value.
func HasField(detail domain.SessionDetail, logical string) bool {
	for k, v := range detail {
		if normalize(k) != logical {
			continue
		}
		switch x := v.(type) {
		case nil:
			return false
		case string:
			return strings.TrimSpace(x) != ""
		default:
			return true
		}
	}
	return false
}

// lookup matches a detail key against an alias, tolerating spelling variants
// of the alias itself (warmUp vs warm_up).
func lookup(detail domain.SessionDetail, alias string) (any, bool) {
	want := normalize(alias)
	for k, v := range detail {
		if normalize(k) == want {
			return v, true
		}
	}
	return nil, false
}

// normalize lowers the string and strips separators so "Warm Up", "warm_up"
// and "warmUp" compare equal.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r == ' ' || r == '-' || r == '_' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func asMinutes(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, x > 0
	case int32:
		return int(x), x > 0
	case int64:
		return int(x), x > 0
	case float64:
		if x > 0 && x == math.Trunc(x) {
			return int(x), true
		}
		return 0, false
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(x), "min"))
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n, true
		}
		return 0, false
	default:
		return 0, false
	}
}

func asZone(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, x > 0
	case int32:
		return int(x), x > 0
	case int64:
		return int(x), x > 0
	case float64:
		if x > 0 && x == math.Trunc(x) {
			return int(x), true
		}
		return 0, false
	case string:
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, x)
		if n, err := strconv.Atoi(digits); err == nil && n > 0 {
			return n, true
		}
		return 0, false
	default:
		return 0, false
	}
}
