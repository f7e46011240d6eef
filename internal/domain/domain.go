package domain

// Domain is one of the five fixed coaching categories. The set is closed;
// there is no dynamic registration.
type Domain string

const (
	DomainCardio      Domain = "cardio"
	DomainStrength    Domain = "strength"
	DomainMindfulness Domain = "mindfulness"
	DomainNutrition   Domain = "nutrition"
	DomainSleep       Domain = "sleep"
)

// AllDomains returns the fixed domain set in presentation order.
func AllDomains() []Domain {
	return []Domain{DomainCardio, DomainStrength, DomainMindfulness, DomainNutrition, DomainSleep}
}

// IsScheduled reports whether the domain produces discrete planned sessions.
func (d Domain) IsScheduled() bool {
	return d == DomainCardio || d == DomainStrength || d == DomainMindfulness
}

// IsTracked reports whether the domain is measured via daily logged values
// against a target rather than sessions.
func (d Domain) IsTracked() bool {
	return d == DomainNutrition || d == DomainSleep
}

// Valid reports whether d is a member of the closed domain set.
func (d Domain) Valid() bool {
	switch d {
	case DomainCardio, DomainStrength, DomainMindfulness, DomainNutrition, DomainSleep:
		return true
	}
	return false
}
