// Package character defines the character snapshot assembled from persistent
// facets and the query plans that select which facets a caller needs.
package character

// Scope selects which facets the Assembler loads.
type Scope string

const (
	ScopeFull        Scope = "full"
	ScopeCombats     Scope = "combats"
	ScopeStatus      Scope = "status"
	ScopeInventory   Scope = "inventory"
	ScopeExploration Scope = "exploration"
)

var queryPlans = map[Scope][]Facet{
	ScopeFull:        {FacetAttributes, FacetInventory, FacetSkills, FacetVitals, FacetSymbiote, FacetWallet},
	ScopeCombats:     {FacetAttributes, FacetInventory, FacetSkills, FacetVitals, FacetSymbiote},
	ScopeStatus:      {FacetAttributes, FacetVitals, FacetSymbiote},
	ScopeInventory:   {FacetInventory, FacetWallet},
	ScopeExploration: {FacetAttributes, FacetSkills, FacetVitals},
}

// PlanFor returns the facets for a scope. Unknown scopes fall back to the
// full plan. The returned slice is a copy.
func PlanFor(scope Scope) []Facet {
	plan, ok := queryPlans[scope]
	if !ok {
		plan = queryPlans[ScopeFull]
	}
	out := make([]Facet, len(plan))
	copy(out, plan)
	return out
}

// Resolve returns the scope that will actually be used for s.
func Resolve(s Scope) Scope {
	if _, ok := queryPlans[s]; ok {
		return s
	}
	return ScopeFull
}
