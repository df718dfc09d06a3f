package resolution

import (
	"strings"

	"factory-planner/decision/catalog"
	"factory-planner/pkg/units"
)

// Requirement is a quantity of one item, annotated with the recipes whose
// inputs account for it.
type Requirement struct {
	Item     catalog.ItemID     `json:"item"`
	Quantity units.Quantity     `json:"quantity"`
	Recipes  []catalog.RecipeID `json:"recipes,omitempty"`
}

// NewRequirement builds an unannotated requirement.
func NewRequirement(item catalog.ItemID, quantity units.Quantity) Requirement {
	return Requirement{Item: item, Quantity: quantity}
}

// Clone returns a copy that shares no memory with r.
func (r Requirement) Clone() Requirement {
	r.Recipes = append([]catalog.RecipeID(nil), r.Recipes...)
	return r
}

// Equal compares item, quantity and provenance.
func (r Requirement) Equal(other Requirement) bool {
	if r.Item != other.Item || !r.Quantity.Equal(other.Quantity) || len(r.Recipes) != len(other.Recipes) {
		return false
	}
	for i := range r.Recipes {
		if r.Recipes[i] != other.Recipes[i] {
			return false
		}
	}
	return true
}

func (r Requirement) String() string {
	s := r.Quantity.String() + " " + string(r.Item)
	if len(r.Recipes) > 0 {
		ids := make([]string, len(r.Recipes))
		for i, id := range r.Recipes {
			ids[i] = string(id)
		}
		s += " [" + strings.Join(ids, ",") + "]"
	}
	return s
}

// RequirementSet is an ordered list of requirements. After aggregation it
// holds at most one entry per item.
type RequirementSet []Requirement

// At indexes the set, counting from the end for negative i. It reports
// false on an empty set.
func (s RequirementSet) At(i int) (Requirement, bool) {
	n := len(s)
	if n == 0 {
		return Requirement{}, false
	}
	return s[((i%n)+n)%n], true
}

// Equal reports structural equality: same entries, same order.
func (s RequirementSet) Equal(other RequirementSet) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if !s[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// Clone deep-copies the set.
func (s RequirementSet) Clone() RequirementSet {
	if s == nil {
		return nil
	}
	out := make(RequirementSet, len(s))
	for i, r := range s {
		out[i] = r.Clone()
	}
	return out
}

// Quantity returns the total requested for item across all entries.
func (s RequirementSet) Quantity(item catalog.ItemID) units.Quantity {
	var total units.Quantity
	for _, r := range s {
		if r.Item == item {
			total = total.Add(r.Quantity)
		}
	}
	return total
}

// Items lists the items in order of first appearance.
func (s RequirementSet) Items() []catalog.ItemID {
	seen := make(map[catalog.ItemID]bool, len(s))
	out := make([]catalog.ItemID, 0, len(s))
	for _, r := range s {
		if !seen[r.Item] {
			seen[r.Item] = true
			out = append(out, r.Item)
		}
	}
	return out
}

func (s RequirementSet) String() string {
	parts := make([]string, len(s))
	for i, r := range s {
		parts[i] = r.String()
	}
	return "{" + strings.Join(parts, "; ") + "}"
}

// Aggregate merges the sets by item: quantities are summed and provenance is
// unioned, both keeping the order of first appearance. Inputs are not modified.
func Aggregate(sets ...RequirementSet) RequirementSet {
	out := RequirementSet{}
	index := make(map[catalog.ItemID]int)

	for _, set := range sets {
		for _, r := range set {
			pos, ok := index[r.Item]
			if !ok {
				index[r.Item] = len(out)
				out = append(out, r.Clone())
				out[len(out)-1].Recipes = unionRecipes(nil, r.Recipes)
				continue
			}
			merged := &out[pos]
			merged.Quantity = merged.Quantity.Add(r.Quantity)
			merged.Recipes = unionRecipes(merged.Recipes, r.Recipes)
		}
	}
	return out
}

func unionRecipes(into, from []catalog.RecipeID) []catalog.RecipeID {
	for _, id := range from {
		dup := false
		for _, have := range into {
			if have == id {
				dup = true
				break
			}
		}
		if !dup {
			into = append(into, id)
		}
	}
	return into
}
