package resolution

import (
	"fmt"

	"factory-planner/decision/catalog"
	planerrors "factory-planner/pkg/errors"
)

// Resolution is the sequence of sets produced by ResolveDeep, from the
// request itself to the fixed point.
type Resolution struct {
	Iterations []RequirementSet          `json:"iterations"`
	Warnings   []*planerrors.PlannerError `json:"warnings,omitempty"`
}

// Final returns the last set of the sequence: the primaries once settled.
func (r *Resolution) Final() RequirementSet {
	if r == nil || len(r.Iterations) == 0 {
		return nil
	}
	return r.Iterations[len(r.Iterations)-1]
}

// NonTerminatingError carries the last two sets of a resolution that hit the
// iteration cap.
type NonTerminatingError struct {
	Iterations int
	Previous   RequirementSet
	Last       RequirementSet
}

func (e *NonTerminatingError) Error() string {
	return fmt.Sprintf("no fixed point after %d iterations: %s then %s", e.Iterations, e.Previous, e.Last)
}

// NewNonTerminatingError wraps the last two sets of a capped resolution in a
// NON_TERMINATING_RESOLUTION PlannerError.
func NewNonTerminatingError(iterations int, previous, last RequirementSet) error {
	return planerrors.NewNonTerminatingError(iterations, &NonTerminatingError{
		Iterations: iterations,
		Previous:   previous,
		Last:       last,
	})
}

// ResolveDeep repeats ResolveOneStepForSet and Aggregate until the set stops
// changing. The returned sequence starts with set and ends with the fixed
// point; the repeated set that proved stability is not included.
//
// When the iteration cap is reached the sequence computed so far is returned
// together with a NON_TERMINATING_RESOLUTION error.
func (r *Resolver) ResolveDeep(set RequirementSet) (*Resolution, error) {
	if err := r.CheckAcyclic(set); err != nil {
		return nil, err
	}

	current := set.Clone()
	res := &Resolution{Iterations: []RequirementSet{current}}
	for i := 0; i < r.maxIterations; i++ {
		steps, err := r.ResolveOneStepForSet(current)
		if err != nil {
			return nil, err
		}
		res.Warnings = append(res.Warnings, Warnings(steps)...)

		next := Inputs(steps)
		if next.Equal(current) {
			return res, nil
		}
		res.Iterations = append(res.Iterations, next)
		current = next
	}

	n := len(res.Iterations)
	return res, NewNonTerminatingError(r.maxIterations, res.Iterations[n-2], res.Iterations[n-1])
}

// CheckAcyclic follows the recipes the resolver would choose from every item
// in set and fails with CYCLIC_RECIPE when an item ends up requiring itself.
func (r *Resolver) CheckAcyclic(set RequirementSet) error {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[catalog.ItemID]int)
	var path []catalog.ItemID

	var visit func(item catalog.ItemID) error
	visit = func(item catalog.ItemID) error {
		switch state[item] {
		case done:
			return nil
		case visiting:
			return cycleError(path, item)
		}
		if _, ok := r.catalog.Item(item); !ok {
			return planerrors.NewUnknownItemError(string(item))
		}

		candidates := r.catalog.RecipesFor(item)
		if len(candidates) == 0 {
			state[item] = done
			return nil
		}
		recipe, _, err := r.choose(item, candidates)
		if err != nil {
			return err
		}

		state[item] = visiting
		path = append(path, item)
		for _, in := range recipe.Inputs {
			if err := visit(in.Item); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[item] = done
		return nil
	}

	for _, req := range set {
		if err := visit(req.Item); err != nil {
			return err
		}
	}
	return nil
}

// cycleError reports the part of path that loops back to item.
func cycleError(path []catalog.ItemID, item catalog.ItemID) error {
	start := 0
	for i, p := range path {
		if p == item {
			start = i
			break
		}
	}
	chain := make([]string, 0, len(path)-start+1)
	for _, p := range path[start:] {
		chain = append(chain, string(p))
	}
	chain = append(chain, string(item))
	return planerrors.NewCyclicRecipeError(string(item), chain)
}
