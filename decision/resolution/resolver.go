// Package resolution turns requested items into the raw materials they need.
//
// A Resolver substitutes one recipe level at a time (ResolveOneStep), iterates
// that substitution to a fixed point (ResolveDeep) and can expand the same
// substitutions into a provenance tree (BuildTree). All operations read the
// catalog only and allocate fresh requirement sets, so one Resolver may serve
// concurrent callers.
package resolution

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"factory-planner/decision/catalog"
	planerrors "factory-planner/pkg/errors"
	"factory-planner/pkg/units"
)

// AmbiguityPolicy decides what to do when several recipes produce an item.
type AmbiguityPolicy string

const (
	// PickFirst warns and uses the first declared recipe.
	PickFirst AmbiguityPolicy = "pick-first"
	// PickBySpeed warns and uses the recipe with the shortest time per unit of the item.
	PickBySpeed AmbiguityPolicy = "pick-by-speed"
	// Fail aborts the resolution with an AMBIGUOUS_RECIPE error.
	Fail AmbiguityPolicy = "fail"
)

// ParseAmbiguityPolicy reads a policy name.
func ParseAmbiguityPolicy(s string) (AmbiguityPolicy, error) {
	switch p := AmbiguityPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PickFirst, PickBySpeed, Fail:
		return p, nil
	case "":
		return PickFirst, nil
	default:
		return "", fmt.Errorf("unknown ambiguity policy %q (want %s, %s or %s)", s, PickFirst, PickBySpeed, Fail)
	}
}

// DefaultMaxIterations caps ResolveDeep.
const DefaultMaxIterations = 1000

// Resolver resolves requirements against a catalog.
type Resolver struct {
	catalog       *catalog.Catalog
	policy        AmbiguityPolicy
	maxIterations int
	logger        zerolog.Logger
}

// NewResolver creates a resolver using PickFirst and the default iteration cap.
func NewResolver(cat *catalog.Catalog) *Resolver {
	return &Resolver{
		catalog:       cat,
		policy:        PickFirst,
		maxIterations: DefaultMaxIterations,
		logger:        zerolog.Nop(),
	}
}

// WithPolicy sets the ambiguity policy.
func (r *Resolver) WithPolicy(p AmbiguityPolicy) *Resolver {
	r.policy = p
	return r
}

// WithMaxIterations sets the fixed-point iteration cap. Values below 1 are ignored.
func (r *Resolver) WithMaxIterations(n int) *Resolver {
	if n > 0 {
		r.maxIterations = n
	}
	return r
}

// WithLogger routes surfaced warnings to logger.
func (r *Resolver) WithLogger(logger zerolog.Logger) *Resolver {
	r.logger = logger
	return r
}

func (r *Resolver) Catalog() *catalog.Catalog { return r.catalog }
func (r *Resolver) Policy() AmbiguityPolicy  { return r.policy }
func (r *Resolver) MaxIterations() int       { return r.maxIterations }

// Step is the outcome of resolving one requirement by a single recipe level.
// Recipe is the producing recipe chosen, nil for primaries; Candidates lists
// every recipe producing the item.
type Step struct {
	Requirement Requirement              `json:"requirement"`
	Recipe      *catalog.Recipe          `json:"-"`
	Candidates  []catalog.RecipeID       `json:"candidates,omitempty"`
	Inputs      RequirementSet           `json:"inputs"`
	Warning     *planerrors.PlannerError `json:"warning,omitempty"`
}

// IsPrimary reports whether no recipe produces the requirement's item.
func (s Step) IsPrimary() bool {
	return s.Recipe == nil
}

// ResolveOneStep substitutes req by the inputs of its producing recipe, scaled
// to the requested quantity and tagged with that recipe. A requirement no
// recipe produces comes back unchanged, as the only input.
func (r *Resolver) ResolveOneStep(req Requirement) (Step, error) {
	return r.resolveOne(req, nil)
}

// ResolveOneStepForSet resolves every entry of set independently, without
// merging the results. An ambiguity warning is attached to the first step
// for the item only.
func (r *Resolver) ResolveOneStepForSet(set RequirementSet) ([]Step, error) {
	warned := make(map[catalog.ItemID]bool)
	steps := make([]Step, 0, len(set))
	for _, req := range set {
		step, err := r.resolveOne(req, warned)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func (r *Resolver) resolveOne(req Requirement, warned map[catalog.ItemID]bool) (Step, error) {
	if _, ok := r.catalog.Item(req.Item); !ok {
		return Step{}, planerrors.NewUnknownItemError(string(req.Item))
	}

	step := Step{Requirement: req.Clone()}
	candidates := r.catalog.RecipesFor(req.Item)
	if len(candidates) == 0 {
		step.Inputs = RequirementSet{req.Clone()}
		return step, nil
	}

	recipe, warning, err := r.choose(req.Item, candidates)
	if err != nil {
		return Step{}, err
	}
	if warning != nil && !warned[req.Item] {
		if warned != nil {
			warned[req.Item] = true
		}
		step.Warning = warning
		r.logger.Warn().
			Str("code", warning.Code).
			Str("item", string(req.Item)).
			Str("chosen", string(recipe.ID)).
			Msg(warning.Message)
	}

	step.Recipe = recipe
	step.Candidates = recipeIDs(candidates)
	step.Inputs = make(RequirementSet, 0, len(recipe.Inputs))
	outCount := recipe.OutputCount(req.Item)
	for _, in := range recipe.Inputs {
		step.Inputs = append(step.Inputs, Requirement{
			Item:     in.Item,
			Quantity: units.NewQuantity(in.Count).Mul(req.Quantity).Div(outCount),
			Recipes:  []catalog.RecipeID{recipe.ID},
		})
	}
	return step, nil
}

// choose applies the ambiguity policy. The warning is nil when only one recipe matches.
func (r *Resolver) choose(item catalog.ItemID, candidates []*catalog.Recipe) (*catalog.Recipe, *planerrors.PlannerError, error) {
	if len(candidates) == 1 {
		return candidates[0], nil, nil
	}

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = string(c.ID)
	}

	switch r.policy {
	case Fail:
		return nil, nil, planerrors.NewAmbiguousRecipeError(string(item), names, planerrors.SeverityError)
	case PickBySpeed:
		var bestCost units.Quantity
		best := candidates[0]
		for i, c := range candidates {
			ticks, err := c.Duration.Ticks()
			if err != nil {
				return nil, nil, err
			}
			cost := ticks.Div(c.OutputCount(item))
			if i == 0 || cost.LessThan(bestCost) {
				best, bestCost = c, cost
			}
		}
		return best, planerrors.NewAmbiguousRecipeError(string(item), names, planerrors.SeverityWarning), nil
	default:
		return candidates[0], planerrors.NewAmbiguousRecipeError(string(item), names, planerrors.SeverityWarning), nil
	}
}

func recipeIDs(recipes []*catalog.Recipe) []catalog.RecipeID {
	ids := make([]catalog.RecipeID, len(recipes))
	for i, rc := range recipes {
		ids[i] = rc.ID
	}
	return ids
}

// Warnings collects the warnings attached to steps.
func Warnings(steps []Step) []*planerrors.PlannerError {
	var out []*planerrors.PlannerError
	for _, s := range steps {
		if s.Warning != nil {
			out = append(out, s.Warning)
		}
	}
	return out
}

// Inputs aggregates the inputs of steps into one set.
func Inputs(steps []Step) RequirementSet {
	lists := make([]RequirementSet, len(steps))
	for i, s := range steps {
		lists[i] = s.Inputs
	}
	return Aggregate(lists...)
}
