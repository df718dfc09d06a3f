package planning

import (
	"factory-planner/decision/catalog"
	"factory-planner/decision/resolution"
	planerrors "factory-planner/pkg/errors"
	"factory-planner/pkg/units"
)

// Assignment is a number of buildings of one variant running one recipe.
type Assignment struct {
	Recipe   catalog.RecipeID   `json:"recipe"`
	Building catalog.BuildingID `json:"building"`
	Item     catalog.ItemID     `json:"item"`
	Count    units.Quantity     `json:"count"`
}

// BeltLoad is how many belts one input fills.
type BeltLoad struct {
	Item     catalog.ItemID `json:"item"`
	Quantity units.Quantity `json:"quantity"`
	Belts    units.Quantity `json:"belts"`
}

// Plan is the result of PlanForSet or PlanDeep. Quantities are per Per.
// Levels counts the resolution steps that changed the set.
type Plan struct {
	Per       units.Time                 `json:"per"`
	Levels    int                        `json:"levels"`
	Buildings []Assignment               `json:"buildings"`
	Inputs    resolution.RequirementSet  `json:"inputs"`
	Belt      catalog.BeltID             `json:"belt,omitempty"`
	Belts     []BeltLoad                 `json:"belts,omitempty"`
	Warnings  []*planerrors.PlannerError `json:"warnings,omitempty"`
}

// PlanForSet assigns buildings to every entry of set produced by exactly one
// recipe and returns them with the aggregated inputs of one resolution step.
// "Exactly one provenance recipe" is read as exactly one recipe producing the
// item; the recipes recorded on the entry are not consulted. Primaries get no
// buildings. Items several recipes can produce get none either, with a warning.
func (s *Setup) PlanForSet(set resolution.RequirementSet, per units.Time) (*Plan, error) {
	if !per.IsPositive() {
		return nil, planerrors.NewInvalidTimeError(per.String(), "plan period must be positive")
	}

	steps, err := s.resolver.ResolveOneStepForSet(set)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Per:      per,
		Levels:   1,
		Inputs:   resolution.Inputs(steps),
		Warnings: resolution.Warnings(steps),
	}
	skipped := make(map[catalog.ItemID]bool)
	for _, step := range steps {
		if step.IsPrimary() {
			continue
		}
		item := step.Requirement.Item
		if len(step.Candidates) > 1 {
			if !skipped[item] {
				skipped[item] = true
				plan.Warnings = append(plan.Warnings, s.skipWarning(item, step.Candidates))
			}
			continue
		}

		a, err := s.assign(step, per)
		if err != nil {
			return nil, err
		}
		plan.Buildings = append(plan.Buildings, a)
	}

	if err := s.fillBelts(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// PlanDeep applies PlanForSet level after level until the inputs stop
// changing. Building counts are summed per (recipe, building); Inputs holds
// the primaries left at the end.
func (s *Setup) PlanDeep(set resolution.RequirementSet, per units.Time) (*Plan, error) {
	if err := s.resolver.CheckAcyclic(set); err != nil {
		return nil, err
	}

	total := &Plan{Per: per}
	index := make(map[[2]string]int)
	current := set.Clone()
	var previous resolution.RequirementSet

	for i := 0; i < s.resolver.MaxIterations(); i++ {
		level, err := s.PlanForSet(current, per)
		if err != nil {
			return nil, err
		}
		total.Warnings = append(total.Warnings, level.Warnings...)
		if level.Inputs.Equal(current) {
			total.Levels = i
			total.Inputs = current
			if err := s.fillBelts(total); err != nil {
				return nil, err
			}
			return total, nil
		}

		for _, a := range level.Buildings {
			key := [2]string{string(a.Recipe), string(a.Building)}
			if pos, ok := index[key]; ok {
				total.Buildings[pos].Count = total.Buildings[pos].Count.Add(a.Count)
				continue
			}
			index[key] = len(total.Buildings)
			total.Buildings = append(total.Buildings, a)
		}
		previous, current = current, level.Inputs
	}

	total.Levels = s.resolver.MaxIterations()
	total.Inputs = current
	return total, resolution.NewNonTerminatingError(s.resolver.MaxIterations(), previous, current)
}

func (s *Setup) assign(step resolution.Step, per units.Time) (Assignment, error) {
	item, _ := s.resolver.Catalog().Item(step.Requirement.Item)
	building, err := s.SelectBuilding(step.Recipe, item)
	if err != nil {
		return Assignment{}, err
	}
	count, err := BuildingCount(step.Recipe, item.ID, step.Requirement.Quantity, building, per)
	if err != nil {
		return Assignment{}, err
	}
	return Assignment{
		Recipe:   step.Recipe.ID,
		Building: building.ID,
		Item:     item.ID,
		Count:    count,
	}, nil
}

func (s *Setup) skipWarning(item catalog.ItemID, candidates []catalog.RecipeID) *planerrors.PlannerError {
	names := make([]string, len(candidates))
	for i, id := range candidates {
		names[i] = string(id)
	}
	w := planerrors.NewAmbiguousRecipeError(string(item), names, planerrors.SeverityWarning)
	w.Message += "; no buildings assigned"
	s.logger.Warn().
		Str("code", w.Code).
		Str("item", string(item)).
		Strs("recipes", names).
		Msg("skipping building assignment")
	return w
}

func (s *Setup) fillBelts(plan *Plan) error {
	if s.belt == nil {
		return nil
	}
	loads, err := BeltsFor(plan.Inputs, plan.Per, s.belt)
	if err != nil {
		return err
	}
	plan.Belt = s.belt.ID
	plan.Belts = loads
	return nil
}

// BeltsFor returns, for every entry of set, how many belts carry its
// quantity when that quantity is delivered every per.
func BeltsFor(set resolution.RequirementSet, per units.Time, belt *catalog.Belt) ([]BeltLoad, error) {
	capacity, err := belt.Throughput.During(per)
	if err != nil {
		return nil, err
	}
	loads := make([]BeltLoad, 0, len(set))
	for _, r := range set {
		loads = append(loads, BeltLoad{
			Item:     r.Item,
			Quantity: r.Quantity,
			Belts:    r.Quantity.Div(capacity),
		})
	}
	return loads, nil
}
