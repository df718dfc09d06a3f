package planning_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"factory-planner/decision/catalog"
	"factory-planner/decision/planning"
	"factory-planner/decision/resolution"
	"factory-planner/pkg/units"
)

// widgetCatalog makes 2 widgets from 1 ore every 0.5s. The slow assembler is
// declared last.
const widgetCatalog = `
building_types:
  - id: assemblers
  - id: furnaces
buildings:
  - {id: assembler, type: assemblers, speed: 1, size: [3, 3]}
  - {id: slow_assembler, type: assemblers, speed: 0.5, size: [3, 3]}
  - {id: furnace, type: furnaces, speed: 1, size: [2, 2]}
items:
  - {id: ore}
  - {id: widget, craft_place: assemblers}
  - {id: ingot, craft_place: furnaces}
recipes:
  - {id: widget, inputs: [{item: ore, count: 1}], outputs: [{item: widget, count: 2}], duration: 0.5sec}
  - {id: ingot, inputs: [{item: ore, count: 2}], outputs: [{item: ingot, count: 1}], duration: 2sec}
`

const ambiguousCatalog = `
building_types:
  - id: furnaces
buildings:
  - {id: stone_furnace, type: furnaces, speed: 1, size: [2, 2]}
items:
  - {id: iron_ore}
  - {id: iron_plate, craft_place: furnaces}
recipes:
  - {id: iron_plate, inputs: [{item: iron_ore, count: 1}], outputs: [{item: iron_plate, count: 1}], duration: 3.5sec}
  - {id: iron_plate_fast, inputs: [{item: iron_ore, count: 2}], outputs: [{item: iron_plate, count: 2}], duration: 1sec}
`

const cyclicCatalog = `
building_types:
  - id: assemblers
buildings:
  - {id: assembler, type: assemblers, speed: 1, size: [3, 3]}
items:
  - {id: alpha, craft_place: assemblers}
  - {id: beta, craft_place: assemblers}
recipes:
  - {id: alpha, inputs: [{item: beta, count: 1}], outputs: [{item: alpha, count: 1}], duration: 1sec}
  - {id: beta, inputs: [{item: alpha, count: 1}], outputs: [{item: beta, count: 1}], duration: 1sec}
`

func mustCatalog(t *testing.T, src string) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load(strings.NewReader(src))
	require.NoError(t, err)
	return cat
}

func mustDefault(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return cat
}

// factorySetup is the usual mid-game choice of buildings.
func factorySetup(t *testing.T, cat *catalog.Catalog) *planning.Setup {
	t.Helper()
	s, err := planning.NewSetup(resolution.NewResolver(cat), map[catalog.BuildingTypeID][]catalog.BuildingID{
		"assembling_machines": {"assembling_machine_2"},
		"chemical_plants":     {"chemical_plant"},
		"furnaces":            {"electric_furnace"},
	})
	require.NoError(t, err)
	return s
}

func target(item, qty string) resolution.RequirementSet {
	return resolution.RequirementSet{resolution.NewRequirement(catalog.ItemID(item), units.RequireQuantity(qty))}
}

// counts maps "recipe/building" to the building count rendered as a string.
func counts(plan *planning.Plan) map[string]string {
	out := make(map[string]string, len(plan.Buildings))
	for _, a := range plan.Buildings {
		out[string(a.Recipe)+"/"+string(a.Building)] = a.Count.String()
	}
	return out
}

func quantities(set resolution.RequirementSet) map[string]string {
	out := make(map[string]string, len(set))
	for _, r := range set {
		out[string(r.Item)] = r.Quantity.String()
	}
	return out
}
