package resolution_test

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"factory-planner/decision/catalog"
	"factory-planner/decision/resolution"
	"factory-planner/pkg/units"
)

// scienceCatalog uses one plate per ore so science_pack_1 needs 2 iron ore.
const scienceCatalog = `
building_types:
  - id: furnaces
  - id: assemblers
buildings:
  - {id: stone_furnace, type: furnaces, speed: 1, size: [2, 2]}
  - {id: assembler, type: assemblers, speed: 0.75, size: [3, 3]}
items:
  - {id: iron_ore}
  - {id: copper_ore}
  - {id: iron_plate, craft_place: furnaces}
  - {id: copper_plate, craft_place: furnaces}
  - {id: iron_gear, craft_place: assemblers}
  - {id: science_pack_1, craft_place: assemblers}
recipes:
  - {id: iron_plate, inputs: [{item: iron_ore, count: 1}], outputs: [{item: iron_plate, count: 1}], duration: 3.5sec}
  - {id: copper_plate, inputs: [{item: copper_ore, count: 1}], outputs: [{item: copper_plate, count: 1}], duration: 3.5sec}
  - {id: iron_gear, inputs: [{item: iron_plate, count: 2}], outputs: [{item: iron_gear, count: 1}], duration: 0.5sec}
  - id: science_pack_1
    inputs: [{item: iron_gear, count: 1}, {item: copper_plate, count: 1}]
    outputs: [{item: science_pack_1, count: 1}]
    duration: 5sec
`

// ambiguousCatalog has two recipes for iron_plate.
const ambiguousCatalog = `
building_types:
  - id: furnaces
  - id: assemblers
buildings:
  - {id: stone_furnace, type: furnaces, speed: 1, size: [2, 2]}
  - {id: assembler, type: assemblers, speed: 0.75, size: [3, 3]}
items:
  - {id: iron_ore}
  - {id: iron_plate, craft_place: furnaces}
  - {id: iron_gear, craft_place: assemblers}
recipes:
  - {id: iron_plate, inputs: [{item: iron_ore, count: 1}], outputs: [{item: iron_plate, count: 1}], duration: 3.5sec}
  - {id: iron_plate_fast, inputs: [{item: iron_ore, count: 2}], outputs: [{item: iron_plate, count: 2}], duration: 1sec}
  - {id: iron_gear, inputs: [{item: iron_plate, count: 2}], outputs: [{item: iron_gear, count: 1}], duration: 0.5sec}
`

// thirdsCatalog has a recipe yielding three units per run, so scaling goes
// through thirds: one top needs a third of a mid, which needs one ore.
const thirdsCatalog = `
building_types:
  - id: assemblers
buildings:
  - {id: assembler, type: assemblers, speed: 1, size: [3, 3]}
items:
  - {id: ore}
  - {id: mid, craft_place: assemblers}
  - {id: top, craft_place: assemblers}
recipes:
  - {id: top, inputs: [{item: mid, count: 1}], outputs: [{item: top, count: 3}], duration: 1sec}
  - {id: mid, inputs: [{item: ore, count: 3}], outputs: [{item: mid, count: 1}], duration: 1sec}
`

const cyclicCatalog = `
building_types:
  - id: assemblers
buildings:
  - {id: assembler, type: assemblers, speed: 1, size: [3, 3]}
items:
  - {id: ore}
  - {id: alpha, craft_place: assemblers}
  - {id: beta, craft_place: assemblers}
recipes:
  - {id: alpha, inputs: [{item: beta, count: 1}, {item: ore, count: 1}], outputs: [{item: alpha, count: 1}], duration: 1sec}
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

func req(item string, qty string, recipes ...string) resolution.Requirement {
	r := resolution.NewRequirement(catalog.ItemID(item), units.RequireQuantity(qty))
	for _, id := range recipes {
		r.Recipes = append(r.Recipes, catalog.RecipeID(id))
	}
	return r
}

// summary flattens a set to "item=qty[recipes]" strings, sorted, so sets can be
// compared regardless of entry and provenance order.
func summary(set resolution.RequirementSet) []string {
	out := make([]string, 0, len(set))
	for _, r := range set {
		ids := make([]string, len(r.Recipes))
		for i, id := range r.Recipes {
			ids[i] = string(id)
		}
		sort.Strings(ids)
		out = append(out, string(r.Item)+"="+r.Quantity.String()+"["+strings.Join(ids, ",")+"]")
	}
	sort.Strings(out)
	return out
}

// quantities maps each item to its quantity rendered as a string.
func quantities(set resolution.RequirementSet) map[string]string {
	out := make(map[string]string, len(set))
	for _, r := range set {
		out[string(r.Item)] = r.Quantity.String()
	}
	return out
}
