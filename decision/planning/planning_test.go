package planning_test

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factory-planner/decision/catalog"
	"factory-planner/decision/planning"
	"factory-planner/decision/resolution"
	planerrors "factory-planner/pkg/errors"
	"factory-planner/pkg/units"
)

func TestBuildingCount(t *testing.T) {
	cat := mustCatalog(t, widgetCatalog)
	recipe, _ := cat.Recipe("widget")
	assembler, _ := cat.Building("assembler")
	slow, _ := cat.Building("slow_assembler")

	tests := []struct {
		name     string
		quantity string
		building *catalog.Building
		per      units.Time
		want     string
	}{
		{"100 per second", "100", assembler, units.Of(1, units.Second), "25"},
		{"half speed doubles", "100", slow, units.Of(1, units.Second), "50"},
		{"per minute", "6000", assembler, units.Of(1, units.Minute), "25"},
		{"per tick", "1", assembler, units.Of(1, units.Tick), "15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := planning.BuildingCount(recipe, "widget", units.RequireQuantity(tt.quantity), tt.building, tt.per)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestPlanDeep_ThirdsStayExact(t *testing.T) {
	cat := mustCatalog(t, `
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
`)
	s, err := planning.NewSetup(resolution.NewResolver(cat), nil)
	require.NoError(t, err)

	plan, err := s.PlanDeep(target("top", "1"), units.Of(1, units.Second))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"top/assembler": "0.3333333333333333",
		"mid/assembler": "0.3333333333333333",
	}, counts(plan))
	for _, a := range plan.Buildings {
		assert.True(t, a.Count.Mul(units.QuantityOf(3)).Equal(units.QuantityOf(1)), "%s count %s", a.Recipe, a.Count.Fraction())
	}
	assert.True(t, plan.Inputs.Quantity("ore").Equal(units.QuantityOf(1)))
}

func TestNewSetup_Validation(t *testing.T) {
	r := resolution.NewResolver(mustCatalog(t, widgetCatalog))

	tests := []struct {
		name    string
		allowed map[catalog.BuildingTypeID][]catalog.BuildingID
	}{
		{"unknown type", map[catalog.BuildingTypeID][]catalog.BuildingID{"smelters": {"furnace"}}},
		{"unknown building", map[catalog.BuildingTypeID][]catalog.BuildingID{"assemblers": {"robot"}}},
		{"wrong type", map[catalog.BuildingTypeID][]catalog.BuildingID{"assemblers": {"furnace"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := planning.NewSetup(r, tt.allowed)
			assert.ErrorIs(t, err, planerrors.ErrInvalidCatalogEntry)
		})
	}
}

func TestSetup_AllowedDefaultsToEveryVariant(t *testing.T) {
	cat := mustCatalog(t, widgetCatalog)
	s, err := planning.NewSetup(resolution.NewResolver(cat), nil)
	require.NoError(t, err)

	var ids []catalog.BuildingID
	for _, b := range s.Allowed("assemblers") {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []catalog.BuildingID{"assembler", "slow_assembler"}, ids)
	assert.Nil(t, s.Allowed("nothing"))
}

func TestSetup_SelectBuildingPicksSlowest(t *testing.T) {
	cat := mustCatalog(t, widgetCatalog)
	s, err := planning.NewSetup(resolution.NewResolver(cat), nil)
	require.NoError(t, err)
	recipe, _ := cat.Recipe("widget")
	item, _ := cat.Item("widget")

	b, err := s.SelectBuilding(recipe, item)

	require.NoError(t, err)
	assert.Equal(t, catalog.BuildingID("slow_assembler"), b.ID)
}

func TestSetup_SelectBuildingUnassignable(t *testing.T) {
	cat := mustCatalog(t, widgetCatalog)
	s, err := planning.NewSetup(resolution.NewResolver(cat), map[catalog.BuildingTypeID][]catalog.BuildingID{
		"assemblers": {},
	})
	require.NoError(t, err)

	_, err = s.PlanForSet(target("widget", "1"), units.Of(1, units.Second))

	assert.ErrorIs(t, err, planerrors.ErrUnassignableBuilding)
}

func TestPlanForSet_OneLevel(t *testing.T) {
	cat := mustCatalog(t, widgetCatalog)
	s, err := planning.NewSetup(resolution.NewResolver(cat), map[catalog.BuildingTypeID][]catalog.BuildingID{
		"assemblers": {"assembler"},
	})
	require.NoError(t, err)

	plan, err := s.PlanForSet(resolution.RequirementSet{
		resolution.NewRequirement("widget", units.QuantityOf(100)),
		resolution.NewRequirement("ingot", units.QuantityOf(1)),
		resolution.NewRequirement("ore", units.QuantityOf(3)),
	}, units.Of(1, units.Second))

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"widget/assembler": "25", "ingot/furnace": "2"}, counts(plan))
	assert.Equal(t, map[string]string{"ore": "55"}, quantities(plan.Inputs))
	assert.Empty(t, plan.Warnings)
}

func TestPlanForSet_IgnoresEntryProvenance(t *testing.T) {
	cat := mustCatalog(t, widgetCatalog)
	s, err := planning.NewSetup(resolution.NewResolver(cat), map[catalog.BuildingTypeID][]catalog.BuildingID{
		"assemblers": {"assembler"},
	})
	require.NoError(t, err)

	tagged := resolution.NewRequirement("widget", units.QuantityOf(100))
	tagged.Recipes = []catalog.RecipeID{"ingot", "widget"}
	plan, err := s.PlanForSet(resolution.RequirementSet{tagged}, units.Of(1, units.Second))

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"widget/assembler": "25"}, counts(plan))
	assert.Empty(t, plan.Warnings)
}

func TestPlanForSet_RejectsNonPositivePeriod(t *testing.T) {
	s := factorySetup(t, mustDefault(t))

	_, err := s.PlanForSet(target("iron", "1"), units.Of(0, units.Second))

	assert.ErrorIs(t, err, planerrors.ErrInvalidTime)
}

func TestPlanForSet_SkipsAmbiguousItems(t *testing.T) {
	var buf bytes.Buffer
	cat := mustCatalog(t, ambiguousCatalog)
	s, err := planning.NewSetup(resolution.NewResolver(cat), nil)
	require.NoError(t, err)
	s.WithLogger(zerolog.New(&buf))

	plan, err := s.PlanForSet(resolution.RequirementSet{
		resolution.NewRequirement("iron_plate", units.QuantityOf(1)),
		resolution.NewRequirement("iron_plate", units.QuantityOf(2)),
	}, units.Of(1, units.Second))

	require.NoError(t, err)
	assert.Empty(t, plan.Buildings)
	// One from resolution, one for the skipped assignment.
	require.Len(t, plan.Warnings, 2)
	for _, w := range plan.Warnings {
		assert.ErrorIs(t, w, planerrors.ErrAmbiguousRecipe)
	}
	assert.Contains(t, plan.Warnings[1].Message, "no buildings assigned")
	assert.Equal(t, map[string]string{"iron_ore": "3"}, quantities(plan.Inputs))
	assert.Contains(t, buf.String(), "skipping building assignment")
}

func TestPlanDeep_SciencePack(t *testing.T) {
	s := factorySetup(t, mustDefault(t))

	plan, err := s.PlanDeep(target("science_pack_1", "1"), units.Of(1, units.Second))

	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"science_pack_1/assembling_machine_2": "5",
		"iron_gear/assembling_machine_2":      "0.5",
		"copper/electric_furnace":             "1.75",
		"iron/electric_furnace":               "1.75",
	}, counts(plan))
	assert.Equal(t, catalog.RecipeID("science_pack_1"), plan.Buildings[0].Recipe)
	assert.Equal(t, map[string]string{"iron_ore": "1", "copper_ore": "1"}, quantities(plan.Inputs))
	assert.Empty(t, plan.Warnings)
}

func TestPlanDeep_SumsSharedRecipes(t *testing.T) {
	s := factorySetup(t, mustDefault(t))

	// Iron plates are needed by the gear and by the inserter itself, on
	// different levels.
	plan, err := s.PlanDeep(target("inserter", "1"), units.Of(1, units.Second))
	require.NoError(t, err)

	seen := make(map[string]int)
	for _, a := range plan.Buildings {
		seen[string(a.Recipe)+"/"+string(a.Building)]++
	}
	for key, n := range seen {
		assert.Equal(t, 1, n, key)
	}
	assert.Contains(t, counts(plan), "iron/electric_furnace")
}

func TestPlanDeep_Belts(t *testing.T) {
	cat := mustDefault(t)
	belt, ok := cat.Belt("transport_belt")
	require.True(t, ok)
	s := factorySetup(t, cat).WithBelt(belt)

	plan, err := s.PlanDeep(target("science_pack_1", "60"), units.Of(1, units.Minute))

	require.NoError(t, err)
	assert.Equal(t, "5", counts(plan)["science_pack_1/assembling_machine_2"])
	assert.Equal(t, catalog.BeltID("transport_belt"), plan.Belt)
	require.Len(t, plan.Belts, 2)
	assert.Equal(t, catalog.ItemID("iron_ore"), plan.Belts[0].Item)
	assert.Equal(t, "0.075", plan.Belts[0].Belts.String())
}

func TestPlanDeep_IterationCap(t *testing.T) {
	cat := mustDefault(t)
	s, err := planning.NewSetup(resolution.NewResolver(cat).WithMaxIterations(1), nil)
	require.NoError(t, err)

	plan, err := s.PlanDeep(target("science_pack_1", "1"), units.Of(1, units.Second))

	assert.ErrorIs(t, err, planerrors.ErrNonTerminating)
	require.NotNil(t, plan)
	assert.Len(t, plan.Buildings, 1)
}

func TestPlanDeep_Cycle(t *testing.T) {
	s, err := planning.NewSetup(resolution.NewResolver(mustCatalog(t, cyclicCatalog)), nil)
	require.NoError(t, err)

	_, err = s.PlanDeep(target("alpha", "1"), units.Of(1, units.Second))

	assert.ErrorIs(t, err, planerrors.ErrCyclicRecipe)
}

func TestBeltsFor(t *testing.T) {
	cat := mustDefault(t)
	express, _ := cat.Belt("express_belt")

	loads, err := planning.BeltsFor(resolution.RequirementSet{
		resolution.NewRequirement("iron_ore", units.QuantityOf(80)),
		resolution.NewRequirement("coal", units.QuantityOf(20)),
	}, units.Of(1, units.Second), express)

	require.NoError(t, err)
	require.Len(t, loads, 2)
	assert.Equal(t, "2", loads[0].Belts.String())
	assert.Equal(t, "0.5", loads[1].Belts.String())
}
