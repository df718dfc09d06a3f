package resolution_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factory-planner/decision/resolution"
	planerrors "factory-planner/pkg/errors"
	"factory-planner/pkg/units"
)

func TestResolveDeep_SciencePack(t *testing.T) {
	r := resolution.NewResolver(mustCatalog(t, scienceCatalog))

	res, err := r.ResolveDeep(resolution.RequirementSet{req("science_pack_1", "1")})

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"iron_ore": "2", "copper_ore": "1"}, quantities(res.Final()))
	require.Len(t, res.Iterations, 4)
	assert.Equal(t, map[string]string{"iron_gear": "1", "copper_plate": "1"}, quantities(res.Iterations[1]))
	assert.Equal(t, map[string]string{"iron_plate": "2", "copper_ore": "1"}, quantities(res.Iterations[2]))
	assert.Empty(t, res.Warnings)
}

func TestResolveDeep_ThirdsStayExact(t *testing.T) {
	r := resolution.NewResolver(mustCatalog(t, thirdsCatalog))

	res, err := r.ResolveDeep(resolution.RequirementSet{req("top", "1")})

	require.NoError(t, err)
	require.Len(t, res.Iterations, 3)
	mid := res.Iterations[1].Quantity("mid")
	assert.Equal(t, "1/3", mid.Fraction())
	ore := res.Final().Quantity("ore")
	assert.True(t, ore.Equal(units.QuantityOf(1)), "got %s", ore.Fraction())
	assert.Equal(t, "1", ore.String())
}

func TestResolveDeep_StopsBeforeTheRepeatedSet(t *testing.T) {
	r := resolution.NewResolver(mustDefault(t))

	res, err := r.ResolveDeep(resolution.RequirementSet{req("iron_ore", "3")})

	require.NoError(t, err)
	require.Len(t, res.Iterations, 1)
	assert.True(t, res.Final().Equal(resolution.RequirementSet{req("iron_ore", "3")}))
}

func TestResolveDeep_IsIdempotentAtItsFixedPoint(t *testing.T) {
	r := resolution.NewResolver(mustDefault(t))

	targets := []resolution.RequirementSet{
		{req("science_pack_1", "1")},
		{req("science_pack_2", "3"), req("science_pack_3", "1")},
		{req("science_pack_high_tech", "1")},
		{req("science_pack_productivity", "2"), req("science_pack_military", "2")},
	}

	for _, target := range targets {
		res, err := r.ResolveDeep(target)
		require.NoError(t, err)

		final := res.Final()
		steps, err := r.ResolveOneStepForSet(final)
		require.NoError(t, err)
		assert.True(t, resolution.Inputs(steps).Equal(final), "target %s", target)

		for _, entry := range final {
			assert.Empty(t, r.Catalog().RecipesFor(entry.Item), "%s should be primary", entry.Item)
		}
	}
}

func TestResolveDeep_DefaultCatalogPrimaries(t *testing.T) {
	r := resolution.NewResolver(mustDefault(t))

	res, err := r.ResolveDeep(resolution.RequirementSet{req("science_pack_1", "1")})

	require.NoError(t, err)
	// One gear needs two plates, i.e. one ore at two plates per ore.
	assert.Equal(t, map[string]string{"iron_ore": "1", "copper_ore": "1"}, quantities(res.Final()))
}

func TestResolveDeep_IterationCap(t *testing.T) {
	r := resolution.NewResolver(mustCatalog(t, scienceCatalog)).WithMaxIterations(2)

	res, err := r.ResolveDeep(resolution.RequirementSet{req("science_pack_1", "1")})

	require.Error(t, err)
	assert.True(t, errors.Is(err, planerrors.ErrNonTerminating))

	var nt *resolution.NonTerminatingError
	require.True(t, errors.As(err, &nt))
	assert.Equal(t, 2, nt.Iterations)
	assert.Equal(t, map[string]string{"iron_gear": "1", "copper_plate": "1"}, quantities(nt.Previous))
	assert.Equal(t, map[string]string{"iron_plate": "2", "copper_ore": "1"}, quantities(nt.Last))

	require.NotNil(t, res)
	assert.Len(t, res.Iterations, 3)
}

func TestResolveDeep_EmptySet(t *testing.T) {
	r := resolution.NewResolver(mustDefault(t))

	res, err := r.ResolveDeep(resolution.RequirementSet{})

	require.NoError(t, err)
	assert.Len(t, res.Iterations, 1)
	assert.Empty(t, res.Final())
}

func TestCheckAcyclic(t *testing.T) {
	r := resolution.NewResolver(mustCatalog(t, cyclicCatalog))

	err := r.CheckAcyclic(resolution.RequirementSet{req("alpha", "1")})

	require.Error(t, err)
	assert.ErrorIs(t, err, planerrors.ErrCyclicRecipe)
	assert.Contains(t, err.Error(), "alpha -> beta -> alpha")

	_, err = r.ResolveDeep(resolution.RequirementSet{req("beta", "1")})
	assert.ErrorIs(t, err, planerrors.ErrCyclicRecipe)

	assert.NoError(t, r.CheckAcyclic(resolution.RequirementSet{req("ore", "1")}))
}

func TestCheckAcyclic_SharedSubtreesAreNotCycles(t *testing.T) {
	r := resolution.NewResolver(mustDefault(t))

	// Iron plates feed gears, circuits and the inserter itself.
	assert.NoError(t, r.CheckAcyclic(resolution.RequirementSet{req("inserter_long", "1")}))
}

func TestResolution_FinalOfNil(t *testing.T) {
	var res *resolution.Resolution
	assert.Nil(t, res.Final())
}
