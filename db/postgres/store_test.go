package postgres

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factory-planner/decision/catalog"
)

func TestRecipeStacksRoundTrip(t *testing.T) {
	def, err := catalog.DefaultDefinition()
	require.NoError(t, err)

	var stacks []stackRow
	bare := make([]catalog.RecipeDef, len(def.Recipes))
	for i, r := range def.Recipes {
		stacks = append(stacks, recipeStacks(r)...)
		bare[i] = catalog.RecipeDef{ID: r.ID, Name: r.Name, Duration: r.Duration, BuildingType: r.BuildingType}
	}

	require.NoError(t, attachStacks(bare, stacks))

	def.Recipes = bare
	cat, err := catalog.Build(def)
	require.NoError(t, err)
	sp1, ok := cat.Recipe("science_pack_1")
	require.True(t, ok)
	require.Len(t, sp1.Inputs, 2)
	assert.Equal(t, catalog.ItemID("iron_gear"), sp1.Inputs[0].Item)
	assert.Equal(t, catalog.ItemID("copper"), sp1.Inputs[1].Item)
}

func TestAttachStacks_Errors(t *testing.T) {
	recipes := []catalog.RecipeDef{{ID: "iron"}}

	err := attachStacks(recipes, []stackRow{{Recipe: "steel", Side: sideInput, Item: "iron", Count: decimal.NewFromInt(5)}})
	assert.ErrorContains(t, err, "unknown recipe")

	err = attachStacks(recipes, []stackRow{{Recipe: "iron", Side: "catalyst", Item: "iron_ore", Count: decimal.NewFromInt(1)}})
	assert.ErrorContains(t, err, "unknown stack side")
}

func TestWrapWriteError(t *testing.T) {
	unique := &pq.Error{Code: "23505", Constraint: "catalog_items_pkey", Message: "duplicate key value"}

	err := wrapWriteError("factorio", unique)
	assert.Contains(t, err.Error(), "violates catalog_items_pkey")
	assert.True(t, errors.Is(err, unique))

	err = wrapWriteError("factorio", errors.New("connection reset"))
	assert.Equal(t, "failed to write catalog factorio: connection reset", err.Error())
}

func TestIntConversions(t *testing.T) {
	assert.Equal(t, []int64{3, 3}, toInt64s([]int{3, 3}))
	assert.Equal(t, []int{2, 2}, toInts([]int64{2, 2}))
	assert.Empty(t, toInts(nil))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Contains(t, cfg.DSN, "sslmode=disable")
	assert.Equal(t, 10, cfg.MaxOpenConns)
}
