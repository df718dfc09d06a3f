package resolution_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factory-planner/decision/catalog"
	"factory-planner/decision/resolution"
	planerrors "factory-planner/pkg/errors"
)

func TestBuildTree_SciencePack(t *testing.T) {
	r := resolution.NewResolver(mustDefault(t))

	forest, err := r.BuildTree(resolution.RequirementSet{req("science_pack_1", "1")})

	require.NoError(t, err)
	require.Len(t, forest.Roots, 1)
	root := forest.Roots[0]
	assert.Equal(t, catalog.ItemID("science_pack_1"), root.Item)
	assert.Equal(t, catalog.RecipeID("science_pack_1"), root.Recipe)
	assert.Equal(t, 4, root.TotalDepth())

	require.Len(t, root.Children, 2)
	gear := root.Children[0]
	assert.Equal(t, catalog.ItemID("iron_gear"), gear.Item)
	require.Len(t, gear.Children, 1)
	assert.Equal(t, "2", gear.Children[0].Quantity.String())

	ore := gear.Children[0].Children[0]
	assert.Equal(t, catalog.ItemID("iron_ore"), ore.Item)
	assert.True(t, ore.IsLeaf())
	assert.Empty(t, ore.Recipe)
	assert.Equal(t, "1", ore.Quantity.String())
}

func TestBuildTree_DoesNotMergeSiblings(t *testing.T) {
	r := resolution.NewResolver(mustDefault(t))

	forest, err := r.BuildTree(resolution.RequirementSet{req("inserter", "1")})
	require.NoError(t, err)

	plates := 0
	forest.Roots[0].Walk(func(node *resolution.TreeNode, depth int) {
		if node.Item == "iron" {
			plates++
		}
	})
	// Directly, through the gear and through the circuit.
	assert.Equal(t, 3, plates)
}

func TestBuildTree_WalkDepths(t *testing.T) {
	r := resolution.NewResolver(mustDefault(t))

	forest, err := r.BuildTree(resolution.RequirementSet{req("iron", "2"), req("coal", "1")})
	require.NoError(t, err)
	require.Len(t, forest.Roots, 2)

	var visited []string
	forest.Roots[0].Walk(func(node *resolution.TreeNode, depth int) {
		visited = append(visited, string(node.Item)+"@"+string(rune('0'+depth)))
	})
	assert.Equal(t, []string{"iron@0", "iron_ore@1"}, visited)
	assert.True(t, forest.Roots[1].IsLeaf())
	assert.Equal(t, 1, forest.Roots[1].TotalDepth())
}

func TestBuildTree_Cycle(t *testing.T) {
	r := resolution.NewResolver(mustCatalog(t, cyclicCatalog))

	_, err := r.BuildTree(resolution.RequirementSet{req("alpha", "1")})

	assert.ErrorIs(t, err, planerrors.ErrCyclicRecipe)
}

func TestBuildTree_CollectsAmbiguityOnce(t *testing.T) {
	r := resolution.NewResolver(mustCatalog(t, ambiguousCatalog))

	forest, err := r.BuildTree(resolution.RequirementSet{req("iron_gear", "1"), req("iron_plate", "1")})

	require.NoError(t, err)
	assert.Len(t, forest.Warnings, 1)
}

func TestBuildTree_UnknownItem(t *testing.T) {
	r := resolution.NewResolver(mustDefault(t))

	_, err := r.BuildTree(resolution.RequirementSet{req("nothing", "1")})

	assert.ErrorIs(t, err, planerrors.ErrUnknownItem)
}
