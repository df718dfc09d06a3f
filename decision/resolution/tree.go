package resolution

import (
	"factory-planner/decision/catalog"
	planerrors "factory-planner/pkg/errors"
)

// TreeNode is a requirement with the inputs that explain it. Siblings are
// never merged, so an item may appear under several branches.
type TreeNode struct {
	Requirement
	Recipe   catalog.RecipeID `json:"recipe,omitempty"`
	Children []*TreeNode      `json:"children,omitempty"`
}

// IsLeaf reports whether the node was not expanded further.
func (n *TreeNode) IsLeaf() bool {
	return len(n.Children) == 0
}

// TotalDepth returns the number of levels below and including n.
func (n *TreeNode) TotalDepth() int {
	deepest := 0
	for _, c := range n.Children {
		if d := c.TotalDepth(); d > deepest {
			deepest = d
		}
	}
	return deepest + 1
}

// Walk visits n and its descendants depth first.
func (n *TreeNode) Walk(fn func(node *TreeNode, depth int)) {
	n.walk(fn, 0)
}

func (n *TreeNode) walk(fn func(node *TreeNode, depth int), depth int) {
	fn(n, depth)
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}

// Forest is the result of BuildTree, one root per requested entry.
type Forest struct {
	Roots    []*TreeNode                `json:"roots"`
	Warnings []*planerrors.PlannerError `json:"warnings,omitempty"`
}

// BuildTree expands every entry of set recipe by recipe down to primaries.
// The items being expanded on the current branch are tracked so a recipe
// cycle fails with CYCLIC_RECIPE instead of recursing forever.
func (r *Resolver) BuildTree(set RequirementSet) (*Forest, error) {
	b := &treeBuilder{resolver: r, warned: make(map[catalog.ItemID]bool)}
	forest := &Forest{Roots: make([]*TreeNode, 0, len(set))}
	for _, req := range set {
		node, err := b.build(req, nil)
		if err != nil {
			return nil, err
		}
		forest.Roots = append(forest.Roots, node)
	}
	forest.Warnings = b.warnings
	return forest, nil
}

type treeBuilder struct {
	resolver *Resolver
	warned   map[catalog.ItemID]bool
	warnings []*planerrors.PlannerError
}

func (b *treeBuilder) build(req Requirement, path []catalog.ItemID) (*TreeNode, error) {
	for _, p := range path {
		if p == req.Item {
			return nil, cycleError(path, req.Item)
		}
	}

	step, err := b.resolver.resolveOne(req, b.warned)
	if err != nil {
		return nil, err
	}
	if step.Warning != nil {
		b.warnings = append(b.warnings, step.Warning)
	}

	node := &TreeNode{Requirement: req.Clone()}
	if step.Inputs.Equal(RequirementSet{req}) {
		return node, nil
	}

	node.Recipe = step.Recipe.ID
	path = append(path, req.Item)
	node.Children = make([]*TreeNode, 0, len(step.Inputs))
	for _, in := range step.Inputs {
		child, err := b.build(in, path)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}
