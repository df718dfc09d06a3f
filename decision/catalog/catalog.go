// Package catalog holds the immutable set of items, recipes and buildings the
// planner resolves against.
//
// Entities reference each other by string ID. A Catalog is only produced by
// Build, which validates the whole definition first, and is never mutated
// afterwards, so it can be shared freely between goroutines.
package catalog

import (
	"github.com/shopspring/decimal"

	"factory-planner/pkg/units"
)

type (
	ItemID         string
	RecipeID       string
	BuildingID     string
	BuildingTypeID string
	BeltID         string
)

// Item is anything that can be requested. An item without a craft place is primary.
type Item struct {
	ID         ItemID         `json:"id"`
	Name       string         `json:"name"`
	CraftPlace BuildingTypeID `json:"craft_place,omitempty"`
}

// IsPrimary reports whether the item is a raw resource.
func (i *Item) IsPrimary() bool {
	return i.CraftPlace == ""
}

// Stack is a count of one item.
type Stack struct {
	Item  ItemID          `json:"item"`
	Count decimal.Decimal `json:"count"`
}

// Recipe turns input stacks into output stacks in a fixed duration.
type Recipe struct {
	ID           RecipeID       `json:"id"`
	Name         string         `json:"name"`
	Inputs       []Stack        `json:"inputs"`
	Outputs      []Stack        `json:"outputs"`
	Duration     units.Time     `json:"duration"`
	BuildingType BuildingTypeID `json:"building_type"`
}

// OutputCount returns how many units of item one run of r produces.
func (r *Recipe) OutputCount(item ItemID) units.Quantity {
	var total units.Quantity
	for _, out := range r.Outputs {
		if out.Item == item {
			total = total.Add(units.NewQuantity(out.Count))
		}
	}
	return total
}

// Building is one variant of a building type. MaxItems is the module slot
// count, 0 meaning unbounded.
type Building struct {
	ID       BuildingID      `json:"id"`
	Name     string          `json:"name"`
	Speed    decimal.Decimal `json:"speed"`
	Size     [2]int          `json:"size"`
	MaxItems int             `json:"max_items"`
	Type     BuildingTypeID  `json:"type"`
}

// BuildingType groups interchangeable building variants.
type BuildingType struct {
	ID        BuildingTypeID `json:"id"`
	Name      string         `json:"name"`
	Buildings []BuildingID   `json:"buildings"`
}

// Belt moves items at a fixed rate.
type Belt struct {
	ID                BeltID      `json:"id"`
	Name              string      `json:"name"`
	Throughput        units.Debit `json:"-"`
	UndergroundLength int         `json:"underground_length"`
}

// Catalog is the validated, read-only arena of all entities.
type Catalog struct {
	items         map[ItemID]*Item
	recipes       map[RecipeID]*Recipe
	buildings     map[BuildingID]*Building
	buildingTypes map[BuildingTypeID]*BuildingType
	belts         map[BeltID]*Belt

	itemOrder         []ItemID
	recipeOrder       []RecipeID
	buildingOrder     []BuildingID
	buildingTypeOrder []BuildingTypeID
	beltOrder         []BeltID

	// producers lists, per item, the recipes that output it in declaration order.
	producers map[ItemID][]RecipeID

	def *Definition
}

func (c *Catalog) Item(id ItemID) (*Item, bool) {
	it, ok := c.items[id]
	return it, ok
}

func (c *Catalog) Recipe(id RecipeID) (*Recipe, bool) {
	r, ok := c.recipes[id]
	return r, ok
}

func (c *Catalog) Building(id BuildingID) (*Building, bool) {
	b, ok := c.buildings[id]
	return b, ok
}

func (c *Catalog) BuildingType(id BuildingTypeID) (*BuildingType, bool) {
	bt, ok := c.buildingTypes[id]
	return bt, ok
}

func (c *Catalog) Belt(id BeltID) (*Belt, bool) {
	b, ok := c.belts[id]
	return b, ok
}

// Items returns all items in declaration order.
func (c *Catalog) Items() []*Item {
	out := make([]*Item, 0, len(c.itemOrder))
	for _, id := range c.itemOrder {
		out = append(out, c.items[id])
	}
	return out
}

// Recipes returns all recipes in declaration order.
func (c *Catalog) Recipes() []*Recipe {
	out := make([]*Recipe, 0, len(c.recipeOrder))
	for _, id := range c.recipeOrder {
		out = append(out, c.recipes[id])
	}
	return out
}

// Buildings returns all building variants in declaration order.
func (c *Catalog) Buildings() []*Building {
	out := make([]*Building, 0, len(c.buildingOrder))
	for _, id := range c.buildingOrder {
		out = append(out, c.buildings[id])
	}
	return out
}

// BuildingTypes returns all building types in declaration order.
func (c *Catalog) BuildingTypes() []*BuildingType {
	out := make([]*BuildingType, 0, len(c.buildingTypeOrder))
	for _, id := range c.buildingTypeOrder {
		out = append(out, c.buildingTypes[id])
	}
	return out
}

// Belts returns all belts in declaration order.
func (c *Catalog) Belts() []*Belt {
	out := make([]*Belt, 0, len(c.beltOrder))
	for _, id := range c.beltOrder {
		out = append(out, c.belts[id])
	}
	return out
}

// RecipesFor returns the recipes producing item, first declared first.
func (c *Catalog) RecipesFor(item ItemID) []*Recipe {
	ids := c.producers[item]
	out := make([]*Recipe, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.recipes[id])
	}
	return out
}

// Definition returns a copy of the definition the catalog was built from.
func (c *Catalog) Definition() *Definition {
	return c.def.clone()
}
