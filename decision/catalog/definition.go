package catalog

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	planerrors "factory-planner/pkg/errors"
	"factory-planner/pkg/units"
)

// Definition is the serialisable form of a catalog, as found in YAML files
// and the catalog database.
type Definition struct {
	Name          string            `yaml:"name,omitempty" json:"name,omitempty"`
	BuildingTypes []BuildingTypeDef `yaml:"building_types" json:"building_types" validate:"required,min=1,dive"`
	Buildings     []BuildingDef     `yaml:"buildings" json:"buildings" validate:"required,min=1,dive"`
	Belts         []BeltDef         `yaml:"belts,omitempty" json:"belts,omitempty" validate:"dive"`
	Items         []ItemDef         `yaml:"items" json:"items" validate:"required,min=1,dive"`
	Recipes       []RecipeDef       `yaml:"recipes" json:"recipes" validate:"dive"`
}

type BuildingTypeDef struct {
	ID   string `yaml:"id" json:"id" validate:"required"`
	Name string `yaml:"name" json:"name"`
}

type BuildingDef struct {
	ID       string          `yaml:"id" json:"id" validate:"required"`
	Name     string          `yaml:"name" json:"name"`
	Type     string          `yaml:"type" json:"type" validate:"required"`
	Speed    decimal.Decimal `yaml:"speed" json:"speed"`
	Size     []int           `yaml:"size,flow" json:"size" validate:"len=2,dive,gt=0"`
	MaxItems int             `yaml:"max_items,omitempty" json:"max_items,omitempty" validate:"gte=0"`
}

type BeltDef struct {
	ID                string          `yaml:"id" json:"id" validate:"required"`
	Name              string          `yaml:"name" json:"name"`
	Throughput        decimal.Decimal `yaml:"throughput" json:"throughput"`
	Per               units.Time      `yaml:"per" json:"per"`
	UndergroundLength int             `yaml:"underground_length" json:"underground_length" validate:"gte=0"`
}

type ItemDef struct {
	ID         string `yaml:"id" json:"id" validate:"required"`
	Name       string `yaml:"name" json:"name"`
	CraftPlace string `yaml:"craft_place,omitempty" json:"craft_place,omitempty"`
}

type StackDef struct {
	Item  string          `yaml:"item" json:"item" validate:"required"`
	Count decimal.Decimal `yaml:"count" json:"count"`
}

type RecipeDef struct {
	ID           string     `yaml:"id" json:"id" validate:"required"`
	Name         string     `yaml:"name" json:"name"`
	Inputs       []StackDef `yaml:"inputs,omitempty" json:"inputs,omitempty" validate:"dive"`
	Outputs      []StackDef `yaml:"outputs" json:"outputs" validate:"required,min=1,dive"`
	Duration     units.Time `yaml:"duration" json:"duration"`
	BuildingType string     `yaml:"building_type,omitempty" json:"building_type,omitempty"`
}

var validate = validator.New()

// Build validates def and produces a Catalog. Every problem found is
// reported, joined into one error; each is an INVALID_CATALOG_ENTRY.
func Build(def *Definition) (*Catalog, error) {
	if def == nil {
		return nil, planerrors.NewInvalidCatalogEntryError("definition", "", "missing")
	}

	b := &builder{
		cat: &Catalog{
			items:         make(map[ItemID]*Item),
			recipes:       make(map[RecipeID]*Recipe),
			buildings:     make(map[BuildingID]*Building),
			buildingTypes: make(map[BuildingTypeID]*BuildingType),
			belts:         make(map[BeltID]*Belt),
			producers:     make(map[ItemID][]RecipeID),
			def:           def.clone(),
		},
	}

	b.checkTags(def)
	b.addBuildingTypes(def.BuildingTypes)
	b.addBuildings(def.Buildings)
	b.addBelts(def.Belts)
	b.addItems(def.Items)
	b.addRecipes(def.Recipes)

	if len(b.problems) > 0 {
		return nil, errors.Join(b.problems...)
	}
	return b.cat, nil
}

type builder struct {
	cat      *Catalog
	problems []error
}

func (b *builder) fail(kind, id, format string, args ...any) {
	b.problems = append(b.problems, planerrors.NewInvalidCatalogEntryError(kind, id, fmt.Sprintf(format, args...)))
}

func (b *builder) checkTags(def *Definition) {
	err := validate.Struct(def)
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		b.problems = append(b.problems, err)
		return
	}
	for _, e := range verrs {
		b.fail("definition", e.Namespace(), "failed validation: %s (value: '%v')", e.Tag(), e.Value())
	}
}

func (b *builder) addBuildingTypes(defs []BuildingTypeDef) {
	for _, d := range defs {
		if d.ID == "" {
			continue
		}
		id := BuildingTypeID(d.ID)
		if _, dup := b.cat.buildingTypes[id]; dup {
			b.fail("building type", d.ID, "duplicate id")
			continue
		}
		b.cat.buildingTypes[id] = &BuildingType{ID: id, Name: nameOr(d.Name, d.ID)}
		b.cat.buildingTypeOrder = append(b.cat.buildingTypeOrder, id)
	}
}

func (b *builder) addBuildings(defs []BuildingDef) {
	for _, d := range defs {
		if d.ID == "" {
			continue
		}
		id := BuildingID(d.ID)
		if _, dup := b.cat.buildings[id]; dup {
			b.fail("building", d.ID, "duplicate id")
			continue
		}
		bt, ok := b.cat.buildingTypes[BuildingTypeID(d.Type)]
		if !ok {
			b.fail("building", d.ID, "unknown building type %q", d.Type)
			continue
		}
		if !d.Speed.IsPositive() {
			b.fail("building", d.ID, "speed must be positive, got %s", d.Speed)
			continue
		}
		building := &Building{
			ID:       id,
			Name:     nameOr(d.Name, d.ID),
			Speed:    d.Speed,
			MaxItems: d.MaxItems,
			Type:     bt.ID,
		}
		if len(d.Size) == 2 {
			building.Size = [2]int{d.Size[0], d.Size[1]}
		}
		b.cat.buildings[id] = building
		b.cat.buildingOrder = append(b.cat.buildingOrder, id)
		bt.Buildings = append(bt.Buildings, id)
	}

	for _, id := range b.cat.buildingTypeOrder {
		if len(b.cat.buildingTypes[id].Buildings) == 0 {
			b.fail("building type", string(id), "has no buildings")
		}
	}
}

func (b *builder) addBelts(defs []BeltDef) {
	for _, d := range defs {
		if d.ID == "" {
			continue
		}
		id := BeltID(d.ID)
		if _, dup := b.cat.belts[id]; dup {
			b.fail("belt", d.ID, "duplicate id")
			continue
		}
		debit, err := units.NewDebit(units.NewQuantity(d.Throughput), d.Per)
		if err != nil {
			b.fail("belt", d.ID, "invalid throughput: %v", err)
			continue
		}
		b.cat.belts[id] = &Belt{
			ID:                id,
			Name:              nameOr(d.Name, d.ID),
			Throughput:        debit,
			UndergroundLength: d.UndergroundLength,
		}
		b.cat.beltOrder = append(b.cat.beltOrder, id)
	}
}

func (b *builder) addItems(defs []ItemDef) {
	for _, d := range defs {
		if d.ID == "" {
			continue
		}
		id := ItemID(d.ID)
		if _, dup := b.cat.items[id]; dup {
			b.fail("item", d.ID, "duplicate id")
			continue
		}
		place := BuildingTypeID(d.CraftPlace)
		if place != "" {
			if _, ok := b.cat.buildingTypes[place]; !ok {
				b.fail("item", d.ID, "unknown craft place %q", d.CraftPlace)
				continue
			}
		}
		b.cat.items[id] = &Item{ID: id, Name: nameOr(d.Name, d.ID), CraftPlace: place}
		b.cat.itemOrder = append(b.cat.itemOrder, id)
	}
}

func (b *builder) addRecipes(defs []RecipeDef) {
	for _, d := range defs {
		if d.ID == "" {
			continue
		}
		id := RecipeID(d.ID)
		if _, dup := b.cat.recipes[id]; dup {
			b.fail("recipe", d.ID, "duplicate id")
			continue
		}
		if !d.Duration.Unit.Valid() || !d.Duration.IsPositive() {
			b.fail("recipe", d.ID, "duration must be a positive time, got %s", d.Duration)
			continue
		}

		inputs, okIn := b.stacks(d.ID, "input", d.Inputs)
		outputs, okOut := b.stacks(d.ID, "output", d.Outputs)
		if !okIn || !okOut || len(outputs) == 0 {
			continue
		}

		primaryOutput := false
		for _, out := range outputs {
			if b.cat.items[out.Item].IsPrimary() {
				b.fail("recipe", d.ID, "output %q is a primary item", out.Item)
				primaryOutput = true
			}
		}
		if primaryOutput {
			continue
		}

		bt := BuildingTypeID(d.BuildingType)
		if bt == "" {
			bt = b.cat.items[outputs[0].Item].CraftPlace
		} else if _, ok := b.cat.buildingTypes[bt]; !ok {
			b.fail("recipe", d.ID, "unknown building type %q", d.BuildingType)
			continue
		}

		recipe := &Recipe{
			ID:           id,
			Name:         nameOr(d.Name, d.ID),
			Inputs:       inputs,
			Outputs:      outputs,
			Duration:     d.Duration,
			BuildingType: bt,
		}
		b.cat.recipes[id] = recipe
		b.cat.recipeOrder = append(b.cat.recipeOrder, id)

		seen := make(map[ItemID]bool, len(outputs))
		for _, out := range outputs {
			if seen[out.Item] {
				continue
			}
			seen[out.Item] = true
			b.cat.producers[out.Item] = append(b.cat.producers[out.Item], id)
		}
	}
}

func (b *builder) stacks(recipe, side string, defs []StackDef) ([]Stack, bool) {
	ok := true
	out := make([]Stack, 0, len(defs))
	for _, d := range defs {
		item := ItemID(d.Item)
		if _, known := b.cat.items[item]; !known {
			b.fail("recipe", recipe, "%s references unknown item %q", side, d.Item)
			ok = false
			continue
		}
		if !d.Count.IsPositive() {
			b.fail("recipe", recipe, "%s %q count must be positive, got %s", side, d.Item, d.Count)
			ok = false
			continue
		}
		out = append(out, Stack{Item: item, Count: d.Count})
	}
	return out, ok
}

func nameOr(name, id string) string {
	if name == "" {
		return id
	}
	return name
}

func (d *Definition) clone() *Definition {
	if d == nil {
		return nil
	}
	out := &Definition{
		Name:          d.Name,
		BuildingTypes: append([]BuildingTypeDef(nil), d.BuildingTypes...),
		Buildings:     make([]BuildingDef, len(d.Buildings)),
		Belts:         append([]BeltDef(nil), d.Belts...),
		Items:         append([]ItemDef(nil), d.Items...),
		Recipes:       make([]RecipeDef, len(d.Recipes)),
	}
	for i, bd := range d.Buildings {
		bd.Size = append([]int(nil), bd.Size...)
		out.Buildings[i] = bd
	}
	for i, rd := range d.Recipes {
		rd.Inputs = append([]StackDef(nil), rd.Inputs...)
		rd.Outputs = append([]StackDef(nil), rd.Outputs...)
		out.Recipes[i] = rd
	}
	return out
}
