// Package planning sizes production: how many buildings of which variant each
// recipe needs to deliver a requested quantity per unit of time.
package planning

import (
	"fmt"

	"github.com/rs/zerolog"

	"factory-planner/decision/catalog"
	"factory-planner/decision/resolution"
	planerrors "factory-planner/pkg/errors"
	"factory-planner/pkg/units"
)

// Setup is a planner configured with the building variants allowed for each
// building type. Types left out of the allow-list may use every variant.
type Setup struct {
	resolver *resolution.Resolver
	allowed  map[catalog.BuildingTypeID][]catalog.BuildingID
	belt     *catalog.Belt
	logger   zerolog.Logger
}

// NewSetup validates the allow-list against the resolver's catalog.
func NewSetup(resolver *resolution.Resolver, allowed map[catalog.BuildingTypeID][]catalog.BuildingID) (*Setup, error) {
	cat := resolver.Catalog()
	s := &Setup{
		resolver: resolver,
		allowed:  make(map[catalog.BuildingTypeID][]catalog.BuildingID, len(allowed)),
		logger:   zerolog.Nop(),
	}

	for typeID, buildings := range allowed {
		if _, ok := cat.BuildingType(typeID); !ok {
			return nil, planerrors.NewInvalidCatalogEntryError("building setup", string(typeID), "unknown building type")
		}
		for _, id := range buildings {
			b, ok := cat.Building(id)
			if !ok {
				return nil, planerrors.NewInvalidCatalogEntryError("building setup", string(id), "unknown building")
			}
			if b.Type != typeID {
				return nil, planerrors.NewInvalidCatalogEntryError("building setup", string(id),
					fmt.Sprintf("building is a %s, not a %s", b.Type, typeID))
			}
		}
		s.allowed[typeID] = append([]catalog.BuildingID(nil), buildings...)
	}
	return s, nil
}

// WithBelt makes plans report how many belts of this kind each input fills.
func (s *Setup) WithBelt(belt *catalog.Belt) *Setup {
	s.belt = belt
	return s
}

// WithLogger routes planner warnings to logger.
func (s *Setup) WithLogger(logger zerolog.Logger) *Setup {
	s.logger = logger
	return s
}

func (s *Setup) Resolver() *resolution.Resolver { return s.resolver }

// Allowed returns the variants usable for a building type, in catalog order.
func (s *Setup) Allowed(typeID catalog.BuildingTypeID) []*catalog.Building {
	cat := s.resolver.Catalog()
	bt, ok := cat.BuildingType(typeID)
	if !ok {
		return nil
	}
	restrict, restricted := s.allowed[typeID]

	var out []*catalog.Building
	for _, id := range bt.Buildings {
		if restricted && !containsBuilding(restrict, id) {
			continue
		}
		b, _ := cat.Building(id)
		out = append(out, b)
	}
	return out
}

// SelectBuilding picks the slowest allowed variant able to run recipe for item.
// The building type is the item's craft place, or the recipe's own type when
// the item has none. Ties keep catalog order.
func (s *Setup) SelectBuilding(recipe *catalog.Recipe, item *catalog.Item) (*catalog.Building, error) {
	typeID := item.CraftPlace
	if typeID == "" {
		typeID = recipe.BuildingType
	}

	var chosen *catalog.Building
	for _, b := range s.Allowed(typeID) {
		if chosen == nil || b.Speed.LessThan(chosen.Speed) {
			chosen = b
		}
	}
	if chosen == nil {
		return nil, planerrors.NewUnassignableBuildingError(string(recipe.ID), string(typeID))
	}
	return chosen, nil
}

// BuildingCount is (recipe duration in units of per × quantity) divided by
// (building speed × units of item produced per run).
func BuildingCount(recipe *catalog.Recipe, item catalog.ItemID, quantity units.Quantity, building *catalog.Building, per units.Time) (units.Quantity, error) {
	duration, err := recipe.Duration.Ticks()
	if err != nil {
		return units.Quantity{}, err
	}
	period, err := per.Ticks()
	if err != nil {
		return units.Quantity{}, err
	}
	if period.IsZero() {
		return units.Quantity{}, planerrors.NewInvalidTimeError(per.String(), "plan period must be positive")
	}
	divisor := period.Mul(units.NewQuantity(building.Speed)).Mul(recipe.OutputCount(item))
	if divisor.IsZero() {
		return units.Quantity{}, planerrors.NewUnassignableBuildingError(string(recipe.ID), string(building.Type))
	}
	return duration.Mul(quantity).Div(divisor), nil
}

func containsBuilding(ids []catalog.BuildingID, id catalog.BuildingID) bool {
	for _, have := range ids {
		if have == id {
			return true
		}
	}
	return false
}
