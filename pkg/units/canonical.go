// Package units provides the time units used by recipes and production rates.
package units

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	planerrors "factory-planner/pkg/errors"
)

// Unit is a time unit.
type Unit string

const (
	Tick   Unit = "tick"
	Second Unit = "sec"
	Minute Unit = "min"
)

// scales expresses every unit in ticks.
var scales = map[Unit]int64{
	Tick:   1,
	Second: 60,
	Minute: 60 * 60,
}

var aliases = map[string]Unit{
	"tick": Tick, "ticks": Tick, "t": Tick,
	"sec": Second, "s": Second, "second": Second, "seconds": Second,
	"min": Minute, "m": Minute, "minute": Minute, "minutes": Minute,
}

// ParseUnit accepts the canonical unit names and their common spellings.
func ParseUnit(s string) (Unit, error) {
	u, ok := aliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", planerrors.NewUnknownUnitError(s)
	}
	return u, nil
}

// Scale returns the number of ticks in one u.
func (u Unit) Scale() (Quantity, error) {
	s, ok := scales[u]
	if !ok {
		return Quantity{}, planerrors.NewUnknownUnitError(string(u))
	}
	return QuantityOf(s), nil
}

// Valid reports whether u is a known unit.
func (u Unit) Valid() bool {
	_, ok := scales[u]
	return ok
}

// Time is a value tagged with a unit.
type Time struct {
	Value Quantity `json:"value"`
	Unit  Unit     `json:"unit"`
}

// NewTime builds a Time from an exact value.
func NewTime(value Quantity, unit Unit) Time {
	return Time{Value: value, Unit: unit}
}

// Of builds a Time from a float literal. Meant for tests and static data.
func Of(value float64, unit Unit) Time {
	return Time{Value: NewQuantity(decimal.NewFromFloat(value)), Unit: unit}
}

// Ticks returns t expressed in ticks.
func (t Time) Ticks() (Quantity, error) {
	scale, err := t.Unit.Scale()
	if err != nil {
		return Quantity{}, err
	}
	return t.Value.Mul(scale), nil
}

// Factor returns the dimensionless ratio t / other.
func (t Time) Factor(other Time) (Quantity, error) {
	num, err := t.Ticks()
	if err != nil {
		return Quantity{}, err
	}
	den, err := other.Ticks()
	if err != nil {
		return Quantity{}, err
	}
	if den.IsZero() {
		return Quantity{}, planerrors.NewInvalidTimeError(other.String(), "cannot divide by a zero duration")
	}
	return num.Div(den), nil
}

// ConvertTo expresses t in another unit.
func (t Time) ConvertTo(unit Unit) (Time, error) {
	ticks, err := t.Ticks()
	if err != nil {
		return Time{}, err
	}
	scale, err := unit.Scale()
	if err != nil {
		return Time{}, err
	}
	return Time{Value: ticks.Div(scale), Unit: unit}, nil
}

// IsPositive reports whether t is a strictly positive duration.
func (t Time) IsPositive() bool {
	return t.Value.IsPositive()
}

func (t Time) String() string {
	return t.Value.String() + string(t.Unit)
}

// ParseTime reads forms like "3.5sec", "1 min" or "10". A bare number is seconds.
func ParseTime(s string) (Time, error) {
	raw := strings.TrimSpace(s)
	i := 0
	for i < len(raw) && (raw[i] == '.' || raw[i] == '-' || raw[i] == '+' || (raw[i] >= '0' && raw[i] <= '9')) {
		i++
	}
	if i == 0 {
		return Time{}, planerrors.NewInvalidTimeError(s, "missing numeric value")
	}
	value, err := decimal.NewFromString(raw[:i])
	if err != nil {
		return Time{}, planerrors.NewInvalidTimeError(s, err.Error())
	}
	unit := Second
	if rest := strings.TrimSpace(raw[i:]); rest != "" {
		if unit, err = ParseUnit(rest); err != nil {
			return Time{}, err
		}
	}
	return Time{Value: NewQuantity(value), Unit: unit}, nil
}

// MarshalText encodes t in the form read by ParseTime.
func (t Time) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText lets catalog files and config carry durations as "3.5sec".
func (t *Time) UnmarshalText(text []byte) error {
	parsed, err := ParseTime(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Debit is a production or transport rate. It keeps the duration of one
// unit in ticks.
type Debit struct {
	ticksPerUnit Quantity
}

// NewDebit builds the rate of count units over the given duration.
func NewDebit(count Quantity, over Time) (Debit, error) {
	if !count.IsPositive() {
		return Debit{}, planerrors.NewInvalidRateError(count.String(), "count must be positive")
	}
	if !over.IsPositive() {
		return Debit{}, planerrors.NewInvalidRateError(over.String(), "duration must be positive")
	}
	ticks, err := over.Ticks()
	if err != nil {
		return Debit{}, err
	}
	return Debit{ticksPerUnit: ticks.Div(count)}, nil
}

// SecondsPerUnit returns the time it takes for one unit to pass.
func (d Debit) SecondsPerUnit() Quantity {
	return d.ticksPerUnit.Div(QuantityOf(scales[Second]))
}

// During returns how many units pass in t.
func (d Debit) During(t Time) (Quantity, error) {
	if d.ticksPerUnit.IsZero() {
		return Quantity{}, planerrors.NewInvalidRateError("0", "rate is not initialised")
	}
	return t.Factor(Time{Value: d.ticksPerUnit, Unit: Tick})
}

// Per returns how many units pass in one unit of time.
func (d Debit) Per(unit Unit) (Quantity, error) {
	return d.During(Time{Value: QuantityOf(1), Unit: unit})
}

func (d Debit) String() string {
	perMin, err := d.Per(Minute)
	if err != nil {
		return "invalid rate"
	}
	return fmt.Sprintf("%s/%s", perMin.String(), Minute)
}
