package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// DisplayPlaces is the number of fraction digits Decimal keeps for values
// with no finite decimal form.
const DisplayPlaces = 16

// Quantity is an exact rational amount: item counts, building counts, ticks.
// Recipe scaling divides by output counts such as 3, so quantities stay
// fractions until they are rendered. The zero value is 0 and values are never
// mutated in place.
type Quantity struct {
	r *big.Rat
}

// NewQuantity converts a decimal exactly.
func NewQuantity(d decimal.Decimal) Quantity {
	return Quantity{r: d.Rat()}
}

// QuantityOf builds an integral quantity.
func QuantityOf(n int64) Quantity {
	return Quantity{r: new(big.Rat).SetInt64(n)}
}

// ParseQuantity reads decimals ("2.5", "1e3") and fractions ("1/3").
func ParseQuantity(s string) (Quantity, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(s))
	if !ok {
		return Quantity{}, fmt.Errorf("can't convert %q to a quantity", s)
	}
	return Quantity{r: r}, nil
}

// RequireQuantity is ParseQuantity that panics. Meant for tests and static data.
func RequireQuantity(s string) Quantity {
	q, err := ParseQuantity(s)
	if err != nil {
		panic(err)
	}
	return q
}

func (q Quantity) rat() *big.Rat {
	if q.r == nil {
		return new(big.Rat)
	}
	return q.r
}

func (q Quantity) Add(o Quantity) Quantity {
	return Quantity{r: new(big.Rat).Add(q.rat(), o.rat())}
}

func (q Quantity) Sub(o Quantity) Quantity {
	return Quantity{r: new(big.Rat).Sub(q.rat(), o.rat())}
}

func (q Quantity) Mul(o Quantity) Quantity {
	return Quantity{r: new(big.Rat).Mul(q.rat(), o.rat())}
}

// Div panics when o is zero.
func (q Quantity) Div(o Quantity) Quantity {
	return Quantity{r: new(big.Rat).Quo(q.rat(), o.rat())}
}

func (q Quantity) Cmp(o Quantity) int {
	return q.rat().Cmp(o.rat())
}

func (q Quantity) Equal(o Quantity) bool {
	return q.Cmp(o) == 0
}

func (q Quantity) LessThan(o Quantity) bool {
	return q.Cmp(o) < 0
}

func (q Quantity) IsZero() bool {
	return q.rat().Sign() == 0
}

func (q Quantity) IsPositive() bool {
	return q.rat().Sign() > 0
}

// IsInteger reports whether q has no fractional part.
func (q Quantity) IsInteger() bool {
	return q.rat().IsInt()
}

// Round returns q rounded half away from zero to places fraction digits.
func (q Quantity) Round(places int32) decimal.Decimal {
	return decimal.RequireFromString(q.rat().FloatString(int(places)))
}

// Decimal is the rendering form of q, exact whenever q has at most
// DisplayPlaces fraction digits.
func (q Quantity) Decimal() decimal.Decimal {
	return q.Round(DisplayPlaces)
}

// Fraction returns q in lowest terms, "7/3" or "2".
func (q Quantity) Fraction() string {
	return q.rat().RatString()
}

func (q Quantity) String() string {
	return q.Decimal().String()
}

// MarshalJSON writes the decimal form as a string, the way decimal.Decimal does.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return q.Decimal().MarshalJSON()
}

// UnmarshalJSON accepts quoted or bare numbers and quoted fractions.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		return nil
	}
	parsed, err := ParseQuantity(s)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
