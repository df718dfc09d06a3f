package units_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factory-planner/pkg/units"
)

func TestQuantity_DivisionIsExact(t *testing.T) {
	third := units.QuantityOf(1).Div(units.QuantityOf(3))

	assert.Equal(t, "1/3", third.Fraction())
	assert.True(t, third.Mul(units.QuantityOf(3)).Equal(units.QuantityOf(1)))
	assert.True(t, third.Add(third).Add(third).Equal(units.QuantityOf(1)))
	assert.Equal(t, "0.3333333333333333", third.String())
}

func TestQuantity_FromDecimal(t *testing.T) {
	q := units.NewQuantity(decimal.RequireFromString("1.750"))

	assert.Equal(t, "7/4", q.Fraction())
	assert.Equal(t, "1.75", q.String())
	assert.True(t, q.Decimal().Equal(decimal.RequireFromString("1.75")))
}

func TestQuantity_ZeroValue(t *testing.T) {
	var zero units.Quantity

	assert.True(t, zero.IsZero())
	assert.False(t, zero.IsPositive())
	assert.Equal(t, "0", zero.String())
	assert.True(t, zero.Add(units.QuantityOf(2)).Equal(units.QuantityOf(2)))
}

func TestQuantity_Round(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0.075", "0.08"},
		{"-0.075", "-0.08"},
		{"2/3", "0.67"},
		{"7/4", "1.75"},
		{"12", "12"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, units.RequireQuantity(tt.in).Round(2).String())
		})
	}
}

func TestParseQuantity(t *testing.T) {
	q, err := units.ParseQuantity(" 2.5 ")
	require.NoError(t, err)
	assert.Equal(t, "5/2", q.Fraction())

	q, err = units.ParseQuantity("1/3")
	require.NoError(t, err)
	assert.True(t, q.LessThan(units.QuantityOf(1)))

	_, err = units.ParseQuantity("lots")
	assert.Error(t, err)
	assert.Panics(t, func() { units.RequireQuantity("lots") })
}

func TestQuantity_JSON(t *testing.T) {
	out, err := json.Marshal(struct {
		Q units.Quantity `json:"q"`
	}{units.RequireQuantity("3/2")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"q":"1.5"}`, string(out))

	for _, in := range []string{`"1.5"`, `1.5`, `"3/2"`} {
		var q units.Quantity
		require.NoError(t, json.Unmarshal([]byte(in), &q), in)
		assert.True(t, q.Equal(units.RequireQuantity("1.5")), in)
	}

	var q units.Quantity
	assert.Error(t, json.Unmarshal([]byte(`"many"`), &q))
}
