package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name     string
		lines    []Line
		subtotal string
		tax      string
		total    string
	}{
		{
			name:     "single line",
			lines:    []Line{{UnitPrice: d("100"), Quantity: 2}},
			subtotal: "200",
			tax:      "10",
			total:    "260",
		},
		{
			name: "two lines",
			lines: []Line{
				{UnitPrice: d("10"), Quantity: 2},
				{UnitPrice: d("5"), Quantity: 1},
			},
			subtotal: "25",
			tax:      "1.25",
			total:    "76.25",
		},
		{
			name:     "tax rounds half up",
			lines:    []Line{{UnitPrice: d("0.10"), Quantity: 1}},
			subtotal: "0.1",
			tax:      "0.01",
			total:    "50.11",
		},
		{
			name:     "fractional prices",
			lines:    []Line{{UnitPrice: d("19.99"), Quantity: 3}},
			subtotal: "59.97",
			tax:      "3",
			total:    "112.97",
		},
		{
			name:     "no lines still charges shipping",
			lines:    nil,
			subtotal: "0",
			tax:      "0",
			total:    "50",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.lines)
			assert.True(t, got.Subtotal.Equal(d(tt.subtotal)), "subtotal %s", got.Subtotal)
			assert.True(t, got.Tax.Equal(d(tt.tax)), "tax %s", got.Tax)
			assert.True(t, got.Shipping.Equal(d("50")))
			assert.True(t, got.Total.Equal(d(tt.total)), "total %s", got.Total)
		})
	}
}

func TestCompute_NoFloatDrift(t *testing.T) {
	lines := make([]Line, 0, 10)
	for i := 0; i < 10; i++ {
		lines = append(lines, Line{UnitPrice: d("0.1"), Quantity: 1})
	}

	got := Compute(lines)
	assert.Equal(t, "1", got.Subtotal.String())
	assert.Equal(t, "51.05", got.Total.StringFixed(2))
}
