// Package pricing computes order amounts. All arithmetic is decimal; amounts
// are rounded to cents half away from zero.
package pricing

import "github.com/shopspring/decimal"

var (
	TaxRate     = decimal.RequireFromString("0.05")
	ShippingFee = decimal.NewFromInt(50)
)

type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

type Breakdown struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// Compute prices a set of lines. The subtotal is summed unrounded, the tax is
// rounded to cents before it is added, and the total is rounded once at the end.
func Compute(lines []Line) Breakdown {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	tax := subtotal.Mul(TaxRate).Round(2)
	total := subtotal.Add(tax).Add(ShippingFee).Round(2)

	return Breakdown{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: ShippingFee,
		Total:    total,
	}
}
