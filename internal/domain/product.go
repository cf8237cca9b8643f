package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type ApprovalStatus string

const (
	ApprovalApproved    ApprovalStatus = "approved"
	ApprovalPending     ApprovalStatus = "pending"
	ApprovalDisapproved ApprovalStatus = "disapproved"
)

// Product is a catalog listing. NewPrice is the unit price a customer pays.
type Product struct {
	ID                string
	Name              string
	Category          string
	Material          string
	ImageURL          string
	Description       string
	OldPrice          decimal.Decimal
	NewPrice          decimal.Decimal
	AvailableQuantity int
	ApprovalStatus    ApprovalStatus
}

// PurchasableQuantity is the stock a customer may buy right now.
// Listings that are not approved have none.
func (p *Product) PurchasableQuantity() int {
	if p.ApprovalStatus != ApprovalApproved {
		return 0
	}
	return p.AvailableQuantity
}

// ValidatePrices rejects negative and sub-cent prices. Every store keeps
// prices exactly as given, so they must already be whole cents.
func (p *Product) ValidatePrices() error {
	for _, price := range []struct {
		field string
		value decimal.Decimal
	}{
		{"old_price", p.OldPrice},
		{"new_price", p.NewPrice},
	} {
		if price.value.IsNegative() || !price.value.Equal(price.value.Truncate(2)) {
			return fmt.Errorf("%w: product %s %s %s", ErrInvalidPrice, p.ID, price.field, price.value)
		}
	}
	return nil
}

func (p *Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{
		Name:        p.Name,
		Category:    p.Category,
		Material:    p.Material,
		ImageURL:    p.ImageURL,
		OldPrice:    p.OldPrice,
		NewPrice:    p.NewPrice,
		Description: p.Description,
	}
}
