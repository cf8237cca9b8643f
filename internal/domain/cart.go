package domain

import "time"

type Cart struct {
	CustomerID string     `json:"customer_id"`
	Items      []CartItem `json:"items"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// QuantitiesByProduct sums the requested quantity per product, keeping the
// order in which products first appear in the cart.
func (c *Cart) QuantitiesByProduct() ([]string, map[string]int) {
	ids := make([]string, 0, len(c.Items))
	totals := make(map[string]int, len(c.Items))
	for _, item := range c.Items {
		if _, seen := totals[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		totals[item.ProductID] += item.Quantity
	}
	return ids, totals
}
