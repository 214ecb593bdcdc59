package reconciler

import (
	"assignment-reconciliation-service/internal/matcher"
	"assignment-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// ValueSource records which fallback tier produced a value
type ValueSource string

const (
	SourceAssignment       ValueSource = "assignment"
	SourceOrderItem        ValueSource = "order_item"
	SourceOrderItemProduct ValueSource = "order_item_product"
	SourceStage4           ValueSource = "stage4"
	SourceNone             ValueSource = "none"
)

// ResolvedValue is the quantity and price used for an assignment
type ResolvedValue struct {
	Quantity       decimal.Decimal `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	QuantitySource ValueSource     `json:"quantitySource"`
	PriceSource    ValueSource     `json:"priceSource"`
}

// Amount is quantity times price, rounded to two places
func (v ResolvedValue) Amount() decimal.Decimal {
	return v.Quantity.Mul(v.Price).Round(2)
}

// ResolveAssignmentValue resolves the quantity and price of an assignment.
//
// Quantity: the assigned quantity when nonzero, then the needed weight of
// the order item with the same id, then of the first item with the same
// normalized product name. Price: the unit price when nonzero, then the
// review-stage price for the same normalized product and assignee name.
// Missing data resolves to zero.
func ResolveAssignmentValue(a models.Assignment, items []models.OrderItem, stage4 []models.Stage4Row) ResolvedValue {
	return ResolveAssignmentValueWith(a, matcher.NewValueIndex(items, stage4, nil))
}

// ResolveAssignmentValueWith resolves against a prebuilt index
func ResolveAssignmentValueWith(a models.Assignment, vi *matcher.ValueIndex) ResolvedValue {
	v := ResolvedValue{
		Quantity:       decimal.Zero,
		Price:          decimal.Zero,
		QuantitySource: SourceNone,
		PriceSource:    SourceNone,
	}
	if vi == nil {
		vi = matcher.NewValueIndex(nil, nil, nil)
	}

	product := a.Product
	item, byID := vi.ItemByID(a.OrderItemID)
	if product == "" && byID {
		product = item.ProductName
	}

	switch {
	case !a.AssignedQuantity.IsZero():
		v.Quantity, v.QuantitySource = a.AssignedQuantity, SourceAssignment
	case byID:
		v.Quantity, v.QuantitySource = item.NeededWeight, SourceOrderItem
	default:
		if match, ok := vi.ItemByProduct(product); ok {
			v.Quantity, v.QuantitySource = match.NeededWeight, SourceOrderItemProduct
		}
	}

	if !a.UnitPrice.IsZero() {
		v.Price, v.PriceSource = a.UnitPrice, SourceAssignment
	} else if price, ok := vi.Stage4Price(product, a.EntityName); ok {
		v.Price, v.PriceSource = price, SourceStage4
	}

	return v
}
