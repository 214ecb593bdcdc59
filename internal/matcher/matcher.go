package matcher

import (
	"assignment-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// ValueIndex answers the quantity and price fallback lookups: order items
// by id or normalized product name, and review-stage prices by normalized
// product name and assignee
type ValueIndex struct {
	config *IndexConfig

	itemsByID      map[string]models.OrderItem
	itemsByProduct map[string]models.OrderItem
	prices         map[priceKey]decimal.Decimal
}

type priceKey struct {
	product    string
	assignedTo string
}

// NewValueIndex builds the fallback index. The first order item per product
// and the first positive stage-4 price per (product, assignee) win.
func NewValueIndex(items []models.OrderItem, stage4 []models.Stage4Row, config *IndexConfig) *ValueIndex {
	if config == nil {
		config = DefaultIndexConfig()
	}

	vi := &ValueIndex{
		config:         config,
		itemsByID:      make(map[string]models.OrderItem, len(items)),
		itemsByProduct: make(map[string]models.OrderItem, len(items)),
		prices:         make(map[priceKey]decimal.Decimal, len(stage4)),
	}

	for _, item := range items {
		if _, seen := vi.itemsByID[item.ID]; !seen && item.ID != "" {
			vi.itemsByID[item.ID] = item
		}
		key := config.productKey(item.ProductName)
		if _, seen := vi.itemsByProduct[key]; !seen && key != "" {
			vi.itemsByProduct[key] = item
		}
	}

	for _, row := range stage4 {
		if !row.Price.IsPositive() {
			continue
		}
		key := priceKey{
			product:    config.productKey(row.Product),
			assignedTo: config.nameKey(row.AssignedTo),
		}
		if _, seen := vi.prices[key]; !seen {
			vi.prices[key] = row.Price
		}
	}

	return vi
}

// ItemByID returns the order item with the given id
func (vi *ValueIndex) ItemByID(id string) (models.OrderItem, bool) {
	item, ok := vi.itemsByID[id]
	return item, ok
}

// ItemByProduct returns the first order item whose normalized product name
// matches
func (vi *ValueIndex) ItemByProduct(product string) (models.OrderItem, bool) {
	key := vi.config.productKey(product)
	if key == "" {
		return models.OrderItem{}, false
	}
	item, ok := vi.itemsByProduct[key]
	return item, ok
}

// Stage4Price returns the review-stage price for a product and assignee
func (vi *ValueIndex) Stage4Price(product, assignedTo string) (decimal.Decimal, bool) {
	key := priceKey{
		product:    vi.config.productKey(product),
		assignedTo: vi.config.nameKey(assignedTo),
	}
	if key.product == "" {
		return decimal.Zero, false
	}
	price, ok := vi.prices[key]
	return price, ok
}
