package reconciler

import (
	"assignment-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// weightPlaces is the rounding applied to derived weights
const weightPlaces = 2

// AssignmentRow is one editable row of an order item: the primary row or
// one of its remaining rows
type AssignmentRow struct {
	ID          string `json:"id"`
	OrderItemID string `json:"orderItemId"`

	// Index is -1 for the primary row, otherwise the remaining-row index
	Index int `json:"index"`

	// Assignment is the assignment shown in the row. Synthesized rows carry
	// an empty assignment.
	Assignment  models.Assignment `json:"assignment"`
	Synthesized bool              `json:"synthesized"`

	// RequiredWeight and RequiredBoxes are the balance still open before
	// this row is applied
	RequiredWeight decimal.Decimal `json:"requiredWeight"`
	RequiredBoxes  int             `json:"requiredBoxes,omitempty"`

	// Weight is what the row contributes: its quantity, or for box-based
	// items without a quantity, its boxes converted to weight
	Weight decimal.Decimal `json:"weight"`

	// Excess is the part of the row beyond the open balance (excess to stock)
	Excess      decimal.Decimal `json:"excess"`
	ExcessBoxes int             `json:"excessBoxes,omitempty"`
}

// IsPrimary reports whether this is the first row of the item
func (r AssignmentRow) IsPrimary() bool {
	return r.Index < 0
}

// RowSet is the derived display list of one order item
type RowSet struct {
	Item     models.OrderItem `json:"item"`
	Rows     []AssignmentRow  `json:"rows"`
	BoxBased bool             `json:"boxBased"`

	RemainingWeight decimal.Decimal `json:"remainingWeight"`
	RemainingBoxes  int             `json:"remainingBoxes,omitempty"`
	Excess          decimal.Decimal `json:"excess"`
	ExcessBoxes     int             `json:"excessBoxes,omitempty"`
}

// Primary returns the primary row
func (rs RowSet) Primary() AssignmentRow {
	return rs.Rows[0]
}

// Remaining returns the remaining rows, including a synthesized trailing row
func (rs RowSet) Remaining() []AssignmentRow {
	return rs.Rows[1:]
}

// IsFullyAssigned reports whether no balance is left
func (rs RowSet) IsFullyAssigned() bool {
	if rs.BoxBased {
		return rs.RemainingBoxes == 0
	}
	return !rs.RemainingWeight.IsPositive()
}

// DeriveRemainingRows builds the row list of one order item from its
// assignments in list order.
//
// The first assignment is the primary row and each further assignment a
// remaining row. Every row's requirement is the balance left by the rows
// before it, and quantity beyond that balance is recorded as excess while
// the balance stays at zero. One empty remaining row is appended when a
// balance is left and every remaining row already carries a value.
//
// Items with a box count deduct boxes once any assignment carries boxes and
// report weight as remainingBoxes/neededBoxes of the needed weight. Rows of
// such items given only a quantity deduct its box equivalent.
func DeriveRemainingRows(item models.OrderItem, assignments []models.Assignment) RowSet {
	rs := RowSet{
		Item:     item,
		BoxBased: isBoxBased(item, assignments),
		Excess:   decimal.Zero,
	}

	balanceWeight := item.NeededWeight
	if balanceWeight.IsNegative() {
		balanceWeight = decimal.Zero
	}
	balanceBoxes := decimal.Zero
	if item.NeededBoxes > 0 {
		balanceBoxes = decimal.NewFromInt(int64(item.NeededBoxes))
	}

	openWeight := func() decimal.Decimal {
		if rs.BoxBased {
			return boxWeight(item, balanceBoxes)
		}
		return balanceWeight
	}
	openBoxes := func() int {
		return int(balanceBoxes.Ceil().IntPart())
	}

	if len(assignments) == 0 {
		rs.Rows = []AssignmentRow{{
			ID:             item.ID,
			OrderItemID:    item.ID,
			Index:          -1,
			Assignment:     models.Assignment{OrderItemID: item.ID, Product: item.ProductName},
			Synthesized:    true,
			RequiredWeight: openWeight(),
			RequiredBoxes:  item.NeededBoxes,
			Weight:         decimal.Zero,
			Excess:         decimal.Zero,
		}}
		rs.RemainingWeight = openWeight()
		rs.RemainingBoxes = item.NeededBoxes
		if rs.RemainingBoxes < 0 {
			rs.RemainingBoxes = 0
		}
		return rs
	}

	allValued := true
	rs.Rows = make([]AssignmentRow, 0, len(assignments)+1)

	for i, a := range assignments {
		row := AssignmentRow{
			ID:             item.ID,
			OrderItemID:    item.ID,
			Index:          i - 1,
			Assignment:     a,
			RequiredWeight: openWeight(),
			RequiredBoxes:  openBoxes(),
			Weight:         a.AssignedQuantity,
			Excess:         decimal.Zero,
		}
		if i > 0 {
			row.ID = models.RemainingRowID(item.ID, i-1)
			row.Assignment.IsRemaining = true
		}
		row.Assignment.OrderItemID = item.ID

		if rs.BoxBased {
			boxes := decimal.NewFromInt(int64(a.AssignedBoxes))
			if a.AssignedBoxes <= 0 {
				boxes = weightBoxes(item, a.AssignedQuantity)
			}
			if !row.Weight.IsPositive() {
				row.Weight = boxWeight(item, boxes)
			}
			if boxes.GreaterThan(balanceBoxes) {
				excess := boxes.Sub(balanceBoxes)
				row.ExcessBoxes = int(excess.IntPart())
				row.Excess = boxWeight(item, excess)
				balanceBoxes = decimal.Zero
			} else {
				balanceBoxes = balanceBoxes.Sub(boxes)
			}
		} else {
			if a.AssignedQuantity.GreaterThan(balanceWeight) {
				row.Excess = a.AssignedQuantity.Sub(balanceWeight)
				balanceWeight = decimal.Zero
			} else {
				balanceWeight = balanceWeight.Sub(a.AssignedQuantity)
			}
		}

		rs.Excess = rs.Excess.Add(row.Excess)
		rs.ExcessBoxes += row.ExcessBoxes
		if i > 0 && !a.HasValue() {
			allValued = false
		}
		rs.Rows = append(rs.Rows, row)
	}

	rs.RemainingWeight = openWeight()
	if rs.BoxBased {
		rs.RemainingBoxes = openBoxes()
	}

	if allValued && !rs.IsFullyAssigned() {
		n := len(assignments) - 1
		rs.Rows = append(rs.Rows, AssignmentRow{
			ID:          models.RemainingRowID(item.ID, n),
			OrderItemID: item.ID,
			Index:       n,
			Assignment: models.Assignment{
				OrderItemID: item.ID,
				Product:     item.ProductName,
				IsRemaining: true,
			},
			Synthesized:    true,
			RequiredWeight: rs.RemainingWeight,
			RequiredBoxes:  rs.RemainingBoxes,
			Weight:         decimal.Zero,
			Excess:         decimal.Zero,
		})
	}

	return rs
}

func isBoxBased(item models.OrderItem, assignments []models.Assignment) bool {
	if item.NeededBoxes <= 0 {
		return false
	}
	for _, a := range assignments {
		if a.AssignedBoxes > 0 {
			return true
		}
	}
	return false
}

// boxWeight converts a box count to weight in proportion to the item
func boxWeight(item models.OrderItem, boxes decimal.Decimal) decimal.Decimal {
	if item.NeededBoxes <= 0 || !boxes.IsPositive() {
		return decimal.Zero
	}
	return boxes.
		Div(decimal.NewFromInt(int64(item.NeededBoxes))).
		Mul(item.NeededWeight).
		Round(weightPlaces)
}

// weightBoxes converts a weight to its share of the item's boxes
func weightBoxes(item models.OrderItem, weight decimal.Decimal) decimal.Decimal {
	if item.NeededBoxes <= 0 || !item.NeededWeight.IsPositive() || !weight.IsPositive() {
		return decimal.Zero
	}
	return weight.
		Div(item.NeededWeight).
		Mul(decimal.NewFromInt(int64(item.NeededBoxes)))
}

// DeriveAll derives the row sets of every item of an order, in item order
func DeriveAll(order models.Order, assignments []models.Assignment) []RowSet {
	groups := GroupByOrderItem(assignments)
	sets := make([]RowSet, 0, len(order.Items))
	for _, item := range order.Items {
		sets = append(sets, DeriveRemainingRows(item, groups[item.ID]))
	}
	return sets
}
