// Package reconciler is the partial-assignment reconciliation engine.
//
// An order item needs a weight (and possibly a box count). Assignments give
// parts of it to farmers, suppliers and third parties. The engine:
//   - groups assignments by order item, keeping list order
//   - derives the primary row and the "remaining" rows of each item,
//     carrying the running unassigned balance
//   - materializes one delivery route per row with a selected entity
//   - groups routes by driver and summarizes them
//   - resolves quantities and prices through the order and review-stage
//     fallbacks
//
// All of these are pure functions over snapshots. AssignmentWorkspace is
// the caller-owned mutable context used while editing, and
// PayoutOrchestrator aggregates payouts across many orders.
package reconciler

import (
	"assignment-reconciliation-service/internal/models"
)

// GroupByOrderItem partitions assignments by order item id. List order is
// preserved inside each group and nothing is dropped; items without
// assignments are absent from the map.
func GroupByOrderItem(assignments []models.Assignment) map[string][]models.Assignment {
	groups := make(map[string][]models.Assignment)
	for _, a := range assignments {
		groups[a.OrderItemID] = append(groups[a.OrderItemID], a)
	}
	return groups
}

// orderedItemIDs returns the group keys in first-appearance order
func orderedItemIDs(assignments []models.Assignment) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, a := range assignments {
		if !seen[a.OrderItemID] {
			seen[a.OrderItemID] = true
			ids = append(ids, a.OrderItemID)
		}
	}
	return ids
}
