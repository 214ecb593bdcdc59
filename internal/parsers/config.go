package parsers

import (
	"fmt"
	"strings"
)

// Canonical field names of the normalized schema. Alias tables map each of
// them to the key spellings found in persisted records.
const (
	FieldOrderID            = "orderId"
	FieldProductAssignments = "productAssignments"
	FieldDeliveryRoutes     = "deliveryRoutes"
	FieldSummaryData        = "summaryData"
	FieldStage4Data         = "stage4Data"
	FieldStatuses           = "assignmentStatuses"

	FieldOrderItemID      = "orderItemId"
	FieldRowID            = "rowId"
	FieldProduct          = "product"
	FieldEntityType       = "entityType"
	FieldEntityID         = "entityId"
	FieldEntityName       = "entityName"
	FieldAssignedQuantity = "assignedQuantity"
	FieldAssignedBoxes    = "assignedBoxes"
	FieldUnitPrice        = "unitPrice"
	FieldPlace            = "place"
	FieldIsRemaining      = "isRemaining"
	FieldTapeColor        = "tapeColor"
	FieldAddress          = "address"

	FieldRouteID  = "routeId"
	FieldSourceID = "sourceEntityId"
	FieldQuantity = "quantity"
	FieldDriver   = "driver"
	FieldLabour   = "labour"

	FieldItemID       = "id"
	FieldNeededWeight = "neededWeight"
	FieldNeededBoxes  = "neededBoxes"
	FieldItems        = "items"

	FieldAssignedTo = "assignedTo"
	FieldPrice      = "price"

	FieldStatus           = "status"
	FieldCollectionStatus = "collectionStatus"
	FieldDropDriver       = "dropDriver"

	FieldDriverGroupAssignments = "assignments"
)

// IngestConfig holds the alias tables used by the record parser.
// Multi-key lookups happen only here; the rest of the module sees
// the normalized models.
type IngestConfig struct {
	RecordAliases     map[string][]string `json:"record_aliases"`
	AssignmentAliases map[string][]string `json:"assignment_aliases"`
	RouteAliases      map[string][]string `json:"route_aliases"`
	OrderItemAliases  map[string][]string `json:"order_item_aliases"`
	Stage4Aliases     map[string][]string `json:"stage4_aliases"`
	StatusAliases     map[string][]string `json:"status_aliases"`
}

// DefaultIngestConfig returns the alias tables for the records the
// fulfillment backend persists
func DefaultIngestConfig() *IngestConfig {
	return &IngestConfig{
		RecordAliases: map[string][]string{
			FieldOrderID:            {"orderId", "order_id", "oid"},
			FieldProductAssignments: {"productAssignments", "product_assignments"},
			FieldDeliveryRoutes:     {"deliveryRoutes", "delivery_routes"},
			FieldSummaryData:        {"summaryData", "stage1_summary_data", "summary_data"},
			FieldStage4Data:         {"stage4Data", "stage4_data"},
			FieldStatuses:           {"assignmentStatuses", "assignment_statuses", "assignmentStatus"},
		},
		AssignmentAliases: map[string][]string{
			FieldOrderItemID:      {"orderItemId", "order_item_id", "oiid"},
			FieldRowID:            {"id", "rowId"},
			FieldProduct:          {"product", "productName", "product_name"},
			FieldEntityType:       {"entityType", "entity_type", "assignedType"},
			FieldEntityID:         {"entityId", "entity_id", "assignedId"},
			FieldEntityName:       {"entityName", "entity_name", "assignedTo"},
			FieldAssignedQuantity: {"assignedQuantity", "assignedQty", "assigned_qty", "quantity", "qty"},
			FieldAssignedBoxes:    {"assignedBoxes", "assigned_boxes", "boxes", "num_boxes"},
			FieldUnitPrice:        {"unitPrice", "unit_price", "price"},
			FieldPlace:            {"place", "pickupPlace"},
			FieldIsRemaining:      {"isRemaining", "is_remaining", "remaining"},
			FieldTapeColor:        {"tapeColor", "tape_color"},
			FieldAddress:          {"address"},
		},
		RouteAliases: map[string][]string{
			FieldRouteID:       {"routeId", "route_id", "id"},
			FieldSourceID:      {"sourceEntityId", "source_entity_id", "entityId", "sourceId"},
			FieldEntityType:    {"entityType", "entity_type", "type"},
			FieldEntityName:    {"entityName", "entity_name", "location", "name"},
			FieldOrderItemID:   {"orderItemId", "order_item_id", "oiid"},
			FieldProduct:       {"product", "productName"},
			FieldQuantity:      {"quantity", "assignedQty", "qty", "weight"},
			FieldAssignedBoxes: {"assignedBoxes", "boxes", "num_boxes"},
			FieldAddress:       {"address"},
			FieldDriver:        {"driver", "driverName"},
			FieldLabour:        {"labour", "labours", "labor"},
			FieldIsRemaining:   {"isRemaining", "is_remaining"},
		},
		OrderItemAliases: map[string][]string{
			FieldItemID:       {"id", "oiid", "orderItemId", "order_item_id"},
			FieldOrderID:      {"orderId", "order_id", "oid"},
			FieldProduct:      {"productName", "product", "product_name", "name"},
			FieldNeededWeight: {"neededWeight", "net_weight", "netWeight", "weight", "quantity"},
			FieldNeededBoxes:  {"neededBoxes", "num_boxes", "numBoxes", "boxes"},
			FieldItems:        {"items", "order_items", "orderItems"},
		},
		Stage4Aliases: map[string][]string{
			FieldProduct:    {"product", "productName", "product_name"},
			FieldAssignedTo: {"assignedTo", "assigned_to", "entityName"},
			FieldQuantity:   {"quantity", "qty", "weight", "net_weight"},
			FieldPrice:      {"price", "unitPrice", "unit_price", "rate"},
		},
		StatusAliases: map[string][]string{
			FieldStatus:           {"status"},
			FieldCollectionStatus: {"collectionStatus", "collection_status"},
			FieldDropDriver:       {"dropDriver", "drop_driver"},
		},
	}
}

// Validate checks that every alias table is present and non-empty
func (c *IngestConfig) Validate() error {
	tables := map[string]map[string][]string{
		"record":     c.RecordAliases,
		"assignment": c.AssignmentAliases,
		"route":      c.RouteAliases,
		"order item": c.OrderItemAliases,
		"stage4":     c.Stage4Aliases,
		"status":     c.StatusAliases,
	}

	for name, table := range tables {
		if len(table) == 0 {
			return fmt.Errorf("%s alias table cannot be empty", name)
		}
		for field, aliases := range table {
			if len(aliases) == 0 {
				return fmt.Errorf("%s alias table: field %s has no aliases", name, field)
			}
			for _, alias := range aliases {
				if strings.TrimSpace(alias) == "" {
					return fmt.Errorf("%s alias table: field %s has a blank alias", name, field)
				}
			}
		}
	}

	return nil
}

// WithExtraAliases returns a copy of the config with additional aliases
// appended to the given table and field
func (c *IngestConfig) WithExtraAliases(table, field string, aliases ...string) *IngestConfig {
	clone := &IngestConfig{
		RecordAliases:     cloneAliases(c.RecordAliases),
		AssignmentAliases: cloneAliases(c.AssignmentAliases),
		RouteAliases:      cloneAliases(c.RouteAliases),
		OrderItemAliases:  cloneAliases(c.OrderItemAliases),
		Stage4Aliases:     cloneAliases(c.Stage4Aliases),
		StatusAliases:     cloneAliases(c.StatusAliases),
	}

	var target map[string][]string
	switch table {
	case "record":
		target = clone.RecordAliases
	case "assignment":
		target = clone.AssignmentAliases
	case "route":
		target = clone.RouteAliases
	case "orderItem":
		target = clone.OrderItemAliases
	case "stage4":
		target = clone.Stage4Aliases
	case "status":
		target = clone.StatusAliases
	default:
		return clone
	}
	target[field] = append(target[field], aliases...)
	return clone
}

func cloneAliases(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}
