package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// EntityType identifies which reference list supplies an assignment
type EntityType string

const (
	// EntityFarmer supplies produce from a registered farmer
	EntityFarmer EntityType = "farmer"
	// EntitySupplier supplies produce from a wholesale supplier
	EntitySupplier EntityType = "supplier"
	// EntityThirdParty supplies produce from a third-party vendor
	EntityThirdParty EntityType = "thirdParty"
)

// String returns the string representation of EntityType
func (t EntityType) String() string {
	return string(t)
}

// IsValid checks if the entity type is one of the known types
func (t EntityType) IsValid() bool {
	return t == EntityFarmer || t == EntitySupplier || t == EntityThirdParty
}

// ParseEntityType parses the spellings found in persisted records
func ParseEntityType(s string) (EntityType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("_", "", "-", "", " ", "").Replace(key)

	switch key {
	case "farmer", "farmers":
		return EntityFarmer, nil
	case "supplier", "suppliers":
		return EntitySupplier, nil
	case "thirdparty", "thirdparties", "tp":
		return EntityThirdParty, nil
	default:
		return "", fmt.Errorf("invalid entity type '%s': must be farmer, supplier or thirdParty", s)
	}
}

// Place records where the produce is picked up
type Place string

const (
	PlaceFarmer Place = "farmerPlace"
	PlaceOwn    Place = "ownPlace"
)

// IsValid checks if the place is known
func (p Place) IsValid() bool {
	return p == PlaceFarmer || p == PlaceOwn
}

// ParsePlace parses a place, defaulting unknown values to the farmer's place
func ParsePlace(s string) Place {
	key := strings.ToLower(strings.NewReplacer("_", "", " ", "").Replace(strings.TrimSpace(s)))
	switch key {
	case "ownplace", "own":
		return PlaceOwn
	default:
		return PlaceFarmer
	}
}

// RouteStatus is the per-route lifecycle flag
type RouteStatus string

const (
	StatusDrop            RouteStatus = "Drop"
	StatusPickedAndPacked RouteStatus = "Picked and Packed"
)

// IsValid checks if the status is known. The empty status is valid.
func (s RouteStatus) IsValid() bool {
	return s == "" || s == StatusDrop || s == StatusPickedAndPacked
}

// ParseRouteStatus parses a route status case-insensitively
func ParseRouteStatus(s string) (RouteStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "drop":
		return StatusDrop, nil
	case "picked and packed", "picked_and_packed", "pickedandpacked":
		return StatusPickedAndPacked, nil
	default:
		return "", fmt.Errorf("invalid route status '%s'", s)
	}
}

// OrderItem is one product line of an order
type OrderItem struct {
	ID           string          `json:"id"`
	OrderID      string          `json:"orderId"`
	ProductName  string          `json:"productName"`
	NeededWeight decimal.Decimal `json:"neededWeight"`
	NeededBoxes  int             `json:"neededBoxes,omitempty"`
}

// Validate performs basic validation on the OrderItem
func (i *OrderItem) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return fmt.Errorf("order item ID cannot be empty")
	}
	if i.NeededWeight.IsNegative() {
		return fmt.Errorf("order item %s: needed weight cannot be negative", i.ID)
	}
	if i.NeededBoxes < 0 {
		return fmt.Errorf("order item %s: needed boxes cannot be negative", i.ID)
	}
	return nil
}

// IsBoxBased reports whether the item carries a box count
func (i *OrderItem) IsBoxBased() bool {
	return i.NeededBoxes > 0
}

// Order is a customer order with its product lines
type Order struct {
	ID    string      `json:"id"`
	Items []OrderItem `json:"items"`
}

// Item returns the order item with the given id
func (o *Order) Item(id string) (*OrderItem, bool) {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// Assignment allocates part of an order item to a supplying entity
type Assignment struct {
	OrderItemID      string          `json:"orderItemId"`
	Product          string          `json:"product,omitempty"`
	EntityType       EntityType      `json:"entityType,omitempty"`
	EntityID         string          `json:"entityId,omitempty"`
	EntityName       string          `json:"entityName,omitempty"`
	AssignedQuantity decimal.Decimal `json:"assignedQuantity"`
	AssignedBoxes    int             `json:"assignedBoxes,omitempty"`
	UnitPrice        decimal.Decimal `json:"unitPrice"`
	Place            Place           `json:"place,omitempty"`
	IsRemaining      bool            `json:"isRemaining"`
	TapeColor        string          `json:"tapeColor,omitempty"`
	Address          string          `json:"address,omitempty"`
}

// HasEntity reports whether an entity has been selected
func (a *Assignment) HasEntity() bool {
	return a.EntityType.IsValid() && (a.EntityID != "" || strings.TrimSpace(a.EntityName) != "")
}

// HasValue reports whether the assignment carries a quantity or box count
func (a *Assignment) HasValue() bool {
	return a.AssignedQuantity.IsPositive() || a.AssignedBoxes > 0
}

// DriverRef identifies a driver. Code is the human-facing driver id (DID).
type DriverRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Code string `json:"code,omitempty"`
}

// IsZero reports whether no driver is referenced
func (d *DriverRef) IsZero() bool {
	return d == nil || (d.ID == "" && d.Name == "" && d.Code == "")
}

// Key is the grouping identity of the driver
func (d *DriverRef) Key() string {
	if d.IsZero() {
		return ""
	}
	if d.ID != "" {
		return d.ID
	}
	return d.Display()
}

// Display formats the driver as "Name - Code"
func (d *DriverRef) Display() string {
	if d.IsZero() {
		return ""
	}
	switch {
	case d.Name != "" && d.Code != "":
		return d.Name + " - " + d.Code
	case d.Name != "":
		return d.Name
	case d.Code != "":
		return d.Code
	default:
		return d.ID
	}
}

// LabourRef identifies a labourer
type LabourRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// DeliveryRoute is a pickup leg materialized from an assignment
type DeliveryRoute struct {
	RouteID        string          `json:"routeId"`
	SourceEntityID string          `json:"sourceEntityId"`
	EntityType     EntityType      `json:"entityType"`
	EntityName     string          `json:"entityName,omitempty"`
	OrderItemID    string          `json:"orderItemId"`
	Product        string          `json:"product"`
	Quantity       decimal.Decimal `json:"quantity"`
	AssignedBoxes  int             `json:"assignedBoxes,omitempty"`
	Address        string          `json:"address,omitempty"`
	Driver         *DriverRef      `json:"driver,omitempty"`
	Labours        []LabourRef     `json:"labour,omitempty"`
	IsRemaining    bool            `json:"isRemaining"`
}

// HasDriver reports whether a driver has been assigned
func (r *DeliveryRoute) HasDriver() bool {
	return !r.Driver.IsZero()
}

// AssignmentStatus holds per-route side-channel flags
type AssignmentStatus struct {
	Status           RouteStatus `json:"status,omitempty"`
	CollectionStatus string      `json:"collectionStatus,omitempty"`
	DropDriver       *DriverRef  `json:"dropDriver,omitempty"`
}

// Stage4Row is one line of the review-stage dataset
type Stage4Row struct {
	Product    string          `json:"product"`
	AssignedTo string          `json:"assignedTo"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
}

// OrderAssignmentRecord is the persisted assignment state of one order
type OrderAssignmentRecord struct {
	OrderID            string                      `json:"orderId"`
	ProductAssignments []Assignment                `json:"productAssignments"`
	DeliveryRoutes     []DeliveryRoute             `json:"deliveryRoutes"`
	Stage4Rows         []Stage4Row                 `json:"stage4Rows,omitempty"`
	Statuses           map[string]AssignmentStatus `json:"assignmentStatuses,omitempty"`
}

// RemainingRowID builds the id of the n-th remaining row of an order item
func RemainingRowID(orderItemID string, n int) string {
	return fmt.Sprintf("%s-remaining-%d", orderItemID, n)
}

// SplitRowID returns the order item id and remaining index encoded in a row id.
// The index is -1 for primary rows.
func SplitRowID(rowID string) (string, int) {
	idx := strings.LastIndex(rowID, "-remaining-")
	if idx < 0 {
		return rowID, -1
	}
	n, err := strconv.Atoi(rowID[idx+len("-remaining-"):])
	if err != nil || n < 0 {
		return rowID, -1
	}
	return rowID[:idx], n
}
