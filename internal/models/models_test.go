package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseEntityType(t *testing.T) {
	tests := []struct {
		input    string
		expected EntityType
		wantErr  bool
	}{
		{"farmer", EntityFarmer, false},
		{"Farmer", EntityFarmer, false},
		{" suppliers ", EntitySupplier, false},
		{"thirdParty", EntityThirdParty, false},
		{"third_party", EntityThirdParty, false},
		{"Third Party", EntityThirdParty, false},
		{"", "", true},
		{"driver", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseEntityType(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestParsePlace(t *testing.T) {
	if ParsePlace("ownPlace") != PlaceOwn {
		t.Error("expected ownPlace")
	}
	if ParsePlace("own_place") != PlaceOwn {
		t.Error("expected own_place to parse as ownPlace")
	}
	if ParsePlace("") != PlaceFarmer {
		t.Error("expected empty place to default to farmerPlace")
	}
}

func TestParseRouteStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected RouteStatus
		wantErr  bool
	}{
		{"Drop", StatusDrop, false},
		{"picked and packed", StatusPickedAndPacked, false},
		{"", "", false},
		{"lost", "", true},
	}

	for _, tt := range tests {
		got, err := ParseRouteStatus(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: unexpected error state: %v", tt.input, err)
		}
		if got != tt.expected {
			t.Errorf("%q: expected %q, got %q", tt.input, tt.expected, got)
		}
	}
}

func TestDriverRef(t *testing.T) {
	var nilRef *DriverRef
	if !nilRef.IsZero() || nilRef.Display() != "" || nilRef.Key() != "" {
		t.Error("expected nil driver to be zero with empty display and key")
	}

	ref := &DriverRef{ID: "7", Name: "Suresh", Code: "DID-07"}
	if ref.Display() != "Suresh - DID-07" {
		t.Errorf("unexpected display %q", ref.Display())
	}
	if ref.Key() != "7" {
		t.Errorf("expected key to be the id, got %q", ref.Key())
	}

	unresolved := &DriverRef{Name: "Suresh", Code: "DID-07"}
	if unresolved.Key() != "Suresh - DID-07" {
		t.Errorf("expected key to fall back to display, got %q", unresolved.Key())
	}
}

func TestRowIDs(t *testing.T) {
	id := RemainingRowID("item-12", 3)
	if id != "item-12-remaining-3" {
		t.Fatalf("unexpected row id %q", id)
	}

	tests := []struct {
		rowID     string
		wantItem  string
		wantIndex int
	}{
		{"item-12-remaining-3", "item-12", 3},
		{"item-12", "item-12", -1},
		{"item-12-remaining-x", "item-12-remaining-x", -1},
		{"item-12-remaining-3x", "item-12-remaining-3x", -1},
	}

	for _, tt := range tests {
		item, n := SplitRowID(tt.rowID)
		if item != tt.wantItem || n != tt.wantIndex {
			t.Errorf("%s: expected (%s, %d), got (%s, %d)", tt.rowID, tt.wantItem, tt.wantIndex, item, n)
		}
	}
}

func TestOrderItemValidate(t *testing.T) {
	tests := []struct {
		name    string
		item    OrderItem
		wantErr bool
	}{
		{"valid", OrderItem{ID: "1", NeededWeight: decimal.NewFromInt(50), NeededBoxes: 10}, false},
		{"missing id", OrderItem{NeededWeight: decimal.NewFromInt(50)}, true},
		{"negative weight", OrderItem{ID: "1", NeededWeight: decimal.NewFromInt(-1)}, true},
		{"negative boxes", OrderItem{ID: "1", NeededBoxes: -2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAssignmentPredicates(t *testing.T) {
	a := Assignment{EntityType: EntityFarmer, EntityName: "Ravi"}
	if !a.HasEntity() {
		t.Error("expected entity to be selected")
	}
	if a.HasValue() {
		t.Error("expected no value without quantity or boxes")
	}

	a.AssignedBoxes = 2
	if !a.HasValue() {
		t.Error("expected boxes to count as a value")
	}

	if (&Assignment{EntityName: "Ravi"}).HasEntity() {
		t.Error("expected missing entity type to mean no entity")
	}
}

func TestEntityDetails(t *testing.T) {
	f := Farmer{FID: "F1", Name: "Ravi", Address: "Plot 4", City: "Nashik", PinCode: "422001", TapeColor: "red"}
	d := f.Details()

	if d.Type != EntityFarmer || d.ID != "F1" {
		t.Errorf("unexpected identity %s/%s", d.Type, d.ID)
	}
	if d.Address != "Plot 4, Nashik, 422001" {
		t.Errorf("unexpected address %q", d.Address)
	}

	order := Order{ID: "O1", Items: []OrderItem{{ID: "a"}, {ID: "b"}}}
	if item, ok := order.Item("b"); !ok || item.ID != "b" {
		t.Error("expected to find item b")
	}
	if _, ok := order.Item("z"); ok {
		t.Error("expected item z to be missing")
	}
}
