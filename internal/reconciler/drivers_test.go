package reconciler

import (
	"testing"

	"assignment-reconciliation-service/internal/models"
)

func createTestRoutes() []models.DeliveryRoute {
	suresh := &models.DriverRef{ID: "7", Name: "Suresh", Code: "DID-07"}
	return []models.DeliveryRoute{
		{RouteID: "farmer-F1-I1", EntityType: models.EntityFarmer, Quantity: dec("30"), AssignedBoxes: 2, Driver: suresh},
		{RouteID: "farmer-F2-I1-remaining-0", EntityType: models.EntityFarmer, Quantity: dec("12.5"), Driver: &models.DriverRef{ID: "7", Name: "Suresh", Code: "DID-07"}},
		{RouteID: "supplier-S1-I2", EntityType: models.EntitySupplier, Quantity: dec("40")},
	}
}

func TestGroupRoutesByDriver(t *testing.T) {
	groups := GroupRoutesByDriver(createTestRoutes())

	if len(groups) != 1 {
		t.Fatalf("Expected 1 driver group, got %d", len(groups))
	}
	g := groups[0]
	if g.DriverID != "7" || g.DriverName != "Suresh - DID-07" {
		t.Errorf("Unexpected driver identity %q / %q", g.DriverID, g.DriverName)
	}
	if g.CollectionCount != 2 || len(g.Routes) != 2 {
		t.Errorf("Expected 2 collections, got %d", g.CollectionCount)
	}
	if !g.TotalWeight.Equal(dec("42.5")) || g.TotalBoxes != 2 {
		t.Errorf("Expected 42.5 kg and 2 boxes, got %s and %d", g.TotalWeight, g.TotalBoxes)
	}
}

func TestGroupRoutesByDriver_NameOnlyDrivers(t *testing.T) {
	routes := []models.DeliveryRoute{
		{RouteID: "r1", Quantity: dec("1"), Driver: &models.DriverRef{Name: "Mahesh", Code: "DID-08"}},
		{RouteID: "r2", Quantity: dec("2"), Driver: &models.DriverRef{ID: "7", Name: "Suresh"}},
		{RouteID: "r3", Quantity: dec("3"), Driver: &models.DriverRef{Name: "Mahesh", Code: "DID-08"}},
		{RouteID: "r4", Quantity: dec("4"), Driver: &models.DriverRef{}},
	}

	groups := GroupRoutesByDriver(routes)
	if len(groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(groups))
	}
	if groups[0].DriverID != "Mahesh - DID-08" || groups[0].CollectionCount != 2 {
		t.Errorf("Expected name-only driver grouped by display first, got %+v", groups[0])
	}
	if groups[1].DriverID != "7" {
		t.Errorf("Expected first-seen order, got %s second", groups[1].DriverID)
	}
}

func TestSummarize(t *testing.T) {
	summary := Summarize(createTestRoutes())

	if summary.TotalCollections != 2 {
		t.Errorf("Expected routes without a driver excluded, got %d collections", summary.TotalCollections)
	}
	if summary.TotalDrivers != 1 || summary.UnassignedRoutes != 1 {
		t.Errorf("Expected 1 driver and 1 unassigned route, got %d and %d", summary.TotalDrivers, summary.UnassignedRoutes)
	}
	if !summary.TotalWeight.Equal(dec("42.5")) {
		t.Errorf("Expected total weight 42.5, got %s", summary.TotalWeight)
	}

	empty := Summarize(nil)
	if empty.TotalCollections != 0 || len(empty.Groups) != 0 || !empty.TotalWeight.IsZero() {
		t.Errorf("Expected empty summary, got %+v", empty)
	}
}
