package matcher

import (
	"testing"

	"assignment-reconciliation-service/internal/models"
)

func createTestReferenceData() *models.ReferenceData {
	return &models.ReferenceData{
		Farmers: []models.Farmer{
			{FID: "F1", Name: "Ravi", Address: "Plot 4", City: "Nashik", TapeColor: "red"},
			{FID: "F2", Name: "Sunita Patil", City: "Pune"},
			{FID: "F3", Name: "Ganesh"},
			{FID: "F4", Name: "ganesh "},
		},
		Suppliers: []models.Supplier{
			{SID: "S1", Name: "Agro Traders", TapeColor: "blue"},
		},
		ThirdParties: []models.ThirdParty{
			{TPID: "T1", Name: "Ravi"},
		},
		Drivers: []models.Driver{
			{DID: "7", Name: "Suresh", DriverCode: "DID-07"},
			{DID: "8", Name: "Mahesh", DriverCode: "DID-08"},
		},
		Labours: []models.Labour{
			{LID: "3", FullName: "Amit Shah"},
			{LID: "4", FullName: "Ramesh"},
		},
	}
}

func createTestIndex(t *testing.T) *EntityIndex {
	t.Helper()
	ix, err := NewEntityIndex(createTestReferenceData(), nil)
	if err != nil {
		t.Fatalf("failed to build index: %v", err)
	}
	return ix
}

func TestIndexConfig(t *testing.T) {
	if err := DefaultIndexConfig().Validate(); err != nil {
		t.Errorf("expected default config to be valid, got %v", err)
	}
	if err := (&IndexConfig{NameMatching: NameMatchMode(9)}).Validate(); err == nil {
		t.Error("expected invalid mode to fail validation")
	}
	if _, err := NewEntityIndex(nil, &IndexConfig{NameMatching: NameMatchMode(9)}); err == nil {
		t.Error("expected index creation to fail with invalid config")
	}

	mode, err := ParseNameMatchMode("exact")
	if err != nil || mode != NameMatchExact || mode.String() != "exact" {
		t.Errorf("unexpected mode %v (%v)", mode, err)
	}
	if _, err := ParseNameMatchMode("fuzzy"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestResolveEntityName(t *testing.T) {
	ix := createTestIndex(t)

	details := ix.ResolveEntityName(models.EntityFarmer, "F1")
	if details == nil {
		t.Fatal("expected farmer F1 to resolve")
	}
	if details.Name != "Ravi" || details.Address != "Plot 4, Nashik" || details.TapeColor != "red" {
		t.Errorf("unexpected details %+v", details)
	}

	tests := []struct {
		name       string
		entityType models.EntityType
		id         string
	}{
		{"unknown id", models.EntityFarmer, "F99"},
		{"wrong list", models.EntitySupplier, "F1"},
		{"empty id", models.EntityFarmer, ""},
		{"invalid type", models.EntityType("driver"), "7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ix.ResolveEntityName(tt.entityType, tt.id); got != nil {
				t.Errorf("expected nil, got %+v", got)
			}
		})
	}
}

func TestResolveEntityID(t *testing.T) {
	ix := createTestIndex(t)

	res, ok := ix.ResolveEntityID(models.EntityFarmer, "  sunita   PATIL ")
	if !ok || res.Details.ID != "F2" || res.Ambiguous {
		t.Errorf("expected unambiguous F2, got %+v (ok=%v)", res, ok)
	}

	res, ok = ix.ResolveEntityID(models.EntityFarmer, "Ganesh")
	if !ok {
		t.Fatal("expected Ganesh to resolve")
	}
	if !res.Ambiguous || res.Details.ID != "F3" || len(res.Candidates) != 2 {
		t.Errorf("expected ambiguous first match F3, got %+v", res)
	}

	res, ok = ix.ResolveEntityID(models.EntityThirdParty, "Ravi")
	if !ok || res.Details.ID != "T1" {
		t.Errorf("expected names to be scoped by type, got %+v", res)
	}

	if _, ok := ix.ResolveEntityID(models.EntitySupplier, "Ravi"); ok {
		t.Error("expected no supplier named Ravi")
	}
	if _, ok := ix.ResolveEntityID(models.EntityFarmer, " "); ok {
		t.Error("expected blank name not to resolve")
	}

	strict, err := NewEntityIndex(createTestReferenceData(), StrictIndexConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := strict.ResolveEntityID(models.EntityFarmer, "ravi"); ok {
		t.Error("expected exact matching to be case sensitive")
	}
}

func TestEntityRoundTrip(t *testing.T) {
	ix := createTestIndex(t)

	for _, f := range createTestReferenceData().Farmers[:2] {
		details := ix.ResolveEntityName(models.EntityFarmer, f.FID)
		res, ok := ix.ResolveEntityID(models.EntityFarmer, details.Name)
		if !ok || res.Details.ID != f.FID {
			t.Errorf("%s: expected round trip to return the same id, got %+v", f.FID, res)
		}
	}
}

func TestResolveDriver(t *testing.T) {
	ix := createTestIndex(t)

	tests := []struct {
		name   string
		ref    *models.DriverRef
		wantID string
		wantOK bool
	}{
		{"by id", &models.DriverRef{ID: "8"}, "8", true},
		{"by code", &models.DriverRef{Name: "S.", Code: "did-07"}, "7", true},
		{"by name", &models.DriverRef{Name: "mahesh"}, "8", true},
		{"unknown", &models.DriverRef{Name: "Nobody", Code: "X"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ix.ResolveDriver(tt.ref)
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if got.ID != tt.wantID {
				t.Errorf("expected id %q, got %q", tt.wantID, got.ID)
			}
			if ok && got.Display() == "" {
				t.Error("expected canonical display")
			}
		})
	}

	if got, ok := ix.ResolveDriver(nil); got != nil || ok {
		t.Error("expected nil driver to stay nil")
	}
}

func TestResolveLabours(t *testing.T) {
	ix := createTestIndex(t)

	refs := []models.LabourRef{
		{Name: "amit shah"},
		{ID: "3"},
		{ID: "4"},
		{Name: "Temp Worker"},
		{},
	}

	got := ix.ResolveLabours(refs)
	if len(got) != 3 {
		t.Fatalf("expected 3 labour refs, got %+v", got)
	}
	if got[0].ID != "3" || got[0].Name != "Amit Shah" {
		t.Errorf("expected canonical Amit Shah, got %+v", got[0])
	}
	if got[2].ID != "" || got[2].Name != "Temp Worker" {
		t.Errorf("expected unknown labour kept as given, got %+v", got[2])
	}
}

func TestEnrichAssignment(t *testing.T) {
	ix := createTestIndex(t)

	byID, res := ix.EnrichAssignment(models.Assignment{EntityType: models.EntityFarmer, EntityID: "F1"})
	if res != nil || byID.EntityName != "Ravi" || byID.TapeColor != "red" {
		t.Errorf("unexpected enrichment by id %+v", byID)
	}

	byName, res := ix.EnrichAssignment(models.Assignment{EntityType: models.EntitySupplier, EntityName: "agro traders"})
	if res == nil || byName.EntityID != "S1" || byName.EntityName != "Agro Traders" {
		t.Errorf("unexpected enrichment by name %+v", byName)
	}

	ambiguous, res := ix.EnrichAssignment(models.Assignment{EntityType: models.EntityFarmer, EntityName: "Ganesh"})
	if res == nil || !res.Ambiguous || ambiguous.EntityID != "" {
		t.Errorf("expected ambiguous name to leave the id empty, got %+v", ambiguous)
	}

	unknown, _ := ix.EnrichAssignment(models.Assignment{EntityType: models.EntityFarmer, EntityID: "F99", EntityName: "Old Name"})
	if unknown.EntityName != "Old Name" {
		t.Errorf("expected unknown id to keep its stored name, got %+v", unknown)
	}
}

func TestDuplicateNames(t *testing.T) {
	ix := createTestIndex(t)

	groups := ix.DuplicateNames()
	if len(groups) != 1 {
		t.Fatalf("expected 1 duplicate group, got %+v", groups)
	}
	if groups[0].EntityType != models.EntityFarmer || len(groups[0].IDs) != 2 {
		t.Errorf("unexpected group %+v", groups[0])
	}
	if ix.Stats().DuplicateNames != 1 || ix.Stats().Farmers != 4 {
		t.Errorf("unexpected stats %+v", ix.Stats())
	}
}
