package reconciler

import (
	"encoding/json"
	"testing"

	"assignment-reconciliation-service/internal/models"
	"assignment-reconciliation-service/internal/parsers"
	"assignment-reconciliation-service/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestReferenceData() *models.ReferenceData {
	return &models.ReferenceData{
		Farmers: []models.Farmer{
			{FID: "F1", Name: "Ravi", Address: "Plot 4", TapeColor: "red"},
			{FID: "F2", Name: "Sunita Patil"},
			{FID: "F3", Name: "Ganesh"},
			{FID: "F4", Name: "ganesh "},
		},
		Suppliers:    []models.Supplier{{SID: "S1", Name: "Agro Traders"}},
		ThirdParties: []models.ThirdParty{{TPID: "T1", Name: "Ravi"}},
		Drivers: []models.Driver{
			{DID: "7", Name: "Suresh", DriverCode: "DID-07"},
			{DID: "8", Name: "Mahesh", DriverCode: "DID-08"},
		},
		Labours: []models.Labour{{LID: "3", FullName: "Amit Shah"}},
	}
}

func createTestOrder() models.Order {
	return models.Order{ID: "O1", Items: []models.OrderItem{
		{ID: "I1", OrderID: "O1", ProductName: "Tomato", NeededWeight: dec("100")},
		{ID: "I2", OrderID: "O1", ProductName: "Mango", NeededWeight: dec("50"), NeededBoxes: 10},
	}}
}

func createTestWorkspace(t *testing.T, config *WorkspaceConfig) *AssignmentWorkspace {
	t.Helper()
	ws, err := NewWorkspace(createTestOrder(), createTestReferenceData(), config)
	require.NoError(t, err)
	return ws
}

func issueCodes(t *testing.T, err error) []errors.ErrorCode {
	t.Helper()
	summary, ok := errors.AsErrorSummary(err)
	require.True(t, ok, "expected an error summary, got %v", err)
	var codes []errors.ErrorCode
	for _, e := range summary.Errors {
		codes = append(codes, e.Code)
	}
	return codes
}

func TestNewWorkspace_Validation(t *testing.T) {
	order := models.Order{ID: "O1", Items: []models.OrderItem{{ID: "", NeededWeight: dec("1")}}}
	_, err := NewWorkspace(order, nil, nil)
	require.Error(t, err)

	_, err = NewWorkspace(createTestOrder(), nil, &WorkspaceConfig{})
	require.Error(t, err)
	rerr, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeInvalidConfig, rerr.Code)
}

func TestWorkspace_SetAssignmentAndRows(t *testing.T) {
	ws := createTestWorkspace(t, nil)

	require.NoError(t, ws.SetAssignment("I1", models.Assignment{
		EntityType: models.EntityFarmer, EntityName: "ravi", AssignedQuantity: dec("30"),
	}))
	require.NoError(t, ws.SetAssignment("I1-remaining-0", models.Assignment{
		EntityType: models.EntityFarmer, EntityID: "F2", AssignedQuantity: dec("30"),
	}))

	rs, err := ws.RowSet("I1")
	require.NoError(t, err)
	require.Len(t, rs.Rows, 3)
	assert.Equal(t, "F1", rs.Rows[0].Assignment.EntityID)
	assert.Equal(t, "Plot 4", rs.Rows[0].Assignment.Address)
	assert.Equal(t, "Sunita Patil", rs.Rows[1].Assignment.EntityName)
	assert.True(t, rs.Rows[2].RequiredWeight.Equal(dec("40")))

	routes := ws.Routes()
	require.Len(t, routes, 2)
	assert.Equal(t, "farmer-F1-I1", routes[0].RouteID)
	assert.Equal(t, "farmer-F2-I1-remaining-0", routes[1].RouteID)

	// writing past the next row is refused
	err = ws.SetAssignment("I1-remaining-5", models.Assignment{EntityType: models.EntityFarmer, EntityID: "F3"})
	rerr, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeOutOfRange, rerr.Code)

	err = ws.SetAssignment("X9", models.Assignment{})
	rerr, ok = errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeUnknownOrderItem, rerr.Code)

	_, err = ws.RowSet("X9")
	assert.Error(t, err)
}

func TestWorkspace_AddAndRemoveRows(t *testing.T) {
	ws := createTestWorkspace(t, nil)

	id, err := ws.AddRemaining("I1")
	require.NoError(t, err)
	assert.Equal(t, "I1", id)

	id, err = ws.AddRemaining("I1")
	require.NoError(t, err)
	assert.Equal(t, "I1-remaining-0", id)

	require.NoError(t, ws.SetAssignment("I1", models.Assignment{EntityType: models.EntityFarmer, EntityID: "F1", AssignedQuantity: dec("20")}))
	require.NoError(t, ws.SetAssignment("I1-remaining-0", models.Assignment{EntityType: models.EntityFarmer, EntityID: "F2", AssignedQuantity: dec("20")}))
	require.NoError(t, ws.SetAssignment("I1-remaining-1", models.Assignment{EntityType: models.EntityFarmer, EntityID: "F3", AssignedQuantity: dec("20")}))
	require.NoError(t, ws.AssignDriver("farmer-F3-I1-remaining-1", &models.DriverRef{Code: "DID-08"}))

	// removing a middle row shifts later rows and keeps their driver
	require.NoError(t, ws.RemoveRow("I1-remaining-0"))

	routes := ws.Routes()
	require.Len(t, routes, 2)
	assert.Equal(t, "farmer-F3-I1-remaining-0", routes[1].RouteID)
	require.NotNil(t, routes[1].Driver)
	assert.Equal(t, "8", routes[1].Driver.ID)

	err = ws.RemoveRow("I1-remaining-4")
	assert.Error(t, err)

	_, err = ws.AddRemaining("X9")
	assert.Error(t, err)
}

func TestWorkspace_RemoveRowMovesStatuses(t *testing.T) {
	ws := createTestWorkspace(t, nil)
	require.NoError(t, ws.SetAssignment("I1", models.Assignment{EntityType: models.EntityFarmer, EntityID: "F1", AssignedQuantity: dec("10")}))
	require.NoError(t, ws.SetAssignment("I1-remaining-0", models.Assignment{EntityType: models.EntityFarmer, EntityID: "F2", AssignedQuantity: dec("10")}))
	require.NoError(t, ws.SetAssignment("I1-remaining-1", models.Assignment{EntityType: models.EntityFarmer, EntityID: "F2", AssignedQuantity: dec("10")}))
	require.NoError(t, ws.SetAssignment("I1-remaining-2", models.Assignment{EntityType: models.EntityFarmer, EntityID: "F3", AssignedQuantity: dec("10")}))

	require.NoError(t, ws.SetStatus("farmer-F2-I1-remaining-0", models.AssignmentStatus{Status: models.StatusPickedAndPacked}))
	require.NoError(t, ws.AssignDriver("farmer-F2-I1-remaining-1", &models.DriverRef{ID: "7"}))
	require.NoError(t, ws.SetStatus("farmer-F2-I1-remaining-1", models.AssignmentStatus{
		Status: models.StatusDrop, DropDriver: &models.DriverRef{ID: "8"},
	}))
	require.NoError(t, ws.SetStatus("farmer-F3-I1-remaining-2", models.AssignmentStatus{Status: models.StatusPickedAndPacked}))

	require.NoError(t, ws.RemoveRow("I1-remaining-0"))

	routes := ws.Routes()
	require.Len(t, routes, 3)
	assert.Equal(t, "farmer-F2-I1-remaining-0", routes[1].RouteID)
	require.NotNil(t, routes[1].Driver, "driver follows the row that moved up")
	assert.Equal(t, "7", routes[1].Driver.ID)
	assert.Equal(t, "farmer-F3-I1-remaining-1", routes[2].RouteID)

	status, ok := ws.Status("farmer-F2-I1-remaining-0")
	require.True(t, ok)
	assert.Equal(t, models.StatusDrop, status.Status)
	assert.Equal(t, "8", status.DropDriver.ID)

	status, ok = ws.Status("farmer-F3-I1-remaining-1")
	require.True(t, ok)
	assert.Equal(t, models.StatusPickedAndPacked, status.Status)

	for _, stale := range []string{"farmer-F2-I1-remaining-1", "farmer-F3-I1-remaining-2"} {
		_, ok := ws.Status(stale)
		assert.False(t, ok, "status of %s should not outlive its route", stale)
	}

	// replacing an entity drops the status of the old route
	require.NoError(t, ws.SetAssignment("I1-remaining-1", models.Assignment{EntityType: models.EntityFarmer, EntityID: "F1", AssignedQuantity: dec("10")}))
	_, ok = ws.Status("farmer-F3-I1-remaining-1")
	assert.False(t, ok)
}

func TestWorkspace_DriversLabourAndStatus(t *testing.T) {
	ws := createTestWorkspace(t, nil)
	require.NoError(t, ws.SetAssignment("I1", models.Assignment{EntityType: models.EntityFarmer, EntityID: "F1", AssignedQuantity: dec("30")}))
	require.NoError(t, ws.SetAssignment("I1-remaining-0", models.Assignment{EntityType: models.EntityFarmer, EntityID: "F2", AssignedQuantity: dec("30")}))
	require.NoError(t, ws.SetAssignment("I2", models.Assignment{EntityType: models.EntitySupplier, EntityID: "S1", AssignedBoxes: 4}))

	require.NoError(t, ws.AssignDriver("farmer-F1-I1", &models.DriverRef{Name: "suresh"}))
	require.NoError(t, ws.AssignDriver("supplier-S1-I2", &models.DriverRef{ID: "7"}))
	require.NoError(t, ws.AssignLabours("farmer-F1-I1", []models.LabourRef{{Name: "amit shah"}, {ID: "3"}}))

	summary := ws.Summary()
	assert.Equal(t, 2, summary.TotalCollections)
	assert.Equal(t, 1, summary.TotalDrivers)
	assert.Equal(t, 1, summary.UnassignedRoutes)
	assert.True(t, summary.TotalWeight.Equal(dec("50")), "got %s", summary.TotalWeight)

	routes := ws.Routes()
	require.Len(t, routes[0].Labours, 1)
	assert.Equal(t, "3", routes[0].Labours[0].ID)

	require.NoError(t, ws.AssignDriver("farmer-F1-I1", nil))
	assert.Equal(t, 1, ws.Summary().TotalCollections)

	err := ws.AssignDriver("farmer-F9-I1", &models.DriverRef{ID: "7"})
	rerr, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeUnknownRoute, rerr.Code)

	require.NoError(t, ws.SetStatus("supplier-S1-I2", models.AssignmentStatus{
		Status: models.StatusDrop, DropDriver: &models.DriverRef{Code: "DID-08"},
	}))
	status, ok := ws.Status("supplier-S1-I2")
	require.True(t, ok)
	assert.Equal(t, "8", status.DropDriver.ID)

	assert.Error(t, ws.SetStatus("supplier-S1-I2", models.AssignmentStatus{Status: "Lost"}))
}

func TestWorkspace_Values(t *testing.T) {
	ws := createTestWorkspace(t, nil)
	require.NoError(t, ws.Load(&models.OrderAssignmentRecord{
		OrderID: "O1",
		ProductAssignments: []models.Assignment{
			{OrderItemID: "I1", EntityType: models.EntityFarmer, EntityID: "F1"},
		},
		Stage4Rows: []models.Stage4Row{{Product: "Tomato", AssignedTo: "Ravi", Price: dec("45")}},
	}))

	values := ws.Values()
	require.Len(t, values, 1)
	assert.True(t, values[0].Value.Quantity.Equal(dec("100")))
	assert.True(t, values[0].Value.Price.Equal(dec("45")))
	assert.Equal(t, SourceStage4, values[0].Value.PriceSource)
}

func TestWorkspace_BuildSavePayload_RequiresEntities(t *testing.T) {
	ws := createTestWorkspace(t, nil)
	require.NoError(t, ws.SetAssignment("I1", models.Assignment{EntityType: models.EntityFarmer, EntityID: "F1", AssignedQuantity: dec("30")}))

	_, err := ws.BuildSavePayload()
	require.Error(t, err)
	assert.Equal(t, []errors.ErrorCode{errors.CodeMissingField, errors.CodeMissingField}, issueCodes(t, err))

	config := DefaultWorkspaceConfig()
	config.RequireEveryItem = false
	ws = createTestWorkspace(t, config)
	require.NoError(t, ws.SetAssignment("I1", models.Assignment{EntityType: models.EntityFarmer, EntityID: "F1", AssignedQuantity: dec("30")}))

	payload, err := ws.BuildSavePayload()
	require.NoError(t, err)
	assert.Len(t, payload.ProductAssignments, 1)
}

func TestWorkspace_BuildSavePayload_Ambiguous(t *testing.T) {
	ws := createTestWorkspace(t, nil)
	require.NoError(t, ws.SetAssignment("I1", models.Assignment{EntityType: models.EntityFarmer, EntityName: "Ganesh", AssignedQuantity: dec("10")}))
	require.NoError(t, ws.SetAssignment("I2", models.Assignment{EntityType: models.EntitySupplier, EntityID: "S1", AssignedBoxes: 2}))

	_, err := ws.BuildSavePayload()
	require.Error(t, err)
	assert.Contains(t, issueCodes(t, err), errors.CodeAmbiguousEntity)

	config := DefaultWorkspaceConfig()
	config.BlockOnAmbiguous = false
	ws = createTestWorkspace(t, config)
	require.NoError(t, ws.SetAssignment("I1", models.Assignment{EntityType: models.EntityFarmer, EntityName: "Ganesh", AssignedQuantity: dec("10")}))
	require.NoError(t, ws.SetAssignment("I2", models.Assignment{EntityType: models.EntitySupplier, EntityID: "S1", AssignedBoxes: 2}))

	payload, err := ws.BuildSavePayload()
	require.NoError(t, err)
	assert.Equal(t, "F3", payload.ProductAssignments[0].EntityID)
}

func TestWorkspace_SaveLoadRoundTrip(t *testing.T) {
	ws := createTestWorkspace(t, nil)
	require.NoError(t, ws.Load(&models.OrderAssignmentRecord{
		OrderID: "O1",
		ProductAssignments: []models.Assignment{
			{OrderItemID: "X9", EntityType: models.EntityFarmer, EntityID: "F2"},
		},
	}))
	require.NoError(t, ws.SetAssignment("I1", models.Assignment{EntityType: models.EntityFarmer, EntityName: "Ravi", AssignedQuantity: dec("30")}))
	require.NoError(t, ws.SetAssignment("I2", models.Assignment{EntityType: models.EntitySupplier, EntityID: "S1", AssignedBoxes: 4}))
	require.NoError(t, ws.AssignDriver("farmer-F1-I1", &models.DriverRef{ID: "7"}))
	require.NoError(t, ws.SetStatus("farmer-F1-I1", models.AssignmentStatus{Status: models.StatusPickedAndPacked}))

	payload, err := ws.BuildSavePayload()
	require.NoError(t, err)
	require.Len(t, payload.ProductAssignments, 3, "orphan assignments are written back")
	require.Len(t, payload.SummaryData.Groups, 1)
	assert.Equal(t, 1, payload.SummaryData.TotalDrivers)
	assert.Equal(t, 1, payload.SummaryData.TotalCollections)
	assert.Equal(t, 1, payload.SummaryData.UnassignedRoutes)
	assert.True(t, payload.SummaryData.TotalWeight.Equal(dec("30")), "got %s", payload.SummaryData.TotalWeight)

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	parser, err := parsers.NewRecordParser(nil)
	require.NoError(t, err)
	record, _, err := parser.ParseRecord(data)
	require.NoError(t, err)

	reloaded := createTestWorkspace(t, nil)
	require.NoError(t, reloaded.Load(record))

	rs, err := reloaded.RowSet("I1")
	require.NoError(t, err)
	assert.Equal(t, "F1", rs.Rows[0].Assignment.EntityID)
	assert.Equal(t, "Ravi", rs.Rows[0].Assignment.EntityName)
	assert.True(t, rs.Rows[0].Weight.Equal(dec("30")))

	routes := reloaded.Routes()
	require.Len(t, routes, 2)
	require.NotNil(t, routes[0].Driver)
	assert.Equal(t, "Suresh", routes[0].Driver.Name)

	status, ok := reloaded.Status("farmer-F1-I1")
	require.True(t, ok)
	assert.Equal(t, models.StatusPickedAndPacked, status.Status)

	again, err := reloaded.BuildSavePayload()
	require.NoError(t, err)
	assert.Equal(t, len(payload.ProductAssignments), len(again.ProductAssignments))
}

func TestWorkspace_LoadMalformedRecord(t *testing.T) {
	parser, err := parsers.NewRecordParser(nil)
	require.NoError(t, err)

	record, stats, err := parser.ParseRecord([]byte(`{"orderId":"O1","productAssignments":"[{broken","deliveryRoutes":7}`))
	require.NoError(t, err)
	assert.True(t, stats.HasIssues())

	ws := createTestWorkspace(t, nil)
	require.NoError(t, ws.Load(record))

	for _, rs := range ws.RowSets() {
		require.Len(t, rs.Rows, 1)
		assert.True(t, rs.Rows[0].Synthesized, "item %s should be unassigned", rs.Item.ID)
	}
	assert.Empty(t, ws.Routes())

	err = ws.Load(&models.OrderAssignmentRecord{OrderID: "O2"})
	assert.Error(t, err)
}
