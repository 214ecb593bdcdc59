package reconciler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"assignment-reconciliation-service/internal/matcher"
	"assignment-reconciliation-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves records from memory and tracks concurrent fetches
type fakeSource struct {
	records map[string]*models.OrderAssignmentRecord
	delay   time.Duration
	block   map[string]bool

	inFlight int32
	maxSeen  int32
}

func (s *fakeSource) FetchOrderAssignment(ctx context.Context, orderID string) (*models.OrderAssignmentRecord, error) {
	n := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		max := atomic.LoadInt32(&s.maxSeen)
		if n <= max || atomic.CompareAndSwapInt32(&s.maxSeen, max, n) {
			break
		}
	}

	if s.block[orderID] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	record, ok := s.records[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	return record, nil
}

func createPayoutRecords() map[string]*models.OrderAssignmentRecord {
	return map[string]*models.OrderAssignmentRecord{
		"O1": {
			OrderID: "O1",
			ProductAssignments: []models.Assignment{
				{OrderItemID: "I1", Product: "Tomato", EntityType: models.EntityFarmer, EntityID: "F1", AssignedQuantity: dec("30"), UnitPrice: dec("10")},
				{OrderItemID: "I2", Product: "Onion", EntityType: models.EntitySupplier, EntityID: "S1", AssignedQuantity: dec("20")},
			},
			DeliveryRoutes: []models.DeliveryRoute{
				{RouteID: "farmer-F1-I1", Quantity: dec("30"), Driver: &models.DriverRef{ID: "7"}, Labours: []models.LabourRef{{ID: "3"}}},
				{RouteID: "supplier-S1-I2", Quantity: dec("20"), Driver: &models.DriverRef{Name: "mahesh"}},
			},
			Statuses: map[string]models.AssignmentStatus{
				"farmer-F1-I1": {Status: models.StatusDrop, DropDriver: &models.DriverRef{ID: "8"}},
				"farmer-F9-I9": {Status: models.StatusDrop, DropDriver: &models.DriverRef{ID: "7"}},
			},
		},
		"O3": {
			OrderID: "O3",
			ProductAssignments: []models.Assignment{
				{OrderItemID: "I5", Product: "Tomato", EntityType: models.EntityFarmer, EntityName: "Ravi", AssignedQuantity: dec("10")},
			},
			DeliveryRoutes: []models.DeliveryRoute{
				{RouteID: "farmer-F1-I5", Quantity: dec("10"), Driver: &models.DriverRef{Code: "DID-07"}, Labours: []models.LabourRef{{Name: "Amit Shah"}}},
				{RouteID: "farmer-F2-I6", Quantity: dec("5")},
			},
			Stage4Rows: []models.Stage4Row{{Product: "Tomato", AssignedTo: "Ravi", Price: dec("12")}},
		},
	}
}

func createTestPayoutIndex(t *testing.T) *matcher.EntityIndex {
	t.Helper()
	ix, err := matcher.NewEntityIndex(createTestReferenceData(), nil)
	require.NoError(t, err)
	return ix
}

func TestPayoutConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultPayoutConfig().Validate())

	config := DefaultPayoutConfig()
	config.Concurrency = 0
	assert.Error(t, config.Validate())

	config = DefaultPayoutConfig()
	config.DriverRatePerKg = dec("-1")
	assert.Error(t, config.Validate())

	_, err := NewPayoutOrchestrator(nil, nil, nil)
	assert.Error(t, err)

	_, err = NewPayoutOrchestrator(&fakeSource{}, nil, &PayoutConfig{Concurrency: -1})
	assert.Error(t, err)
}

func TestPayoutOrchestrator_Run(t *testing.T) {
	source := &fakeSource{records: createPayoutRecords()}
	config := DefaultPayoutConfig()
	config.DriverRatePerKg = dec("2")
	config.LabourRatePerKg = dec("1.5")

	orchestrator, err := NewPayoutOrchestrator(source, createTestPayoutIndex(t), config)
	require.NoError(t, err)

	var mu sync.Mutex
	var updates []PayoutProgress
	orchestrator.AddProgressCallback(func(p PayoutProgress) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, p)
	})

	report, err := orchestrator.Run(context.Background(), []string{"O1", "O2", "O3", "O1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"O1", "O3"}, report.Orders)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "O2", report.Skipped[0].OrderID)
	assert.Contains(t, report.Skipped[0].Reason, "not found")

	require.Len(t, updates, 3)
	last := updates[len(updates)-1]
	assert.Equal(t, 3, last.Done+last.Skipped)

	// drivers, heaviest first
	require.Len(t, report.Drivers, 2)
	suresh, mahesh := report.Drivers[0], report.Drivers[1]
	assert.Equal(t, "7", suresh.DriverID)
	assert.Equal(t, 2, suresh.Collections)
	assert.Equal(t, 2, suresh.Orders)
	assert.True(t, suresh.Weight.Equal(dec("40")), "got %s", suresh.Weight)
	assert.True(t, suresh.Amount.Equal(dec("80")), "got %s", suresh.Amount)
	assert.Equal(t, 0, suresh.Drops, "drops on unknown routes are ignored")

	assert.Equal(t, "8", mahesh.DriverID)
	assert.Equal(t, 1, mahesh.Collections)
	assert.Equal(t, 1, mahesh.Drops)
	assert.True(t, mahesh.Amount.Equal(dec("40")), "got %s", mahesh.Amount)

	require.Len(t, report.Labours, 1)
	assert.Equal(t, "3", report.Labours[0].LabourID)
	assert.Equal(t, 2, report.Labours[0].Routes)
	assert.True(t, report.Labours[0].Amount.Equal(dec("60")), "got %s", report.Labours[0].Amount)

	require.Len(t, report.Entities, 2)
	ravi := report.Entities[0]
	assert.Equal(t, "F1", ravi.EntityID)
	assert.True(t, ravi.Quantity.Equal(dec("40")), "got %s", ravi.Quantity)
	assert.True(t, ravi.Amount.Equal(dec("420")), "got %s", ravi.Amount)
	assert.Equal(t, 1, report.Entities[1].Unpriced)

	assert.Equal(t, 3, report.TotalCollections)
	assert.Equal(t, 1, report.UnassignedRoutes)
	assert.True(t, report.DriverAmount.Equal(dec("120")))
	assert.True(t, report.EntityAmount.Equal(dec("420")))
}

func TestPayoutOrchestrator_QuantityFallback(t *testing.T) {
	source := &fakeSource{records: map[string]*models.OrderAssignmentRecord{
		"O4": {
			OrderID: "O4",
			ProductAssignments: []models.Assignment{
				{OrderItemID: "I7", EntityType: models.EntityFarmer, EntityID: "F2", UnitPrice: dec("4")},
			},
		},
	}}

	orchestrator, err := NewPayoutOrchestrator(source, nil, nil)
	require.NoError(t, err)
	orchestrator.SetOrders([]models.Order{{ID: "O4", Items: []models.OrderItem{{ID: "I7", NeededWeight: dec("25")}}}})

	report, err := orchestrator.Run(context.Background(), []string{"O4"})
	require.NoError(t, err)
	require.Len(t, report.Entities, 1)
	assert.True(t, report.Entities[0].Quantity.Equal(dec("25")))
	assert.True(t, report.Entities[0].Amount.Equal(dec("100")))
}

func TestPayoutOrchestrator_BoundedConcurrency(t *testing.T) {
	records := make(map[string]*models.OrderAssignmentRecord)
	var ids []string
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("O%d", i)
		records[id] = &models.OrderAssignmentRecord{OrderID: id}
		ids = append(ids, id)
	}
	source := &fakeSource{records: records, delay: 10 * time.Millisecond}

	config := DefaultPayoutConfig()
	config.Concurrency = 2
	orchestrator, err := NewPayoutOrchestrator(source, nil, config)
	require.NoError(t, err)

	report, err := orchestrator.Run(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, report.Orders, 8)
	assert.Equal(t, ids, report.Orders, "report follows input order")
	assert.LessOrEqual(t, atomic.LoadInt32(&source.maxSeen), int32(2))
}

func TestPayoutOrchestrator_FetchTimeout(t *testing.T) {
	source := &fakeSource{
		records: createPayoutRecords(),
		block:   map[string]bool{"O1": true},
	}
	config := DefaultPayoutConfig()
	config.FetchTimeout = 20 * time.Millisecond

	orchestrator, err := NewPayoutOrchestrator(source, nil, config)
	require.NoError(t, err)

	report, err := orchestrator.Run(context.Background(), []string{"O1", "O3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"O3"}, report.Orders)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "O1", report.Skipped[0].OrderID)
}

func TestPayoutOrchestrator_Cancelled(t *testing.T) {
	source := &fakeSource{records: createPayoutRecords()}
	orchestrator, err := NewPayoutOrchestrator(source, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = orchestrator.Run(ctx, []string{"O1", "O3"})
	assert.Error(t, err)
}

func TestPayoutOrchestrator_DropDriverOrder(t *testing.T) {
	record := &models.OrderAssignmentRecord{
		OrderID:  "O5",
		Statuses: make(map[string]models.AssignmentStatus),
	}
	var want []string
	for i := 0; i < 8; i++ {
		routeID := fmt.Sprintf("farmer-F%d-I1", i)
		driverID := fmt.Sprintf("D%d", i)
		record.DeliveryRoutes = append(record.DeliveryRoutes, models.DeliveryRoute{RouteID: routeID, Quantity: dec("5")})
		record.Statuses[routeID] = models.AssignmentStatus{Status: models.StatusDrop, DropDriver: &models.DriverRef{ID: driverID}}
		want = append(want, driverID)
	}
	source := &fakeSource{records: map[string]*models.OrderAssignmentRecord{"O5": record}}

	orchestrator, err := NewPayoutOrchestrator(source, nil, nil)
	require.NoError(t, err)

	for run := 0; run < 20; run++ {
		report, err := orchestrator.Run(context.Background(), []string{"O5"})
		require.NoError(t, err)

		var got []string
		for _, d := range report.Drivers {
			assert.Equal(t, 1, d.Drops)
			got = append(got, d.DriverID)
		}
		require.Equal(t, want, got, "run %d", run)
	}
}
