package reconciler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"assignment-reconciliation-service/internal/matcher"
	"assignment-reconciliation-service/internal/models"
	"assignment-reconciliation-service/pkg/errors"
	"assignment-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// AssignmentSource fetches the persisted assignment record of an order
type AssignmentSource interface {
	FetchOrderAssignment(ctx context.Context, orderID string) (*models.OrderAssignmentRecord, error)
}

// PayoutConfig holds configuration for payout aggregation
type PayoutConfig struct {
	// Concurrency bounds the number of orders fetched at once
	Concurrency int `json:"concurrency"`

	// FetchTimeout bounds each fetch; zero means no timeout
	FetchTimeout time.Duration `json:"fetch_timeout"`

	DriverRatePerKg decimal.Decimal `json:"driver_rate_per_kg"`
	LabourRatePerKg decimal.Decimal `json:"labour_rate_per_kg"`

	// ProgressInterval is the minimum time between progress log lines
	ProgressInterval time.Duration `json:"progress_interval"`
}

// DefaultPayoutConfig returns a configuration with sensible defaults
func DefaultPayoutConfig() *PayoutConfig {
	return &PayoutConfig{
		Concurrency:      8,
		FetchTimeout:     30 * time.Second,
		DriverRatePerKg:  decimal.Zero,
		LabourRatePerKg:  decimal.Zero,
		ProgressInterval: 2 * time.Second,
	}
}

// Validate checks the configuration
func (c *PayoutConfig) Validate() error {
	if c.Concurrency < 1 || c.Concurrency > 256 {
		return fmt.Errorf("concurrency must be between 1 and 256, got %d", c.Concurrency)
	}
	if c.FetchTimeout < 0 {
		return fmt.Errorf("fetch timeout cannot be negative")
	}
	if c.DriverRatePerKg.IsNegative() || c.LabourRatePerKg.IsNegative() {
		return fmt.Errorf("rates per kg cannot be negative")
	}
	return nil
}

// DriverPayout aggregates the collections of one driver across orders
type DriverPayout struct {
	DriverID    string          `json:"driverId"`
	Driver      string          `json:"driver"`
	Collections int             `json:"collections"`
	Drops       int             `json:"drops"`
	Orders      int             `json:"orders"`
	Weight      decimal.Decimal `json:"weight"`
	Amount      decimal.Decimal `json:"amount"`

	orders map[string]bool
}

// LabourPayout aggregates the routes one labourer worked on
type LabourPayout struct {
	LabourID string          `json:"labourId"`
	Name     string          `json:"name"`
	Routes   int             `json:"routes"`
	Weight   decimal.Decimal `json:"weight"`
	Amount   decimal.Decimal `json:"amount"`
}

// EntityPayout aggregates what is owed to one supplying entity
type EntityPayout struct {
	EntityType models.EntityType `json:"entityType"`
	EntityID   string            `json:"entityId"`
	EntityName string            `json:"entityName"`
	Quantity   decimal.Decimal   `json:"quantity"`
	Amount     decimal.Decimal   `json:"amount"`
	Unpriced   int               `json:"unpriced"`
}

// SkippedOrder is an order left out of the aggregation
type SkippedOrder struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// PayoutReport is the multi-order payout aggregation
type PayoutReport struct {
	Orders   []string       `json:"orders"`
	Skipped  []SkippedOrder `json:"skipped"`
	Drivers  []DriverPayout `json:"drivers"`
	Labours  []LabourPayout `json:"labours"`
	Entities []EntityPayout `json:"entities"`

	TotalCollections  int             `json:"totalCollections"`
	TotalWeight       decimal.Decimal `json:"totalWeight"`
	DriverAmount      decimal.Decimal `json:"driverAmount"`
	LabourAmount      decimal.Decimal `json:"labourAmount"`
	EntityAmount      decimal.Decimal `json:"entityAmount"`
	UnassignedRoutes  int             `json:"unassignedRoutes"`
	ProcessingSeconds float64         `json:"processingSeconds"`

	DriverRatePerKg decimal.Decimal `json:"driverRatePerKg"`
	LabourRatePerKg decimal.Decimal `json:"labourRatePerKg"`
}

// PayoutProgress is reported after every order
type PayoutProgress struct {
	Total   int    `json:"total"`
	Done    int    `json:"done"`
	Skipped int    `json:"skipped"`
	OrderID string `json:"orderId"`
}

// ProgressCallback is called to report payout progress
type ProgressCallback func(PayoutProgress)

// PayoutOrchestrator fetches the records of many orders concurrently and
// aggregates driver, labour and entity payouts. A failed fetch skips that
// order; the others still count.
type PayoutOrchestrator struct {
	source AssignmentSource
	index  *matcher.EntityIndex
	config *PayoutConfig
	logger logger.Logger

	orders            map[string]models.Order
	progressCallbacks []ProgressCallback
}

// NewPayoutOrchestrator creates an orchestrator. index may be nil, in which
// case drivers and labour are grouped as recorded.
func NewPayoutOrchestrator(source AssignmentSource, index *matcher.EntityIndex, config *PayoutConfig) (*PayoutOrchestrator, error) {
	if source == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "assignment_source", nil, nil).
			WithSuggestion("provide a source of order assignment records")
	}
	if config == nil {
		config = DefaultPayoutConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "payout", config.Concurrency, err)
	}
	if index == nil {
		var err error
		if index, err = matcher.NewEntityIndex(nil, nil); err != nil {
			return nil, err
		}
	}

	return &PayoutOrchestrator{
		source: source,
		index:  index,
		config: config,
		logger: logger.WithComponent("payout_orchestrator"),
		orders: make(map[string]models.Order),
	}, nil
}

// SetOrders registers order documents used for the quantity fallback
func (po *PayoutOrchestrator) SetOrders(orders []models.Order) {
	for _, o := range orders {
		po.orders[o.ID] = o
	}
}

// AddProgressCallback adds a progress callback function
func (po *PayoutOrchestrator) AddProgressCallback(callback ProgressCallback) {
	po.progressCallbacks = append(po.progressCallbacks, callback)
}

type orderResult struct {
	orderID string
	record  *models.OrderAssignmentRecord
	err     error
}

// Run fetches every order and aggregates the payouts. Only cancellation of
// ctx fails the run.
func (po *PayoutOrchestrator) Run(ctx context.Context, orderIDs []string) (*PayoutReport, error) {
	start := time.Now()
	orderIDs = dedupeOrderIDs(orderIDs)

	po.logger.WithFields(logger.Fields{
		"orders":      len(orderIDs),
		"concurrency": po.config.Concurrency,
	}).Info("Starting payout aggregation")

	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation:   "payout_fetch",
		Total:       int64(len(orderIDs)),
		LogInterval: po.config.ProgressInterval,
		Logger:      po.logger,
	})

	results := make([]orderResult, len(orderIDs))
	var mu sync.Mutex
	done, skipped := 0, 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(po.config.Concurrency)

	for i, orderID := range orderIDs {
		g.Go(func() error {
			record, err := po.fetch(gctx, orderID)
			results[i] = orderResult{orderID: orderID, record: record, err: err}

			if err != nil {
				tracker.Skip()
				po.logger.WithError(err).WithField("order_id", orderID).Warn("Order skipped from payout aggregation")
			} else {
				tracker.Increment()
			}

			mu.Lock()
			if err != nil {
				skipped++
			} else {
				done++
			}
			progress := PayoutProgress{Total: len(orderIDs), Done: done, Skipped: skipped, OrderID: orderID}
			mu.Unlock()
			po.notify(progress)

			// per-order failures never cancel the others
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NetworkError(errors.CodeTimeout, "payout aggregation", err)
	}

	stats := tracker.Complete()
	report := po.aggregate(results)
	report.ProcessingSeconds = time.Since(start).Seconds()

	po.logger.WithFields(logger.Fields{
		"orders":      len(report.Orders),
		"skipped":     len(report.Skipped),
		"drivers":     len(report.Drivers),
		"collections": report.TotalCollections,
		"progress":    stats.String(),
	}).Info("Payout aggregation completed")

	return report, nil
}

func (po *PayoutOrchestrator) fetch(ctx context.Context, orderID string) (*models.OrderAssignmentRecord, error) {
	if po.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, po.config.FetchTimeout)
		defer cancel()
	}

	record, err := po.source.FetchOrderAssignment(ctx, orderID)
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryNetwork, errors.CodeFetchFailed, "fetch failed for order "+orderID)
	}
	if record == nil {
		return nil, errors.NetworkError(errors.CodeFetchFailed, orderID, fmt.Errorf("empty record"))
	}
	return record, nil
}

func (po *PayoutOrchestrator) notify(progress PayoutProgress) {
	for _, callback := range po.progressCallbacks {
		callback(progress)
	}
}

// aggregate folds the fetched records in input order so the report does
// not depend on fetch timing
func (po *PayoutOrchestrator) aggregate(results []orderResult) *PayoutReport {
	report := &PayoutReport{
		Orders:          []string{},
		Skipped:         []SkippedOrder{},
		TotalWeight:     decimal.Zero,
		DriverAmount:    decimal.Zero,
		LabourAmount:    decimal.Zero,
		EntityAmount:    decimal.Zero,
		DriverRatePerKg: po.config.DriverRatePerKg,
		LabourRatePerKg: po.config.LabourRatePerKg,
	}

	drivers := make(map[string]*DriverPayout)
	labours := make(map[string]*LabourPayout)
	entities := make(map[string]*EntityPayout)
	var driverOrder, labourOrder, entityOrder []string

	for _, res := range results {
		if res.err != nil {
			report.Skipped = append(report.Skipped, SkippedOrder{OrderID: res.orderID, Reason: res.err.Error()})
			continue
		}
		report.Orders = append(report.Orders, res.orderID)
		record := res.record

		routes := make([]models.DeliveryRoute, 0, len(record.DeliveryRoutes))
		for _, r := range record.DeliveryRoutes {
			if r.HasDriver() {
				r.Driver, _ = po.index.ResolveDriver(r.Driver)
			}
			r.Labours = po.index.ResolveLabours(r.Labours)
			routes = append(routes, r)
		}

		summary := Summarize(routes)
		report.TotalCollections += summary.TotalCollections
		report.TotalWeight = report.TotalWeight.Add(summary.TotalWeight)
		report.UnassignedRoutes += summary.UnassignedRoutes

		for _, g := range summary.Groups {
			dp, ok := drivers[g.DriverID]
			if !ok {
				dp = &DriverPayout{
					DriverID: g.DriverID,
					Driver:   g.DriverName,
					Weight:   decimal.Zero,
					orders:   make(map[string]bool),
				}
				drivers[g.DriverID] = dp
				driverOrder = append(driverOrder, g.DriverID)
			}
			dp.Collections += g.CollectionCount
			dp.Weight = dp.Weight.Add(g.TotalWeight)
			dp.orders[res.orderID] = true
		}

		// drops follow route order; statuses of unknown routes are ignored
		dropped := make(map[string]bool, len(routes))
		for _, r := range routes {
			status, ok := record.Statuses[r.RouteID]
			if !ok || status.DropDriver.IsZero() || dropped[r.RouteID] {
				continue
			}
			dropped[r.RouteID] = true
			drop, _ := po.index.ResolveDriver(status.DropDriver)
			key := drop.Key()
			dp, ok := drivers[key]
			if !ok {
				dp = &DriverPayout{DriverID: key, Driver: drop.Display(), Weight: decimal.Zero, orders: make(map[string]bool)}
				drivers[key] = dp
				driverOrder = append(driverOrder, key)
			}
			dp.Drops++
		}

		for _, r := range routes {
			for _, l := range r.Labours {
				key := l.ID
				if key == "" {
					key = "name:" + matcher.NormalizeName(l.Name)
				}
				lp, ok := labours[key]
				if !ok {
					lp = &LabourPayout{LabourID: l.ID, Name: l.Name, Weight: decimal.Zero}
					labours[key] = lp
					labourOrder = append(labourOrder, key)
				}
				lp.Routes++
				lp.Weight = lp.Weight.Add(r.Quantity)
			}
		}

		order := po.orders[record.OrderID]
		vi := matcher.NewValueIndex(order.Items, record.Stage4Rows, nil)
		for _, a := range record.ProductAssignments {
			if !a.HasEntity() {
				continue
			}
			a, _ = po.index.EnrichAssignment(a)
			value := ResolveAssignmentValueWith(a, vi)

			key := a.EntityType.String() + "|" + a.EntityID
			if a.EntityID == "" {
				key += "|name:" + matcher.NormalizeName(a.EntityName)
			}
			ep, ok := entities[key]
			if !ok {
				ep = &EntityPayout{
					EntityType: a.EntityType,
					EntityID:   a.EntityID,
					EntityName: a.EntityName,
					Quantity:   decimal.Zero,
					Amount:     decimal.Zero,
				}
				entities[key] = ep
				entityOrder = append(entityOrder, key)
			}
			ep.Quantity = ep.Quantity.Add(value.Quantity)
			ep.Amount = ep.Amount.Add(value.Amount())
			if value.PriceSource == SourceNone {
				ep.Unpriced++
			}
		}
	}

	for _, key := range driverOrder {
		dp := drivers[key]
		dp.Orders = len(dp.orders)
		dp.Weight = dp.Weight.Round(weightPlaces)
		dp.Amount = dp.Weight.Mul(po.config.DriverRatePerKg).Round(2)
		report.DriverAmount = report.DriverAmount.Add(dp.Amount)
		report.Drivers = append(report.Drivers, *dp)
	}
	for _, key := range labourOrder {
		lp := labours[key]
		lp.Weight = lp.Weight.Round(weightPlaces)
		lp.Amount = lp.Weight.Mul(po.config.LabourRatePerKg).Round(2)
		report.LabourAmount = report.LabourAmount.Add(lp.Amount)
		report.Labours = append(report.Labours, *lp)
	}
	for _, key := range entityOrder {
		ep := entities[key]
		ep.Quantity = ep.Quantity.Round(weightPlaces)
		report.EntityAmount = report.EntityAmount.Add(ep.Amount)
		report.Entities = append(report.Entities, *ep)
	}

	sort.SliceStable(report.Drivers, func(i, j int) bool {
		a, b := report.Drivers[i], report.Drivers[j]
		if !a.Weight.Equal(b.Weight) {
			return a.Weight.GreaterThan(b.Weight)
		}
		return a.DriverID < b.DriverID
	})
	report.TotalWeight = report.TotalWeight.Round(weightPlaces)

	return report
}

func dedupeOrderIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
