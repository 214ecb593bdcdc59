package reconciler

import (
	"fmt"

	"assignment-reconciliation-service/internal/matcher"
	"assignment-reconciliation-service/internal/models"
	"assignment-reconciliation-service/pkg/errors"
	"assignment-reconciliation-service/pkg/logger"
)

// WorkspaceConfig holds configuration for an assignment workspace
type WorkspaceConfig struct {
	Index *matcher.IndexConfig `json:"index"`

	// BlockOnAmbiguous refuses to save rows whose entity is known only by a
	// name shared by several entities
	BlockOnAmbiguous bool `json:"block_on_ambiguous"`

	// RequireEveryItem refuses to save while an order item has no entity on
	// its primary row
	RequireEveryItem bool `json:"require_every_item"`
}

// DefaultWorkspaceConfig returns the configuration used by the editing UI
func DefaultWorkspaceConfig() *WorkspaceConfig {
	return &WorkspaceConfig{
		Index:            matcher.DefaultIndexConfig(),
		BlockOnAmbiguous: true,
		RequireEveryItem: true,
	}
}

// Validate checks the configuration
func (c *WorkspaceConfig) Validate() error {
	if c.Index == nil {
		return fmt.Errorf("index configuration is required")
	}
	return c.Index.Validate()
}

// AssignmentWorkspace is the working assignment set of one order while it is
// edited. It is owned by the caller and not safe for concurrent use.
type AssignmentWorkspace struct {
	config *WorkspaceConfig
	logger logger.Logger

	order  models.Order
	index  *matcher.EntityIndex
	stage4 []models.Stage4Row

	assignments map[string][]models.Assignment
	orphans     []models.Assignment
	routes      []models.DeliveryRoute
	statuses    map[string]models.AssignmentStatus
}

// NewWorkspace creates an empty workspace for an order
func NewWorkspace(order models.Order, ref *models.ReferenceData, config *WorkspaceConfig) (*AssignmentWorkspace, error) {
	if config == nil {
		config = DefaultWorkspaceConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "workspace", config, err)
	}

	for i := range order.Items {
		if err := order.Items[i].Validate(); err != nil {
			return nil, errors.ValidationError(errors.CodeInvalidField, "order.items", order.Items[i].ID, err)
		}
	}

	index, err := matcher.NewEntityIndex(ref, config.Index)
	if err != nil {
		return nil, err
	}

	return &AssignmentWorkspace{
		config:      config,
		logger:      logger.WithComponent("workspace").WithField("order_id", order.ID),
		order:       order,
		index:       index,
		assignments: make(map[string][]models.Assignment),
		statuses:    make(map[string]models.AssignmentStatus),
	}, nil
}

// Load replaces the working set with a persisted record. Assignments of
// items the order does not have are kept aside and written back unchanged.
func (w *AssignmentWorkspace) Load(record *models.OrderAssignmentRecord) error {
	w.assignments = make(map[string][]models.Assignment)
	w.orphans = nil
	w.routes = nil
	w.stage4 = nil
	w.statuses = make(map[string]models.AssignmentStatus)

	if record == nil {
		return nil
	}
	if record.OrderID != "" && w.order.ID != "" && record.OrderID != w.order.ID {
		return errors.ValidationError(errors.CodeInvalidField, "orderId", record.OrderID, nil).
			WithContext("expected", w.order.ID)
	}

	for _, a := range record.ProductAssignments {
		item, ok := w.order.Item(a.OrderItemID)
		if !ok {
			w.orphans = append(w.orphans, a)
			continue
		}
		if a.Product == "" {
			a.Product = item.ProductName
		}
		enriched, _ := w.index.EnrichAssignment(a)
		w.assignments[item.ID] = append(w.assignments[item.ID], enriched)
	}

	if len(w.orphans) > 0 {
		w.logger.WithField("order_item_ids", orderedItemIDs(w.orphans)).
			Warn("Assignments refer to unknown order items; kept unchanged")
	}

	for _, r := range record.DeliveryRoutes {
		if r.HasDriver() {
			r.Driver, _ = w.index.ResolveDriver(r.Driver)
		}
		r.Labours = w.index.ResolveLabours(r.Labours)
		w.routes = append(w.routes, r)
	}

	for routeID, status := range record.Statuses {
		if status.DropDriver != nil {
			status.DropDriver, _ = w.index.ResolveDriver(status.DropDriver)
		}
		w.statuses[routeID] = status
	}
	w.stage4 = append(w.stage4, record.Stage4Rows...)

	w.refreshRoutes()

	w.logger.WithFields(logger.Fields{
		"assignments": len(record.ProductAssignments),
		"orphans":     len(w.orphans),
		"routes":      len(w.routes),
	}).Debug("Workspace loaded")

	return nil
}

// Order returns the order being edited
func (w *AssignmentWorkspace) Order() models.Order {
	return w.order
}

// Index returns the reference index of the workspace
func (w *AssignmentWorkspace) Index() *matcher.EntityIndex {
	return w.index
}

// Assignments returns the working assignments in item order
func (w *AssignmentWorkspace) Assignments() []models.Assignment {
	var out []models.Assignment
	for _, item := range w.order.Items {
		out = append(out, w.assignments[item.ID]...)
	}
	return out
}

// RowSets derives the rows of every order item
func (w *AssignmentWorkspace) RowSets() []RowSet {
	return DeriveAll(w.order, w.Assignments())
}

// RowSet derives the rows of one order item
func (w *AssignmentWorkspace) RowSet(orderItemID string) (RowSet, error) {
	item, ok := w.order.Item(orderItemID)
	if !ok {
		return RowSet{}, w.unknownItem(orderItemID, "row lookup")
	}
	return DeriveRemainingRows(*item, w.assignments[item.ID]), nil
}

// SetAssignment writes the assignment of a row. The row id is the order item
// id for the primary row or {orderItemId}-remaining-{n}; writing the row
// just past the last one appends it.
func (w *AssignmentWorkspace) SetAssignment(rowID string, a models.Assignment) error {
	itemID, n := models.SplitRowID(rowID)
	item, ok := w.order.Item(itemID)
	if !ok {
		return w.unknownItem(itemID, "set assignment")
	}

	list := w.assignments[item.ID]
	pos := n + 1
	if pos > len(list) {
		return errors.ValidationError(errors.CodeOutOfRange, "rowId", rowID, nil).
			WithContext("rows", len(list))
	}

	a.OrderItemID = item.ID
	a.IsRemaining = pos > 0
	if a.Product == "" {
		a.Product = item.ProductName
	}

	enriched, res := w.index.EnrichAssignment(a)
	if res != nil && res.Ambiguous {
		w.logger.WithFields(logger.Fields{
			"row_id":     rowID,
			"candidates": res.Candidates,
		}).Warn("Entity name is ambiguous; select the entity by id")
	}

	updated := append([]models.Assignment(nil), list...)
	if pos == len(updated) {
		updated = append(updated, enriched)
	} else {
		updated[pos] = enriched
	}
	w.assignments[item.ID] = updated

	w.refreshRoutes()
	return nil
}

// AddRemaining appends an empty row to an order item and returns its id
func (w *AssignmentWorkspace) AddRemaining(orderItemID string) (string, error) {
	item, ok := w.order.Item(orderItemID)
	if !ok {
		return "", w.unknownItem(orderItemID, "add remaining row")
	}

	list := w.assignments[item.ID]
	a := models.Assignment{
		OrderItemID: item.ID,
		Product:     item.ProductName,
		IsRemaining: len(list) > 0,
	}
	w.assignments[item.ID] = append(append([]models.Assignment(nil), list...), a)

	if len(list) == 0 {
		return item.ID, nil
	}
	return models.RemainingRowID(item.ID, len(list)-1), nil
}

// RemoveRow deletes a row. Later remaining rows move up by one.
func (w *AssignmentWorkspace) RemoveRow(rowID string) error {
	itemID, n := models.SplitRowID(rowID)
	item, ok := w.order.Item(itemID)
	if !ok {
		return w.unknownItem(itemID, "remove row")
	}

	list := w.assignments[item.ID]
	pos := n + 1
	if pos >= len(list) {
		return errors.ValidationError(errors.CodeOutOfRange, "rowId", rowID, nil).
			WithContext("rows", len(list))
	}

	// rows after the removed one take the id of the row before them
	rows := DeriveRemainingRows(*item, list).Rows
	removed, _ := w.routeKey(rows[pos])
	renames := make(map[string]string)
	for p := pos + 1; p < len(list); p++ {
		oldID, ok := w.routeKey(rows[p])
		if !ok {
			continue
		}
		moved := rows[p]
		moved.Index = p - 2
		moved.ID = item.ID
		if moved.Index >= 0 {
			moved.ID = models.RemainingRowID(item.ID, moved.Index)
		}
		if newID, ok := w.routeKey(moved); ok && newID != oldID {
			renames[oldID] = newID
		}
	}
	w.renameRoutes(removed, renames)

	updated := make([]models.Assignment, 0, len(list)-1)
	updated = append(updated, list[:pos]...)
	updated = append(updated, list[pos+1:]...)
	for i := range updated {
		updated[i].IsRemaining = i > 0
	}
	w.assignments[item.ID] = updated

	w.refreshRoutes()
	return nil
}

// routeKey returns the route id a row materializes to
func (w *AssignmentWorkspace) routeKey(row AssignmentRow) (string, bool) {
	enriched, _ := w.index.EnrichAssignment(row.Assignment)
	row.Assignment = enriched
	route, ok := BuildRoute(row, w.index.ResolveEntityName(enriched.EntityType, enriched.EntityID))
	if !ok {
		return "", false
	}
	return route.RouteID, true
}

// renameRoutes drops the route and status of removed and moves the others
// to their new ids
func (w *AssignmentWorkspace) renameRoutes(removed string, renames map[string]string) {
	routes := make([]models.DeliveryRoute, 0, len(w.routes))
	for _, r := range w.routes {
		if removed != "" && r.RouteID == removed {
			continue
		}
		if newID, ok := renames[r.RouteID]; ok {
			r.RouteID = newID
		}
		routes = append(routes, r)
	}
	w.routes = routes

	statuses := make(map[string]models.AssignmentStatus, len(w.statuses))
	for routeID, status := range w.statuses {
		if _, moved := renames[routeID]; moved || (removed != "" && routeID == removed) {
			continue
		}
		statuses[routeID] = status
	}
	for oldID, newID := range renames {
		if status, ok := w.statuses[oldID]; ok {
			statuses[newID] = status
		}
	}
	w.statuses = statuses
}

// AssignDriver sets the driver of a route. A nil driver clears it. Drivers
// missing from the reference list are kept as given.
func (w *AssignmentWorkspace) AssignDriver(routeID string, driver *models.DriverRef) error {
	i, err := w.routeIndex(routeID, "assign driver")
	if err != nil {
		return err
	}

	if driver.IsZero() {
		w.routes[i].Driver = nil
		return nil
	}

	resolved, ok := w.index.ResolveDriver(driver)
	if !ok {
		w.logger.WithFields(logger.Fields{
			"route_id": routeID,
			"driver":   driver.Display(),
		}).Warn("Driver not found in reference list")
	}
	w.routes[i].Driver = resolved
	return nil
}

// AssignLabours replaces the labour of a route
func (w *AssignmentWorkspace) AssignLabours(routeID string, labours []models.LabourRef) error {
	i, err := w.routeIndex(routeID, "assign labour")
	if err != nil {
		return err
	}
	w.routes[i].Labours = w.index.ResolveLabours(labours)
	return nil
}

// SetStatus records the status flags of a route
func (w *AssignmentWorkspace) SetStatus(routeID string, status models.AssignmentStatus) error {
	if !status.Status.IsValid() {
		return errors.ValidationError(errors.CodeOutOfRange, "status", status.Status, nil)
	}
	if _, err := w.routeIndex(routeID, "set status"); err != nil {
		return err
	}

	if !status.DropDriver.IsZero() {
		status.DropDriver, _ = w.index.ResolveDriver(status.DropDriver)
	} else {
		status.DropDriver = nil
	}
	w.statuses[routeID] = status
	return nil
}

// Routes returns a copy of the current routes
func (w *AssignmentWorkspace) Routes() []models.DeliveryRoute {
	return append([]models.DeliveryRoute(nil), w.routes...)
}

// Status returns the status flags of a route
func (w *AssignmentWorkspace) Status(routeID string) (models.AssignmentStatus, bool) {
	s, ok := w.statuses[routeID]
	return s, ok
}

// Summary groups the current routes by driver
func (w *AssignmentWorkspace) Summary() Summary {
	return Summarize(w.routes)
}

// RowValue is the resolved quantity and price of a row
type RowValue struct {
	RowID      string            `json:"rowId"`
	Assignment models.Assignment `json:"assignment"`
	Value      ResolvedValue     `json:"value"`
}

// Values resolves the quantity and price of every row with an entity
func (w *AssignmentWorkspace) Values() []RowValue {
	vi := matcher.NewValueIndex(w.order.Items, w.stage4, w.config.Index)

	var out []RowValue
	for _, rs := range w.RowSets() {
		for _, row := range rs.Rows {
			if !row.Assignment.HasEntity() {
				continue
			}
			out = append(out, RowValue{
				RowID:      row.ID,
				Assignment: row.Assignment,
				Value:      ResolveAssignmentValueWith(row.Assignment, vi),
			})
		}
	}
	return out
}

// BuildSavePayload produces the document written back on save.
//
// Every primary row must name an entity type and an entity. Rows known only
// by an ambiguous name block the save. Failures are returned together as an
// *errors.ErrorSummary and no payload is produced.
func (w *AssignmentWorkspace) BuildSavePayload() (*SavePayload, error) {
	var issues []*errors.ReconcilerError

	payload := &SavePayload{
		OrderID:            w.order.ID,
		ProductAssignments: []models.Assignment{},
		DeliveryRoutes:     []SavedRoute{},
	}

	for _, rs := range w.RowSets() {
		for _, row := range rs.Rows {
			a := row.Assignment

			switch {
			case row.IsPrimary():
				if row.Synthesized && !w.config.RequireEveryItem {
					continue
				}
				issues = append(issues, checkRow(row)...)
			case row.Synthesized, !a.HasEntity() && !a.HasValue():
				continue
			case !a.HasEntity():
				w.logger.WithField("row_id", row.ID).Warn("Remaining row has a quantity but no entity; not saved")
				continue
			}

			if a.HasEntity() && a.EntityID == "" {
				res, ok := w.index.ResolveEntityID(a.EntityType, a.EntityName)
				switch {
				case ok && res.Ambiguous && w.config.BlockOnAmbiguous:
					issues = append(issues, errors.ValidationError(
						errors.CodeAmbiguousEntity,
						fmt.Sprintf("productAssignments[%s].entityName", row.ID),
						a.EntityName,
						nil,
					).WithContext("candidates", res.Candidates))
				case ok:
					a.EntityID = res.Details.ID
				default:
					w.logger.WithFields(logger.Fields{
						"row_id":      row.ID,
						"entity_type": a.EntityType.String(),
						"entity_name": a.EntityName,
					}).Warn("Entity name not found in reference list; saved without id")
				}
			}

			payload.ProductAssignments = append(payload.ProductAssignments, a)
		}
	}

	if len(issues) > 0 {
		summary := errors.NewErrorSummary(issues)
		w.logger.WithField("issues", summary.Total).Warn("Save blocked by validation errors")
		return nil, summary
	}

	payload.ProductAssignments = append(payload.ProductAssignments, w.orphans...)

	for _, r := range w.routes {
		saved := SavedRoute{DeliveryRoute: r}
		if status, ok := w.statuses[r.RouteID]; ok {
			saved.Status = status.Status
			saved.CollectionStatus = status.CollectionStatus
			saved.DropDriver = status.DropDriver
		}
		payload.DeliveryRoutes = append(payload.DeliveryRoutes, saved)
	}
	payload.SummaryData = Summarize(w.routes)
	if payload.SummaryData.Groups == nil {
		payload.SummaryData.Groups = []DriverGroup{}
	}

	w.logger.WithFields(logger.Fields{
		"assignments": len(payload.ProductAssignments),
		"routes":      len(payload.DeliveryRoutes),
		"drivers":     payload.SummaryData.TotalDrivers,
	}).Info("Save payload built")

	return payload, nil
}

// refreshRoutes rebuilds the routes from the rows. Statuses follow their
// route the way drivers do; statuses of routes that no longer exist are
// dropped.
func (w *AssignmentWorkspace) refreshRoutes() {
	previous := w.routes
	w.routes = MaterializeRoutes(w.RowSets(), previous, w.index)

	current := make(map[string]bool, len(w.routes))
	for _, r := range w.routes {
		current[r.RouteID] = true
	}

	gone := make(map[string][]string)
	for _, r := range previous {
		if !current[r.RouteID] {
			gone[sourceKey(r)] = append(gone[sourceKey(r)], r.RouteID)
		}
	}
	for _, r := range w.routes {
		if _, ok := w.statuses[r.RouteID]; ok {
			continue
		}
		if ids := gone[sourceKey(r)]; len(ids) == 1 {
			if status, ok := w.statuses[ids[0]]; ok {
				w.statuses[r.RouteID] = status
			}
		}
	}

	for _, ids := range gone {
		for _, id := range ids {
			delete(w.statuses, id)
		}
	}
}

func (w *AssignmentWorkspace) routeIndex(routeID, operation string) (int, error) {
	for i := range w.routes {
		if w.routes[i].RouteID == routeID {
			return i, nil
		}
	}
	return -1, errors.ReconciliationError(errors.CodeUnknownRoute, operation, nil).
		WithContext("route_id", routeID)
}

func (w *AssignmentWorkspace) unknownItem(orderItemID, operation string) error {
	return errors.ReconciliationError(errors.CodeUnknownOrderItem, operation, nil).
		WithContext("order_item_id", orderItemID)
}
