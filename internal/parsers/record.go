package parsers

import (
	"encoding/json"
	"strings"

	"assignment-reconciliation-service/internal/models"
	"assignment-reconciliation-service/pkg/errors"
	"assignment-reconciliation-service/pkg/logger"
)

// driverGroupRouteKeys are the keys a summary group uses for its routes
var driverGroupRouteKeys = []string{FieldDriverGroupAssignments, "routes", "deliveries"}

// RecordParser decodes persisted order-assignment records
type RecordParser struct {
	baseParser
	config *IngestConfig
}

// NewRecordParser creates a record parser. A nil config uses the defaults.
func NewRecordParser(config *IngestConfig) (*RecordParser, error) {
	if config == nil {
		config = DefaultIngestConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "ingest", "alias tables", err)
	}

	return &RecordParser{
		baseParser: newBaseParser("record-parser"),
		config:     config,
	}, nil
}

// ParseRecord decodes one record. It fails only when data is not a JSON
// object; degraded fields are reported through the returned stats.
func (p *RecordParser) ParseRecord(data []byte) (*models.OrderAssignmentRecord, *ParseStats, error) {
	stats := NewParseStats("order_assignment")

	obj, err := decodeObject(data)
	if err != nil {
		return nil, stats, errors.ParseError(errors.CodeInvalidJSON, stats.Source, "", truncate(string(data)), err)
	}

	record := &models.OrderAssignmentRecord{
		OrderID:  stringField(obj, p.config.RecordAliases[FieldOrderID]),
		Statuses: map[string]models.AssignmentStatus{},
	}
	if record.OrderID != "" {
		stats.Source = "order_assignment:" + record.OrderID
	}

	field := func(name string) interface{} {
		v, _ := lookup(obj, p.config.RecordAliases[name])
		return v
	}

	record.ProductAssignments = p.ParseAssignments(field(FieldProductAssignments), stats)
	routes, inline := p.parseRoutes(field(FieldDeliveryRoutes), stats)
	record.DeliveryRoutes = routes
	record.Stage4Rows = p.ParseStage4(field(FieldStage4Data), stats)

	// the status map wins over flags written inline on routes
	for routeID, status := range inline {
		record.Statuses[routeID] = status
	}
	for routeID, status := range p.ParseStatuses(field(FieldStatuses), stats) {
		record.Statuses[routeID] = status
	}

	drivers := p.ParseSummaryDrivers(field(FieldSummaryData), stats)
	restored := 0
	for i := range record.DeliveryRoutes {
		route := &record.DeliveryRoutes[i]
		if route.HasDriver() {
			continue
		}
		if driver, ok := drivers[route.RouteID]; ok {
			d := *driver
			route.Driver = &d
			restored++
		}
	}

	p.logger.WithFields(logger.Fields{
		"order_id":         record.OrderID,
		"assignments":      len(record.ProductAssignments),
		"routes":           len(record.DeliveryRoutes),
		"stage4_rows":      len(record.Stage4Rows),
		"drivers_restored": restored,
		"issues":           len(stats.Issues),
	}).Debug("Parsed order assignment record")

	return record, stats, nil
}

// ParseAssignments normalizes a product_assignments value. Entries without
// an order item id are skipped.
func (p *RecordParser) ParseAssignments(value interface{}, stats *ParseStats) []models.Assignment {
	if stats == nil {
		stats = NewParseStats("product_assignments")
	}
	aliases := p.config.AssignmentAliases

	objs := p.decodeArray(value, FieldProductAssignments, stats)
	out := make([]models.Assignment, 0, len(objs))
	for _, obj := range objs {
		a := models.Assignment{
			OrderItemID: stringField(obj, aliases[FieldOrderItemID]),
			Product:     stringField(obj, aliases[FieldProduct]),
			EntityID:    stringField(obj, aliases[FieldEntityID]),
			EntityName:  stringField(obj, aliases[FieldEntityName]),
			TapeColor:   stringField(obj, aliases[FieldTapeColor]),
			Address:     stringField(obj, aliases[FieldAddress]),
			Place:       models.ParsePlace(stringField(obj, aliases[FieldPlace])),
		}

		if rowID := stringField(obj, aliases[FieldRowID]); rowID != "" {
			itemID, n := models.SplitRowID(rowID)
			if a.OrderItemID == "" {
				a.OrderItemID = itemID
			}
			if n >= 0 {
				a.IsRemaining = true
			}
		}
		if a.OrderItemID == "" {
			stats.EntriesSkip++
			p.degrade(stats, FieldOrderItemID, errors.CodeMissingField, "", nil)
			continue
		}

		if v, ok := lookup(obj, aliases[FieldIsRemaining]); ok && asBool(v) {
			a.IsRemaining = true
		}

		if raw := stringField(obj, aliases[FieldEntityType]); raw != "" {
			entityType, err := models.ParseEntityType(raw)
			if err != nil {
				p.degrade(stats, FieldEntityType, errors.CodeInvalidEntity, raw, err)
			}
			a.EntityType = entityType
		}

		a.AssignedQuantity = p.decimalField(obj, aliases[FieldAssignedQuantity], FieldAssignedQuantity, stats)
		a.AssignedBoxes = p.intField(obj, aliases[FieldAssignedBoxes], FieldAssignedBoxes, stats)
		a.UnitPrice = p.decimalField(obj, aliases[FieldUnitPrice], FieldUnitPrice, stats)

		out = append(out, a)
	}
	return out
}

// ParseRoutes normalizes a delivery_routes value. Entries without a route
// id are skipped.
func (p *RecordParser) ParseRoutes(value interface{}, stats *ParseStats) []models.DeliveryRoute {
	if stats == nil {
		stats = NewParseStats("delivery_routes")
	}
	routes, _ := p.parseRoutes(value, stats)
	return routes
}

// parseRoutes also returns the status flags written inline on routes
func (p *RecordParser) parseRoutes(value interface{}, stats *ParseStats) ([]models.DeliveryRoute, map[string]models.AssignmentStatus) {
	aliases := p.config.RouteAliases
	statuses := make(map[string]models.AssignmentStatus)

	objs := p.decodeArray(value, FieldDeliveryRoutes, stats)
	out := make([]models.DeliveryRoute, 0, len(objs))
	for _, obj := range objs {
		r := models.DeliveryRoute{
			RouteID:        stringField(obj, aliases[FieldRouteID]),
			SourceEntityID: stringField(obj, aliases[FieldSourceID]),
			EntityName:     stringField(obj, aliases[FieldEntityName]),
			OrderItemID:    stringField(obj, aliases[FieldOrderItemID]),
			Product:        stringField(obj, aliases[FieldProduct]),
			Address:        stringField(obj, aliases[FieldAddress]),
		}
		if r.RouteID == "" {
			stats.EntriesSkip++
			p.degrade(stats, FieldRouteID, errors.CodeMissingField, "", nil)
			continue
		}

		if raw := stringField(obj, aliases[FieldEntityType]); raw != "" {
			entityType, err := models.ParseEntityType(raw)
			if err != nil {
				p.degrade(stats, FieldEntityType, errors.CodeInvalidEntity, raw, err)
			}
			r.EntityType = entityType
		}

		r.Quantity = p.decimalField(obj, aliases[FieldQuantity], FieldQuantity, stats)
		r.AssignedBoxes = p.intField(obj, aliases[FieldAssignedBoxes], FieldAssignedBoxes, stats)

		if v, ok := lookup(obj, aliases[FieldDriver]); ok {
			r.Driver = p.parseDriver(v, stats)
		}
		if v, ok := lookup(obj, aliases[FieldLabour]); ok {
			r.Labours = p.parseLabours(v, stats)
		}
		if v, ok := lookup(obj, aliases[FieldIsRemaining]); ok {
			r.IsRemaining = asBool(v)
		} else if _, n := models.SplitRowID(r.RouteID); n >= 0 {
			r.IsRemaining = true
		}

		if status, ok := p.inlineStatus(obj, stats); ok {
			statuses[r.RouteID] = status
		}

		out = append(out, r)
	}
	return out, statuses
}

func (p *RecordParser) inlineStatus(obj object, stats *ParseStats) (models.AssignmentStatus, bool) {
	aliases := p.config.StatusAliases

	var status models.AssignmentStatus
	found := false

	if raw := stringField(obj, aliases[FieldStatus]); raw != "" {
		parsed, err := models.ParseRouteStatus(raw)
		if err != nil {
			p.degrade(stats, FieldStatus, errors.CodeInvalidField, raw, err)
		}
		status.Status = parsed
		found = true
	}
	if cs := stringField(obj, aliases[FieldCollectionStatus]); cs != "" {
		status.CollectionStatus = cs
		found = true
	}
	if d, ok := lookup(obj, aliases[FieldDropDriver]); ok {
		status.DropDriver = p.parseDriver(d, stats)
		found = found || status.DropDriver != nil
	}
	return status, found
}

// ParseStage4 normalizes the review-stage rows
func (p *RecordParser) ParseStage4(value interface{}, stats *ParseStats) []models.Stage4Row {
	if stats == nil {
		stats = NewParseStats("stage4_data")
	}
	aliases := p.config.Stage4Aliases

	// some records wrap the rows in an object
	if m, ok := value.(map[string]interface{}); ok {
		value, _ = lookup(object(m), []string{"rows", "products", "items"})
	}

	objs := p.decodeArray(value, FieldStage4Data, stats)
	out := make([]models.Stage4Row, 0, len(objs))
	for _, obj := range objs {
		row := models.Stage4Row{
			Product:    stringField(obj, aliases[FieldProduct]),
			AssignedTo: stringField(obj, aliases[FieldAssignedTo]),
		}
		if row.Product == "" {
			stats.EntriesSkip++
			continue
		}
		row.Quantity = p.decimalField(obj, aliases[FieldQuantity], FieldQuantity, stats)
		row.Price = p.decimalField(obj, aliases[FieldPrice], FieldPrice, stats)
		out = append(out, row)
	}
	return out
}

// ParseStatuses normalizes the status side map keyed by route id.
// A bare string value is read as the status itself.
func (p *RecordParser) ParseStatuses(value interface{}, stats *ParseStats) map[string]models.AssignmentStatus {
	if stats == nil {
		stats = NewParseStats("assignment_statuses")
	}
	aliases := p.config.StatusAliases

	obj := p.decodeMap(value, FieldStatuses, stats)
	out := make(map[string]models.AssignmentStatus, len(obj))
	for routeID, raw := range obj {
		var status models.AssignmentStatus
		var rawStatus string

		switch v := raw.(type) {
		case string:
			rawStatus = v
		case map[string]interface{}:
			entry := object(v)
			rawStatus = stringField(entry, aliases[FieldStatus])
			status.CollectionStatus = stringField(entry, aliases[FieldCollectionStatus])
			if d, ok := lookup(entry, aliases[FieldDropDriver]); ok {
				status.DropDriver = p.parseDriver(d, stats)
			}
		default:
			stats.EntriesSkip++
			continue
		}

		parsed, err := models.ParseRouteStatus(rawStatus)
		if err != nil {
			p.degrade(stats, FieldStatus, errors.CodeInvalidField, rawStatus, err)
		}
		status.Status = parsed
		out[routeID] = status
	}
	return out
}

// ParseSummaryDrivers reads the driver-grouped summary saved alongside the
// routes and returns the driver of every route id it mentions
func (p *RecordParser) ParseSummaryDrivers(value interface{}, stats *ParseStats) map[string]*models.DriverRef {
	if stats == nil {
		stats = NewParseStats("summary_data")
	}

	// the saved summary is either the group list or an object holding it
	if m, ok := value.(map[string]interface{}); ok {
		value, _ = lookup(object(m), []string{"driverGroups", "groups", "drivers"})
	}

	out := make(map[string]*models.DriverRef)
	for _, group := range p.decodeArray(value, FieldSummaryData, stats) {
		raw, ok := lookup(group, []string{"driver", "driverName"})
		if !ok {
			continue
		}
		driver := p.parseDriver(raw, stats)
		if driver.IsZero() {
			continue
		}

		routes, _ := lookup(group, driverGroupRouteKeys)
		for _, route := range p.decodeArray(routes, FieldDriverGroupAssignments, stats) {
			routeID := stringField(route, p.config.RouteAliases[FieldRouteID])
			if routeID == "" {
				continue
			}
			if _, seen := out[routeID]; !seen {
				out[routeID] = driver
			}
		}
	}
	return out
}

// parseDriver accepts "Name - Code", a bare id number, or an object with
// did/driver_name/driver_id keys
func (p *RecordParser) parseDriver(value interface{}, stats *ParseStats) *models.DriverRef {
	switch v := value.(type) {
	case nil:
		return nil
	case json.Number:
		return &models.DriverRef{ID: v.String()}
	case string:
		s := strings.TrimSpace(v)
		if s == "" || s == "null" {
			return nil
		}
		if strings.HasPrefix(s, "{") {
			return p.parseDriver(map[string]interface{}(p.decodeMap(s, FieldDriver, stats)), stats)
		}
		return ParseDriverDisplay(s)
	case map[string]interface{}:
		if v == nil {
			return nil
		}
		obj := object(v)
		ref := &models.DriverRef{
			ID:   stringField(obj, []string{"did", "id", "driverId"}),
			Name: stringField(obj, []string{"driver_name", "name", "driverName"}),
			Code: stringField(obj, []string{"driver_id", "code", "driverCode"}),
		}
		if ref.IsZero() {
			return nil
		}
		return ref
	default:
		p.degrade(stats, FieldDriver, errors.CodeUnknownShape, truncate(asString(v)), nil)
		return nil
	}
}

// ParseDriverDisplay splits a "Name - Code" display string on its last
// separator. A string without a separator is taken as the name.
func ParseDriverDisplay(s string) *models.DriverRef {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if idx := strings.LastIndex(s, " - "); idx > 0 {
		return &models.DriverRef{
			Name: strings.TrimSpace(s[:idx]),
			Code: strings.TrimSpace(s[idx+3:]),
		}
	}
	return &models.DriverRef{Name: s}
}

// parseLabours accepts a comma separated string, a JSON array of names or
// objects, or a single object
func (p *RecordParser) parseLabours(value interface{}, stats *ParseStats) []models.LabourRef {
	switch v := value.(type) {
	case nil:
		return nil
	case json.Number:
		return []models.LabourRef{{ID: v.String()}}
	case string:
		s := strings.TrimSpace(v)
		if s == "" || s == "null" {
			return nil
		}
		if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
			var decoded interface{}
			dec := json.NewDecoder(strings.NewReader(s))
			dec.UseNumber()
			if err := dec.Decode(&decoded); err != nil {
				p.degrade(stats, FieldLabour, errors.CodeInvalidJSON, truncate(s), err)
				return nil
			}
			return p.parseLabours(decoded, stats)
		}
		var out []models.LabourRef
		for _, name := range strings.Split(s, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, models.LabourRef{Name: name})
			}
		}
		return out
	case map[string]interface{}:
		obj := object(v)
		ref := models.LabourRef{
			ID:   stringField(obj, []string{"lid", "id", "labourId"}),
			Name: stringField(obj, []string{"full_name", "name", "fullName"}),
		}
		if ref.ID == "" && ref.Name == "" {
			return nil
		}
		return []models.LabourRef{ref}
	case []interface{}:
		var out []models.LabourRef
		for _, item := range v {
			out = append(out, p.parseLabours(item, stats)...)
		}
		return out
	default:
		p.degrade(stats, FieldLabour, errors.CodeUnknownShape, "", nil)
		return nil
	}
}
