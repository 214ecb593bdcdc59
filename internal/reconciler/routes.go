package reconciler

import (
	"strings"

	"assignment-reconciliation-service/internal/matcher"
	"assignment-reconciliation-service/internal/models"
)

// RouteID builds the route key entityType-entityId-rowId, where rowId is
// the order item id with its -remaining-N suffix for remaining rows
func RouteID(entityType models.EntityType, entityID, rowID string) string {
	return strings.Join([]string{entityType.String(), entityID, rowID}, "-")
}

// BuildRoute materializes the route of a row. It reports false when the row
// has no selected entity. details may be nil for unknown entities.
func BuildRoute(row AssignmentRow, details *models.EntityDetails) (models.DeliveryRoute, bool) {
	a := row.Assignment
	if !a.HasEntity() {
		return models.DeliveryRoute{}, false
	}

	sourceID := a.EntityID
	name := a.EntityName
	address := a.Address
	if details != nil {
		if sourceID == "" {
			sourceID = details.ID
		}
		if details.Name != "" {
			name = details.Name
		}
		if address == "" {
			address = details.Address
		}
	}
	if sourceID == "" {
		// name-only entities keep a stable key until an id is known
		sourceID = matcher.NormalizeName(name)
	}

	return models.DeliveryRoute{
		RouteID:        RouteID(a.EntityType, sourceID, row.ID),
		SourceEntityID: sourceID,
		EntityType:     a.EntityType,
		EntityName:     name,
		OrderItemID:    row.OrderItemID,
		Product:        a.Product,
		Quantity:       row.Weight,
		AssignedBoxes:  a.AssignedBoxes,
		Address:        address,
		IsRemaining:    !row.IsPrimary(),
	}, true
}

// UpsertRoute returns a copy of routes with r inserted or replacing the
// route of the same id. A replacement without driver or labour keeps the
// previous ones.
func UpsertRoute(routes []models.DeliveryRoute, r models.DeliveryRoute) []models.DeliveryRoute {
	out := make([]models.DeliveryRoute, len(routes), len(routes)+1)
	copy(out, routes)

	for i := range out {
		if out[i].RouteID != r.RouteID {
			continue
		}
		if !r.HasDriver() {
			r.Driver = out[i].Driver
		}
		if len(r.Labours) == 0 {
			r.Labours = out[i].Labours
		}
		out[i] = r
		return out
	}
	return append(out, r)
}

func sourceKey(r models.DeliveryRoute) string {
	return strings.Join([]string{r.EntityType.String(), r.SourceEntityID, r.OrderItemID}, "|")
}

// MaterializeRoutes rebuilds the routes of every row with a selected entity.
// Driver and labour carry over from the existing route with the same id,
// or else from the only existing route of the same entity and order item.
// Routes whose row no longer exists are dropped. index may be nil.
func MaterializeRoutes(rowSets []RowSet, existing []models.DeliveryRoute, index *matcher.EntityIndex) []models.DeliveryRoute {
	previous := make([]models.DeliveryRoute, 0, len(existing))
	for _, r := range existing {
		previous = UpsertRoute(previous, r)
	}
	byID := make(map[string]models.DeliveryRoute, len(previous))
	bySource := make(map[string][]models.DeliveryRoute)
	for _, r := range previous {
		byID[r.RouteID] = r
		bySource[sourceKey(r)] = append(bySource[sourceKey(r)], r)
	}

	var routes []models.DeliveryRoute
	for _, rs := range rowSets {
		for _, row := range rs.Rows {
			if row.Assignment.Product == "" {
				row.Assignment.Product = rs.Item.ProductName
			}

			var details *models.EntityDetails
			if index != nil {
				enriched, _ := index.EnrichAssignment(row.Assignment)
				row.Assignment = enriched
				details = index.ResolveEntityName(enriched.EntityType, enriched.EntityID)
			}

			route, ok := BuildRoute(row, details)
			if !ok {
				continue
			}
			if old, found := byID[route.RouteID]; found {
				route.Driver = old.Driver
				route.Labours = old.Labours
			} else if olds := bySource[sourceKey(route)]; len(olds) == 1 {
				// the row moved (a row before it was removed) or the
				// stored id used another spelling
				route.Driver = olds[0].Driver
				route.Labours = olds[0].Labours
			}
			routes = UpsertRoute(routes, route)
		}
	}
	return routes
}
