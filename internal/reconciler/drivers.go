package reconciler

import (
	"assignment-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// DriverGroup aggregates the routes of one driver. It is recomputed from
// the routes on every read.
type DriverGroup struct {
	DriverID        string                 `json:"driverId"`
	DriverName      string                 `json:"driverName"`
	Driver          models.DriverRef       `json:"driver"`
	Routes          []models.DeliveryRoute `json:"assignments"`
	TotalWeight     decimal.Decimal        `json:"totalWeight"`
	TotalBoxes      int                    `json:"totalBoxes"`
	CollectionCount int                    `json:"collectionCount"`
}

// Summary holds the driver groups and the global totals
type Summary struct {
	Groups           []DriverGroup   `json:"groups"`
	TotalCollections int             `json:"totalCollections"`
	TotalDrivers     int             `json:"totalDrivers"`
	TotalWeight      decimal.Decimal `json:"totalWeight"`
	TotalBoxes       int             `json:"totalBoxes"`
	UnassignedRoutes int             `json:"unassignedRoutes"`
}

// GroupRoutesByDriver groups routes by driver id, falling back to the
// display string for drivers without an id. Routes without a driver are
// left out. Groups appear in the order their driver is first seen.
func GroupRoutesByDriver(routes []models.DeliveryRoute) []DriverGroup {
	var groups []DriverGroup
	positions := make(map[string]int)

	for _, route := range routes {
		if !route.HasDriver() {
			continue
		}

		key := route.Driver.Key()
		pos, ok := positions[key]
		if !ok {
			pos = len(groups)
			positions[key] = pos
			groups = append(groups, DriverGroup{
				DriverID:    key,
				DriverName:  route.Driver.Display(),
				Driver:      *route.Driver,
				TotalWeight: decimal.Zero,
			})
		}

		g := &groups[pos]
		g.Routes = append(g.Routes, route)
		g.TotalWeight = g.TotalWeight.Add(route.Quantity)
		g.TotalBoxes += route.AssignedBoxes
		g.CollectionCount++
	}

	for i := range groups {
		groups[i].TotalWeight = groups[i].TotalWeight.Round(weightPlaces)
	}
	return groups
}

// Summarize groups the routes by driver and computes the global totals
func Summarize(routes []models.DeliveryRoute) Summary {
	summary := Summary{
		Groups:      GroupRoutesByDriver(routes),
		TotalWeight: decimal.Zero,
	}

	for _, g := range summary.Groups {
		summary.TotalCollections += g.CollectionCount
		summary.TotalWeight = summary.TotalWeight.Add(g.TotalWeight)
		summary.TotalBoxes += g.TotalBoxes
	}
	summary.TotalDrivers = len(summary.Groups)
	summary.UnassignedRoutes = len(routes) - summary.TotalCollections
	summary.TotalWeight = summary.TotalWeight.Round(weightPlaces)

	return summary
}
