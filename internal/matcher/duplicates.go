package matcher

import (
	"fmt"
	"sort"

	"assignment-reconciliation-service/internal/models"
)

// DuplicateGroup is a set of entities of one type sharing a display name.
// Resolving that name by itself is ambiguous.
type DuplicateGroup struct {
	GroupID    string            `json:"group_id"`
	EntityType models.EntityType `json:"entity_type"`
	Name       string            `json:"name"`
	IDs        []string          `json:"ids"`
	Reason     string            `json:"reason"`
}

// DuplicateNames reports every display name shared by more than one entity,
// sorted by type and name
func (ix *EntityIndex) DuplicateNames() []DuplicateGroup {
	var groups []DuplicateGroup

	for entityType, names := range ix.byName {
		for _, matches := range names {
			if len(matches) < 2 {
				continue
			}

			ids := make([]string, 0, len(matches))
			for _, m := range matches {
				ids = append(ids, m.ID)
			}
			groups = append(groups, DuplicateGroup{
				GroupID:    fmt.Sprintf("DUP_%s_%s", entityType, matches[0].ID),
				EntityType: entityType,
				Name:       matches[0].Name,
				IDs:        ids,
				Reason:     fmt.Sprintf("%d %s records named '%s'", len(matches), entityType, matches[0].Name),
			})
		}
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].EntityType != groups[j].EntityType {
			return groups[i].EntityType < groups[j].EntityType
		}
		return groups[i].Name < groups[j].Name
	})
	return groups
}
