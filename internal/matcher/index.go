package matcher

import (
	"assignment-reconciliation-service/internal/models"
	"assignment-reconciliation-service/pkg/errors"
	"assignment-reconciliation-service/pkg/logger"
)

// Resolution is the result of a name to id lookup
type Resolution struct {
	Details models.EntityDetails `json:"details"`

	// Candidates lists every id sharing the name, in reference-list order
	Candidates []string `json:"candidates,omitempty"`

	// Ambiguous is set when more than one entity carries the name. Details
	// then holds the first match.
	Ambiguous bool `json:"ambiguous"`
}

// EntityIndex indexes the reference lists for id and name lookups
type EntityIndex struct {
	config *IndexConfig
	logger logger.Logger

	byID   map[models.EntityType]map[string]models.EntityDetails
	byName map[models.EntityType]map[string][]models.EntityDetails

	drivers        map[string]models.Driver
	driversByCode  map[string][]models.Driver
	driversByName  map[string][]models.Driver
	labours        map[string]models.Labour
	laboursByName  map[string][]models.Labour
	referenceStats IndexStats
}

// IndexStats reports the size of the index
type IndexStats struct {
	Farmers        int `json:"farmers"`
	Suppliers      int `json:"suppliers"`
	ThirdParties   int `json:"third_parties"`
	Drivers        int `json:"drivers"`
	Labours        int `json:"labours"`
	DuplicateNames int `json:"duplicate_names"`
}

// NewEntityIndex builds an index over ref. A nil ref gives an empty index.
func NewEntityIndex(ref *models.ReferenceData, config *IndexConfig) (*EntityIndex, error) {
	if config == nil {
		config = DefaultIndexConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "index", config.NameMatching, err)
	}
	if ref == nil {
		ref = &models.ReferenceData{}
	}

	ix := &EntityIndex{
		config:        config,
		logger:        logger.WithComponent("entity-index"),
		byID:          make(map[models.EntityType]map[string]models.EntityDetails),
		byName:        make(map[models.EntityType]map[string][]models.EntityDetails),
		drivers:       make(map[string]models.Driver),
		driversByCode: make(map[string][]models.Driver),
		driversByName: make(map[string][]models.Driver),
		labours:       make(map[string]models.Labour),
		laboursByName: make(map[string][]models.Labour),
	}

	for _, f := range ref.Farmers {
		ix.addEntity(f.Details())
	}
	for _, s := range ref.Suppliers {
		ix.addEntity(s.Details())
	}
	for _, tp := range ref.ThirdParties {
		ix.addEntity(tp.Details())
	}
	for _, d := range ref.Drivers {
		if _, seen := ix.drivers[d.DID]; seen || d.DID == "" {
			continue
		}
		ix.drivers[d.DID] = d
		if code := config.nameKey(d.DriverCode); code != "" {
			ix.driversByCode[code] = append(ix.driversByCode[code], d)
		}
		if name := config.nameKey(d.Name); name != "" {
			ix.driversByName[name] = append(ix.driversByName[name], d)
		}
	}
	for _, l := range ref.Labours {
		if _, seen := ix.labours[l.LID]; seen || l.LID == "" {
			continue
		}
		ix.labours[l.LID] = l
		if name := config.nameKey(l.FullName); name != "" {
			ix.laboursByName[name] = append(ix.laboursByName[name], l)
		}
	}

	ix.referenceStats = IndexStats{
		Farmers:        len(ix.byID[models.EntityFarmer]),
		Suppliers:      len(ix.byID[models.EntitySupplier]),
		ThirdParties:   len(ix.byID[models.EntityThirdParty]),
		Drivers:        len(ix.drivers),
		Labours:        len(ix.labours),
		DuplicateNames: len(ix.DuplicateNames()),
	}

	ix.logger.WithFields(logger.Fields{
		"farmers":         ix.referenceStats.Farmers,
		"suppliers":       ix.referenceStats.Suppliers,
		"third_parties":   ix.referenceStats.ThirdParties,
		"drivers":         ix.referenceStats.Drivers,
		"labours":         ix.referenceStats.Labours,
		"duplicate_names": ix.referenceStats.DuplicateNames,
	}).Debug("Reference index built")

	return ix, nil
}

func (ix *EntityIndex) addEntity(d models.EntityDetails) {
	if d.ID == "" {
		return
	}
	ids, ok := ix.byID[d.Type]
	if !ok {
		ids = make(map[string]models.EntityDetails)
		ix.byID[d.Type] = ids
	}
	if _, seen := ids[d.ID]; seen {
		return
	}
	ids[d.ID] = d

	key := ix.config.nameKey(d.Name)
	if key == "" {
		return
	}
	names, ok := ix.byName[d.Type]
	if !ok {
		names = make(map[string][]models.EntityDetails)
		ix.byName[d.Type] = names
	}
	names[key] = append(names[key], d)
}

// Stats returns the size of the index
func (ix *EntityIndex) Stats() IndexStats {
	return ix.referenceStats
}

// ResolveEntityName returns the details of the entity with the given id,
// or nil when the type or id is unknown
func (ix *EntityIndex) ResolveEntityName(entityType models.EntityType, entityID string) *models.EntityDetails {
	if entityID == "" {
		return nil
	}
	d, ok := ix.byID[entityType][entityID]
	if !ok {
		return nil
	}
	return &d
}

// ResolveEntityID looks an entity up by display name. The first entity in
// reference-list order wins; Ambiguous reports whether others share the name.
func (ix *EntityIndex) ResolveEntityID(entityType models.EntityType, entityName string) (Resolution, bool) {
	key := ix.config.nameKey(entityName)
	if key == "" {
		return Resolution{}, false
	}

	matches := ix.byName[entityType][key]
	if len(matches) == 0 {
		return Resolution{}, false
	}

	res := Resolution{
		Details:   matches[0],
		Ambiguous: len(matches) > 1,
	}
	for _, m := range matches {
		res.Candidates = append(res.Candidates, m.ID)
	}

	if res.Ambiguous && ix.config.WarnOnAmbiguous {
		ix.logger.WithFields(logger.Fields{
			"entity_type": entityType.String(),
			"entity_name": entityName,
			"candidates":  res.Candidates,
		}).Warn("Entity name matches more than one record")
	}

	return res, true
}

// ResolveDriver maps a driver reference to its reference-list entry.
// Lookup order: id, code, then name. An unknown driver is returned as given
// with ok false.
func (ix *EntityIndex) ResolveDriver(ref *models.DriverRef) (*models.DriverRef, bool) {
	if ref.IsZero() {
		return nil, false
	}

	if ref.ID != "" {
		if d, ok := ix.drivers[ref.ID]; ok {
			return d.Ref(), true
		}
	}

	if code := ix.config.nameKey(ref.Code); code != "" {
		candidates := ix.driversByCode[code]
		if len(candidates) == 1 {
			return candidates[0].Ref(), true
		}
		// the same code printed on two cards; narrow by name
		name := ix.config.nameKey(ref.Name)
		for _, d := range candidates {
			if ix.config.nameKey(d.Name) == name {
				return d.Ref(), true
			}
		}
	}

	if name := ix.config.nameKey(ref.Name); name != "" {
		if candidates := ix.driversByName[name]; len(candidates) > 0 {
			if len(candidates) > 1 && ix.config.WarnOnAmbiguous {
				ix.logger.WithField("driver", ref.Display()).Warn("Driver name matches more than one record")
			}
			return candidates[0].Ref(), true
		}
	}

	copied := *ref
	return &copied, false
}

// ResolveLabour maps a labour reference to its reference-list entry by id,
// then by name
func (ix *EntityIndex) ResolveLabour(ref models.LabourRef) (models.LabourRef, bool) {
	if ref.ID != "" {
		if l, ok := ix.labours[ref.ID]; ok {
			return l.Ref(), true
		}
	}
	if name := ix.config.nameKey(ref.Name); name != "" {
		if candidates := ix.laboursByName[name]; len(candidates) > 0 {
			return candidates[0].Ref(), true
		}
	}
	return ref, false
}

// ResolveLabours resolves every reference, dropping blanks and duplicates
func (ix *EntityIndex) ResolveLabours(refs []models.LabourRef) []models.LabourRef {
	if len(refs) == 0 {
		return nil
	}

	out := make([]models.LabourRef, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		resolved, _ := ix.ResolveLabour(ref)
		key := resolved.ID
		if key == "" {
			key = "name:" + ix.config.nameKey(resolved.Name)
		}
		if key == "name:" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, resolved)
	}
	return out
}

// EnrichAssignment fills the display fields of an assignment from its id,
// or its id from an unambiguous display name. The input is not modified.
// The returned resolution is set when the name was looked up.
func (ix *EntityIndex) EnrichAssignment(a models.Assignment) (models.Assignment, *Resolution) {
	if !a.EntityType.IsValid() {
		return a, nil
	}

	if details := ix.ResolveEntityName(a.EntityType, a.EntityID); details != nil {
		ix.applyDetails(&a, *details)
		return a, nil
	}

	if a.EntityID != "" {
		ix.logger.WithFields(logger.Fields{
			"entity_type": a.EntityType.String(),
			"entity_id":   a.EntityID,
		}).Warn("Assignment refers to an unknown entity")
		return a, nil
	}

	res, ok := ix.ResolveEntityID(a.EntityType, a.EntityName)
	if !ok {
		return a, nil
	}
	if !res.Ambiguous {
		a.EntityID = res.Details.ID
		ix.applyDetails(&a, res.Details)
	}
	return a, &res
}

func (ix *EntityIndex) applyDetails(a *models.Assignment, d models.EntityDetails) {
	a.EntityName = d.Name
	if a.Address == "" {
		a.Address = d.Address
	}
	if a.TapeColor == "" {
		a.TapeColor = d.TapeColor
	}
}
