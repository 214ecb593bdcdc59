package parsers

import (
	"assignment-reconciliation-service/internal/models"
	"assignment-reconciliation-service/pkg/errors"
)

// ParseOrder decodes an order document with its items. Items without an id
// are skipped.
func (p *RecordParser) ParseOrder(data []byte) (*models.Order, *ParseStats, error) {
	stats := NewParseStats("order")

	obj, err := decodeObject(data)
	if err != nil {
		return nil, stats, errors.ParseError(errors.CodeInvalidJSON, stats.Source, "", truncate(string(data)), err)
	}

	aliases := p.config.OrderItemAliases
	order := &models.Order{
		ID: stringField(obj, append([]string{"id"}, p.config.RecordAliases[FieldOrderID]...)),
	}
	if order.ID != "" {
		stats.Source = "order:" + order.ID
	}

	items, _ := lookup(obj, aliases[FieldItems])
	for _, entry := range p.decodeArray(items, FieldItems, stats) {
		item := models.OrderItem{
			ID:          stringField(entry, aliases[FieldItemID]),
			OrderID:     stringField(entry, aliases[FieldOrderID]),
			ProductName: stringField(entry, aliases[FieldProduct]),
		}
		if item.ID == "" {
			stats.EntriesSkip++
			p.degrade(stats, FieldItemID, errors.CodeMissingField, item.ProductName, nil)
			continue
		}
		if item.OrderID == "" {
			item.OrderID = order.ID
		}
		item.NeededWeight = p.decimalField(entry, aliases[FieldNeededWeight], FieldNeededWeight, stats)
		item.NeededBoxes = p.intField(entry, aliases[FieldNeededBoxes], FieldNeededBoxes, stats)

		order.Items = append(order.Items, item)
	}

	return order, stats, nil
}

// ParseReferenceData decodes the farmer, supplier, third-party, driver and
// labour lists. Numeric ids are kept as their decimal string.
func (p *RecordParser) ParseReferenceData(data []byte) (*models.ReferenceData, *ParseStats, error) {
	stats := NewParseStats("reference_data")

	obj, err := decodeObject(data)
	if err != nil {
		return nil, stats, errors.ParseError(errors.CodeInvalidJSON, stats.Source, "", truncate(string(data)), err)
	}

	list := func(field string, keys ...string) []object {
		v, _ := lookup(obj, keys)
		return p.decodeArray(v, field, stats)
	}

	ref := &models.ReferenceData{}

	for _, e := range list("farmers", "farmers", "farmer") {
		f := models.Farmer{
			FID:       stringField(e, []string{"fid", "id"}),
			Name:      stringField(e, []string{"farmer_name", "name"}),
			Address:   stringField(e, []string{"address"}),
			City:      stringField(e, []string{"city"}),
			State:     stringField(e, []string{"state"}),
			PinCode:   stringField(e, []string{"pin_code", "pincode"}),
			TapeColor: stringField(e, []string{"tape_color", "tapeColor"}),
		}
		if f.FID == "" {
			stats.EntriesSkip++
			continue
		}
		ref.Farmers = append(ref.Farmers, f)
	}

	for _, e := range list("suppliers", "suppliers", "supplier") {
		s := models.Supplier{
			SID:       stringField(e, []string{"sid", "id"}),
			Name:      stringField(e, []string{"supplier_name", "name"}),
			Address:   stringField(e, []string{"address"}),
			City:      stringField(e, []string{"city"}),
			State:     stringField(e, []string{"state"}),
			PinCode:   stringField(e, []string{"pin_code", "pincode"}),
			TapeColor: stringField(e, []string{"tape_color", "tapeColor"}),
		}
		if s.SID == "" {
			stats.EntriesSkip++
			continue
		}
		ref.Suppliers = append(ref.Suppliers, s)
	}

	for _, e := range list("thirdParties", "thirdParties", "third_parties", "thirdparty") {
		tp := models.ThirdParty{
			TPID:      stringField(e, []string{"tpid", "id"}),
			Name:      stringField(e, []string{"third_party_name", "name"}),
			Address:   stringField(e, []string{"address"}),
			City:      stringField(e, []string{"city"}),
			State:     stringField(e, []string{"state"}),
			PinCode:   stringField(e, []string{"pin_code", "pincode"}),
			TapeColor: stringField(e, []string{"tape_color", "tapeColor"}),
		}
		if tp.TPID == "" {
			stats.EntriesSkip++
			continue
		}
		ref.ThirdParties = append(ref.ThirdParties, tp)
	}

	for _, e := range list("drivers", "drivers", "driver") {
		d := models.Driver{
			DID:        stringField(e, []string{"did", "id"}),
			Name:       stringField(e, []string{"driver_name", "name"}),
			DriverCode: stringField(e, []string{"driver_id", "code"}),
		}
		if d.DID == "" {
			stats.EntriesSkip++
			continue
		}
		ref.Drivers = append(ref.Drivers, d)
	}

	for _, e := range list("labours", "labours", "labour", "labors") {
		l := models.Labour{
			LID:      stringField(e, []string{"lid", "id"}),
			FullName: stringField(e, []string{"full_name", "name"}),
		}
		if l.LID == "" {
			stats.EntriesSkip++
			continue
		}
		ref.Labours = append(ref.Labours, l)
	}

	p.logger.WithField("source", stats.Source).Debugf(
		"Parsed reference data: %d farmers, %d suppliers, %d third parties, %d drivers, %d labours",
		len(ref.Farmers), len(ref.Suppliers), len(ref.ThirdParties), len(ref.Drivers), len(ref.Labours))

	return ref, stats, nil
}
