package models

import (
	"strings"
)

// Farmer is a farmer from the reference list
type Farmer struct {
	FID       string `json:"fid"`
	Name      string `json:"farmer_name"`
	Address   string `json:"address,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	PinCode   string `json:"pin_code,omitempty"`
	TapeColor string `json:"tape_color,omitempty"`
}

// Supplier is a supplier from the reference list
type Supplier struct {
	SID       string `json:"sid"`
	Name      string `json:"supplier_name"`
	Address   string `json:"address,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	PinCode   string `json:"pin_code,omitempty"`
	TapeColor string `json:"tape_color,omitempty"`
}

// ThirdParty is a third-party vendor from the reference list
type ThirdParty struct {
	TPID      string `json:"tpid"`
	Name      string `json:"third_party_name"`
	Address   string `json:"address,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	PinCode   string `json:"pin_code,omitempty"`
	TapeColor string `json:"tape_color,omitempty"`
}

// Driver is a driver from the reference list. DriverCode is the printed DID.
type Driver struct {
	DID        string `json:"did"`
	Name       string `json:"driver_name"`
	DriverCode string `json:"driver_id"`
}

// Ref converts the driver into a route reference
func (d Driver) Ref() *DriverRef {
	return &DriverRef{ID: d.DID, Name: d.Name, Code: d.DriverCode}
}

// Labour is a labourer from the reference list
type Labour struct {
	LID      string `json:"lid"`
	FullName string `json:"full_name"`
}

// Ref converts the labourer into a route reference
func (l Labour) Ref() LabourRef {
	return LabourRef{ID: l.LID, Name: l.FullName}
}

// ReferenceData bundles the entity lists used for enrichment
type ReferenceData struct {
	Farmers      []Farmer     `json:"farmers"`
	Suppliers    []Supplier   `json:"suppliers"`
	ThirdParties []ThirdParty `json:"thirdParties"`
	Drivers      []Driver     `json:"drivers"`
	Labours      []Labour     `json:"labours"`
}

// EntityDetails is the display information attached to an assignment
type EntityDetails struct {
	ID        string     `json:"id"`
	Type      EntityType `json:"type"`
	Name      string     `json:"name"`
	Address   string     `json:"address,omitempty"`
	TapeColor string     `json:"tapeColor,omitempty"`
}

// FormatAddress joins the non-empty address parts with ", "
func FormatAddress(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

// Details returns the enrichment view of a farmer
func (f Farmer) Details() EntityDetails {
	return EntityDetails{
		ID:        f.FID,
		Type:      EntityFarmer,
		Name:      f.Name,
		Address:   FormatAddress(f.Address, f.City, f.State, f.PinCode),
		TapeColor: f.TapeColor,
	}
}

// Details returns the enrichment view of a supplier
func (s Supplier) Details() EntityDetails {
	return EntityDetails{
		ID:        s.SID,
		Type:      EntitySupplier,
		Name:      s.Name,
		Address:   FormatAddress(s.Address, s.City, s.State, s.PinCode),
		TapeColor: s.TapeColor,
	}
}

// Details returns the enrichment view of a third party
func (tp ThirdParty) Details() EntityDetails {
	return EntityDetails{
		ID:        tp.TPID,
		Type:      EntityThirdParty,
		Name:      tp.Name,
		Address:   FormatAddress(tp.Address, tp.City, tp.State, tp.PinCode),
		TapeColor: tp.TapeColor,
	}
}
