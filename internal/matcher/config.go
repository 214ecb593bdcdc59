// Package matcher resolves the references carried by assignments and routes
// against the reference lists.
//
// It answers four kinds of lookups:
//   - entity id to display details (name, address, tape color)
//   - entity display name back to id, flagging duplicate names
//   - driver and labour references in any of their persisted spellings
//   - stage-4 review prices and order items by normalized product name
//
// Lookups never fail hard. An unknown id resolves to nil so callers can
// fall back to showing the raw id.
//
// Example usage:
//
//	index, err := matcher.NewEntityIndex(refData, matcher.DefaultIndexConfig())
//	details := index.ResolveEntityName(models.EntityFarmer, "F1")
//	res, ok := index.ResolveEntityID(models.EntityFarmer, "Ravi")
//	if ok && res.Ambiguous {
//		// carry the id, not the name
//	}
package matcher

import (
	"fmt"
)

// NameMatchMode controls how display names are compared
type NameMatchMode int

const (
	// NameMatchFold compares names after Unicode case folding and
	// whitespace collapsing. This is what the editing UI does.
	NameMatchFold NameMatchMode = iota

	// NameMatchExact compares trimmed names byte for byte
	NameMatchExact
)

// String returns the string representation of NameMatchMode
func (m NameMatchMode) String() string {
	switch m {
	case NameMatchFold:
		return "fold"
	case NameMatchExact:
		return "exact"
	default:
		return "unknown"
	}
}

// ParseNameMatchMode parses a mode name
func ParseNameMatchMode(s string) (NameMatchMode, error) {
	switch s {
	case "fold", "":
		return NameMatchFold, nil
	case "exact":
		return NameMatchExact, nil
	default:
		return NameMatchFold, fmt.Errorf("invalid name match mode '%s': must be fold or exact", s)
	}
}

// IndexConfig holds configuration for the reference index
type IndexConfig struct {
	// NameMatching selects how entity, driver and labour names are compared
	NameMatching NameMatchMode `json:"name_matching"`

	// StripProductPrefix removes leading "N - " catalogue numbers from
	// product names before comparing them
	StripProductPrefix bool `json:"strip_product_prefix"`

	// WarnOnAmbiguous logs every name lookup that matches more than one entity
	WarnOnAmbiguous bool `json:"warn_on_ambiguous"`
}

// DefaultIndexConfig returns a configuration matching the editing UI
func DefaultIndexConfig() *IndexConfig {
	return &IndexConfig{
		NameMatching:       NameMatchFold,
		StripProductPrefix: true,
		WarnOnAmbiguous:    true,
	}
}

// StrictIndexConfig compares names exactly
func StrictIndexConfig() *IndexConfig {
	config := DefaultIndexConfig()
	config.NameMatching = NameMatchExact
	return config
}

// Validate checks the configuration
func (c *IndexConfig) Validate() error {
	if c.NameMatching != NameMatchFold && c.NameMatching != NameMatchExact {
		return fmt.Errorf("invalid name match mode %d", c.NameMatching)
	}
	return nil
}
