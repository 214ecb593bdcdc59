package matcher

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

var productPrefix = regexp.MustCompile(`^\s*\d+\s*-\s+`)

// NormalizeProductName strips leading "N - " catalogue prefixes, trims and
// case-folds. "12 - Tomato " and "tomato" normalize to the same key.
func NormalizeProductName(name string) string {
	for {
		stripped := productPrefix.ReplaceAllString(name, "")
		if stripped == name {
			break
		}
		name = stripped
	}
	return NormalizeName(name)
}

// NormalizeName case-folds and collapses whitespace
func NormalizeName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	return cases.Fold().String(name)
}

func (c *IndexConfig) nameKey(name string) string {
	if c.NameMatching == NameMatchExact {
		return strings.TrimSpace(name)
	}
	return NormalizeName(name)
}

func (c *IndexConfig) productKey(name string) string {
	if c.StripProductPrefix {
		return NormalizeProductName(name)
	}
	return c.nameKey(name)
}
