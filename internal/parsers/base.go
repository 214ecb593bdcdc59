// Package parsers is the ingestion boundary of the assignment engine.
//
// Order-assignment records arrive as JSON written by several generations of
// the fulfillment UI. Fields may be real arrays, JSON-encoded strings,
// null, or garbage, and the same value may live under different keys
// (assignedQty, quantity, qty). This package absorbs all of that and hands
// normalized models to the rest of the module.
//
// Parsing never fails because of one bad field: a field that cannot be
// decoded is treated as empty, recorded in ParseStats and logged. Only a
// record that is not a JSON object at all is rejected.
//
// Example usage:
//
//	parser, err := parsers.NewRecordParser(parsers.DefaultIngestConfig())
//	record, stats, err := parser.ParseRecord(data)
//	if stats.HasIssues() {
//		// degraded, but usable
//	}
package parsers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"assignment-reconciliation-service/pkg/errors"
	"assignment-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// ParseStats collects what happened while decoding one record
type ParseStats struct {
	Source       string                    `json:"source"`
	ObjectsRead  int                       `json:"objects_read"`
	EntriesSkip  int                       `json:"entries_skipped"`
	Issues       []*errors.ReconcilerError `json:"issues,omitempty"`
	DegradedKeys []string                  `json:"degraded_fields,omitempty"`
}

// NewParseStats creates empty stats for a named source
func NewParseStats(source string) *ParseStats {
	return &ParseStats{Source: source}
}

// HasIssues reports whether any field was degraded
func (s *ParseStats) HasIssues() bool {
	return len(s.Issues) > 0
}

// Merge folds other into s
func (s *ParseStats) Merge(other *ParseStats) {
	if other == nil {
		return
	}
	s.ObjectsRead += other.ObjectsRead
	s.EntriesSkip += other.EntriesSkip
	s.Issues = append(s.Issues, other.Issues...)
	s.DegradedKeys = append(s.DegradedKeys, other.DegradedKeys...)
}

func (s *ParseStats) addIssue(field string, issue *errors.ReconcilerError) {
	s.Issues = append(s.Issues, issue)
	s.DegradedKeys = append(s.DegradedKeys, field)
}

type object map[string]interface{}

type baseParser struct {
	logger logger.Logger
}

func newBaseParser(component string) baseParser {
	return baseParser{logger: logger.WithComponent(component)}
}

// decodeObject decodes data as a single JSON object, unwrapping one level
// of string encoding
func decodeObject(data []byte) (object, error) {
	data = unwrapEncoded(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj object
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("document is null")
	}
	return obj, nil
}

// unwrapEncoded returns the inner document when data is a JSON string that
// itself contains JSON. Anything else is returned trimmed.
func unwrapEncoded(data []byte) []byte {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '"' {
		return data
	}

	var inner string
	if err := json.Unmarshal(data, &inner); err != nil {
		return data
	}
	return bytes.TrimSpace([]byte(inner))
}

// decodeArray interprets a field value as a list of objects.
// Accepted shapes: []interface{}, a JSON string holding an array, nil.
// Non-object entries are skipped and counted.
func (p baseParser) decodeArray(value interface{}, field string, stats *ParseStats) []object {
	switch v := value.(type) {
	case nil:
		return nil
	case []interface{}:
		return p.collectObjects(v, stats)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" || trimmed == "null" {
			return nil
		}

		dec := json.NewDecoder(strings.NewReader(trimmed))
		dec.UseNumber()

		var items []interface{}
		if err := dec.Decode(&items); err != nil {
			p.degrade(stats, field, errors.CodeInvalidJSON, truncate(trimmed), err)
			return nil
		}
		return p.collectObjects(items, stats)
	default:
		p.degrade(stats, field, errors.CodeUnknownShape, fmt.Sprintf("%T", value), nil)
		return nil
	}
}

// decodeMap interprets a field value as an object, accepting a JSON string
func (p baseParser) decodeMap(value interface{}, field string, stats *ParseStats) object {
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		return object(v)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" || trimmed == "null" {
			return nil
		}
		obj, err := decodeObject([]byte(trimmed))
		if err != nil {
			p.degrade(stats, field, errors.CodeInvalidJSON, truncate(trimmed), err)
			return nil
		}
		return obj
	default:
		p.degrade(stats, field, errors.CodeUnknownShape, fmt.Sprintf("%T", value), nil)
		return nil
	}
}

func (p baseParser) collectObjects(items []interface{}, stats *ParseStats) []object {
	out := make([]object, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			stats.EntriesSkip++
			continue
		}
		stats.ObjectsRead++
		out = append(out, object(m))
	}
	return out
}

func (p baseParser) degrade(stats *ParseStats, field string, code errors.ErrorCode, value string, cause error) {
	issue := errors.ParseError(code, stats.Source, field, value, cause)
	stats.addIssue(field, issue)

	log := p.logger.WithFields(logger.Fields{
		"source": stats.Source,
		"field":  field,
		"code":   string(code),
	})
	if cause != nil {
		log = log.WithError(cause)
	}
	log.Warn("Field degraded to empty")
}

// lookup returns the first non-nil value stored under one of the aliases
func lookup(obj object, aliases []string) (interface{}, bool) {
	for _, key := range aliases {
		if v, ok := obj[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(obj object, aliases []string) string {
	v, ok := lookup(obj, aliases)
	if !ok {
		return ""
	}
	return asString(v)
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// asDecimal converts numbers and numeric strings ("12.5", "1,200 kg", "₹45")
func asDecimal(v interface{}) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return decimal.Zero, true
		}
		s = strings.NewReplacer(",", "", "₹", "", "$", "", " ", "").Replace(s)
		s = strings.TrimSuffix(strings.ToLower(s), "kg")
		d, err := decimal.NewFromString(s)
		return d, err == nil
	case bool:
		return decimal.Zero, false
	default:
		return decimal.Zero, false
	}
}

func asInt(v interface{}) (int, bool) {
	d, ok := asDecimal(v)
	if !ok {
		return 0, false
	}
	return int(d.Round(0).IntPart()), true
}

func asBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	case json.Number:
		n, err := t.Int64()
		return err == nil && n != 0
	default:
		return false
	}
}

// decimalField reads a non-negative decimal; invalid or negative values
// degrade to zero and are recorded
func (p baseParser) decimalField(obj object, aliases []string, field string, stats *ParseStats) decimal.Decimal {
	v, ok := lookup(obj, aliases)
	if !ok {
		return decimal.Zero
	}
	d, ok := asDecimal(v)
	if !ok || d.IsNegative() {
		p.degrade(stats, field, errors.CodeInvalidField, truncate(fmt.Sprint(v)), nil)
		return decimal.Zero
	}
	return d
}

func (p baseParser) intField(obj object, aliases []string, field string, stats *ParseStats) int {
	v, ok := lookup(obj, aliases)
	if !ok {
		return 0
	}
	n, ok := asInt(v)
	if !ok || n < 0 {
		p.degrade(stats, field, errors.CodeInvalidField, truncate(fmt.Sprint(v)), nil)
		return 0
	}
	return n
}

func truncate(s string) string {
	const max = 64
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
