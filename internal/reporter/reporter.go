// Package reporter renders order reconciliation and payout results.
//
// Supported output formats:
//   - Console: human-readable sections for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: one line per row, route or payout for spreadsheets
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(reporter.DefaultReportConfig())
//	err = generator.GenerateReport(orderReport, os.Stdout)
//	err = generator.GeneratePayoutReport(payoutReport, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"assignment-reconciliation-service/internal/matcher"
	"assignment-reconciliation-service/internal/reconciler"
	"assignment-reconciliation-service/pkg/errors"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeRows    bool `json:"include_rows"`
	IncludeRoutes  bool `json:"include_routes"`
	IncludeValues  bool `json:"include_values"`
	IncludeIssues  bool `json:"include_issues"`
	IncludeSkipped bool `json:"include_skipped"`

	// Console formatting options
	TableMaxWidth int `json:"table_max_width"`
	MaxListItems  int `json:"max_list_items"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`

	SortByWeight bool `json:"sort_by_weight"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:         FormatConsole,
		IncludeRows:    true,
		IncludeRoutes:  true,
		IncludeValues:  true,
		IncludeIssues:  true,
		IncludeSkipped: true,
		TableMaxWidth:  120,
		MaxListItems:   50,
		CSVDelimiter:   ',',
		CSVHeaders:     true,
		SortByWeight:   false,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.TableMaxWidth < 50 {
		return fmt.Errorf("table max width must be at least 50 characters, got %d", c.TableMaxWidth)
	}

	if c.MaxListItems < 0 {
		return fmt.Errorf("max list items cannot be negative, got %d", c.MaxListItems)
	}

	return nil
}

// OrderReport is the reconciled state of one order
type OrderReport struct {
	OrderID     string                    `json:"orderId"`
	GeneratedAt time.Time                 `json:"generatedAt"`
	RowSets     []reconciler.RowSet       `json:"rowSets"`
	Summary     reconciler.Summary        `json:"summary"`
	Values      []reconciler.RowValue     `json:"values,omitempty"`
	Issues      []*errors.ReconcilerError `json:"issues,omitempty"`
	Duplicates  []matcher.DuplicateGroup  `json:"duplicates,omitempty"`
}

// UnassignedItems counts the items with an open balance
func (r *OrderReport) UnassignedItems() int {
	n := 0
	for _, rs := range r.RowSets {
		if !rs.IsFullyAssigned() {
			n++
		}
	}
	return n
}

// ReportGenerator generates reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport writes the report of one order
func (rg *ReportGenerator) GenerateReport(report *OrderReport, writer io.Writer) error {
	if report == nil {
		return fmt.Errorf("order report cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(report, writer)
	case FormatJSON:
		return rg.writeJSON(rg.filterOrderReport(report), writer)
	case FormatCSV:
		return rg.generateCSVReport(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// GeneratePayoutReport writes a multi-order payout report
func (rg *ReportGenerator) GeneratePayoutReport(report *reconciler.PayoutReport, writer io.Writer) error {
	if report == nil {
		return fmt.Errorf("payout report cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsolePayout(report, writer)
	case FormatJSON:
		return rg.writeJSON(rg.filterPayoutReport(report), writer)
	case FormatCSV:
		return rg.generateCSVPayout(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(report *OrderReport, writer io.Writer) error {
	fmt.Fprintf(writer, "ASSIGNMENT REPORT\n")
	fmt.Fprintf(writer, "Order: %s\n", report.OrderID)
	fmt.Fprintf(writer, "Generated: %s\n\n", report.GeneratedAt.Format(time.RFC3339))

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	fmt.Fprintf(writer, "Order Items:       %d\n", len(report.RowSets))
	fmt.Fprintf(writer, "  Fully Assigned:  %d\n", len(report.RowSets)-report.UnassignedItems())
	fmt.Fprintf(writer, "  Open:            %d\n", report.UnassignedItems())
	fmt.Fprintf(writer, "Collections:       %d\n", report.Summary.TotalCollections)
	fmt.Fprintf(writer, "Drivers:           %d\n", report.Summary.TotalDrivers)
	fmt.Fprintf(writer, "Unassigned Routes: %d\n", report.Summary.UnassignedRoutes)
	fmt.Fprintf(writer, "Total Weight:      %s kg\n\n", report.Summary.TotalWeight.StringFixed(2))

	if rg.config.IncludeRows && len(report.RowSets) > 0 {
		fmt.Fprintf(writer, "=== ORDER ITEMS ===\n")
		rg.printRowSets(report.RowSets, writer)
		fmt.Fprintf(writer, "\n")
	}

	if len(report.Summary.Groups) > 0 {
		fmt.Fprintf(writer, "=== DRIVER SUMMARY ===\n")
		rg.printDriverGroups(report.Summary.Groups, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeValues && len(report.Values) > 0 {
		fmt.Fprintf(writer, "=== VALUES ===\n")
		rg.printValues(report.Values, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeIssues && (len(report.Issues) > 0 || len(report.Duplicates) > 0) {
		fmt.Fprintf(writer, "=== INPUT ISSUES ===\n")
		rg.printIssues(report.Issues, report.Duplicates, writer)
	}

	return nil
}

func (rg *ReportGenerator) generateCSVReport(report *OrderReport, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		headers := []string{
			"Type",
			"Row_ID",
			"Order_Item_ID",
			"Product",
			"Entity_Type",
			"Entity_ID",
			"Entity_Name",
			"Required_Weight",
			"Weight",
			"Boxes",
			"Excess",
			"Driver",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, rs := range report.RowSets {
		for _, row := range rs.Rows {
			kind := "Assigned"
			if row.Synthesized {
				kind = "Open"
			}
			a := row.Assignment
			record := []string{
				kind,
				row.ID,
				row.OrderItemID,
				a.Product,
				a.EntityType.String(),
				a.EntityID,
				a.EntityName,
				row.RequiredWeight.StringFixed(2),
				row.Weight.StringFixed(2),
				strconv.Itoa(a.AssignedBoxes),
				row.Excess.StringFixed(2),
				driverForRow(report.Summary.Groups, row),
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write row record: %w", err)
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func driverForRow(groups []reconciler.DriverGroup, row reconciler.AssignmentRow) string {
	for _, g := range groups {
		for _, r := range g.Routes {
			if r.OrderItemID == row.OrderItemID && strings.HasSuffix(r.RouteID, "-"+row.ID) {
				return g.DriverName
			}
		}
	}
	return ""
}

func (rg *ReportGenerator) generateConsolePayout(report *reconciler.PayoutReport, writer io.Writer) error {
	fmt.Fprintf(writer, "PAYOUT REPORT\n")
	fmt.Fprintf(writer, "Orders: %d aggregated, %d skipped\n", len(report.Orders), len(report.Skipped))
	fmt.Fprintf(writer, "Processing Duration: %.2fs\n\n", report.ProcessingSeconds)

	fmt.Fprintf(writer, "=== TOTALS ===\n")
	fmt.Fprintf(writer, "Collections:       %d\n", report.TotalCollections)
	fmt.Fprintf(writer, "Unassigned Routes: %d\n", report.UnassignedRoutes)
	fmt.Fprintf(writer, "Total Weight:      %s kg\n", report.TotalWeight.StringFixed(2))
	fmt.Fprintf(writer, "Driver Payout:     %s (%s/kg)\n", report.DriverAmount.StringFixed(2), report.DriverRatePerKg.String())
	fmt.Fprintf(writer, "Labour Payout:     %s (%s/kg)\n", report.LabourAmount.StringFixed(2), report.LabourRatePerKg.String())
	fmt.Fprintf(writer, "Entity Payable:    %s\n\n", report.EntityAmount.StringFixed(2))

	if len(report.Drivers) > 0 {
		fmt.Fprintf(writer, "=== DRIVERS ===\n")
		tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Driver\tOrders\tCollections\tDrops\tWeight\tAmount\n")
		for i, d := range report.Drivers {
			if rg.truncated(i, len(report.Drivers), tw) {
				break
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%s\n",
				d.Driver, d.Orders, d.Collections, d.Drops, d.Weight.StringFixed(2), d.Amount.StringFixed(2))
		}
		tw.Flush()
		fmt.Fprintf(writer, "\n")
	}

	if len(report.Labours) > 0 {
		fmt.Fprintf(writer, "=== LABOUR ===\n")
		tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Labour\tRoutes\tWeight\tAmount\n")
		for i, l := range report.Labours {
			if rg.truncated(i, len(report.Labours), tw) {
				break
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", displayLabour(l), l.Routes, l.Weight.StringFixed(2), l.Amount.StringFixed(2))
		}
		tw.Flush()
		fmt.Fprintf(writer, "\n")
	}

	if len(report.Entities) > 0 {
		fmt.Fprintf(writer, "=== ENTITIES ===\n")
		entities := append([]reconciler.EntityPayout(nil), report.Entities...)
		if rg.config.SortByWeight {
			sort.SliceStable(entities, func(i, j int) bool {
				return entities[i].Quantity.GreaterThan(entities[j].Quantity)
			})
		}
		tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Type\tEntity\tQuantity\tAmount\tUnpriced\n")
		for i, e := range entities {
			if rg.truncated(i, len(entities), tw) {
				break
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
				e.EntityType, displayEntity(e.EntityID, e.EntityName), e.Quantity.StringFixed(2), e.Amount.StringFixed(2), e.Unpriced)
		}
		tw.Flush()
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeSkipped && len(report.Skipped) > 0 {
		fmt.Fprintf(writer, "=== SKIPPED ORDERS ===\n")
		for _, s := range report.Skipped {
			fmt.Fprintf(writer, "  - %s: %s\n", s.OrderID, s.Reason)
		}
	}

	return nil
}

func (rg *ReportGenerator) generateCSVPayout(report *reconciler.PayoutReport, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write([]string{"Type", "ID", "Name", "Count", "Weight", "Amount"}); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	var records [][]string
	for _, d := range report.Drivers {
		records = append(records, []string{"Driver", d.DriverID, d.Driver, strconv.Itoa(d.Collections), d.Weight.StringFixed(2), d.Amount.StringFixed(2)})
	}
	for _, l := range report.Labours {
		records = append(records, []string{"Labour", l.LabourID, l.Name, strconv.Itoa(l.Routes), l.Weight.StringFixed(2), l.Amount.StringFixed(2)})
	}
	for _, e := range report.Entities {
		records = append(records, []string{"Entity:" + e.EntityType.String(), e.EntityID, e.EntityName, "", e.Quantity.StringFixed(2), e.Amount.StringFixed(2)})
	}
	if rg.config.IncludeSkipped {
		for _, s := range report.Skipped {
			records = append(records, []string{"Skipped", s.OrderID, s.Reason, "", "", ""})
		}
	}

	if err := csvWriter.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write payout records: %w", err)
	}
	return nil
}

// Helper methods for console output formatting

func (rg *ReportGenerator) printRowSets(sets []reconciler.RowSet, writer io.Writer) {
	for _, rs := range sets {
		state := "open"
		if rs.IsFullyAssigned() {
			state = "assigned"
		}
		fmt.Fprintf(writer, "%s %s: needed %s kg", rs.Item.ID, rs.Item.ProductName, rs.Item.NeededWeight.StringFixed(2))
		if rs.BoxBased {
			fmt.Fprintf(writer, " / %d boxes, %d boxes left", rs.Item.NeededBoxes, rs.RemainingBoxes)
		}
		fmt.Fprintf(writer, ", remaining %s kg [%s]\n", rs.RemainingWeight.StringFixed(2), state)
		if rs.Excess.IsPositive() {
			fmt.Fprintf(writer, "  excess to stock: %s kg\n", rs.Excess.StringFixed(2))
		}

		tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
		for i, row := range rs.Rows {
			if rg.truncated(i, len(rs.Rows), tw) {
				break
			}
			entity := displayEntity(row.Assignment.EntityID, row.Assignment.EntityName)
			if entity == "" {
				entity = "-"
			}
			fmt.Fprintf(tw, "  %s\t%s\trequired %s\tweight %s\n",
				row.ID, entity, row.RequiredWeight.StringFixed(2), row.Weight.StringFixed(2))
		}
		tw.Flush()
	}
}

func (rg *ReportGenerator) printDriverGroups(groups []reconciler.DriverGroup, writer io.Writer) {
	groups = append([]reconciler.DriverGroup(nil), groups...)
	if rg.config.SortByWeight {
		sort.SliceStable(groups, func(i, j int) bool {
			return groups[i].TotalWeight.GreaterThan(groups[j].TotalWeight)
		})
	}

	for _, g := range groups {
		fmt.Fprintf(writer, "%s: %d collections, %s kg", g.DriverName, g.CollectionCount, g.TotalWeight.StringFixed(2))
		if g.TotalBoxes > 0 {
			fmt.Fprintf(writer, ", %d boxes", g.TotalBoxes)
		}
		fmt.Fprintf(writer, "\n")

		if !rg.config.IncludeRoutes {
			continue
		}
		for i, r := range g.Routes {
			if rg.truncated(i, len(g.Routes), writer) {
				break
			}
			fmt.Fprintf(writer, "  %d. %s (%s) %s kg", i+1, r.EntityName, r.Product, r.Quantity.StringFixed(2))
			if len(r.Labours) > 0 {
				names := make([]string, 0, len(r.Labours))
				for _, l := range r.Labours {
					names = append(names, l.Name)
				}
				fmt.Fprintf(writer, " labour: %s", strings.Join(names, ", "))
			}
			fmt.Fprintf(writer, "\n")
		}
	}
}

func (rg *ReportGenerator) printValues(values []reconciler.RowValue, writer io.Writer) {
	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Row\tEntity\tQuantity\tPrice\tAmount\tSource\n")
	for i, v := range values {
		if rg.truncated(i, len(values), tw) {
			break
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s/%s\n",
			v.RowID,
			displayEntity(v.Assignment.EntityID, v.Assignment.EntityName),
			v.Value.Quantity.StringFixed(2),
			v.Value.Price.StringFixed(2),
			v.Value.Amount().StringFixed(2),
			v.Value.QuantitySource,
			v.Value.PriceSource)
	}
	tw.Flush()
}

func (rg *ReportGenerator) printIssues(issues []*errors.ReconcilerError, duplicates []matcher.DuplicateGroup, writer io.Writer) {
	for i, issue := range issues {
		if rg.truncated(i, len(issues), writer) {
			break
		}
		field, _ := issue.Context["field"].(string)
		fmt.Fprintf(writer, "  - [%s] %s", issue.Code, issue.Message)
		if field != "" {
			fmt.Fprintf(writer, " (field: %s)", field)
		}
		fmt.Fprintf(writer, "\n")
	}

	for _, d := range duplicates {
		fmt.Fprintf(writer, "  - duplicate %s name %q: %s\n", d.EntityType, d.Name, strings.Join(d.IDs, ", "))
	}
}

// truncated writes the overflow line and reports true once i passes the
// configured list limit
func (rg *ReportGenerator) truncated(i, total int, writer io.Writer) bool {
	limit := rg.config.MaxListItems
	if limit == 0 || i < limit {
		return false
	}
	fmt.Fprintf(writer, "  ... and %d more\n", total-limit)
	return true
}

func displayEntity(id, name string) string {
	switch {
	case id != "" && name != "":
		return name + " (" + id + ")"
	case name != "":
		return name
	default:
		return id
	}
}

func displayLabour(l reconciler.LabourPayout) string {
	return displayEntity(l.LabourID, l.Name)
}

func (rg *ReportGenerator) writeJSON(v interface{}, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (rg *ReportGenerator) filterOrderReport(report *OrderReport) map[string]interface{} {
	output := map[string]interface{}{
		"orderId":         report.OrderID,
		"generatedAt":     report.GeneratedAt,
		"summary":         report.Summary,
		"unassignedItems": report.UnassignedItems(),
	}

	if rg.config.IncludeRows {
		output["rowSets"] = report.RowSets
	}
	if rg.config.IncludeValues && report.Values != nil {
		output["values"] = report.Values
	}
	if rg.config.IncludeIssues {
		if report.Issues != nil {
			output["issues"] = report.Issues
		}
		if report.Duplicates != nil {
			output["duplicates"] = report.Duplicates
		}
	}

	return output
}

func (rg *ReportGenerator) filterPayoutReport(report *reconciler.PayoutReport) interface{} {
	if rg.config.IncludeSkipped {
		return report
	}
	filtered := *report
	filtered.Skipped = nil
	return &filtered
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}

	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}
