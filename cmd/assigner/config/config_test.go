package config

import (
	"testing"
	"time"

	"assignment-reconciliation-service/internal/matcher"
	"assignment-reconciliation-service/internal/parsers"
	"assignment-reconciliation-service/internal/reporter"

	"github.com/shopspring/decimal"
)

func TestCreateIngestConfig(t *testing.T) {
	config, err := CreateIngestConfig(nil)
	if err != nil {
		t.Fatalf("failed to create ingest config: %v", err)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("ingest config should be valid: %v", err)
	}

	extended, err := CreateIngestConfig([]string{"assignment.assignedQuantity=kg", " route . quantity = load "})
	if err != nil {
		t.Fatalf("failed to create ingest config with aliases: %v", err)
	}

	found := false
	for _, alias := range extended.AssignmentAliases[parsers.FieldAssignedQuantity] {
		if alias == "kg" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected 'kg' alias, got %v", extended.AssignmentAliases[parsers.FieldAssignedQuantity])
	}

	// defaults are not mutated
	for _, alias := range parsers.DefaultIngestConfig().AssignmentAliases[parsers.FieldAssignedQuantity] {
		if alias == "kg" {
			t.Error("default aliases should not change")
		}
	}
}

func TestCreateIngestConfig_InvalidAliases(t *testing.T) {
	tests := []string{
		"assignment.assignedQuantity",
		"assignedQuantity=kg",
		".assignedQuantity=kg",
		"assignment.=kg",
		"assignment.assignedQuantity=",
		"invoice.amount=total",
	}

	for _, entry := range tests {
		t.Run(entry, func(t *testing.T) {
			if _, err := CreateIngestConfig([]string{entry}); err == nil {
				t.Errorf("expected error for alias %q", entry)
			}
		})
	}
}

func TestCreateIndexConfig(t *testing.T) {
	config, err := CreateIndexConfig("exact")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.NameMatching != matcher.NameMatchExact {
		t.Errorf("expected exact matching, got %s", config.NameMatching)
	}
	if !config.StripProductPrefix {
		t.Error("expected product prefix stripping to stay enabled")
	}

	if _, err := CreateIndexConfig("phonetic"); err == nil {
		t.Error("expected error for unknown matching mode")
	}
}

func TestCreateWorkspaceConfig(t *testing.T) {
	config := CreateWorkspaceConfig(nil, false)
	if config.Index == nil {
		t.Fatal("expected default index config")
	}
	if config.RequireEveryItem {
		t.Error("expected RequireEveryItem to be false")
	}
	if !config.BlockOnAmbiguous {
		t.Error("expected BlockOnAmbiguous to be true")
	}

	strict := CreateWorkspaceConfig(matcher.StrictIndexConfig(), true)
	if !strict.RequireEveryItem || strict.Index.NameMatching != matcher.NameMatchExact {
		t.Errorf("unexpected strict config %+v", strict)
	}
}

func TestCreatePayoutConfig(t *testing.T) {
	tests := []struct {
		name        string
		concurrency int
		timeout     time.Duration
		driverRate  string
		labourRate  string
		expectError bool
	}{
		{"defaults", 0, 30 * time.Second, "", "", false},
		{"custom rates", 4, time.Second, "2.5", "0.75", false},
		{"no timeout", 1, 0, "1", "1", false},
		{"too many workers", 1000, time.Second, "", "", true},
		{"negative timeout", 2, -time.Second, "", "", true},
		{"negative rate", 2, time.Second, "-1", "", true},
		{"invalid rate", 2, time.Second, "", "abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := CreatePayoutConfig(tt.concurrency, tt.timeout, tt.driverRate, tt.labourRate)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.concurrency > 0 && config.Concurrency != tt.concurrency {
				t.Errorf("expected concurrency %d, got %d", tt.concurrency, config.Concurrency)
			}
			if config.FetchTimeout != tt.timeout {
				t.Errorf("expected timeout %v, got %v", tt.timeout, config.FetchTimeout)
			}
		})
	}

	config, err := CreatePayoutConfig(2, time.Second, "2.5", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !config.DriverRatePerKg.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("expected driver rate 2.5, got %s", config.DriverRatePerKg)
	}
	if !config.LabourRatePerKg.IsZero() {
		t.Errorf("expected zero labour rate, got %s", config.LabourRatePerKg)
	}
}

func TestCreateReportConfig(t *testing.T) {
	tests := []struct {
		format   string
		expected reporter.OutputFormat
	}{
		{"console", reporter.FormatConsole},
		{"json", reporter.FormatJSON},
		{"csv", reporter.FormatCSV},
		{"unknown", reporter.FormatConsole},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			config := CreateReportConfig(tt.format)
			if config.Format != tt.expected {
				t.Errorf("expected format %s, got %s", tt.expected, config.Format)
			}
			if err := config.Validate(); err != nil {
				t.Errorf("report config should be valid: %v", err)
			}
		})
	}

	csv := CreateReportConfig("csv")
	if !csv.CSVHeaders || csv.CSVDelimiter != ',' || csv.IncludeSkipped {
		t.Errorf("unexpected CSV config %+v", csv)
	}
}

func TestValidateConfig(t *testing.T) {
	ingest, _ := CreateIngestConfig(nil)
	payout, _ := CreatePayoutConfig(2, time.Second, "", "")

	if err := ValidateConfig(ingest, CreateWorkspaceConfig(nil, false), payout, CreateReportConfig("json")); err != nil {
		t.Errorf("expected valid configuration, got %v", err)
	}

	if err := ValidateConfig(nil, nil, nil, nil); err != nil {
		t.Errorf("nil configurations should be skipped, got %v", err)
	}

	badReport := CreateReportConfig("console")
	badReport.TableMaxWidth = 10
	if err := ValidateConfig(nil, nil, nil, badReport); err == nil {
		t.Error("expected error for narrow table width")
	}

	badPayout, _ := CreatePayoutConfig(2, time.Second, "", "")
	badPayout.Concurrency = 0
	if err := ValidateConfig(nil, nil, badPayout, nil); err == nil {
		t.Error("expected error for zero concurrency")
	}
}
