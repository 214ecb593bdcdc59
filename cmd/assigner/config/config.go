package config

import (
	"fmt"
	"strings"
	"time"

	"assignment-reconciliation-service/internal/matcher"
	"assignment-reconciliation-service/internal/parsers"
	"assignment-reconciliation-service/internal/reconciler"
	"assignment-reconciliation-service/internal/reporter"

	"github.com/shopspring/decimal"
)

// CreateIngestConfig creates the record parser configuration. Extra aliases
// are given as "table.field=alias" and appended to the defaults.
func CreateIngestConfig(extraAliases []string) (*parsers.IngestConfig, error) {
	config := parsers.DefaultIngestConfig()

	for _, entry := range extraAliases {
		table, field, alias, err := splitAlias(entry)
		if err != nil {
			return nil, err
		}
		config = config.WithExtraAliases(table, field, alias)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ingest configuration: %w", err)
	}
	return config, nil
}

var aliasTables = map[string]bool{
	"record":     true,
	"assignment": true,
	"route":      true,
	"orderItem":  true,
	"stage4":     true,
	"status":     true,
}

func splitAlias(entry string) (table, field, alias string, err error) {
	key, alias, ok := strings.Cut(entry, "=")
	if ok {
		table, field, ok = strings.Cut(key, ".")
	}
	table, field, alias = strings.TrimSpace(table), strings.TrimSpace(field), strings.TrimSpace(alias)
	if !ok || table == "" || field == "" || alias == "" {
		return "", "", "", fmt.Errorf("invalid alias '%s': expected table.field=alias", entry)
	}
	if !aliasTables[table] {
		return "", "", "", fmt.Errorf("unknown alias table '%s' in '%s'", table, entry)
	}
	return table, field, alias, nil
}

// CreateIndexConfig creates the reference index configuration
func CreateIndexConfig(nameMatching string) (*matcher.IndexConfig, error) {
	mode, err := matcher.ParseNameMatchMode(nameMatching)
	if err != nil {
		return nil, err
	}

	config := matcher.DefaultIndexConfig()
	config.NameMatching = mode
	return config, nil
}

// CreateWorkspaceConfig creates a workspace configuration. With strict unset,
// items without an entity do not block the save payload.
func CreateWorkspaceConfig(index *matcher.IndexConfig, strict bool) *reconciler.WorkspaceConfig {
	config := reconciler.DefaultWorkspaceConfig()
	if index != nil {
		config.Index = index
	}
	config.RequireEveryItem = strict
	config.BlockOnAmbiguous = true
	return config
}

// CreatePayoutConfig creates a payout configuration from CLI values.
// Rates are decimal strings; an empty rate means zero.
func CreatePayoutConfig(concurrency int, fetchTimeout time.Duration, driverRate, labourRate string) (*reconciler.PayoutConfig, error) {
	config := reconciler.DefaultPayoutConfig()

	if concurrency > 0 {
		config.Concurrency = concurrency
	}
	config.FetchTimeout = fetchTimeout

	var err error
	if config.DriverRatePerKg, err = parseRate("driver-rate", driverRate); err != nil {
		return nil, err
	}
	if config.LabourRatePerKg, err = parseRate("labour-rate", labourRate); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func parseRate(name, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	rate, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s '%s': %w", name, value, err)
	}
	return rate, nil
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()

	switch format {
	case "console":
		config.Format = reporter.FormatConsole
	case "json":
		config.Format = reporter.FormatJSON
		config.IncludeValues = true
		config.IncludeIssues = true
	case "csv":
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
		config.CSVDelimiter = ','
		config.IncludeIssues = false
		config.IncludeSkipped = false
	default:
		config.Format = reporter.FormatConsole
	}

	return config
}

// ValidateConfig validates all configurations together
func ValidateConfig(ingest *parsers.IngestConfig, workspace *reconciler.WorkspaceConfig, payout *reconciler.PayoutConfig, report *reporter.ReportConfig) error {
	if ingest != nil {
		if err := ingest.Validate(); err != nil {
			return fmt.Errorf("invalid ingest configuration: %w", err)
		}
	}

	if workspace != nil {
		if err := workspace.Validate(); err != nil {
			return fmt.Errorf("invalid workspace configuration: %w", err)
		}
	}

	if payout != nil {
		if err := payout.Validate(); err != nil {
			return fmt.Errorf("invalid payout configuration: %w", err)
		}
	}

	if report != nil {
		if err := report.Validate(); err != nil {
			return fmt.Errorf("invalid report configuration: %w", err)
		}
	}

	return nil
}
