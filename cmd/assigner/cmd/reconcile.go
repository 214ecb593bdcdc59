package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"assignment-reconciliation-service/cmd/assigner/config"
	"assignment-reconciliation-service/internal/models"
	"assignment-reconciliation-service/internal/parsers"
	"assignment-reconciliation-service/internal/reconciler"
	"assignment-reconciliation-service/internal/reporter"
	"assignment-reconciliation-service/pkg/errors"
	"assignment-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the reconcile command
var (
	orderFile      string
	referenceFile  string
	assignmentFile string
	outputFormat   string
	outputFile     string
	payloadFile    string
	strictSave     bool
	nameMatching   string
	extraAliases   []string
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile the assignments of one order",
	Long: `Reconcile loads one order, the reference lists and the persisted
assignment record of the order, then reports every item's rows with
their remaining balance, the delivery routes, the driver summary and
the row values.

This command requires:
- An order file (JSON with the order items)
- A reference file (JSON with farmers, suppliers, third parties, drivers and labour)

Examples:
  # Report an order with its saved assignments
  assigner reconcile --order-file order.json --reference-file ref.json \
    --assignment-file record.json

  # Write the save payload after checking it
  assigner reconcile --order-file order.json --reference-file ref.json \
    --assignment-file record.json --payload payload.json --strict

  # JSON output to a file
  assigner reconcile --order-file order.json --reference-file ref.json \
    --output-format json --output-file report.json

  # Accept an extra field name for assigned quantities
  assigner reconcile --order-file order.json --reference-file ref.json \
    --assignment-file record.json --alias assignment.assignedQuantity=kg`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	// Required flags
	reconcileCmd.Flags().StringVar(&orderFile, "order-file", "", "path to the order JSON file (required)")
	reconcileCmd.Flags().StringVar(&referenceFile, "reference-file", "", "path to the reference data JSON file (required)")

	// Input flags
	reconcileCmd.Flags().StringVarP(&assignmentFile, "assignment-file", "a", "", "path to the persisted assignment record (default: empty working set)")
	reconcileCmd.Flags().StringVar(&nameMatching, "name-matching", "fold", "entity name matching: fold, exact")
	reconcileCmd.Flags().StringSliceVar(&extraAliases, "alias", []string{}, "extra field alias as table.field=alias (repeatable)")

	// Output flags
	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	reconcileCmd.Flags().StringVar(&payloadFile, "payload", "", "write the save payload to this file")
	reconcileCmd.Flags().BoolVar(&strictSave, "strict", false, "refuse the save payload while an item has no entity")

	reconcileCmd.MarkFlagRequired("order-file")
	reconcileCmd.MarkFlagRequired("reference-file")

	// Keys are namespaced per command; reconcile and payout share flag names
	for _, name := range []string{
		"order-file", "reference-file", "assignment-file", "name-matching", "alias",
		"output-format", "output-file", "payload", "strict",
	} {
		viper.BindPFlag("reconcile."+name, reconcileCmd.Flags().Lookup(name))
	}
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file)
	orderFile = viper.GetString("reconcile.order-file")
	referenceFile = viper.GetString("reconcile.reference-file")
	assignmentFile = viper.GetString("reconcile.assignment-file")
	nameMatching = viper.GetString("reconcile.name-matching")
	extraAliases = viper.GetStringSlice("reconcile.alias")
	outputFormat = viper.GetString("reconcile.output-format")
	outputFile = viper.GetString("reconcile.output-file")
	payloadFile = viper.GetString("reconcile.payload")
	strictSave = viper.GetBool("reconcile.strict")

	if orderFile == "" {
		return fmt.Errorf("order-file is required")
	}
	if referenceFile == "" {
		return fmt.Errorf("reference-file is required")
	}

	if err := validateFileExists(orderFile, "order file"); err != nil {
		return err
	}
	if err := validateFileExists(referenceFile, "reference file"); err != nil {
		return err
	}
	if assignmentFile != "" {
		if err := validateFileExists(assignmentFile, "assignment file"); err != nil {
			return err
		}
	}

	if err := validateOutputFormat(outputFormat); err != nil {
		return err
	}
	if nameMatching != "fold" && nameMatching != "exact" {
		return fmt.Errorf("invalid name matching '%s'. Valid modes: fold, exact", nameMatching)
	}

	for _, path := range []string{outputFile, payloadFile} {
		if err := validateOutputDir(path); err != nil {
			return err
		}
	}

	return nil
}

func validateOutputFormat(format string) error {
	validFormats := map[string]bool{"console": true, "json": true, "csv": true}
	if !validFormats[format] {
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", format)
	}
	return nil
}

func validateOutputDir(path string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return fmt.Errorf("output directory does not exist: %s", dir)
		}
	}
	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("%s is not readable: %w", description, err)
	}
	file.Close()

	return nil
}

// readInputFile reads a whole input file, mapping OS errors to file errors
func readInputFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	if os.IsPermission(err) {
		return nil, errors.FileError(errors.CodeFilePermission, path, err)
	}
	return nil, errors.FileError(errors.CodeFileNotFound, path, err)
}

func withFileContext(err error, path string) error {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr.WithContext("file", path)
	}
	return err
}

// loadReferenceData parses the reference lists, collecting their parse issues
func loadReferenceData(parser *parsers.RecordParser, path string, stats *parsers.ParseStats) (*models.ReferenceData, error) {
	data, err := readInputFile(path)
	if err != nil {
		return nil, err
	}
	ref, refStats, err := parser.ParseReferenceData(data)
	if err != nil {
		return nil, withFileContext(err, path)
	}
	stats.Merge(refStats)
	return ref, nil
}

// loadOrder parses an order file, collecting its parse issues
func loadOrder(parser *parsers.RecordParser, path string, stats *parsers.ParseStats) (*models.Order, error) {
	data, err := readInputFile(path)
	if err != nil {
		return nil, err
	}
	order, orderStats, err := parser.ParseOrder(data)
	if err != nil {
		return nil, withFileContext(err, path)
	}
	stats.Merge(orderStats)
	if order.ID == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "order.id", path, nil).
			WithSuggestion("Add an \"id\" field to the order document")
	}
	return order, nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("cli").WithField("command", "reconcile")
	log.WithFields(logger.Fields{
		"order_file":      orderFile,
		"reference_file":  referenceFile,
		"assignment_file": assignmentFile,
		"output_format":   outputFormat,
	}).Info("Starting reconciliation")

	ingestConfig, err := config.CreateIngestConfig(extraAliases)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "alias", extraAliases, err)
	}
	indexConfig, err := config.CreateIndexConfig(nameMatching)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "name-matching", nameMatching, err)
	}
	workspaceConfig := config.CreateWorkspaceConfig(indexConfig, strictSave)
	reportConfig := config.CreateReportConfig(outputFormat)

	if err := config.ValidateConfig(ingestConfig, workspaceConfig, nil, reportConfig); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "reconcile", nil, err)
	}

	parser, err := parsers.NewRecordParser(ingestConfig)
	if err != nil {
		return err
	}

	stats := parsers.NewParseStats("input")

	order, err := loadOrder(parser, orderFile, stats)
	if err != nil {
		return err
	}
	ref, err := loadReferenceData(parser, referenceFile, stats)
	if err != nil {
		return err
	}

	workspace, err := reconciler.NewWorkspace(*order, ref, workspaceConfig)
	if err != nil {
		return err
	}

	if assignmentFile != "" {
		data, err := readInputFile(assignmentFile)
		if err != nil {
			return err
		}
		record, recordStats, err := parser.ParseRecord(data)
		if err != nil {
			return withFileContext(err, assignmentFile)
		}
		stats.Merge(recordStats)

		if record.OrderID != "" && record.OrderID != order.ID {
			log.WithFields(logger.Fields{
				"order_id":        order.ID,
				"record_order_id": record.OrderID,
			}).Warn("Assignment record belongs to a different order")
		}
		if err := workspace.Load(record); err != nil {
			return err
		}
	}

	report := buildOrderReport(workspace, stats)

	if err := writeReport(report, reportConfig, outputFile); err != nil {
		return err
	}

	if payloadFile != "" {
		if err := writeSavePayload(workspace, payloadFile); err != nil {
			return err
		}
		log.WithField("payload_file", payloadFile).Info("Save payload written")
	}

	log.WithFields(logger.Fields{
		"items":        len(report.RowSets),
		"unassigned":   report.UnassignedItems(),
		"routes":       len(workspace.Routes()),
		"input_issues": len(report.Issues),
	}).Info("Reconciliation completed")

	return nil
}

func buildOrderReport(workspace *reconciler.AssignmentWorkspace, stats *parsers.ParseStats) *reporter.OrderReport {
	return &reporter.OrderReport{
		OrderID:     workspace.Order().ID,
		GeneratedAt: time.Now(),
		RowSets:     workspace.RowSets(),
		Summary:     workspace.Summary(),
		Values:      workspace.Values(),
		Issues:      stats.Issues,
		Duplicates:  workspace.Index().DuplicateNames(),
	}
}

// writeReport renders a report to path, or to stdout when path is empty
func writeReport(report interface{}, reportConfig *reporter.ReportConfig, path string) error {
	generator, err := reporter.NewSafeReportGenerator(reportConfig, logger.GetGlobalLogger())
	if err != nil {
		return err
	}

	var output io.Writer = os.Stdout
	if path != "" {
		file, err := os.Create(path)
		if err != nil {
			return errors.FileError(errors.CodeFilePermission, path, err)
		}
		defer file.Close()
		output = file
	}

	return generator.GenerateReportSafely(report, output)
}

func writeSavePayload(workspace *reconciler.AssignmentWorkspace, path string) error {
	payload, err := workspace.BuildSavePayload()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "save_payload", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	return nil
}
