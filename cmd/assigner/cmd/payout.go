package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"assignment-reconciliation-service/cmd/assigner/config"
	"assignment-reconciliation-service/internal/matcher"
	"assignment-reconciliation-service/internal/models"
	"assignment-reconciliation-service/internal/parsers"
	"assignment-reconciliation-service/internal/reconciler"
	"assignment-reconciliation-service/pkg/errors"
	"assignment-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the payout command
var (
	recordsDir         string
	payoutOrderIDs     []string
	payoutOrderFiles   []string
	payoutRefFile      string
	payoutConcurrency  int
	driverRate         string
	labourRate         string
	fetchTimeout       time.Duration
	payoutFormat       string
	payoutOutputFile   string
	showPayoutProgress bool
)

// payoutCmd represents the payout command
var payoutCmd = &cobra.Command{
	Use:   "payout",
	Short: "Aggregate driver, labour and entity payouts across orders",
	Long: `Payout reads the persisted assignment records of many orders, fetching
them concurrently, and totals the collected weight per driver and per
labourer and the amount owed per farmer, supplier and third party.

An order whose record cannot be read is skipped and listed in the report.

Records are read from a directory holding one <orderID>.json per order.

Examples:
  # Every order in the directory
  assigner payout --records-dir records/ --reference-file ref.json

  # Selected orders with per-kg rates
  assigner payout --records-dir records/ --order-ids O1,O2 \
    --driver-rate 2.5 --labour-rate 1

  # Use the order items for rows saved without a quantity
  assigner payout --records-dir records/ --order-files o1.json,o2.json

  # CSV output with at most 4 concurrent reads
  assigner payout --records-dir records/ --concurrency 4 \
    --output-format csv --output-file payouts.csv`,

	PreRunE: validatePayoutFlags,
	RunE:    runPayout,
}

func init() {
	rootCmd.AddCommand(payoutCmd)

	payoutCmd.Flags().StringVarP(&recordsDir, "records-dir", "d", "", "directory with one <orderID>.json record per order (required)")
	payoutCmd.Flags().StringSliceVar(&payoutOrderIDs, "order-ids", []string{}, "comma-separated order ids (default: every record in the directory)")
	payoutCmd.Flags().StringSliceVar(&payoutOrderFiles, "order-files", []string{}, "order JSON files used for quantity and price fallbacks")
	payoutCmd.Flags().StringVar(&payoutRefFile, "reference-file", "", "path to the reference data JSON file")

	payoutCmd.Flags().IntVarP(&payoutConcurrency, "concurrency", "c", 8, "maximum records read at once (1-256)")
	payoutCmd.Flags().StringVar(&driverRate, "driver-rate", "0", "driver payout per kg")
	payoutCmd.Flags().StringVar(&labourRate, "labour-rate", "0", "labour payout per kg")
	payoutCmd.Flags().DurationVar(&fetchTimeout, "fetch-timeout", 30*time.Second, "timeout for reading one record (0 disables)")

	payoutCmd.Flags().StringVarP(&payoutFormat, "output-format", "f", "console", "output format: console, json, csv")
	payoutCmd.Flags().StringVarP(&payoutOutputFile, "output-file", "o", "", "output file path (default: stdout)")
	payoutCmd.Flags().BoolVar(&showPayoutProgress, "progress", false, "show progress indicators")

	payoutCmd.MarkFlagRequired("records-dir")

	for _, name := range []string{
		"records-dir", "order-ids", "order-files", "reference-file", "concurrency",
		"driver-rate", "labour-rate", "fetch-timeout", "output-format", "output-file", "progress",
	} {
		viper.BindPFlag("payout."+name, payoutCmd.Flags().Lookup(name))
	}
}

func validatePayoutFlags(cmd *cobra.Command, args []string) error {
	recordsDir = viper.GetString("payout.records-dir")
	payoutOrderIDs = viper.GetStringSlice("payout.order-ids")
	payoutOrderFiles = viper.GetStringSlice("payout.order-files")
	payoutRefFile = viper.GetString("payout.reference-file")
	payoutConcurrency = viper.GetInt("payout.concurrency")
	driverRate = viper.GetString("payout.driver-rate")
	labourRate = viper.GetString("payout.labour-rate")
	fetchTimeout = viper.GetDuration("payout.fetch-timeout")
	payoutFormat = viper.GetString("payout.output-format")
	payoutOutputFile = viper.GetString("payout.output-file")
	showPayoutProgress = viper.GetBool("payout.progress")

	if recordsDir == "" {
		return fmt.Errorf("records-dir is required")
	}
	info, err := os.Stat(recordsDir)
	if err != nil {
		return fmt.Errorf("records directory does not exist: %s", recordsDir)
	}
	if !info.IsDir() {
		return fmt.Errorf("records-dir is not a directory: %s", recordsDir)
	}

	if payoutRefFile != "" {
		if err := validateFileExists(payoutRefFile, "reference file"); err != nil {
			return err
		}
	}
	for i, path := range payoutOrderFiles {
		if err := validateFileExists(path, fmt.Sprintf("order file %d", i+1)); err != nil {
			return err
		}
	}

	if payoutConcurrency < 1 || payoutConcurrency > 256 {
		return fmt.Errorf("concurrency must be between 1 and 256")
	}
	if fetchTimeout < 0 {
		return fmt.Errorf("fetch timeout cannot be negative")
	}
	if _, err := config.CreatePayoutConfig(payoutConcurrency, fetchTimeout, driverRate, labourRate); err != nil {
		return err
	}

	if err := validateOutputFormat(payoutFormat); err != nil {
		return err
	}
	return validateOutputDir(payoutOutputFile)
}

func runPayout(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := logger.WithComponent("cli").WithField("command", "payout")

	payoutConfig, err := config.CreatePayoutConfig(payoutConcurrency, fetchTimeout, driverRate, labourRate)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "payout", nil, err)
	}
	reportConfig := config.CreateReportConfig(payoutFormat)

	parser, err := parsers.NewRecordParser(nil)
	if err != nil {
		return err
	}

	stats := parsers.NewParseStats("input")

	var index *matcher.EntityIndex
	if payoutRefFile != "" {
		ref, err := loadReferenceData(parser, payoutRefFile, stats)
		if err != nil {
			return err
		}
		if index, err = matcher.NewEntityIndex(ref, matcher.DefaultIndexConfig()); err != nil {
			return err
		}
	}

	var orders []models.Order
	for _, path := range payoutOrderFiles {
		order, err := loadOrder(parser, path, stats)
		if err != nil {
			return err
		}
		orders = append(orders, *order)
	}
	if stats.HasIssues() {
		log.WithFields(logger.Fields{
			"issues":  len(stats.Issues),
			"skipped": stats.EntriesSkip,
		}).Warn("Input files contained malformed entries")
	}

	source, err := parsers.NewDirectorySource(recordsDir, parser)
	if err != nil {
		return err
	}

	orderIDs := payoutOrderIDs
	if len(orderIDs) == 0 {
		if orderIDs, err = source.OrderIDs(ctx); err != nil {
			return err
		}
	}
	if len(orderIDs) == 0 {
		return errors.ValidationError(errors.CodeMissingField, "order_ids", recordsDir, nil).
			WithSuggestion("Pass --order-ids or add <orderID>.json records to the directory")
	}

	orchestrator, err := reconciler.NewPayoutOrchestrator(source, index, payoutConfig)
	if err != nil {
		return err
	}
	orchestrator.SetOrders(orders)

	if showPayoutProgress {
		orchestrator.AddProgressCallback(func(p reconciler.PayoutProgress) {
			fmt.Fprintf(os.Stderr, "\r[%d/%d] %s (%d skipped)", p.Done+p.Skipped, p.Total, p.OrderID, p.Skipped)
		})
	}

	log.WithFields(logger.Fields{
		"orders":      len(orderIDs),
		"concurrency": payoutConfig.Concurrency,
		"records_dir": recordsDir,
	}).Info("Starting payout aggregation")

	report, err := orchestrator.Run(ctx, orderIDs)
	if showPayoutProgress {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}

	if len(report.Skipped) > 0 {
		ids := make([]string, 0, len(report.Skipped))
		for _, s := range report.Skipped {
			ids = append(ids, s.OrderID)
		}
		log.WithField("skipped_orders", strings.Join(ids, ",")).Warn("Some orders were skipped")
	}

	return writeReport(report, reportConfig, payoutOutputFile)
}
