package cmd

import (
	"fmt"
	"os"

	"assignment-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	verbose   bool
	logFormat string
	version   = "dev"
	commit    = "unknown"
	date      = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "assigner",
	Short: "Partial-assignment reconciliation tool",
	Long: `Assigner reconciles the collection assignments of fulfillment orders.
It splits each order item across farmers, suppliers and third parties,
derives the remaining rows, regenerates delivery routes, summarizes
driver workloads and computes payouts across many orders.

Examples:
  assigner reconcile --order-file order.json --reference-file ref.json --assignment-file record.json
  assigner payout --records-dir records/ --reference-file ref.json --driver-rate 2.5
  assigner version`,
	Version:       getVersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text, json")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)

		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}
	}

	viper.SetEnvPrefix("ASSIGNER")
	viper.AutomaticEnv()

	configureLogging()

	if cfgFile != "" {
		logger.GetGlobalLogger().WithField("config_file", viper.ConfigFileUsed()).Debug("Using config file")
	}
}

// configureLogging installs the global logger. Verbose runs log at debug
// level with caller info, the rest only log warnings.
func configureLogging() {
	config := logger.DefaultConfig()
	if viper.GetBool("verbose") {
		config = logger.VerboseConfig()
	}
	if viper.GetString("log-format") == "json" {
		config.Format = logger.JSONFormat
	}

	log, err := logger.NewLogger(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %s\n", err)
		return
	}
	logger.SetGlobalLogger(log)
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
