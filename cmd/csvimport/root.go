package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"csvimport/internal/config"
)

//nolint:gochecknoglobals // Global vars needed for cobra CLI
var (
	cfgFile  string
	envFiles []string
	logger   *logrus.Logger
)

//nolint:gochecknoglobals // Cobra commands are typically global
var rootCmd = &cobra.Command{
	Use:   "csvimport",
	Short: "Load a CSV file into a database table",
	Long: `csvimport reads a delimited text file, converts each field according to
the configured column types and placeholder rules, adds values derived from
the file name, optionally clears the target rows, and inserts everything in a
single transaction.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		initLogger(cmd)
		return config.LoadDotEnv(envFiles...)
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "import_config.json", "import configuration file (.json, .yaml or .yml)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files to load; existing variables win")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	logger = logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func initLogger(cmd *cobra.Command) {
	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		logLevel = "info"
	}
	level, parseErr := logrus.ParseLevel(logLevel)
	if parseErr != nil {
		logger.WithError(parseErr).Warn("Invalid log level, defaulting to info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

// loadSpec decodes and validates the import document. Every issue is
// logged; the returned error is non-nil when any issue has error severity.
func loadSpec(log logrus.FieldLogger, path string) (*config.ImportSpec, []config.Issue, error) {
	spec, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	issues := config.ValidateImport(*spec)
	for _, iss := range issues {
		l := log.WithField("path", iss.Path)
		if iss.Severity == config.SeverityError {
			l.Error(iss.Message)
		} else {
			l.Warn(iss.Message)
		}
	}
	if config.HasErrors(issues) {
		return spec, issues, fmt.Errorf("configuration %s is invalid", path)
	}
	return spec, issues, nil
}
