package main

import (
	"os"

	"github.com/spf13/cobra"

	"csvimport/internal/config"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var skipEnv bool

//nolint:gochecknoglobals // Cobra commands are typically global
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the import configuration and connection environment",
	Long: `Validates the import document and the DB_* environment variables
without opening the source file or connecting to the database.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cmd.SilenceUsage = true
		return validateAll(cfgFile, os.LookupEnv, skipEnv)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVar(&skipEnv, "skip-env", false, "do not check connection environment variables")
}

func validateAll(path string, lookup config.LookupFunc, skipEnv bool) error {
	log := logger.WithField("config", path)
	spec, _, err := loadSpec(log, path)
	if err != nil {
		return err
	}
	if !skipEnv {
		conn, err := config.LoadConnection(lookup)
		if err != nil {
			return err
		}
		log = log.WithField("destination", conn.String())
	}
	log.WithField("table", spec.TableName).Info("Configuration is valid")
	return nil
}
