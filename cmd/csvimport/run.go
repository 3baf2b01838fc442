package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"csvimport/internal/config"
	"csvimport/internal/diag"
	"csvimport/internal/importer"
	"csvimport/internal/storage"

	// register every storage backend with the factory; DB_KIND selects one.
	_ "csvimport/internal/storage/all"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var metricsOpts metricsOptions

//nolint:gochecknoglobals // Cobra commands are typically global
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the import",
	RunE:  runImport,
}

func init() {
	rootCmd.AddCommand(runCmd)
	f := runCmd.Flags()
	f.StringVar(&metricsOpts.Backend, "metrics-backend", "", "metrics backend (none, pushgateway, datadog); default $METRICS_BACKEND")
	f.StringVar(&metricsOpts.PushGatewayURL, "pushgateway-url", "", "Pushgateway base URL; default $PUSHGATEWAY_URL")
	f.StringVar(&metricsOpts.StatsdAddr, "statsd-addr", "", "DogStatsD address; default $DD_DOGSTATSD_URL")
	f.StringVar(&metricsOpts.Job, "metrics-job", "csvimport", "metrics job name")
}

func runImport(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	runID := uuid.New().String()
	log := logger.WithFields(map[string]any{"run_id": runID, "config": cfgFile})

	spec, _, err := loadSpec(log, cfgFile)
	if err != nil {
		return err
	}
	conn, err := config.LoadConnection(os.LookupEnv)
	if err != nil {
		return err
	}

	flush, err := setupMetrics(log, metricsOpts)
	if err != nil {
		return err
	}
	defer flush()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return execute(ctx, log, spec, conn)
}

// execute opens the store, runs the import and logs the summary. The store
// is closed on every path.
func execute(ctx context.Context, log logrus.FieldLogger, spec *config.ImportSpec, conn config.Connection) error {
	log = log.WithField("destination", conn.String())
	sink := diag.New(log)

	store, err := storage.Open(ctx, conn)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			log.WithError(cerr).Warn("closing store")
		}
	}()

	log.WithFields(map[string]any{"file": spec.CSVFilePath, "table": spec.TableName}).Info("Import started")
	sum, err := importer.Run(ctx, *spec, store, sink)
	entry := log.WithFields(sum.Fields())
	if err != nil {
		entry.WithError(err).Error("Import failed")
		return err
	}
	entry.Info("Import finished")
	return nil
}
