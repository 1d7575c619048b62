// Command stockctl performs maintenance tasks against the stock database.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shopsy-inventory-api/internal/config"
	"shopsy-inventory-api/internal/logger"
	"shopsy-inventory-api/internal/repository"
	"shopsy-inventory-api/internal/service"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "stockctl",
		Short:         "Maintenance commands for the Shopsy stock database",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newMigrateCommand(), newSeedCommand(), newStatsCommand())
	return root
}

// openStore loads configuration from the environment and opens the database.
// Opening a store creates any missing tables.
func openStore() (*repository.SQLStore, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(&cfg.App, &cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	store, err := repository.Open(&cfg.Database)
	if err != nil {
		log.Sync()
		return nil, nil, fmt.Errorf("open %s database: %w", cfg.Database.Type, err)
	}
	return store, log, nil
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the stock tables if they do not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, log, err := openStore()
			if err != nil {
				return err
			}
			defer log.Sync()
			defer store.Close()

			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info("schema up to date", zap.String("dialect", store.Dialect()))
			return nil
		},
	}
}

func newSeedCommand() *cobra.Command {
	var threshold int
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create stock records for the demo catalogue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, log, err := openStore()
			if err != nil {
				return err
			}
			defer log.Sync()
			defer store.Close()

			svc := service.NewStockService(store, store, service.Options{Logger: log})
			created, err := seedCatalogue(cmd.Context(), svc, threshold, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d of %d products\n", created, len(catalogue))
			return nil
		},
	}
	cmd.Flags().IntVar(&threshold, "low-stock-threshold", 10, "low stock threshold for new records")
	return cmd
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print stock database statistics as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, log, err := openStore()
			if err != nil {
				return err
			}
			defer log.Sync()
			defer store.Close()

			stats, err := store.GetStats(cmd.Context())
			if err != nil {
				log.Error("failed to read stats", zap.Error(err))
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
}
