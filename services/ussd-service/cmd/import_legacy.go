package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grigta/simgate/services/ussd-service/internal/legacy"
	"github.com/grigta/simgate/services/ussd-service/internal/repository"
)

var importOpts struct {
	driver string
	dsn    string
}

var importLegacyCmd = &cobra.Command{
	Use:   "import-legacy",
	Short: "Copy devices, SIM cards, users, templates and transactions from the old SQL database",
	RunE: func(cmd *cobra.Command, args []string) error {
		driver, dsn := importOpts.driver, importOpts.dsn
		if driver == "" {
			driver = cfg.Legacy.Driver
		}
		if dsn == "" {
			dsn = cfg.Legacy.DSN
		}
		if dsn == "" {
			return fmt.Errorf("a legacy DSN is required (--dsn or LEGACY_DB_DSN)")
		}

		source, err := legacy.Open(driver, dsn)
		if err != nil {
			return err
		}
		defer legacy.Close(source)

		db, err := connectMongo()
		if err != nil {
			return err
		}
		defer db.Close()

		repos, err := newRepositories(db)
		if err != nil {
			return err
		}
		if err := repository.EnsureIndexes(cmd.Context(), db, log); err != nil {
			return fmt.Errorf("failed to ensure indexes: %w", err)
		}

		sink := legacy.NewMongoSink(db, legacy.Writers{
			Devices:      repos.devices,
			SimCards:     repos.sims,
			Users:        repos.users,
			Transactions: repos.transactions,
			Templates:    repos.templates,
			Config:       repos.configs,
		})

		report, err := legacy.NewImporter(source, sink, log).Run(cmd.Context())
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return err
	},
}

func init() {
	importLegacyCmd.Flags().StringVar(&importOpts.driver, "driver", "", "legacy driver: postgres or sqlite (defaults to legacy.driver)")
	importLegacyCmd.Flags().StringVar(&importOpts.dsn, "dsn", "", "legacy connection string or SQLite file")
	rootCmd.AddCommand(importLegacyCmd)
}
