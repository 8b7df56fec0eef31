package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
	repo "github.com/joseph-ayodele/saenggibu-tracker/internal/repository"
)

var migrate bool

var dbhealthCmd = &cobra.Command{
	Use:   "dbhealth",
	Short: "Ping the database and optionally apply the schema",
	Args:  cobra.NoArgs,
	RunE:  runDBHealth,
}

func init() {
	dbhealthCmd.Flags().BoolVar(&migrate, "migrate", false, "Create or update tables after a successful ping")
}

func runDBHealth(cmd *cobra.Command, _ []string) error {
	cfg := common.LoadConfig()
	ctx := cmd.Context()

	drv, pool, err := openDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening DB: %w", err)
	}
	defer repo.Close(drv, pool, logger)

	if err := repo.HealthCheck(ctx, drv, time.Second, logger); err != nil {
		return fmt.Errorf("DB health: FAIL (%w)", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "DB health: OK")

	if migrate {
		if err := repo.Migrate(ctx, drv, logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema: up to date")
	}
	return nil
}
