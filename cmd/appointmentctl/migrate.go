package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hackgods/appointment-pipeline/internal/config"
	"github.com/hackgods/appointment-pipeline/internal/db"
	"github.com/hackgods/appointment-pipeline/internal/logging"
	"github.com/hackgods/appointment-pipeline/internal/regional"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the regional appointment tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			only, _ := cmd.Flags().GetString("country")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Env, "appointmentctl", cfg.Version)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			pools := db.NewManager(db.WithLogger(logger))
			configs := cfg.RegionalConfigs()
			router, err := regional.NewRouter(pools, configs, logger)
			if err != nil {
				return err
			}
			defer router.Close()

			for _, rc := range configs {
				if only != "" && !strings.EqualFold(only, string(rc.Country)) {
					continue
				}
				repo, err := router.Repository(string(rc.Country))
				if err != nil {
					return err
				}
				if err := repo.Migrate(ctx); err != nil {
					return fmt.Errorf("migrate %s: %w", rc.Country, err)
				}
				fmt.Printf("migrated %s: table=%s layout=%s driver=%s\n", rc.Country, rc.Table, rc.Layout, rc.DB.Driver)
			}
			return nil
		},
	}
	cmd.Flags().String("country", "", "Only migrate this country (PE or CL)")
	return cmd
}
