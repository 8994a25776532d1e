package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"petlabel/internal/catalog"
	"petlabel/internal/config"
	"petlabel/internal/logging"
	"petlabel/internal/store"
)

func newSeedCommand(ctx *commandContext) *cobra.Command {
	var adminUsername string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate an empty database with the catalog and mock images",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLockedStore(func(cfg *config.Config, st *store.Store) error {
				logger, err := logging.NewFromConfig(cfg)
				if err != nil {
					return fmt.Errorf("initialize logging: %w", err)
				}
				if err := catalog.Seed(cmd.Context(), st, adminUsername, logger); err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				categories, err := st.CategoryCount(cmd.Context())
				if err != nil {
					return err
				}
				items, err := st.ItemCount(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Database ready: %d categories, %d images, admin %q\n", categories, items, adminUsername)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&adminUsername, "admin", "admin", "Username for the seeded admin account")
	return cmd
}
