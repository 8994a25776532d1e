package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"petlabel/internal/config"
	"petlabel/internal/store"
	"petlabel/internal/workers"
)

func newWorkersCommand(ctx *commandContext) *cobra.Command {
	workersCmd := &cobra.Command{
		Use:   "workers",
		Short: "Manage labeling accounts",
	}

	workersCmd.AddCommand(newWorkersCreateCommand(ctx))
	workersCmd.AddCommand(newWorkersListCommand(ctx))
	workersCmd.AddCommand(newWorkersAssignCommand(ctx))
	workersCmd.AddCommand(newWorkersActivateCommand(ctx, true))
	workersCmd.AddCommand(newWorkersActivateCommand(ctx, false))

	return workersCmd
}

func newWorkersCreateCommand(ctx *commandContext) *cobra.Command {
	var fullName string
	var admin bool
	var categoryIDs []int64

	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a labeling account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				acting, err := ctx.actingWorker(cmd.Context(), st)
				if err != nil {
					return err
				}
				role := store.RoleWorker
				if admin {
					role = store.RoleAdmin
				}
				service := workers.NewService(st, nil)
				worker, err := service.Create(cmd.Context(), acting, args[0], fullName, role, categoryIDs)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s %q (#%d)\n", worker.Role, worker.Username, worker.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&fullName, "full-name", "", "Display name for the account")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant the admin role")
	cmd.Flags().Int64SliceVar(&categoryIDs, "categories", nil, "Category IDs to assign (repeatable)")
	return cmd
}

func newWorkersListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List labeling accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				service := workers.NewService(st, nil)
				accounts, err := service.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(accounts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No accounts")
					return nil
				}

				rows := make([][]string, 0, len(accounts))
				for _, worker := range accounts {
					rows = append(rows, []string{
						strconv.FormatInt(worker.ID, 10),
						worker.Username,
						worker.FullName,
						string(worker.Role),
						yesNo(worker.Active),
						formatIDList(worker.CategoryIDs),
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Username", "Name", "Role", "Active", "Categories"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newWorkersAssignCommand(ctx *commandContext) *cobra.Command {
	var categoryIDs []int64

	cmd := &cobra.Command{
		Use:   "assign <worker-id>",
		Short: "Replace a worker's category assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workerID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid worker id %q", args[0])
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				acting, err := ctx.actingWorker(cmd.Context(), st)
				if err != nil {
					return err
				}
				service := workers.NewService(st, nil)
				if err := service.AssignCategories(cmd.Context(), acting, workerID, categoryIDs); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Assigned categories %s to worker #%d\n", formatIDList(categoryIDs), workerID)
				return nil
			})
		},
	}

	cmd.Flags().Int64SliceVar(&categoryIDs, "categories", nil, "Category IDs to assign (repeatable)")
	return cmd
}

func newWorkersActivateCommand(ctx *commandContext, active bool) *cobra.Command {
	use, short := "deactivate <worker-id>", "Deactivate an account, keeping its history"
	if active {
		use, short = "activate <worker-id>", "Reactivate an account"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workerID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid worker id %q", args[0])
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				acting, err := ctx.actingWorker(cmd.Context(), st)
				if err != nil {
					return err
				}
				service := workers.NewService(st, nil)
				if err := service.SetActive(cmd.Context(), acting, workerID, active); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Worker #%d active: %s\n", workerID, yesNo(active))
				return nil
			})
		},
	}
}

func formatIDList(ids []int64) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}
