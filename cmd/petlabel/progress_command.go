package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"petlabel/internal/config"
	"petlabel/internal/store"
	"petlabel/internal/workers"
)

func newProgressCommand(ctx *commandContext) *cobra.Command {
	var showItems bool

	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show pool completion and per-worker progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				service := workers.NewService(st, nil)

				rollup, err := service.CompletionRollup(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Pool: %d items (%d fully labeled, %d partial, %d untouched, %d improper)\n",
					rollup.TotalItems, rollup.FullyLabeled, rollup.PartiallyLabeled, rollup.Untouched, rollup.Improper)

				accounts, err := service.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(accounts) == 0 {
					return nil
				}

				rows := make([][]string, 0, len(accounts))
				for _, worker := range accounts {
					if worker.Role != store.RoleWorker {
						continue
					}
					progress, err := service.WorkerProgress(cmd.Context(), worker.ID)
					if err != nil {
						return err
					}
					rows = append(rows, []string{
						worker.Username,
						strconv.Itoa(progress.Completed),
						strconv.Itoa(progress.InProgress),
						strconv.Itoa(progress.Skipped),
						strconv.Itoa(progress.Reworked),
						formatSeconds(progress.TimeSpentSeconds),
						formatSeconds(progress.ReworkTimeSeconds),
					})
				}
				if len(rows) > 0 {
					fmt.Fprintln(out, renderTable(out,
						[]string{"Worker", "Completed", "In Progress", "Skipped", "Reworked", "Time", "Rework Time"},
						rows,
						[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
					))
				}

				if worker, err := ctx.actingWorker(cmd.Context(), st); err == nil {
					if err := printCategoryProgress(cmd, service, worker); err != nil {
						return err
					}
				}
				if showItems {
					if err := printItemCompletion(cmd, service, st); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&showItems, "items", false, "Also show per-item completion")
	return cmd
}

func printCategoryProgress(cmd *cobra.Command, service *workers.Service, worker *store.Worker) error {
	progress, err := service.CategoryProgress(cmd.Context(), worker.ID)
	if err != nil {
		return err
	}
	if len(progress) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(progress))
	for _, entry := range progress {
		rows = append(rows, []string{
			entry.Category.Name,
			strconv.Itoa(entry.Completed),
			strconv.Itoa(entry.InProgress),
			strconv.Itoa(entry.Skipped),
			strconv.Itoa(entry.Pending),
		})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Categories for %s:\n", worker.Username)
	fmt.Fprintln(out, renderTable(out,
		[]string{"Category", "Completed", "In Progress", "Skipped", "Pending"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
	))
	return nil
}

func printItemCompletion(cmd *cobra.Command, service *workers.Service, st *store.Store) error {
	view, err := service.ItemCompletionView(cmd.Context())
	if err != nil {
		return err
	}
	categories, err := st.ListCategories(cmd.Context())
	if err != nil {
		return err
	}

	headers := []string{"Item", "Complete"}
	aligns := []columnAlignment{alignLeft, alignLeft}
	for _, category := range categories {
		headers = append(headers, category.Name)
		aligns = append(aligns, alignLeft)
	}

	rows := make([][]string, 0, len(view))
	for _, completion := range view {
		row := []string{
			fmt.Sprintf("#%d %s", completion.Item.ID, completion.Item.Filename),
			yesNo(completion.Complete),
		}
		for _, category := range categories {
			status := string(completion.Statuses[category.ID])
			if status == "" {
				status = "-"
			}
			row = append(row, status)
		}
		rows = append(rows, row)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable(out, headers, rows, aligns))
	return nil
}

func formatSeconds(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm%02ds", seconds/60, seconds%60)
}
