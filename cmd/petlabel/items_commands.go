package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"petlabel/internal/allocator"
	"petlabel/internal/api"
	"petlabel/internal/config"
	"petlabel/internal/editlock"
	"petlabel/internal/notifications"
	"petlabel/internal/store"
	"petlabel/internal/textutil"
)

func newAPIService(cfg *config.Config, st *store.Store) *api.Service {
	notifier := notifications.NewService(cfg)
	locks := editlock.NewManager(st, notifier, nil)
	return api.NewService(st, allocator.ForConfig(cfg, st), locks, nil)
}

func newItemsCommand(ctx *commandContext) *cobra.Command {
	itemsCmd := &cobra.Command{
		Use:   "items",
		Short: "Browse your labeling queue",
	}

	itemsCmd.AddCommand(newItemsListCommand(ctx))
	itemsCmd.AddCommand(newItemsShowCommand(ctx))

	return itemsCmd
}

func newItemsListCommand(ctx *commandContext) *cobra.Command {
	var page int
	var pageSize int
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List items available to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				worker, err := ctx.actingWorker(cmd.Context(), st)
				if err != nil {
					return err
				}
				if pageSize <= 0 {
					pageSize = cfg.Labeling.PageSize
				}
				service := newAPIService(cfg, st)
				result, err := service.ListAvailableItems(cmd.Context(), worker, page, pageSize, api.ItemStatus(status))
				if err != nil {
					return err
				}
				if len(result.Items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No items available")
					return nil
				}

				rows := make([][]string, 0, len(result.Items))
				for _, summary := range result.Items {
					rows = append(rows, []string{
						strconv.FormatInt(summary.Item.ID, 10),
						summary.Item.Filename,
						string(summary.Status),
						summarizeCategories(summary),
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Filename", "Status", "Categories"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
				))
				fmt.Fprintf(out, "Page %d of %d items\n", result.Page, result.Total)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Items per page (0 uses the configured default)")
	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status (pending, partial, completed)")
	return cmd
}

func newItemsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show one item's annotation view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				worker, err := ctx.actingWorker(cmd.Context(), st)
				if err != nil {
					return err
				}
				service := newAPIService(cfg, st)
				detail, err := service.GetItemForAnnotation(cmd.Context(), worker, itemID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s (#%d)\n", textutil.DisplayTitle(detail.Item.Filename), detail.Item.ID)
				fmt.Fprintf(out, "URL: %s\n", detail.Item.URL)
				if detail.Lock.Locked {
					switch {
					case detail.Lock.ApprovedToken != "":
						fmt.Fprintf(out, "Locked; edit grant %s is ready\n", detail.Lock.ApprovedToken)
					case detail.Lock.PendingToken != "":
						fmt.Fprintf(out, "Locked; edit request %s is pending\n", detail.Lock.PendingToken)
					default:
						fmt.Fprintln(out, "Locked; file an edit request to change answers")
					}
				}

				rows := make([][]string, 0, len(detail.Categories))
				for _, category := range detail.Categories {
					review := string(category.ReviewStatus)
					if category.ReviewNote != "" {
						review += ": " + category.ReviewNote
					}
					rows = append(rows, []string{
						strconv.FormatInt(category.Category.ID, 10),
						category.Category.Name,
						string(category.Status),
						formatIDList(category.SelectedOptionIDs),
						review,
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Category", "Status", "Selections", "Review"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))

				var nav []string
				if detail.PrevItemID != nil {
					nav = append(nav, fmt.Sprintf("prev #%d", *detail.PrevItemID))
				}
				if detail.NextItemID != nil {
					nav = append(nav, fmt.Sprintf("next #%d", *detail.NextItemID))
				}
				if len(nav) > 0 {
					fmt.Fprintln(out, strings.Join(nav, "  "))
				}
				return nil
			})
		},
	}
}

func summarizeCategories(summary *api.ItemSummary) string {
	counts := make(map[api.CategoryStatus]int)
	for _, status := range summary.CategoryStatuses {
		counts[status]++
	}
	parts := make([]string, 0, len(counts))
	for _, status := range []api.CategoryStatus{api.CategoryCompleted, api.CategoryInProgress, api.CategoryPending, api.CategoryCompletedByOther} {
		if counts[status] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[status], status))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}
