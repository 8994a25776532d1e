package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"petlabel/internal/config"
	"petlabel/internal/notifications"
	"petlabel/internal/review"
	"petlabel/internal/store"
)

func newReviewService(cfg *config.Config, st *store.Store) *review.Service {
	return review.NewService(st, notifications.NewService(cfg), nil)
}

func newReviewCommand(ctx *commandContext) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Audit completed annotations",
	}

	reviewCmd.AddCommand(newReviewTableCommand(ctx))
	reviewCmd.AddCommand(newReviewApproveCommand(ctx))
	reviewCmd.AddCommand(newReviewReworkCommand(ctx))
	reviewCmd.AddCommand(newReviewEditCommand(ctx))
	reviewCmd.AddCommand(newReviewStatsCommand(ctx))

	return reviewCmd
}

type reviewFilterFlags struct {
	workerID   int64
	categoryID int64
	statuses   []string
}

func (f *reviewFilterFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&f.workerID, "worker-id", 0, "Filter by worker ID")
	cmd.Flags().Int64Var(&f.categoryID, "category", 0, "Filter by category ID")
	cmd.Flags().StringSliceVar(&f.statuses, "review-status", nil, "Filter by review status (none, approved, rework_requested, rework_completed)")
}

func (f *reviewFilterFlags) build() (store.ReviewFilter, error) {
	var filter store.ReviewFilter
	if f.workerID > 0 {
		filter.WorkerID = &f.workerID
	}
	if f.categoryID > 0 {
		filter.CategoryID = &f.categoryID
	}
	for _, raw := range f.statuses {
		trimmed := strings.TrimSpace(raw)
		if strings.EqualFold(trimmed, "none") {
			trimmed = ""
		}
		status, ok := store.ParseReviewStatus(trimmed)
		if !ok {
			return filter, fmt.Errorf("invalid review status %q", raw)
		}
		filter.ReviewStatuses = append(filter.ReviewStatuses, status)
	}
	return filter, nil
}

func newReviewTableCommand(ctx *commandContext) *cobra.Command {
	var page int
	var pageSize int
	filters := &reviewFilterFlags{}

	cmd := &cobra.Command{
		Use:   "table",
		Short: "Show completed annotations as items-by-categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := filters.build()
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				reviewer, err := ctx.actingWorker(cmd.Context(), st)
				if err != nil {
					return err
				}
				if pageSize <= 0 {
					pageSize = cfg.Labeling.PageSize
				}
				service := newReviewService(cfg, st)
				result, err := service.Table(cmd.Context(), reviewer, filter, page, pageSize)
				if err != nil {
					return err
				}
				if len(result.Rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to review")
					return nil
				}

				headers := []string{"Item"}
				aligns := []columnAlignment{alignLeft}
				for _, category := range result.Categories {
					headers = append(headers, category.Name)
					aligns = append(aligns, alignLeft)
				}

				rows := make([][]string, 0, len(result.Rows))
				for _, row := range result.Rows {
					line := []string{fmt.Sprintf("#%d %s", row.ItemID, row.Filename)}
					for _, category := range result.Categories {
						line = append(line, formatCells(row.Cells[category.ID]))
					}
					rows = append(rows, line)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(out, headers, rows, aligns))
				fmt.Fprintf(out, "Page %d of %d items\n", result.Page, result.Total)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Items per page (0 uses the configured default)")
	filters.register(cmd)
	return cmd
}

func formatCells(cells []*review.TableCell) string {
	if len(cells) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(cells))
	for _, cell := range cells {
		part := fmt.Sprintf("[%d] %s %s", cell.AnnotationID, cell.WorkerUsername, formatIDList(cell.SelectedOptionIDs))
		if cell.IsDuplicate != nil && *cell.IsDuplicate {
			part += " dup"
		}
		if cell.ReviewStatus != store.ReviewNone {
			part += " (" + string(cell.ReviewStatus) + ")"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "\n")
}

func newReviewApproveCommand(ctx *commandContext) *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "approve <annotation-id>",
		Short: "Approve a completed annotation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			annotationID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid annotation id %q", args[0])
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				reviewer, err := ctx.actingWorker(cmd.Context(), st)
				if err != nil {
					return err
				}
				service := newReviewService(cfg, st)
				annotation, err := service.Approve(cmd.Context(), reviewer, annotationID, note)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Annotation #%d approved\n", annotation.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "Reviewer note")
	return cmd
}

func newReviewReworkCommand(ctx *commandContext) *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "rework <annotation-id>",
		Short: "Send an annotation back for rework",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			annotationID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid annotation id %q", args[0])
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				reviewer, err := ctx.actingWorker(cmd.Context(), st)
				if err != nil {
					return err
				}
				service := newReviewService(cfg, st)
				annotation, err := service.RequestRework(cmd.Context(), reviewer, annotationID, note)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Annotation #%d sent back for rework\n", annotation.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "What needs to change")
	return cmd
}

func newReviewEditCommand(ctx *commandContext) *cobra.Command {
	var optionIDs []int64
	var duplicate bool
	var note string

	cmd := &cobra.Command{
		Use:   "edit <annotation-id>",
		Short: "Correct an annotation's selections and approve it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			annotationID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid annotation id %q", args[0])
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				reviewer, err := ctx.actingWorker(cmd.Context(), st)
				if err != nil {
					return err
				}
				var dup *bool
				if cmd.Flags().Changed("duplicate") {
					dup = &duplicate
				}
				service := newReviewService(cfg, st)
				annotation, err := service.EditAndApprove(cmd.Context(), reviewer, annotationID, optionIDs, dup, note)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Annotation #%d edited and approved\n", annotation.ID)
				return nil
			})
		},
	}

	cmd.Flags().Int64SliceVar(&optionIDs, "options", nil, "Replacement option IDs (repeatable)")
	cmd.Flags().BoolVar(&duplicate, "duplicate", false, "Set the duplicate flag")
	cmd.Flags().StringVar(&note, "note", "", "Reviewer note")
	return cmd
}

func newReviewStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize review progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				reviewer, err := ctx.actingWorker(cmd.Context(), st)
				if err != nil {
					return err
				}
				service := newReviewService(cfg, st)
				stats, err := service.Stats(cmd.Context(), reviewer)
				if err != nil {
					return err
				}
				rows := [][]string{
					{"Completed", strconv.Itoa(stats.Completed)},
					{"Unreviewed", strconv.Itoa(stats.Unreviewed)},
					{"Approved", strconv.Itoa(stats.Approved)},
					{"Rework requested", strconv.Itoa(stats.ReworkRequested)},
					{"Rework completed", strconv.Itoa(stats.ReworkCompleted)},
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(out,
					[]string{"Metric", "Count"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}
