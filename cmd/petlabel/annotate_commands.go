package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"petlabel/internal/annotating"
	"petlabel/internal/config"
	"petlabel/internal/editlock"
	"petlabel/internal/notifications"
	"petlabel/internal/store"
)

func newAnnotatingService(cfg *config.Config, st *store.Store) *annotating.Service {
	notifier := notifications.NewService(cfg)
	locks := editlock.NewManager(st, notifier, nil)
	return annotating.NewService(st, locks, cfg, nil)
}

func newAnnotateCommand(ctx *commandContext) *cobra.Command {
	annotateCmd := &cobra.Command{
		Use:   "annotate",
		Short: "Record annotations",
	}

	annotateCmd.AddCommand(newAnnotateSaveCommand(ctx))
	annotateCmd.AddCommand(newAnnotateSkipCommand(ctx))
	annotateCmd.AddCommand(newAnnotateHeartbeatCommand(ctx))
	annotateCmd.AddCommand(newAnnotateImproperCommand(ctx))

	return annotateCmd
}

func newAnnotateSaveCommand(ctx *commandContext) *cobra.Command {
	var sets []string
	var duplicates []int64
	var elapsed int64
	var rework bool

	cmd := &cobra.Command{
		Use:   "save <item-id>",
		Short: "Save selections for an item",
		Long: `Save selections for an item in one atomic write.

Each --set names a category and its selected options, for example
--set 3=12,14 selects options 12 and 14 in category 3. Every assigned
category must carry selections before the save is accepted, unless someone
else already completed it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			input, err := buildSaveInput(sets, duplicates, elapsed, rework)
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				worker, err := ctx.actingWorker(cmd.Context(), st)
				if err != nil {
					return err
				}
				service := newAnnotatingService(cfg, st)
				saved, err := service.SaveItem(cmd.Context(), worker, itemID, input)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %d categories on item #%d\n", len(saved), itemID)
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "Category selections as <category-id>=<option-id>[,<option-id>...] (repeatable)")
	cmd.Flags().Int64SliceVar(&duplicates, "duplicate", nil, "Category IDs to flag as duplicates (repeatable)")
	cmd.Flags().Int64Var(&elapsed, "elapsed", 0, "Seconds spent on this sitting")
	cmd.Flags().BoolVar(&rework, "rework", false, "Submit as a rework pass")
	return cmd
}

func buildSaveInput(sets []string, duplicates []int64, elapsed int64, rework bool) (annotating.SaveInput, error) {
	input := annotating.SaveInput{
		Categories:     make(map[int64]annotating.CategorySave),
		ElapsedSeconds: elapsed,
		IsRework:       rework,
	}
	for _, set := range sets {
		categoryPart, optionsPart, found := strings.Cut(set, "=")
		if !found {
			return input, fmt.Errorf("invalid --set %q; expected <category-id>=<option-ids>", set)
		}
		categoryID, err := strconv.ParseInt(strings.TrimSpace(categoryPart), 10, 64)
		if err != nil {
			return input, fmt.Errorf("invalid category id in --set %q", set)
		}
		var optionIDs []int64
		for _, raw := range strings.Split(optionsPart, ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			optionID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return input, fmt.Errorf("invalid option id %q in --set", raw)
			}
			optionIDs = append(optionIDs, optionID)
		}
		input.Categories[categoryID] = annotating.CategorySave{SelectedOptionIDs: optionIDs}
	}
	for _, categoryID := range duplicates {
		save := input.Categories[categoryID]
		flagged := true
		save.IsDuplicate = &flagged
		input.Categories[categoryID] = save
	}
	return input, nil
}

func newAnnotateSkipCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "skip <item-id>",
		Short: "Skip an item for now",
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
				service := newAnnotatingService(cfg, st)
				skipped, err := service.SkipItem(cmd.Context(), worker, itemID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Skipped %d categories on item #%d\n", len(skipped), itemID)
				return nil
			})
		},
	}
}

func newAnnotateHeartbeatCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat <item-id> <seconds>",
		Short: "Credit elapsed viewing time to an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			seconds, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid seconds %q", args[1])
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				worker, err := ctx.actingWorker(cmd.Context(), st)
				if err != nil {
					return err
				}
				service := newAnnotatingService(cfg, st)
				return service.Heartbeat(cmd.Context(), worker, itemID, seconds)
			})
		},
	}
}

func newAnnotateImproperCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "improper <item-id>",
		Short: "Flag an item as unusable for labeling",
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
				service := newAnnotatingService(cfg, st)
				if err := service.MarkImproper(cmd.Context(), worker, itemID, reason); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item #%d marked improper\n", itemID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the item cannot be labeled")
	return cmd
}
