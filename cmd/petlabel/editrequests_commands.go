package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"petlabel/internal/config"
	"petlabel/internal/editlock"
	"petlabel/internal/notifications"
	"petlabel/internal/store"
)

func newEditLockManager(cfg *config.Config, st *store.Store) *editlock.Manager {
	return editlock.NewManager(st, notifications.NewService(cfg), nil)
}

func newEditRequestsCommand(ctx *commandContext) *cobra.Command {
	editCmd := &cobra.Command{
		Use:   "edit-requests",
		Short: "Request and grant edits on locked items",
	}

	editCmd.AddCommand(newEditRequestFileCommand(ctx))
	editCmd.AddCommand(newEditRequestListCommand(ctx))
	editCmd.AddCommand(newEditRequestPendingCommand(ctx))
	editCmd.AddCommand(newEditRequestDecideCommand(ctx, true))
	editCmd.AddCommand(newEditRequestDecideCommand(ctx, false))

	return editCmd
}

func newEditRequestFileCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "file <item-id>",
		Short: "Ask for permission to edit a locked item",
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
				manager := newEditLockManager(cfg, st)
				request, err := manager.Request(cmd.Context(), worker, itemID, reason)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Filed edit request %s for item #%d\n", request.Token, itemID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the edit is needed")
	return cmd
}

func newEditRequestListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your edit requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				worker, err := ctx.actingWorker(cmd.Context(), st)
				if err != nil {
					return err
				}
				manager := newEditLockManager(cfg, st)
				requests, err := manager.ListForWorker(cmd.Context(), worker.ID)
				if err != nil {
					return err
				}
				printEditRequests(cmd, requests)
				return nil
			})
		},
	}
}

func newEditRequestPendingCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List pending edit requests awaiting a decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				manager := newEditLockManager(cfg, st)
				requests, err := manager.ListPending(cmd.Context())
				if err != nil {
					return err
				}
				printEditRequests(cmd, requests)
				return nil
			})
		},
	}
}

func newEditRequestDecideCommand(ctx *commandContext, approve bool) *cobra.Command {
	var note string

	use, short := "deny <token>", "Deny an edit request"
	if approve {
		use, short = "approve <token>", "Approve an edit request for one write"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				reviewer, err := ctx.actingWorker(cmd.Context(), st)
				if err != nil {
					return err
				}
				manager := newEditLockManager(cfg, st)
				request, err := manager.Decide(cmd.Context(), reviewer, args[0], approve, note)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Request %s is now %s\n", request.Token, request.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "Reviewer note for the decision")
	return cmd
}

func printEditRequests(cmd *cobra.Command, requests []*store.EditRequest) {
	out := cmd.OutOrStdout()
	if len(requests) == 0 {
		fmt.Fprintln(out, "No edit requests")
		return
	}
	rows := make([][]string, 0, len(requests))
	for _, request := range requests {
		rows = append(rows, []string{
			request.Token,
			strconv.FormatInt(request.ItemID, 10),
			string(request.Status),
			request.Reason,
			request.ReviewNote,
		})
	}
	fmt.Fprintln(out, renderTable(out,
		[]string{"Token", "Item", "Status", "Reason", "Note"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
	))
}
