package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"petlabel/internal/config"
	"petlabel/internal/notifications"
	"petlabel/internal/store"
)

func newNotificationsCommand(ctx *commandContext) *cobra.Command {
	notifyCmd := &cobra.Command{
		Use:   "notifications",
		Short: "Read your in-app notifications",
	}

	notifyCmd.AddCommand(newNotificationsListCommand(ctx))
	notifyCmd.AddCommand(newNotificationsReadCommand(ctx))

	return notifyCmd
}

func newNotificationsListCommand(ctx *commandContext) *cobra.Command {
	var unreadOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				worker, err := ctx.actingWorker(cmd.Context(), st)
				if err != nil {
					return err
				}
				notes, err := st.ListNotifications(cmd.Context(), worker.ID, unreadOnly)
				if err != nil {
					return err
				}
				if len(notes) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No notifications")
					return nil
				}

				rows := make([][]string, 0, len(notes))
				for _, note := range notes {
					item := "-"
					if note.ItemID != nil {
						item = strconv.FormatInt(*note.ItemID, 10)
					}
					rows = append(rows, []string{
						strconv.FormatInt(note.ID, 10),
						note.Type,
						note.Message,
						item,
						yesNo(note.Read),
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Type", "Message", "Item", "Read"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&unreadOnly, "unread", "u", false, "Only unread notifications")
	return cmd
}

func newNotificationsReadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "read [id...]",
		Short: "Mark notifications as read (all when no IDs given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid notification id %q", arg)
				}
				ids = append(ids, id)
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				worker, err := ctx.actingWorker(cmd.Context(), st)
				if err != nil {
					return err
				}
				if err := st.MarkNotificationsRead(cmd.Context(), worker.ID, ids); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Notifications marked read")
				return nil
			})
		},
	}
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test push notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Notifications.NtfyTopic == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No ntfy topic configured; nothing sent")
				return nil
			}
			service := notifications.NewService(cfg)
			if err := service.TestNotification(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}
