package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"petlabel/internal/config"
	"petlabel/internal/store"
	"petlabel/internal/textutil"
)

func newImagesCommand(ctx *commandContext) *cobra.Command {
	imagesCmd := &cobra.Command{
		Use:   "images",
		Short: "Manage the shared image pool",
	}

	imagesCmd.AddCommand(newImagesAddCommand(ctx))
	imagesCmd.AddCommand(newImagesListCommand(ctx))

	return imagesCmd
}

func newImagesAddCommand(ctx *commandContext) *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "add <filename>",
		Short: "Add an image to the pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := textutil.SanitizeFileName(strings.TrimSpace(args[0]))
			if filename == "" {
				return fmt.Errorf("filename is required")
			}
			if strings.TrimSpace(url) == "" {
				return fmt.Errorf("--url is required")
			}

			return ctx.withLockedStore(func(cfg *config.Config, st *store.Store) error {
				item, err := st.AddItem(cmd.Context(), filename, strings.TrimSpace(url))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added image #%d (%s)\n", item.ID, textutil.DisplayTitle(item.Filename))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Source URL for the image")
	return cmd
}

func newImagesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pool images",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				items, err := st.ListItems(cmd.Context())
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Pool is empty")
					return nil
				}

				rows := make([][]string, 0, len(items))
				for _, item := range items {
					improper := ""
					if item.Improper {
						improper = "improper"
						if item.ImproperReason != "" {
							improper = "improper: " + item.ImproperReason
						}
					}
					rows = append(rows, []string{
						strconv.FormatInt(item.ID, 10),
						item.Filename,
						item.URL,
						improper,
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Filename", "URL", "Flags"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}
