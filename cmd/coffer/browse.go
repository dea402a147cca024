package main

import (
	"github.com/spf13/cobra"

	"github.com/Veraticus/coffer/internal/tui"
)

func browseCmd(a *app) *cobra.Command {
	var pageSize int

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse transactions interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if pageSize <= 0 {
				pageSize = a.cfg.UI.PageSize
			}

			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			return tui.Run(cmd.Context(), svc, pageSize)
		},
	}

	cmd.Flags().IntVar(&pageSize, "page-size", 0, "rows per page (default: ui.page_size)")
	return cmd
}
