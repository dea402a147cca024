package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/coffer/internal/cli"
	"github.com/Veraticus/coffer/internal/common"
	"github.com/Veraticus/coffer/internal/storage"
)

func checkpointCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage store checkpoints",
		Long: `Create, list, and delete store checkpoints.

A checkpoint is a copy of the encrypted store file and opens with the same
passphrase. One is taken automatically before every import; the five newest
automatic checkpoints are kept. To restore, copy a checkpoint file over the
store while coffer is not running.`,
		Example: `  # Snapshot before a cleanup
  coffer checkpoint create pre-cleanup -m "before merging banks"

  # List all checkpoints
  coffer checkpoint list

  # Delete an old checkpoint
  coffer checkpoint delete pre-cleanup`,
	}

	cmd.AddCommand(createCheckpointCmd(a))
	cmd.AddCommand(listCheckpointsCmd(a))
	cmd.AddCommand(deleteCheckpointCmd(a))
	return cmd
}

func checkpointError(err error) error {
	switch {
	case errors.Is(err, storage.ErrCheckpointExists):
		return common.NewUserError("A checkpoint with that tag already exists", err)
	case errors.Is(err, storage.ErrCheckpointNotFound):
		return common.NewUserError("No checkpoint with that tag", err)
	case errors.Is(err, storage.ErrInvalidCheckpoint):
		return common.NewUserError("Checkpoint tags must not contain path separators", err)
	default:
		return err
	}
}

func createCheckpointCmd(a *app) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "create [tag]",
		Short: "Create a new checkpoint",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var tag string
			if len(args) == 1 {
				tag = args[0]
			}

			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			info, err := svc.CreateCheckpoint(cmd.Context(), tag, description)
			if err != nil {
				return checkpointError(err)
			}

			printLine(cmd, cli.FormatSuccess(fmt.Sprintf("Created checkpoint %s (%d transactions)", info.ID, info.Transactions)))
			if info.Description != "" {
				printLine(cmd, "  Description: "+info.Description)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "message", "m", "", "description of the checkpoint")
	return cmd
}

func listCheckpointsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			list, err := svc.ListCheckpoints(cmd.Context())
			if err != nil {
				return err
			}

			printLine(cmd, cli.RenderCheckpoints(list))
			return nil
		},
	}
}

func deleteCheckpointCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <tag>",
		Short: "Delete a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			if err := svc.DeleteCheckpoint(cmd.Context(), args[0]); err != nil {
				return checkpointError(err)
			}

			printLine(cmd, cli.FormatSuccess("Deleted checkpoint "+args[0]))
			return nil
		},
	}
}
