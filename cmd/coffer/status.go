package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/coffer/internal/cli"
	"github.com/Veraticus/coffer/internal/model"
)

func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show where the store lives and whether it exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc := a.newService()

			printLine(cmd, cli.FormatTitle("coffer status"))
			printLine(cmd, fmt.Sprintf("Store: %s", a.cfg.DBPath()))
			if svc.IsInitialized() {
				printLine(cmd, cli.FormatSuccess("Initialized"))
			} else {
				printLine(cmd, cli.FormatWarning("Not initialized; run `coffer unlock` to create it"))
			}
			return nil
		},
	}
}

func unlockCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Verify the passphrase, creating the store if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}

			count, err := svc.CountTransactions(ctx)
			if err != nil {
				return err
			}

			printLine(cmd, cli.FormatSuccess("Store unlocked"))
			printLine(cmd, fmt.Sprintf("  Transactions: %d", count))
			for _, kind := range model.LookupKinds {
				values, err := svc.ValuesFor(ctx, kind)
				if err != nil {
					return err
				}
				printLine(cmd, fmt.Sprintf("  %s values: %d", kind, len(values)))
			}
			return nil
		},
	}
}
