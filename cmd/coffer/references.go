package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/coffer/internal/cli"
	"github.com/Veraticus/coffer/internal/common"
	"github.com/Veraticus/coffer/internal/model"
)

// referenceKinds maps the command names to lookup kinds.
var referenceKinds = map[string]model.LookupKind{
	"category": model.LookupCategory,
	"bank":     model.LookupBank,
	"type":     model.LookupTransactionType,
}

func referenceCmd(a *app, name, plural string) *cobra.Command {
	kind := referenceKinds[name]

	cmd := &cobra.Command{
		Use:   name,
		Short: "Manage " + plural,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <value>",
		Short: "Add a value to the " + plural,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}

			if err := svc.AddReferenceErr(cmd.Context(), kind, args[0]); err != nil {
				switch {
				case errors.Is(err, common.ErrDuplicateEntry):
					return common.NewUserError(fmt.Sprintf("%q is already one of the %s", args[0], plural), err)
				case errors.Is(err, common.ErrValidation):
					return common.NewUserError("Value must not be empty", err)
				}
				return err
			}

			printLine(cmd, cli.FormatSuccess(fmt.Sprintf("Added %s %q", name, args[0])))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the " + plural + " in insertion order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listValues(cmd, a, kind)
		},
	})

	return cmd
}

func valuesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "values <category|bank|transaction_type>",
		Short: "List the values of a lookup field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := model.ParseLookupKind(args[0])
			if err != nil {
				return common.NewUserError(fmt.Sprintf("Unknown field %q", args[0]), err)
			}
			return listValues(cmd, a, kind)
		},
	}
}

func listValues(cmd *cobra.Command, a *app, kind model.LookupKind) error {
	svc, err := a.service(cmd)
	if err != nil {
		return err
	}

	values, err := svc.ListValues(cmd.Context(), kind.String())
	if err != nil {
		return err
	}
	printLine(cmd, cli.RenderValues(kind, values))
	return nil
}
