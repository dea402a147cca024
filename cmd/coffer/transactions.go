package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Veraticus/coffer/internal/cli"
	"github.com/Veraticus/coffer/internal/common"
	"github.com/Veraticus/coffer/internal/importer"
	"github.com/Veraticus/coffer/internal/model"
)

func txCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tx",
		Aliases: []string{"transaction", "transactions"},
		Short:   "Add, edit, delete and list transactions",
		Example: `  # Record a purchase
  coffer tx add --date 14/02/2024 --name "Flowers" --category Gifts --amount -35.00 --types "Card / Debit" --bank Chase

  # Fix its amount
  coffer tx edit 12 --amount -38.50

  # Page through the ledger, newest first
  coffer tx list --page-size 20
  coffer tx list --page-size 20 --after-date 02/01/2024 --after-id 87`,
	}

	cmd.AddCommand(txAddCmd(a))
	cmd.AddCommand(txEditCmd(a))
	cmd.AddCommand(txDeleteCmd(a))
	cmd.AddCommand(txShowCmd(a))
	cmd.AddCommand(txListCmd(a))
	return cmd
}

// txFlags are the six transaction fields as typed on the command line.
type txFlags struct {
	date     string
	name     string
	category string
	amount   string
	types    string
	bank     string
}

func (f *txFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.date, "date", "", "date as DD/MM/YYYY (default: today)")
	fs.StringVar(&f.name, "name", "", "payee or description")
	fs.StringVar(&f.category, "category", "", "category")
	fs.StringVar(&f.amount, "amount", "", "amount, negative for money out")
	fs.StringVar(&f.types, "types", "", `transaction types separated by "/"`)
	fs.StringVar(&f.bank, "bank", "", "bank")
}

func (f *txFlags) raw() model.RawRow {
	return model.RawRow{
		Date:     f.date,
		Name:     f.name,
		Category: f.category,
		Amount:   f.amount,
		Types:    f.types,
		Bank:     f.bank,
	}
}

// apply overrides the fields of txn whose flags were set.
func (f *txFlags) apply(fs *pflag.FlagSet, txn *model.Transaction) error {
	if fs.Changed("date") {
		d, err := importer.ParseDate(f.date)
		if err != nil {
			return err
		}
		txn.Date = d
	}
	if fs.Changed("name") {
		txn.Name = f.name
	}
	if fs.Changed("category") {
		txn.Category = f.category
	}
	if fs.Changed("amount") {
		amt, err := importer.ParseAmount(f.amount)
		if err != nil {
			return err
		}
		txn.Amount = amt
	}
	if fs.Changed("types") {
		txn.TransactionTypes = model.SplitTypes(f.types)
	}
	if fs.Changed("bank") {
		txn.Bank = f.bank
	}
	return nil
}

func userFacing(err error) error {
	switch {
	case errors.Is(err, common.ErrValidation):
		return common.NewUserError("Invalid transaction", err)
	case errors.Is(err, common.ErrNotFound):
		return common.NewUserError("No such transaction", err)
	default:
		return err
	}
}

func txAddCmd(a *app) *cobra.Command {
	var f txFlags

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.date == "" {
				f.date = time.Now().Format(importer.DateLayout)
			}

			txn, err := importer.ParseRow(f.raw())
			if err != nil {
				return userFacing(err)
			}

			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			id, err := svc.AddTransactionErr(cmd.Context(), &txn)
			if err != nil {
				return userFacing(err)
			}

			printLine(cmd, cli.FormatSuccess(fmt.Sprintf("Recorded transaction #%d", id)))
			return nil
		},
	}

	f.register(cmd.Flags())
	for _, name := range []string{"name", "category", "amount", "types", "bank"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func txEditCmd(a *app) *cobra.Command {
	var f txFlags

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a transaction",
		Long:  "Change fields of a transaction. Fields whose flags are not given keep their value.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			txn, err := svc.GetTransaction(cmd.Context(), id)
			if err != nil {
				return userFacing(err)
			}

			if err := f.apply(cmd.Flags(), txn); err != nil {
				return userFacing(err)
			}
			if err := svc.EditTransactionErr(cmd.Context(), txn); err != nil {
				return userFacing(err)
			}

			printLine(cmd, cli.FormatSuccess(fmt.Sprintf("Updated transaction #%d", id)))
			return nil
		},
	}

	f.register(cmd.Flags())
	return cmd
}

func txDeleteCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			svc, err := a.service(cmd)
			if err != nil {
				return err
			}

			if !yes {
				txn, err := svc.GetTransaction(cmd.Context(), id)
				if err != nil {
					return userFacing(err)
				}
				printLine(cmd, cli.RenderTransaction(txn))

				ok, err := cli.NewPrompter(a.in, cmd.ErrOrStderr()).Confirm(cmd.Context(), "Delete this transaction?")
				if err != nil {
					return err
				}
				if !ok {
					printLine(cmd, cli.FormatInfo("Nothing deleted"))
					return nil
				}
			}

			if err := svc.DeleteTransactionErr(cmd.Context(), id); err != nil {
				return userFacing(err)
			}
			printLine(cmd, cli.FormatSuccess(fmt.Sprintf("Deleted transaction #%d", id)))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "delete without asking")
	return cmd
}

func txShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			txn, err := svc.GetTransaction(cmd.Context(), id)
			if err != nil {
				return userFacing(err)
			}

			printLine(cmd, cli.RenderTransaction(txn))
			return nil
		},
	}
}

func txListCmd(a *app) *cobra.Command {
	var (
		pageSize  int
		afterDate string
		afterID   int64
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if pageSize <= 0 {
				pageSize = a.cfg.UI.PageSize
			}

			cursor := model.FirstPage()
			if afterDate != "" || afterID != 0 {
				if afterDate == "" || afterID <= 0 {
					return common.NewUserError("--after-date and --after-id must be given together", common.ErrValidation)
				}
				d, err := importer.ParseDate(afterDate)
				if err != nil {
					return userFacing(err)
				}
				cursor = model.After(d, afterID)
			}

			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			page, err := svc.ListTransactions(cmd.Context(), pageSize, cursor)
			if err != nil {
				return err
			}

			printLine(cmd, cli.RenderTransactions(page))
			if next, ok := model.NextCursor(page); ok && len(page) == pageSize {
				printLine(cmd, cli.SubtleStyle.Render(strings.Join([]string{
					"next page:",
					"coffer tx list",
					fmt.Sprintf("--page-size %d", pageSize),
					"--after-date " + next.Date.Format(cli.DisplayDateLayout),
					fmt.Sprintf("--after-id %d", next.ID),
				}, " ")))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&pageSize, "page-size", 0, "rows per page (default: ui.page_size)")
	cmd.Flags().StringVar(&afterDate, "after-date", "", "continue after the row with this date (DD/MM/YYYY)")
	cmd.Flags().Int64Var(&afterID, "after-id", 0, "continue after the row with this id")
	return cmd
}
