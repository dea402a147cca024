package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/coffer/internal/cli"
	"github.com/Veraticus/coffer/internal/common"
	"github.com/Veraticus/coffer/internal/model"
	"github.com/Veraticus/coffer/internal/ofx"
	"github.com/Veraticus/coffer/internal/service"
)

const importNote = "The import keeps going until every row is processed."

func importCmd(a *app) *cobra.Command {
	var sheet string

	cmd := &cobra.Command{
		Use:   "import <file.xlsx|file.csv>",
		Short: "Import transactions from a spreadsheet",
		Long: `Import transactions from an .xlsx workbook or a .csv file.

Each row holds six fields: date (DD/MM/YYYY), name, category, amount,
transaction types separated by "/", and bank. A header row is skipped.
Rows that fail are reported by row number; the other rows are still imported.`,
		Example: `  coffer import ~/Downloads/ledger.xlsx
  coffer import --sheet 2023 ~/Downloads/ledger.xlsx
  coffer import statement.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sheet == "" {
				sheet = a.cfg.Import.Sheet
			}

			svc, err := a.service(cmd)
			if err != nil {
				return err
			}

			return a.runImport(cmd, filepath.Base(args[0]), func(opts service.ImportOptions) (model.ImportSummary, error) {
				opts.Sheet = sheet
				return svc.ImportSpreadsheetDetailed(cmd.Context(), args[0], opts)
			})
		},
	}

	cmd.Flags().StringVar(&sheet, "sheet", "", "workbook sheet to read (default: import.sheet, then Sheet1)")
	return cmd
}

func importOFXCmd(a *app) *cobra.Command {
	var (
		bank, category string
		listAccounts   bool
	)

	cmd := &cobra.Command{
		Use:   "import-ofx <files...>",
		Short: "Import transactions from OFX/QFX statement files",
		Long: `Import transactions from OFX or QFX (Quicken) files exported from your bank.

Transaction types from the statement become tags, interest and fees get their
own categories, and the bank defaults to the statement's account id.`,
		Example: `  # Import a single file
  coffer import-ofx ~/Downloads/chase_jan_2024.qfx

  # Import every statement in a directory
  coffer import-ofx --bank "Credit Union" ~/Downloads/*.qfx

  # Show which accounts a statement covers without importing
  coffer import-ofx --accounts ~/Downloads/chase_jan_2024.qfx`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandFiles(args)
			if err != nil {
				return err
			}
			if listAccounts {
				return printAccounts(cmd, files)
			}

			defaults := a.cfg.OFXDefaults()
			if cmd.Flags().Changed("bank") {
				defaults.Bank = bank
			}
			if cmd.Flags().Changed("category") {
				defaults.Category = category
			}

			svc, err := a.service(cmd)
			if err != nil {
				return err
			}

			var failed []string
			for _, path := range files {
				err := a.runImport(cmd, filepath.Base(path), func(opts service.ImportOptions) (model.ImportSummary, error) {
					return svc.ImportOFXDetailed(cmd.Context(), path, defaults, opts)
				})
				if err != nil {
					slog.Error("Failed to import OFX file", "file", path, "error", err)
					failed = append(failed, filepath.Base(path))
				}
			}

			if len(failed) > 0 {
				return common.NewUserError(fmt.Sprintf("%d of %d files had failures: %v", len(failed), len(files), failed), nil)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bank, "bank", "", "bank name for every row (default: ofx.bank, then the account id)")
	cmd.Flags().StringVar(&category, "category", "", "category for rows the type mapping leaves alone (default: ofx.category)")
	cmd.Flags().BoolVar(&listAccounts, "accounts", false, "list the account ids in each file and exit")
	return cmd
}

func printAccounts(cmd *cobra.Command, files []string) error {
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return common.NewUserError("Could not open "+filepath.Base(path), err)
		}
		accounts, err := ofx.GetAccounts(f)
		f.Close()
		if err != nil {
			return common.NewUserError("Could not read "+filepath.Base(path), err)
		}
		printLine(cmd, fmt.Sprintf("%s: %s", filepath.Base(path), strings.Join(accounts, ", ")))
	}
	return nil
}

// runImport drives one import with a progress bar and prints its summary.
// A run with failed rows is reported as an error after the summary.
func (a *app) runImport(cmd *cobra.Command, label string, run func(service.ImportOptions) (model.ImportSummary, error)) error {
	a.interrupts.SetNote(importNote)
	defer a.interrupts.SetNote("")

	progress := cli.NewImportProgress(cmd.ErrOrStderr(), "Importing "+label)
	summary, err := run(service.ImportOptions{Progress: progress.Update})
	progress.Finish()
	if err != nil {
		return common.NewUserError("Could not import "+label, err)
	}

	printLine(cmd, cli.RenderImportSummary(summary))
	if summary.HadFailure() {
		return common.NewUserError(fmt.Sprintf("%d rows of %s failed", summary.Failed, label), nil)
	}
	return nil
}

// expandFiles resolves glob patterns, keeping plain paths that exist.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) > 0 {
			files = append(files, matches...)
			continue
		}
		if _, err := os.Stat(pattern); err == nil {
			files = append(files, pattern)
		} else {
			slog.Warn("No files found matching pattern", "pattern", pattern)
		}
	}

	if len(files) == 0 {
		return nil, common.NewUserError("No files found to import", nil)
	}
	return files, nil
}
