package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Veraticus/coffer/internal/model"
	"github.com/Veraticus/coffer/internal/storage"
)

// DisplayDateLayout renders dates the way they are imported.
const DisplayDateLayout = "02/01/2006"

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(SubtleStyle).
		BorderColumn(false).
		BorderLeft(false).
		BorderRight(false).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableCellStyle
		})
}

// RenderTransactions renders one page of transactions.
func RenderTransactions(page []model.Transaction) string {
	if len(page) == 0 {
		return SubtleStyle.Render("No transactions.")
	}

	t := newTable("ID", "Date", "Name", "Category", "Amount", "Types", "Bank")
	for _, txn := range page {
		t.Row(
			strconv.FormatInt(txn.ID, 10),
			txn.Date.Format(DisplayDateLayout),
			txn.Name,
			txn.Category,
			FormatAmount(txn.Amount),
			strings.Join(txn.TransactionTypes, " / "),
			txn.Bank,
		)
	}
	return t.String()
}

// RenderTransaction renders a single transaction as a boxed card.
func RenderTransaction(txn *model.Transaction) string {
	lines := []string{
		fmt.Sprintf("Date:     %s", txn.Date.Format(DisplayDateLayout)),
		fmt.Sprintf("Name:     %s", txn.Name),
		fmt.Sprintf("Category: %s", txn.Category),
		fmt.Sprintf("Amount:   %s", FormatAmount(txn.Amount)),
		fmt.Sprintf("Types:    %s", strings.Join(txn.TransactionTypes, " / ")),
		fmt.Sprintf("Bank:     %s", txn.Bank),
	}
	return RenderBox(fmt.Sprintf("Transaction #%d", txn.ID), strings.Join(lines, "\n"))
}

// RenderValues renders a reference list, one value per line.
func RenderValues(kind model.LookupKind, values []string) string {
	if len(values) == 0 {
		return SubtleStyle.Render(fmt.Sprintf("No %s values.", kind))
	}
	t := newTable(kind.String())
	for _, v := range values {
		t.Row(v)
	}
	return t.String()
}

// RenderCheckpoints lists checkpoints, newest first.
func RenderCheckpoints(list []storage.CheckpointInfo) string {
	if len(list) == 0 {
		return SubtleStyle.Render("No checkpoints.")
	}

	t := newTable("Tag", "Created", "Transactions", "Size", "Kind", "Description")
	for _, cp := range list {
		kind := "manual"
		if cp.IsAuto {
			kind = "auto"
		}
		t.Row(
			cp.ID,
			cp.CreatedAt.Local().Format("2006-01-02 15:04"),
			strconv.Itoa(cp.Transactions),
			formatSize(cp.FileSize),
			kind,
			cp.Description,
		)
	}
	return t.String()
}

// RenderImportSummary reports an import run: totals first, then every
// failed row and every warning.
func RenderImportSummary(summary model.ImportSummary) string {
	var b strings.Builder

	total := FormatSuccess(fmt.Sprintf("Imported %d of %d rows", summary.Imported, len(summary.Outcomes)))
	if summary.HadFailure() {
		total = FormatWarning(fmt.Sprintf("Imported %d of %d rows, %d failed", summary.Imported, len(summary.Outcomes), summary.Failed))
	}
	b.WriteString(total)
	b.WriteString("\n")
	b.WriteString(SubtleStyle.Render("run " + summary.RunID))
	b.WriteString("\n")

	for _, o := range summary.Outcomes {
		if !o.OK() {
			b.WriteString(FormatError(fmt.Sprintf("row %d: %v", o.Line, o.Err)))
			b.WriteString("\n")
		}
		for _, w := range o.Warnings {
			b.WriteString(FormatInfo(fmt.Sprintf("row %d: %s", o.Line, w)))
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
