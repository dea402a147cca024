package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/coffer/internal/cli"
	"github.com/Veraticus/coffer/internal/model"
)

// detailHeight is the number of lines the detail pane takes.
const detailHeight = 4

// columns sizes the table for a terminal width. The name column absorbs
// whatever is left.
func columns(width int) []table.Column {
	fixed := []table.Column{
		{Title: "ID", Width: 6},
		{Title: "Date", Width: 10},
		{Title: "Name", Width: 0},
		{Title: "Category", Width: 14},
		{Title: "Amount", Width: 12},
		{Title: "Bank", Width: 12},
	}

	used := 0
	for _, c := range fixed {
		used += c.Width + 2
	}
	fixed[2].Width = max(width-used-2, 12)
	return fixed
}

func rows(page []model.Transaction) []table.Row {
	out := make([]table.Row, 0, len(page))
	for _, txn := range page {
		out = append(out, table.Row{
			strconv.FormatInt(txn.ID, 10),
			txn.Date.Format(cli.DisplayDateLayout),
			txn.Name,
			txn.Category,
			txn.Amount.StringFixed(2),
			txn.Bank,
		})
	}
	return out
}

// View renders the browser.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	sections := []string{cli.TitleStyle.Render(cli.CofferIcon + " Transactions")}

	switch {
	case m.loading && len(m.page) == 0:
		sections = append(sections, m.spinner.View()+" Loading…")
	case len(m.page) == 0 && m.err == nil:
		sections = append(sections, cli.SubtleStyle.Render("No transactions yet. Add one with `coffer tx add` or import a spreadsheet."))
	default:
		sections = append(sections, m.table.View())
	}

	if m.detail {
		sections = append(sections, m.renderDetail())
	}

	sections = append(sections, m.renderStatus(), m.help.View(m.keymap))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderStatus() string {
	if m.err != nil {
		return cli.FormatError(m.err.Error())
	}

	status := fmt.Sprintf("Page %d · %d rows · %d transactions", m.PageNumber(), len(m.page), m.total)
	if m.atEnd {
		status += " · no older transactions"
	}
	if m.loading {
		status = m.spinner.View() + " " + status
	}
	return cli.SubtleStyle.Render(status)
}

func (m Model) renderDetail() string {
	txn, ok := m.Selected()
	if !ok {
		return cli.SubtleStyle.Render("Nothing selected.")
	}

	lines := []string{
		fmt.Sprintf("#%d  %s  %s", txn.ID, txn.Date.Format(cli.DisplayDateLayout), txn.Name),
		fmt.Sprintf("%s · %s", txn.Category, txn.Bank),
		fmt.Sprintf("Amount %s", cli.FormatAmount(txn.Amount)),
		fmt.Sprintf("Types  %s", strings.Join(txn.TransactionTypes, " / ")),
	}
	return cli.InfoStyle.Render(strings.Join(lines, "\n"))
}
