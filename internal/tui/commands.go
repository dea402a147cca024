package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/coffer/internal/model"
)

// loadPage fetches the page starting at cursor.
func (m Model) loadPage(cursor model.Cursor) tea.Cmd {
	ctx, pager, size := m.ctx, m.pager, m.pageSize
	return func() tea.Msg {
		page, err := pager.ListTransactions(ctx, size, cursor)
		if err != nil {
			return pageLoadedMsg{err: err}
		}
		total, err := pager.CountTransactions(ctx)
		if err != nil {
			return pageLoadedMsg{err: err}
		}
		return pageLoadedMsg{page: page, total: total}
	}
}
