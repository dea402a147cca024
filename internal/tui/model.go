// Package tui is the interactive transaction browser.
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/coffer/internal/cli"
	"github.com/Veraticus/coffer/internal/model"
)

// Pager is the read side the browser needs.
type Pager interface {
	ListTransactions(ctx context.Context, pageSize int, cursor model.Cursor) ([]model.Transaction, error)
	CountTransactions(ctx context.Context) (int, error)
}

// chromeHeight is the number of lines outside the table.
const chromeHeight = 7

// Model browses transactions newest first, one keyset page at a time. Newer
// pages are revisited through the stack of cursors that produced them.
type Model struct {
	ctx      context.Context
	pager    Pager
	err      error
	keymap   KeyMap
	help     help.Model
	spinner  spinner.Model
	table    table.Model
	page     []model.Transaction
	cursors  []model.Cursor
	pageSize int
	total    int
	width    int
	height   int
	atEnd    bool
	loading  bool
	detail   bool
	quitting bool
}

// New creates a browser showing pageSize rows per page.
func New(ctx context.Context, pager Pager, pageSize int) Model {
	keymap := DefaultKeyMap()

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(cli.SubtleColor).
		BorderBottom(true).
		Bold(true).
		Foreground(cli.PrimaryColor)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("#1A1A1A")).
		Background(cli.PrimaryColor)

	t := table.New(
		table.WithColumns(columns(80)),
		table.WithFocused(true),
		table.WithHeight(pageSize),
		table.WithKeyMap(keymap.tableKeyMap()),
	)
	t.SetStyles(styles)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(cli.PrimaryColor)

	return Model{
		ctx:      ctx,
		pager:    pager,
		keymap:   keymap,
		help:     help.New(),
		spinner:  s,
		table:    t,
		cursors:  []model.Cursor{model.FirstPage()},
		pageSize: pageSize,
		loading:  true,
	}
}

// Init loads the newest page.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadPage(model.FirstPage()), m.spinner.Tick)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.handleResize()
		return m, nil

	case pageLoadedMsg:
		m.handlePage(msg)
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.ForceQuit), key.Matches(msg, m.keymap.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keymap.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.handleResize()
		return m, nil

	case key.Matches(msg, m.keymap.Detail):
		m.detail = !m.detail
		m.handleResize()
		return m, nil
	}

	if m.loading {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keymap.NextPage):
		next, ok := model.NextCursor(m.page)
		if !ok || m.atEnd || len(m.page) < m.pageSize {
			return m, nil
		}
		m.cursors = append(m.cursors, next)
		return m.startLoad()

	case key.Matches(msg, m.keymap.PrevPage):
		if len(m.cursors) == 1 {
			return m, nil
		}
		m.cursors = m.cursors[:len(m.cursors)-1]
		m.atEnd = false
		return m.startLoad()

	case key.Matches(msg, m.keymap.FirstPage):
		m.cursors = m.cursors[:1]
		m.atEnd = false
		return m.startLoad()

	case key.Matches(msg, m.keymap.Refresh):
		return m.startLoad()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) startLoad() (tea.Model, tea.Cmd) {
	m.loading = true
	m.err = nil
	return m, tea.Batch(m.loadPage(m.cursors[len(m.cursors)-1]), m.spinner.Tick)
}

// handlePage installs a loaded page. An empty page past the first means the
// previous page was the last one, so that page stays on screen.
func (m *Model) handlePage(msg pageLoadedMsg) {
	m.loading = false
	if msg.err != nil {
		m.err = msg.err
		return
	}
	m.total = msg.total

	if len(msg.page) == 0 && len(m.cursors) > 1 {
		m.cursors = m.cursors[:len(m.cursors)-1]
		m.atEnd = true
		return
	}

	m.page = msg.page
	m.table.SetRows(rows(msg.page))
	m.table.SetCursor(0)
}

func (m *Model) handleResize() {
	if m.width > 0 {
		m.table.SetColumns(columns(m.width))
		m.table.SetWidth(m.width)
	}
	if m.height > 0 {
		h := m.height - chromeHeight
		if m.help.ShowAll {
			h -= 4
		}
		if m.detail {
			h -= detailHeight
		}
		m.table.SetHeight(max(h, 3))
	}
}

// Selected returns the highlighted transaction, if any.
func (m Model) Selected() (model.Transaction, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.page) {
		return model.Transaction{}, false
	}
	return m.page[i], true
}

// PageNumber returns the 1-based number of the page on screen.
func (m Model) PageNumber() int {
	return len(m.cursors)
}
