// Package tui is the terminal front-end. Its update loop is the single consumer
// of the session's events.
package tui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joe/depot-sync/internal/model"
	"github.com/joe/depot-sync/internal/prefs"
	"github.com/joe/depot-sync/internal/syncengine"
	"github.com/joe/depot-sync/internal/tui/shared"
)

type viewMode int

const (
	viewAssets viewMode = iota
	viewItems
	viewFilters
	viewLog
)

// chrome is the number of lines around the table: header, progress, detail, message, help.
const chrome = 9

// rescanMsg starts discovery from the update loop.
type rescanMsg struct{}

type filterEntry struct {
	filterType string
	value      string
}

// Model is the bubbletea model.
type Model struct {
	session *syncengine.Session
	emitter *syncengine.ChannelEmitter
	prefs   *prefs.Store

	keys    keyMap
	help    help.Model
	table   table.Model
	bar     progress.Model
	spinner spinner.Model

	mode          viewMode
	asset         string
	rowIDs        []string
	filterEntries []filterEntry
	filterCursor  int
	dirty         bool
	message       string
	width         int
	height        int
}

// New creates the model. The session must already have tried to connect.
func New(session *syncengine.Session, emitter *syncengine.ChannelEmitter, store *prefs.Store) *Model {
	tbl := table.New(table.WithFocused(true))
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(shared.AccentColor()).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.Foreground(shared.HighlightColor()).Bold(true)
	tbl.SetStyles(styles)

	m := &Model{
		session: session,
		emitter: emitter,
		prefs:   store,
		keys:    defaultKeys(),
		help:    help.New(),
		table:   tbl,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(shared.ProgressBarWidth)),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}

	if size := store.Snapshot().WindowSize; len(size) == 2 { //nolint:mnd // width, height
		m.resize(size[0], size[1])
	}

	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		shared.ListenCmd(m.emitter),
		shared.TickCmd(shared.RefreshInterval),
		m.spinner.Tick,
	}

	if m.session.State() != syncengine.StateDisconnected {
		cmds = append(cmds, func() tea.Msg { return rescanMsg{} })
	}

	return tea.Batch(cmds...)
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.table.SetHeight(max(3, height-chrome)) //nolint:mnd // header plus two rows
	m.table.SetWidth(width)
	m.bar.Width = min(max(width-shared.DefaultPadding*4, shared.ProgressBarWidth/2), shared.MaxProgressBarWidth) //nolint:mnd // side padding
	m.help.Width = width
}

// refresh rebuilds the table for the current mode from the tree.
func (m *Model) refresh() {
	m.dirty = false

	tree := m.session.Tree()

	var (
		titles []string
		rows   []*model.Row
	)

	switch m.mode {
	case viewItems:
		titles = tree.ItemSchema().Titles()

		if asset, ok := tree.Asset(m.asset); ok {
			for _, leaf := range asset.Children() {
				if leaf.Visible() {
					rows = append(rows, leaf)
				}
			}
		}
	case viewFilters:
		m.refreshFilters()
		return
	case viewLog:
		return
	default:
		titles = tree.AssetSchema().Titles()

		for _, root := range tree.SortedRoots(0, false) {
			if root.Visible() {
				rows = append(rows, root)
			}
		}
	}

	values := make([]table.Row, 0, len(rows))
	m.rowIDs = m.rowIDs[:0]

	for _, row := range rows {
		values = append(values, tree.Values(row))
		m.rowIDs = append(m.rowIDs, row.ID())
	}

	cursor := m.table.Cursor()

	// Rows must never be wider than the columns while columns change.
	m.table.SetRows(nil)
	m.table.SetColumns(columns(titles, values))
	m.table.SetRows(values)
	m.table.SetCursor(min(max(cursor, 0), max(len(values)-1, 0)))
}

func (m *Model) refreshFilters() {
	engine := m.session.Filters()
	m.filterEntries = m.filterEntries[:0]

	for _, filterType := range engine.Types() {
		for _, value := range engine.Values(filterType) {
			m.filterEntries = append(m.filterEntries, filterEntry{filterType: filterType, value: value})
		}
	}

	m.filterCursor = min(m.filterCursor, max(len(m.filterEntries)-1, 0))
}

func columns(titles []string, rows []table.Row) []table.Column {
	cols := make([]table.Column, len(titles))

	for i, title := range titles {
		width := lipgloss.Width(title)
		for _, row := range rows {
			if i < len(row) {
				width = max(width, lipgloss.Width(row[i]))
			}
		}

		cols[i] = table.Column{Title: title, Width: min(width, shared.MaxColumnWidth)}
	}

	return cols
}

// selected returns the row under the table cursor.
func (m *Model) selected() (*model.Row, bool) {
	cursor := m.table.Cursor()
	if cursor < 0 || cursor >= len(m.rowIDs) {
		return nil, false
	}

	return m.session.Tree().Row(m.rowIDs[cursor])
}
