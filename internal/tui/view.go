package tui

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/joe/depot-sync/internal/model"
	"github.com/joe/depot-sync/internal/syncengine"
	"github.com/joe/depot-sync/internal/tui/shared"
)

// statusColumn is the Status column of the sync_item schema.
const statusColumn = 1

// View implements tea.Model.
func (m *Model) View() string {
	if m.session.State() == syncengine.StateDisconnected {
		return m.disconnectedView()
	}

	var b strings.Builder

	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(m.session.Progress()))
	b.WriteString("\n\n")

	switch m.mode {
	case viewFilters:
		b.WriteString(m.filtersView())
	case viewLog:
		b.WriteString(m.logView())
	case viewAssets, viewItems:
		b.WriteString(m.table.View())
		b.WriteString("\n")
		b.WriteString(m.detailView())
	}

	b.WriteString("\n")

	if m.message != "" {
		b.WriteString(m.message)
		b.WriteString("\n")
	}

	b.WriteString(m.help.View(m.keys))

	return b.String()
}

func (m *Model) disconnectedView() string {
	var b strings.Builder

	b.WriteString(shared.RenderError(shared.ErrorSymbol() + " Could not connect to the depot"))
	b.WriteString("\n\n")

	if err := m.session.ConnErr(); err != nil {
		b.WriteString(err.Error())
		b.WriteString("\n\n")
	}

	if path := m.session.LogPath(); path != "" {
		b.WriteString(shared.RenderDim("See the log at " + path))
		b.WriteString("\n")
	}

	b.WriteString(shared.RenderDim("q quit"))

	return shared.RenderBox(b.String())
}

func (m *Model) headerView() string {
	state := m.session.State()

	status := state.String()
	if state == syncengine.StateDiscovering || state == syncengine.StateSyncing {
		status = m.spinner.View() + " " + status
	}

	parts := []string{
		shared.RenderTitle("depot-sync"),
		status,
	}

	if gathered, units := m.session.Gathered(); state == syncengine.StateDiscovering && units > 0 {
		parts = append(parts, fmt.Sprintf("%d/%d entities", gathered, units))
	}

	if root := m.session.ClientRoot(); root != "" {
		parts = append(parts, shared.RenderDim(shared.TruncatePath(root, shared.MaxColumnWidth)))
	}

	if m.session.Force() {
		parts = append(parts, shared.RenderWarning("force"))
	}

	if m.session.Filters().HideSynced() {
		parts = append(parts, shared.RenderDim("hiding synced"))
	}

	if m.mode == viewItems {
		parts = append(parts, shared.RenderLabel(m.asset))
	}

	return strings.Join(parts, "  ")
}

// detailView shows the selected row's error, the failed files of a selected
// asset, or the selected file's depot path and size.
func (m *Model) detailView() string {
	row, ok := m.selected()
	if !ok {
		return ""
	}

	width := max(m.width-shared.DefaultPadding*2, shared.MaxColumnWidth) //nolint:mnd // both sides

	if msg := row.Err(); msg != "" {
		path := row.ClientFile()
		if path == "" {
			path = row.AssetName()
		}

		return shared.RenderErrors(shared.ErrorList{
			Errors: []shared.RowError{{Path: path, Message: msg}},
			Pane:   shared.PaneDetail,
			Width:  width,
		})
	}

	if failed := failedChildren(row); len(failed) > 0 {
		pane := shared.PaneSummary
		if m.session.State() == syncengine.StateSyncing {
			pane = shared.PaneSyncing
		}

		return shared.RenderErrors(shared.ErrorList{Errors: failed, Pane: pane, Width: width})
	}

	if size := row.FileSize(); size > 0 {
		status := shared.RenderStatus(m.session.Tree().Values(row)[statusColumn])
		return fmt.Sprintf("%s  %s", status, shared.RenderDim(row.DepotFile()+"  "+humanize.IBytes(uint64(size))))
	}

	return ""
}

func failedChildren(row *model.Row) []shared.RowError {
	var failed []shared.RowError

	for _, leaf := range row.Children() {
		if msg := leaf.Err(); msg != "" {
			failed = append(failed, shared.RowError{Path: leaf.ClientFile(), Message: msg})
		}
	}

	return failed
}

func (m *Model) filtersView() string {
	engine := m.session.Filters()

	var (
		b    strings.Builder
		last string
	)

	fmt.Fprintf(&b, "%s hide synced\n\n", shared.CheckboxSymbol(engine.HideSynced()))

	if len(m.filterEntries) == 0 {
		b.WriteString(shared.RenderDim("no filter values seen yet"))
		b.WriteString("\n")
	}

	for i, entry := range m.filterEntries {
		if entry.filterType != last {
			label := entry.filterType
			if engine.Active(entry.filterType) {
				label += " (active)"
			}

			b.WriteString(shared.RenderLabel(label))
			b.WriteString("\n")

			last = entry.filterType
		}

		cursor := "  "
		if i == m.filterCursor {
			cursor = shared.PromptArrow
		}

		fmt.Fprintf(&b, "%s%s %s\n", cursor, shared.CheckboxSymbol(engine.Enabled(entry.filterType, entry.value)), entry.value)
	}

	return b.String()
}

func (m *Model) logView() string {
	lines := m.session.Logs()
	if len(lines) == 0 {
		return shared.RenderDim("nothing logged yet") + "\n"
	}

	if limit := max(m.height-chrome, 1); m.height > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}

	return strings.Join(lines, "\n") + "\n"
}
