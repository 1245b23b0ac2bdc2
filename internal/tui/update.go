package tui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/joe/depot-sync/internal/prefs"
	"github.com/joe/depot-sync/internal/syncengine"
	"github.com/joe/depot-sync/internal/tui/shared"
)

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case rescanMsg:
		m.rescan()
		return m, nil
	case shared.EngineEventMsg:
		return m, m.handleEvent(msg.Event)
	case shared.EmitterClosedMsg:
		return m, nil
	case shared.TickMsg:
		if m.dirty {
			m.refresh()
		}

		return m, shared.TickCmd(shared.RefreshInterval)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)

		return m, cmd
	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *Model) handleEvent(event syncengine.Event) tea.Cmd {
	if !m.session.Handle(event) {
		return shared.ListenCmd(m.emitter)
	}

	m.dirty = true

	switch ev := event.(type) {
	case syncengine.DiscoveryComplete:
		m.message = fmt.Sprintf("found %d files", len(m.session.Tree().Leaves()))
		m.refresh()
	case syncengine.DiscoveryFailed:
		m.message = shared.RenderError("discovery failed: " + ev.Err.Error())
	case syncengine.ExecutionComplete:
		if ev.Failed == 0 {
			m.message = shared.RenderSuccess(fmt.Sprintf("%s synced %d files", shared.SuccessSymbol(), ev.Synced))
		} else {
			m.message = shared.RenderError(fmt.Sprintf("synced %d, failed %d", ev.Synced, ev.Failed))
		}

		m.refresh()
	}

	return shared.ListenCmd(m.emitter)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, m.quit()
	}

	if m.session.State() == syncengine.StateDisconnected {
		return m, nil
	}

	if m.mode == viewFilters {
		m.handleFilterKey(msg)
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Rescan):
		m.rescan()
	case key.Matches(msg, m.keys.Go):
		m.goSync()
	case key.Matches(msg, m.keys.Force):
		m.session.SetForce(!m.session.Force())
		m.message = fmt.Sprintf("force %s, rescan to apply", onOff(m.session.Force()))
	case key.Matches(msg, m.keys.HideSynced):
		m.setErr(m.session.SetHideSynced(!m.session.Filters().HideSynced()))
		m.refresh()
	case key.Matches(msg, m.keys.Filters):
		m.mode = viewFilters
		m.refresh()
	case key.Matches(msg, m.keys.Log):
		m.mode = viewLog
	case key.Matches(msg, m.keys.Open) && m.mode == viewAssets:
		if row, ok := m.selected(); ok {
			m.mode = viewItems
			m.asset = row.AssetName()
			m.table.SetCursor(0)
			m.refresh()
		}
	case key.Matches(msg, m.keys.Back) && m.mode != viewAssets:
		m.mode = viewAssets
		m.refresh()
	default:
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)

		return m, cmd
	}

	return m, nil
}

func (m *Model) handleFilterKey(msg tea.KeyMsg) {
	switch {
	case key.Matches(msg, m.keys.Back), key.Matches(msg, m.keys.Filters):
		m.mode = viewAssets
		m.refresh()
	case key.Matches(msg, m.keys.Up):
		m.filterCursor = max(m.filterCursor-1, 0)
	case key.Matches(msg, m.keys.Down):
		m.filterCursor = min(m.filterCursor+1, max(len(m.filterEntries)-1, 0))
	case key.Matches(msg, m.keys.Toggle):
		if m.filterCursor < len(m.filterEntries) {
			entry := m.filterEntries[m.filterCursor]
			enabled := m.session.Filters().Enabled(entry.filterType, entry.value)
			m.setErr(m.session.ToggleFilter(entry.filterType, entry.value, !enabled))
		}
	case key.Matches(msg, m.keys.Reset):
		m.setErr(m.session.ResetFilters())
		m.refreshFilters()
	case key.Matches(msg, m.keys.HideSynced):
		m.setErr(m.session.SetHideSynced(!m.session.Filters().HideSynced()))
	}
}

func (m *Model) rescan() {
	if m.session.State() == syncengine.StateDisconnected {
		return
	}

	gen := m.session.Rescan()
	m.mode = viewAssets
	m.message = fmt.Sprintf("scanning (generation %d)", gen)
	m.refresh()
}

func (m *Model) goSync() {
	n, err := m.session.Go()

	switch {
	case errors.Is(err, syncengine.ErrBusy):
		m.message = shared.RenderWarning(err.Error())
	case errors.Is(err, syncengine.ErrNothingToSync):
		m.message = shared.RenderWarning("nothing to sync, press f to force")
	case err != nil:
		m.setErr(err)
	default:
		m.message = fmt.Sprintf("syncing %d files", n)
	}
}

func (m *Model) quit() tea.Cmd {
	if m.width > 0 && m.height > 0 {
		m.setErr(m.prefs.Update(func(p *prefs.Preferences) {
			p.WindowSize = []int{m.width, m.height}
		}))
	}

	m.session.Close()

	return tea.Quit
}

func (m *Model) setErr(err error) {
	if err != nil {
		m.message = shared.RenderError(err.Error())
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}

	return "off"
}
