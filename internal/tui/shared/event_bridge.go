package shared

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/joe/depot-sync/internal/syncengine"
)

// RefreshInterval is how often the table is rebuilt while events arrive.
const RefreshInterval = 2 * time.Second

// EngineEventMsg wraps a syncengine.Event for use as a tea.Msg.
type EngineEventMsg struct {
	Event syncengine.Event
}

// EmitterClosedMsg is delivered once the emitter has been closed.
type EmitterClosedMsg struct{}

// TickMsg drives the timed table refresh.
type TickMsg time.Time

// ListenCmd returns a tea.Cmd that blocks until an event is received.
// Return it again after handling each EngineEventMsg to keep listening; events
// are delivered one at a time so the update loop is their only consumer.
func ListenCmd(emitter *syncengine.ChannelEmitter) tea.Cmd {
	return func() tea.Msg {
		select {
		case event := <-emitter.Events():
			return EngineEventMsg{Event: event}
		case <-emitter.Done():
			return EmitterClosedMsg{}
		}
	}
}

// TickCmd schedules the next TickMsg.
func TickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
