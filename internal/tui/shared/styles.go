package shared

import (
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/joe/depot-sync/internal/schema"
)

// Exported constants.
const (
	// DefaultPadding is the default padding for UI elements
	DefaultPadding = 2
	// ProgressBarWidth is the default width of progress bars
	ProgressBarWidth = 40
	// MaxProgressBarWidth is the maximum width for progress bars
	MaxProgressBarWidth = 100
	// MaxColumnWidth caps a table column so one long path cannot take the screen.
	MaxColumnWidth = 48
	// PromptArrow is the arrow character used in prompts
	PromptArrow = "▶ "
)

//nolint:gochecknoglobals // Read once from the environment at startup
var unicodeDisabled = os.Getenv("TERM") == "dumb" || os.Getenv("DEPOTSYNC_ASCII") != ""

// ErrorSymbol returns a cross with ASCII fallback
func ErrorSymbol() string {
	if unicodeDisabled {
		return "[x]"
	}

	return "✗"
}

// SuccessSymbol returns a check mark with ASCII fallback
func SuccessSymbol() string {
	if unicodeDisabled {
		return "[v]"
	}

	return "✓"
}

// CheckboxSymbol renders a filter value's enabled state.
func CheckboxSymbol(enabled bool) string {
	if enabled {
		return "[x]"
	}

	return "[ ]"
}

// AccentColor is the border color of boxes and the table.
func AccentColor() lipgloss.Color { return lipgloss.Color(accentColorCode) }

// HighlightColor marks the selected row and labels.
func HighlightColor() lipgloss.Color { return lipgloss.Color(highlightColorCode) }

// RenderBox renders content in a box with consistent styling
func RenderBox(content string) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(AccentColor()).
		Padding(1, DefaultPadding).
		Render(content)
}

// RenderDim renders dimmed text with consistent styling
func RenderDim(text string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(dimColorCode)).Render(text)
}

// RenderError renders an error message with consistent styling
func RenderError(text string) string {
	return errorStyle().Render(text)
}

// RenderLabel renders a label with consistent styling
func RenderLabel(text string) string {
	return lipgloss.NewStyle().Foreground(HighlightColor()).Bold(true).Render(text)
}

// RenderStatus colors a status cell by what it says.
func RenderStatus(status string) string {
	switch status {
	case schema.StatusSynced, schema.StatusUpToDate:
		return successStyle().Render(status)
	case schema.StatusSyncing:
		return warningStyle().Render(status)
	case schema.StatusError, schema.StatusNotInDepot:
		return errorStyle().Render(status)
	default:
		return status
	}
}

// RenderSuccess renders a success message with consistent styling
func RenderSuccess(text string) string {
	return successStyle().Render(text)
}

// RenderTitle renders a title with consistent styling
func RenderTitle(text string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(primaryColorCode)).Render(text)
}

// RenderWarning renders a warning message with consistent styling
func RenderWarning(text string) string {
	return warningStyle().Render(text)
}

// TruncatePath shortens a path from the left to fit width.
func TruncatePath(path string, width int) string {
	runes := []rune(path)
	if width <= ellipsisLength || len(runes) <= width {
		return path
	}

	return "..." + string(runes[len(runes)-(width-ellipsisLength):])
}

func errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(errorColorCode)).Bold(true)
}

func pathErrorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(errorColorCode))
}

func successStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(successColorCode)).Bold(true)
}

func warningStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(warningColorCode)).Bold(true)
}

// unexported constants.
const (
	ellipsisLength = len("...")

	accentColorCode    = "62"  // Blue
	dimColorCode       = "240" // Dark gray
	errorColorCode     = "196" // Red
	highlightColorCode = "86"  // Cyan
	// Primary colors
	primaryColorCode = "205" // Pink/purple
	successColorCode = "42"  // Green
	warningColorCode = "226"
)
