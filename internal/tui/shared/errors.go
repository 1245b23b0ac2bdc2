package shared

import (
	"errors"
	"fmt"
	"strings"

	syncerrors "github.com/joe/depot-sync/pkg/errors"
)

// RowError is the error recorded on one row of the tree.
type RowError struct {
	Path    string
	Message string
}

// ErrorPane is where an error list is drawn. Each pane has its own limit.
type ErrorPane int

// Error panes.
const (
	// PaneSyncing sits under the table while workers run.
	PaneSyncing ErrorPane = iota
	// PaneSummary lists failures once a sync finished.
	PaneSummary
	// PaneDetail describes the selected row.
	PaneDetail
)

// Error pane limits.
const (
	ErrorLimitSyncing = 3
	ErrorLimitSummary = 10
	ErrorLimitDetail  = 5
)

func (p ErrorPane) limit() int {
	switch p {
	case PaneSyncing:
		return ErrorLimitSyncing
	case PaneSummary:
		return ErrorLimitSummary
	default:
		return ErrorLimitDetail
	}
}

func (p ErrorPane) overflow(remaining int) string {
	if p == PaneSyncing {
		return fmt.Sprintf("  ... and %d more (see the log)", remaining)
	}

	return fmt.Sprintf("... and %d more error(s)", remaining)
}

// ErrorList is a set of row errors to draw in one pane.
type ErrorList struct {
	Errors []RowError
	Pane   ErrorPane
	// Width bounds paths and messages. Zero leaves them whole.
	Width int
}

// RenderErrors draws each error with its path and the suggestions that usually
// fix it, up to the pane's limit.
func RenderErrors(list ErrorList) string {
	if len(list.Errors) == 0 {
		return ""
	}

	var builder strings.Builder

	enricher := syncerrors.NewEnricher()
	limit := list.Pane.limit()

	for i, rowErr := range list.Errors {
		if i == limit {
			builder.WriteString(list.Pane.overflow(len(list.Errors) - limit))
			builder.WriteString("\n")

			break
		}

		// The row path is already on the first line; suggestions only name
		// paths found in the message itself.
		enriched := enricher.Enrich(errors.New(rowErr.Message), "") //nolint:err113 // Rebuilt from the row

		path, message := rowErr.Path, enriched.Error()
		if list.Width > 0 {
			path = TruncatePath(path, list.Width)
			message = truncateEnd(message, list.Width)
		}

		fmt.Fprintf(&builder, "  %s %s\n    %s\n", ErrorSymbol(), pathErrorStyle().Render(path), message)

		suggestions := syncerrors.FormatSuggestions(enriched)
		if suggestions == "" {
			continue
		}

		for line := range strings.SplitSeq(suggestions, "\n") {
			if list.Width > 0 {
				line = truncateEnd(line, list.Width)
			}

			builder.WriteString("    ")
			builder.WriteString(line)
			builder.WriteString("\n")
		}
	}

	return builder.String()
}

func truncateEnd(text string, width int) string {
	runes := []rune(text)
	if len(runes) <= width {
		return text
	}

	if width <= ellipsisLength {
		return string(runes[:width])
	}

	return string(runes[:width-ellipsisLength]) + "..."
}
