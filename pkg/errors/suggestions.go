package errors

import "fmt"

// SuggestionGenerator generates actionable suggestions based on error category.
type SuggestionGenerator interface {
	Generate(category Category, affectedPath string) []string
}

// NewSuggestionGenerator creates a new SuggestionGenerator.
func NewSuggestionGenerator() SuggestionGenerator {
	return &suggestionGenerator{}
}

type suggestionGenerator struct{}

// Generate returns actionable suggestions based on the error category and affected path.
func (g *suggestionGenerator) Generate(category Category, affectedPath string) []string {
	switch category {
	case CategoryLogin:
		return []string{
			"Log in again with 'p4 login'",
			"Check that P4USER matches your workspace owner",
		}
	case CategoryConnection:
		return []string{
			"Check that the server in P4PORT is reachable",
			"Verify VPN or network connectivity to the depot server",
			"Run 'p4 info' to confirm the connection settings",
		}
	case CategoryClientView:
		return g.clientViewSuggestions(affectedPath)
	case CategoryNotInDepot:
		return g.notInDepotSuggestions(affectedPath)
	case CategoryDiskSpace:
		return []string{
			"Free up space on the workspace drive",
			"Hide large file types with the extension filter before syncing",
		}
	case CategoryPermission:
		return g.permissionSuggestions(affectedPath)
	case CategoryResolution:
		return []string{
			"Check that the entity has exactly one filesystem location",
			"Verify the root template for this entity type in the project config",
		}
	case CategoryUnknown:
		return g.unknownSuggestions(affectedPath)
	default:
		return g.unknownSuggestions(affectedPath)
	}
}

func (g *suggestionGenerator) clientViewSuggestions(path string) []string {
	suggestions := []string{"Check that your workspace (P4CLIENT) maps this part of the depot"}
	if path != "" {
		suggestions = append(suggestions, fmt.Sprintf("Run 'p4 where %s' to see the mapping", path))
	}

	return suggestions
}

func (g *suggestionGenerator) notInDepotSuggestions(path string) []string {
	suggestions := []string{"Nothing has been submitted for this entity yet"}
	if path != "" {
		suggestions = append(suggestions, fmt.Sprintf("Run 'p4 files %s' to confirm", path))
	}

	return suggestions
}

func (g *suggestionGenerator) permissionSuggestions(path string) []string {
	suggestions := []string{"Ensure the workspace files are not opened or made writable locally"}
	if path != "" {
		suggestions = append(suggestions, fmt.Sprintf("Check permissions with 'ls -la %s'", path))
	}

	return append(suggestions, "Use force sync to overwrite writable files")
}

func (g *suggestionGenerator) unknownSuggestions(path string) []string {
	suggestions := []string{
		"Check the log file for the full backend output",
	}
	if path != "" {
		suggestions = append(suggestions, "Verify the path is accessible: "+path)
	}

	return suggestions
}
