package errors

import (
	"errors"
	"regexp"
	"strings"
)

// Enricher enriches standard errors with actionable suggestions.
type Enricher interface {
	Enrich(err error, affectedPath string) error
}

// NewEnricher creates a new Enricher with default pattern matcher and suggestion generator.
func NewEnricher() Enricher {
	return &enricher{
		matcher:   NewPatternMatcher(),
		generator: NewSuggestionGenerator(),
	}
}

//nolint:gochecknoglobals // Compiled once, shared by every enricher
var pathExtractionPatterns = []*regexp.Regexp{
	// Depot paths: "//depot/proj/file.ma#3 - no such file(s)."
	regexp.MustCompile(`(//[^\s#]+)`),
	// Go error format: "open /path/to/file: permission denied"
	regexp.MustCompile(`\b\w+\s+([./][^\s:]+):`),
	// Windows paths
	regexp.MustCompile(`\b\w+\s+([A-Za-z]:[\\/][^\s:]+):`),
}

type enricher struct {
	matcher   PatternMatcher
	generator SuggestionGenerator
}

// Enrich takes an error and enriches it with category and actionable suggestions.
// An error that already carries an Actionable is returned unchanged. If affectedPath is
// empty a path is extracted from the message where possible.
func (e *enricher) Enrich(err error, affectedPath string) error {
	if err == nil {
		return nil
	}

	var actionable *Actionable
	if errors.As(err, &actionable) {
		return err
	}

	errMsg := err.Error()
	if affectedPath == "" {
		affectedPath = extractPath(errMsg)
	}

	category := categoryOf(err)
	if category == CategoryUnknown {
		category = e.matcher.Match(errMsg)
	}

	return &Actionable{
		Err:         err,
		Category:    category,
		Suggestions: e.generator.Generate(category, affectedPath),
		Path:        affectedPath,
	}
}

func categoryOf(err error) Category {
	var (
		resolution *ResolutionError
		notInDepot *NotInDepotError
		connection *ConnectionError
	)

	switch {
	case errors.As(err, &resolution):
		return CategoryResolution
	case errors.As(err, &notInDepot):
		return CategoryNotInDepot
	case errors.As(err, &connection):
		return CategoryConnection
	default:
		return CategoryUnknown
	}
}

func extractPath(errorMsg string) string {
	for _, pattern := range pathExtractionPatterns {
		if matches := pattern.FindStringSubmatch(errorMsg); len(matches) > 1 {
			path := strings.TrimSpace(matches[1])
			if path != "" {
				return path
			}
		}
	}

	return ""
}
