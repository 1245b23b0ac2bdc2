package filters

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// PathFilter decides whether a leaf's workspace path is shown.
type PathFilter interface {
	ShouldInclude(path string) bool
}

// GlobFilter implements PathFilter using a doublestar pattern.
type GlobFilter struct {
	normalizedPattern string
	isEmpty           bool
}

// NewGlobFilter creates a GlobFilter. An empty pattern matches every path.
func NewGlobFilter(pattern string) *GlobFilter {
	return &GlobFilter{
		normalizedPattern: strings.ToLower(filepathToSlash(pattern)),
		isEmpty:           pattern == "",
	}
}

// Valid reports whether the pattern parses.
func (f *GlobFilter) Valid() bool {
	return f.isEmpty || doublestar.ValidatePattern(f.normalizedPattern)
}

// ShouldInclude matches case-insensitively. Invalid patterns match nothing.
func (f *GlobFilter) ShouldInclude(path string) bool {
	if f.isEmpty {
		return true
	}

	matched, err := doublestar.Match(f.normalizedPattern, strings.ToLower(filepathToSlash(path)))
	if err != nil {
		return false
	}

	return matched
}

// Workspace paths from a Windows client use backslashes. A leading slash is
// dropped so "**" patterns match absolute paths.
func filepathToSlash(path string) string {
	return strings.TrimPrefix(strings.ReplaceAll(path, `\`, "/"), "/")
}
