package errors

import "strings"

// PatternMatcher matches error messages to categories using string patterns.
type PatternMatcher interface {
	Match(errorMsg string) Category
}

// NewPatternMatcher creates a new PatternMatcher with patterns for backend and filesystem output.
// Categories are tried in order; the first one with a matching pattern wins.
func NewPatternMatcher() PatternMatcher {
	return &patternMatcher{
		patterns: []categoryPatterns{
			{CategoryLogin, []string{
				"password (p4passwd) invalid",
				"your session has expired",
				"perforce password",
				"please login again",
			}},
			{CategoryConnection, []string{
				"connect to server failed",
				"tcp connect to",
				"connection refused",
				"could not connect",
			}},
			{CategoryClientView, []string{
				"not in client view",
				"must refer to client",
				"client unknown",
				"not under client's root",
			}},
			{CategoryNotInDepot, []string{
				"no such file(s)",
				"nothing in depot resolves",
				"not in depot",
			}},
			{CategoryDiskSpace, []string{
				"no space left on device",
				"disk full",
				"quota exceeded",
			}},
			{CategoryPermission, []string{
				"permission denied",
				"access denied",
				"operation not permitted",
				"can't clobber writable file",
			}},
			{CategoryResolution, []string{
				"no template specified",
				"multiple root paths",
				"no root path",
			}},
		},
	}
}

type categoryPatterns struct {
	category Category
	patterns []string
}

type patternMatcher struct {
	patterns []categoryPatterns
}

// Match returns the error category based on pattern matching.
func (m *patternMatcher) Match(errorMsg string) Category {
	lowerMsg := strings.ToLower(errorMsg)

	for _, entry := range m.patterns {
		for _, pattern := range entry.patterns {
			if strings.Contains(lowerMsg, pattern) {
				return entry.category
			}
		}
	}

	return CategoryUnknown
}
