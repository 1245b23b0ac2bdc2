package errors_test

import (
	"testing"

	"github.com/joe/depot-sync/pkg/errors"
)

func TestPatternMatcher_Match(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		errorMsg string
		expected errors.Category
	}{
		{"expired ticket", "Your session has expired, please login again.", errors.CategoryLogin},
		{"bad password", "Perforce password (P4PASSWD) invalid or unset.", errors.CategoryLogin},
		{"server down", "Connect to server failed; check $P4PORT.", errors.CategoryConnection},
		{"outside view", "//depot/proj/a.ma - file(s) not in client view.", errors.CategoryClientView},
		{"no files", "//depot/proj/... - no such file(s).", errors.CategoryNotInDepot},
		{"disk", "write /work/a.ma: no space left on device", errors.CategoryDiskSpace},
		{"clobber", "Can't clobber writable file /work/a.ma", errors.CategoryPermission},
		{"uppercase", "PERMISSION DENIED", errors.CategoryPermission},
		{"ambiguous", "multiple root paths for Asset 3", errors.CategoryResolution},
		{"unknown", "something odd happened", errors.CategoryUnknown},
	}

	matcher := errors.NewPatternMatcher()

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			category := matcher.Match(testCase.errorMsg)
			if category != testCase.expected {
				t.Errorf("expected category %q, got %q for error: %q",
					testCase.expected, category, testCase.errorMsg)
			}
		})
	}
}

func TestPatternMatcher_FirstCategoryWins(t *testing.T) {
	t.Parallel()

	// Login patterns are checked before connection patterns.
	msg := "Connect to server failed; Perforce password (P4PASSWD) invalid or unset."
	if got := errors.NewPatternMatcher().Match(msg); got != errors.CategoryLogin {
		t.Errorf("expected %q, got %q", errors.CategoryLogin, got)
	}
}
