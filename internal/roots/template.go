package roots

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Exported variables.
var (
	ErrMissingField = errors.New("template field missing")
)

var fieldPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Template is a named path pattern with {Field} placeholders.
type Template struct {
	Name    string
	Pattern string
}

// Fields returns the placeholder names in order of appearance.
func (t Template) Fields() []string {
	matches := fieldPattern.FindAllStringSubmatch(t.Pattern, -1)

	fields := make([]string, 0, len(matches))
	for _, m := range matches {
		fields = append(fields, m[1])
	}

	return fields
}

// Apply renders the template. Every placeholder must have a non-empty value.
func (t Template) Apply(fields map[string]string) (string, error) {
	var missing []string

	out := fieldPattern.ReplaceAllStringFunc(t.Pattern, func(match string) string {
		key := match[1 : len(match)-1]

		value := fields[key]
		if value == "" {
			missing = append(missing, key)
		}

		return value
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("template %s: %w: %s", t.Name, ErrMissingField, strings.Join(missing, ", "))
	}

	return out, nil
}
