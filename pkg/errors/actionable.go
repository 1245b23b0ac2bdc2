// Package errors classifies sync failures and attaches actionable suggestions to them.
//
// Workers never return errors past their own boundary; every failure becomes data on an
// event or a row. The types in taxonomy.go name those failures, and the enricher turns raw
// backend output into something an artist can act on:
//
//	enricher := errors.NewEnricher()
//	err := enricher.Enrich(syncErr, "/work/assets/tree/tree.ma")
//	fmt.Println(errors.FormatSuggestions(err))
package errors

import (
	"errors"
	"strings"
)

// Category groups failures that share a remedy.
type Category string

// Exported constants.
const (
	CategoryConnection Category = "connection"
	CategoryLogin      Category = "login"
	CategoryClientView Category = "client_view"
	CategoryNotInDepot Category = "not_in_depot"
	CategoryDiskSpace  Category = "disk_space"
	CategoryPermission Category = "permission"
	CategoryResolution Category = "resolution"
	CategoryUnknown    Category = "unknown"
)

// Actionable is a failure with the steps that usually fix it. It wraps the
// original error, so errors.Is and errors.As still see through it.
type Actionable struct {
	Err         error
	Category    Category
	Suggestions []string
	// Path is the file or depot path the failure concerns, if known.
	Path string
}

func (a *Actionable) Error() string { return a.Err.Error() }

func (a *Actionable) Unwrap() error { return a.Err }

// FormatSuggestions renders the suggestions of an Actionable anywhere in err's
// chain as a bulleted list. Other errors render as "".
func FormatSuggestions(err error) string {
	var actionable *Actionable
	if !errors.As(err, &actionable) || len(actionable.Suggestions) == 0 {
		return ""
	}

	lines := make([]string, len(actionable.Suggestions))
	for i, suggestion := range actionable.Suggestions {
		lines[i] = "  • " + suggestion
	}

	return strings.Join(lines, "\n")
}
