package testutils

import (
	"regexp"
	"strings"
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
)

var spaces = regexp.MustCompile(`\s+`)

// NormalizeSQL collapses whitespace so that statements built on several
// lines compare equal to their one-line form.
func NormalizeSQL(sql string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(sql, " "))
}

// AssertSQL fails the test with a character diff when the statements differ
// after whitespace normalization.
func AssertSQL(t testing.TB, expected, actual string) bool {
	t.Helper()
	expected, actual = NormalizeSQL(expected), NormalizeSQL(actual)
	if expected == actual {
		return true
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(expected, actual, false)
	t.Errorf("SQL mismatch:\n expected: %s\n   actual: %s\n     diff: %s", expected, actual, dmp.DiffPrettyText(diffs))
	return false
}
