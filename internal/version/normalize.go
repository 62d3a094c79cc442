package version

import (
	"fmt"
	"regexp"
	"strings"
)

// FamilyTag prefixes every canonical identifier, e.g. GE-Proton9-20.
const FamilyTag = "GE-Proton"

// Latest is the sentinel accepted by the release fetcher in place of a tag.
const Latest = "latest"

// TestVersion is the placeholder identifier handed to post-update scripts on a dry test.
const TestVersion = FamilyTag + "13-37"

// NormalizationError reports input that matches none of the accepted grammars.
type NormalizationError struct {
	Input string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("no match for %q: expected MAJOR-MINOR, MAJOR.MINOR or %sMAJOR-MINOR", e.Input, FamilyTag)
}

// number matches one or two digits without a leading zero. Patterns are not
// end-anchored, so longer numbers pass through unchanged.
const number = `(?:[1-9][0-9]|[1-9])`

type rule struct {
	name      string
	pattern   *regexp.Regexp
	transform func(string) string
}

// rules are evaluated in order; the first one matching a prefix of the input wins.
var rules = []rule{
	{
		name:    "dash",
		pattern: regexp.MustCompile(`^` + number + `-` + number),
		transform: func(s string) string {
			return FamilyTag + s
		},
	},
	{
		name:    "dot",
		pattern: regexp.MustCompile(`^` + number + `\.` + number),
		transform: func(s string) string {
			return FamilyTag + strings.ReplaceAll(s, ".", "-")
		},
	},
	{
		name:    "canonical",
		pattern: regexp.MustCompile(`^` + regexp.QuoteMeta(FamilyTag) + number + `-` + number),
		transform: func(s string) string {
			return s
		},
	},
	{
		name:    "lowercase",
		pattern: regexp.MustCompile(`^` + regexp.QuoteMeta(strings.ToLower(FamilyTag)) + number + `-` + number),
		transform: func(s string) string {
			return upperAt(s, 0, 1, 3)
		},
	},
}

// Normalize maps operator input such as "9-20", "9.20" or "ge-proton9-20" to
// the canonical identifier "GE-Proton9-20".
func Normalize(input string) (string, error) {
	for _, r := range rules {
		if r.pattern.MatchString(input) {
			return r.transform(input), nil
		}
	}
	return "", &NormalizationError{Input: input}
}

// IsCanonical reports whether s carries the family prefix.
func IsCanonical(s string) bool {
	return strings.HasPrefix(s, FamilyTag)
}

func upperAt(s string, offsets ...int) string {
	b := []byte(s)
	for _, i := range offsets {
		if i < len(b) && b[i] >= 'a' && b[i] <= 'z' {
			b[i] -= 'a' - 'A'
		}
	}
	return string(b)
}
