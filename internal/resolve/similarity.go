package resolve

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Ratio returns a normalized sequence-similarity ratio in [0,1] between two
// strings, case-insensitive. Two empty strings are identical (1.0).
func Ratio(a, b string) float64 {
	m := difflib.NewMatcher(splitChars(strings.ToLower(a)), splitChars(strings.ToLower(b)))
	return m.Ratio()
}

func splitChars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
