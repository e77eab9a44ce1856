package placement

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/sokinpui/retrofit/internal/lines"
)

// DefaultFuzzyThreshold is the minimum similarity ratio for two normalized
// lines to count as the same line.
const DefaultFuzzyThreshold = 0.80

// Ratio returns the similarity of a and b as 2*M/T, where M is the number of
// characters in the longest matching blocks and T the total length.
func Ratio(a, b string) float64 {
	return newMatcher(a, b).Ratio()
}

func newMatcher(a, b string) *difflib.SequenceMatcher {
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
}

// similar reports whether two already-normalized lines are at least
// threshold alike. The cheap upper bounds are checked first.
func similar(a, b string, threshold float64) bool {
	if a == b {
		return true
	}
	if a == "" || b == "" {
		return false
	}
	m := newMatcher(a, b)
	if m.RealQuickRatio() < threshold || m.QuickRatio() < threshold {
		return false
	}
	return m.Ratio() >= threshold
}

// FuzzyEqual compares two raw lines after whitespace collapse and
// lowercasing, falling back to the similarity ratio.
func FuzzyEqual(a, b string, threshold float64) bool {
	return similar(lines.Normalize(a), lines.Normalize(b), threshold)
}

// equalFunc compares target line i against a wanted context line.
type equalFunc func(i int, want string) bool

func (t *Target) exact() equalFunc {
	return func(i int, want string) bool {
		return t.trimmed[i] == strings.TrimSpace(want)
	}
}

func (t *Target) fuzzy(threshold float64) equalFunc {
	normalized := make(map[string]string)
	return func(i int, want string) bool {
		n, ok := normalized[want]
		if !ok {
			n = lines.Normalize(want)
			normalized[want] = n
		}
		return similar(t.normalized[i], n, threshold)
	}
}

// findSequence returns the first index where seq occurs in the target.
func (t *Target) findSequence(seq []string, eq equalFunc) (int, bool) {
	if len(seq) == 0 {
		return 0, false
	}
	for i := 0; i+len(seq) <= len(t.Lines); i++ {
		ok := true
		for j, want := range seq {
			if !eq(i+j, want) {
				ok = false
				break
			}
		}
		if ok {
			return i, true
		}
	}
	return 0, false
}

// findLine returns the first target line equal to want.
func (t *Target) findLine(want string, eq equalFunc) (int, bool) {
	for i := range t.Lines {
		if eq(i, want) {
			return i, true
		}
	}
	return 0, false
}
