package report

import (
	"github.com/pmezard/go-difflib/difflib"

	"github.com/sokinpui/retrofit/internal/lines"
)

// UnifiedDiff returns a unified diff from before to after, or "" when they
// are the same. An empty before reads as /dev/null.
func UnifiedDiff(name, before, after string) (string, error) {
	if before == after {
		return "", nil
	}
	from := "a/" + name
	if before == "" {
		from = "/dev/null"
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        withNewlines(before),
		B:        withNewlines(after),
		FromFile: from,
		ToFile:   "b/" + name,
		Context:  3,
	})
}

func withNewlines(s string) []string {
	ls := lines.Split(s)
	for i := range ls {
		ls[i] += "\n"
	}
	return ls
}
