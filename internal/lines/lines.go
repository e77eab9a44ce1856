package lines

import "strings"

// Split breaks text into lines. "\n", "\r\n" and a lone "\r" all end a line,
// and a trailing terminator does not produce an empty final line.
func Split(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\n':
			out = append(out, s[start:i])
			start = i + 1
		case '\r':
			out = append(out, s[start:i])
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// Join is the inverse of Split for output purposes: lines are joined with "\n".
func Join(ls []string) string {
	return strings.Join(ls, "\n")
}

// HasTrailingNewline reports whether s ends with a line terminator.
func HasTrailingNewline(s string) bool {
	return strings.HasSuffix(s, "\n") || strings.HasSuffix(s, "\r")
}

// IsBlank reports whether the line holds only whitespace.
func IsBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

// Normalize collapses all internal whitespace runs to a single space, trims
// the ends and lowercases the result.
func Normalize(line string) string {
	return strings.ToLower(strings.Join(strings.Fields(line), " "))
}
