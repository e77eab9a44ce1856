package source

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/sokinpui/retrofit/internal/extract"
	"github.com/sokinpui/retrofit/internal/ui"
)

// SourceProvider reads tag lists from stdin (if piped) or the clipboard.
type SourceProvider struct {
	stdin     io.Reader
	piped     func() bool
	clipboard func() (string, error)
}

// New creates a SourceProvider over the process stdin and system clipboard.
func New() *SourceProvider {
	return &SourceProvider{
		stdin:     os.Stdin,
		piped:     stdinIsPiped,
		clipboard: clipboard.ReadAll,
	}
}

func stdinIsPiped() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// GetContent retrieves content from stdin (if piped) or the clipboard.
func (sp *SourceProvider) GetContent() (string, error) {
	if sp.piped() {
		ui.Header("--- Reading tags from stdin ---")
		content, err := io.ReadAll(sp.stdin)
		if err != nil {
			return "", fmt.Errorf("source: read stdin: %w", err)
		}
		return string(content), nil
	}

	ui.Header("--- Reading tags from clipboard ---")
	content, err := sp.clipboard()
	if err != nil {
		return "", fmt.Errorf("source: read clipboard: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		ui.Warning("Clipboard is empty. No tags to read.")
		return "", nil
	}
	return content, nil
}

// GetTags reads and parses a tag list.
func (sp *SourceProvider) GetTags() ([]string, error) {
	content, err := sp.GetContent()
	if err != nil {
		return nil, err
	}
	return ParseTags(content), nil
}

// ParseTags splits "BANKING-1; BANKING-2" style input on semicolons and
// newlines. Blank and repeated tags are dropped.
func ParseTags(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ';' || r == '\n' || r == '\r'
	})
	return extract.CleanTags(fields)
}
