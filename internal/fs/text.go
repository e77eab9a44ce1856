package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DecodeText turns raw file bytes into a string without ever failing the
// caller: a UTF-8 or UTF-16 byte order mark selects the encoding, and
// invalid sequences become U+FFFD.
func DecodeText(raw []byte) string {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(dec, raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "�")
	}
	return string(out)
}

// ReadText reads and decodes a file. Only I/O errors are returned.
func ReadText(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("fs: read %s: %w", path, err)
	}
	return DecodeText(raw), nil
}

// WriteText writes content to path, creating parent directories as needed.
func WriteText(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("fs: create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("fs: write %s: %w", path, err)
	}
	return nil
}

// CopyFile copies src to dst byte for byte, creating parent directories.
func CopyFile(src, dst string) error {
	raw, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("fs: read %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("fs: create directory for %s: %w", dst, err)
	}
	if err := os.WriteFile(dst, raw, 0644); err != nil {
		return fmt.Errorf("fs: write %s: %w", dst, err)
	}
	return nil
}
