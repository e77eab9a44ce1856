package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/sokinpui/retrofit/internal/fs"
	"github.com/sokinpui/retrofit/model"
)

// File names written into the workspace.
const (
	MarkdownFile = "REPORT.md"
	HTMLFile     = "REPORT.html"
	ManifestFile = "manifest.json"
)

// NewRunID returns a fresh identifier for a run.
func NewRunID() string {
	return uuid.NewString()
}

// Report describes one run for people and for tools.
type Report struct {
	Reference  string
	SourceRoot string
	TargetRoot string
	Tags       []string
	Generated  time.Time
	Summary    model.Summary
}

// Entry is the manifest record of one file.
type Entry struct {
	SourceFile  string `json:"source_file"`
	Type        string `json:"type"`
	BlocksFound int    `json:"blocks_found"`
	Fallbacks   int    `json:"fallbacks"`
	TargetFile  string `json:"target_file,omitempty"`
	RetroPath   string `json:"retro_path,omitempty"`
	Applied     bool   `json:"applied"`
	Error       string `json:"error,omitempty"`
}

// Manifest is the machine-readable record of a run.
type Manifest struct {
	RunID      string    `json:"run_id"`
	Reference  string    `json:"reference"`
	Generated  time.Time `json:"generated_at"`
	Preview    bool      `json:"preview"`
	SourceRoot string    `json:"source_root"`
	TargetRoot string    `json:"target_root"`
	Tags       []string  `json:"tags"`
	Files      []Entry   `json:"files"`
}

// Manifest builds the manifest for the report.
func (r Report) Manifest() Manifest {
	m := Manifest{
		RunID:      r.Summary.RunID,
		Reference:  r.Reference,
		Generated:  r.Generated.UTC(),
		Preview:    r.Summary.Preview,
		SourceRoot: r.SourceRoot,
		TargetRoot: r.TargetRoot,
		Tags:       r.Tags,
		Files:      make([]Entry, 0, len(r.Summary.Results)),
	}
	for _, res := range r.Summary.Results {
		e := Entry{
			SourceFile:  res.SourceFile,
			Type:        string(res.Type),
			BlocksFound: res.BlocksFound,
			Fallbacks:   res.Fallbacks,
			TargetFile:  res.TargetFile,
			RetroPath:   res.RetroPath,
			Applied:     res.Applied,
		}
		if res.Err != nil {
			e.Error = res.Err.Error()
		}
		m.Files = append(m.Files, e)
	}
	return m
}

// Markdown renders the report as a Markdown document.
func (r Report) Markdown() string {
	var b strings.Builder
	s := r.Summary

	mode := "APPLY"
	if s.Preview {
		mode = "PREVIEW"
	}
	fmt.Fprintf(&b, "# Retrofit report: %s\n\n", r.Reference)
	fmt.Fprintf(&b, "- Run: `%s`\n", s.RunID)
	fmt.Fprintf(&b, "- Mode: %s\n", mode)
	fmt.Fprintf(&b, "- Generated: %s\n", r.Generated.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Source: `%s`\n", r.SourceRoot)
	fmt.Fprintf(&b, "- Target: `%s`\n", r.TargetRoot)
	quoted := make([]string, len(r.Tags))
	for i, t := range r.Tags {
		quoted[i] = "`" + t + "`"
	}
	fmt.Fprintf(&b, "- Tags: %s\n\n", strings.Join(quoted, ", "))

	b.WriteString("## Summary\n\n")
	b.WriteString("| New units | Merged | Skipped | Failed | Fallback blocks |\n")
	b.WriteString("|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d |\n\n", len(s.NewUnits), len(s.Merged), len(s.Skipped), len(s.Failed), s.Fallbacks())

	if len(s.Results) == 0 {
		b.WriteString("No files matched the search tags.\n")
		return b.String()
	}

	b.WriteString("## Files\n\n")
	b.WriteString("| File | Result | Blocks | Fallbacks | Target |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, res := range s.Results {
		result := string(res.Type)
		if res.Err != nil {
			result = "FAILED: " + res.Err.Error()
		}
		target := res.TargetFile
		if !res.TargetFound {
			target = "(new unit)"
		}
		fmt.Fprintf(&b, "| %s | %s | %d | %d | %s |\n",
			cell(res.SourceFile), cell(result), res.BlocksFound, res.Fallbacks, cell(target))
	}

	var diffs []model.RetrofitResult
	for _, res := range s.Results {
		if res.Diff != "" {
			diffs = append(diffs, res)
		}
	}
	if len(diffs) > 0 {
		b.WriteString("\n## Changes\n")
		for _, res := range diffs {
			fmt.Fprintf(&b, "\n### %s\n\n```diff\n%s", res.SourceFile, res.Diff)
			if !strings.HasSuffix(res.Diff, "\n") {
				b.WriteString("\n")
			}
			b.WriteString("```\n")
		}
	}
	return b.String()
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

// RenderHTML converts Markdown to a standalone HTML page.
func RenderHTML(title string, md []byte) ([]byte, error) {
	var body bytes.Buffer
	conv := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := conv.Convert(md, &body); err != nil {
		return nil, fmt.Errorf("report: render html: %w", err)
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>%s</title>\n", htmlEscape(title))
	page.WriteString("</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

func htmlEscape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;").Replace(s)
}

// Write stores REPORT.md, REPORT.html and manifest.json in dir and returns
// their paths.
func (r Report) Write(dir string) ([]string, error) {
	md := r.Markdown()
	page, err := RenderHTML("Retrofit report: "+r.Reference, []byte(md))
	if err != nil {
		return nil, err
	}
	manifest, err := json.MarshalIndent(r.Manifest(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("report: encode manifest: %w", err)
	}

	files := []struct {
		name    string
		content string
	}{
		{MarkdownFile, md},
		{HTMLFile, string(page)},
		{ManifestFile, string(manifest) + "\n"},
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := fs.WriteText(path, f.content); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
