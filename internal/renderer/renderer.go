// Package renderer selects and runs the converter for a document: built-in
// Markdown, reStructuredText, and code-to-HTML converters, pass-through for
// HTML files, external single-file tools, and external project builders.
//
// A render never fails with a Go error. Whatever goes wrong is folded into
// the errors text of the Result so it reaches the viewer's error pane, and
// the cycle still completes.
package renderer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/codechat-live/codechat-server/internal/project"
)

// CoBuild receives build-output chunks as a tool produces them.
type CoBuild func(text string)

// Result is the outcome of one render cycle.
type Result struct {
	// Performed is false only for the project-with-dirty-buffer guard:
	// nothing ran and no events should be emitted.
	Performed bool
	// ProjectPath is the project directory for project renders, empty for
	// single-file renders.
	ProjectPath string
	// RenderedPath is where the result lives: the source path itself for
	// in-band HTML, the builder's output file for project renders.
	RenderedPath string
	// HTML is the in-band result; meaningful only when HTMLInline is set.
	HTML       string
	HTMLInline bool
	// ErrText carries every diagnostic of the cycle.
	ErrText string
}

// converter is a built-in synchronous document converter.
type converter interface {
	name() string
	convert(text, filePath string) (html, errText string)
}

// externalTool describes a single-file command-line converter.
type externalTool struct {
	// UsesStdin feeds the document text on stdin; otherwise the text is
	// materialized to a temp file substituted for {input_file}.
	UsesStdin bool
	// UsesStdout takes the HTML from stdout; otherwise a temp file is
	// reserved, substituted for {output_file}, and read back.
	UsesStdout bool
	Argv       []string
}

// globEntry maps one filename pattern to a converter or an external tool.
type globEntry struct {
	pattern  string
	conv     converter
	external *externalTool
}

// globTable is consulted in order and the first matching pattern wins.
// Patterns containing a slash match the whole slash-normalized path, the
// rest match the base name only.
var globTable = buildGlobTable()

func buildGlobTable() []globEntry {
	table := []globEntry{
		{pattern: "*.xhtml", conv: passThroughConverter{}},
		{pattern: "*.html", conv: passThroughConverter{}},
		{pattern: "*.htm", conv: passThroughConverter{}},
		{pattern: "*.md", conv: markdownConverter{}},
		{pattern: "*.rst", conv: rstConverter{}},
		{pattern: "*.textile", external: &externalTool{
			UsesStdin:  true,
			UsesStdout: true,
			Argv:       []string{"pandoc", "--from=textile", "--to=html"},
		}},
	}

	for _, ext := range codeExtensions() {
		table = append(table, globEntry{pattern: "*" + ext, conv: codeConverter{}})
	}
	return table
}

func matchGlob(pattern, filePath string) bool {
	target := filepath.Base(filePath)
	if strings.ContainsRune(pattern, '/') {
		target = filepath.ToSlash(filePath)
	}
	ok, err := doublestar.Match(pattern, target)
	return err == nil && ok
}

// selection is the dispatch decision for one file.
type selection struct {
	configPath string // project render when non-empty
	conv       converter
	external   *externalTool
}

// selectRenderer picks the renderer for filePath: the nearest project
// configuration wins, then the glob table, then the error converter.
func selectRenderer(filePath string) selection {
	if configPath, ok := project.FindConfig(filePath); ok {
		return selection{configPath: configPath}
	}

	for _, entry := range globTable {
		if matchGlob(entry.pattern, filePath) {
			return selection{conv: entry.conv, external: entry.external}
		}
	}

	return selection{conv: errorConverter{}}
}

// RenderFile performs one render cycle for the given submission.
//
// Project sources are read from disk by their builder, so a dirty buffer
// over a project file renders nothing: the build would present stale file
// content as if it were the editor's current text.
func RenderFile(ctx context.Context, text, filePath string, coBuild CoBuild, isDirty bool) Result {
	if coBuild == nil {
		coBuild = func(string) {}
	}

	sel := selectRenderer(filePath)

	if sel.configPath != "" {
		if isDirty {
			return Result{}
		}
		return renderProject(ctx, sel.configPath, filePath, coBuild)
	}

	if sel.external != nil {
		html, errText := runExternalTool(sel.external, text, filePath, coBuild)
		return Result{
			Performed:    true,
			RenderedPath: filePath,
			HTML:         html,
			HTMLInline:   true,
			ErrText:      errText,
		}
	}

	html, errText := sel.conv.convert(text, filePath)
	return Result{
		Performed:    true,
		RenderedPath: filePath,
		HTML:         html,
		HTMLInline:   true,
		ErrText:      errText,
	}
}

// errorConverter reports files nothing else claimed.
type errorConverter struct{}

func (errorConverter) name() string { return "error" }

func (errorConverter) convert(_, filePath string) (string, string) {
	return "", fmt.Sprintf("%s:: ERROR: No converter found for this file.", filePath)
}

// passThroughConverter serves already-rendered HTML as-is.
type passThroughConverter struct{}

func (passThroughConverter) name() string { return "pass through" }

func (passThroughConverter) convert(text, _ string) (string, string) {
	return text, ""
}
