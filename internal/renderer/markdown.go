package renderer

import (
	"bytes"
	"fmt"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// markdownEngine is shared across renders; goldmark instances are safe for
// concurrent use.
var markdownEngine = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		highlighting.NewHighlighting(
			highlighting.WithStyle("friendly"),
			highlighting.WithFormatOptions(
				chromahtml.WithClasses(false),
			),
		),
	),
	goldmark.WithParserOptions(
		parser.WithAutoHeadingID(),
	),
	goldmark.WithRendererOptions(
		// Editors treat a buffer newline as a line break, so renders do too.
		html.WithHardWraps(),
		// Raw HTML in the source passes through untouched; documents often
		// embed it on purpose and the output never leaves localhost.
		html.WithUnsafe(),
	),
)

// markdownConverter renders GitHub-flavored Markdown to an HTML fragment.
type markdownConverter struct{}

func (markdownConverter) name() string { return "markdown" }

func (markdownConverter) convert(text, filePath string) (string, string) {
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Sprintf("%s:: ERROR: markdown conversion failed: %v.", filePath, err)
	}
	return buf.String(), ""
}
