package renderer

import (
	"bytes"
	"fmt"
	"html"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// rstConverter renders a reStructuredText subset to a standalone HTML page.
//
// The subset covers what documentation sources actually use: titles,
// paragraphs, inline emphasis/strong/literals, bullet and enumerated lists,
// literal blocks, code, raw-html, image, and admonition directives, comments,
// and transitions. Diagnostics use the docutils system-message shape
// ("<source>:<line>: (WARNING/2) <text>") so editor plugins that parse them
// keep working, and a malformed document still renders.
type rstConverter struct{}

func (rstConverter) name() string { return "reStructuredText" }

func (rstConverter) convert(text, filePath string) (string, string) {
	p := newRSTParser(filePath)
	blocks := p.parse(text)

	var body strings.Builder
	for _, b := range blocks {
		p.renderBlock(&body, b)
	}

	title := filepath.Base(filePath)
	for _, b := range blocks {
		if b.kind == blockTitle {
			title = b.text
			break
		}
	}

	return buildRSTPage(title, body.String()), strings.Join(p.warnings, "\n")
}

type blockKind int

const (
	blockParagraph blockKind = iota
	blockTitle
	blockBullet
	blockEnum
	blockLiteral
	blockCode
	blockQuote
	blockTransition
	blockRaw
	blockAdmonition
	blockImage
)

type rstBlock struct {
	kind blockKind
	// text holds paragraph or title content, the body of literal, code and
	// raw blocks, and the image URI.
	text      string
	level     int
	items     []string
	itemLines []int
	lang      string
	// name is the admonition title.
	name     string
	line     int
	children []rstBlock
}

type adornKey struct {
	ch   byte
	over bool
}

type rstParser struct {
	source   string
	levels   map[adornKey]int
	warnings []string
}

func newRSTParser(source string) *rstParser {
	return &rstParser{source: source, levels: make(map[adornKey]int)}
}

func (p *rstParser) warn(line int, severity string, level int, msg string) {
	p.warnings = append(p.warnings,
		fmt.Sprintf("%s:%d: (%s/%d) %s", p.source, line, severity, level, msg))
}

var (
	rstBulletRe    = regexp.MustCompile(`^([-*+]) +(.*)$`)
	rstEnumRe      = regexp.MustCompile(`^(\d+[.)]|#\.) +(.*)$`)
	rstDirectiveRe = regexp.MustCompile(`^\.\. +([A-Za-z][A-Za-z0-9_-]*):: *(.*)$`)
	rstOptionRe    = regexp.MustCompile(`^:[A-Za-z][A-Za-z0-9_-]*:`)
)

func (p *rstParser) parse(text string) []rstBlock {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return p.parseBlocks(strings.Split(text, "\n"), 0)
}

// parseBlocks consumes lines into blocks. base is the zero-based index of
// lines[0] within the whole document, used for diagnostic line numbers.
func (p *rstParser) parseBlocks(lines []string, base int) []rstBlock {
	var blocks []rstBlock
	i := 0
	for i < len(lines) {
		line := strings.TrimRight(lines[i], " \t")
		if strings.TrimSpace(line) == "" {
			i++
			continue
		}
		lineNo := base + i + 1

		// Unexpected indentation opens a block quote.
		if leadingSpaces(line) > 0 {
			body, bodyStart, next := gatherIndented(lines, i)
			blocks = append(blocks, rstBlock{
				kind:     blockQuote,
				line:     lineNo,
				children: p.parseBlocks(body, base+bodyStart),
			})
			i = next
			continue
		}

		// Explicit markup: directives and comments.
		if line == ".." || strings.HasPrefix(line, ".. ") {
			if m := rstDirectiveRe.FindStringSubmatch(line); m != nil {
				blk, next, keep := p.parseDirective(lines, i, base, m[1], m[2])
				if keep {
					blocks = append(blocks, blk)
				}
				i = next
				continue
			}
			_, _, next := gatherIndented(lines, i+1)
			i = next
			continue
		}

		if isAdornmentLine(line) {
			// Overlined title: adornment, text, matching adornment.
			if i+2 < len(lines) {
				mid := strings.TrimRight(lines[i+1], " \t")
				bot := strings.TrimRight(lines[i+2], " \t")
				if strings.TrimSpace(mid) != "" && !isAdornmentLine(mid) &&
					isAdornmentLine(bot) && bot[0] == line[0] {
					if len(line) < len(strings.TrimSpace(mid)) {
						p.warn(lineNo, "WARNING", 2, "Title overline too short.")
					}
					blocks = append(blocks, rstBlock{
						kind:  blockTitle,
						text:  strings.TrimSpace(mid),
						level: p.titleLevel(line[0], true),
						line:  base + i + 2,
					})
					i += 3
					continue
				}
			}
			if len(line) >= 4 {
				blocks = append(blocks, rstBlock{kind: blockTransition, line: lineNo})
				i++
				continue
			}
		}

		// Underlined title.
		if i+1 < len(lines) && !isAdornmentLine(line) {
			under := strings.TrimRight(lines[i+1], " \t")
			if isAdornmentLine(under) {
				if len(under) < len(line) {
					p.warn(base+i+2, "WARNING", 2, "Title underline too short.")
				}
				blocks = append(blocks, rstBlock{
					kind:  blockTitle,
					text:  strings.TrimSpace(line),
					level: p.titleLevel(under[0], false),
					line:  lineNo,
				})
				i += 2
				continue
			}
		}

		if rstBulletRe.MatchString(line) {
			blk, next := p.gatherList(lines, i, base, blockBullet, rstBulletRe)
			blocks = append(blocks, blk)
			i = next
			continue
		}
		if rstEnumRe.MatchString(line) {
			blk, next := p.gatherList(lines, i, base, blockEnum, rstEnumRe)
			blocks = append(blocks, blk)
			i = next
			continue
		}

		// Paragraph: consecutive unindented plain lines.
		start := i
		var paraLines []string
		for i < len(lines) {
			l := strings.TrimRight(lines[i], " \t")
			if strings.TrimSpace(l) == "" || leadingSpaces(l) > 0 {
				break
			}
			if strings.HasPrefix(l, ".. ") || l == ".." {
				break
			}
			if i > start {
				if isAdornmentLine(l) {
					break
				}
				// The next line underlining this one makes it a title.
				if i+1 < len(lines) && isAdornmentLine(strings.TrimRight(lines[i+1], " \t")) {
					break
				}
			}
			paraLines = append(paraLines, l)
			i++
		}

		text := strings.Join(paraLines, "\n")
		literalNext := false
		switch {
		case text == "::":
			literalNext = true
			text = ""
		case strings.HasSuffix(text, " ::"):
			literalNext = true
			text = strings.TrimSuffix(text, " ::")
		case strings.HasSuffix(text, "::"):
			literalNext = true
			text = text[:len(text)-1]
		}
		if text != "" {
			blocks = append(blocks, rstBlock{kind: blockParagraph, text: text, line: base + start + 1})
		}
		if literalNext {
			body, bodyStart, next := gatherIndented(lines, i)
			if len(body) > 0 {
				blocks = append(blocks, rstBlock{
					kind: blockLiteral,
					text: strings.Join(body, "\n"),
					line: base + bodyStart + 1,
				})
				i = next
			}
		}
	}
	return blocks
}

func (p *rstParser) parseDirective(lines []string, i, base int, name, arg string) (rstBlock, int, bool) {
	lineNo := base + i + 1
	body, bodyStart, next := gatherIndented(lines, i+1)
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "code", "code-block", "sourcecode":
		body = stripDirectiveOptions(body)
		lang := ""
		if fields := strings.Fields(arg); len(fields) > 0 {
			lang = fields[0]
		}
		return rstBlock{
			kind: blockCode,
			text: strings.Join(body, "\n"),
			lang: lang,
			line: lineNo,
		}, next, true

	case "raw":
		if strings.Contains(strings.ToLower(arg), "html") {
			return rstBlock{kind: blockRaw, text: strings.Join(body, "\n"), line: lineNo}, next, true
		}
		return rstBlock{}, next, false

	case "image", "figure":
		return rstBlock{kind: blockImage, text: arg, line: lineNo}, next, true

	case "note", "warning", "tip", "hint", "important", "attention", "caution", "danger", "error":
		title := strings.ToUpper(name[:1]) + strings.ToLower(name[1:])
		return rstBlock{
			kind:     blockAdmonition,
			name:     title,
			line:     lineNo,
			children: p.parseBlocks(body, base+bodyStart),
		}, next, true

	case "admonition":
		return rstBlock{
			kind:     blockAdmonition,
			name:     arg,
			line:     lineNo,
			children: p.parseBlocks(body, base+bodyStart),
		}, next, true

	case "contents":
		return rstBlock{}, next, false

	default:
		p.warn(lineNo, "ERROR", 3, fmt.Sprintf("Unknown directive type %q.", name))
		raw := []string{strings.TrimRight(lines[i], " \t")}
		raw = append(raw, body...)
		return rstBlock{kind: blockLiteral, text: strings.Join(raw, "\n"), line: lineNo}, next, true
	}
}

// gatherList collects consecutive list items. A continuation line indented
// under an item joins that item's text.
func (p *rstParser) gatherList(lines []string, i, base int, kind blockKind, re *regexp.Regexp) (rstBlock, int) {
	blk := rstBlock{kind: kind, line: base + i + 1}
	for i < len(lines) {
		line := strings.TrimRight(lines[i], " \t")
		if strings.TrimSpace(line) == "" {
			// A blank line ends the list unless another item follows.
			if i+1 < len(lines) && re.MatchString(strings.TrimRight(lines[i+1], " \t")) {
				i++
				continue
			}
			break
		}
		if m := re.FindStringSubmatch(line); m != nil {
			blk.items = append(blk.items, m[2])
			blk.itemLines = append(blk.itemLines, base+i+1)
			i++
			continue
		}
		if leadingSpaces(line) > 0 && len(blk.items) > 0 {
			last := len(blk.items) - 1
			blk.items[last] += " " + strings.TrimSpace(line)
			i++
			continue
		}
		break
	}
	return blk, i
}

// gatherIndented collects the run of blank or indented lines starting at
// start, dedents it by the minimum indent, and reports the index of the
// first collected line and the index after the run.
func gatherIndented(lines []string, start int) (body []string, bodyStart, next int) {
	if start >= len(lines) {
		return nil, start, start
	}
	j := start
	var collected []string
	for j < len(lines) {
		line := lines[j]
		if strings.TrimSpace(line) == "" {
			collected = append(collected, "")
			j++
			continue
		}
		if leadingSpaces(line) == 0 {
			break
		}
		collected = append(collected, strings.TrimRight(line, " \t"))
		j++
	}
	// Trim leading blanks, remembering where content began.
	bodyStart = start
	for len(collected) > 0 && collected[0] == "" {
		collected = collected[1:]
		bodyStart++
	}
	for len(collected) > 0 && collected[len(collected)-1] == "" {
		collected = collected[:len(collected)-1]
	}
	if len(collected) == 0 {
		return nil, start, j
	}

	indent := -1
	for _, l := range collected {
		if l == "" {
			continue
		}
		if n := leadingSpaces(l); indent < 0 || n < indent {
			indent = n
		}
	}
	for _, l := range collected {
		if l == "" {
			body = append(body, "")
			continue
		}
		body = append(body, l[indent:])
	}
	return body, bodyStart, j
}

func stripDirectiveOptions(body []string) []string {
	i := 0
	for i < len(body) && rstOptionRe.MatchString(strings.TrimSpace(body[i])) {
		i++
	}
	for i < len(body) && strings.TrimSpace(body[i]) == "" {
		i++
	}
	return body[i:]
}

func leadingSpaces(s string) int {
	n := 0
	for n < len(s) && (s[n] == ' ' || s[n] == '\t') {
		n++
	}
	if n == len(s) {
		return 0
	}
	return n
}

const adornmentChars = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

func isAdornmentLine(s string) bool {
	if len(s) < 2 || !strings.ContainsRune(adornmentChars, rune(s[0])) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

func (p *rstParser) titleLevel(ch byte, over bool) int {
	k := adornKey{ch: ch, over: over}
	if lvl, ok := p.levels[k]; ok {
		return lvl
	}
	lvl := len(p.levels) + 1
	p.levels[k] = lvl
	return lvl
}

// renderBlock writes one block as HTML.
func (p *rstParser) renderBlock(w *strings.Builder, b rstBlock) {
	switch b.kind {
	case blockParagraph:
		w.WriteString("<p>")
		w.WriteString(p.renderInline(b.text, b.line))
		w.WriteString("</p>\n")

	case blockTitle:
		level := b.level
		if level > 6 {
			level = 6
		}
		fmt.Fprintf(w, "<h%d id=%q>%s</h%d>\n",
			level, rstSlug(b.text), p.renderInline(b.text, b.line), level)

	case blockBullet:
		w.WriteString("<ul class=\"simple\">\n")
		for idx, item := range b.items {
			w.WriteString("<li>")
			w.WriteString(p.renderInline(item, b.itemLines[idx]))
			w.WriteString("</li>\n")
		}
		w.WriteString("</ul>\n")

	case blockEnum:
		w.WriteString("<ol class=\"arabic simple\">\n")
		for idx, item := range b.items {
			w.WriteString("<li>")
			w.WriteString(p.renderInline(item, b.itemLines[idx]))
			w.WriteString("</li>\n")
		}
		w.WriteString("</ol>\n")

	case blockLiteral:
		w.WriteString("<pre class=\"literal-block\">")
		w.WriteString(html.EscapeString(b.text))
		w.WriteString("</pre>\n")

	case blockCode:
		if highlighted, ok := highlightCode(b.lang, b.text); ok {
			w.WriteString(highlighted)
		} else {
			w.WriteString("<pre class=\"code\">")
			w.WriteString(html.EscapeString(b.text))
			w.WriteString("</pre>\n")
		}

	case blockQuote:
		w.WriteString("<blockquote>\n")
		for _, c := range b.children {
			p.renderBlock(w, c)
		}
		w.WriteString("</blockquote>\n")

	case blockTransition:
		w.WriteString("<hr class=\"docutils\" />\n")

	case blockRaw:
		w.WriteString(b.text)
		w.WriteString("\n")

	case blockImage:
		fmt.Fprintf(w, "<img src=%q alt=%q />\n", b.text, b.text)

	case blockAdmonition:
		class := strings.ToLower(b.name)
		if class == "" {
			class = "admonition"
		}
		fmt.Fprintf(w, "<div class=\"admonition %s\">\n", rstSlug(class))
		if b.name != "" {
			fmt.Fprintf(w, "<p class=\"admonition-title\">%s</p>\n", html.EscapeString(b.name))
		}
		for _, c := range b.children {
			p.renderBlock(w, c)
		}
		w.WriteString("</div>\n")
	}
}

// renderInline handles emphasis, strong, inline literals and interpreted
// text. Unterminated start-strings produce the docutils diagnostic and the
// marker stays in the output as plain text.
func (p *rstParser) renderInline(text string, line int) string {
	var out strings.Builder
	i := 0
	for i < len(text) {
		c := text[i]

		if c == '\\' && i+1 < len(text) {
			writeEscapedByte(&out, text[i+1])
			i += 2
			continue
		}

		if strings.HasPrefix(text[i:], "``") {
			if end := strings.Index(text[i+2:], "``"); end > 0 {
				out.WriteString("<span class=\"docutils literal\">")
				out.WriteString(html.EscapeString(text[i+2 : i+2+end]))
				out.WriteString("</span>")
				i += end + 4
				continue
			}
			p.warn(line, "WARNING", 2, "Inline literal start-string without end-string.")
			out.WriteString(html.EscapeString(text[i : i+2]))
			i += 2
			continue
		}

		if c == '*' {
			marker := "*"
			if strings.HasPrefix(text[i:], "**") {
				marker = "**"
			}
			if inlineOpenerValid(text, i, len(marker)) {
				if end := findInlineClose(text, i+len(marker), marker); end >= 0 {
					tag := "em"
					if marker == "**" {
						tag = "strong"
					}
					out.WriteString("<" + tag + ">")
					out.WriteString(html.EscapeString(text[i+len(marker) : end]))
					out.WriteString("</" + tag + ">")
					i = end + len(marker)
					continue
				}
				if marker == "**" {
					p.warn(line, "WARNING", 2, "Inline strong start-string without end-string.")
				} else {
					p.warn(line, "WARNING", 2, "Inline emphasis start-string without end-string.")
				}
			}
			out.WriteString(html.EscapeString(marker))
			i += len(marker)
			continue
		}

		if c == '`' {
			if inlineOpenerValid(text, i, 1) {
				if end := findInlineClose(text, i+1, "`"); end >= 0 {
					out.WriteString("<cite>")
					out.WriteString(html.EscapeString(text[i+1 : end]))
					out.WriteString("</cite>")
					i = end + 1
					continue
				}
				p.warn(line, "WARNING", 2,
					"Inline interpreted text or phrase reference start-string without end-string.")
			}
			out.WriteString("`")
			i++
			continue
		}

		writeEscapedByte(&out, c)
		i++
	}
	return out.String()
}

// writeEscapedByte emits one byte, escaping HTML metacharacters. Bytes of a
// multi-byte rune pass through unchanged, keeping UTF-8 intact.
func writeEscapedByte(out *strings.Builder, c byte) {
	switch c {
	case '&':
		out.WriteString("&amp;")
	case '<':
		out.WriteString("&lt;")
	case '>':
		out.WriteString("&gt;")
	case '"':
		out.WriteString("&quot;")
	default:
		out.WriteByte(c)
	}
}

// inlineOpenerValid reports whether a start-string at i is live: followed by
// non-whitespace and preceded by the start of text, whitespace, or opening
// punctuation.
func inlineOpenerValid(text string, i, markerLen int) bool {
	after := i + markerLen
	if after >= len(text) || text[after] == ' ' || text[after] == '\t' {
		return false
	}
	if i == 0 {
		return true
	}
	prev := text[i-1]
	return prev == ' ' || prev == '\t' || strings.IndexByte("'\"([{<-/:", prev) >= 0
}

// findInlineClose locates the end-string for marker at or after from: it
// must be preceded by non-whitespace and followed by the end of text,
// whitespace, or closing punctuation.
func findInlineClose(text string, from int, marker string) int {
	for j := from; j+len(marker) <= len(text); j++ {
		if text[j:j+len(marker)] != marker {
			continue
		}
		if j == from {
			continue
		}
		prev := text[j-1]
		if prev == ' ' || prev == '\t' || prev == marker[0] {
			continue
		}
		after := j + len(marker)
		if after == len(text) {
			return j
		}
		next := text[after]
		if next == ' ' || next == '\t' || strings.IndexByte(".,:;!?)]}>\"'/\\-", next) >= 0 {
			return j
		}
	}
	return -1
}

func rstSlug(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// highlightCode renders source code with inline-styled markup. A missing or
// unknown language falls back to a plain block.
func highlightCode(lang, code string) (string, bool) {
	if lang == "" {
		return "", false
	}
	lexer := lexers.Get(lang)
	if lexer == nil {
		return "", false
	}
	lexer = chroma.Coalesce(lexer)
	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "", false
	}
	formatter := chromahtml.New(chromahtml.WithClasses(false))
	var buf bytes.Buffer
	if err := formatter.Format(&buf, styles.Get("friendly"), iterator); err != nil {
		return "", false
	}
	return buf.String(), true
}

func buildRSTPage(title, body string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\" />\n")
	b.WriteString("<title>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</title>\n<style>\n")
	b.WriteString(rstStylesheet)
	b.WriteString("</style>\n</head>\n<body>\n<div class=\"document\">\n")
	b.WriteString(body)
	b.WriteString("</div>\n</body>\n</html>\n")
	return b.String()
}

const rstStylesheet = `body {
  font-family: -apple-system, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;
  line-height: 1.5;
  margin: 0;
  color: #1f2328;
  background: #ffffff;
}
div.document {
  max-width: 52em;
  margin: 0 auto;
  padding: 1em 2em 4em;
}
h1, h2, h3, h4, h5, h6 {
  line-height: 1.25;
  margin-top: 1.4em;
  margin-bottom: 0.5em;
}
pre.literal-block, pre.code {
  background: #f6f8fa;
  border-radius: 6px;
  padding: 0.8em 1em;
  overflow-x: auto;
  font-family: ui-monospace, SFMono-Regular, Menlo, Consolas, monospace;
  font-size: 0.9em;
}
span.docutils.literal {
  background: #f6f8fa;
  border-radius: 4px;
  padding: 0.1em 0.3em;
  font-family: ui-monospace, SFMono-Regular, Menlo, Consolas, monospace;
  font-size: 0.9em;
}
blockquote {
  margin-left: 1em;
  padding-left: 1em;
  border-left: 3px solid #d0d7de;
  color: #57606a;
}
hr.docutils {
  border: 0;
  border-top: 1px solid #d0d7de;
  margin: 2em 0;
}
div.admonition {
  border-left: 4px solid #0969da;
  background: #f6f8fa;
  border-radius: 0 6px 6px 0;
  padding: 0.6em 1em;
  margin: 1em 0;
}
div.admonition.warning, div.admonition.caution, div.admonition.danger, div.admonition.error {
  border-left-color: #cf222e;
}
p.admonition-title {
  font-weight: 600;
  margin: 0 0 0.3em;
}
img {
  max-width: 100%;
}
`
