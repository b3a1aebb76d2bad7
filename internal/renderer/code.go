package renderer

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
)

// lineComments maps a source extension to its line-comment prefix. Only
// extensions listed here are accepted by the code converter; everything
// else is reported as unsupported.
var lineComments = map[string]string{
	".c": "//", ".h": "//", ".cc": "//", ".cpp": "//", ".cxx": "//",
	".hh": "//", ".hpp": "//", ".go": "//", ".java": "//", ".js": "//",
	".mjs": "//", ".cjs": "//", ".jsx": "//", ".ts": "//", ".tsx": "//",
	".cs": "//", ".rs": "//", ".swift": "//", ".kt": "//", ".kts": "//",
	".scala": "//", ".dart": "//", ".d": "//", ".zig": "//", ".php": "//",
	".groovy": "//", ".proto": "//", ".v": "//", ".sv": "//",

	".py": "#", ".pyw": "#", ".rb": "#", ".sh": "#", ".bash": "#",
	".zsh": "#", ".pl": "#", ".pm": "#", ".r": "#", ".jl": "#",
	".yaml": "#", ".yml": "#", ".toml": "#", ".cmake": "#", ".tcl": "#",
	".nim": "#", ".cr": "#", ".ex": "#", ".exs": "#", ".ps1": "#",
	".coffee": "#",

	".lua": "--", ".sql": "--", ".hs": "--", ".elm": "--",
	".adb": "--", ".ads": "--", ".vhd": "--", ".vhdl": "--",

	".lisp": ";", ".cl": ";", ".el": ";", ".clj": ";", ".cljs": ";",
	".cljc": ";", ".scm": ";", ".rkt": ";", ".ini": ";", ".asm": ";",

	".tex": "%", ".sty": "%", ".cls": "%", ".erl": "%", ".hrl": "%",
	".m": "%",

	".vb": "'", ".vbs": "'", ".bas": "'",

	".f90": "!", ".f95": "!", ".f03": "!",
}

// codeExtensions returns the supported extensions in a stable order for the
// dispatch table.
func codeExtensions() []string {
	exts := make([]string, 0, len(lineComments))
	for ext := range lineComments {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// codeConverter renders source files as literate documents: comment lines
// become prose, code runs become highlighted blocks. The prose is treated
// as reStructuredText, so comments can carry markup.
type codeConverter struct{}

func (codeConverter) name() string { return "code" }

func (codeConverter) convert(text, filePath string) (string, string) {
	ext := strings.ToLower(filepath.Ext(filePath))
	delim, ok := lineComments[ext]
	if !ok {
		return "", fmt.Sprintf("%s:: ERROR: this file is not supported by CodeChat.", filePath)
	}
	return rstConverter{}.convert(codeToRST(text, delim, codeLanguage(filePath)), filePath)
}

// codeLanguage names the highlighting lexer for a file, empty when none
// matches.
func codeLanguage(filePath string) string {
	lexer := lexers.Match(filepath.Base(filePath))
	if lexer == nil {
		return ""
	}
	return lexer.Config().Name
}

// codeToRST interleaves prose and code. A line whose first non-blank text
// is the comment delimiter followed by a space (or nothing) is prose;
// contiguous code lines are wrapped into one code block.
func codeToRST(text, delim, lang string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var out []string
	var code []string
	flush := func() {
		if len(code) == 0 {
			return
		}
		out = append(out, "", ".. code-block:: "+lang, "")
		for _, c := range code {
			out = append(out, "   "+c)
		}
		out = append(out, "")
		code = nil
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == delim:
			flush()
			out = append(out, "")
		case strings.HasPrefix(trimmed, delim+" "):
			flush()
			out = append(out, trimmed[len(delim)+1:])
		case trimmed == "":
			if len(code) > 0 {
				code = append(code, "")
			} else {
				out = append(out, "")
			}
		default:
			code = append(code, line)
		}
	}
	flush()
	return strings.Join(out, "\n")
}
