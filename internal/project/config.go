// Package project handles everything around codechat_config.yaml: locating
// it, parsing and validating it, computing where an external builder will
// write the HTML for a given source file, and editing project sources on
// behalf of the viewer.
package project

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/codechat-live/codechat-server/internal/subprocess"
)

// ConfigFileName marks a directory tree as a project.
const ConfigFileName = "codechat_config.yaml"

// Type selects how the expected output path is derived from a source file.
type Type int

const (
	TypeGeneral Type = iota
	TypePreTeXt
	TypeDoxygen
)

func (t Type) String() string {
	switch t {
	case TypePreTeXt:
		return "PreTeXt"
	case TypeDoxygen:
		return "Doxygen"
	default:
		return "general"
	}
}

// Config is a validated project configuration. It is read on demand for
// every project render and never cached; users edit these files while the
// server runs.
type Config struct {
	// ConfigPath is the absolute path of the codechat_config.yaml file.
	ConfigPath string
	// ProjectPath is the directory containing the config file. Builds run
	// here.
	ProjectPath string
	// SourcePath is the absolute root of renderable sources.
	SourcePath string
	// OutputPath is the absolute root the builder writes HTML under.
	OutputPath string
	// Args is the build command, tokenized but with placeholders intact.
	Args []string
	// HTMLExt is the extension of builder output files.
	HTMLExt string
	// Type adjusts output-path derivation.
	Type Type
}

// rawConfig mirrors the YAML schema before validation.
type rawConfig struct {
	SourcePath  string    `yaml:"source_path"`
	OutputPath  string    `yaml:"output_path"`
	Args        yaml.Node `yaml:"args"`
	HTMLExt     string    `yaml:"html_ext"`
	ProjectType string    `yaml:"project_type"`
}

// FindConfig walks from filePath's directory toward the filesystem root
// looking for a project config. The nearest one wins.
func FindConfig(filePath string) (string, bool) {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return "", false
	}

	dir := filepath.Dir(abs)
	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// Load reads and validates the project configuration at configPath.
func Load(configPath string) (*Config, error) {
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve %s: %w", configPath, err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("cannot read project configuration: %w", err)
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("cannot parse %s: %w", abs, err)
	}

	projectPath := filepath.Dir(abs)
	cfg := &Config{
		ConfigPath:  abs,
		ProjectPath: projectPath,
	}

	if raw.OutputPath == "" {
		return nil, fmt.Errorf("%s: output_path is required", abs)
	}
	cfg.OutputPath = resolveAgainst(projectPath, raw.OutputPath)

	if raw.SourcePath == "" {
		cfg.SourcePath = projectPath
	} else {
		cfg.SourcePath = resolveAgainst(projectPath, raw.SourcePath)
	}

	cfg.Args, err = parseArgs(&raw.Args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}

	cfg.HTMLExt = raw.HTMLExt
	if cfg.HTMLExt == "" {
		cfg.HTMLExt = ".html"
	}
	if !strings.HasPrefix(cfg.HTMLExt, ".") {
		return nil, fmt.Errorf("%s: html_ext %q must start with a dot", abs, raw.HTMLExt)
	}

	cfg.Type, err = parseType(raw.ProjectType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}

	return cfg, nil
}

func resolveAgainst(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// parseArgs accepts either a single command string or a sequence of
// strings. Strings are tokenized with shell quoting so paths with spaces
// survive.
func parseArgs(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case 0:
		return nil, fmt.Errorf("args is required")
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil || strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("args must be a non-empty command string or sequence")
		}
		return subprocess.Tokenize(s)
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return nil, fmt.Errorf("args sequence must contain only strings")
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("args sequence is empty")
		}
		return list, nil
	default:
		return nil, fmt.Errorf("args must be a string or a sequence of strings")
	}
}

func parseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "", "general":
		return TypeGeneral, nil
	case "pretext":
		return TypePreTeXt, nil
	case "doxygen":
		return TypeDoxygen, nil
	default:
		return TypeGeneral, fmt.Errorf("project_type %q is not one of general, PreTeXt, Doxygen", s)
	}
}

// Argv returns the build command with project placeholders substituted.
func (c *Config) Argv() []string {
	repl := strings.NewReplacer(
		"{project_path}", c.ProjectPath,
		"{source_path}", c.SourcePath,
		"{output_path}", c.OutputPath,
	)

	out := make([]string, len(c.Args))
	for i, a := range c.Args {
		out[i] = repl.Replace(a)
	}
	return out
}

// ExpectedOutputPath computes where the builder will write the HTML for
// filePath. For PreTeXt projects the on-disk mapping takes precedence; the
// caller consults it first and falls back here.
func (c *Config) ExpectedOutputPath(filePath string) (string, error) {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return "", fmt.Errorf("cannot resolve %s: %w", filePath, err)
	}

	rel, err := filepath.Rel(c.SourcePath, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the project source path %s", abs, c.SourcePath)
	}
	rel = filepath.ToSlash(rel)

	if c.Type == TypeDoxygen {
		return filepath.Join(c.OutputPath, doxygenName(rel)+c.HTMLExt), nil
	}
	return filepath.Join(c.OutputPath, filepath.FromSlash(withHTMLExt(rel, c.HTMLExt))), nil
}

// withHTMLExt substitutes the builder extension for markup sources, which
// builders rename (index.rst -> index.html), and appends it for everything
// else (main.c -> main.c.html), matching the Sphinx CodeChat extension.
func withHTMLExt(rel, ext string) string {
	switch strings.ToLower(path.Ext(rel)) {
	case ".rst", ".md", ".htm", ".html", ".xhtml":
		return strings.TrimSuffix(rel, path.Ext(rel)) + ext
	default:
		return rel + ext
	}
}

// doxygenName flattens a relative source path into Doxygen's file-page
// name: underscores double, dots become _8, separators become _2, and
// uppercase letters gain an underscore prefix.
func doxygenName(rel string) string {
	var b strings.Builder
	for _, r := range rel {
		switch {
		case r == '_':
			b.WriteString("__")
		case r == '.':
			b.WriteString("_8")
		case r == '/':
			b.WriteString("_2")
		case r >= 'A' && r <= 'Z':
			b.WriteByte('_')
			b.WriteRune(r - 'A' + 'a')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
