package renderer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codechat-live/codechat-server/internal/project"
	"github.com/codechat-live/codechat-server/internal/subprocess"
)

// renderProject builds the project owning filePath and resolves the output
// file the build produced for it. Diagnostics accumulate in the error text,
// but the best-guess output path is still returned so the viewer can show
// whatever the build left behind.
func renderProject(_ context.Context, configPath, filePath string, coBuild CoBuild) Result {
	var diags strings.Builder

	cfg, err := project.Load(configPath)
	if err != nil {
		fmt.Fprintf(&diags, "%s:: ERROR: CodeChat renderer - %v.", configPath, err)
		return Result{
			Performed:   true,
			ProjectPath: filepath.Dir(configPath),
			ErrText:     diags.String(),
		}
	}

	outPath := expectedOutput(cfg, filePath, &diags)

	if upToDate(filePath, outPath) {
		coBuild(fmt.Sprintf("Skipping the build: %s is newer than %s.\n", outPath, filePath))
		return Result{
			Performed:    true,
			ProjectPath:  cfg.ProjectPath,
			RenderedPath: outPath,
			ErrText:      diags.String(),
		}
	}

	res := subprocess.Run(cfg.Argv(), subprocess.Options{
		Dir:    cfg.ProjectPath,
		Stream: coBuild,
	})
	diags.WriteString(res.Stderr)
	diags.WriteString(res.ErrText)

	// A first build may have just written the mapping file.
	if cfg.Type == project.TypePreTeXt && outPath == "" {
		if mapped, ok := cfg.PreTeXtOutputPath(filePath); ok {
			outPath = mapped
		}
	}

	if outPath != "" {
		if _, err := os.Stat(outPath); err != nil {
			fmt.Fprintf(&diags, "%s:: ERROR: CodeChat renderer - the build did not produce the expected output file %s.", filePath, outPath)
		}
	}

	return Result{
		Performed:    true,
		ProjectPath:  cfg.ProjectPath,
		RenderedPath: outPath,
		ErrText:      diags.String(),
	}
}

// expectedOutput picks the output file the build should produce for
// filePath. PreTeXt projects publish their own source-to-page mapping;
// everything else mirrors the source tree into the output directory.
func expectedOutput(cfg *project.Config, filePath string, diags *strings.Builder) string {
	if cfg.Type == project.TypePreTeXt {
		if mapped, ok := cfg.PreTeXtOutputPath(filePath); ok {
			return mapped
		}
	}
	outPath, err := cfg.ExpectedOutputPath(filePath)
	if err != nil {
		fmt.Fprintf(diags, "%s:: ERROR: CodeChat renderer - %v.", filePath, err)
		return ""
	}
	return outPath
}

// upToDate reports whether the output is already newer than the source, in
// which case the build is skipped.
func upToDate(srcPath, outPath string) bool {
	if outPath == "" {
		return false
	}
	src, err := os.Stat(srcPath)
	if err != nil {
		return false
	}
	out, err := os.Stat(outPath)
	if err != nil {
		return false
	}
	return out.ModTime().After(src.ModTime())
}
