package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codechat-live/codechat-server/internal/renderer"
)

var buildCmd = &cobra.Command{
	Use:   "build <path>...",
	Short: "Render files once and print the result",
	Long: `Render each path once, without a running server.

For single-file sources the rendered HTML is written to stdout. For project
builds the path of the HTML file the builder produced is written instead.
Build output and diagnostics go to stderr. The command exits non-zero when
any render reported errors.

Examples:
  codechat-server build README.md > readme.html
  codechat-server build docs/intro.rst docs/usage.rst`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()

	failed := 0
	for _, path := range args {
		if !buildOne(ctx, path, stdout, stderr) {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d renders failed", failed, len(args))
	}
	return nil
}

// buildOne renders a single path and reports whether it rendered cleanly.
func buildOne(ctx context.Context, path string, stdout, stderr io.Writer) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", path, err)
		return false
	}
	text, err := os.ReadFile(absPath)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", path, err)
		return false
	}

	// Build output streams to stderr as the tool produces it.
	coBuild := func(s string) { fmt.Fprint(stderr, s) }
	result := renderer.RenderFile(ctx, string(text), absPath, coBuild, false)

	if result.ErrText != "" {
		fmt.Fprint(stderr, result.ErrText)
		if !strings.HasSuffix(result.ErrText, "\n") {
			fmt.Fprintln(stderr)
		}
	}
	if result.HTMLInline {
		fmt.Fprint(stdout, result.HTML)
		if !strings.HasSuffix(result.HTML, "\n") {
			fmt.Fprintln(stdout)
		}
	} else {
		fmt.Fprintln(stdout, result.RenderedPath)
	}
	return result.ErrText == ""
}
