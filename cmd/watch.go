package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codechat-live/codechat-server/internal/config"
	"github.com/codechat-live/codechat-server/internal/rpc"
	"github.com/codechat-live/codechat-server/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch directories and render changed files",
	Long: `Watch directories for changes and submit changed files to a running
server for rendering.

Changes are debounced, filtered by the pattern flags, and rendered into a
single viewer. The default id of -1 makes the server create that viewer,
and open a browser on it, the first time a file changes.

Examples:
  codechat-server watch                                  # Watch the current directory
  codechat-server watch --paths docs --patterns "*.rst"  # Only reStructuredText
  codechat-server watch --ignore-patterns "_build/**"    # Skip build output`,
	RunE: runWatch,
}

var (
	watchPaths          []string
	watchPatterns       []string
	watchIgnorePatterns []string
	watchClientID       int
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringSliceVar(&watchPaths, "paths", []string{"."}, "Directories to watch recursively")
	watchCmd.Flags().StringSliceVar(&watchPatterns, "patterns", nil, "Render only files matching these globs (default all)")
	watchCmd.Flags().StringSliceVar(&watchIgnorePatterns, "ignore-patterns", nil, "Skip files matching these globs")
	watchCmd.Flags().IntVar(&watchClientID, "id", -1, "Client id to render into; negative ids are created on first use")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := rpc.Dial(ctx, rpc.DefaultAddr())
	if err != nil {
		return err
	}
	defer client.Close()

	// A draining server rejects renders; fail now instead of on the first
	// change.
	if status, err := client.Ping(ctx); err != nil {
		return err
	} else if status != "" {
		return errors.New(status)
	}

	submit := func(paths []string) {
		for _, path := range paths {
			text, err := os.ReadFile(path)
			if err != nil {
				log.Warn(ctx, err, "skipping unreadable file", "path", path)
				continue
			}
			callCtx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
			status, err := client.StartRender(callCtx, string(text), path, watchClientID, false)
			cancel()
			if err != nil {
				log.Error(ctx, err, "render submission failed", "path", path)
				continue
			}
			if status != "" {
				log.Warn(ctx, errors.New(status), "render rejected", "path", path)
				continue
			}
			log.Info(ctx, "submitted render", "path", path, "id", watchClientID)
		}
	}

	w, err := watcher.New(watcher.Options{
		Paths:          watchPaths,
		Patterns:       watchPatterns,
		IgnorePatterns: watchIgnorePatterns,
		Log:            log,
	}, submit)
	if err != nil {
		return err
	}

	log.Info(ctx, "watching for changes",
		"paths", strings.Join(watchPaths, ", "), "id", watchClientID)
	return w.Run(ctx)
}
