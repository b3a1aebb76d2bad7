package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codechat-live/codechat-server/internal/cerr"
	"github.com/codechat-live/codechat-server/internal/config"
	"github.com/codechat-live/codechat-server/internal/manager"
	"github.com/codechat-live/codechat-server/internal/server"
	"github.com/codechat-live/codechat-server/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the server in the foreground",
	Long: `Run the server in the foreground until interrupted.

The process prints a version banner, binds the editor RPC, HTTP, and
WebSocket ports, and then announces readiness on stderr with the literal
line CODECHAT_READY. Editor plug-ins wait for that marker before
connecting.

Examples:
  codechat-server serve             # Serve on 127.0.0.1
  codechat-server serve --insecure  # Serve on all interfaces
  codechat-server serve --quiet     # Log warnings and errors only`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Bool("insecure", false, "Bind to all interfaces instead of 127.0.0.1")
	serveCmd.Flags().BoolP("quiet", "q", false, "Only log warnings and errors")
	serveCmd.Flags().Int("workers", 0, "Render worker count (0 selects a machine-sized default)")

	viper.BindPFlag("insecure", serveCmd.Flags().Lookup("insecure"))
	viper.BindPFlag("quiet", serveCmd.Flags().Lookup("quiet"))
	viper.BindPFlag("workers", serveCmd.Flags().Lookup("workers"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Peer tooling scans stderr for this banner, then for the ready marker.
	fmt.Fprint(os.Stderr, version.Banner())

	log := newLogger(cfg)

	env := config.DetectEnvironment()
	if env.InsecureRequired() && !cfg.Insecure {
		// Hosted environments reach the service through a port forward, so
		// localhost-only binding would make the viewer unreachable.
		log.Info(cmd.Context(), "remote environment detected, binding to all interfaces",
			"environment", env.Kind.String())
		cfg.Insecure = true
	}

	rm := manager.NewRenderManager(manager.Options{
		Workers: cfg.Workers,
		Log:     log,
	})

	srv := server.New(server.Options{
		Config:  cfg,
		Env:     env,
		Manager: rm,
		Log:     log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		if cerr.IsFatal(err) {
			// The canonical "Error: port(s) ... in use." line is already on
			// stderr for peer tooling; do not print the error twice.
			cmd.SilenceErrors = true
		}
		return err
	}
	return nil
}
