package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/codechat-live/codechat-server/internal/server"
)

// startTimeout bounds how long a launched server may take to announce
// readiness before it is killed.
const startTimeout = 10 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server in the background",
	Long: `Start the server as a background process and wait for it to become ready.

The command spawns "codechat-server serve" detached from the current
terminal, redirects its output to a log file, and waits up to ten seconds
for the CODECHAT_READY marker to appear. If the marker never appears the
child is killed and the command exits non-zero.

Examples:
  codechat-server start             # Start on 127.0.0.1
  codechat-server start --insecure  # Start on all interfaces`,
	RunE: runStart,
}

var (
	startInsecure bool
	startCoverage bool
)

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().BoolVar(&startInsecure, "insecure", false, "Bind the server to all interfaces instead of 127.0.0.1")
	startCmd.Flags().BoolVar(&startCoverage, "coverage", false, "Run the server with GOCOVERDIR set for coverage-instrumented binaries")
}

func runStart(cmd *cobra.Command, args []string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("cannot locate the server executable: %w", err)
	}

	// The child logs to a file rather than a pipe so it keeps a writable
	// stderr after this process exits.
	logFile, err := os.CreateTemp("", "codechat-server-*.log")
	if err != nil {
		return fmt.Errorf("cannot create the server log file: %w", err)
	}
	logPath := logFile.Name()

	child := exec.Command(exe, serveArgs()...)
	child.Stdout = logFile
	child.Stderr = logFile
	child.SysProcAttr = detachedProcAttr()
	if startCoverage {
		coverDir := filepath.Join(os.TempDir(), "codechat-server-coverage")
		if err := os.MkdirAll(coverDir, 0o755); err != nil {
			logFile.Close()
			return fmt.Errorf("cannot create the coverage directory: %w", err)
		}
		child.Env = append(os.Environ(), "GOCOVERDIR="+coverDir)
	}

	if err := child.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("cannot start the server: %w", err)
	}
	logFile.Close()

	exited := make(chan error, 1)
	go func() { exited <- child.Wait() }()

	waitErr := waitForReady(logPath, exited, startTimeout)

	// Relay whatever the child wrote so far; on success that is the banner
	// and the ready marker, on failure the reason it could not start.
	out := cmd.ErrOrStderr()
	if tail, err := os.ReadFile(logPath); err == nil {
		out.Write(tail)
	}
	fmt.Fprintf(out, "Server log: %s\n", logPath)

	if waitErr != nil {
		// Kill fails harmlessly when the child already exited on its own.
		child.Process.Kill()
		return waitErr
	}
	return nil
}

// serveArgs builds the argument list for the background serve child,
// propagating the flags that were set explicitly on this invocation.
func serveArgs() []string {
	args := []string{"serve"}
	if startInsecure {
		args = append(args, "--insecure")
	}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	for _, name := range []string{"log-level", "log-format"} {
		if f := rootCmd.PersistentFlags().Lookup(name); f != nil && f.Changed {
			args = append(args, "--"+name, f.Value.String())
		}
	}
	return args
}

// waitForReady polls the child's log file until the ready marker appears,
// the child exits, or the timeout elapses. A nil exited channel disables
// exit detection.
func waitForReady(logPath string, exited <-chan error, timeout time.Duration) error {
	deadline := time.After(timeout)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		if data, err := os.ReadFile(logPath); err == nil &&
			bytes.Contains(data, []byte(server.ReadyMarker)) {
			return nil
		}
		select {
		case err := <-exited:
			if err != nil {
				return fmt.Errorf("the server exited before becoming ready: %v", err)
			}
			return fmt.Errorf("the server exited before becoming ready")
		case <-deadline:
			return fmt.Errorf("the server did not become ready within %v", timeout)
		case <-tick.C:
		}
	}
}
