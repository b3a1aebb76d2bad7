package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/spf13/cobra"
)

// serverProcessName is the executable name the stop command looks for.
const serverProcessName = "codechat-server"

// killTimeout is how long a terminated server may take to exit before it
// is killed outright.
const killTimeout = 5 * time.Second

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop all running server instances",
	Long: `Stop every running CodeChat Server on this machine.

Server processes are found by executable name, asked to terminate, and
killed if they have not exited after five seconds. The command never stops
the process running it and succeeds even when no server is running.`,
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	stopped, err := stopServerProcesses(ctx, serverProcessName, int32(os.Getpid()))
	if err != nil {
		return err
	}
	switch stopped {
	case 0:
		fmt.Fprintln(cmd.OutOrStdout(), "No running CodeChat Server found.")
	case 1:
		fmt.Fprintln(cmd.OutOrStdout(), "Stopped 1 server process.")
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "Stopped %d server processes.\n", stopped)
	}
	return nil
}

// stopServerProcesses terminates every process whose executable name matches
// name, excluding excludePid, and reports how many were found.
func stopServerProcesses(ctx context.Context, name string, excludePid int32) (int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("cannot list processes: %w", err)
	}

	var matched []*process.Process
	for _, p := range procs {
		if p.Pid == excludePid {
			continue
		}
		pname, err := p.NameWithContext(ctx)
		if err != nil {
			// Already gone, or not ours to inspect.
			continue
		}
		if !matchesProcessName(pname, name) {
			continue
		}
		matched = append(matched, p)
		p.TerminateWithContext(ctx)
	}

	// Escalate for anything that ignored the polite request.
	for _, p := range matched {
		if waitProcessExit(ctx, p, killTimeout) {
			continue
		}
		p.KillWithContext(ctx)
	}
	return len(matched), nil
}

func matchesProcessName(actual, want string) bool {
	actual = strings.TrimSuffix(strings.ToLower(actual), ".exe")
	return actual == want
}

// waitProcessExit polls until p exits or the timeout elapses and reports
// whether it exited.
func waitProcessExit(ctx context.Context, p *process.Process, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		running, err := p.IsRunningWithContext(ctx)
		if err != nil || !running {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
	return false
}
