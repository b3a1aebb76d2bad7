package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/codechat-live/codechat-server/internal/rpc"
)

// rpcCallTimeout bounds each call a CLI subcommand makes to a running
// server. Renders are asynchronous server-side, so calls return quickly.
const rpcCallTimeout = 5 * time.Second

var renderCmd = &cobra.Command{
	Use:   "render <path> [id]",
	Short: "Submit one render to a running server",
	Long: `Submit a file to a running server for rendering.

The id selects which viewer receives the result. Negative ids are created
on first use and open a browser window on the matching viewer; the id
defaults to -1, so repeated renders without an id share one viewer. Use
"--" before a negative id to keep it from being parsed as a flag.

Examples:
  codechat-server render README.md       # Render into viewer -1
  codechat-server render README.md 3     # Render into existing viewer 3
  codechat-server render README.md -- -7 # Render into viewer -7`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	id := -1
	if len(args) == 2 {
		parsed, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("id %q is not an integer", args[1])
		}
		id = parsed
	}

	absPath, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	text, err := os.ReadFile(absPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), rpcCallTimeout)
	defer cancel()

	client, err := rpc.Dial(ctx, rpc.DefaultAddr())
	if err != nil {
		return err
	}
	defer client.Close()

	status, err := client.StartRender(ctx, string(text), absPath, id, false)
	if err != nil {
		return err
	}
	if status != "" {
		return errors.New(status)
	}
	return nil
}
