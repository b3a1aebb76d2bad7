package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codechat-live/codechat-server/internal/version"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show the bare version number only")
}

func runVersion(cmd *cobra.Command, args []string) error {
	if versionShort {
		fmt.Fprintln(cmd.OutOrStdout(), version.Get())
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), version.Banner())
	if version.GitCommit != "unknown" && len(version.GitCommit) >= 7 {
		fmt.Fprintf(cmd.OutOrStdout(), "commit %s\n", version.GitCommit[:7])
	}
	return nil
}
