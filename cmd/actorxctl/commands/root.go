package commands

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "actorxctl",
	Short: "actorx guest-binary and worker-process tooling",
	Long: `actorxctl signs and verifies guest WASM binaries against the
embedded signature envelope, and (as "run-worker") is the actual
worker-process entrypoint spawned by the host's worker pool.`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(runWorkerCmd)
}
