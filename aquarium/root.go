// Package aquarium provides the command-line interface of the simulator.
package aquarium

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "aquarium",
	Short: "Aquarium is a cycle-level simulator for a 32-bit load/store ISA.",
	Long: `Aquarium executes programs written in Aquarium assembly while ` +
		`modeling a five-stage pipeline, a 4-way set-associative write-back ` +
		`cache, a two-level paging MMU, interrupts, and memory-mapped I/O. ` +
		`It reports cycle, cache-hit, and stall statistics as programs run.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// Flags read their defaults from the environment; a .env file may
		// supply it. Explicit flags always win.
		_ = godotenv.Load()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
