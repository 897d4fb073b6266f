// Package cli implements the museum-dl command-line interface: the root
// command and the harvest and providers subcommands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// verbose switches on development logging and per-item output.
	verbose bool

	rootCmd = &cobra.Command{
		Use:   "museum-dl",
		Short: "Harvest openly licensed images from museum collection APIs",
		Long: `museum-dl searches museum collection APIs for a set of terms and
downloads each matching object's images together with its full metadata.

Interrupted runs are safe to repeat: anything already harvested is
skipped, so a rerun only does the remaining work.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	// Load .env early so provider keys are visible to config loading.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./museum-dl.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("museum-dl version %s\n", version)
		},
	})

	rootCmd.AddCommand(newHarvestCommand())
	rootCmd.AddCommand(newProvidersCommand())
}
