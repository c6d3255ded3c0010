// Package commands implements the fiscaat CLI.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fiscaat/fiscaat/internal/app"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fiscaat",
		Short: "Double-entry bookkeeping for club treasurers",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Optional; the environment wins over .env values.
			_ = godotenv.Load()
		},
	}

	rootCmd.AddCommand(newImportCommand())
	rootCmd.AddCommand(newVerifyCommand())
	rootCmd.AddCommand(newRecomputeCommand())

	return rootCmd
}

func loadConfig() (*app.Config, error) {
	return app.LoadConfig()
}
