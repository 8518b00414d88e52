// Package cmd is the usta command line: serve the API, migrate the schema
// and manage roles.
package cmd

import (
	"fmt"
	"os"

	"github.com/kendall-kelly/usta-go-api/config"
	"github.com/kendall-kelly/usta-go-api/controllers"
	"github.com/kendall-kelly/usta-go-api/logger"
	"github.com/spf13/cobra"
)

// BuildCLI assembles the command tree. Running the root command without a
// subcommand serves the API.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "usta",
		Short: "Usta Go marketplace API",
		Long: `Usta Go connects customers who post jobs with professionals ("ustas")
who bid on them, do the work and get paid into their wallet.`,
		Version:       controllers.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildMigrateCommand())
	rootCmd.AddCommand(buildPromoteCommand())
	rootCmd.AddCommand(buildVersionCommand())

	return rootCmd
}

// Execute runs the CLI and exits non-zero on failure
func Execute() {
	if err := BuildCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration, sets up logging and connects the database
func bootstrap() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.IsDevelopment() {
		err = logger.InitializeDevelopment()
	} else {
		err = logger.Initialize(cfg.LogLevel)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := config.ConnectDatabase(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), controllers.Version)
		},
	}
}
