// Package app provides the keyper command-line application.
package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is injected at build time with -ldflags "-X github.com/keyper-oauth/keyper/cmd/keyper/app.Version=..."
var Version = "dev"

// NewRootCmd creates the keyper root command with all subcommands attached.
// Each call uses its own viper instance.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:               "keyper",
		DisableAutoGenTag: true,
		Short:             "keyper - an OAuth 2.0 authorization code server",
		Long: `keyper issues authorization codes and exchanges them for access tokens
following the OAuth 2.0 authorization code grant (RFC 6749 Section 4.1).

Registered clients are loaded from a YAML clients file. Grants can be kept in
memory, in SQLite or in Redis.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the keyper configuration file (YAML)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(newServeCmd(v))
	rootCmd.AddCommand(newValidateCmd(v))
	rootCmd.AddCommand(newHashSecretCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "keyper version %s\n", Version)
			return err
		},
	}
}
