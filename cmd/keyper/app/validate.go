package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/keyper-oauth/keyper/storage"
)

// newValidateCmd creates the validate command for checking configuration and clients
func newValidateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and clients file",
		Long: `Validate the configuration the serve command would start with.

This command checks:
- configuration file syntax and values
- clients file syntax, client types and redirect URIs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return fmt.Errorf("configuration is invalid: %w", err)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Configuration is valid\n")
			_, _ = fmt.Fprintf(out, "  Issuer: %s\n", cfg.Issuer)
			_, _ = fmt.Fprintf(out, "  Port: %d\n", cfg.Port)
			_, _ = fmt.Fprintf(out, "  Store: %s\n", cfg.Storage.Driver)

			if cfg.ClientsFile == "" {
				_, _ = fmt.Fprintf(out, "  Clients: none configured\n")
				return nil
			}

			clients, err := storage.LoadClientsFile(cfg.ClientsFile)
			if err != nil {
				return fmt.Errorf("clients file is invalid: %w", err)
			}
			_, _ = fmt.Fprintf(out, "  Clients: %d\n", len(clients))
			for _, c := range clients {
				_, _ = fmt.Fprintf(out, "    %s (%s, %d redirect URIs)\n", c.ClientID, c.ClientType, len(c.RedirectURIs))
			}
			return nil
		},
	}
	addServerFlags(cmd)
	return cmd
}
