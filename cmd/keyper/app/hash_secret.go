package app

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keyper-oauth/keyper/issuer"
	"github.com/keyper-oauth/keyper/security"
)

// newHashSecretCmd creates the hash-secret command that produces secret_hash values for the clients file
func newHashSecretCmd() *cobra.Command {
	var generate bool

	cmd := &cobra.Command{
		Use:   "hash-secret [secret]",
		Short: "Hash a client secret for the clients file",
		Long: `Print the bcrypt hash of a client secret, for the secret_hash field of
the clients file. The secret is read from the first argument, or from the
first line of standard input when no argument is given.

With --generate a new random secret is created and printed along with its hash.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var secret string
			switch {
			case generate && len(args) > 0:
				return fmt.Errorf("--generate does not take a secret argument")
			case generate:
				var err error
				if secret, err = issuer.NewTokenIssuer().Generate(); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "secret: %s\n", secret)
			case len(args) == 1:
				secret = args[0]
			default:
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read secret from stdin: %w", err)
				}
				secret = strings.TrimRight(line, "\r\n")
			}

			hash, err := security.HashClientSecret(secret)
			if err != nil {
				return err
			}

			if generate {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "secret_hash: %s\n", hash)
			} else {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&generate, "generate", false, "Generate a random secret")
	return cmd
}
