package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sqldeck/sqldeck/internal/vault"
)

func newKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new vault master key",
		Long: `Generate a random 256-bit vault master key, hex encoded. Stored connection
DSNs are encrypted with this key; losing it makes them unrecoverable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen()
		},
	}

	return cmd
}

func runKeygen() error {
	key, err := vault.GenerateKey()
	if err != nil {
		return fmt.Errorf("generate vault key: %w", err)
	}

	fmt.Printf("%s\n\n", key)
	fmt.Println("Set this as SQLDECK_VAULT_KEY (or vault.key in sqldeck.yaml) before")
	fmt.Println("adding connections. Keep it secret and keep it backed up.")
	return nil
}
