package cli

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sqldeck/sqldeck/internal/model"
	"github.com/sqldeck/sqldeck/internal/store"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage tenant API keys",
		Long:  "Create, list, and revoke API keys. Keys authenticate non-interactive clients such as MCP agents.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		tenantEmail string
		label       string
		ttl         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for a tenant",
		Example: `  sqldeck key create --tenant alice@example.com --label "ci"
  sqldeck key create --tenant alice@example.com --label "agent" --ttl 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(tenantEmail, label, ttl)
		},
	}

	cmd.Flags().StringVar(&tenantEmail, "tenant", "", "Tenant email the key belongs to")
	cmd.Flags().StringVar(&label, "label", "", "Key label")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Key lifetime (0 means no expiry)")

	return cmd
}

func runKeyCreate(tenantEmail, label string, ttl time.Duration) error {
	if label == "" {
		return fmt.Errorf("--label is required")
	}

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer st.Close()

	ctx := cmdContext()
	tenant, err := resolveTenant(ctx, st, tenantEmail)
	if err != nil {
		return err
	}

	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	plaintext := "sqldeck_" + hex.EncodeToString(rawBytes)

	key := &model.APIKey{
		KeyHash:   store.HashAPIKey(plaintext),
		KeyPrefix: plaintext[:16],
		Label:     label,
		TenantID:  tenant.ID,
		IsActive:  true,
	}
	if ttl > 0 {
		expires := time.Now().UTC().Add(ttl)
		key.ExpiresAt = &expires
	}
	if err := st.CreateAPIKey(ctx, key); err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Printf("Created API key %q for %s\n\n", label, tenant.Email)
	fmt.Printf("  %s\n\n", plaintext)
	fmt.Println("Save this key now. It is stored hashed and cannot be shown again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		tenantEmail string
		jsonOut     bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a tenant's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(tenantEmail, jsonOut)
		},
	}

	cmd.Flags().StringVar(&tenantEmail, "tenant", "", "Tenant email")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(tenantEmail string, jsonOut bool) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer st.Close()

	ctx := cmdContext()
	tenant, err := resolveTenant(ctx, st, tenantEmail)
	if err != nil {
		return err
	}

	keys, err := st.ListAPIKeys(ctx, tenant.ID)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(keys)
	}

	if len(keys) == 0 {
		fmt.Println("No API keys found. Create one with 'sqldeck key create'.")
		return nil
	}

	fmt.Printf("%-5s %-18s %-20s %-8s %-12s %s\n", "ID", "PREFIX", "LABEL", "ACTIVE", "EXPIRES", "CREATED")
	for _, k := range keys {
		expires := "never"
		if k.ExpiresAt != nil {
			expires = k.ExpiresAt.Format("2006-01-02")
		}
		fmt.Printf("%-5d %-18s %-20s %-8t %-12s %s\n",
			k.ID, k.KeyPrefix, k.Label, k.IsActive, expires, k.CreatedAt.Format("2006-01-02"))
	}
	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	var tenantEmail string

	cmd := &cobra.Command{
		Use:   "revoke <key-prefix>",
		Short: "Revoke an API key by its prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(tenantEmail, args[0])
		},
	}

	cmd.Flags().StringVar(&tenantEmail, "tenant", "", "Tenant email")

	return cmd
}

func runKeyRevoke(tenantEmail, prefix string) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer st.Close()

	ctx := cmdContext()
	tenant, err := resolveTenant(ctx, st, tenantEmail)
	if err != nil {
		return err
	}

	keys, err := st.ListAPIKeys(ctx, tenant.ID)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	for _, k := range keys {
		if strings.HasPrefix(k.KeyPrefix, prefix) {
			if err := st.RevokeAPIKey(ctx, k.ID); err != nil {
				return fmt.Errorf("revoke api key: %w", err)
			}
			fmt.Printf("Revoked API key %s (%q)\n", k.KeyPrefix, k.Label)
			return nil
		}
	}
	return fmt.Errorf("no API key matching prefix %q", prefix)
}
