package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sqldeck/sqldeck/internal/model"
	"github.com/sqldeck/sqldeck/internal/store"
)

func newTenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenant accounts",
		Long:  "Create and list the tenant accounts that own stored database connections.",
	}

	cmd.AddCommand(newTenantCreateCmd())
	cmd.AddCommand(newTenantListCmd())

	return cmd
}

// ---------- tenant create ----------

func newTenantCreateCmd() *cobra.Command {
	var (
		email string
		name  string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant account",
		Long:  "Create a tenant account. The password is prompted interactively and never echoed.",
		Example: `  sqldeck tenant create --email alice@example.com --name "Alice"
  sqldeck tenant create  # interactive mode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTenantCreate(email, name)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Tenant login email")
	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the email local part)")

	return cmd
}

func runTenantCreate(email, name string) error {
	if email == "" {
		fmt.Print("Email: ")
		fmt.Scanln(&email)
	}
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email address %q", email)
	}
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	if string(password) != string(confirm) {
		return fmt.Errorf("passwords do not match")
	}

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer st.Close()

	tenant := &model.Tenant{
		Email:        email,
		PasswordHash: store.HashAPIKey(string(password)),
		Name:         name,
		IsActive:     true,
	}
	if err := st.CreateTenant(cmdContext(), tenant); err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}

	fmt.Printf("Created tenant %s (id %d)\n", tenant.Email, tenant.ID)
	return nil
}

// ---------- tenant list ----------

func newTenantListCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tenant accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTenantList(jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}

func runTenantList(jsonOut bool) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer st.Close()

	tenants, err := st.ListTenants(cmdContext())
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tenants)
	}

	if len(tenants) == 0 {
		fmt.Println("No tenants found. Create one with 'sqldeck tenant create'.")
		return nil
	}

	fmt.Printf("%-5s %-32s %-24s %-8s %s\n", "ID", "EMAIL", "NAME", "ACTIVE", "CREATED")
	for _, t := range tenants {
		fmt.Printf("%-5d %-32s %-24s %-8t %s\n",
			t.ID, t.Email, t.Name, t.IsActive, t.CreatedAt.Format("2006-01-02"))
	}
	return nil
}
