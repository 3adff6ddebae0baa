package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sqldeck/sqldeck/internal/connector"
	"github.com/sqldeck/sqldeck/internal/model"
)

func newConnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conn",
		Aliases: []string{"connection"},
		Short:   "Manage stored database connections",
		Long:    "Add, list, and activate a tenant's stored database connections. DSNs are encrypted at rest.",
	}

	cmd.AddCommand(newConnAddCmd())
	cmd.AddCommand(newConnListCmd())
	cmd.AddCommand(newConnUseCmd())

	return cmd
}

// ---------- conn add ----------

func newConnAddCmd() *cobra.Command {
	var (
		tenantEmail string
		label       string
		dsn         string
		dialect     string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a database connection for a tenant",
		Long: `Add a stored database connection. The DSN is encrypted with the vault key
before it touches disk. The dialect is detected from the DSN scheme when
not given explicitly.

Supported dialects: postgres, mysql`,
		Example: `  sqldeck conn add --tenant alice@example.com --label prod --dsn "postgres://app:secret@db:5432/prod"
  sqldeck conn add --tenant alice@example.com --label analytics --dsn "app:secret@tcp(db:3306)/stats" --dialect mysql`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnAdd(tenantEmail, label, dsn, dialect)
		},
	}

	cmd.Flags().StringVar(&tenantEmail, "tenant", "", "Tenant email the connection belongs to")
	cmd.Flags().StringVar(&label, "label", "", "Human-readable label")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Data source name / connection string")
	cmd.Flags().StringVar(&dialect, "dialect", "", "Database dialect (detected from the DSN when omitted)")

	return cmd
}

func runConnAdd(tenantEmail, label, dsn, dialect string) error {
	if label == "" || dsn == "" {
		return fmt.Errorf("--label and --dsn are required")
	}

	if dialect == "" {
		dialect = connector.DetectDialect(dsn)
	}
	switch dialect {
	case model.DialectPostgres, model.DialectMySQL:
	default:
		return fmt.Errorf("unsupported dialect %q; supported: postgres, mysql", dialect)
	}

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer st.Close()

	v, err := openVault()
	if err != nil {
		return err
	}

	ctx := cmdContext()
	tenant, err := resolveTenant(ctx, st, tenantEmail)
	if err != nil {
		return err
	}

	encrypted, err := v.Encrypt(connector.NormalizeDSN(dialect, dsn))
	if err != nil {
		return fmt.Errorf("encrypt dsn: %w", err)
	}

	conn := &model.StoredConnection{
		TenantID:     tenant.ID,
		Label:        label,
		EncryptedDSN: encrypted,
		Dialect:      dialect,
	}
	if err := st.CreateConnection(ctx, conn); err != nil {
		return fmt.Errorf("create connection: %w", err)
	}

	fmt.Printf("Added connection %q (id %d, %s) for %s\n", conn.Label, conn.ID, conn.Dialect, tenant.Email)
	fmt.Println("Activate it with 'sqldeck conn use'.")
	return nil
}

// ---------- conn list ----------

func newConnListCmd() *cobra.Command {
	var (
		tenantEmail string
		jsonOut     bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a tenant's stored connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnList(tenantEmail, jsonOut)
		},
	}

	cmd.Flags().StringVar(&tenantEmail, "tenant", "", "Tenant email")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}

func runConnList(tenantEmail string, jsonOut bool) error {
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

	conns, err := st.ListConnections(ctx, tenant.ID)
	if err != nil {
		return fmt.Errorf("list connections: %w", err)
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(conns)
	}

	if len(conns) == 0 {
		fmt.Println("No connections found. Add one with 'sqldeck conn add'.")
		return nil
	}

	fmt.Printf("%-5s %-24s %-10s %-8s %s\n", "ID", "LABEL", "DIALECT", "ACTIVE", "CREATED")
	for _, c := range conns {
		fmt.Printf("%-5d %-24s %-10s %-8t %s\n",
			c.ID, c.Label, c.Dialect, c.IsActive, c.CreatedAt.Format("2006-01-02"))
	}
	return nil
}

// ---------- conn use ----------

func newConnUseCmd() *cobra.Command {
	var tenantEmail string

	cmd := &cobra.Command{
		Use:   "use <connection-id>",
		Short: "Make a stored connection the tenant's active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid connection id %q", args[0])
			}
			return runConnUse(tenantEmail, id)
		},
	}

	cmd.Flags().StringVar(&tenantEmail, "tenant", "", "Tenant email")

	return cmd
}

func runConnUse(tenantEmail string, id int64) error {
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

	if err := st.SetActiveConnection(ctx, tenant.ID, id); err != nil {
		return fmt.Errorf("activate connection: %w", err)
	}

	conn, err := st.GetConnection(ctx, tenant.ID, id)
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}

	fmt.Printf("Active connection for %s is now %q (id %d, %s)\n",
		tenant.Email, conn.Label, conn.ID, conn.Dialect)
	return nil
}
