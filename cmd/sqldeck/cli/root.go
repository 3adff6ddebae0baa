package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	appVersion string // set in Execute, used by serve for the heartbeat reporter
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sqldeck",
		Short: "Secure multi-tenant SQL access for apps and AI agents",
		Long: `Sqldeck: Secure multi-tenant SQL access for apps and AI agents.

Sqldeck stores encrypted database credentials per tenant, pools connections,
introspects and caches schemas, validates SQL against the live schema, and
executes queries over a REST API or a built-in MCP server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./sqldeck.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for SQLite metadata (default: ~/.sqldeck)")

	cobra.OnInitialize(initConfig)

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newTenantCmd())
	cmd.AddCommand(newConnCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newKeygenCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("sqldeck")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.sqldeck")
	}

	viper.SetEnvPrefix("SQLDECK")
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}
