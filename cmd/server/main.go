package main

import (
	"fmt"
	"os"

	"diary/internal/config"
	"diary/internal/store/sqlstore"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "server",
	Short:        "Personal diary web server",
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (default)",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		db, dbType, err := sqlstore.Open(cfg.DBDriver, cfg.DBConn)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		version, err := sqlstore.Migrate(db, dbType)
		if err != nil {
			return err
		}
		fmt.Printf("Database %s is at schema version %d\n", dbType, version)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("addr", "", "listen address, overrides ADDR")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}
