package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/strata-store/strata"
	"github.com/strata-store/strata/internal/cli"
)

var (
	migrateDB      string
	migrateDDLOnly bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create schema and seed catalogs",
	Long:  `Create the strata tables and indexes and seed the well-known name and field catalogs.`,
	Example: `  # Apply schema to database
  strata migrate --db postgres://localhost/mydb

  # Only create tables and indexes, skip catalog seeding
  strata migrate --db postgres://localhost/mydb --ddl-only`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := resolveDSN(migrateDB)
		if err != nil {
			return err
		}
		return runMigrate(dsn, migrateDDLOnly)
	},
}

func init() {
	f := migrateCmd.Flags()
	f.StringVar(&migrateDB, "db", "", "database URL")
	f.BoolVar(&migrateDDLOnly, "ddl-only", false, "apply tables and indexes without seeding catalogs")
}

func runMigrate(dsn string, ddlOnly bool) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return cli.DBConnectError("connecting to database", err)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	m := strata.NewMigrator(db)

	if ddlOnly {
		if err := m.ApplyDDL(ctx); err != nil {
			return cli.GeneralError("migration failed", err)
		}
		if !quiet {
			fmt.Println("Tables and indexes applied.")
		}
		return nil
	}

	if err := m.Migrate(ctx); err != nil {
		return cli.GeneralError("migration failed", err)
	}
	if !quiet {
		fmt.Println("Strata schema applied and catalogs seeded.")
	}
	return nil
}
