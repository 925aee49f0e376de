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

var statusDB string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current schema status",
	Long:  `Show the schema and catalog state of a strata database.`,
	Example: `  # Check status
  strata status --db postgres://localhost/mydb`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := resolveDSN(statusDB)
		if err != nil {
			return err
		}
		return runStatus(dsn)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusDB, "db", "", "database URL")
}

func runStatus(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return cli.DBConnectError("connecting to database", err)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	m := strata.NewMigrator(db)

	s, err := m.GetStatus(ctx)
	if err != nil {
		return cli.GeneralError("getting status", err)
	}

	fmt.Printf("Names:      %d\n", s.NameCount)
	fmt.Printf("Fields:     %d\n", s.FieldCount)
	fmt.Printf("Revisions:  %d\n", s.RevisionCount)
	fmt.Printf("Indexes:    %d\n", s.IndexCount)
	if s.RootSeeded {
		fmt.Println("Root:       seeded")
	} else {
		fmt.Println("Root:       missing")
	}

	if s.NameCount == 0 || !s.RootSeeded {
		fmt.Println("\nCatalogs are not seeded. Run 'strata migrate'.")
	}

	return nil
}
