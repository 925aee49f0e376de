package strata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	stratasql "github.com/strata-store/strata/sql"
)

// Migrator creates and seeds the strata schema. It is idempotent and safe
// to run on every application startup.
//
// The migration process:
//  1. Creates every strata table and index (if not exists)
//  2. Seeds the well-known name and field catalogs with their fixed ids
//  3. Creates the root sentinel revision anchoring the container hierarchy
type Migrator struct {
	db Execer
}

// NewMigrator creates a migrator. The Execer is typically *sql.DB but can
// be *sql.Tx for testing.
func NewMigrator(db Execer) *Migrator {
	return &Migrator{db: db}
}

// Migrate applies the DDL and seeds the catalogs. Seeding runs in a
// transaction when the handle supports it, so the catalog appears
// atomically or not at all.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.ApplyDDL(ctx); err != nil {
		return err
	}

	if txer, ok := m.db.(interface {
		BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	}); ok {
		tx, err := txer.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("starting transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := m.seed(ctx, tx); err != nil {
			return err
		}
		return tx.Commit()
	}

	return m.seed(ctx, m.db)
}

// ApplyDDL creates the strata tables and indexes. Idempotent; callable
// independently of seeding to pick up new indexes.
func (m *Migrator) ApplyDDL(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, stratasql.SchemaSQL); err != nil {
		return fmt.Errorf("applying schema.sql: %w", err)
	}
	return nil
}

// seed installs the well-known catalogs and the root sentinel. The fixed
// ids are inserted explicitly; both id sequences are then advanced past the
// reserved range so dynamic entries never collide with future well-known
// additions.
func (m *Migrator) seed(ctx context.Context, db Execer) error {
	names := newBulkInsert("strata_names", "id", "name").
		onConflict("ON CONFLICT (id) DO NOTHING")
	nameID := make(map[string]int64, len(wellKnownNames))
	for _, n := range wellKnownNames {
		names.add(n.ID, n.Name)
		nameID[n.Name] = n.ID
	}
	if err := names.exec(ctx, db); err != nil {
		return fmt.Errorf("seeding names: %w", err)
	}

	fields := newBulkInsert("strata_fields", "id", "kind_id", "named", "instance_id", "attr_id", "value_kind").
		onConflict("ON CONFLICT (id) DO NOTHING")
	for _, f := range wellKnownFields {
		fields.add(f.ID, nameID[f.Key.Kind], f.Key.Named, nameID[f.Key.Instance], nameID[f.Key.Attr], int16(f.Kind))
	}
	if err := fields.exec(ctx, db); err != nil {
		return fmt.Errorf("seeding fields: %w", err)
	}

	for _, stmt := range []string{
		fmt.Sprintf("SELECT setval('strata_names_id_seq', GREATEST(%d, (SELECT COALESCE(MAX(id), 0) FROM strata_names)))", firstDynamicNameID-1),
		fmt.Sprintf("SELECT setval('strata_fields_id_seq', GREATEST(%d, (SELECT COALESCE(MAX(id), 0) FROM strata_fields)))", firstDynamicFieldID-1),
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("advancing id sequence: %w", err)
		}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO strata_revisions (namespace, container_id, name_id, version, saved_at, author_id, comment_id)
		SELECT $1, NULL, $2, 0, $3, 0, $4
		WHERE NOT EXISTS (SELECT 1 FROM strata_revisions WHERE namespace = $1)`,
		nsRoot, NameIDEmpty, time.Now().UTC(), NameIDEmpty)
	if err != nil {
		return fmt.Errorf("seeding root sentinel: %w", err)
	}
	return nil
}

// Status reports the engine's schema state.
// Use GetStatus to check whether the storage engine is properly set up.
type Status struct {
	// NameCount is the number of rows in strata_names. Zero means the
	// catalogs have not been seeded (run `strata migrate`).
	NameCount int64

	// FieldCount is the number of rows in strata_fields.
	FieldCount int64

	// RevisionCount is the number of document revision rows across all
	// namespaces, containers and the root sentinel excluded.
	RevisionCount int64

	// RootSeeded indicates the root sentinel revision exists.
	RootSeeded bool

	// IndexCount is the number of strata indexes found. Expected to be at
	// least 6 after a successful migration.
	IndexCount int
}

// GetStatus returns the current schema status. Useful for health checks
// and migration diagnostics.
func (m *Migrator) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{}

	err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM strata_names").Scan(&status.NameCount)
	if err != nil {
		return nil, fmt.Errorf("counting strata_names rows: %w", err)
	}

	err = m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM strata_fields").Scan(&status.FieldCount)
	if err != nil {
		return nil, fmt.Errorf("counting strata_fields rows: %w", err)
	}

	err = m.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM strata_revisions WHERE version >= 1").Scan(&status.RevisionCount)
	if err != nil {
		return nil, fmt.Errorf("counting strata_revisions rows: %w", err)
	}

	err = m.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM strata_revisions WHERE namespace = $1)", nsRoot).Scan(&status.RootSeeded)
	if err != nil {
		return nil, fmt.Errorf("checking root sentinel: %w", err)
	}

	err = m.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pg_indexes
		WHERE indexname LIKE 'idx_strata_%'
	`).Scan(&status.IndexCount)
	if err != nil {
		return nil, fmt.Errorf("counting strata indexes: %w", err)
	}

	return status, nil
}
