// Package strata is a revisioned, structured-document storage engine for
// PostgreSQL. It persists hierarchical named documents (grouped into
// containers) as typed attribute rows, using dictionary encoding for names
// and attribute coordinates, and evaluates scope-cascading access rules
// captured from the documents themselves.
//
// # Core Concepts
//
// A Document is an ordered set of named sub-collections ("sections"), each
// holding keyed scalar attributes. On save, the document is decomposed into
// typed rows: names and attribute coordinates are interned through the name
// and field dictionaries, each scalar is classified (numeric, datetime, or
// opaque string) and projected into the matching value tables, and the
// revision row is tagged as the new latest for its identity. Earlier
// revisions are retained under the "other" namespace for history.
//
// # Basic Usage
//
//	store := strata.Open(db)
//	version, err := store.Save(ctx, strata.DocID{Container: "Main", Name: "WebHome"}, doc, authorID, strata.SaveOptions{})
//	doc, isLatest, err := store.Read(ctx, id, 0) // 0 means latest
//
// # Transaction Model
//
// Store works with *sql.DB, *sql.Tx, or *sql.Conn. Multi-statement mutations
// (save, rollback, rename) open their own transaction when the handle
// supports BeginTx; dictionary inserts run outside that transaction because
// they are idempotent and additive, so they are safe to leave committed even
// if a later step fails.
//
// # Access Control
//
// Access rules are captured from a document's own stored preferences at save
// time and evaluated by a Resolver with root > container > document scope
// cascading. See Resolver.
//
// # Schema Management
//
// The Migrator applies the embedded DDL and seeds the well-known name and
// field catalogs. Run it from the CLI (`strata migrate`) or programmatically
// on startup; it is idempotent.
package strata

import (
	"context"
	"database/sql"
)

// DocID identifies a document: a name inside a container. Container is a
// slash-separated path under the root sentinel ("Main" or "Main/Sub").
type DocID struct {
	Container string
	Name      string
}

// String returns the canonical representation "container.name".
func (id DocID) String() string {
	return id.Container + "." + id.Name
}

// Valid reports whether both parts are non-empty.
func (id DocID) Valid() bool {
	return id.Container != "" && id.Name != ""
}

// Scope identifies the level at which an access rule applies or is checked.
type Scope int16

const (
	ScopeRoot      Scope = 0
	ScopeContainer Scope = 1
	ScopeDocument  Scope = 2
)

// String returns a human-readable scope name, used in denial reasons.
func (s Scope) String() string {
	switch s {
	case ScopeRoot:
		return "root"
	case ScopeContainer:
		return "container"
	case ScopeDocument:
		return "document"
	}
	return "unknown"
}

// Permission is the effect of an access rule.
type Permission int16

const (
	PermDeny  Permission = 0
	PermAllow Permission = 1
	// PermSyntheticDeny is the sentinel "not-in-list" rule synthesized when a
	// broader-scope allow list exists: everyone not named in the list is
	// denied explicitly rather than implicitly.
	PermSyntheticDeny Permission = 2
)

// Mode is an access mode such as "VIEW" or "CHANGE". Modes are uppercase by
// convention; rule extraction uppercases the mode part of preference keys.
type Mode string

// Revision namespaces. A document identity has at most one latest row; its
// superseded revisions live under nsOther. Dangling rows are placeholders
// with no real content (identity reserved before first save). The single
// nsRoot row anchors the container hierarchy.
const (
	nsRoot     int16 = 0
	nsLatest   int16 = 1
	nsOther    int16 = 2
	nsDangling int16 = 3
)

// ValueKind classifies how a field's values compare: as opaque strings, as
// numbers (falling back to string), as datetimes (falling back to string),
// or not indexed at all. The kind is assigned when the field is first
// created and is permanent; later writers are expected to agree, which this
// layer does not re-validate.
type ValueKind int16

const (
	KindOpaque    ValueKind = 0
	KindNumeric   ValueKind = 1
	KindDate      ValueKind = 2
	KindUnindexed ValueKind = 3
)

// Duck-type tags on value rows. Sequence rows sort first so reconstruction
// can rebuild sub-collection order before replaying keyed attributes.
const (
	duckSequence int16 = 0
	duckString   int16 = 1
	duckNumeric  int16 = 2
	duckDate     int16 = 3
)

// Querier executes queries against PostgreSQL.
// Implemented by *sql.DB, *sql.Tx, and *sql.Conn.
//
// The minimal interface allows the engine to work in transaction contexts
// without requiring a full database connection, so reads can observe
// uncommitted changes within an enclosing transaction.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execer extends Querier with ExecContext for mutations and migrations.
type Execer interface {
	Querier
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// beginner is implemented by handles that can open transactions (*sql.DB).
type beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
