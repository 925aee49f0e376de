package strata

import (
	"context"
	"database/sql"
	"sync"

	"github.com/rs/zerolog"
)

// schemaValidation holds the process-wide validation state.
// Validation runs once per process on the first Open call.
var schemaValidation struct {
	once sync.Once
	done bool
}

// Store is the storage engine handle. Stores are lightweight and safe to
// create per-request; they hold no state beyond the database handle, the
// dictionary cache, and the logger. The handle can be *sql.DB, *sql.Tx, or
// *sql.Conn, so engine reads can observe uncommitted changes within an
// enclosing transaction.
type Store struct {
	db     Execer
	cache  *DictCache
	names  *nameDict
	fields *fieldDict
	log    zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithDictCache shares a dictionary cache across Stores. Without it each
// Store gets a private cache, which still lives for the Store's lifetime;
// sharing one process-wide cache avoids re-resolving hot names on every
// request. Entries are never invalidated: names and fields are immutable
// once assigned.
func WithDictCache(c *DictCache) Option {
	return func(s *Store) {
		s.cache = c
	}
}

// WithLogger sets the structured logger. By default nothing is logged.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// Open creates a Store over the given database handle.
//
// On the first call with a non-nil handle, Open validates the schema once
// per process. Validation issues are logged as warnings but do not prevent
// Store creation, so applications can start before `strata migrate` has run.
func Open(db Execer, opts ...Option) *Store {
	s := &Store{
		db:  db,
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = NewDictCache()
	}
	s.names = &nameDict{cache: s.cache}
	s.fields = &fieldDict{cache: s.cache, names: s.names}

	if db != nil {
		s.validateSchema()
	}
	return s
}

// ResolveNames interns the given strings through the name dictionary and
// returns their stable ids, creating ids for previously unseen strings.
// Hosts use this to obtain principal and author ids.
func (s *Store) ResolveNames(ctx context.Context, names ...string) (map[string]int64, error) {
	return s.names.resolve(ctx, s.db, names)
}

// validateSchema performs one-time schema validation on first Store
// creation. It checks for common setup issues and logs warnings; it never
// fails, so a missing schema surfaces later as ErrMissingSchema from the
// first real operation.
func (s *Store) validateSchema() {
	schemaValidation.once.Do(func() {
		ctx := context.Background()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM strata_names").Scan(&count)
		if err != nil {
			if sqlState(err) == pgUndefinedTable {
				s.log.Warn().Msg("strata tables not found; run 'strata migrate' to create them")
			} else {
				s.log.Warn().Err(err).Msg("error checking strata_names")
			}
			schemaValidation.done = true
			return
		}
		if count == 0 {
			s.log.Warn().Msg("strata_names is empty; run 'strata migrate' to seed the name catalog")
			schemaValidation.done = true
			return
		}

		var rootCount int
		err = s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM strata_revisions WHERE namespace = $1", nsRoot).Scan(&rootCount)
		if err == nil && rootCount == 0 {
			s.log.Warn().Msg("root sentinel row missing; run 'strata migrate' to seed it")
		}

		schemaValidation.done = true
	})
}

// begin opens a transaction when the handle supports it, falling back to
// direct execution otherwise (*sql.Tx, *sql.Conn). The returned rollback is
// a no-op after a successful commit.
//
// Callers must treat an error after partial commit points per the engine's
// rules: dictionary inserts intentionally run outside this transaction and
// stay committed on failure, since they are idempotent and additive.
func (s *Store) begin(ctx context.Context) (db Execer, commit func() error, rollback func(), err error) {
	if b, ok := s.db.(beginner); ok {
		tx, err := b.BeginTx(ctx, &sql.TxOptions{})
		if err != nil {
			return nil, nil, nil, err
		}
		return tx, tx.Commit, func() { _ = tx.Rollback() }, nil
	}
	return s.db, func() error { return nil }, func() {}, nil
}
