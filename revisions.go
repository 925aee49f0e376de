package strata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// revRow is one strata_revisions row.
type revRow struct {
	ID          int64
	Namespace   int16
	ContainerID int64
	NameID      int64
	Version     int
	SavedAt     time.Time
	AuthorID    int64
	CommentID   int64
	Supersedes  sql.NullInt64
}

// RevisionInfo is the metadata of one stored revision.
type RevisionInfo struct {
	Version  int
	SavedAt  time.Time
	AuthorID int64
	Comment  string
	IsLatest bool
}

// SaveOptions adjusts Save behavior.
type SaveOptions struct {
	// ForceTimestamp overrides the revision timestamp (zero means now).
	ForceTimestamp time.Time

	// AmendInPlace rewrites the current latest revision's content under the
	// same version number instead of creating a new revision. Used for
	// non-substantive corrections that should not add history noise.
	AmendInPlace bool

	// ExplicitVersion forces the new revision's version number, for callers
	// importing existing history. Zero means previous+1 (or 1).
	ExplicitVersion int

	// Comment is the save comment, interned through the name dictionary.
	Comment string
}

const revCols = "id, namespace, container_id, name_id, version, saved_at, author_id, comment_id, supersedes"

func scanRev(row interface{ Scan(...any) error }) (*revRow, error) {
	var r revRow
	err := row.Scan(&r.ID, &r.Namespace, &r.ContainerID, &r.NameID, &r.Version,
		&r.SavedAt, &r.AuthorID, &r.CommentID, &r.Supersedes)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// rootID returns the id of the root sentinel row.
func (s *Store) rootID(ctx context.Context, q Querier) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		"SELECT id FROM strata_revisions WHERE namespace = $1", nsRoot).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: root sentinel missing", ErrMissingSchema)
	}
	if err != nil {
		if sqlState(err) == pgUndefinedTable {
			return 0, fmt.Errorf("%w: %v", ErrMissingSchema, err)
		}
		return 0, err
	}
	return id, nil
}

// containerID resolves a slash-separated container path to its row id by
// walking segments down from the root sentinel.
func (s *Store) containerID(ctx context.Context, q Querier, path string) (int64, error) {
	cur, err := s.rootID(ctx, q)
	if err != nil {
		return 0, err
	}
	if path == "" {
		return cur, nil
	}

	segments := strings.Split(path, "/")
	ids, err := s.names.resolve(ctx, s.db, segments)
	if err != nil {
		return 0, err
	}

	for _, seg := range segments {
		var next int64
		err := q.QueryRowContext(ctx,
			"SELECT id FROM strata_revisions WHERE namespace = $1 AND container_id = $2 AND name_id = $3 AND version = 0",
			nsLatest, cur, ids[seg]).Scan(&next)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", ErrNoContainer, path)
		}
		if err != nil {
			return 0, err
		}
		cur = next
	}
	return cur, nil
}

// CreateContainer creates a container at the given slash-separated path.
// The parent must already exist; top-level containers hang off the root
// sentinel. Returns ErrContainerExists for a duplicate path.
func (s *Store) CreateContainer(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("strata: empty container path")
	}
	parent := ""
	name := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		parent, name = path[:i], path[i+1:]
	}

	parentID, err := s.containerID(ctx, s.db, parent)
	if err != nil {
		return err
	}
	nameID, err := s.names.resolveOne(ctx, s.db, name)
	if err != nil {
		return err
	}

	var existing int64
	err = s.db.QueryRowContext(ctx,
		"SELECT id FROM strata_revisions WHERE namespace = $1 AND container_id = $2 AND name_id = $3 AND version = 0",
		nsLatest, parentID, nameID).Scan(&existing)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrContainerExists, path)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO strata_revisions (namespace, container_id, name_id, version, saved_at, author_id, comment_id) VALUES ($1, $2, $3, 0, $4, 0, $5)",
		nsLatest, parentID, nameID, time.Now().UTC(), NameIDEmpty)
	if err != nil {
		// A concurrent creator can win between the existence check and the
		// insert; the one-container index reports that as a unique violation.
		if sqlState(err) == pgUniqueViolation {
			return fmt.Errorf("%w: %s", ErrContainerExists, path)
		}
		return fmt.Errorf("creating container %s: %w", path, err)
	}
	return nil
}

// latest returns the current latest revision row for an identity, or nil.
// The dangling namespace is always excluded here.
func (s *Store) latest(ctx context.Context, q Querier, containerID, nameID int64) (*revRow, error) {
	r, err := scanRev(q.QueryRowContext(ctx,
		"SELECT "+revCols+" FROM strata_revisions WHERE namespace = $1 AND container_id = $2 AND name_id = $3 AND version >= 1",
		nsLatest, containerID, nameID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		if sqlState(err) == pgUndefinedTable {
			return nil, fmt.Errorf("%w: %v", ErrMissingSchema, err)
		}
		return nil, err
	}
	return r, nil
}

// Save stores a new revision of the document and returns its version
// number. The previous latest revision (if any) is retagged to the history
// namespace with a single row update; its attribute rows are keyed by
// revision id and are not touched.
//
// A malformed identity or a missing container is a silent no-op returning
// version 0: legacy hosts rely on this, so it is kept deliberately and
// logged at warn level rather than turned into an error.
func (s *Store) Save(ctx context.Context, id DocID, doc *Document, authorID int64, opts SaveOptions) (int, error) {
	if !id.Valid() {
		s.log.Warn().Str("doc", id.String()).Msg("save with malformed identity ignored")
		return 0, nil
	}

	// Dictionary work happens outside the mutation transaction: inserts are
	// idempotent and additive, so they are safe to leave committed even if
	// a later step fails.
	nameID, err := s.names.resolveOne(ctx, s.db, id.Name)
	if err != nil {
		return 0, err
	}
	commentID, err := s.names.resolveOne(ctx, s.db, opts.Comment)
	if err != nil {
		return 0, err
	}
	containerID, err := s.containerID(ctx, s.db, id.Container)
	if errors.Is(err, ErrNoContainer) {
		s.log.Warn().Str("doc", id.String()).Msg("save into missing container ignored")
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	savedAt := opts.ForceTimestamp
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}

	tx, commit, rollback, err := s.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer rollback()

	prev, err := s.latest(ctx, tx, containerID, nameID)
	if err != nil {
		return 0, err
	}

	var revID int64
	var version int

	switch {
	case opts.AmendInPlace && prev != nil:
		// Amend in place: same version number, content rewritten by delete
		// and reinsert of the latest revision's attribute rows.
		revID, version = prev.ID, prev.Version
		if err := s.deleteValues(ctx, tx, revID); err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE strata_revisions SET saved_at = $1, author_id = $2, comment_id = $3 WHERE id = $4",
			savedAt, authorID, commentID, revID); err != nil {
			return 0, fmt.Errorf("amending revision: %w", err)
		}

	default:
		version = 1
		var supersedes sql.NullInt64
		if prev != nil {
			version = prev.Version + 1
			supersedes = sql.NullInt64{Int64: prev.ID, Valid: true}
		}
		if opts.ExplicitVersion > 0 {
			version = opts.ExplicitVersion
		}

		if prev != nil {
			// Retag, don't rewrite: the superseded revision moves to the
			// history namespace in one update. This happens before the new
			// latest row exists so the one-latest index is never violated.
			if _, err := tx.ExecContext(ctx,
				"UPDATE strata_revisions SET namespace = $1 WHERE id = $2", nsOther, prev.ID); err != nil {
				return 0, fmt.Errorf("retagging superseded revision: %w", err)
			}
		}

		// A dangling placeholder reserved this identity before its first
		// save; promote it so reservation holders keep a stable row id.
		var danglingID int64
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM strata_revisions WHERE namespace = $1 AND container_id = $2 AND name_id = $3",
			nsDangling, containerID, nameID).Scan(&danglingID)
		switch {
		case err == nil:
			revID = danglingID
			if _, err := tx.ExecContext(ctx,
				"UPDATE strata_revisions SET namespace = $1, version = $2, saved_at = $3, author_id = $4, comment_id = $5, supersedes = $6 WHERE id = $7",
				nsLatest, version, savedAt, authorID, commentID, supersedes, revID); err != nil {
				return 0, fmt.Errorf("promoting dangling revision: %w", err)
			}
		case errors.Is(err, sql.ErrNoRows):
			if err := tx.QueryRowContext(ctx,
				"INSERT INTO strata_revisions (namespace, container_id, name_id, version, saved_at, author_id, comment_id, supersedes) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id",
				nsLatest, containerID, nameID, version, savedAt, authorID, commentID, supersedes).Scan(&revID); err != nil {
				return 0, fmt.Errorf("inserting revision: %w", err)
			}
		default:
			return 0, err
		}
	}

	if err := s.writeValues(ctx, tx, revID, doc); err != nil {
		return 0, err
	}

	// Access rules are recreated wholesale on every save: discard the rules
	// captured for the superseded (or amended) revision, then capture fresh
	// ones from the document's own preferences.
	if prev != nil {
		if err := s.deleteAccessRules(ctx, tx, prev.ID); err != nil {
			return 0, err
		}
	}
	if err := s.captureAccessRules(ctx, tx, revID, containerID, doc); err != nil {
		return 0, err
	}

	if err := commit(); err != nil {
		return 0, err
	}
	return version, nil
}

// Reserve creates a dangling placeholder row for an identity before its
// first save, so the identity is taken but the document does not yet exist.
// It is a no-op when any revision row already exists for the identity.
func (s *Store) Reserve(ctx context.Context, id DocID) error {
	if !id.Valid() {
		return fmt.Errorf("strata: malformed identity %s", id)
	}
	nameID, err := s.names.resolveOne(ctx, s.db, id.Name)
	if err != nil {
		return err
	}
	containerID, err := s.containerID(ctx, s.db, id.Container)
	if err != nil {
		return err
	}

	var existing int64
	err = s.db.QueryRowContext(ctx,
		"SELECT id FROM strata_revisions WHERE container_id = $1 AND name_id = $2 AND namespace IN ($3, $4)",
		containerID, nameID, nsLatest, nsDangling).Scan(&existing)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO strata_revisions (namespace, container_id, name_id, version, saved_at, author_id, comment_id) VALUES ($1, $2, $3, 0, $4, 0, $5)",
		nsDangling, containerID, nameID, time.Now().UTC(), NameIDEmpty)
	if err != nil {
		return fmt.Errorf("reserving %s: %w", id, err)
	}
	return nil
}

// Read returns the document at the given version (0 means latest) and
// whether the returned revision is the latest. Explicit versions search the
// latest and history namespaces for the closest version >= the requested
// one; dangling placeholders are never returned.
func (s *Store) Read(ctx context.Context, id DocID, version int) (*Document, bool, error) {
	doc, info, err := s.ReadRevision(ctx, id, version)
	if err != nil {
		return nil, false, err
	}
	return doc, info.IsLatest, nil
}

// ReadRevision is Read plus the revision metadata.
func (s *Store) ReadRevision(ctx context.Context, id DocID, version int) (*Document, RevisionInfo, error) {
	var info RevisionInfo
	if !id.Valid() {
		return nil, info, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	nameID, err := s.names.resolveOne(ctx, s.db, id.Name)
	if err != nil {
		return nil, info, err
	}
	containerID, err := s.containerID(ctx, s.db, id.Container)
	if err != nil {
		if errors.Is(err, ErrNoContainer) {
			return nil, info, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, info, err
	}

	var r *revRow
	if version <= 0 {
		r, err = s.latest(ctx, s.db, containerID, nameID)
		if err != nil {
			return nil, info, err
		}
		if r == nil {
			return nil, info, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
	} else {
		r, err = scanRev(s.db.QueryRowContext(ctx,
			"SELECT "+revCols+" FROM strata_revisions WHERE namespace IN ($1, $2) AND container_id = $3 AND name_id = $4 AND version >= $5 ORDER BY version ASC LIMIT 1",
			nsLatest, nsOther, containerID, nameID, version))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, info, fmt.Errorf("%w: %s v%d", ErrNotFound, id, version)
		}
		if err != nil {
			return nil, info, err
		}
	}

	doc, err := s.readValues(ctx, s.db, r.ID)
	if err != nil {
		return nil, info, err
	}

	info = RevisionInfo{
		Version:  r.Version,
		SavedAt:  r.SavedAt,
		AuthorID: r.AuthorID,
		IsLatest: r.Namespace == nsLatest,
	}
	if r.CommentID != 0 && r.CommentID != NameIDEmpty {
		err = s.db.QueryRowContext(ctx,
			"SELECT name FROM strata_names WHERE id = $1", r.CommentID).Scan(&info.Comment)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, info, err
		}
	}
	return doc, info, nil
}

// Exists reports whether the document has a latest revision.
func (s *Store) Exists(ctx context.Context, id DocID) (bool, error) {
	if !id.Valid() {
		return false, nil
	}
	nameID, err := s.names.resolveOne(ctx, s.db, id.Name)
	if err != nil {
		return false, err
	}
	containerID, err := s.containerID(ctx, s.db, id.Container)
	if errors.Is(err, ErrNoContainer) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	r, err := s.latest(ctx, s.db, containerID, nameID)
	if err != nil {
		return false, err
	}
	return r != nil, nil
}

// Rollback restores the most recent superseded revision as the new latest
// and deletes the current latest row together with its attribute rows.
// It fails with ErrNoPriorRevision when the current version is 1 or no
// history revision exists; that is fatal, not retryable. The author id is
// recorded in the log only: the promoted revision keeps its original author.
func (s *Store) Rollback(ctx context.Context, id DocID, authorID int64) (int, error) {
	if !id.Valid() {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	nameID, err := s.names.resolveOne(ctx, s.db, id.Name)
	if err != nil {
		return 0, err
	}
	containerID, err := s.containerID(ctx, s.db, id.Container)
	if err != nil {
		return 0, err
	}

	tx, commit, rollback, err := s.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer rollback()

	cur, err := s.latest(ctx, tx, containerID, nameID)
	if err != nil {
		return 0, err
	}
	if cur == nil {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if cur.Version == 1 {
		return 0, fmt.Errorf("%w: %s is at version 1", ErrNoPriorRevision, id)
	}

	prior, err := scanRev(tx.QueryRowContext(ctx,
		"SELECT "+revCols+" FROM strata_revisions WHERE namespace = $1 AND container_id = $2 AND name_id = $3 ORDER BY version DESC LIMIT 1",
		nsOther, containerID, nameID))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrNoPriorRevision, id)
	}
	if err != nil {
		return 0, err
	}

	// Remove the rolled-back revision first so promoting the prior row
	// never collides with the one-latest index, then retag.
	if err := s.deleteValues(ctx, tx, cur.ID); err != nil {
		return 0, err
	}
	if err := s.deleteAccessRules(ctx, tx, cur.ID); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM strata_revisions WHERE id = $1", cur.ID); err != nil {
		return 0, fmt.Errorf("deleting rolled-back revision: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE strata_revisions SET namespace = $1 WHERE id = $2", nsLatest, prior.ID); err != nil {
		return 0, fmt.Errorf("promoting prior revision: %w", err)
	}

	// The promoted revision's rules were discarded when it was superseded;
	// re-extract them from its stored content.
	doc, err := s.readValues(ctx, tx, prior.ID)
	if err != nil {
		return 0, err
	}
	if err := s.captureAccessRules(ctx, tx, prior.ID, containerID, doc); err != nil {
		return 0, err
	}

	if err := commit(); err != nil {
		return 0, err
	}

	s.log.Info().Str("doc", id.String()).Int("version", prior.Version).
		Int64("author", authorID).Msg("rolled back")
	return prior.Version, nil
}

// Rename changes only the identity columns of the current latest revision.
// Historical revisions keep their old identity: renaming does not rewrite
// history, so old versions stay associated with the pre-rename identity.
// Leases are deliberately not consulted: they are informational markers and
// conflicting-lease policy is the caller's responsibility.
func (s *Store) Rename(ctx context.Context, oldID, newID DocID) error {
	if !oldID.Valid() || !newID.Valid() {
		return fmt.Errorf("strata: malformed identity in rename")
	}
	ids, err := s.names.resolve(ctx, s.db, []string{oldID.Name, newID.Name})
	if err != nil {
		return err
	}
	oldContainer, err := s.containerID(ctx, s.db, oldID.Container)
	if err != nil {
		return err
	}
	newContainer, err := s.containerID(ctx, s.db, newID.Container)
	if err != nil {
		return err
	}

	tx, commit, rollback, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer rollback()

	cur, err := s.latest(ctx, tx, oldContainer, ids[oldID.Name])
	if err != nil {
		return err
	}
	if cur == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, oldID)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE strata_revisions SET container_id = $1, name_id = $2 WHERE id = $3",
		newContainer, ids[newID.Name], cur.ID); err != nil {
		if sqlState(err) == pgUniqueViolation {
			return fmt.Errorf("strata: rename target %s already exists", newID)
		}
		return fmt.Errorf("renaming %s: %w", oldID, err)
	}

	// Container-scope rules captured from this document reference the
	// container row; keep them pointing at the new home.
	if _, err := tx.ExecContext(ctx,
		"UPDATE strata_access SET container_id = $1 WHERE revision_id = $2 AND container_id IS NOT NULL",
		newContainer, cur.ID); err != nil {
		return fmt.Errorf("moving access rules: %w", err)
	}

	return commit()
}

// Purge deletes a document's entire lineage under its current identity:
// latest, history, and dangling rows, their attribute rows, access rules,
// and any lock or lease. History rows re-identified by an earlier rename
// are not found by this and must be purged under their old identity.
func (s *Store) Purge(ctx context.Context, id DocID) error {
	if !id.Valid() {
		return fmt.Errorf("strata: malformed identity %s", id)
	}
	nameID, err := s.names.resolveOne(ctx, s.db, id.Name)
	if err != nil {
		return err
	}
	containerID, err := s.containerID(ctx, s.db, id.Container)
	if err != nil {
		return err
	}

	tx, commit, rollback, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer rollback()

	rows, err := tx.QueryContext(ctx,
		"SELECT id FROM strata_revisions WHERE container_id = $1 AND name_id = $2 AND namespace IN ($3, $4, $5)",
		containerID, nameID, nsLatest, nsOther, nsDangling)
	if err != nil {
		return err
	}
	var revIDs []int64
	for rows.Next() {
		var rid int64
		if err := rows.Scan(&rid); err != nil {
			_ = rows.Close()
			return err
		}
		revIDs = append(revIDs, rid)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, rid := range revIDs {
		if err := s.deleteValues(ctx, tx, rid); err != nil {
			return err
		}
		if err := s.deleteAccessRules(ctx, tx, rid); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM strata_revisions WHERE id = $1", rid); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM strata_locks WHERE container_id = $1 AND name_id = $2", containerID, nameID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM strata_leases WHERE container_id = $1 AND name_id = $2", containerID, nameID); err != nil {
		return err
	}

	return commit()
}

// Documents returns the names of all documents in a container, ordered.
func (s *Store) Documents(ctx context.Context, container string) ([]string, error) {
	containerID, err := s.containerID(ctx, s.db, container)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT n.name FROM strata_revisions r JOIN strata_names n ON n.id = r.name_id WHERE r.namespace = $1 AND r.container_id = $2 AND r.version >= 1 ORDER BY n.name",
		nsLatest, containerID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Containers returns the container paths under parent ("" for top level),
// ordered; with recursive set it walks the whole subtree, returning
// slash-separated paths relative to parent.
func (s *Store) Containers(ctx context.Context, parent string, recursive bool) ([]string, error) {
	parentID, err := s.containerID(ctx, s.db, parent)
	if err != nil {
		return nil, err
	}
	return s.childContainers(ctx, parentID, "", recursive)
}

func (s *Store) childContainers(ctx context.Context, parentID int64, prefix string, recursive bool) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT r.id, n.name FROM strata_revisions r JOIN strata_names n ON n.id = r.name_id WHERE r.namespace = $1 AND r.container_id = $2 AND r.version = 0 ORDER BY n.name",
		nsLatest, parentID)
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}
	type child struct {
		id   int64
		name string
	}
	var children []child
	for rows.Next() {
		var c child
		if err := rows.Scan(&c.id, &c.name); err != nil {
			_ = rows.Close()
			return nil, err
		}
		children = append(children, c)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []string
	for _, c := range children {
		path := c.name
		if prefix != "" {
			path = prefix + "/" + c.name
		}
		out = append(out, path)
		if recursive {
			sub, err := s.childContainers(ctx, c.id, path, true)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
	}
	return out, nil
}
