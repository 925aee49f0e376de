package strata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Lease is an advisory, time-bounded editing reservation. It is
// informational only: nothing in the engine enforces it, and conflicting
// leases are a signal for the caller to warn on or block, as it sees fit.
type Lease struct {
	HolderID  int64
	Token     uuid.UUID
	TakenAt   time.Time
	ExpiresAt time.Time
}

// AcquireLock takes the advisory lock on a document for the holder. It
// returns false without error when another holder already has the lock:
// failure to acquire is retryable caller data, never an engine failure.
// Re-acquiring a lock already held by the same holder succeeds and refreshes
// its timestamp.
func (s *Store) AcquireLock(ctx context.Context, id DocID, holderID int64) (bool, error) {
	containerID, nameID, err := s.identityIDs(ctx, id)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO strata_locks (container_id, name_id, holder_id, locked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (container_id, name_id) DO UPDATE SET locked_at = EXCLUDED.locked_at
		WHERE strata_locks.holder_id = EXCLUDED.holder_id`,
		containerID, nameID, holderID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("acquiring lock on %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReleaseLock drops the advisory lock if the holder owns it. Releasing a
// lock held by someone else, or not held at all, is a no-op.
func (s *Store) ReleaseLock(ctx context.Context, id DocID, holderID int64) error {
	containerID, nameID, err := s.identityIDs(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"DELETE FROM strata_locks WHERE container_id = $1 AND name_id = $2 AND holder_id = $3",
		containerID, nameID, holderID)
	if err != nil {
		return fmt.Errorf("releasing lock on %s: %w", id, err)
	}
	return nil
}

// LockHolder returns the current lock holder id, or 0 if unlocked.
func (s *Store) LockHolder(ctx context.Context, id DocID) (int64, error) {
	containerID, nameID, err := s.identityIDs(ctx, id)
	if err != nil {
		return 0, err
	}
	var holder int64
	err = s.db.QueryRowContext(ctx,
		"SELECT holder_id FROM strata_locks WHERE container_id = $1 AND name_id = $2",
		containerID, nameID).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return holder, nil
}

// Lease returns the document's current lease, or nil when none is set.
// An expired lease is still returned until the sweep reclaims it; the
// caller decides whether an expired lease still matters.
func (s *Store) Lease(ctx context.Context, id DocID) (*Lease, error) {
	containerID, nameID, err := s.identityIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	var l Lease
	err = s.db.QueryRowContext(ctx,
		"SELECT holder_id, token, taken_at, expires_at FROM strata_leases WHERE container_id = $1 AND name_id = $2",
		containerID, nameID).Scan(&l.HolderID, &l.Token, &l.TakenAt, &l.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading lease on %s: %w", id, err)
	}
	return &l, nil
}

// SetLease sets or replaces the document's lease; nil deletes it. A zero
// token gets a fresh one. A zero taken time means now.
func (s *Store) SetLease(ctx context.Context, id DocID, lease *Lease) error {
	containerID, nameID, err := s.identityIDs(ctx, id)
	if err != nil {
		return err
	}

	if lease == nil {
		_, err := s.db.ExecContext(ctx,
			"DELETE FROM strata_leases WHERE container_id = $1 AND name_id = $2",
			containerID, nameID)
		if err != nil {
			return fmt.Errorf("clearing lease on %s: %w", id, err)
		}
		return nil
	}

	l := *lease
	if l.Token == uuid.Nil {
		l.Token = uuid.New()
	}
	if l.TakenAt.IsZero() {
		l.TakenAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO strata_leases (container_id, name_id, holder_id, token, taken_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (container_id, name_id) DO UPDATE SET
			holder_id = EXCLUDED.holder_id,
			token = EXCLUDED.token,
			taken_at = EXCLUDED.taken_at,
			expires_at = EXCLUDED.expires_at`,
		containerID, nameID, l.HolderID, l.Token, l.TakenAt, l.ExpiresAt)
	if err != nil {
		return fmt.Errorf("setting lease on %s: %w", id, err)
	}
	return nil
}

// SweepLeases deletes every lease expired as of now and returns the count.
// Leases abandoned without a proper release are only reclaimed here, at
// expiry; there is no proactive detection.
func (s *Store) SweepLeases(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM strata_leases WHERE expires_at <= $1", now)
	if err != nil {
		return 0, fmt.Errorf("sweeping leases: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info().Int64("reclaimed", n).Msg("lease sweep")
	}
	return n, nil
}

// identityIDs resolves a document identity to its container and name ids.
func (s *Store) identityIDs(ctx context.Context, id DocID) (containerID, nameID int64, err error) {
	if !id.Valid() {
		return 0, 0, fmt.Errorf("strata: malformed identity %s", id)
	}
	nameID, err = s.names.resolveOne(ctx, s.db, id.Name)
	if err != nil {
		return 0, 0, err
	}
	containerID, err = s.containerID(ctx, s.db, id.Container)
	if err != nil {
		return 0, 0, err
	}
	return containerID, nameID, nil
}
