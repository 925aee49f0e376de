package strata

import (
	"context"
	"fmt"
)

// Well-known name ids, seeded at schema creation with fixed ids. The catalog
// is additive-only: released ids are never renumbered or removed. Dynamic
// names start at firstDynamicNameID to leave headroom for future well-known
// entries.
const (
	// NameIDEmpty is the reserved id of the empty string, itself a valid
	// name representing "no value" (for example the blank instance part of
	// singleton field coordinates).
	NameIDEmpty int64 = 1

	// NameIDAdminGroup identifies the administrator group principal.
	// Members bypass all access rules.
	NameIDAdminGroup int64 = 2

	// NameIDEveryoneGroup identifies the implicit everyone-group that every
	// principal belongs to.
	NameIDEveryoneGroup int64 = 3
)

// SectionPreference is the section kind scanned for access rules at save
// time; each preference section's name is the setting key and its "value"
// attribute holds the setting text.
const (
	SectionInfo       = "info"
	SectionText       = "text"
	SectionField      = "field"
	SectionAttachment = "attachment"
	SectionPreference = "preference"
)

// AttrValue is the conventional attribute key holding a section's payload.
const AttrValue = "value"

// wellKnownNames is the fixed seed catalog. Order and ids are frozen once
// released; new entries may only be appended with fresh ids.
var wellKnownNames = []struct {
	ID   int64
	Name string
}{
	{NameIDEmpty, ""},
	{NameIDAdminGroup, "AdminGroup"},
	{NameIDEveryoneGroup, "EveryoneGroup"},
	{4, SectionInfo},
	{5, SectionText},
	{6, SectionField},
	{7, SectionAttachment},
	{8, SectionPreference},
	{9, AttrValue},
	{10, "author"},
	{11, "date"},
	{12, "version"},
	{13, "comment"},
	{14, "name"},
	{15, "title"},
}

const firstDynamicNameID int64 = 100

// nameDict interns strings to stable integer ids. Resolution is three-pass:
// batch lookup against cache and backend, idempotent insert-if-absent for
// the remainder, then re-lookup for the final ids. Concurrent processes
// inserting the same new name converge on one id; the duplicate insert is
// swallowed by ON CONFLICT DO NOTHING and the re-read returns the winner.
type nameDict struct {
	cache *DictCache
}

// resolve returns the id for every requested string, creating ids for
// previously unseen strings. The returned map covers all inputs.
func (d *nameDict) resolve(ctx context.Context, db Execer, names []string) (map[string]int64, error) {
	out := make(map[string]int64, len(names))

	// Pass 1: cache, then one batched backend lookup.
	missing, err := d.lookup(ctx, db, names, out)
	if err != nil {
		return nil, err
	}
	if len(missing) == 0 {
		return out, nil
	}

	// Pass 2: insert-if-absent. A concurrent process may have inserted the
	// same name; that is not an error.
	ins := newBulkInsert("strata_names", "name").onConflict("ON CONFLICT (name) DO NOTHING")
	for _, n := range missing {
		ins.add(n)
	}
	if err := ins.exec(ctx, db); err != nil {
		return nil, fmt.Errorf("interning names: %w", err)
	}

	// Pass 3: re-read the inserted names for their final ids.
	still, err := d.lookup(ctx, db, missing, out)
	if err != nil {
		return nil, err
	}
	if len(still) > 0 {
		return nil, fmt.Errorf("strata: names unresolved after insert: %v", still)
	}

	return out, nil
}

// lookup fills out with ids for the given names, consulting the cache first
// and the backend in one query. It returns the names still unresolved.
func (d *nameDict) lookup(ctx context.Context, q Querier, names []string, out map[string]int64) ([]string, error) {
	var pending []string
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		if id, ok := d.cache.name(n); ok {
			out[n] = id
			continue
		}
		pending = append(pending, n)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	args := make([]any, len(pending))
	for i, n := range pending {
		args[i] = n
	}
	query := fmt.Sprintf("SELECT id, name FROM strata_names WHERE name IN (%s)", placeholders(len(pending)))
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		if sqlState(err) == pgUndefinedTable {
			return nil, fmt.Errorf("%w: %v", ErrMissingSchema, err)
		}
		return nil, fmt.Errorf("looking up names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]bool, len(pending))
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[name] = id
		found[name] = true
		d.cache.putName(name, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []string
	for _, n := range pending {
		if !found[n] {
			missing = append(missing, n)
		}
	}
	return missing, nil
}

// resolveOne is a convenience wrapper for a single name.
func (d *nameDict) resolveOne(ctx context.Context, db Execer, name string) (int64, error) {
	ids, err := d.resolve(ctx, db, []string{name})
	if err != nil {
		return 0, err
	}
	return ids[name], nil
}
