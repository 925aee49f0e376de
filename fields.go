package strata

import (
	"context"
	"fmt"
	"strings"
)

// FieldKey is an attribute coordinate before interning: the entity kind, the
// named-instance flag, the instance name (blank for singleton sections), and
// the attribute key. An empty Attr marks the sequence field that persists a
// repeatable sub-collection's insertion order.
type FieldKey struct {
	Kind     string
	Named    bool
	Instance string
	Attr     string
}

// seqKey returns the sequence-marker coordinate for a repeatable instance.
func seqKey(kind, instance string) FieldKey {
	return FieldKey{Kind: kind, Named: true, Instance: instance, Attr: ""}
}

// isSeq reports whether the key is a sequence marker.
func (k FieldKey) isSeq() bool {
	return k.Attr == "" && k.Named
}

// wellKnownFields is the fixed seed catalog of field coordinates with their
// classifiers. Like the name catalog it is additive-only; ids are frozen
// once released.
var wellKnownFields = []struct {
	ID   int64
	Key  FieldKey
	Kind ValueKind
}{
	{1, FieldKey{Kind: SectionText, Attr: AttrValue}, KindOpaque},
	{2, FieldKey{Kind: SectionInfo, Attr: "author"}, KindOpaque},
	{3, FieldKey{Kind: SectionInfo, Attr: "date"}, KindDate},
	{4, FieldKey{Kind: SectionInfo, Attr: "version"}, KindNumeric},
	{5, FieldKey{Kind: SectionInfo, Attr: "comment"}, KindOpaque},
}

const firstDynamicFieldID int64 = 100

// defaultValueKind assigns the classifier for a field created outside the
// seed catalog. First assignment is permanent: this layer never re-validates
// that later writers agree with the stored classifier.
func defaultValueKind(k FieldKey) ValueKind {
	if k.isSeq() {
		return KindOpaque
	}
	switch k.Kind {
	case SectionInfo, SectionAttachment:
		switch k.Attr {
		case "date":
			return KindDate
		case "version", "size":
			return KindNumeric
		}
	case SectionField:
		if k.Attr == AttrValue {
			return KindNumeric
		}
	}
	return KindOpaque
}

// fieldDict interns attribute coordinates to integer ids plus a value-kind
// classifier. It follows the same three-pass resolve/insert/resolve protocol
// as the name dictionary, keyed on the four-part coordinate; the coordinate
// strings themselves are interned through the name dictionary first.
type fieldDict struct {
	cache *DictCache
	names *nameDict
}

// resolve returns a FieldInfo for every requested coordinate, creating
// entries (with defaultValueKind) for previously unseen coordinates.
func (d *fieldDict) resolve(ctx context.Context, db Execer, keys []FieldKey) (map[FieldKey]FieldInfo, error) {
	// Intern every coordinate string in one batch.
	var strs []string
	for _, k := range keys {
		strs = append(strs, k.Kind, k.Instance, k.Attr)
	}
	nameIDs, err := d.names.resolve(ctx, db, strs)
	if err != nil {
		return nil, err
	}

	tuple := func(k FieldKey) fieldTuple {
		return fieldTuple{
			KindID:     nameIDs[k.Kind],
			Named:      k.Named,
			InstanceID: nameIDs[k.Instance],
			AttrID:     nameIDs[k.Attr],
		}
	}

	out := make(map[FieldKey]FieldInfo, len(keys))

	// Pass 1: cache, then one batched lookup.
	missing, err := d.lookup(ctx, db, keys, tuple, out)
	if err != nil {
		return nil, err
	}
	if len(missing) == 0 {
		return out, nil
	}

	// Pass 2: insert-if-absent with the classifier fixed at creation.
	ins := newBulkInsert("strata_fields", "kind_id", "named", "instance_id", "attr_id", "value_kind").
		onConflict("ON CONFLICT (kind_id, named, instance_id, attr_id) DO NOTHING")
	for _, k := range missing {
		t := tuple(k)
		ins.add(t.KindID, t.Named, t.InstanceID, t.AttrID, int16(defaultValueKind(k)))
	}
	if err := ins.exec(ctx, db); err != nil {
		return nil, fmt.Errorf("interning fields: %w", err)
	}

	// Pass 3: re-read for the final ids (and the classifier that actually
	// won, in case a concurrent process created the field first).
	still, err := d.lookup(ctx, db, missing, tuple, out)
	if err != nil {
		return nil, err
	}
	if len(still) > 0 {
		return nil, fmt.Errorf("strata: fields unresolved after insert: %v", still)
	}

	return out, nil
}

// lookup fills out with entries for the given keys, cache first, backend in
// one query using a row-value IN list. Returns the keys still unresolved.
func (d *fieldDict) lookup(ctx context.Context, q Querier, keys []FieldKey, tuple func(FieldKey) fieldTuple, out map[FieldKey]FieldInfo) ([]FieldKey, error) {
	var pending []FieldKey
	byTuple := make(map[fieldTuple]FieldKey)
	for _, k := range keys {
		t := tuple(k)
		if _, dup := byTuple[t]; dup {
			continue
		}
		if f, ok := d.cache.field(t); ok {
			out[k] = f
			continue
		}
		byTuple[t] = k
		pending = append(pending, k)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	rowVals := make([]string, 0, len(pending))
	args := make([]any, 0, len(pending)*4)
	argIdx := 1
	for _, k := range pending {
		t := tuple(k)
		rowVals = append(rowVals, "("+placeholdersFrom(argIdx, 4)+")")
		args = append(args, t.KindID, t.Named, t.InstanceID, t.AttrID)
		argIdx += 4
	}

	query := fmt.Sprintf(
		"SELECT id, kind_id, named, instance_id, attr_id, value_kind FROM strata_fields WHERE (kind_id, named, instance_id, attr_id) IN (%s)",
		strings.Join(rowVals, ", "))
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		if sqlState(err) == pgUndefinedTable {
			return nil, fmt.Errorf("%w: %v", ErrMissingSchema, err)
		}
		return nil, fmt.Errorf("looking up fields: %w", err)
	}
	defer func() { _ = rows.Close() }()

	found := make(map[fieldTuple]bool, len(pending))
	for rows.Next() {
		var id int64
		var t fieldTuple
		var vk int16
		if err := rows.Scan(&id, &t.KindID, &t.Named, &t.InstanceID, &t.AttrID, &vk); err != nil {
			return nil, err
		}
		k, ok := byTuple[t]
		if !ok {
			continue
		}
		f := FieldInfo{
			ID:       id,
			Kind:     ValueKind(vk),
			EntKind:  k.Kind,
			Named:    k.Named,
			Instance: k.Instance,
			Attr:     k.Attr,
		}
		out[k] = f
		found[t] = true
		d.cache.putField(t, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []FieldKey
	for _, k := range pending {
		if !found[tuple(k)] {
			missing = append(missing, k)
		}
	}
	return missing, nil
}

// resolveByID returns the FieldInfo for each id, fetching uncached entries
// in one batched query joined back through the name dictionary.
func (d *fieldDict) resolveByID(ctx context.Context, q Querier, ids []int64) (map[int64]FieldInfo, error) {
	out := make(map[int64]FieldInfo, len(ids))
	var pending []int64
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if f, ok := d.cache.fieldByID(id); ok {
			out[id] = f
			continue
		}
		pending = append(pending, id)
	}
	if len(pending) == 0 {
		return out, nil
	}

	args := make([]any, len(pending))
	for i, id := range pending {
		args[i] = id
	}
	query := fmt.Sprintf(`
		SELECT f.id, kn.name, f.named, sn.name, an.name, f.value_kind,
		       f.kind_id, f.instance_id, f.attr_id
		FROM strata_fields f
		JOIN strata_names kn ON kn.id = f.kind_id
		JOIN strata_names sn ON sn.id = f.instance_id
		JOIN strata_names an ON an.id = f.attr_id
		WHERE f.id IN (%s)`, placeholders(len(pending)))
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("looking up fields by id: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var f FieldInfo
		var vk int16
		var t fieldTuple
		if err := rows.Scan(&f.ID, &f.EntKind, &f.Named, &f.Instance, &f.Attr, &vk, &t.KindID, &t.InstanceID, &t.AttrID); err != nil {
			return nil, err
		}
		t.Named = f.Named
		f.Kind = ValueKind(vk)
		out[f.ID] = f
		d.cache.putField(t, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range pending {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("strata: unknown field id %d", id)
		}
	}
	return out, nil
}
