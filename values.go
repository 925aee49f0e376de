package strata

import (
	"context"
	"fmt"
	"sort"
	"strconv"
)

// seqWidth is the fixed width of encoded sequence numbers. The terminator
// byte forces exact trailing-character comparison in the backend, so a
// sequence value never compares equal to a longer value sharing its prefix.
const (
	seqWidth      = 10
	seqTerminator = '#'
)

// seqEncode renders a sequence number as a fixed-width, zero-padded string
// with the sentinel terminator appended. Insertion order is recoverable from
// these values alone; row order in the backend is never relied on.
func seqEncode(n int) string {
	return fmt.Sprintf("%0*d%c", seqWidth, n, seqTerminator)
}

// seqDecode parses an encoded sequence number.
func seqDecode(s string) (int, error) {
	if len(s) != seqWidth+1 || s[seqWidth] != seqTerminator {
		return 0, fmt.Errorf("strata: malformed sequence value %q", s)
	}
	n, err := strconv.Atoi(s[:seqWidth])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("strata: malformed sequence value %q", s)
	}
	return n, nil
}

// attrValue is one decomposed value before field interning.
type attrValue struct {
	Key   FieldKey
	Duck  int16
	Text  string
	Class Classification
}

// decompose splits a document into typed attribute values. Every repeatable
// sub-collection (named sections sharing a kind) gets zero-based sequence
// rows in insertion order; every scalar is classified and the canonical
// string form kept byte-for-byte.
func decompose(doc *Document) []attrValue {
	var out []attrValue
	seqCounter := make(map[string]int)

	for _, s := range doc.Sections() {
		named := s.Name != ""
		if named {
			n := seqCounter[s.Kind]
			seqCounter[s.Kind] = n + 1
			out = append(out, attrValue{
				Key:  seqKey(s.Kind, s.Name),
				Duck: duckSequence,
				Text: seqEncode(n),
			})
		}
		for _, key := range s.Keys() {
			v, _ := s.Get(key)
			cls := Classify(v)
			out = append(out, attrValue{
				Key:   FieldKey{Kind: s.Kind, Named: named, Instance: s.Name, Attr: key},
				Duck:  cls.Class.duckTag(),
				Text:  v,
				Class: cls,
			})
		}
	}
	return out
}

// attrRow is one stored value with its field resolved, as seen on read.
type attrRow struct {
	Field FieldInfo
	Duck  int16
	Text  string
}

// replay reconstructs a document from stored rows. Rows must be ordered by
// duck-type: sequence rows first establish each repeatable sub-collection's
// length and per-index names, then keyed rows populate each sub-record by
// its established index. Singleton sections are created on first reference.
func replay(rows []attrRow) (*Document, error) {
	type kindSeq struct {
		kind string
		seq  []string // index -> instance name
	}
	var kinds []*kindSeq
	kindIdx := make(map[string]*kindSeq)

	// Pass 1: sequence rows.
	for _, r := range rows {
		if r.Duck != duckSequence {
			continue
		}
		n, err := seqDecode(r.Text)
		if err != nil {
			return nil, err
		}
		ks := kindIdx[r.Field.EntKind]
		if ks == nil {
			ks = &kindSeq{kind: r.Field.EntKind}
			kindIdx[r.Field.EntKind] = ks
			kinds = append(kinds, ks)
		}
		for len(ks.seq) <= n {
			ks.seq = append(ks.seq, "")
		}
		ks.seq[n] = r.Field.Instance
	}

	doc := NewDocument()
	type secKey struct {
		kind, name string
	}
	secs := make(map[secKey]*Section)

	for _, ks := range kinds {
		for _, name := range ks.seq {
			secs[secKey{ks.kind, name}] = doc.AddSection(ks.kind, name)
		}
	}

	// Pass 2: keyed attribute rows.
	for _, r := range rows {
		if r.Duck == duckSequence {
			continue
		}
		name := ""
		if r.Field.Named {
			name = r.Field.Instance
		}
		k := secKey{r.Field.EntKind, name}
		sec := secs[k]
		if sec == nil {
			sec = doc.AddSection(r.Field.EntKind, name)
			secs[k] = sec
		}
		sec.Set(r.Field.Attr, r.Text)
	}

	return doc, nil
}

// writeValues decomposes doc and bulk-inserts its rows for the revision.
// Writes are grouped by (duck-type, field id) into multi-row inserts, one
// set per projection table. The string projection is always written; the
// numeric and datetime projections only where classification succeeded.
func (s *Store) writeValues(ctx context.Context, db Execer, revisionID int64, doc *Document) error {
	vals := decompose(doc)

	keys := make([]FieldKey, 0, len(vals))
	for _, v := range vals {
		keys = append(keys, v.Key)
	}
	fields, err := s.fields.resolve(ctx, s.db, keys)
	if err != nil {
		return err
	}

	sort.SliceStable(vals, func(i, j int) bool {
		if vals[i].Duck != vals[j].Duck {
			return vals[i].Duck < vals[j].Duck
		}
		return fields[vals[i].Key].ID < fields[vals[j].Key].ID
	})

	text := newBulkInsert("strata_values_text", "revision_id", "field_id", "duck", "value")
	num := newBulkInsert("strata_values_num", "revision_id", "field_id", "duck", "value")
	tim := newBulkInsert("strata_values_time", "revision_id", "field_id", "duck", "value")

	for _, v := range vals {
		fid := fields[v.Key].ID
		text.add(revisionID, fid, v.Duck, v.Text)
		if v.Class.Class.hasNum() {
			num.add(revisionID, fid, duckNumeric, v.Class.Num)
		}
		if v.Class.Class.hasTime() {
			tim.add(revisionID, fid, duckDate, v.Class.Time)
		}
	}

	for _, b := range []*bulkInsert{text, num, tim} {
		if err := b.exec(ctx, db); err != nil {
			return err
		}
	}
	return nil
}

// readValues reconstructs the document stored for a revision. Only the
// string projection is read: it always carries the canonical form. Field
// ids not in the cache are resolved in one batched dictionary lookup.
func (s *Store) readValues(ctx context.Context, q Querier, revisionID int64) (*Document, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT field_id, duck, value FROM strata_values_text WHERE revision_id = $1 ORDER BY duck, field_id",
		revisionID)
	if err != nil {
		return nil, fmt.Errorf("reading values: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type rawRow struct {
		fieldID int64
		duck    int16
		value   string
	}
	var raw []rawRow
	var ids []int64
	for rows.Next() {
		var r rawRow
		if err := rows.Scan(&r.fieldID, &r.duck, &r.value); err != nil {
			return nil, err
		}
		raw = append(raw, r)
		ids = append(ids, r.fieldID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fields, err := s.fields.resolveByID(ctx, q, ids)
	if err != nil {
		return nil, err
	}

	resolved := make([]attrRow, len(raw))
	for i, r := range raw {
		resolved[i] = attrRow{Field: fields[r.fieldID], Duck: r.duck, Text: r.value}
	}
	return replay(resolved)
}

// deleteValues removes all projection rows for a revision.
func (s *Store) deleteValues(ctx context.Context, db Execer, revisionID int64) error {
	for _, table := range []string{"strata_values_text", "strata_values_num", "strata_values_time"} {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE revision_id = $1", table), revisionID); err != nil {
			return fmt.Errorf("deleting from %s: %w", table, err)
		}
	}
	return nil
}
