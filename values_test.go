package strata

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeqCodec(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		for _, n := range []int{0, 1, 9, 42, 1000000} {
			got, err := seqDecode(seqEncode(n))
			require.NoError(t, err)
			assert.Equal(t, n, got)
		}
	})

	t.Run("fixed width with terminator", func(t *testing.T) {
		assert.Equal(t, "0000000000#", seqEncode(0))
		assert.Equal(t, "0000000042#", seqEncode(42))
	})

	// The terminator forces exact trailing-character comparison: a sequence
	// value must never decode if the terminator is missing or replaced.
	t.Run("malformed values rejected", func(t *testing.T) {
		for _, s := range []string{
			"",
			"42",
			"0000000042",
			"0000000042X",
			"0000000042##",
			"-000000001#",
			"000000004x#",
		} {
			_, err := seqDecode(s)
			assert.Error(t, err, "seqDecode(%q)", s)
		}
	})
}

func TestDecompose(t *testing.T) {
	doc := NewDocument()
	doc.AddSection(SectionText, "").Set(AttrValue, "some body text\n")
	doc.AddSection(SectionField, "Name").Set(AttrValue, "Widget")
	doc.AddSection(SectionField, "Price").Set(AttrValue, "9.99")

	vals := decompose(doc)

	var seqs, keyed []attrValue
	for _, v := range vals {
		if v.Duck == duckSequence {
			seqs = append(seqs, v)
		} else {
			keyed = append(keyed, v)
		}
	}

	// One sequence row per named section, numbered in insertion order.
	require.Len(t, seqs, 2)
	assert.Equal(t, seqKey(SectionField, "Name"), seqs[0].Key)
	assert.Equal(t, seqEncode(0), seqs[0].Text)
	assert.Equal(t, seqKey(SectionField, "Price"), seqs[1].Key)
	assert.Equal(t, seqEncode(1), seqs[1].Text)

	require.Len(t, keyed, 3)
	byKey := make(map[FieldKey]attrValue)
	for _, v := range keyed {
		byKey[v.Key] = v
	}
	price := byKey[FieldKey{Kind: SectionField, Named: true, Instance: "Price", Attr: AttrValue}]
	assert.Equal(t, "9.99", price.Text)
	assert.Equal(t, ClassNumeric, price.Class.Class)
	body := byKey[FieldKey{Kind: SectionText, Attr: AttrValue}]
	assert.Equal(t, "some body text\n", body.Text)
	assert.Equal(t, ClassOpaque, body.Class.Class)
}

func TestDecomposeReplayRoundTrip(t *testing.T) {
	doc := NewDocument()
	doc.AddSection(SectionInfo, "").
		Set("author", "alice").
		Set("date", "2024-01-15")
	doc.AddSection(SectionText, "").Set(AttrValue, "line one\nline two")
	doc.AddSection(SectionField, "Charlie").Set(AttrValue, "c")
	doc.AddSection(SectionField, "Alpha").Set(AttrValue, "42 ")
	doc.AddSection(SectionField, "Bravo").Set(AttrValue, "b")
	doc.AddSection(SectionAttachment, "report.pdf").
		Set("size", "1024").
		Set("date", "20240115")

	got, err := replayDecomposed(t, doc)
	require.NoError(t, err)

	// Repeatable sub-collections come back in insertion order, not sorted.
	fields := got.SectionsOf(SectionField)
	require.Len(t, fields, 3)
	assert.Equal(t, "Charlie", fields[0].Name)
	assert.Equal(t, "Alpha", fields[1].Name)
	assert.Equal(t, "Bravo", fields[2].Name)

	// Every value survives byte-for-byte, trailing whitespace included.
	v, ok := got.Section(SectionField, "Alpha").Get(AttrValue)
	require.True(t, ok)
	assert.Equal(t, "42 ", v)

	v, ok = got.Section(SectionText, "").Get(AttrValue)
	require.True(t, ok)
	assert.Equal(t, "line one\nline two", v)

	v, ok = got.Section(SectionInfo, "").Get("author")
	require.True(t, ok)
	assert.Equal(t, "alice", v)

	att := got.Section(SectionAttachment, "report.pdf")
	require.NotNil(t, att)
	v, _ = att.Get("size")
	assert.Equal(t, "1024", v)
	v, _ = att.Get("date")
	assert.Equal(t, "20240115", v)
}

func TestReplayRejectsMalformedSequence(t *testing.T) {
	rows := []attrRow{
		{
			Field: FieldInfo{ID: 1, EntKind: SectionField, Named: true, Instance: "X"},
			Duck:  duckSequence,
			Text:  "not a sequence",
		},
	}
	_, err := replay(rows)
	assert.Error(t, err)
}

// replayDecomposed simulates the save/read path without a backend:
// decompose, assign synthetic field ids, order rows the way the read query
// does, and replay.
func replayDecomposed(t *testing.T, doc *Document) (*Document, error) {
	t.Helper()

	vals := decompose(doc)
	ids := make(map[FieldKey]int64)
	var next int64 = 1
	rows := make([]attrRow, 0, len(vals))
	for _, v := range vals {
		if _, ok := ids[v.Key]; !ok {
			ids[v.Key] = next
			next++
		}
		rows = append(rows, attrRow{
			Field: FieldInfo{
				ID:       ids[v.Key],
				EntKind:  v.Key.Kind,
				Named:    v.Key.Named,
				Instance: v.Key.Instance,
				Attr:     v.Key.Attr,
			},
			Duck: v.Duck,
			Text: v.Text,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Duck != rows[j].Duck {
			return rows[i].Duck < rows[j].Duck
		}
		return rows[i].Field.ID < rows[j].Field.ID
	})
	return replay(rows)
}
