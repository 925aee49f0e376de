package strata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDictCache(t *testing.T) {
	c := NewDictCache()

	_, ok := c.name("alpha")
	assert.False(t, ok)

	c.putName("alpha", 7)
	id, ok := c.name("alpha")
	require.True(t, ok)
	assert.Equal(t, int64(7), id)

	tuple := fieldTuple{KindID: 4, Named: true, InstanceID: 14, AttrID: 9}
	info := FieldInfo{ID: 101, Kind: KindNumeric, EntKind: SectionField, Named: true, Instance: "Price", Attr: AttrValue}
	c.putField(tuple, info)

	got, ok := c.field(tuple)
	require.True(t, ok)
	assert.Equal(t, info, got)

	// The same entry is reachable by id for the read path.
	got, ok = c.fieldByID(101)
	require.True(t, ok)
	assert.Equal(t, info, got)

	names, fields := c.Size()
	assert.Equal(t, 1, names)
	assert.Equal(t, 1, fields)

	c.Clear()
	names, fields = c.Size()
	assert.Zero(t, names)
	assert.Zero(t, fields)
	_, ok = c.fieldByID(101)
	assert.False(t, ok)
}
