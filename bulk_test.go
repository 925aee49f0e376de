package strata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkInsertStatements(t *testing.T) {
	t.Run("empty builder renders nothing", func(t *testing.T) {
		b := newBulkInsert("strata_names", "name")
		assert.Nil(t, b.statements())
	})

	t.Run("single chunk", func(t *testing.T) {
		b := newBulkInsert("strata_names", "id", "name")
		b.add(int64(1), "alpha")
		b.add(int64(2), "beta")

		stmts := b.statements()
		require.Len(t, stmts, 1)
		assert.Equal(t,
			"INSERT INTO strata_names (id, name) VALUES ($1, $2), ($3, $4)",
			stmts[0].query)
		assert.Equal(t, []any{int64(1), "alpha", int64(2), "beta"}, stmts[0].args)
	})

	t.Run("conflict clause appended", func(t *testing.T) {
		b := newBulkInsert("strata_names", "name").onConflict("ON CONFLICT (name) DO NOTHING")
		b.add("alpha")

		stmts := b.statements()
		require.Len(t, stmts, 1)
		assert.Equal(t,
			"INSERT INTO strata_names (name) VALUES ($1) ON CONFLICT (name) DO NOTHING",
			stmts[0].query)
	})

	t.Run("chunks at the parameter cap", func(t *testing.T) {
		b := newBulkInsert("strata_values_text", "revision_id", "field_id", "duck", "value")
		rowsPerChunk := maxBulkArgs / 4
		total := rowsPerChunk + 10
		for i := 0; i < total; i++ {
			b.add(int64(1), int64(i), int16(1), "v")
		}

		stmts := b.statements()
		require.Len(t, stmts, 2)
		assert.Len(t, stmts[0].args, rowsPerChunk*4)
		assert.Len(t, stmts[1].args, 10*4)
	})

	t.Run("arity mismatch panics", func(t *testing.T) {
		b := newBulkInsert("strata_names", "id", "name")
		assert.Panics(t, func() { b.add("only one") })
	})
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "$1", placeholders(1))
	assert.Equal(t, "$1, $2, $3", placeholders(3))
	assert.Equal(t, "$5, $6", placeholdersFrom(5, 2))
}
