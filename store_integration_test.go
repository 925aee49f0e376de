package strata_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-store/strata"
	"github.com/strata-store/strata/testutil"
)

func testDoc(body string) *strata.Document {
	doc := strata.NewDocument()
	doc.AddSection(strata.SectionText, "").Set(strata.AttrValue, body)
	return doc
}

func TestSaveVersioning_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.DB(t)
	store := strata.Open(db)
	ctx := context.Background()
	id := strata.DocID{Container: "Main", Name: "HomePage"}

	require.NoError(t, store.CreateContainer(ctx, "Main"))

	ids, err := store.ResolveNames(ctx, "alice", "bob")
	require.NoError(t, err)
	alice, bob := ids["alice"], ids["bob"]

	// Sequential saves number 1..N with no gaps.
	v, err := store.Save(ctx, id, testDoc("first"), alice, strata.SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = store.Save(ctx, id, testDoc("second"), bob, strata.SaveOptions{Comment: "minor edit"})
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	v, err = store.Save(ctx, id, testDoc("third"), alice, strata.SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	// Exactly one latest row for the identity at any time.
	var latestCount int
	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM strata_revisions WHERE namespace = 1 AND version >= 1").Scan(&latestCount)
	require.NoError(t, err)
	assert.Equal(t, 1, latestCount)

	doc, info, err := store.ReadRevision(ctx, id, 0)
	require.NoError(t, err)
	assert.True(t, info.IsLatest)
	assert.Equal(t, 3, info.Version)
	assert.Equal(t, alice, info.AuthorID)
	body, _ := doc.Section(strata.SectionText, "").Get(strata.AttrValue)
	assert.Equal(t, "third", body)

	// Explicit versions read history unchanged.
	doc, info, err = store.ReadRevision(ctx, id, 2)
	require.NoError(t, err)
	assert.False(t, info.IsLatest)
	assert.Equal(t, bob, info.AuthorID)
	assert.Equal(t, "minor edit", info.Comment)
	body, _ = doc.Section(strata.SectionText, "").Get(strata.AttrValue)
	assert.Equal(t, "second", body)
}

func TestAmendInPlace_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.DB(t)
	store := strata.Open(db)
	ctx := context.Background()
	id := strata.DocID{Container: "Main", Name: "Amended"}

	require.NoError(t, store.CreateContainer(ctx, "Main"))

	_, err := store.Save(ctx, id, testDoc("original"), 0, strata.SaveOptions{})
	require.NoError(t, err)
	v, err := store.Save(ctx, id, testDoc("typo fixd"), 0, strata.SaveOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, v)

	// Amend rewrites content under the same version number.
	v, err = store.Save(ctx, id, testDoc("typo fixed"), 0, strata.SaveOptions{AmendInPlace: true})
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	doc, isLatest, err := store.Read(ctx, id, 0)
	require.NoError(t, err)
	assert.True(t, isLatest)
	body, _ := doc.Section(strata.SectionText, "").Get(strata.AttrValue)
	assert.Equal(t, "typo fixed", body)
}

func TestRollback_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.DB(t)
	store := strata.Open(db)
	ctx := context.Background()
	id := strata.DocID{Container: "C", Name: "D"}

	require.NoError(t, store.CreateContainer(ctx, "C"))
	ids, err := store.ResolveNames(ctx, "u1", "u2")
	require.NoError(t, err)
	u1, u2 := ids["u1"], ids["u2"]

	_, err = store.Save(ctx, id, testDoc("v1 payload"), u1, strata.SaveOptions{})
	require.NoError(t, err)
	_, err = store.Save(ctx, id, testDoc("v2 payload"), u2, strata.SaveOptions{})
	require.NoError(t, err)

	restored, err := store.Rollback(ctx, id, u1)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	// The promoted revision keeps its original author and payload.
	doc, info, err := store.ReadRevision(ctx, id, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Version)
	assert.Equal(t, u1, info.AuthorID)
	body, _ := doc.Section(strata.SectionText, "").Get(strata.AttrValue)
	assert.Equal(t, "v1 payload", body)

	// Rollback at version 1 is fatal.
	_, err = store.Rollback(ctx, id, u1)
	assert.True(t, strata.IsNoPriorRevisionErr(err))

	// Rollback of a missing document is not found.
	_, err = store.Rollback(ctx, strata.DocID{Container: "C", Name: "Nope"}, u1)
	assert.True(t, strata.IsNotFoundErr(err))
}

func TestRoundTripBytes_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.DB(t)
	store := strata.Open(db)
	ctx := context.Background()
	id := strata.DocID{Container: "Main", Name: "Tricky"}

	require.NoError(t, store.CreateContainer(ctx, "Main"))

	doc := strata.NewDocument()
	doc.AddSection(strata.SectionText, "").Set(strata.AttrValue, "line with trailing spaces   \n")
	doc.AddSection(strata.SectionField, "Count").Set(strata.AttrValue, "42 ")
	doc.AddSection(strata.SectionField, "Stamp").Set(strata.AttrValue, "20240115")

	_, err := store.Save(ctx, id, doc, 0, strata.SaveOptions{})
	require.NoError(t, err)

	got, _, err := store.Read(ctx, id, 0)
	require.NoError(t, err)

	// Classified values come back byte-for-byte, whitespace included.
	v, _ := got.Section(strata.SectionText, "").Get(strata.AttrValue)
	assert.Equal(t, "line with trailing spaces   \n", v)
	v, _ = got.Section(strata.SectionField, "Count").Get(strata.AttrValue)
	assert.Equal(t, "42 ", v)
	v, _ = got.Section(strata.SectionField, "Stamp").Get(strata.AttrValue)
	assert.Equal(t, "20240115", v)

	// The numeric-and-date value populated both extra projections.
	var numRows, timeRows int
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM strata_values_num").Scan(&numRows))
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM strata_values_time").Scan(&timeRows))
	assert.Equal(t, 2, numRows)  // "42 " and "20240115"
	assert.Equal(t, 1, timeRows) // "20240115"
}

func TestReserve_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.DB(t)
	store := strata.Open(db)
	ctx := context.Background()
	id := strata.DocID{Container: "Main", Name: "Pending"}

	require.NoError(t, store.CreateContainer(ctx, "Main"))
	require.NoError(t, store.Reserve(ctx, id))

	// A dangling placeholder is not a document.
	exists, err := store.Exists(ctx, id)
	require.NoError(t, err)
	assert.False(t, exists)
	_, _, err = store.Read(ctx, id, 0)
	assert.True(t, strata.IsNotFoundErr(err))

	names, err := store.Documents(ctx, "Main")
	require.NoError(t, err)
	assert.Empty(t, names)

	// First save promotes the placeholder.
	v, err := store.Save(ctx, id, testDoc("now real"), 0, strata.SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	exists, err = store.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, exists)

	var danglingCount int
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM strata_revisions WHERE namespace = 3").Scan(&danglingCount))
	assert.Zero(t, danglingCount)
}

func TestRename_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.DB(t)
	store := strata.Open(db)
	ctx := context.Background()
	oldID := strata.DocID{Container: "Main", Name: "OldName"}
	newID := strata.DocID{Container: "Other", Name: "NewName"}

	require.NoError(t, store.CreateContainer(ctx, "Main"))
	require.NoError(t, store.CreateContainer(ctx, "Other"))

	_, err := store.Save(ctx, oldID, testDoc("v1"), 0, strata.SaveOptions{})
	require.NoError(t, err)
	_, err = store.Save(ctx, oldID, testDoc("v2"), 0, strata.SaveOptions{})
	require.NoError(t, err)

	require.NoError(t, store.Rename(ctx, oldID, newID))

	exists, err := store.Exists(ctx, oldID)
	require.NoError(t, err)
	assert.False(t, exists)

	doc, _, err := store.Read(ctx, newID, 0)
	require.NoError(t, err)
	body, _ := doc.Section(strata.SectionText, "").Get(strata.AttrValue)
	assert.Equal(t, "v2", body)

	// History keeps the pre-rename identity.
	doc, info, err := store.ReadRevision(ctx, oldID, 1)
	require.NoError(t, err)
	assert.False(t, info.IsLatest)
	body, _ = doc.Section(strata.SectionText, "").Get(strata.AttrValue)
	assert.Equal(t, "v1", body)

	// Renaming a missing document is not found.
	err = store.Rename(ctx, oldID, strata.DocID{Container: "Main", Name: "X"})
	assert.True(t, strata.IsNotFoundErr(err))
}

func TestEnumerate_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.DB(t)
	store := strata.Open(db)
	ctx := context.Background()

	require.NoError(t, store.CreateContainer(ctx, "Beta"))
	require.NoError(t, store.CreateContainer(ctx, "Alpha"))
	require.NoError(t, store.CreateContainer(ctx, "Alpha/Inner"))

	err := store.CreateContainer(ctx, "Alpha")
	assert.ErrorIs(t, err, strata.ErrContainerExists)
	err = store.CreateContainer(ctx, "Missing/Child")
	assert.ErrorIs(t, err, strata.ErrNoContainer)

	for _, name := range []string{"Zulu", "Echo", "Mike"} {
		_, err := store.Save(ctx, strata.DocID{Container: "Alpha", Name: name}, testDoc(name), 0, strata.SaveOptions{})
		require.NoError(t, err)
	}

	docs, err := store.Documents(ctx, "Alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"Echo", "Mike", "Zulu"}, docs)

	top, err := store.Containers(ctx, "", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Beta"}, top)

	all, err := store.Containers(ctx, "", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Alpha/Inner", "Beta"}, all)

	// Sub-containers are not documents and vice versa.
	docs, err = store.Documents(ctx, "Beta")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestLocks_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.DB(t)
	store := strata.Open(db)
	ctx := context.Background()
	id := strata.DocID{Container: "Main", Name: "Contended"}

	require.NoError(t, store.CreateContainer(ctx, "Main"))
	ids, err := store.ResolveNames(ctx, "alice", "bob")
	require.NoError(t, err)
	alice, bob := ids["alice"], ids["bob"]

	ok, err := store.AcquireLock(ctx, id, alice)
	require.NoError(t, err)
	assert.True(t, ok)

	// Contention is data, not an error.
	ok, err = store.AcquireLock(ctx, id, bob)
	require.NoError(t, err)
	assert.False(t, ok)

	// Re-acquire by the holder succeeds.
	ok, err = store.AcquireLock(ctx, id, alice)
	require.NoError(t, err)
	assert.True(t, ok)

	holder, err := store.LockHolder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, alice, holder)

	// Release by a non-holder is a no-op.
	require.NoError(t, store.ReleaseLock(ctx, id, bob))
	holder, err = store.LockHolder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, alice, holder)

	require.NoError(t, store.ReleaseLock(ctx, id, alice))
	ok, err = store.AcquireLock(ctx, id, bob)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLeases_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.DB(t)
	store := strata.Open(db)
	ctx := context.Background()
	id := strata.DocID{Container: "Main", Name: "Leased"}

	require.NoError(t, store.CreateContainer(ctx, "Main"))
	ids, err := store.ResolveNames(ctx, "alice")
	require.NoError(t, err)
	alice := ids["alice"]

	l, err := store.Lease(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, l)

	expiry := time.Now().UTC().Add(time.Hour)
	require.NoError(t, store.SetLease(ctx, id, &strata.Lease{HolderID: alice, ExpiresAt: expiry}))

	l, err = store.Lease(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, alice, l.HolderID)
	assert.NotEqual(t, uuid.Nil, l.Token)
	assert.WithinDuration(t, expiry, l.ExpiresAt, time.Second)

	// Sweep before expiry reclaims nothing.
	n, err := store.SweepLeases(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, n)

	// Sweep past expiry reclaims the lease.
	n, err = store.SweepLeases(ctx, expiry.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	l, err = store.Lease(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, l)

	// Setting none deletes.
	require.NoError(t, store.SetLease(ctx, id, &strata.Lease{HolderID: alice, ExpiresAt: expiry}))
	require.NoError(t, store.SetLease(ctx, id, nil))
	l, err = store.Lease(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestAccess_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.DB(t)
	store := strata.Open(db)
	ctx := context.Background()

	require.NoError(t, store.CreateContainer(ctx, "Restricted"))
	require.NoError(t, store.CreateContainer(ctx, "Open"))

	ids, err := store.ResolveNames(ctx, "TeamA", "member", "outsider", "root")
	require.NoError(t, err)

	// member belongs to TeamA; root belongs to the admin group.
	_, err = db.ExecContext(ctx,
		"INSERT INTO strata_groups (group_id, member_id) VALUES ($1, $2), ($3, $4)",
		ids["TeamA"], ids["member"], strata.NameIDAdminGroup, ids["root"])
	require.NoError(t, err)

	guarded := strata.NewDocument()
	guarded.AddSection(strata.SectionText, "").Set(strata.AttrValue, "guarded")
	guarded.AddSection(strata.SectionPreference, "ALLOWWEBVIEW").Set(strata.AttrValue, "TeamA")
	_, err = store.Save(ctx, strata.DocID{Container: "Restricted", Name: "Guarded"}, guarded, 0, strata.SaveOptions{})
	require.NoError(t, err)

	open := strata.NewDocument()
	open.AddSection(strata.SectionText, "").Set(strata.AttrValue, "open")
	open.AddSection(strata.SectionPreference, "DENYTOPICVIEW").Set(strata.AttrValue, "")
	_, err = store.Save(ctx, strata.DocID{Container: "Open", Name: "Public"}, open, 0, strata.SaveOptions{})
	require.NoError(t, err)

	resolver := store.NewResolver(nil)
	guardedID := strata.DocID{Container: "Restricted", Name: "Guarded"}

	// Non-member is shut out by the synthesized not-in-list rule.
	d, err := resolver.Explain(ctx, ids["outsider"], "VIEW", guardedID)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "container")

	// Group membership grants access through the allow list.
	d, err = resolver.Explain(ctx, ids["member"], "VIEW", guardedID)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// Administrators bypass every rule.
	d, err = resolver.Explain(ctx, ids["root"], "VIEW", guardedID)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, "administrator", d.Reason)

	// The container allow list does not gate other modes.
	allowed, err := resolver.Check(ctx, ids["outsider"], "CHANGE", guardedID)
	require.NoError(t, err)
	assert.True(t, allowed)

	// An empty document-scope deny permits any non-administrator.
	d, err = resolver.Explain(ctx, ids["outsider"], "VIEW", strata.DocID{Container: "Open", Name: "Public"})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Contains(t, d.Reason, "document")

	// Container-level checks use root and container rules only.
	d, err = resolver.ExplainContainer(ctx, ids["outsider"], "VIEW", "Restricted")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestAccessRecapture_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.DB(t)
	store := strata.Open(db)
	ctx := context.Background()
	id := strata.DocID{Container: "Main", Name: "Doc"}

	require.NoError(t, store.CreateContainer(ctx, "Main"))
	ids, err := store.ResolveNames(ctx, "intruder")
	require.NoError(t, err)

	restricted := strata.NewDocument()
	restricted.AddSection(strata.SectionPreference, "DENYTOPICVIEW").Set(strata.AttrValue, "intruder")
	_, err = store.Save(ctx, id, restricted, 0, strata.SaveOptions{})
	require.NoError(t, err)

	d, err := store.NewResolver(nil).Explain(ctx, ids["intruder"], "VIEW", id)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	// A new revision without the rule replaces the captured rule set.
	_, err = store.Save(ctx, id, testDoc("no rules now"), 0, strata.SaveOptions{})
	require.NoError(t, err)

	d, err = store.NewResolver(nil).Explain(ctx, ids["intruder"], "VIEW", id)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// Rollback restores the old revision's rules from its content.
	_, err = store.Rollback(ctx, id, 0)
	require.NoError(t, err)

	d, err = store.NewResolver(nil).Explain(ctx, ids["intruder"], "VIEW", id)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestTextSearch_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.DB(t)
	store := strata.Open(db)
	ctx := context.Background()

	require.NoError(t, store.CreateContainer(ctx, "Wiki"))

	save := func(name, body string) {
		_, err := store.Save(ctx, strata.DocID{Container: "Wiki", Name: name}, testDoc(body), 0, strata.SaveOptions{})
		require.NoError(t, err)
	}
	save("Foxes", "The quick brown fox\njumps over the lazy dog\n")
	save("Cats", "cats sleep all day\nthe Quick cat naps\n")
	save("Empty", "nothing relevant here\n")

	hits, err := store.TextSearch(ctx, "quick", "Wiki", strata.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, []string{"The quick brown fox"}, hits["Foxes"])
	assert.Equal(t, []string{"the Quick cat naps"}, hits["Cats"])

	hits, err = store.TextSearch(ctx, "quick", "Wiki", strata.SearchOptions{CaseSensitive: true})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, []string{"The quick brown fox"}, hits["Foxes"])

	hits, err = store.TextSearch(ctx, "quick*fox", "Wiki", strata.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits, "Foxes")

	// Only latest revisions are searched.
	save("Foxes", "all new text\n")
	hits, err = store.TextSearch(ctx, "quick", "Wiki", strata.SearchOptions{})
	require.NoError(t, err)
	assert.NotContains(t, hits, "Foxes")
}

func TestSilentNoopSave_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.DB(t)
	store := strata.Open(db)
	ctx := context.Background()

	// Malformed identity and missing container are silent no-ops.
	v, err := store.Save(ctx, strata.DocID{}, testDoc("x"), 0, strata.SaveOptions{})
	require.NoError(t, err)
	assert.Zero(t, v)

	v, err = store.Save(ctx, strata.DocID{Container: "Nowhere", Name: "Doc"}, testDoc("x"), 0, strata.SaveOptions{})
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestPurge_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.DB(t)
	store := strata.Open(db)
	ctx := context.Background()
	id := strata.DocID{Container: "Main", Name: "Doomed"}

	require.NoError(t, store.CreateContainer(ctx, "Main"))
	_, err := store.Save(ctx, id, testDoc("v1"), 0, strata.SaveOptions{})
	require.NoError(t, err)
	_, err = store.Save(ctx, id, testDoc("v2"), 0, strata.SaveOptions{})
	require.NoError(t, err)
	ok, err := store.AcquireLock(ctx, id, 1)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Purge(ctx, id))

	exists, err := store.Exists(ctx, id)
	require.NoError(t, err)
	assert.False(t, exists)
	_, _, err = store.Read(ctx, id, 1)
	assert.True(t, strata.IsNotFoundErr(err))

	holder, err := store.LockHolder(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, holder)

	var valueRows int
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM strata_values_text").Scan(&valueRows))
	assert.Zero(t, valueRows)
}

func TestDictionaryConvergence_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.DB(t)
	ctx := context.Background()

	// Two stores with independent caches resolve the same new name to the
	// same id.
	s1 := strata.Open(db)
	s2 := strata.Open(db)

	a, err := s1.ResolveNames(ctx, "BrandNewName")
	require.NoError(t, err)
	b, err := s2.ResolveNames(ctx, "BrandNewName")
	require.NoError(t, err)
	assert.Equal(t, a["BrandNewName"], b["BrandNewName"])

	// Repeated resolution is stable.
	c, err := s1.ResolveNames(ctx, "BrandNewName")
	require.NoError(t, err)
	assert.Equal(t, a["BrandNewName"], c["BrandNewName"])

	// Well-known names keep their reserved ids.
	wk, err := s1.ResolveNames(ctx, "", "AdminGroup", "EveryoneGroup")
	require.NoError(t, err)
	assert.Equal(t, strata.NameIDEmpty, wk[""])
	assert.Equal(t, strata.NameIDAdminGroup, wk["AdminGroup"])
	assert.Equal(t, strata.NameIDEveryoneGroup, wk["EveryoneGroup"])
}

func TestMigrator_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.EmptyDB(t)
	ctx := context.Background()
	m := strata.NewMigrator(db)

	// Operations before migration surface the missing schema.
	store := strata.Open(db)
	_, err := store.ResolveNames(ctx, "anything")
	assert.True(t, strata.IsMissingSchemaErr(err))

	require.NoError(t, m.Migrate(ctx))
	// Idempotent.
	require.NoError(t, m.Migrate(ctx))

	status, err := m.GetStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.RootSeeded)
	assert.GreaterOrEqual(t, status.NameCount, int64(15))
	assert.GreaterOrEqual(t, status.FieldCount, int64(5))
	assert.GreaterOrEqual(t, status.IndexCount, 6)
	assert.Zero(t, status.RevisionCount)

	require.NoError(t, store.CreateContainer(ctx, "Works"))
	_, err = store.Save(ctx, strata.DocID{Container: "Works", Name: "Now"}, testDoc("ok"), 0, strata.SaveOptions{})
	require.NoError(t, err)
}
