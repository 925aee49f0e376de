package strata

import "sync"

// fieldTuple is the unique coordinate of a field after name interning.
type fieldTuple struct {
	KindID     int64
	Named      bool
	InstanceID int64
	AttrID     int64
}

// FieldInfo is a resolved field dictionary entry: the interned id, the
// permanent value-kind classifier, and the coordinate strings needed to
// rebuild documents on read.
type FieldInfo struct {
	ID       int64
	Kind     ValueKind
	EntKind  string
	Named    bool
	Instance string
	Attr     string
}

// DictCache caches name and field dictionary entries for a process lifetime.
// Entries are populated on successful lookup or insert and never invalidated
// otherwise: names and fields are immutable once assigned, so a populated
// entry can only ever be correct.
//
// A DictCache is safe for concurrent use and may be shared across Stores to
// give every request read-through access to the same interning state.
type DictCache struct {
	mu         sync.RWMutex
	names      map[string]int64
	fields     map[fieldTuple]FieldInfo
	fieldsByID map[int64]FieldInfo
}

// NewDictCache creates an empty dictionary cache.
func NewDictCache() *DictCache {
	return &DictCache{
		names:      make(map[string]int64),
		fields:     make(map[fieldTuple]FieldInfo),
		fieldsByID: make(map[int64]FieldInfo),
	}
}

// name returns the cached id for a name.
func (c *DictCache) name(s string) (int64, bool) {
	c.mu.RLock()
	id, ok := c.names[s]
	c.mu.RUnlock()
	return id, ok
}

// putName records a resolved name id.
func (c *DictCache) putName(s string, id int64) {
	c.mu.Lock()
	c.names[s] = id
	c.mu.Unlock()
}

// field returns the cached entry for a field coordinate.
func (c *DictCache) field(t fieldTuple) (FieldInfo, bool) {
	c.mu.RLock()
	f, ok := c.fields[t]
	c.mu.RUnlock()
	return f, ok
}

// fieldByID returns the cached entry for a field id.
func (c *DictCache) fieldByID(id int64) (FieldInfo, bool) {
	c.mu.RLock()
	f, ok := c.fieldsByID[id]
	c.mu.RUnlock()
	return f, ok
}

// putField records a resolved field entry under both keys.
func (c *DictCache) putField(t fieldTuple, f FieldInfo) {
	c.mu.Lock()
	c.fields[t] = f
	c.fieldsByID[f.ID] = f
	c.mu.Unlock()
}

// Size returns the number of cached names and fields.
// Useful for monitoring cache growth.
func (c *DictCache) Size() (names, fields int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names), len(c.fields)
}

// Clear removes all entries. Only useful in tests; in production the cache
// contents stay valid for the process lifetime.
func (c *DictCache) Clear() {
	c.mu.Lock()
	c.names = make(map[string]int64)
	c.fields = make(map[fieldTuple]FieldInfo)
	c.fieldsByID = make(map[int64]FieldInfo)
	c.mu.Unlock()
}
