package strata

// Document is the structured representation consumed from the host: an
// ordered set of sections, each a named sub-record with keyed scalar string
// attributes. Sections sharing a kind with non-empty names form a repeatable
// sub-collection whose insertion order is persisted as data (sequence rows)
// and recovered exactly on read. Sections with an empty name are singletons.
//
// All attribute values are strings; classification into numeric or datetime
// projections happens at save time and never alters the stored string form.
type Document struct {
	sections []*Section
}

// Section is one named sub-record of a document.
type Section struct {
	Kind string
	Name string

	keys  []string
	attrs map[string]string
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{}
}

// AddSection appends a section of the given kind and instance name.
// An empty name marks a singleton section. Insertion order among sections
// of the same kind is significant and survives a save/read round trip.
func (d *Document) AddSection(kind, name string) *Section {
	s := &Section{Kind: kind, Name: name, attrs: make(map[string]string)}
	d.sections = append(d.sections, s)
	return s
}

// Sections returns all sections in insertion order.
func (d *Document) Sections() []*Section {
	return d.sections
}

// Section returns the first section matching kind and name, or nil.
func (d *Document) Section(kind, name string) *Section {
	for _, s := range d.sections {
		if s.Kind == kind && s.Name == name {
			return s
		}
	}
	return nil
}

// SectionsOf returns all sections of the given kind in insertion order.
func (d *Document) SectionsOf(kind string) []*Section {
	var out []*Section
	for _, s := range d.sections {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// Set stores an attribute value, preserving first-set key order.
func (s *Section) Set(key, value string) *Section {
	if _, ok := s.attrs[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.attrs[key] = value
	return s
}

// Get returns the attribute value for key.
func (s *Section) Get(key string) (string, bool) {
	v, ok := s.attrs[key]
	return v, ok
}

// Keys returns the attribute keys in first-set order.
func (s *Section) Keys() []string {
	return s.keys
}

// Len returns the number of attributes.
func (s *Section) Len() int {
	return len(s.attrs)
}
