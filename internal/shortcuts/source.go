package shortcuts

import "sync/atomic"

// Source publishes the current table. Readers see either the previous or the
// next table in full, never a partial update.
type Source struct {
	cur atomic.Pointer[Table]
}

// NewSource returns a Source serving t.
func NewSource(t *Table) *Source {
	s := &Source{}
	s.Store(t)
	return s
}

// Lookup resolves pattern against the current table.
func (s *Source) Lookup(pattern string) (string, bool) {
	return s.cur.Load().Lookup(pattern)
}

// Table returns the current table.
func (s *Source) Table() *Table {
	return s.cur.Load()
}

// Store replaces the current table. A nil table is stored as empty.
func (s *Source) Store(t *Table) {
	if t == nil {
		t = Empty()
	}
	s.cur.Store(t)
}
