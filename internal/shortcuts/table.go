// Package shortcuts holds the trigger-to-replacement table consulted when the
// matcher reports a candidate.
//
// A Table is immutable once built. Lookups are exact and case-sensitive.
// Categories exist only for presentation (listing and searching); the
// replacement path uses the flattened map.
//
// Tables are loaded from a JSON document of the form
//
//	{
//	  "shortcuts": {
//	    "greek_lowercase": { "\\alpha": "α", "\\beta": "β" },
//	    "superscripts":    { "^2": "²" }
//	  }
//	}
//
// Comments and trailing commas are accepted. A built-in table is embedded in
// the binary and a user overlay with the same layout can be merged on top.
package shortcuts

import (
	"sort"
	"strings"
)

// Entry is one trigger and its replacement.
type Entry struct {
	Trigger     string `json:"trigger"`
	Replacement string `json:"replacement"`
	Category    string `json:"category"`
}

// Category groups entries for display.
type Category struct {
	Name    string  `json:"name"`
	Entries []Entry `json:"entries"`
}

// Table is an immutable trigger lookup table.
type Table struct {
	entries    map[string]string
	categories []Category
}

// Empty returns a table with no entries.
func Empty() *Table {
	return &Table{entries: map[string]string{}}
}

// FromMap builds a single-category table from a flat map.
func FromMap(m map[string]string) *Table {
	b := newBuilder()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.add("custom", k, m[k])
	}
	return b.build()
}

// Lookup returns the replacement for an exact trigger.
func (t *Table) Lookup(pattern string) (string, bool) {
	if t == nil {
		return "", false
	}
	r, ok := t.entries[pattern]
	return r, ok
}

// Len returns the number of distinct triggers.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Categories returns the entries grouped in source order.
func (t *Table) Categories() []Category {
	if t == nil {
		return nil
	}
	out := make([]Category, len(t.categories))
	for i, c := range t.categories {
		out[i] = Category{Name: c.Name, Entries: append([]Entry(nil), c.Entries...)}
	}
	return out
}

// Search returns entries whose trigger, replacement or category contains
// query. ASCII case is ignored. An empty query returns every entry.
func (t *Table) Search(query string) []Entry {
	if t == nil {
		return nil
	}
	q := strings.ToLower(query)
	var out []Entry
	for _, c := range t.categories {
		for _, e := range c.Entries {
			if q == "" ||
				strings.Contains(strings.ToLower(e.Trigger), q) ||
				strings.Contains(e.Replacement, query) ||
				strings.Contains(strings.ToLower(e.Category), q) {
				out = append(out, e)
			}
		}
	}
	return out
}

// Merge returns a table containing base overridden by overlay. Overlay
// categories with the same name extend the base category.
func Merge(base, overlay *Table) *Table {
	b := newBuilder()
	for _, t := range []*Table{base, overlay} {
		if t == nil {
			continue
		}
		for _, c := range t.categories {
			for _, e := range c.Entries {
				b.add(c.Name, e.Trigger, e.Replacement)
			}
		}
	}
	return b.build()
}

// builder accumulates entries keeping category and insertion order. A later
// add for an existing trigger replaces it in place.
type builder struct {
	entries map[string]string
	where   map[string][2]int
	cats    []Category
	catIdx  map[string]int
}

func newBuilder() *builder {
	return &builder{
		entries: make(map[string]string),
		where:   make(map[string][2]int),
		catIdx:  make(map[string]int),
	}
}

func (b *builder) add(category, trigger, replacement string) {
	if pos, ok := b.where[trigger]; ok {
		b.cats[pos[0]].Entries[pos[1]].Replacement = replacement
		b.entries[trigger] = replacement
		return
	}
	ci, ok := b.catIdx[category]
	if !ok {
		ci = len(b.cats)
		b.catIdx[category] = ci
		b.cats = append(b.cats, Category{Name: category})
	}
	b.cats[ci].Entries = append(b.cats[ci].Entries, Entry{
		Trigger:     trigger,
		Replacement: replacement,
		Category:    category,
	})
	b.where[trigger] = [2]int{ci, len(b.cats[ci].Entries) - 1}
	b.entries[trigger] = replacement
}

func (b *builder) build() *Table {
	return &Table{entries: b.entries, categories: b.cats}
}
