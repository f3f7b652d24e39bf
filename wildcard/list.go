package wildcard

// List is a named, immutable list of entries loaded from a wildcard file.
// Entries are raw template text and may themselves contain wildcards or
// variant groups; they are resolved only when drawn.
type List struct {
	name    string
	entries []string
}

// NewList creates a List. The entries slice is copied.
func NewList(name string, entries []string) *List {
	cp := make([]string, len(entries))
	copy(cp, entries)
	return &List{name: name, entries: cp}
}

// Name returns the list's wildcard name, e.g. "animals/mammals".
func (l *List) Name() string {
	return l.name
}

// Len returns the number of entries.
func (l *List) Len() int {
	return len(l.entries)
}

// Entry returns the entry at index i.
func (l *List) Entry(i int) string {
	return l.entries[i]
}

// Entries returns a copy of all entries.
func (l *List) Entries() []string {
	cp := make([]string, len(l.entries))
	copy(cp, l.entries)
	return cp
}
