package wildcard

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Wildcard file extensions recognised by Load.
const (
	extText = ".txt"
	extYAML = ".yaml"
	extYML  = ".yml"
)

// Store maps wildcard names to lists. It is safe for concurrent use.
//
// A store created by Load walks its directory the first time a name is
// looked up; Reload discards the index so the next lookup walks again.
type Store struct {
	root  string
	fsys  fs.FS
	state atomic.Pointer[storeState]
}

type storeState struct {
	once  sync.Once
	lists map[string]*List
	names []string
	err   error
}

// Load returns a store backed by the directory tree at root.
// Every .txt file becomes one list; .yaml and .yml files may contribute
// several namespaced lists.
func Load(root string) (*Store, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("wildcard: open root %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("wildcard: root %q is not a directory", root)
	}
	return LoadFS(os.DirFS(root), root), nil
}

// LoadFS returns a store backed by an fs.FS. root is only used for
// reporting.
func LoadFS(fsys fs.FS, root string) *Store {
	s := &Store{root: root, fsys: fsys}
	s.state.Store(&storeState{})
	return s
}

// NewStore creates an in-memory store from ready-made lists.
func NewStore(lists ...*List) (*Store, error) {
	st := &storeState{lists: make(map[string]*List, len(lists))}
	for _, l := range lists {
		if _, dup := st.lists[l.Name()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateWildcard, l.Name())
		}
		st.lists[l.Name()] = l
	}
	st.names = sortedKeys(st.lists)
	st.once.Do(func() {})

	s := &Store{}
	s.state.Store(st)
	return s, nil
}

// Root returns the directory the store was loaded from, or "" for an
// in-memory store.
func (s *Store) Root() string {
	return s.root
}

// Get returns the list registered under name. Names containing glob
// metacharacters (see path.Match) return a merged list of every matching
// wildcard, in name order.
func (s *Store) Get(name string) (*List, error) {
	st, err := s.index()
	if err != nil {
		return nil, err
	}
	if l, ok := st.lists[name]; ok {
		return l, nil
	}
	if !isGlob(name) {
		return nil, fmt.Errorf("%w: %s", ErrWildcardNotFound, name)
	}

	var merged []string
	matched := false
	for _, n := range st.names {
		ok, err := path.Match(name, n)
		if err != nil {
			return nil, fmt.Errorf("%w: bad pattern %q: %v", ErrWildcardNotFound, name, err)
		}
		if ok {
			matched = true
			merged = append(merged, st.lists[n].entries...)
		}
	}
	if !matched {
		return nil, fmt.Errorf("%w: %s", ErrWildcardNotFound, name)
	}
	return NewList(name, merged), nil
}

// Names returns all wildcard names in sorted order.
func (s *Store) Names() ([]string, error) {
	st, err := s.index()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(st.names))
	copy(out, st.names)
	return out, nil
}

// Len returns the number of wildcard lists.
func (s *Store) Len() (int, error) {
	st, err := s.index()
	if err != nil {
		return 0, err
	}
	return len(st.lists), nil
}

// Reload drops the current index. The directory is walked again on the
// next lookup. In-memory stores are left untouched.
func (s *Store) Reload() error {
	if s.fsys == nil {
		return nil
	}
	next := &storeState{}
	s.state.Store(next)
	_, err := s.index()
	return err
}

func (s *Store) index() (*storeState, error) {
	st := s.state.Load()
	st.once.Do(func() {
		st.lists, st.err = walk(s.fsys)
		st.names = sortedKeys(st.lists)
	})
	return st, st.err
}

func walk(fsys fs.FS) (map[string]*List, error) {
	lists := make(map[string]*List)
	add := func(l *List) error {
		if _, dup := lists[l.Name()]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateWildcard, l.Name())
		}
		lists[l.Name()] = l
		return nil
	}

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(path.Ext(p))
		if ext != extText && ext != extYAML && ext != extYML {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("wildcard: read %s: %w", p, err)
		}
		name := filepath.ToSlash(strings.TrimSuffix(p, path.Ext(p)))

		if ext == extText {
			return add(NewList(name, parseLines(data)))
		}
		parsed, err := parseYAML(name, data)
		if err != nil {
			return fmt.Errorf("wildcard: parse %s: %w", p, err)
		}
		for _, l := range parsed {
			if err := add(l); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lists, nil
}

// parseLines splits a text wildcard file into entries. Blank lines and
// lines starting with '#' are skipped.
func parseLines(data []byte) []string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var entries []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	return entries
}

func isGlob(name string) bool {
	return strings.ContainsAny(name, "*?[")
}

func sortedKeys(m map[string]*List) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
