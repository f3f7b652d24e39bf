package wildcard

import (
	"errors"
	"sort"
	"strings"
	"testing"
)

func mustStore(t *testing.T, lists map[string][]string) *Store {
	t.Helper()
	var ls []*List
	for name, entries := range lists {
		ls = append(ls, NewList(name, entries))
	}
	s, err := NewStore(ls...)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return s
}

func TestResolve_Identity(t *testing.T) {
	r := NewResolver(mustStore(t, nil))
	tests := []string{
		"",
		"a plain prompt",
		"snake__case and $$ and @@ and |",
		"unicode ✓ text, 日本語",
	}
	for _, tpl := range tests {
		got, err := r.Resolve(tpl, NewContext(1))
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", tpl, err)
		}
		if got != tpl {
			t.Errorf("Resolve(%q) = %q, want unchanged", tpl, got)
		}
	}
}

func TestResolve_Wildcards(t *testing.T) {
	r := NewResolver(mustStore(t, map[string][]string{
		"color":         {"red"},
		"animals/cat":   {"tabby"},
		"nested":        {"__color__ __animals/cat__"},
		"with_variants": {"{big|big}"},
	}))

	tests := []struct {
		tpl  string
		want string
	}{
		{"a __color__ ball", "a red ball"},
		{"__animals/cat__", "tabby"},
		{"__nested__!", "red tabby!"},
		{"__with_variants__ dog", "big dog"},
		{"{__color__|__color__}", "red"},
	}
	for _, tt := range tests {
		t.Run(tt.tpl, func(t *testing.T) {
			got, err := r.Resolve(tt.tpl, NewContext(1))
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.tpl, got, tt.want)
			}
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	r := NewResolver(mustStore(t, map[string][]string{
		"self":  {"again __self__"},
		"ping":  {"__pong__"},
		"pong":  {"__ping__"},
		"empty": {},
	}))

	tests := []struct {
		name string
		tpl  string
		want error
	}{
		{"missing wildcard", "__nope__", ErrWildcardNotFound},
		{"empty list", "__empty__", ErrEmptyWildcardList},
		{"malformed", "{a|b", ErrMalformedVariant},
		{"too many picks", "{4$$a|b|c}", ErrInsufficientOptions},
		{"self reference", "__self__", ErrMaxRecursion},
		{"mutual reference", "__ping__", ErrWildcardCycle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.tpl, NewContext(1))
			if !errors.Is(err, tt.want) {
				t.Errorf("Resolve(%q) error = %v, want %v", tt.tpl, err, tt.want)
			}
		})
	}
}

func TestResolve_DepthLimit(t *testing.T) {
	lists := map[string][]string{}
	for i := 0; i < 10; i++ {
		lists[string(rune('a'+i))] = []string{"__" + string(rune('a'+i+1)) + "__"}
	}
	lists["k"] = []string{"bottom"}
	store := mustStore(t, lists)

	got, err := NewResolver(store).Resolve("__a__", NewContext(1))
	if err != nil || got != "bottom" {
		t.Fatalf("Resolve() = %q, %v; want bottom", got, err)
	}

	_, err = NewResolver(store, WithMaxDepth(5)).Resolve("__a__", NewContext(1))
	if !errors.Is(err, ErrMaxRecursion) {
		t.Errorf("Resolve() with depth 5 error = %v, want ErrMaxRecursion", err)
	}
	if errors.Is(err, ErrWildcardCycle) {
		t.Errorf("depth overflow reported as a cycle: %v", err)
	}
}

func TestResolve_MultiSelect(t *testing.T) {
	r := NewResolver(mustStore(t, nil))

	for seed := int64(0); seed < 20; seed++ {
		got, err := r.Resolve("{3$$A|B|C}", NewContext(seed))
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if got != "A, B, C" {
			t.Errorf("seed %d: Resolve({3$$A|B|C}) = %q, want all three in order", seed, got)
		}
	}

	got, err := r.Resolve("{2$$A|B@@ + }", NewContext(3))
	if err != nil || got != "A + B" {
		t.Errorf("custom separator = %q, %v; want %q", got, err, "A + B")
	}

	if got, err := r.Resolve("[{0$$A|B}]", NewContext(3)); !errors.Is(err, ErrMalformedVariant) {
		t.Errorf("zero picks = %q, %v; want ErrMalformedVariant", got, err)
	}
}

func TestResolve_BracketGlob(t *testing.T) {
	r := NewResolver(mustStore(t, map[string][]string{
		"colors/warm": {"red"},
		"colors/cool": {"blue"},
		"colors/neon": {"pink"},
	}))

	seen := map[string]bool{}
	for seed := int64(0); seed < 20; seed++ {
		got, err := r.Resolve("__colors/[wc]*__", NewContext(seed))
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		seen[got] = true
	}
	if seen["pink"] || len(seen) == 0 {
		t.Errorf("bracket glob resolved to %v, want only red and blue", seen)
	}
}

func TestResolve_MultiSelectDistinct(t *testing.T) {
	r := NewResolver(mustStore(t, nil))
	for seed := int64(0); seed < 50; seed++ {
		got, err := r.Resolve("{2$$a|b|c|d}", NewContext(seed))
		if err != nil {
			t.Fatal(err)
		}
		parts := strings.Split(got, ", ")
		if len(parts) != 2 || parts[0] == parts[1] {
			t.Fatalf("seed %d: picks %q are not two distinct options", seed, got)
		}
		if !sort.StringsAreSorted(parts) {
			t.Errorf("seed %d: picks %q not in option order", seed, got)
		}
	}
}

func TestResolve_RangeCount(t *testing.T) {
	r := NewResolver(mustStore(t, nil))
	seen := map[int]bool{}
	for seed := int64(0); seed < 100; seed++ {
		got, err := r.Resolve("{1-3$$a|b|c}", NewContext(seed))
		if err != nil {
			t.Fatal(err)
		}
		seen[len(strings.Split(got, ", "))] = true
	}
	for n := 1; n <= 3; n++ {
		if !seen[n] {
			t.Errorf("range {1-3$$...} never produced %d picks", n)
		}
	}
}

func TestResolve_CyclingAcrossDraws(t *testing.T) {
	r := NewResolver(mustStore(t, map[string][]string{
		"color":  {"red", "blue"},
		"animal": {"cat", "dog"},
	}))

	for seed := int64(0); seed < 10; seed++ {
		rc := NewContext(seed)
		var colors []string
		for i := 0; i < 4; i++ {
			got, err := r.Resolve("a __color__ __animal__", rc)
			if err != nil {
				t.Fatal(err)
			}
			colors = append(colors, strings.Fields(got)[1])
		}
		if colors[0] == colors[1] || colors[2] == colors[3] {
			t.Errorf("seed %d: colors %v repeat before the list is exhausted", seed, colors)
		}
	}
}

func TestResolve_VariantCyclePolicy(t *testing.T) {
	r := NewResolver(mustStore(t, nil))
	rc := NewContext(9, WithVariantPolicy(VariantCycle))

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		got, err := r.Resolve("{w|x|y|z}", rc)
		if err != nil {
			t.Fatal(err)
		}
		if seen[got] {
			t.Fatalf("draw %d repeated %q under cycle policy", i, got)
		}
		seen[got] = true
	}
}

func TestResolve_ContextsAreIndependent(t *testing.T) {
	r := NewResolver(mustStore(t, map[string][]string{
		"n": {"1", "2", "3", "4", "5"},
	}))

	draw := func(rc *Context, k int) []string {
		var out []string
		for i := 0; i < k; i++ {
			s, err := r.Resolve("__n__ {a|b|c}", rc)
			if err != nil {
				t.Fatal(err)
			}
			out = append(out, s)
		}
		return out
	}

	want := draw(NewContext(11), 6)

	a, b := NewContext(11), NewContext(11)
	draw(b, 3)
	got := draw(a, 6)
	if strings.Join(got, ";") != strings.Join(want, ";") {
		t.Errorf("drawing from another context changed results:\n got %v\nwant %v", got, want)
	}
}

func TestResolve_NilContext(t *testing.T) {
	r := NewResolver(mustStore(t, nil))
	if _, err := r.Resolve("x", nil); err == nil {
		t.Error("Resolve() with nil context returned nil error")
	}
}

func TestParseVariantPolicy(t *testing.T) {
	if ParseVariantPolicy("Cycle") != VariantCycle {
		t.Error("ParseVariantPolicy(Cycle) != VariantCycle")
	}
	if ParseVariantPolicy("whatever") != VariantRandom {
		t.Error("unknown policy did not fall back to random")
	}
}
