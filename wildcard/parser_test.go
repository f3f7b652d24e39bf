package wildcard

import (
	"errors"
	"reflect"
	"testing"
)

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		tpl  string
	}{
		{"unclosed brace", "a {b|c"},
		{"stray close", "a b|c}"},
		{"empty group", "a {} b"},
		{"nested unclosed", "{a|{b|c}"},
		{"missing count", "{$$a|b}"},
		{"bad count", "{x$$a|b}"},
		{"inverted range", "{3-1$$a|b|c}"},
		{"zero count", "{0$$a|b}"},
		{"zero range", "{0-0$$a|b}"},
		{"zero lower bound", "{0-2$$a|b}"},
		{"zero upper bound", "{-0$$a|b}"},
		{"no options", "{2$$}"},
		{"bad option", "{a|{}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parse(tt.tpl); !errors.Is(err, ErrMalformedVariant) {
				t.Errorf("parse(%q) error = %v, want ErrMalformedVariant", tt.tpl, err)
			}
		})
	}
}

func TestParse_LiteralUnderscores(t *testing.T) {
	tests := []string{
		"snake__case",
		"trailing __",
		"__ not a name __",
		"a____b",
	}
	for _, tpl := range tests {
		seq, err := parse(tpl)
		if err != nil {
			t.Fatalf("parse(%q) error = %v", tpl, err)
		}
		for _, n := range seq {
			if _, ok := n.(wildcardRef); ok {
				t.Errorf("parse(%q) produced wildcard ref %v", tpl, n)
			}
		}
	}
}

func TestParse_Nodes(t *testing.T) {
	seq, err := parse("a __color__ {x|y} z")
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if len(seq) != 5 {
		t.Fatalf("parse() produced %d nodes, want 5: %#v", len(seq), seq)
	}
	if ref, ok := seq[1].(wildcardRef); !ok || ref.name != "color" {
		t.Errorf("node 1 = %#v, want wildcard color", seq[1])
	}
	if g, ok := seq[3].(*VariantGroup); !ok || !reflect.DeepEqual(g.Options, []string{"x", "y"}) {
		t.Errorf("node 3 = %#v, want group x|y", seq[3])
	}
}

func TestParse_BracketGlob(t *testing.T) {
	seq, err := parse("a __colors/[wc]*__ cat")
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if len(seq) != 3 {
		t.Fatalf("parse() produced %d nodes, want 3: %#v", len(seq), seq)
	}
	if ref, ok := seq[1].(wildcardRef); !ok || ref.name != "colors/[wc]*" {
		t.Errorf("node 1 = %#v, want wildcard colors/[wc]*", seq[1])
	}
}

func TestParseVariantGroup(t *testing.T) {
	tests := []struct {
		src     string
		options []string
		min     int
		max     int
		sep     string
	}{
		{"{A|B|C}", []string{"A", "B", "C"}, 1, 1, DefaultSeparator},
		{"{2$$A|B|C}", []string{"A", "B", "C"}, 2, 2, DefaultSeparator},
		{"{1-2$$A|B}", []string{"A", "B"}, 1, 2, DefaultSeparator},
		{"{-2$$A|B|C}", []string{"A", "B", "C"}, 1, 2, DefaultSeparator},
		{"{2-$$A|B|C}", []string{"A", "B", "C"}, 2, -1, DefaultSeparator},
		{"{2$$A|B@@ and }", []string{"A", "B"}, 2, 2, " and "},
		{"{2$$A|B@@|}", []string{"A", "B"}, 2, 2, "|"},
		{"{A|{x|y}|C}", []string{"A", "{x|y}", "C"}, 1, 1, DefaultSeparator},
		{"{A|}", []string{"A", ""}, 1, 1, DefaultSeparator},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			g, err := ParseVariantGroup(tt.src)
			if err != nil {
				t.Fatalf("ParseVariantGroup() error = %v", err)
			}
			if !reflect.DeepEqual(g.Options, tt.options) {
				t.Errorf("Options = %q, want %q", g.Options, tt.options)
			}
			if g.Min != tt.min || g.Max != tt.max {
				t.Errorf("count = %d-%d, want %d-%d", g.Min, g.Max, tt.min, tt.max)
			}
			if g.Separator != tt.sep {
				t.Errorf("Separator = %q, want %q", g.Separator, tt.sep)
			}
		})
	}
}
