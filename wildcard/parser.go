package wildcard

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultSeparator joins the picks of a multi-select variant group.
const DefaultSeparator = ", "

const (
	wildcardDelim = "__"
	countDelim    = "$$"
	sepDelim      = "@@"
)

// node is one element of a parsed template.
type node interface {
	isNode()
}

// sequence is a parsed template: nodes rendered back to back.
type sequence []node

type literal struct {
	text string
}

type wildcardRef struct {
	name string
}

// VariantGroup is a parsed {...} block.
type VariantGroup struct {
	// Options holds the raw text of each alternative.
	Options []string
	// Min and Max bound how many distinct options are picked. They are
	// both 1 for a plain {A|B} group.
	Min, Max int
	// Separator joins multiple picks.
	Separator string

	src     string
	parsed  []sequence
	counted bool
}

func (literal) isNode()       {}
func (wildcardRef) isNode()   {}
func (*VariantGroup) isNode() {}

// ParseVariantGroup parses the text of a single variant group, braces
// included, e.g. "{2$$a|b|c@@ and }".
func ParseVariantGroup(text string) (*VariantGroup, error) {
	if len(text) < 2 || text[0] != '{' || text[len(text)-1] != '}' {
		return nil, fmt.Errorf("%w: %q is not a variant group", ErrMalformedVariant, text)
	}
	return parseGroup(text, 0)
}

// parse splits a template into literals, wildcard references and variant
// groups. Only the outermost level is split; option bodies are parsed
// recursively by parseGroup.
func parse(tpl string) (sequence, error) {
	var (
		seq sequence
		lit strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			seq = append(seq, literal{text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(tpl); {
		switch {
		case tpl[i] == '{':
			end, err := matchBrace(tpl, i)
			if err != nil {
				return nil, err
			}
			g, err := parseGroup(tpl[i:end+1], i)
			if err != nil {
				return nil, err
			}
			flush()
			seq = append(seq, g)
			i = end + 1

		case tpl[i] == '}':
			return nil, fmt.Errorf("%w: unexpected '}' at offset %d", ErrMalformedVariant, i)

		case strings.HasPrefix(tpl[i:], wildcardDelim):
			name, ok := scanWildcard(tpl[i+len(wildcardDelim):])
			if !ok {
				lit.WriteString(wildcardDelim)
				i += len(wildcardDelim)
				continue
			}
			flush()
			seq = append(seq, wildcardRef{name: name})
			i += len(name) + 2*len(wildcardDelim)

		default:
			lit.WriteByte(tpl[i])
			i++
		}
	}
	flush()
	return seq, nil
}

// scanWildcard reads a wildcard name terminated by "__". It reports false
// when there is no terminator or the name contains characters that cannot
// appear in a wildcard path, in which case the opening "__" is literal text.
func scanWildcard(s string) (string, bool) {
	end := strings.Index(s, wildcardDelim)
	if end <= 0 {
		return "", false
	}
	name := s[:end]
	for _, r := range name {
		if !isNameRune(r) {
			return "", false
		}
	}
	return name, true
}

func isNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '/', r == '-', r == '.', r == '*', r == '?', r == '[', r == ']':
		return true
	}
	return false
}

// matchBrace returns the index of the '}' closing the '{' at open.
func matchBrace(s string, open int) (int, error) {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: unbalanced '{' at offset %d", ErrMalformedVariant, open)
}

// splitTop splits s on sep, ignoring occurrences nested inside braces.
func splitTop(s, sep string) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
		default:
			if depth == 0 && strings.HasPrefix(s[i:], sep) {
				parts = append(parts, s[start:i])
				i += len(sep) - 1
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// indexTop returns the first (or last) top-level index of sub in s, or -1.
func indexTop(s, sub string, last bool) int {
	found := -1
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
		default:
			if depth == 0 && strings.HasPrefix(s[i:], sub) {
				if !last {
					return i
				}
				found = i
				i += len(sub) - 1
			}
		}
	}
	return found
}

func parseGroup(src string, offset int) (*VariantGroup, error) {
	body := src[1 : len(src)-1]
	if body == "" {
		return nil, fmt.Errorf("%w: empty variant group at offset %d", ErrMalformedVariant, offset)
	}

	g := &VariantGroup{Min: 1, Max: 1, Separator: DefaultSeparator, src: src}

	if at := indexTop(body, countDelim, false); at >= 0 {
		if pipe := indexTop(body, "|", false); pipe < 0 || at < pipe {
			lo, hi, err := parseCount(body[:at])
			if err != nil {
				return nil, fmt.Errorf("%w: %v at offset %d", ErrMalformedVariant, err, offset)
			}
			g.Min, g.Max, g.counted = lo, hi, true
			body = body[at+len(countDelim):]

			if s := indexTop(body, sepDelim, true); s >= 0 {
				g.Separator = body[s+len(sepDelim):]
				body = body[:s]
			}
		}
	}
	if body == "" {
		return nil, fmt.Errorf("%w: variant group without options at offset %d", ErrMalformedVariant, offset)
	}

	g.Options = splitTop(body, "|")
	g.parsed = make([]sequence, len(g.Options))
	for i, opt := range g.Options {
		seq, err := parse(opt)
		if err != nil {
			return nil, err
		}
		g.parsed[i] = seq
	}
	return g, nil
}

// parseCount parses "N", "N-M", "-M" and "N-". An open upper bound is
// stored as -1 and means "all options". Every bound is at least 1.
func parseCount(s string) (int, int, error) {
	if s == "" {
		return 0, 0, fmt.Errorf("missing count before %q", countDelim)
	}
	lo, hi, isRange := strings.Cut(s, "-")
	if !isRange {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return 0, 0, fmt.Errorf("bad count %q", s)
		}
		return n, n, nil
	}

	min, max := 1, -1
	if lo != "" {
		n, err := strconv.Atoi(lo)
		if err != nil || n < 1 {
			return 0, 0, fmt.Errorf("bad count %q", s)
		}
		min = n
	}
	if hi != "" {
		n, err := strconv.Atoi(hi)
		if err != nil || n < 1 {
			return 0, 0, fmt.Errorf("bad count %q", s)
		}
		max = n
	}
	if lo == "" && hi == "" {
		return 0, 0, fmt.Errorf("bad count %q", s)
	}
	if max >= 0 && max < min {
		return 0, 0, fmt.Errorf("count range %q is inverted", s)
	}
	return min, max, nil
}

// bounds resolves the group's count range against its option count.
func (g *VariantGroup) bounds() (int, int, error) {
	n := len(g.Options)
	lo, hi := g.Min, g.Max
	if lo > n {
		return 0, 0, fmt.Errorf("%w: %s asks for %d of %d", ErrInsufficientOptions, g.src, lo, n)
	}
	if hi < 0 || hi > n {
		hi = n
	}
	return lo, hi, nil
}
