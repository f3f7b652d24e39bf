package wildcard

import (
	"fmt"
	"iter"
	"math"
	"strings"
)

// Enumeration is the lazily expanded set of every distinct resolution of
// a template. Its size is known before anything is expanded.
type Enumeration struct {
	template string
	root     expansion
	count    int
}

// Template returns the template the enumeration was built from.
func (e *Enumeration) Template() string {
	return e.template
}

// Count returns the number of combinations All will yield.
func (e *Enumeration) Count() int {
	return e.count
}

// All yields every combination in a stable order: the leftmost
// placeholder varies slowest.
func (e *Enumeration) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		e.root.each("", yield)
	}
}

// Strings collects All into a slice.
func (e *Enumeration) Strings() []string {
	out := make([]string, 0, e.count)
	for s := range e.All() {
		out = append(out, s)
	}
	return out
}

// AllOption configures a single ResolveAll call.
type AllOption func(*allConfig)

type allConfig struct {
	limit int
}

// Limit overrides the resolver's combination ceiling for one call.
func Limit(n int) AllOption {
	return func(c *allConfig) {
		if n > 0 {
			c.limit = n
		}
	}
}

// ResolveAll prepares every combination of tpl. Wildcards enumerate each
// of their entries, {A|B} groups each option and {N$$...} groups each
// N-subset in option order.
//
// The size is computed first; if it exceeds the ceiling ResolveAll fails
// with ErrCombinatorialLimit without expanding anything.
func (r *Resolver) ResolveAll(tpl string, opts ...AllOption) (*Enumeration, error) {
	cfg := allConfig{limit: r.maxCombinations}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := compiler{r: r, limit: uint64(cfg.limit)}
	root, err := c.template(tpl, nil)
	if err != nil {
		return nil, err
	}
	return &Enumeration{template: tpl, root: root, count: int(root.size())}, nil
}

// CountAll returns the number of combinations of tpl, failing with
// ErrCombinatorialLimit once the ceiling is passed.
func (r *Resolver) CountAll(tpl string, opts ...AllOption) (int, error) {
	e, err := r.ResolveAll(tpl, opts...)
	if err != nil {
		return 0, err
	}
	return e.Count(), nil
}

// expansion is a compiled template fragment that can enumerate itself.
// each calls yield with prefix+item for every item and reports false once
// yield asks to stop.
type expansion interface {
	size() uint64
	each(prefix string, yield func(string) bool) bool
}

// lit is a fixed piece of text.
type lit string

func (l lit) size() uint64 { return 1 }

func (l lit) each(prefix string, yield func(string) bool) bool {
	return yield(prefix + string(l))
}

// product concatenates one item from each part.
type product struct {
	parts []expansion
	n     uint64
}

func (p *product) size() uint64 { return p.n }

func (p *product) each(prefix string, yield func(string) bool) bool {
	return eachProduct(p.parts, "", prefix, yield)
}

func eachProduct(parts []expansion, sep, prefix string, yield func(string) bool) bool {
	if len(parts) == 0 {
		return yield(prefix)
	}
	return parts[0].each(prefix, func(s string) bool {
		next := s
		if len(parts) > 1 {
			next += sep
		}
		return eachProduct(parts[1:], sep, next, yield)
	})
}

// choice yields the items of each alternative in turn.
type choice struct {
	alts []expansion
	n    uint64
}

func (c *choice) size() uint64 { return c.n }

func (c *choice) each(prefix string, yield func(string) bool) bool {
	for _, a := range c.alts {
		if !a.each(prefix, yield) {
			return false
		}
	}
	return true
}

// subsets yields, for every k-subset of options in lexicographic index
// order, the product of the chosen options joined by sep.
type subsets struct {
	options []expansion
	k       int
	sep     string
	n       uint64
}

func (s *subsets) size() uint64 { return s.n }

func (s *subsets) each(prefix string, yield func(string) bool) bool {
	if s.k == 0 {
		return yield(prefix)
	}
	idx := make([]int, s.k)
	for i := range idx {
		idx[i] = i
	}
	chosen := make([]expansion, s.k)
	for {
		for i, j := range idx {
			chosen[i] = s.options[j]
		}
		if !eachProduct(chosen, s.sep, prefix, yield) {
			return false
		}
		if !nextCombination(idx, len(s.options)) {
			return true
		}
	}
}

// nextCombination advances idx to the next k-combination of [0, n).
func nextCombination(idx []int, n int) bool {
	k := len(idx)
	i := k - 1
	for i >= 0 && idx[i] == n-k+i {
		i--
	}
	if i < 0 {
		return false
	}
	idx[i]++
	for j := i + 1; j < k; j++ {
		idx[j] = idx[j-1] + 1
	}
	return true
}

// compiler turns parsed templates into expansions, aborting as soon as any
// fragment exceeds the limit. Every fragment yields at least one item, so
// no fragment can be larger than the whole.
type compiler struct {
	r     *Resolver
	limit uint64
}

func (c *compiler) check(n uint64) error {
	if n > c.limit {
		return fmt.Errorf("%w: more than %d combinations", ErrCombinatorialLimit, c.limit)
	}
	return nil
}

func (c *compiler) template(tpl string, stack []string) (expansion, error) {
	seq, err := c.r.parse(tpl)
	if err != nil {
		return nil, err
	}
	return c.sequence(seq, stack)
}

func (c *compiler) sequence(seq sequence, stack []string) (expansion, error) {
	if len(seq) == 0 {
		return lit(""), nil
	}
	if len(seq) == 1 {
		return c.node(seq[0], stack)
	}

	p := &product{n: 1}
	var pending strings.Builder
	for _, n := range seq {
		e, err := c.node(n, stack)
		if err != nil {
			return nil, err
		}
		if l, ok := e.(lit); ok {
			pending.WriteString(string(l))
			continue
		}
		if pending.Len() > 0 {
			p.parts = append(p.parts, lit(pending.String()))
			pending.Reset()
		}
		p.parts = append(p.parts, e)
		p.n = satMul(p.n, e.size())
		if err := c.check(p.n); err != nil {
			return nil, err
		}
	}
	if pending.Len() > 0 {
		p.parts = append(p.parts, lit(pending.String()))
	}
	if len(p.parts) == 1 {
		return p.parts[0], nil
	}
	return p, nil
}

func (c *compiler) node(n node, stack []string) (expansion, error) {
	switch n := n.(type) {
	case literal:
		return lit(n.text), nil

	case wildcardRef:
		if err := c.r.enter(n.name, stack); err != nil {
			return nil, err
		}
		list, err := c.r.store.Get(n.name)
		if err != nil {
			return nil, err
		}
		if list.Len() == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptyWildcardList, n.name)
		}
		inner := append(stack, n.name)
		ch := &choice{}
		for i := 0; i < list.Len(); i++ {
			e, err := c.template(list.Entry(i), inner)
			if err != nil {
				return nil, err
			}
			ch.alts = append(ch.alts, e)
			ch.n = satAdd(ch.n, e.size())
			if err := c.check(ch.n); err != nil {
				return nil, err
			}
		}
		return simplify(ch), nil

	case *VariantGroup:
		return c.group(n, stack)
	}
	return nil, fmt.Errorf("wildcard: unknown template node %T", n)
}

func (c *compiler) group(g *VariantGroup, stack []string) (expansion, error) {
	lo, hi, err := g.bounds()
	if err != nil {
		return nil, err
	}

	opts := make([]expansion, len(g.parsed))
	sizes := make([]uint64, len(g.parsed))
	for i, seq := range g.parsed {
		e, err := c.sequence(seq, stack)
		if err != nil {
			return nil, err
		}
		opts[i], sizes[i] = e, e.size()
	}

	if !g.counted {
		ch := &choice{alts: opts}
		for _, s := range sizes {
			ch.n = satAdd(ch.n, s)
		}
		if err := c.check(ch.n); err != nil {
			return nil, err
		}
		return simplify(ch), nil
	}

	e := elementarySums(sizes, hi)
	ch := &choice{}
	for k := lo; k <= hi; k++ {
		ch.alts = append(ch.alts, &subsets{options: opts, k: k, sep: g.Separator, n: e[k]})
		ch.n = satAdd(ch.n, e[k])
		if err := c.check(ch.n); err != nil {
			return nil, err
		}
	}
	return simplify(ch), nil
}

func simplify(ch *choice) expansion {
	if len(ch.alts) == 1 {
		return ch.alts[0]
	}
	return ch
}

// elementarySums returns e[k] for k in [0, maxK]: the sum over every
// k-subset of sizes of the product of its members.
func elementarySums(sizes []uint64, maxK int) []uint64 {
	e := make([]uint64, maxK+1)
	e[0] = 1
	for _, s := range sizes {
		for k := maxK; k >= 1; k-- {
			e[k] = satAdd(e[k], satMul(e[k-1], s))
		}
	}
	return e
}

func satAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

func satMul(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > math.MaxUint64/b {
		return math.MaxUint64
	}
	return a * b
}
