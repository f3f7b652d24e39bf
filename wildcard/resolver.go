package wildcard

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
)

// Resolver defaults.
const (
	DefaultMaxDepth        = 32
	DefaultMaxCombinations = 1000
)

// VariantPolicy controls how a single-choice {A|B|C} group picks its option.
type VariantPolicy int

const (
	// VariantRandom picks uniformly at random.
	VariantRandom VariantPolicy = iota
	// VariantCycle draws through the Cycler, so every option is used once
	// before any repeats.
	VariantCycle
)

func (p VariantPolicy) String() string {
	switch p {
	case VariantCycle:
		return "cycle"
	default:
		return "random"
	}
}

// ParseVariantPolicy maps "random" or "cycle" to a policy. Unknown values
// fall back to VariantRandom.
func ParseVariantPolicy(s string) VariantPolicy {
	if strings.EqualFold(strings.TrimSpace(s), "cycle") {
		return VariantCycle
	}
	return VariantRandom
}

// Context carries the per-session state used while resolving: the Cycler
// and the random source for variant groups. Contexts are independent;
// resolving with one never affects another.
type Context struct {
	mu     sync.Mutex
	rng    *rand.Rand
	cycler *Cycler
	policy VariantPolicy
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithVariantPolicy sets how single-choice variant groups are drawn.
func WithVariantPolicy(p VariantPolicy) ContextOption {
	return func(c *Context) { c.policy = p }
}

// NewContext creates a resolution context seeded with seed. The same seed,
// store and templates produce the same output.
func NewContext(seed int64, opts ...ContextOption) *Context {
	c := &Context{
		rng:    rand.New(rand.NewSource(seed)),
		cycler: NewCycler(seed ^ 0x5eed),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cycler returns the context's Cycler.
func (c *Context) Cycler() *Cycler {
	return c.cycler
}

// Policy returns the context's variant policy.
func (c *Context) Policy() VariantPolicy {
	return c.policy
}

func (c *Context) intn(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Intn(n)
}

func (c *Context) perm(n int) []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Perm(n)
}

// Resolver expands templates against a Store.
type Resolver struct {
	store           *Store
	maxDepth        int
	maxCombinations int
	cache           sync.Map // template -> sequence
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxDepth bounds how deeply wildcards may nest.
func WithMaxDepth(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

// WithMaxCombinations sets the default ceiling for ResolveAll.
func WithMaxCombinations(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxCombinations = n
		}
	}
}

// NewResolver creates a Resolver that reads wildcards from store.
func NewResolver(store *Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:           store,
		maxDepth:        DefaultMaxDepth,
		maxCombinations: DefaultMaxCombinations,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the resolver's store.
func (r *Resolver) Store() *Store {
	return r.store
}

// MaxCombinations returns the default ResolveAll ceiling.
func (r *Resolver) MaxCombinations() int {
	return r.maxCombinations
}

// Validate parses tpl without resolving it.
func (r *Resolver) Validate(tpl string) error {
	_, err := r.parse(tpl)
	return err
}

// Resolve expands every wildcard and variant group in tpl, drawing from rc.
// A template with no placeholder syntax is returned unchanged.
func (r *Resolver) Resolve(tpl string, rc *Context) (string, error) {
	if rc == nil {
		return "", fmt.Errorf("wildcard: nil resolution context")
	}
	var b strings.Builder
	if err := r.expand(tpl, rc, nil, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (r *Resolver) parse(tpl string) (sequence, error) {
	if v, ok := r.cache.Load(tpl); ok {
		return v.(sequence), nil
	}
	seq, err := parse(tpl)
	if err != nil {
		return nil, err
	}
	r.cache.Store(tpl, seq)
	return seq, nil
}

// expand renders tpl into b. stack holds the wildcards currently being
// expanded, outermost first.
func (r *Resolver) expand(tpl string, rc *Context, stack []string, b *strings.Builder) error {
	seq, err := r.parse(tpl)
	if err != nil {
		return err
	}
	return r.render(seq, rc, stack, b)
}

func (r *Resolver) render(seq sequence, rc *Context, stack []string, b *strings.Builder) error {
	for _, n := range seq {
		switch n := n.(type) {
		case literal:
			b.WriteString(n.text)

		case wildcardRef:
			if err := r.enter(n.name, stack); err != nil {
				return err
			}
			list, err := r.store.Get(n.name)
			if err != nil {
				return err
			}
			entry, err := rc.cycler.Next(list)
			if err != nil {
				return err
			}
			if err := r.expand(entry, rc, append(stack, n.name), b); err != nil {
				return err
			}

		case *VariantGroup:
			picks, err := r.pick(n, rc)
			if err != nil {
				return err
			}
			for i, idx := range picks {
				if i > 0 {
					b.WriteString(n.Separator)
				}
				if err := r.render(n.parsed[idx], rc, stack, b); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// enter checks that name may be expanded beneath stack.
func (r *Resolver) enter(name string, stack []string) error {
	for _, s := range stack {
		if s == name {
			return fmt.Errorf("%w: %s", ErrWildcardCycle, strings.Join(append(stack, name), " -> "))
		}
	}
	if len(stack) >= r.maxDepth {
		return fmt.Errorf("%w: depth %d at %s", ErrMaxRecursion, r.maxDepth, name)
	}
	return nil
}

// pick chooses option indices for g. Multiple picks come back in option
// order.
func (r *Resolver) pick(g *VariantGroup, rc *Context) ([]int, error) {
	lo, hi, err := g.bounds()
	if err != nil {
		return nil, err
	}
	n := len(g.Options)

	k := lo
	if hi > lo {
		k = lo + rc.intn(hi-lo+1)
	}
	switch {
	case k == 0:
		return nil, nil
	case k == 1 && !g.counted:
		if rc.policy == VariantCycle {
			i, err := rc.cycler.NextIndex(g.src, n)
			if err != nil {
				return nil, err
			}
			return []int{i}, nil
		}
		return []int{rc.intn(n)}, nil
	}

	picks := rc.perm(n)[:k]
	sort.Ints(picks)
	return picks, nil
}
