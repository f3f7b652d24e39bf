package wildcard

import (
	"fmt"
	"math/rand"
	"sync"
)

// Cycler draws entries from lists without replacement. Each list gets a
// shuffled pool of unused indices; when the pool runs dry it is refilled
// with a fresh shuffle, so every entry appears exactly once per cycle.
//
// A Cycler is safe for concurrent use but is meant to be owned by a single
// resolution Context.
type Cycler struct {
	mu    sync.Mutex
	rng   *rand.Rand
	pools map[string]*pool
}

type pool struct {
	size      int
	remaining []int
	usage     map[int]int
	cycles    int
}

// NewCycler creates a Cycler whose shuffles are driven by seed.
func NewCycler(seed int64) *Cycler {
	return &Cycler{
		rng:   rand.New(rand.NewSource(seed)),
		pools: make(map[string]*pool),
	}
}

// Next returns the next entry of list.
func (c *Cycler) Next(list *List) (string, error) {
	i, err := c.NextIndex(list.Name(), list.Len())
	if err != nil {
		return "", err
	}
	return list.Entry(i), nil
}

// NextIndex returns the next index in [0, n) for the pool identified by
// key. A pool whose size changes is discarded and started over.
func (c *Cycler) NextIndex(key string, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrEmptyWildcardList, key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pools[key]
	if !ok || p.size != n {
		p = &pool{size: n, usage: make(map[int]int, n)}
		c.pools[key] = p
	}
	if len(p.remaining) == 0 {
		if len(p.usage) > 0 {
			p.cycles++
		}
		p.remaining = c.rng.Perm(n)
	}

	last := len(p.remaining) - 1
	idx := p.remaining[last]
	p.remaining = p.remaining[:last]
	p.usage[idx]++
	return idx, nil
}

// Usage returns how many times each index of the named pool has been drawn.
func (c *Cycler) Usage(key string) map[int]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pools[key]
	if !ok {
		return map[int]int{}
	}
	out := make(map[int]int, len(p.usage))
	for k, v := range p.usage {
		out[k] = v
	}
	return out
}

// Cycle returns the number of full passes completed over the named pool.
func (c *Cycler) Cycle(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pools[key]
	if !ok {
		return 0
	}
	cycles := p.cycles
	if len(p.remaining) == 0 && len(p.usage) > 0 {
		cycles++
	}
	return cycles
}

// Reset forgets every pool.
func (c *Cycler) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pools = make(map[string]*pool)
}
