// Package prompt turns prompt templates into concrete prompts.
package prompt

import (
	"errors"
	"fmt"
	"iter"

	"promptbatch/wildcard"
)

// Template is a positive/negative prompt pair that may contain wildcard
// and variant syntax.
type Template struct {
	Prompt         string `yaml:"prompt" json:"prompt"`
	NegativePrompt string `yaml:"negative_prompt,omitempty" json:"negative_prompt,omitempty"`
}

// Resolved is a Template with every placeholder expanded.
type Resolved struct {
	Prompt         string `yaml:"prompt" json:"prompt"`
	NegativePrompt string `yaml:"negative_prompt,omitempty" json:"negative_prompt,omitempty"`
}

// Builder produces resolved prompts from templates. It performs no I/O
// beyond what the resolver's store does on first use.
type Builder struct {
	resolver *wildcard.Resolver
}

// NewBuilder creates a Builder backed by resolver.
func NewBuilder(resolver *wildcard.Resolver) *Builder {
	return &Builder{resolver: resolver}
}

// Resolver returns the underlying resolver.
func (b *Builder) Resolver() *wildcard.Resolver {
	return b.resolver
}

// Validate checks both halves of t for syntax errors.
func (b *Builder) Validate(t Template) error {
	if err := b.resolver.Validate(t.Prompt); err != nil {
		return fmt.Errorf("prompt: %w", err)
	}
	if err := b.resolver.Validate(t.NegativePrompt); err != nil {
		return fmt.Errorf("negative prompt: %w", err)
	}
	return nil
}

// Build draws n random prompts from t. All draws share rc, so wildcard
// cycling carries over from one prompt to the next.
func (b *Builder) Build(t Template, n int, rc *wildcard.Context) ([]Resolved, error) {
	if n < 0 {
		return nil, fmt.Errorf("prompt: negative count %d", n)
	}
	out := make([]Resolved, 0, n)
	for i := 0; i < n; i++ {
		r, err := b.BuildOne(t, rc)
		if err != nil {
			return nil, fmt.Errorf("prompt %d: %w", i+1, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// BuildOne draws a single prompt from t.
func (b *Builder) BuildOne(t Template, rc *wildcard.Context) (Resolved, error) {
	pos, err := b.resolver.Resolve(t.Prompt, rc)
	if err != nil {
		return Resolved{}, fmt.Errorf("prompt: %w", err)
	}
	neg, err := b.resolver.Resolve(t.NegativePrompt, rc)
	if err != nil {
		return Resolved{}, fmt.Errorf("negative prompt: %w", err)
	}
	return Resolved{Prompt: pos, NegativePrompt: neg}, nil
}

// Batch is the lazily expanded cartesian product of a template's prompt
// and negative prompt combinations.
type Batch struct {
	prompts   *wildcard.Enumeration
	negatives *wildcard.Enumeration
	count     int
}

// Count returns the number of prompts All yields.
func (b *Batch) Count() int {
	return b.count
}

// All yields every prompt/negative pair. The positive prompt varies
// slowest.
func (b *Batch) All() iter.Seq[Resolved] {
	return func(yield func(Resolved) bool) {
		for pos := range b.prompts.All() {
			for neg := range b.negatives.All() {
				if !yield(Resolved{Prompt: pos, NegativePrompt: neg}) {
					return
				}
			}
		}
	}
}

// Collect returns All as a slice.
func (b *Batch) Collect() []Resolved {
	out := make([]Resolved, 0, b.count)
	for r := range b.All() {
		out = append(out, r)
	}
	return out
}

// AllOption configures BuildAll.
type AllOption func(*allOptions)

type allOptions struct {
	limit int
}

// WithLimit overrides the resolver's combination ceiling.
func WithLimit(n int) AllOption {
	return func(o *allOptions) {
		if n > 0 {
			o.limit = n
		}
	}
}

// BuildAll enumerates every combination of t. The ceiling applies to the
// combined count and is checked before anything is expanded.
func (b *Builder) BuildAll(t Template, opts ...AllOption) (*Batch, error) {
	o := allOptions{limit: b.resolver.MaxCombinations()}
	for _, opt := range opts {
		opt(&o)
	}
	limit := o.limit

	prompts, err := b.resolver.ResolveAll(t.Prompt, wildcard.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("prompt: %w", err)
	}
	negLimit := limit / prompts.Count()
	if negLimit < 1 {
		negLimit = 1
	}
	negatives, err := b.resolver.ResolveAll(t.NegativePrompt, wildcard.Limit(negLimit))
	if errors.Is(err, wildcard.ErrCombinatorialLimit) {
		return nil, fmt.Errorf("%w: %d prompts times their negative prompts exceed %d",
			wildcard.ErrCombinatorialLimit, prompts.Count(), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("negative prompt: %w", err)
	}

	return &Batch{
		prompts:   prompts,
		negatives: negatives,
		count:     prompts.Count() * negatives.Count(),
	}, nil
}
