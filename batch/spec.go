// Package batch reads batch files and turns them into queued jobs.
//
// A batch file is YAML; several batches may share one file as separate
// documents:
//
//	name: foxes
//	prompt: "a __colors__ fox, {watercolor|ink}"
//	negative_prompt: blurry
//	count: 8
//	seed: 1234
//	seed_mode: increment
//	parameters:
//	  steps: 30
//	  width: 768
//	---
//	name: every-owl
//	prompt: "an owl in {spring|summer|autumn|winter}"
//	combinatorial: true
package batch

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"promptbatch/jobqueue"
	"promptbatch/prompt"
	"promptbatch/wildcard"
)

// Spec describes one batch.
type Spec struct {
	Name           string `yaml:"name"`
	Prompt         string `yaml:"prompt"`
	NegativePrompt string `yaml:"negative_prompt"`

	// Count is the number of random draws. With Combinatorial it caps the
	// enumeration instead, and zero means every combination.
	Count           int  `yaml:"count"`
	Combinatorial   bool `yaml:"combinatorial"`
	MaxCombinations int  `yaml:"max_combinations"`

	// Seed drives both prompt resolution and image seeds. Nil picks one
	// at random.
	Seed          *int64   `yaml:"seed"`
	SeedMode      SeedMode `yaml:"seed_mode"`
	VariantPolicy string   `yaml:"variant_policy"`

	Parameters jobqueue.Parameters `yaml:"parameters"`
}

// Template returns the prompt pair.
func (s Spec) Template() prompt.Template {
	return prompt.Template{Prompt: s.Prompt, NegativePrompt: s.NegativePrompt}
}

// Validate checks s without resolving it.
func (s Spec) Validate() error {
	switch {
	case s.Prompt == "":
		return fmt.Errorf("batch %q: prompt is required", s.Name)
	case s.Count < 0:
		return fmt.Errorf("batch %q: count must not be negative", s.Name)
	case s.MaxCombinations < 0:
		return fmt.Errorf("batch %q: max_combinations must not be negative", s.Name)
	case !s.SeedMode.Valid():
		return fmt.Errorf("batch %q: unknown seed_mode %q", s.Name, s.SeedMode)
	case s.VariantPolicy != "" && s.VariantPolicy != "random" && s.VariantPolicy != "cycle":
		return fmt.Errorf("batch %q: variant_policy must be random or cycle", s.Name)
	}
	if err := s.Parameters.WithDefaults().Validate(); err != nil {
		return fmt.Errorf("batch %q: %w", s.Name, err)
	}
	return nil
}

// policy returns the spec's variant policy, or def when unset.
func (s Spec) policy(def wildcard.VariantPolicy) wildcard.VariantPolicy {
	if s.VariantPolicy == "" {
		return def
	}
	return wildcard.ParseVariantPolicy(s.VariantPolicy)
}

// LoadFile reads every batch in path.
func LoadFile(path string) ([]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	specs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return specs, nil
}

// Parse decodes one or more YAML documents. Unknown keys are rejected
// so typos do not silently fall back to defaults.
func Parse(data []byte) ([]Spec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var specs []Spec
	for i := 1; ; i++ {
		var s Spec
		err := dec.Decode(&s)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		if s.Name == "" {
			s.Name = fmt.Sprintf("batch-%d", i)
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		specs = append(specs, s)
	}
	if len(specs) == 0 {
		return nil, errors.New("no batches defined")
	}
	return specs, nil
}
