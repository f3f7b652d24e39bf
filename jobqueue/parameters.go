package jobqueue

import (
	"fmt"
	"maps"
)

// ParametersVersion is the current Parameters schema version.
const ParametersVersion = 1

// Generation parameter bounds.
const (
	MinDimension = 64
	MaxDimension = 2048
	MinSteps     = 1
	MaxSteps     = 150
	MinCFGScale  = 1.0
	MaxCFGScale  = 30.0

	DefaultWidth    = 512
	DefaultHeight   = 512
	DefaultSteps    = 20
	DefaultCFGScale = 7.0
	DefaultSampler  = "Euler a"
)

// Parameters are the generation settings attached to a job. Backend
// specific settings without a typed field go in Extras.
type Parameters struct {
	Version  int     `yaml:"version,omitempty" json:"version"`
	Seed     int64   `yaml:"seed" json:"seed"`
	Steps    int     `yaml:"steps" json:"steps"`
	Width    int     `yaml:"width" json:"width"`
	Height   int     `yaml:"height" json:"height"`
	CFGScale float64 `yaml:"cfg_scale" json:"cfg_scale"`
	Sampler  string  `yaml:"sampler,omitempty" json:"sampler,omitempty"`
	Model    string  `yaml:"model,omitempty" json:"model,omitempty"`
	ClipSkip int     `yaml:"clip_skip,omitempty" json:"clip_skip,omitempty"`

	Extras map[string]string `yaml:"extras,omitempty" json:"extras,omitempty"`
}

// DefaultParameters returns parameters suitable for SD 1.x models.
// Seed -1 asks the backend to choose.
func DefaultParameters() Parameters {
	return Parameters{
		Version:  ParametersVersion,
		Seed:     -1,
		Steps:    DefaultSteps,
		Width:    DefaultWidth,
		Height:   DefaultHeight,
		CFGScale: DefaultCFGScale,
		Sampler:  DefaultSampler,
	}
}

// WithDefaults fills zero fields from DefaultParameters.
func (p Parameters) WithDefaults() Parameters {
	d := DefaultParameters()
	if p.Version == 0 {
		p.Version = d.Version
	}
	if p.Steps == 0 {
		p.Steps = d.Steps
	}
	if p.Width == 0 {
		p.Width = d.Width
	}
	if p.Height == 0 {
		p.Height = d.Height
	}
	if p.CFGScale == 0 {
		p.CFGScale = d.CFGScale
	}
	if p.Sampler == "" {
		p.Sampler = d.Sampler
	}
	return p
}

// WithSeed returns a copy of p using seed.
func (p Parameters) WithSeed(seed int64) Parameters {
	c := p.Clone()
	c.Seed = seed
	return c
}

// Clone returns a deep copy of p.
func (p Parameters) Clone() Parameters {
	c := p
	if p.Extras != nil {
		c.Extras = maps.Clone(p.Extras)
	}
	return c
}

// Extra returns the named extra setting.
func (p Parameters) Extra(key string) (string, bool) {
	v, ok := p.Extras[key]
	return v, ok
}

// Validate checks p against the supported ranges.
func (p Parameters) Validate() error {
	if p.Version > ParametersVersion {
		return fmt.Errorf("jobqueue: parameters version %d is newer than supported version %d", p.Version, ParametersVersion)
	}
	if p.Width < MinDimension || p.Width > MaxDimension {
		return fmt.Errorf("jobqueue: width %d out of range [%d, %d]", p.Width, MinDimension, MaxDimension)
	}
	if p.Height < MinDimension || p.Height > MaxDimension {
		return fmt.Errorf("jobqueue: height %d out of range [%d, %d]", p.Height, MinDimension, MaxDimension)
	}
	if p.Width%8 != 0 || p.Height%8 != 0 {
		return fmt.Errorf("jobqueue: dimensions %dx%d must be multiples of 8", p.Width, p.Height)
	}
	if p.Steps < MinSteps || p.Steps > MaxSteps {
		return fmt.Errorf("jobqueue: steps %d out of range [%d, %d]", p.Steps, MinSteps, MaxSteps)
	}
	if p.CFGScale < MinCFGScale || p.CFGScale > MaxCFGScale {
		return fmt.Errorf("jobqueue: cfg scale %.1f out of range [%.1f, %.1f]", p.CFGScale, MinCFGScale, MaxCFGScale)
	}
	if p.ClipSkip < 0 {
		return fmt.Errorf("jobqueue: clip skip %d must not be negative", p.ClipSkip)
	}
	return nil
}
