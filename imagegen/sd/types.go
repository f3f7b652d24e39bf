// Package sd describes local Stable Diffusion generation: requests,
// responses, errors and the Client a local runtime implements.
package sd

import (
	"fmt"
	"strings"
	"time"
)

// ImageFormat is the encoding of generated image bytes.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
)

// SampleMethod is the diffusion sampler.
type SampleMethod int

const (
	SampleEulerA SampleMethod = iota
	SampleEuler
	SampleHeun
	SampleDPM2
	SampleDPMPP2SA
	SampleDPMPP2M
	SampleLCM
)

var sampleNames = []string{"euler_a", "euler", "heun", "dpm2", "dpmpp_2s_a", "dpmpp_2m", "lcm"}

// webuiSamplerNames maps WebUI display names onto local samplers so one
// batch file works against either backend.
var webuiSamplerNames = map[string]SampleMethod{
	"euler a":    SampleEulerA,
	"euler":      SampleEuler,
	"heun":       SampleHeun,
	"dpm2":       SampleDPM2,
	"dpm++ 2s a": SampleDPMPP2SA,
	"dpm++ 2m":   SampleDPMPP2M,
	"lcm":        SampleLCM,
}

func (s SampleMethod) String() string {
	if int(s) < 0 || int(s) >= len(sampleNames) {
		return "unknown"
	}
	return sampleNames[s]
}

// ParseSampleMethod accepts local names ("dpmpp_2m") and WebUI names
// ("DPM++ 2M"), case-insensitively. An empty string means SampleEulerA.
func ParseSampleMethod(s string) (SampleMethod, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return SampleEulerA, nil
	}
	for i, name := range sampleNames {
		if key == name {
			return SampleMethod(i), nil
		}
	}
	if m, ok := webuiSamplerNames[key]; ok {
		return m, nil
	}
	return SampleEulerA, fmt.Errorf("unknown sample method: %s", s)
}

// Request limits.
const (
	MinWidth        = 128
	MaxWidth        = 2048
	MinHeight       = 128
	MaxHeight       = 2048
	SizeMultiple    = 8
	MinSteps        = 1
	MaxSteps        = 100
	MinCFGScale     = 1.0
	MaxCFGScale     = 30.0
	MaxPromptLength = 1000
)

// GenerationRequest is one local generation.
type GenerationRequest struct {
	Prompt         string       `json:"prompt"`
	NegativePrompt string       `json:"negative_prompt,omitempty"`
	Width          int          `json:"width"`
	Height         int          `json:"height"`
	Steps          int          `json:"steps"`
	CFGScale       float64      `json:"cfg_scale"`
	Seed           int64        `json:"seed"` // -1 picks one
	SampleMethod   SampleMethod `json:"sample_method"`
	Format         ImageFormat  `json:"format,omitempty"`
	ClipSkip       int          `json:"clip_skip,omitempty"` // -1 uses the model default
}

// DefaultRequest returns a 512x512, 25 step request with a random seed.
func DefaultRequest() GenerationRequest {
	return GenerationRequest{
		Width:        512,
		Height:       512,
		Steps:        25,
		CFGScale:     7.5,
		Seed:         -1,
		SampleMethod: SampleEulerA,
		Format:       FormatPNG,
		ClipSkip:     -1,
	}
}

// Validate checks r against the request limits.
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("prompt is required")
	}
	if len(r.Prompt) > MaxPromptLength {
		return fmt.Errorf("prompt length %d exceeds maximum %d", len(r.Prompt), MaxPromptLength)
	}
	if len(r.NegativePrompt) > MaxPromptLength {
		return fmt.Errorf("negative prompt length %d exceeds maximum %d", len(r.NegativePrompt), MaxPromptLength)
	}
	if r.Width < MinWidth || r.Width > MaxWidth || r.Width%SizeMultiple != 0 {
		return fmt.Errorf("width %d must be between %d and %d and divisible by %d", r.Width, MinWidth, MaxWidth, SizeMultiple)
	}
	if r.Height < MinHeight || r.Height > MaxHeight || r.Height%SizeMultiple != 0 {
		return fmt.Errorf("height %d must be between %d and %d and divisible by %d", r.Height, MinHeight, MaxHeight, SizeMultiple)
	}
	if r.Steps < MinSteps || r.Steps > MaxSteps {
		return fmt.Errorf("steps %d must be between %d and %d", r.Steps, MinSteps, MaxSteps)
	}
	if r.CFGScale < MinCFGScale || r.CFGScale > MaxCFGScale {
		return fmt.Errorf("cfg_scale %.2f must be between %.1f and %.1f", r.CFGScale, MinCFGScale, MaxCFGScale)
	}
	return nil
}

// GenerationResponse is a generated image.
type GenerationResponse struct {
	ImageData []byte        `json:"image_data,omitempty"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	Format    ImageFormat   `json:"format"`
	Seed      int64         `json:"seed"` // the seed actually used
	Duration  time.Duration `json:"duration"`
}

// IsValid reports whether the response carries an image.
func (r GenerationResponse) IsValid() bool {
	return len(r.ImageData) > 0 && r.Width > 0 && r.Height > 0
}

// Error codes.
const (
	ErrCodeInvalidRequest     = "invalid_request"
	ErrCodeModelNotFound      = "model_not_found"
	ErrCodeModelLoadFailed    = "model_load_failed"
	ErrCodeOutOfMemory        = "out_of_memory"
	ErrCodeTimeout            = "timeout"
	ErrCodeRuntimeUnavailable = "runtime_unavailable"
	ErrCodeBusy               = "busy"
	ErrCodeGenerationFailed   = "generation_failed"
)

// GenerationError is a failed local generation.
type GenerationError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Cause     error  `json:"-"`
}

func (e GenerationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e GenerationError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether another attempt might succeed.
func (e GenerationError) IsRetryable() bool {
	return e.Retryable
}

// ErrorCode returns the machine-readable code.
func (e GenerationError) ErrorCode() string {
	return e.Code
}

// NewGenerationError creates a GenerationError.
func NewGenerationError(code, message string, retryable bool, cause error) GenerationError {
	return GenerationError{Code: code, Message: message, Retryable: retryable, Cause: cause}
}

// ModelInfo describes the loaded model.
type ModelInfo struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Loaded bool   `json:"loaded"`
}

// BackendInfo describes the compute backend.
type BackendInfo struct {
	Name       string `json:"name"`
	Available  bool   `json:"available"`
	DeviceName string `json:"device_name,omitempty"`
}
