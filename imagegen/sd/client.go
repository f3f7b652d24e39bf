package sd

import (
	"context"
	"time"
)

// Client generates images with a local Stable Diffusion runtime.
type Client interface {
	// Generate creates an image. Requests failing Validate are rejected
	// with ErrCodeInvalidRequest.
	Generate(ctx context.Context, request GenerationRequest) (*GenerationResponse, error)

	// IsReady reports whether a model is loaded and the backend works.
	IsReady() bool

	// GetModelInfo returns nil when no model is loaded.
	GetModelInfo() *ModelInfo

	GetBackendInfo() BackendInfo

	// Close releases the runtime. It is safe to call more than once.
	Close() error
}

// ClientConfig configures a Client.
type ClientConfig struct {
	ModelPath         string
	VAEPath           string
	NumThreads        int // 0 means runtime.NumCPU()
	MaxConcurrent     int
	AcquireTimeout    time.Duration
	GenerationTimeout time.Duration
	VAETiling         bool
}

// DefaultClientConfig returns defaults for modelPath.
func DefaultClientConfig(modelPath string) ClientConfig {
	return ClientConfig{
		ModelPath:         modelPath,
		MaxConcurrent:     1,
		AcquireTimeout:    30 * time.Second,
		GenerationTimeout: 120 * time.Second,
	}
}

// Validate checks the config.
func (c ClientConfig) Validate() error {
	switch {
	case c.ModelPath == "":
		return NewGenerationError(ErrCodeInvalidRequest, "model path is required", false, nil)
	case c.MaxConcurrent < 1 || c.MaxConcurrent > 10:
		return NewGenerationError(ErrCodeInvalidRequest, "max_concurrent must be between 1 and 10", false, nil)
	case c.AcquireTimeout <= 0:
		return NewGenerationError(ErrCodeInvalidRequest, "acquire_timeout must be positive", false, nil)
	case c.GenerationTimeout <= 0:
		return NewGenerationError(ErrCodeInvalidRequest, "generation_timeout must be positive", false, nil)
	}
	return nil
}

// NullClient never generates anything.
type NullClient struct{}

var _ Client = (*NullClient)(nil)

func (c *NullClient) Generate(ctx context.Context, request GenerationRequest) (*GenerationResponse, error) {
	return nil, NewGenerationError(ErrCodeRuntimeUnavailable, "Stable Diffusion is not available (null client)", false, nil)
}

func (c *NullClient) IsReady() bool            { return false }
func (c *NullClient) GetModelInfo() *ModelInfo { return nil }
func (c *NullClient) Close() error             { return nil }

func (c *NullClient) GetBackendInfo() BackendInfo {
	return BackendInfo{Name: "None"}
}
