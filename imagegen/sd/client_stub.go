package sd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// NewClient opens a client for config.ModelPath. This build carries no
// native runtime: the returned client validates requests and reports
// ErrCodeRuntimeUnavailable for each generation. A missing model file is
// reported immediately.
func NewClient(config ClientConfig) (Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	info, err := os.Stat(config.ModelPath)
	if err != nil {
		return nil, NewGenerationError(ErrCodeModelNotFound, fmt.Sprintf("model not found: %s", config.ModelPath), false, err)
	}
	return &stubClient{config: config, size: info.Size()}, nil
}

// IsRuntimeAvailable reports whether this build can generate locally.
func IsRuntimeAvailable() bool {
	return false
}

type stubClient struct {
	config ClientConfig
	size   int64

	mu     sync.Mutex
	closed bool
}

var _ Client = (*stubClient)(nil)

func (c *stubClient) Generate(ctx context.Context, request GenerationRequest) (*GenerationResponse, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, NewGenerationError(ErrCodeGenerationFailed, "client is closed", false, nil)
	}
	if err := request.Validate(); err != nil {
		return nil, NewGenerationError(ErrCodeInvalidRequest, err.Error(), false, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, NewGenerationError(ErrCodeRuntimeUnavailable, "this build has no local Stable Diffusion runtime", false, nil)
}

func (c *stubClient) IsReady() bool { return false }

func (c *stubClient) GetModelInfo() *ModelInfo {
	return &ModelInfo{
		Path: c.config.ModelPath,
		Name: filepath.Base(c.config.ModelPath),
		Size: c.size,
	}
}

func (c *stubClient) GetBackendInfo() BackendInfo {
	return BackendInfo{Name: "stub"}
}

func (c *stubClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
