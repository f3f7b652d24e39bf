package sd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseSampleMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    SampleMethod
		wantErr bool
	}{
		{"", SampleEulerA, false},
		{"euler_a", SampleEulerA, false},
		{"Euler a", SampleEulerA, false},
		{"DPM++ 2M", SampleDPMPP2M, false},
		{"dpmpp_2m", SampleDPMPP2M, false},
		{" LCM ", SampleLCM, false},
		{"ddim", SampleEulerA, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSampleMethod(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSampleMethod(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSampleMethod(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
	if SampleMethod(99).String() != "unknown" {
		t.Error("out of range sampler should be unknown")
	}
}

func TestGenerationRequestValidate(t *testing.T) {
	valid := DefaultRequest()
	valid.Prompt = "a lighthouse at dusk"

	tests := []struct {
		name   string
		mutate func(*GenerationRequest)
		ok     bool
	}{
		{"valid", func(*GenerationRequest) {}, true},
		{"empty prompt", func(r *GenerationRequest) { r.Prompt = "  " }, false},
		{"width not multiple of 8", func(r *GenerationRequest) { r.Width = 500 }, false},
		{"height too large", func(r *GenerationRequest) { r.Height = 4096 }, false},
		{"zero steps", func(r *GenerationRequest) { r.Steps = 0 }, false},
		{"cfg too high", func(r *GenerationRequest) { r.CFGScale = 31 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			if err := r.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() error = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestGenerationError(t *testing.T) {
	cause := errors.New("cuda oom")
	err := error(NewGenerationError(ErrCodeOutOfMemory, "allocation failed", true, cause))

	var ge GenerationError
	if !errors.As(err, &ge) {
		t.Fatal("errors.As failed")
	}
	if !ge.IsRetryable() || ge.ErrorCode() != ErrCodeOutOfMemory {
		t.Errorf("IsRetryable/ErrorCode = %v/%q", ge.IsRetryable(), ge.ErrorCode())
	}
	if !errors.Is(err, cause) {
		t.Error("cause not unwrapped")
	}
	if got := err.Error(); got != "out_of_memory: allocation failed (cuda oom)" {
		t.Errorf("Error() = %q", got)
	}
}

func TestNewClient(t *testing.T) {
	if _, err := NewClient(DefaultClientConfig("")); err == nil {
		t.Error("NewClient() without model path should fail")
	}

	_, err := NewClient(DefaultClientConfig(filepath.Join(t.TempDir(), "missing.safetensors")))
	var ge GenerationError
	if !errors.As(err, &ge) || ge.Code != ErrCodeModelNotFound {
		t.Errorf("NewClient() missing model error = %v, want %s", err, ErrCodeModelNotFound)
	}

	model := filepath.Join(t.TempDir(), "model.safetensors")
	if err := os.WriteFile(model, []byte("weights"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := NewClient(DefaultClientConfig(model))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer c.Close()

	if info := c.GetModelInfo(); info == nil || info.Name != "model.safetensors" || info.Size != 7 {
		t.Errorf("GetModelInfo() = %+v", info)
	}

	req := DefaultRequest()
	_, err = c.Generate(context.Background(), req)
	if !errors.As(err, &ge) || ge.Code != ErrCodeInvalidRequest {
		t.Errorf("Generate() invalid request error = %v", err)
	}

	req.Prompt = "a cat"
	_, err = c.Generate(context.Background(), req)
	if !errors.As(err, &ge) || ge.Code != ErrCodeRuntimeUnavailable || ge.Retryable {
		t.Errorf("Generate() error = %v, want permanent %s", err, ErrCodeRuntimeUnavailable)
	}
}

func TestNullClient(t *testing.T) {
	var c Client = &NullClient{}
	if c.IsReady() || c.GetModelInfo() != nil {
		t.Error("NullClient should never be ready")
	}
	if _, err := c.Generate(context.Background(), DefaultRequest()); err == nil {
		t.Error("NullClient.Generate() should fail")
	}
}
