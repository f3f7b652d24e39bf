package imagegen

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNullProvider_Submit(t *testing.T) {
	sub := testSubmission("anything")
	sub.Parameters.Width, sub.Parameters.Height = 128, 64

	res, err := NewNullProvider(0).Submit(context.Background(), sub)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if len(res.Images) != 1 {
		t.Fatalf("Images = %d, want 1", len(res.Images))
	}
	img, err := InspectImage(res.Images[0].Data)
	if err != nil || img.Width != 128 || img.Height != 64 {
		t.Errorf("image = %+v, err %v", img, err)
	}
	if res.Seed != 1234 || res.Backend != "null" {
		t.Errorf("Seed/Backend = %d/%q", res.Seed, res.Backend)
	}

	sub.Parameters.Seed = -1
	sub.JobID = 77
	res, _ = NewNullProvider(0).Submit(context.Background(), sub)
	if res.Seed != 77 {
		t.Errorf("random seed should fall back to job id, got %d", res.Seed)
	}
}

func TestNullProvider_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewNullProvider(time.Hour).Submit(ctx, testSubmission("x"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Submit() error = %v, want context.Canceled", err)
	}
}
