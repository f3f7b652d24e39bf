package imagegen

import (
	"encoding/base64"
	"testing"

	"promptbatch/jobqueue"
	"promptbatch/prompt"
	"promptbatch/runner"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	data, err := PlaceholderPNG(w, h, 7)
	if err != nil {
		t.Fatalf("PlaceholderPNG() error = %v", err)
	}
	return data
}

func testPNGBase64(t *testing.T, w, h int) string {
	return base64.StdEncoding.EncodeToString(testPNG(t, w, h))
}

func testSubmission(text string) runner.Submission {
	params := jobqueue.DefaultParameters()
	params.Seed = 1234
	return runner.Submission{
		JobID:      1,
		BatchID:    "b1",
		Attempt:    1,
		Prompt:     prompt.Resolved{Prompt: text, NegativePrompt: "blurry"},
		Parameters: params,
	}
}

func wantKind(t *testing.T, err error, kind runner.ErrorKind, code string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error")
	}
	gotKind, gotCode := runner.Classify(err)
	if gotKind != kind || gotCode != code {
		t.Errorf("Classify(%v) = %s/%s, want %s/%s", err, gotKind, gotCode, kind, code)
	}
}
