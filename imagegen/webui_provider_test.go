package imagegen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"promptbatch/runner"
)

func TestNewWebUIProvider_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  WebUIConfig
		ok   bool
	}{
		{"valid", WebUIConfig{BaseURL: "http://127.0.0.1:7860"}, true},
		{"trailing slash", WebUIConfig{BaseURL: "http://127.0.0.1:7860/"}, true},
		{"with auth", WebUIConfig{BaseURL: "https://sd.example.com", Auth: "user:pass"}, true},
		{"missing scheme", WebUIConfig{BaseURL: "127.0.0.1:7860"}, false},
		{"ftp", WebUIConfig{BaseURL: "ftp://host"}, false},
		{"bad auth", WebUIConfig{BaseURL: "http://host", Auth: "nocolon"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWebUIProvider(tt.cfg)
			if (err == nil) != tt.ok {
				t.Errorf("NewWebUIProvider() error = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestWebUIProvider_Submit(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sdapi/v1/txt2img" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"images": []string{testPNGBase64(t, 64, 64)},
			"info":   `{"seed": 98765, "all_seeds": [98765]}`,
		})
	}))
	defer srv.Close()

	p, err := NewWebUIProvider(WebUIConfig{BaseURL: srv.URL, Auth: "admin:hunter2", Model: "sdxl.safetensors"})
	if err != nil {
		t.Fatalf("NewWebUIProvider() error = %v", err)
	}

	sub := testSubmission("a castle on a hill")
	sub.Parameters.Extras = map[string]string{"denoising_strength": "0.4", "scheduler": "karras", "steps": "99"}
	sub.Parameters.ClipSkip = 2

	res, err := p.Submit(context.Background(), sub)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.Seed != 98765 || res.Backend != "webui" {
		t.Errorf("Seed/Backend = %d/%q, want 98765/webui", res.Seed, res.Backend)
	}
	if len(res.Images) != 1 || res.Images[0].Format != "png" || res.Images[0].Width != 64 {
		t.Errorf("Images = %+v", res.Images)
	}

	if got["prompt"] != "a castle on a hill" || got["negative_prompt"] != "blurry" {
		t.Errorf("payload prompt = %v / %v", got["prompt"], got["negative_prompt"])
	}
	if got["seed"] != float64(1234) || got["sampler_name"] != "Euler a" {
		t.Errorf("payload seed/sampler = %v / %v", got["seed"], got["sampler_name"])
	}
	if got["denoising_strength"] != 0.4 || got["scheduler"] != "karras" {
		t.Errorf("extras not merged: %v / %v", got["denoising_strength"], got["scheduler"])
	}
	if got["steps"] != float64(20) {
		t.Errorf("extras must not override typed fields, steps = %v", got["steps"])
	}
	override, _ := got["override_settings"].(map[string]any)
	if override["sd_model_checkpoint"] != "sdxl.safetensors" || override["CLIP_stop_at_last_layers"] != float64(2) {
		t.Errorf("override_settings = %v", override)
	}
}

func TestWebUIProvider_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   runner.ErrorKind
		code   string
	}{
		{"server error", http.StatusInternalServerError, `{"error": "OutOfMemoryError"}`, runner.Transient, runner.CodeUnavailable},
		{"busy", http.StatusServiceUnavailable, "", runner.Transient, runner.CodeUnavailable},
		{"validation", http.StatusUnprocessableEntity, `{"detail": "width must be int"}`, runner.Permanent, runner.CodeBadRequest},
		{"not found", http.StatusNotFound, `{"detail": "Not Found"}`, runner.Permanent, runner.CodeRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p, _ := NewWebUIProvider(WebUIConfig{BaseURL: srv.URL})
			_, err := p.Submit(context.Background(), testSubmission("x"))
			wantKind(t, err, tt.kind, tt.code)
		})
	}
}

func TestWebUIProvider_EmptyAndCorruptResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind runner.ErrorKind
	}{
		{"no images", `{"images": []}`, runner.Transient},
		{"bad base64", `{"images": ["***"]}`, runner.Permanent},
		{"not json", `<html>`, runner.Transient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p, _ := NewWebUIProvider(WebUIConfig{BaseURL: srv.URL})
			_, err := p.Submit(context.Background(), testSubmission("x"))
			if err == nil {
				t.Fatal("Submit() should fail")
			}
			if kind, _ := runner.Classify(err); kind != tt.kind {
				t.Errorf("kind = %s, want %s (%v)", kind, tt.kind, err)
			}
		})
	}
}

func TestWebUIProvider_ConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p, _ := NewWebUIProvider(WebUIConfig{BaseURL: url})
	_, err := p.Submit(context.Background(), testSubmission("x"))
	if kind, _ := runner.Classify(err); kind != runner.Transient {
		t.Errorf("Classify(%v) = %s, want transient", err, kind)
	}
}

func TestWebUIProvider_Cancel(t *testing.T) {
	var interrupts atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sdapi/v1/interrupt":
			interrupts.Add(1)
			close(release)
		case "/sdapi/v1/txt2img":
			close(started)
			<-release
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	p, _ := NewWebUIProvider(WebUIConfig{BaseURL: srv.URL})

	// Not running: no request is made.
	if err := p.Cancel(context.Background(), 42); err != nil {
		t.Fatalf("Cancel() idle error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.Submit(context.Background(), testSubmission("x"))
		done <- err
	}()
	<-started
	if err := p.Cancel(context.Background(), 1); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	<-done

	if n := interrupts.Load(); n != 1 {
		t.Errorf("interrupt calls = %d, want 1", n)
	}
}
