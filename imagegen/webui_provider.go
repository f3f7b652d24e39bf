package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"promptbatch/jobqueue"
	"promptbatch/runner"
)

// WebUI API paths.
const (
	webuiTxt2ImgPath   = "/sdapi/v1/txt2img"
	webuiInterruptPath = "/sdapi/v1/interrupt"
	maxErrorBody       = 2048
)

// WebUIConfig configures a WebUIProvider.
type WebUIConfig struct {
	// BaseURL is the WebUI root, e.g. http://127.0.0.1:7860.
	BaseURL string
	// Auth is "user:password" when the WebUI runs with --api-auth.
	Auth string
	// Model overrides the checkpoint for jobs that do not name one.
	Model string
	// HTTPClient defaults to a client without timeout; attempts are
	// bounded by the runner's context.
	HTTPClient *http.Client
}

// WebUIProvider generates images with the Stable Diffusion WebUI API.
type WebUIProvider struct {
	base   *url.URL
	user   string
	pass   string
	model  string
	client *http.Client

	mu       sync.Mutex
	inflight map[int64]int
}

var (
	_ runner.Client   = (*WebUIProvider)(nil)
	_ runner.Canceler = (*WebUIProvider)(nil)
)

// NewWebUIProvider validates cfg and creates a provider.
func NewWebUIProvider(cfg WebUIConfig) (*WebUIProvider, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("imagegen: invalid WebUI URL %q", cfg.BaseURL)
	}
	p := &WebUIProvider{
		base:     base,
		model:    cfg.Model,
		client:   cfg.HTTPClient,
		inflight: make(map[int64]int),
	}
	if cfg.Auth != "" {
		user, pass, ok := strings.Cut(cfg.Auth, ":")
		if !ok {
			return nil, fmt.Errorf("imagegen: WebUI auth must be user:password")
		}
		p.user, p.pass = user, pass
	}
	if p.client == nil {
		p.client = &http.Client{}
	}
	return p, nil
}

type txt2imgRequest struct {
	Prompt           string         `json:"prompt"`
	NegativePrompt   string         `json:"negative_prompt,omitempty"`
	Seed             int64          `json:"seed"`
	Steps            int            `json:"steps"`
	Width            int            `json:"width"`
	Height           int            `json:"height"`
	CFGScale         float64        `json:"cfg_scale"`
	SamplerName      string         `json:"sampler_name,omitempty"`
	BatchSize        int            `json:"batch_size"`
	NIter            int            `json:"n_iter"`
	OverrideSettings map[string]any `json:"override_settings,omitempty"`
}

type txt2imgResponse struct {
	Images []string `json:"images"`
	Info   string   `json:"info"`
}

// generationInfo is the subset of the "info" JSON the WebUI returns.
type generationInfo struct {
	Seed     int64   `json:"seed"`
	AllSeeds []int64 `json:"all_seeds"`
}

// buildPayload encodes the request body. Extras are merged in as
// top-level fields; values that parse as JSON keep their type.
func (p *WebUIProvider) buildPayload(s runner.Submission) ([]byte, error) {
	params := s.Parameters.WithDefaults()
	req := txt2imgRequest{
		Prompt:         s.Prompt.Prompt,
		NegativePrompt: s.Prompt.NegativePrompt,
		Seed:           params.Seed,
		Steps:          params.Steps,
		Width:          params.Width,
		Height:         params.Height,
		CFGScale:       params.CFGScale,
		SamplerName:    params.Sampler,
		BatchSize:      1,
		NIter:          1,
	}
	override := map[string]any{}
	if model := params.Model; model != "" {
		override["sd_model_checkpoint"] = model
	} else if p.model != "" {
		override["sd_model_checkpoint"] = p.model
	}
	if params.ClipSkip > 0 {
		override["CLIP_stop_at_last_layers"] = params.ClipSkip
	}
	if len(override) > 0 {
		req.OverrideSettings = override
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if len(params.Extras) == 0 {
		return body, nil
	}

	var merged map[string]any
	if err := json.Unmarshal(body, &merged); err != nil {
		return nil, err
	}
	for k, v := range params.Extras {
		if _, taken := merged[k]; taken {
			continue
		}
		var typed any
		if err := json.Unmarshal([]byte(v), &typed); err == nil {
			merged[k] = typed
		} else {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// Submit runs txt2img for one job.
func (p *WebUIProvider) Submit(ctx context.Context, s runner.Submission) (*jobqueue.Result, error) {
	start := time.Now()
	body, err := p.buildPayload(s)
	if err != nil {
		return nil, runner.NewPermanent(runner.CodeBadRequest, "failed to encode request", err)
	}

	p.begin(s.JobID)
	defer p.end(s.JobID)

	var resp txt2imgResponse
	if err := p.post(ctx, webuiTxt2ImgPath, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Images) == 0 {
		return nil, runner.NewTransient(runner.CodeInternal, "WebUI returned no images", nil)
	}

	res := &jobqueue.Result{
		Seed:    s.Parameters.Seed,
		Backend: "webui",
		Info:    resp.Info,
	}
	var info generationInfo
	if resp.Info != "" && json.Unmarshal([]byte(resp.Info), &info) == nil {
		res.Seed = info.Seed
	}
	for i, encoded := range resp.Images {
		img, err := decodeBase64Image(encoded)
		if err != nil {
			return nil, runner.NewPermanent(runner.CodeInternal, fmt.Sprintf("image %d in WebUI response", i), err)
		}
		res.Images = append(res.Images, img)
	}
	res.Duration = time.Since(start)
	return res, nil
}

// Cancel interrupts the WebUI if jobID is currently generating on it.
func (p *WebUIProvider) Cancel(ctx context.Context, jobID int64) error {
	p.mu.Lock()
	_, running := p.inflight[jobID]
	p.mu.Unlock()
	if !running {
		return nil
	}
	return p.post(ctx, webuiInterruptPath, nil, nil)
}

func (p *WebUIProvider) begin(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inflight[id]++
}

func (p *WebUIProvider) end(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight[id]--; p.inflight[id] <= 0 {
		delete(p.inflight, id)
	}
}

func (p *WebUIProvider) post(ctx context.Context, path string, body []byte, out any) error {
	u := *p.base
	u.Path = strings.TrimRight(u.Path, "/") + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return runner.NewPermanent(runner.CodeBadRequest, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.user != "" {
		req.SetBasicAuth(p.user, p.pass)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("WebUI request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return runner.FromStatus(resp.StatusCode, webuiErrorMessage(snippet))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return runner.NewTransient(runner.CodeInternal, "failed to decode WebUI response", err)
	}
	return nil
}

// webuiErrorMessage pulls the detail out of a FastAPI error body.
func webuiErrorMessage(body []byte) string {
	var e struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
		Errors string `json:"errors"`
	}
	if json.Unmarshal(body, &e) == nil {
		for _, s := range []string{e.Detail, e.Errors, e.Error} {
			if s != "" {
				return s
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response body"
	}
	return msg
}

func decodeBase64Image(encoded string) (jobqueue.Image, error) {
	if i := strings.Index(encoded, ";base64,"); i != -1 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return jobqueue.Image{}, fmt.Errorf("invalid base64: %w", err)
	}
	return InspectImage(data)
}
