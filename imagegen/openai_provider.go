package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"promptbatch/jobqueue"
	"promptbatch/runner"
)

const (
	defaultOpenAIURL   = "https://api.openai.com/v1"
	defaultOpenAIModel = openai.CreateImageModelDallE3
)

// OpenAIProviderConfig configures an OpenAIProvider.
type OpenAIProviderConfig struct {
	APIKey string
	// BaseURL defaults to https://api.openai.com/v1.
	BaseURL string
	// Model defaults to dall-e-3. For Azure it is the deployment name.
	Model      string
	HTTPClient *http.Client
}

// OpenAIProvider generates images with the OpenAI images API. It is safe
// for concurrent use.
//
// The API has no negative prompt or seed; NegativePrompt is ignored and
// the job's seed is echoed back unchanged.
type OpenAIProvider struct {
	client     *openai.Client
	downloader *Downloader
	model      string
	backend    string
}

var _ runner.Client = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a provider for the public OpenAI API or a
// compatible endpoint. Local endpoints are rejected: they do not serve
// image generation.
func NewOpenAIProvider(cfg OpenAIProviderConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("imagegen: OpenAI API key is required")
	}
	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = defaultOpenAIURL
	}
	if IsLocalEndpoint(endpoint) {
		return nil, fmt.Errorf("imagegen: local endpoint (%s) does not support image generation", endpoint)
	}
	if IsAzureEndpoint(endpoint) {
		return NewAzureProvider(AzureProviderConfig{
			APIKey:     cfg.APIKey,
			Endpoint:   endpoint,
			Deployment: cfg.Model,
			HTTPClient: cfg.HTTPClient,
		})
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = endpoint
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return newOpenAIProvider(openai.NewClientWithConfig(clientConfig), model, "openai", cfg.HTTPClient), nil
}

func newOpenAIProvider(client *openai.Client, model, backend string, httpClient *http.Client) *OpenAIProvider {
	return &OpenAIProvider{
		client:     client,
		downloader: NewDownloader(httpClient),
		model:      model,
		backend:    backend,
	}
}

// Model returns the image model, or the deployment for Azure.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Submit generates one image for s.
func (p *OpenAIProvider) Submit(ctx context.Context, s runner.Submission) (*jobqueue.Result, error) {
	start := time.Now()
	params := s.Parameters.WithDefaults()

	model := p.model
	if params.Model != "" && p.backend == "openai" {
		model = params.Model
	}

	req := openai.ImageRequest{
		Prompt: s.Prompt.Prompt,
		Model:  model,
		N:      1,
		Size:   fmt.Sprintf("%dx%d", params.Width, params.Height),
	}
	if isDalleModel(model) {
		req.ResponseFormat = openai.CreateImageResponseFormatB64JSON
	}
	if style, ok := params.Extra("style"); ok && isDalleModel(model) {
		req.Style = style
	}
	if quality, ok := params.Extra("quality"); ok {
		req.Quality = quality
	}

	resp, err := p.client.CreateImage(ctx, req)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Data) == 0 {
		return nil, runner.NewTransient(runner.CodeInternal, "image API returned no data", nil)
	}

	res := &jobqueue.Result{Seed: params.Seed, Backend: p.backend}
	for i, item := range resp.Data {
		img, err := p.imageFrom(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		res.Images = append(res.Images, img)
		if item.RevisedPrompt != "" {
			res.Info = item.RevisedPrompt
		}
	}
	res.Duration = time.Since(start)
	return res, nil
}

func (p *OpenAIProvider) imageFrom(ctx context.Context, item openai.ImageResponseDataInner) (jobqueue.Image, error) {
	var data []byte
	switch {
	case item.B64JSON != "":
		decoded, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return jobqueue.Image{}, runner.NewPermanent(runner.CodeInternal, "invalid base64 image", err)
		}
		data = decoded
	case item.URL != "":
		downloaded, _, err := p.downloader.DownloadBytes(ctx, item.URL)
		if err != nil {
			return jobqueue.Image{}, err
		}
		data = downloaded
	default:
		return jobqueue.Image{}, runner.NewPermanent(runner.CodeInternal, "image API returned neither data nor URL", nil)
	}
	img, err := InspectImage(data)
	if err != nil {
		return jobqueue.Image{}, runner.NewPermanent(runner.CodeInternal, "unreadable image", err)
	}
	return img, nil
}

// classifyOpenAIError maps client errors onto runner.ServiceError using
// the HTTP status when one is known.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		se := runner.FromStatus(apiErr.HTTPStatusCode, apiErr.Message)
		se.Cause = err
		return se
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		se := runner.FromStatus(reqErr.HTTPStatusCode, reqErr.Error())
		se.Cause = err
		return se
	}
	return fmt.Errorf("image generation request failed: %w", err)
}

func isDalleModel(model string) bool {
	lower := strings.ToLower(model)
	return strings.Contains(lower, "dall-e") || strings.Contains(lower, "dalle")
}
