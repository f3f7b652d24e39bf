package imagegen

import (
	"fmt"
	"io"
	"net/http"

	"promptbatch/core"
	"promptbatch/imagegen/sd"
	"promptbatch/runner"
)

// NewFromConfig builds the client selected by cfg.Backend. The returned
// closer releases backend resources and is never nil.
func NewFromConfig(cfg *core.Config, httpClient *http.Client) (runner.Client, io.Closer, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("imagegen: config cannot be nil")
	}
	switch cfg.Backend {
	case core.BackendWebUI:
		p, err := NewWebUIProvider(WebUIConfig{
			BaseURL:    cfg.WebUIURL,
			Auth:       cfg.WebUIAuth,
			Model:      cfg.ImageModel,
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, nopCloser{}, nil
	case core.BackendOpenAI:
		p, err := NewOpenAIProvider(OpenAIProviderConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIURL,
			Model:      cfg.ImageModel,
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, nopCloser{}, nil
	case core.BackendSD:
		client, err := sd.NewClient(sd.DefaultClientConfig(cfg.SDModelPath))
		if err != nil {
			return nil, nil, err
		}
		p := NewSDProvider(client)
		return p, p, nil
	case core.BackendNull:
		return NewNullProvider(0), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("imagegen: unknown backend %q", cfg.Backend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
