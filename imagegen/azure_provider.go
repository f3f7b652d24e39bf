package imagegen

import (
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// AzureProviderConfig configures an Azure OpenAI image deployment.
type AzureProviderConfig struct {
	APIKey string
	// Endpoint is the resource URL, e.g. https://res.openai.azure.com/.
	Endpoint string
	// Deployment is the image deployment name, e.g. dalle3.
	Deployment string
	// APIVersion overrides the client library default.
	APIVersion string
	HTTPClient *http.Client
}

// NewAzureProvider creates an OpenAIProvider that talks to an Azure
// deployment. Every request goes to the deployment regardless of the
// job's model.
func NewAzureProvider(cfg AzureProviderConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("imagegen: Azure API key is required")
	}
	if !IsAzureEndpoint(cfg.Endpoint) {
		return nil, fmt.Errorf("imagegen: endpoint (%s) is not an Azure OpenAI endpoint", cfg.Endpoint)
	}
	if cfg.Deployment == "" {
		return nil, fmt.Errorf("imagegen: Azure deployment name is required; set IMAGE_MODEL")
	}

	clientConfig := openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	if cfg.APIVersion != "" {
		clientConfig.APIVersion = cfg.APIVersion
	}
	deployment := cfg.Deployment
	clientConfig.AzureModelMapperFunc = func(string) string { return deployment }
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}
	return newOpenAIProvider(openai.NewClientWithConfig(clientConfig), deployment, "azure", cfg.HTTPClient), nil
}
