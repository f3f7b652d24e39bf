// Package imagegen turns resolved prompts into images. Each backend
// (Stable Diffusion WebUI, OpenAI, local Stable Diffusion, null)
// implements runner.Client; FileSink writes finished images to disk.
package imagegen

import (
	"strings"
	"unicode"
)

// IsAzureEndpoint reports whether endpoint is an Azure OpenAI resource.
//
//	IsAzureEndpoint("https://res.openai.azure.com")  // true
//	IsAzureEndpoint("https://api.openai.com/v1")     // false
func IsAzureEndpoint(endpoint string) bool {
	lower := strings.ToLower(endpoint)
	return strings.Contains(lower, "openai.azure.com") ||
		strings.Contains(lower, "cognitiveservices.azure.com")
}

// IsLocalEndpoint reports whether endpoint points at this machine or a
// private network.
func IsLocalEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	lower := strings.ToLower(endpoint)
	return strings.Contains(lower, "localhost") ||
		strings.Contains(lower, "127.0.0.1") ||
		strings.Contains(lower, "0.0.0.0") ||
		strings.Contains(lower, "//192.168.") ||
		strings.Contains(lower, "//10.")
}

// ExtensionForFormat returns the file extension, with dot, for an image
// format name or MIME type. Unknown formats map to ".png".
func ExtensionForFormat(format string) string {
	lower := strings.ToLower(strings.TrimSpace(format))
	if i := strings.Index(lower, ";"); i != -1 {
		lower = strings.TrimSpace(lower[:i])
	}
	lower = strings.TrimPrefix(lower, "image/")
	switch lower {
	case "jpeg", "jpg":
		return ".jpg"
	case "gif":
		return ".gif"
	case "webp":
		return ".webp"
	default:
		return ".png"
	}
}

// SanitizeFilename replaces characters unsafe in file names and caps the
// length at 200 bytes.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r), unicode.IsControl(r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 200 {
		out = out[:200]
	}
	if out == "" || out == "." || out == ".." {
		out = "image"
	}
	return out
}
