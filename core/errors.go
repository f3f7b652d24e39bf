package core

import (
	"errors"
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeEnvFileMissing   = "ENV_FILE_MISSING"
	ErrCodeInvalidServerURL = "INVALID_SERVER_URL"
	ErrCodeMissingAuth      = "MISSING_AUTH"
	ErrCodeMissingConfig    = "MISSING_CONFIG"
	ErrCodeInvalidValue     = "INVALID_VALUE"
	ErrCodeWildcardDir      = "WILDCARD_DIR_INVALID"
)

// ErrEnvFileMissing returns an error for an explicitly requested .env file
// that does not exist.
func ErrEnvFileMissing(path string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeEnvFileMissing,
		Message: fmt.Sprintf("Configuration file not found: %s", path),
		Action:  "Create the file or pass --env-file with an existing one",
	}
}

// ErrInvalidServerURL returns an error for a malformed WEBUI_URL.
func ErrInvalidServerURL(url string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidServerURL,
		Message: fmt.Sprintf("Invalid WEBUI_URL '%s': %s", url, reason),
		Action:  "Set WEBUI_URL to the WebUI address (e.g., http://127.0.0.1:7860)",
	}
}

// ErrMissingAuth returns an error for missing credentials of a backend.
func ErrMissingAuth(backend string) *ConfigError {
	var action string
	switch backend {
	case BackendOpenAI:
		action = "Set OPENAI_API_KEY in your .env file or choose another BACKEND"
	case BackendWebUI:
		action = "Set WEBUI_AUTH=user:password to match the WebUI --api-auth flag"
	default:
		action = fmt.Sprintf("Set the required credentials for %s in your .env file", backend)
	}
	return &ConfigError{
		Code:    ErrCodeMissingAuth,
		Message: fmt.Sprintf("Missing authentication credentials for %s", backend),
		Action:  action,
	}
}

// ErrMissingConfig returns an error for missing required configuration
func ErrMissingConfig(varName string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Missing required configuration: %s", varName),
		Action:  fmt.Sprintf("Set %s in your .env file", varName),
	}
}

// ErrInvalidValue returns an error for a value outside its allowed range.
func ErrInvalidValue(varName string, value interface{}, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("Invalid %s '%v': %s", varName, value, reason),
		Action:  fmt.Sprintf("Fix %s in your .env file or environment", varName),
	}
}

// ErrWildcardDir returns an error when WILDCARD_DIR cannot be loaded.
func ErrWildcardDir(dir string, cause error) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeWildcardDir,
		Message: fmt.Sprintf("Cannot load wildcards from %s: %v", dir, cause),
		Action:  "Set WILDCARD_DIR to a directory of .txt or .yaml wildcard files",
	}
}

// IsConfigError checks if an error is a ConfigError and returns it if so
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error if it's a ConfigError
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}
