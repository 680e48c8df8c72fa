package softone

import (
	"fmt"
	"regexp"
)

// ConfigError reports missing or invalid connection settings.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("softone config: %s: %s", e.Field, e.Message)
}

// AuthError reports a failed login or authenticate step. Nothing is cached when it
// is returned.
type AuthError struct {
	Stage   string
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("softone %s failed: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("softone %s failed: %s", e.Stage, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ErrorKind classifies an APIError.
type ErrorKind string

const (
	KindTransport  ErrorKind = "transport"
	KindHTTPStatus ErrorKind = "http_status"
	KindDecode     ErrorKind = "decode"
	KindBusiness   ErrorKind = "business"
)

// APIError is a failed service call. Body never contains credentials or client ids.
type APIError struct {
	Kind       ErrorKind
	Service    string
	StatusCode int
	Code       int
	Message    string
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("softone %s: http status %d", e.Service, e.StatusCode)
	case KindBusiness:
		if e.Code != 0 {
			return fmt.Sprintf("softone %s: %s (code %d)", e.Service, e.Message, e.Code)
		}
		return fmt.Sprintf("softone %s: %s", e.Service, e.Message)
	default:
		return fmt.Sprintf("softone %s: %s error: %v", e.Service, e.Kind, e.Err)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

const maxErrorBody = 512

var secretPattern = regexp.MustCompile(`(?i)"(clientid|password|username)"\s*:\s*"[^"]*"`)

// redact masks secrets in a raw ERP body and truncates it for error context.
func redact(body []byte) string {
	masked := secretPattern.ReplaceAllString(string(body), `"$1":"[REDACTED]"`)
	if len(masked) > maxErrorBody {
		masked = masked[:maxErrorBody] + "..."
	}
	return masked
}
