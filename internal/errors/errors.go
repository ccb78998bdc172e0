// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("rate limited")
	ErrUpstream           = errors.New("upstream provider error")
	ErrSymbolNotFound     = errors.New("symbol not found")
	ErrNotFound           = errors.New("not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrInputValidation    = errors.New("input validation failed")
	ErrUnknownTool        = errors.New("unknown tool")
	ErrNotConfigured      = errors.New("provider not configured")
)

// ProviderError represents a failed call to an upstream provider (market
// data or LLM). Kind is one of the sentinel errors above and decides
// whether the caller may retry.
type ProviderError struct {
	Provider string
	Op       string
	Status   int
	Kind     error
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.Status, e.cause())
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.cause())
}

func (e *ProviderError) cause() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Unwrap exposes both the sentinel kind and the underlying cause.
func (e *ProviderError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Retryable reports whether the failure is transient.
func (e *ProviderError) Retryable() bool {
	return errors.Is(e.Kind, ErrRateLimited) || errors.Is(e.Kind, ErrTimeout)
}

// NewProviderError classifies an HTTP status into a ProviderError.
func NewProviderError(provider, op string, status int, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Op:       op,
		Status:   status,
		Kind:     KindForStatus(status),
		Err:      err,
	}
}

// KindForStatus maps an HTTP status code to a sentinel error.
func KindForStatus(status int) error {
	switch status {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrInvalidCredentials
	case http.StatusNotFound:
		return ErrSymbolNotFound
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return ErrTimeout
	default:
		return ErrUpstream
	}
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return errors.Is(err, ErrRateLimited)
}

// ToolError represents a failure while executing a named tool.
type ToolError struct {
	Tool   string
	Symbol string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("tool %s [%s]: %v", e.Tool, e.Symbol, e.Err)
	}
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// NewToolError creates a new ToolError.
func NewToolError(tool, symbol string, err error) *ToolError {
	return &ToolError{Tool: tool, Symbol: symbol, Err: err}
}

// ParseError represents malformed model output or marker payloads.
type ParseError struct {
	Source   string
	Fragment string
	Err      error
}

func (e *ParseError) Error() string {
	frag := e.Fragment
	if len(frag) > 80 {
		frag = frag[:80] + "..."
	}
	return fmt.Sprintf("parse error [%s] %q: %v", e.Source, frag, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(source, fragment string, err error) *ParseError {
	return &ParseError{Source: source, Fragment: fragment, Err: err}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// API error codes exposed to HTTP clients.
const (
	CodeInvalidRequest = "invalid_request"
	CodeNotFound       = "not_found"
	CodeRateLimited    = "rate_limited"
	CodeUpstreamAuth   = "upstream_auth"
	CodeUpstream       = "upstream_error"
	CodeTimeout        = "timeout"
	CodeInternal       = "internal"
)

// APIError is the machine-readable error surfaced by the HTTP API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error [%s] %d: %s", e.Code, e.Status, e.Message)
}

// ToAPIError maps any error onto a stable code and HTTP status.
func ToAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, ErrInputValidation):
		return &APIError{Code: CodeInvalidRequest, Message: err.Error(), Status: http.StatusBadRequest}
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrSymbolNotFound):
		return &APIError{Code: CodeNotFound, Message: err.Error(), Status: http.StatusNotFound}
	case errors.Is(err, ErrRateLimited):
		return &APIError{Code: CodeRateLimited, Message: "upstream rate limit exceeded, retry later", Status: http.StatusTooManyRequests}
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrNotConfigured):
		return &APIError{Code: CodeUpstreamAuth, Message: "upstream provider rejected credentials", Status: http.StatusBadGateway}
	case errors.Is(err, ErrTimeout):
		return &APIError{Code: CodeTimeout, Message: "upstream provider timed out", Status: http.StatusGatewayTimeout}
	case errors.Is(err, ErrUpstream):
		return &APIError{Code: CodeUpstream, Message: "upstream provider failed", Status: http.StatusBadGateway}
	default:
		return &APIError{Code: CodeInternal, Message: "internal error", Status: http.StatusInternalServerError}
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
