// Package core holds the pieces shared by the tool and HTTP surfaces: the
// structured error type returned to callers, HTTP retry, and the OSRM client.
package core

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrorCode is a stable, machine-readable error identifier
type ErrorCode string

// Standard error codes
const (
	// input validation
	ErrInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrMissingParameter ErrorCode = "MISSING_PARAMETER"
	ErrInvalidParameter ErrorCode = "INVALID_PARAMETER"
	ErrUnknownMode      ErrorCode = "UNKNOWN_MODE"

	// distance resolution
	ErrPlaceNotFound    ErrorCode = "PLACE_NOT_FOUND"
	ErrRouteNotFound    ErrorCode = "ROUTE_NOT_FOUND"
	ErrInvalidDistance  ErrorCode = "INVALID_DISTANCE"
	ErrRouteNotResolved ErrorCode = "ROUTE_NOT_RESOLVED"
	ErrSessionNotFound  ErrorCode = "SESSION_NOT_FOUND"

	// upstream services
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrServiceTimeout     ErrorCode = "SERVICE_TIMEOUT"
	ErrRateLimit          ErrorCode = "RATE_LIMIT"
	ErrNetworkError       ErrorCode = "NETWORK_ERROR"

	ErrParseError    ErrorCode = "PARSE_ERROR"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// MCPError is the structured error returned by tools and the JSON API
type MCPError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Query       string   `json:"query,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Guidance    string   `json:"guidance,omitempty"`
}

// Error implements the error interface
func (e MCPError) Error() string {
	if e.Guidance != "" {
		return fmt.Sprintf("%s: %s. %s", e.Code, e.Message, e.Guidance)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a new MCPError with the given code and message
func NewError(code ErrorCode, message string) *MCPError {
	return &MCPError{
		Code:    string(code),
		Message: message,
	}
}

// WithQuery records the input that caused the error
func (e *MCPError) WithQuery(query string) *MCPError {
	e.Query = query
	return e
}

// WithGuidance sets the action the caller should take
func (e *MCPError) WithGuidance(guidance string) *MCPError {
	e.Guidance = guidance
	return e
}

// WithSuggestions adds alternative inputs to try
func (e *MCPError) WithSuggestions(suggestions ...string) *MCPError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// ToMCPResult converts the error to an MCP tool error result
func (e *MCPError) ToMCPResult() *mcp.CallToolResult {
	errorJSON, err := json.Marshal(e)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ERROR: %s - %s", e.Code, e.Message))
	}
	return mcp.NewToolResultError(string(errorJSON))
}

// HTTPStatus maps the error code to a status for the JSON API
func (e *MCPError) HTTPStatus() int {
	switch ErrorCode(e.Code) {
	case ErrPlaceNotFound, ErrSessionNotFound:
		return http.StatusNotFound
	case ErrRouteNotFound:
		return http.StatusUnprocessableEntity
	case ErrRouteNotResolved:
		return http.StatusConflict
	case ErrInvalidInput, ErrInvalidDistance, ErrMissingParameter, ErrInvalidParameter, ErrUnknownMode, ErrParseError:
		return http.StatusBadRequest
	case ErrRateLimit:
		return http.StatusTooManyRequests
	case ErrServiceUnavailable, ErrNetworkError:
		return http.StatusServiceUnavailable
	case ErrServiceTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ServiceError creates an error for an upstream HTTP failure
func ServiceError(service string, statusCode int, message string) *MCPError {
	var code ErrorCode
	var guidance string

	switch statusCode {
	case http.StatusTooManyRequests:
		code = ErrRateLimit
		guidance = "The service is rate-limited. Please try again in a few moments."
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		code = ErrServiceTimeout
		guidance = "The request timed out. Try again or enter the distance manually."
	case http.StatusBadRequest:
		code = ErrInvalidInput
		guidance = "The request was invalid. Check the origin and destination and try again."
	case http.StatusInternalServerError:
		code = ErrInternalError
		guidance = "The server encountered an error. This is likely temporary, please try again later."
	case http.StatusServiceUnavailable:
		code = ErrServiceUnavailable
		guidance = "The service is temporarily unavailable. Please try again later."
	default:
		code = ErrServiceUnavailable
		guidance = "Please try again later or enter the distance manually."
	}

	return NewError(code, fmt.Sprintf("%s service error: %s", service, message)).
		WithGuidance(guidance)
}

// NewValidationError creates an error for a rejected parameter
func NewValidationError(code ErrorCode, message string) *MCPError {
	return NewError(code, message).
		WithGuidance("Please correct the parameters and try again.")
}
