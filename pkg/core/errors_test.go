package core

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestMCPErrorResult(t *testing.T) {
	err := NewError(ErrPlaceNotFound, "place not found").
		WithQuery("Cidade Inexistente").
		WithGuidance("Check the spelling or enter the distance manually")

	result := err.ToMCPResult()
	if !result.IsError {
		t.Fatal("expected error result")
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	var decoded MCPError
	if err := json.Unmarshal([]byte(text.Text), &decoded); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if decoded.Code != "PLACE_NOT_FOUND" || decoded.Query != "Cidade Inexistente" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrPlaceNotFound, http.StatusNotFound},
		{ErrRouteNotFound, http.StatusUnprocessableEntity},
		{ErrServiceUnavailable, http.StatusServiceUnavailable},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrInvalidDistance, http.StatusBadRequest},
		{ErrRouteNotResolved, http.StatusConflict},
		{ErrSessionNotFound, http.StatusNotFound},
		{ErrServiceTimeout, http.StatusGatewayTimeout},
		{ErrInternalError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := NewError(tt.code, "x").HTTPStatus(); got != tt.want {
			t.Errorf("%s HTTPStatus() = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestServiceError(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorCode
	}{
		{http.StatusTooManyRequests, ErrRateLimit},
		{http.StatusGatewayTimeout, ErrServiceTimeout},
		{http.StatusBadRequest, ErrInvalidInput},
		{http.StatusInternalServerError, ErrInternalError},
		{http.StatusServiceUnavailable, ErrServiceUnavailable},
		{http.StatusTeapot, ErrServiceUnavailable},
	}
	for _, tt := range tests {
		err := ServiceError("osrm", tt.status, "boom")
		if err.Code != string(tt.want) {
			t.Errorf("status %d code = %s, want %s", tt.status, err.Code, tt.want)
		}
		if err.Guidance == "" {
			t.Errorf("status %d has no guidance", tt.status)
		}
	}
}

func TestValidation(t *testing.T) {
	if err := ValidateCoords(-23.55, -46.63); err != nil {
		t.Errorf("ValidateCoords() error = %v", err)
	}
	if err := ValidateCoords(91, 0); err == nil {
		t.Error("expected latitude error")
	}
	if err := ValidateCoords(0, math.NaN()); err == nil {
		t.Error("expected longitude error")
	}

	for _, km := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		err := ValidateDistance(km)
		var mcpErr *MCPError
		if !errors.As(err, &mcpErr) || mcpErr.Code != string(ErrInvalidDistance) {
			t.Errorf("ValidateDistance(%v) = %v, want INVALID_DISTANCE", km, err)
		}
	}
	if err := ValidateDistance(0.01); err != nil {
		t.Errorf("ValidateDistance(0.01) error = %v", err)
	}

	if err := ValidateAmount("kg", 0); err != nil {
		t.Errorf("ValidateAmount(0) error = %v", err)
	}
	if err := ValidateAmount("kg", -0.1); err == nil {
		t.Error("expected error for negative amount")
	}

	if err := RequireString("origin", "  "); err == nil {
		t.Error("expected error for blank origin")
	}
}
