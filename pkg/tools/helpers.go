package tools

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
)

// handlerFunc is the signature mcp-go expects for tool handlers.
type handlerFunc = func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

// decodeArguments round-trips the raw argument map through JSON so tool
// inputs can be declared as plain structs with json tags.
func decodeArguments[T any](req mcp.CallToolRequest) (T, error) {
	var input T
	if req.Params.Arguments == nil {
		return input, nil
	}
	raw, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return input, err
	}
	err = json.Unmarshal(raw, &input)
	return input, err
}

// WithParsedInput adapts a typed handler to a tool handler. Malformed
// arguments become PARSE_ERROR results and handler errors are mapped
// through ToMCPError; successful outputs are returned as JSON text.
func WithParsedInput[T any](
	toolName string,
	handler func(ctx context.Context, input T, logger *slog.Logger) (interface{}, error),
) handlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger := slog.Default().With("tool", toolName)

		input, err := decodeArguments[T](req)
		if err != nil {
			logger.Debug("rejecting malformed arguments", "error", err)
			return parseError(toolName, err).ToMCPResult(), nil
		}

		out, err := handler(ctx, input, logger)
		if err != nil {
			logger.Info("request rejected", "error", err)
			return ErrorResult(err), nil
		}
		return jsonResult(logger, out), nil
	}
}

func jsonResult(logger *slog.Logger, v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("failed to marshal result", "error", err)
		return ErrorResponse("Failed to generate result")
	}
	return mcp.NewToolResultText(string(data))
}

// IsErrorResult reports whether a tool result carries an error
func IsErrorResult(result *mcp.CallToolResult) bool {
	return result != nil && result.IsError
}

// ResultText returns the first text content of a tool result, which for
// every tool in this package is a JSON document.
func ResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, c := range result.Content {
		if text, ok := c.(mcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}
