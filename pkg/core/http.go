package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/co2mcp/pkg/tracing"
)

// RetryOptions configures WithRetry's exponential backoff
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryOptions makes three attempts, 0.5s then 1s apart
var DefaultRetryOptions = RetryOptions{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
	Multiplier:   2.0,
}

var defaultClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// next returns the delay before attempt n (n >= 1)
func (o RetryOptions) next(n int) time.Duration {
	d := o.InitialDelay
	for i := 1; i < n; i++ {
		d = time.Duration(float64(d) * o.Multiplier)
		if d >= o.MaxDelay {
			return o.MaxDelay
		}
	}
	return min(d, o.MaxDelay)
}

// retryAfter parses a Retry-After header given in seconds
func retryAfter(resp *http.Response) (time.Duration, bool) {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// WithRetry performs a body-less request, retrying transport errors, 429s
// and 5xx responses. A 429's Retry-After is honoured up to MaxDelay. Any
// other response, including 4xx, is returned to the caller to interpret.
func WithRetry(ctx context.Context, req *http.Request, client *http.Client, options RetryOptions) (*http.Response, error) {
	if req.Body != nil && req.Body != http.NoBody {
		return nil, NewError(ErrInternalError, "cannot retry request with non-nil body")
	}
	if client == nil {
		client = defaultClient
	}
	options.MaxAttempts = max(options.MaxAttempts, 1)

	ctx, span := tracing.StartSpan(ctx, "http.request "+req.Method+" "+req.URL.Host,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(tracing.AttrHTTPMethod, req.Method),
			attribute.String("http.host", req.URL.Host),
			attribute.Int("http.retry.max_attempts", options.MaxAttempts),
		),
	)
	defer span.End()

	logger := slog.Default().With("host", req.URL.Host, "path", req.URL.Path)

	var (
		lastErr error
		wait    time.Duration
	)
	for attempt := 1; attempt <= options.MaxAttempts; attempt++ {
		if attempt > 1 {
			span.AddEvent("retry", trace.WithAttributes(
				attribute.Int("attempt", attempt),
				attribute.Int64("delay_ms", wait.Milliseconds()),
			))
			logger.Info("retrying request", "attempt", attempt, "delay", wait, "last_error", lastErr)

			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				span.SetStatus(codes.Error, "request cancelled")
				return nil, ctx.Err()
			}
		}
		wait = options.next(attempt)

		resp, err := client.Do(req.Clone(ctx))
		if err != nil {
			if ctx.Err() != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "request cancelled")
				return nil, ctx.Err()
			}
			lastErr = err
			logger.Warn("request failed", "attempt", attempt, "error", err)
			continue
		}

		if !retryable(resp.StatusCode) {
			span.SetAttributes(
				attribute.Int(tracing.AttrHTTPStatusCode, resp.StatusCode),
				attribute.Int("http.retry.attempts", attempt),
			)
			return resp, nil
		}

		if d, ok := retryAfter(resp); ok && resp.StatusCode == http.StatusTooManyRequests {
			wait = min(d, options.MaxDelay)
		}
		lastErr = ServiceError(req.URL.Host, resp.StatusCode, "HTTP status "+strconv.Itoa(resp.StatusCode))
		logger.Warn("retryable status", "status", resp.StatusCode, "attempt", attempt)
		resp.Body.Close()
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "max retries exceeded")

	if mcpErr, ok := lastErr.(*MCPError); ok {
		return nil, mcpErr.WithGuidance("Maximum retry attempts reached. " + mcpErr.Guidance)
	}
	return nil, NewError(ErrNetworkError, fmt.Sprintf("request failed: %v", lastErr)).
		WithGuidance("The request failed after multiple attempts. Please try again later")
}
