package tracing

import "go.opentelemetry.io/otel/attribute"

// Attribute keys
const (
	AttrMCPToolName     = "mcp.tool.name"
	AttrMCPToolStatus   = "mcp.tool.status"
	AttrMCPToolDuration = "mcp.tool.duration_ms"
	AttrMCPResultSize   = "mcp.tool.result_size"

	// external geocoding and routing services
	AttrServiceName      = "co2.service.name"
	AttrServiceOperation = "co2.service.operation"
	AttrServiceURL       = "co2.service.url"
	AttrServiceStatus    = "co2.service.status"

	AttrCacheType = "co2.cache.type"
	AttrCacheHit  = "co2.cache.hit"
	AttrCacheKey  = "co2.cache.key"

	AttrRateLimitService = "co2.ratelimit.service"
	AttrRateLimitWaitMs  = "co2.ratelimit.wait_ms"

	// distance resolution
	AttrResolvePrecision = "co2.resolve.precision"
	AttrResolveFallback  = "co2.resolve.fallback"
	AttrResolveKm        = "co2.resolve.km"
	AttrResolveMode      = "co2.resolve.mode"

	AttrSessionID = "co2.session.id"

	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
	AttrHTTPPath       = "http.path"
	AttrHTTPSessionID  = "http.session_id"
	AttrHTTPRequestID  = "http.request_id"
)

// Status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Service names
const (
	ServiceNominatim = "nominatim"
	ServiceOSRM      = "osrm"
)

// Cache types
const (
	CacheTypeGeocode = "geocode"
	CacheTypeRoute   = "route"
)

// MCPToolAttributes returns attributes for MCP tool execution
func MCPToolAttributes(toolName string, status string, durationMs int64, resultSize int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrMCPToolName, toolName),
		attribute.String(AttrMCPToolStatus, status),
		attribute.Int64(AttrMCPToolDuration, durationMs),
		attribute.Int(AttrMCPResultSize, resultSize),
	}
}

// ServiceAttributes identifies an outbound call to a geocoding or routing
// service
func ServiceAttributes(service, operation, baseURL string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrServiceName, service),
		attribute.String(AttrServiceOperation, operation),
		attribute.String(AttrServiceURL, baseURL),
	}
}

// CacheAttributes returns attributes for cache lookups
func CacheAttributes(cacheType string, hit bool, key string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCacheType, cacheType),
		attribute.Bool(AttrCacheHit, hit),
		attribute.String(AttrCacheKey, key),
	}
}

// ResolveAttributes describes a completed distance resolution
func ResolveAttributes(precision string, fallback bool, km float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrResolvePrecision, precision),
		attribute.Bool(AttrResolveFallback, fallback),
		attribute.Float64(AttrResolveKm, km),
	}
}
