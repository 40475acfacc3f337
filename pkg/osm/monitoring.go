package osm

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// MonitoringHooks receive events for outbound requests. Any hook may be nil.
type MonitoringHooks struct {
	OnRequest   func(service, operation string)
	OnResponse  func(service, operation string, duration time.Duration, success bool)
	OnRateLimit func(service string, waitTime time.Duration)
	OnError     func(service, errorType string)
	OnCache     func(cacheType string, hit bool)
}

var (
	globalHooks *MonitoringHooks
	hooksMutex  sync.RWMutex
)

// rate limit waits shorter than this are not reported
const significantWait = 100 * time.Millisecond

// SetMonitoringHooks sets global monitoring hooks
func SetMonitoringHooks(hooks *MonitoringHooks) {
	hooksMutex.Lock()
	defer hooksMutex.Unlock()
	globalHooks = hooks
}

func getMonitoringHooks() *MonitoringHooks {
	hooksMutex.RLock()
	defer hooksMutex.RUnlock()
	return globalHooks
}

// MonitoredDoRequest is DoRequest with monitoring hooks around it
func MonitoredDoRequest(ctx context.Context, req *http.Request, operation string) (*http.Response, error) {
	service := getServiceFromRequest(req)
	hooks := getMonitoringHooks()

	if hooks != nil && hooks.OnRequest != nil {
		hooks.OnRequest(service, operation)
	}

	req.Header.Set("User-Agent", GetUserAgent())

	start := time.Now()
	if err := waitForRateLimit(ctx, req); err != nil {
		if hooks != nil && hooks.OnError != nil {
			hooks.OnError(service, "rate_limit_wait_error")
		}
		return nil, err
	}

	if waited := time.Since(start); waited > significantWait && hooks != nil && hooks.OnRateLimit != nil {
		hooks.OnRateLimit(service, waited)
	}

	requestStart := time.Now()
	resp, err := httpClient.Do(req)
	duration := time.Since(requestStart)

	if hooks != nil && hooks.OnResponse != nil {
		success := err == nil && resp.StatusCode < 400
		hooks.OnResponse(service, operation, duration, success)
	}

	if err != nil && hooks != nil && hooks.OnError != nil {
		hooks.OnError(service, "request_error")
	}

	return resp, err
}

// RecordCache reports a cache lookup to the hooks
func RecordCache(cacheType string, hit bool) {
	if hooks := getMonitoringHooks(); hooks != nil && hooks.OnCache != nil {
		hooks.OnCache(cacheType, hit)
	}
}

// getServiceFromRequest names the configured service for the request host
func getServiceFromRequest(req *http.Request) string {
	if svc := serviceFor(req); svc != nil {
		return svc.name
	}
	return "unknown"
}
