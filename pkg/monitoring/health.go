package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/NERVsystems/co2mcp/pkg/version"
)

// Connection states
const (
	StatusConnected    = "connected"
	StatusDegraded     = "degraded"
	StatusDisconnected = "disconnected"
	StatusError        = "error"
)

// Overall service states
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

const (
	systemMetricsInterval = 15 * time.Second

	// a check slower than this marks the connection degraded
	degradedLatency = 2 * time.Second
)

// HealthChecker tracks the geocoding and routing services the estimator
// depends on and serves the /health, /ready and /live probes.
type HealthChecker struct {
	serviceName string
	version     string
	startTime   time.Time

	mu          sync.RWMutex
	connections map[string]ConnStatus

	stop     context.CancelFunc
	stopOnce sync.Once
}

func NewHealthChecker(serviceName, version string) *HealthChecker {
	ctx, cancel := context.WithCancel(context.Background())
	hc := &HealthChecker{
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		connections: make(map[string]ConnStatus),
		stop:        cancel,
	}
	go hc.collectSystemMetrics(ctx)
	return hc
}

// UpdateConnection records the latest check result for a connection
func (h *HealthChecker) UpdateConnection(name, status string, latencyMs int64, err error) {
	cs := ConnStatus{Status: status, Latency: latencyMs, CheckedAt: time.Now()}
	if err != nil {
		cs.LastError = err.Error()
	}

	h.mu.Lock()
	h.connections[name] = cs
	h.mu.Unlock()
}

func (h *HealthChecker) RemoveConnection(name string) {
	h.mu.Lock()
	delete(h.connections, name)
	h.mu.Unlock()
}

// Available reports whether a connection is usable. Unknown connections
// count as available until their first check.
func (h *HealthChecker) Available(name string) bool {
	h.mu.RLock()
	conn, ok := h.connections[name]
	h.mu.RUnlock()
	return !ok || conn.Status == StatusConnected || conn.Status == StatusDegraded
}

// overallStatus is degraded while any connection is slow or a minority is
// failing, and unhealthy once most connections fail.
func overallStatus(conns map[string]ConnStatus) (status string, failing, degraded int) {
	for _, c := range conns {
		switch c.Status {
		case StatusError, StatusDisconnected:
			failing++
		case StatusDegraded:
			degraded++
		}
	}
	switch {
	case failing > len(conns)/2:
		return HealthUnhealthy, failing, degraded
	case failing > 0 || degraded > 0:
		return HealthDegraded, failing, degraded
	default:
		return HealthHealthy, failing, degraded
	}
}

// GetHealth returns a snapshot of service and connection health
func (h *HealthChecker) GetHealth() ServiceHealth {
	h.mu.RLock()
	connections := make(map[string]ConnStatus, len(h.connections))
	for k, v := range h.connections {
		connections[k] = v
	}
	h.mu.RUnlock()

	status, failing, degraded := overallStatus(connections)

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(h.startTime)
	return ServiceHealth{
		Service:       h.serviceName,
		Version:       h.version,
		Status:        status,
		Uptime:        uptime,
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     h.startTime,
		Connections:   connections,
		Metrics: map[string]interface{}{
			"goroutines":           runtime.NumGoroutine(),
			"memory_alloc_mb":      m.Alloc / 1024 / 1024,
			"gc_runs":              m.NumGC,
			"version_info":         version.Info(),
			"total_connections":    len(connections),
			"error_connections":    failing,
			"degraded_connections": degraded,
		},
	}
}

func writeProbe(w http.ResponseWriter, ok bool, body any) {
	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}

// HealthHandler serves the full health document; 503 when unhealthy
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := h.GetHealth()
		writeProbe(w, health.Status != HealthUnhealthy, health)
	}
}

// ReadinessHandler reports ready unless the service is unhealthy
func (h *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, _, _ := overallStatus(h.GetHealth().Connections)
		writeProbe(w, status != HealthUnhealthy, map[string]any{
			"ready":  status != HealthUnhealthy,
			"status": status,
		})
	}
}

// LivenessHandler always reports alive
func (h *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeProbe(w, true, map[string]any{
			"alive":  true,
			"uptime": time.Since(h.startTime).String(),
		})
	}
}

func (h *HealthChecker) collectSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		updateSystemMetrics()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	GoRoutines.Set(float64(runtime.NumGoroutine()))
	MemoryUsage.Set(float64(m.Alloc))
	GCRuns.Set(float64(m.NumGC))

	SystemInfo.WithLabelValues(version.BuildVersion, runtime.Version(), version.BuildCommit, version.BuildDate).Set(1)
}

// Shutdown stops background collection
func (h *HealthChecker) Shutdown() {
	h.stopOnce.Do(h.stop)
}

// CheckFunc probes one upstream service
type CheckFunc func(ctx context.Context) error

// ConnectionMonitor periodically probes one upstream service and records
// the result on a HealthChecker.
type ConnectionMonitor struct {
	name     string
	hc       *HealthChecker
	check    CheckFunc
	interval time.Duration
	timeout  time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewConnectionMonitor creates a monitor that checks every interval. Each
// check gets at most half the interval.
func NewConnectionMonitor(name string, hc *HealthChecker, check CheckFunc, interval time.Duration) *ConnectionMonitor {
	return &ConnectionMonitor{
		name:     name,
		hc:       hc,
		check:    check,
		interval: interval,
		timeout:  interval / 2,
	}
}

// Start runs the first check immediately and then every interval
func (cm *ConnectionMonitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	cm.cancel = cancel
	cm.done = make(chan struct{})
	go cm.run(ctx)
}

// Stop cancels any in-flight check and waits for the monitor to exit
func (cm *ConnectionMonitor) Stop() {
	if cm.cancel == nil {
		return
	}
	cm.cancel()
	<-cm.done
}

func (cm *ConnectionMonitor) run(ctx context.Context) {
	defer close(cm.done)

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		cm.probe(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (cm *ConnectionMonitor) probe(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, cm.timeout)
	defer cancel()

	start := time.Now()
	err := cm.check(checkCtx)
	elapsed := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	status := StatusConnected
	switch {
	case err != nil:
		status = StatusError
	case elapsed > degradedLatency:
		status = StatusDegraded
	}
	cm.hc.UpdateConnection(cm.name, status, elapsed.Milliseconds(), err)
}
