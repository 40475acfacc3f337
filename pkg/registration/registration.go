// Package registration announces the server to a service registry and keeps
// the entry alive with heartbeats. Registration is optional: a missing or
// failing registry never affects the tools.
package registration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/NERVsystems/co2mcp/pkg/monitoring"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultTimeout           = 5 * time.Second

	registryService = "registry"
)

// Config holds the configuration for service registration.
type Config struct {
	// RegistryURL is the registry base URL, e.g. "http://nerva-monitor:7083"
	RegistryURL string

	ServiceName string
	ServiceType string // "mcp" when empty
	ServiceURL  string
	HealthURL   string

	// Internal URLs for container networks
	InternalURL       string
	InternalHealthURL string

	Version      string
	Capabilities []string
	Tools        []string
	Metadata     map[string]any

	HeartbeatInterval time.Duration
	Timeout           time.Duration
}

// Request is the body of POST /api/register
type Request struct {
	Name           string         `json:"name"`
	Type           string         `json:"type"`
	URL            string         `json:"url"`
	HealthURL      string         `json:"health_url"`
	InternalURL    string         `json:"internal_url,omitempty"`
	InternalHealth string         `json:"internal_health_url,omitempty"`
	Version        string         `json:"version"`
	Capabilities   []string       `json:"capabilities,omitempty"`
	Tools          []string       `json:"tools,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Response is the registry's answer to a registration or heartbeat
type Response struct {
	Status          string    `json:"status"`
	Name            string    `json:"name"`
	TTLSeconds      int       `json:"ttl_seconds"`
	NextHeartbeatBy time.Time `json:"next_heartbeat_by"`
}

// Client registers one service and sends heartbeats until stopped
type Client struct {
	cfg        Config
	logger     *slog.Logger
	httpClient *http.Client

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.RWMutex
	registered bool
}

// NewClient creates a registration client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ServiceType == "" {
		cfg.ServiceType = "mcp"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:        cfg,
		logger:     logger.With("service", registryService),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Start registers in the background and returns immediately.
func (c *Client) Start(ctx context.Context) {
	if c.cfg.RegistryURL == "" {
		c.logger.Warn("service registration enabled but no registry URL configured")
		return
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.heartbeatLoop(ctx)
}

// Stop deregisters and waits for the heartbeat loop to exit.
func (c *Client) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()
	if err := c.deregister(ctx); err != nil {
		c.logger.Debug("deregistration failed", "error", err)
	}
}

// IsRegistered reports whether the last heartbeat succeeded
func (c *Client) IsRegistered() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registered
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	defer c.wg.Done()

	c.heartbeat(ctx)

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.heartbeat(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) heartbeat(ctx context.Context) {
	resp, err := c.register(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Debug("registration failed (registry may be unavailable)", "error", err)
		}
		c.setRegistered(false)
		return
	}

	if !c.IsRegistered() {
		c.logger.Info("registered with service registry",
			"name", c.cfg.ServiceName,
			"ttl_seconds", resp.TTLSeconds)
	}
	c.setRegistered(true)
}

func (c *Client) register(ctx context.Context) (Response, error) {
	start := time.Now()
	var out Response

	body, err := json.Marshal(Request{
		Name:           c.cfg.ServiceName,
		Type:           c.cfg.ServiceType,
		URL:            c.cfg.ServiceURL,
		HealthURL:      c.cfg.HealthURL,
		InternalURL:    c.cfg.InternalURL,
		InternalHealth: c.cfg.InternalHealthURL,
		Version:        c.cfg.Version,
		Capabilities:   c.cfg.Capabilities,
		Tools:          c.cfg.Tools,
		Metadata:       c.cfg.Metadata,
	})
	if err != nil {
		return out, fmt.Errorf("marshal registration: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RegistryURL+"/api/register", bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		monitoring.RecordExternalServiceRequest(registryService, "register", time.Since(start), false)
		return out, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		monitoring.RecordExternalServiceRequest(registryService, "register", time.Since(start), false)
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return out, fmt.Errorf("registry returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	err = json.NewDecoder(resp.Body).Decode(&out)
	monitoring.RecordExternalServiceRequest(registryService, "register", time.Since(start), err == nil)
	if err != nil {
		return out, fmt.Errorf("decode registration response: %w", err)
	}
	return out, nil
}

func (c *Client) deregister(ctx context.Context) error {
	if !c.IsRegistered() {
		return nil
	}
	defer c.setRegistered(false)

	endpoint := c.cfg.RegistryURL + "/api/register/" + url.PathEscape(c.cfg.ServiceName)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registry returned %d", resp.StatusCode)
	}
	c.logger.Info("deregistered from service registry", "name", c.cfg.ServiceName)
	return nil
}

func (c *Client) setRegistered(registered bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registered = registered
}
