package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NERVsystems/co2mcp/pkg/core"
	"github.com/NERVsystems/co2mcp/pkg/distance"
	"github.com/NERVsystems/co2mcp/pkg/emissions"
	"github.com/NERVsystems/co2mcp/pkg/monitoring"
	"github.com/NERVsystems/co2mcp/pkg/osm"
	"github.com/NERVsystems/co2mcp/pkg/registration"
	"github.com/NERVsystems/co2mcp/pkg/routes"
	"github.com/NERVsystems/co2mcp/pkg/server"
	"github.com/NERVsystems/co2mcp/pkg/session"
	"github.com/NERVsystems/co2mcp/pkg/tools"
	"github.com/NERVsystems/co2mcp/pkg/tracing"
	ver "github.com/NERVsystems/co2mcp/pkg/version"
)

var (
	showVersionFlag bool
	debug           bool
	userAgent       string

	// Data files
	coefficientsFile string
	routesFile       string

	// Upstream services
	nominatimURL   string
	osrmURL        string
	nominatimRPS   float64
	nominatimBurst int
	osrmRPS        float64
	osrmBurst      int
	geocodeTimeout time.Duration
	routeTimeout   time.Duration
	noFallback     bool

	// HTTP transport flags
	enableHTTP    bool
	httpOnly      bool
	httpAddr      string
	httpBaseURL   string
	httpAuthType  string
	httpAuthToken string

	// Monitoring flags
	enableMonitoring bool
	monitoringAddr   string

	// Registration flags
	enableRegistration bool
	registryURL        string
	serviceURL         string
	internalURL        string

	sessionTTL time.Duration
)

func init() {
	flag.BoolVar(&showVersionFlag, "version", false, "Display version information")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.StringVar(&userAgent, "user-agent", osm.DefaultUserAgent, "User-Agent string for Nominatim and OSRM requests")

	flag.StringVar(&coefficientsFile, "coefficients", "", "YAML file with emission factors and credit pricing (embedded defaults if empty)")
	flag.StringVar(&routesFile, "routes", "", "YAML file with preset routes (embedded defaults if empty)")

	flag.StringVar(&nominatimURL, "nominatim-url", osm.DefaultNominatimURL, "Nominatim base URL")
	flag.StringVar(&osrmURL, "osrm-url", osm.DefaultOSRMURL, "OSRM base URL")
	flag.Float64Var(&nominatimRPS, "nominatim-rps", 1.0, "Nominatim rate limit in requests per second")
	flag.IntVar(&nominatimBurst, "nominatim-burst", 1, "Nominatim rate limit burst size")
	flag.Float64Var(&osrmRPS, "osrm-rps", 1.0, "OSRM rate limit in requests per second")
	flag.IntVar(&osrmBurst, "osrm-burst", 1, "OSRM rate limit burst size")
	flag.DurationVar(&geocodeTimeout, "geocode-timeout", distance.DefaultGeocodeTimeout, "Timeout for each geocoding lookup")
	flag.DurationVar(&routeTimeout, "route-timeout", distance.DefaultRouteTimeout, "Timeout for each routing request")
	flag.BoolVar(&noFallback, "no-fallback", false, "Fail instead of using straight-line distance when no road route exists")

	flag.BoolVar(&enableHTTP, "enable-http", false, "Enable HTTP+SSE transport and the JSON API (in addition to stdio)")
	flag.BoolVar(&httpOnly, "http-only", false, "Run HTTP transport only, skip stdio (requires --enable-http)")
	flag.StringVar(&httpAddr, "http-addr", ":7082", "HTTP server address")
	flag.StringVar(&httpBaseURL, "http-base-url", "", "Base URL for HTTP transport (auto-detected if empty)")
	flag.StringVar(&httpAuthType, "http-auth-type", "none", "HTTP authentication type: none, bearer, basic")
	flag.StringVar(&httpAuthToken, "http-auth-token", "", "HTTP authentication token (user:password for basic)")

	flag.BoolVar(&enableMonitoring, "enable-monitoring", true, "Enable Prometheus metrics and health endpoints")
	flag.StringVar(&monitoringAddr, "monitoring-addr", ":9090", "Monitoring server address")

	flag.BoolVar(&enableRegistration, "enable-registration", false, "Register with a service registry and send heartbeats")
	flag.StringVar(&registryURL, "registry-url", "", "Service registry URL (e.g., http://nerva-monitor:7083)")
	flag.StringVar(&serviceURL, "service-url", "", "External URL where this service is accessible")
	flag.StringVar(&internalURL, "internal-url", "", "Internal URL for container environments")

	flag.DurationVar(&sessionTTL, "session-ttl", session.DefaultTTL, "Idle time after which an estimation session expires")
}

func main() {
	flag.Parse()

	if showVersionFlag {
		fmt.Println(ver.String())
		return
	}

	var logLevel slog.Level
	if debug {
		logLevel = slog.LevelDebug
	} else {
		logLevel = slog.LevelInfo
	}

	// stdout carries the MCP stdio stream
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(logger, logLevel); err != nil {
		logger.Error("co2mcp failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(logger *slog.Logger, logLevel slog.Level) error {
	authType, err := parseAuthType(httpAuthType)
	if err != nil {
		return err
	}
	if httpOnly && !enableHTTP {
		return fmt.Errorf("--http-only requires --enable-http")
	}

	table, err := loadTable()
	if err != nil {
		return err
	}
	catalog, err := loadRoutes()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.InitTracing(ctx, ver.BuildVersion)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("error shutting down tracing", "error", err)
			}
		}()
		if endpoint := os.Getenv("OTLP_ENDPOINT"); endpoint != "" {
			logger.Info("OpenTelemetry tracing enabled", "endpoint", endpoint)
		}
	}

	osm.SetUserAgent(userAgent)
	osm.ConfigureService(tracing.ServiceNominatim, nominatimURL, nominatimRPS, nominatimBurst)
	osm.ConfigureService(tracing.ServiceOSRM, osrmURL, osrmRPS, osrmBurst)

	logger.Info("starting CO2 estimator MCP server",
		"version", ver.BuildVersion,
		"log_level", logLevel.String(),
		"user_agent", userAgent,
		"modes", table.Modes(),
		"preset_routes", len(catalog.List()),
		"nominatim_url", nominatimURL,
		"osrm_url", osrmURL,
		"nominatim_rps", nominatimRPS,
		"osrm_rps", osrmRPS,
		"straight_line_fallback", !noFallback,
		"http_enabled", enableHTTP,
		"monitoring_enabled", enableMonitoring,
		"monitoring_addr", monitoringAddr)

	var healthChecker *monitoring.HealthChecker
	if enableMonitoring {
		healthChecker = monitoring.NewHealthChecker(monitoring.ServiceName, ver.BuildVersion)
		defer healthChecker.Shutdown()

		osm.SetMonitoringHooks(&osm.MonitoringHooks{
			OnResponse: func(service, operation string, duration time.Duration, success bool) {
				monitoring.RecordExternalServiceRequest(service, operation, duration, success)
			},
			OnRateLimit: func(service string, waitTime time.Duration) {
				monitoring.RecordRateLimitWait(service, waitTime)
				monitoring.RecordRateLimitExceeded(service)
			},
			OnError: func(service, errorType string) {
				monitoring.RecordError(service, errorType)
			},
			OnCache: monitoring.RecordCache,
		})

		monitors := startExternalServiceMonitoring(healthChecker, logger)
		defer func() {
			for _, m := range monitors {
				m.Stop()
			}
		}()
	}

	geocoder := osm.NewGeocoder(osm.GeocoderOptions{Logger: logger})

	resolverCfg := distance.Config{
		GeocodeTimeout:  geocodeTimeout,
		RouteTimeout:    routeTimeout,
		DisableFallback: noFallback,
		OnResolve:       monitoring.RecordResolution,
		Logger:          logger,
	}
	if healthChecker != nil {
		resolverCfg.Availability = distance.AvailabilityFunc(func(service string) bool {
			switch service {
			case distance.ServiceGeocoder:
				return healthChecker.Available(tracing.ServiceNominatim)
			case distance.ServiceRouter:
				return healthChecker.Available(tracing.ServiceOSRM)
			default:
				return true
			}
		})
	}

	sessions := session.NewStore(session.StoreOptions{TTL: sessionTTL, Logger: logger})
	monitoring.SetSessionCounter(sessions.Len)

	svc := tools.Services{
		Calculator: emissions.NewCalculator(table),
		Resolver:   distance.NewResolver(distance.NominatimGeocoder{Client: geocoder}, distance.NewOSRMRouter(), resolverCfg),
		Sessions:   sessions,
		Routes:     catalog,
	}

	s, err := server.NewServer(logger, svc)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	if enableMonitoring {
		startMetricsServer(ctx, logger)
	}

	if enableRegistration {
		regClient := registration.NewClient(registrationConfig(s.Registry().GetToolNames()), logger)
		regClient.Start(ctx)
		defer regClient.Stop()
	}

	if enableHTTP {
		config := server.DefaultHTTPTransportConfig()
		config.Addr = httpAddr
		config.BaseURL = httpBaseURL
		config.AuthType = authType
		config.AuthToken = httpAuthToken

		api := server.NewHandler(logger, s.Registry(), table)
		httpTransport := server.NewHTTPTransport(s.GetMCPServer(), api, config, logger)
		if healthChecker != nil {
			httpTransport.SetHealthChecker(healthChecker)
		}

		go func() {
			if err := httpTransport.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP transport error", "error", err)
				stop()
			}
		}()

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := httpTransport.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown HTTP transport", "error", err)
			}
		}()
	}

	// Without HTTP, stdio runs on the main goroutine and its EOF ends the
	// process. With HTTP, stdio runs alongside unless --http-only is set.
	switch {
	case !enableHTTP:
		logger.Info("transport_enabled", "type", "stdio", "mode", "blocking")
		return s.RunWithContext(ctx)
	case httpOnly:
		logger.Info("server_ready", "transports", []string{"http"}, "http_only", true)
	default:
		go func() {
			logger.Info("transport_enabled", "type", "stdio", "mode", "background")
			if err := s.RunWithContext(ctx); err != nil {
				logger.Error("stdio transport error", "error", err)
			}
		}()
		logger.Info("server_ready", "transports", []string{"stdio", "http"})
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}

func registrationConfig(toolNames []string) registration.Config {
	svcURL := serviceURL
	if svcURL == "" && enableHTTP {
		svcURL = "http://localhost" + httpAddr
	}
	cfg := registration.Config{
		RegistryURL:  registryURL,
		ServiceName:  "co2mcp",
		ServiceURL:   svcURL,
		HealthURL:    svcURL + "/health",
		InternalURL:  internalURL,
		Version:      ver.BuildVersion,
		Capabilities: []string{"co2-estimation", "distance-resolution", "carbon-credits"},
		Tools:        toolNames,
		Metadata: map[string]any{
			"transport": map[string]bool{"stdio": !httpOnly, "http": enableHTTP},
		},
	}
	if internalURL != "" {
		cfg.InternalHealthURL = internalURL + "/health"
	}
	return cfg
}

func parseAuthType(v string) (core.AuthType, error) {
	switch t := core.AuthType(strings.ToLower(v)); t {
	case core.AuthNone, core.AuthBearer, core.AuthBasic:
		if t != core.AuthNone && httpAuthToken == "" {
			return "", fmt.Errorf("--http-auth-type %s requires --http-auth-token", t)
		}
		return t, nil
	default:
		return "", fmt.Errorf("unknown --http-auth-type %q", v)
	}
}

func loadTable() (*emissions.Table, error) {
	if coefficientsFile == "" {
		return emissions.Load()
	}
	return emissions.LoadFile(coefficientsFile)
}

func loadRoutes() (*routes.Catalog, error) {
	if routesFile == "" {
		return routes.Default()
	}
	data, err := os.ReadFile(routesFile)
	if err != nil {
		return nil, fmt.Errorf("read routes: %w", err)
	}
	return routes.Parse(data)
}

// startMetricsServer serves Prometheus metrics until ctx is done
func startMetricsServer(ctx context.Context, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	monitoringServer := &http.Server{
		Addr:              monitoringAddr,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting Prometheus metrics server", "addr", monitoringAddr)
		if err := monitoringServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("monitoring server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := monitoringServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown monitoring server", "error", err)
		}
	}()
}

// startExternalServiceMonitoring polls Nominatim and OSRM so the resolver
// can skip services that are known to be down
func startExternalServiceMonitoring(healthChecker *monitoring.HealthChecker, logger *slog.Logger) []*monitoring.ConnectionMonitor {
	monitors := []*monitoring.ConnectionMonitor{
		monitoring.NewConnectionMonitor(tracing.ServiceNominatim, healthChecker, osm.CheckNominatimHealth, 30*time.Second),
		monitoring.NewConnectionMonitor(tracing.ServiceOSRM, healthChecker, osm.CheckOSRMHealth, 30*time.Second),
	}
	for _, m := range monitors {
		m.Start()
	}

	logger.Info("started external service monitoring",
		"services", []string{tracing.ServiceNominatim, tracing.ServiceOSRM},
		"check_interval", "30s")
	return monitors
}
