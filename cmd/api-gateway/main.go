// Package main provides the URSA API Gateway service
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ursa-watch/ursa/pkg/config"
	"github.com/ursa-watch/ursa/pkg/handler"
)

// Config holds the API gateway configuration
type Config struct {
	// Server settings
	HTTPAddr string
	HTTPPort int

	// External services
	NATSUrl    string
	ConfigFile string

	// CORS settings
	CORSOrigins []string

	// Logging
	LogLevel string
	LogJSON  bool
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    "0.0.0.0",
		HTTPPort:    8080,
		NATSUrl:     getEnv("NATS_URL", "nats://localhost:4222"),
		ConfigFile:  os.Getenv("CONFIG_FILE"),
		CORSOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000", "http://localhost:3001", "http://127.0.0.1:3001"},
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogJSON:     getEnv("LOG_JSON", "false") == "true",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Prometheus metrics
var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ursa_api_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ursa_api_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	wsConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ursa_api_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	natsConnectionStatus = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ursa_api_nats_connection_status",
			Help: "NATS connection status (1=connected, 0=disconnected)",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(wsConnectionsActive)
	prometheus.MustRegister(natsConnectionStatus)
}

func main() {
	cfg := DefaultConfig()

	// Setup logging
	setupLogging(cfg)

	log.Info().
		Str("nats_url", cfg.NATSUrl).
		Int("http_port", cfg.HTTPPort).
		Msg("Starting URSA API Gateway")

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	fileCfg, err := config.Load(cfg.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Connect to NATS
	nc := connectNATS(cfg)
	defer func() {
		if nc != nil {
			nc.Close()
		}
	}()

	// The gateway keeps its own view of the pipeline, rebuilt from the
	// NATS firehose.
	store := handler.NewStore(fileCfg.Cameras, log.Logger)
	if nc != nil {
		if err := store.Bind(nc); err != nil {
			log.Fatal().Err(err).Msg("Failed to bind view store to NATS")
		}
		defer store.Unbind()
	}

	// Create WebSocket hub
	wsHub := handler.NewWebSocketHub(nc, log.Logger)

	// Create router
	router := setupRouter(cfg, store, nc, wsHub)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTPAddr, cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start services
	g, gCtx := errgroup.WithContext(ctx)

	// Start WebSocket hub
	g.Go(func() error {
		wsHub.Run(gCtx)
		return nil
	})

	// Update WebSocket connection gauge periodically
	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				wsConnectionsActive.Set(float64(wsHub.ClientCount()))
			}
		}
	})

	// Start HTTP server
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		log.Info().Msg("Shutting down HTTP server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server error")
	}

	log.Info().Msg("URSA API Gateway shutdown complete")
}

func setupLogging(cfg Config) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure output format
	if cfg.LogJSON {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
}

func connectNATS(cfg Config) *nats.Conn {
	nc, err := nats.Connect(cfg.NATSUrl,
		nats.Name("ursa-api-gateway"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
			natsConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
			natsConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without real-time updates")
		return nil
	}

	log.Info().Str("url", cfg.NATSUrl).Msg("Connected to NATS")
	natsConnectionStatus.Set(1)
	return nc
}

func setupRouter(cfg Config, store *handler.Store, nc *nats.Conn, wsHub *handler.WebSocketHub) chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(correlationIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(prometheusMiddleware)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Correlation-ID", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", healthHandler(nc))

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// WebSocket endpoint
	wsHandler := handler.NewWebSocketHandler(wsHub, log.Logger)
	r.Handle("/ws", wsHandler)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		threatHandler := handler.NewThreatHandler(store, nc, log.Logger)
		r.Route("/threats", func(r chi.Router) {
			r.Get("/", threatHandler.ListThreats)
			r.Post("/resolve_all", threatHandler.ResolveAll)
			r.Get("/{threatID}", threatHandler.GetThreat)
			r.Post("/{threatID}/resolve", threatHandler.ResolveThreat)
		})

		cameraHandler := handler.NewCameraHandler(store, log.Logger)
		r.Route("/cameras", func(r chi.Router) {
			r.Get("/", cameraHandler.ListCameras)
			r.Get("/{cameraID}", cameraHandler.GetCamera)
			r.Get("/{cameraID}/detections", cameraHandler.ListCameraDetections)
			r.Get("/{cameraID}/reasoning", cameraHandler.ListCameraReasoning)
		})

		patternHandler := handler.NewPatternHandler(store, log.Logger)
		r.Get("/patterns", patternHandler.ListPatterns)
		r.Get("/dispatches", patternHandler.ListDispatches)
		r.Get("/reasoning", patternHandler.ListReasoning)

		scenarioHandler := handler.NewScenarioHandler(nc, log.Logger)
		r.Post("/scenario/start", scenarioHandler.StartScenario)
		r.Post("/scenario/stop", scenarioHandler.StopScenario)
	})

	return r
}

// correlationIDMiddleware adds a correlation ID to each request
func correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		ctx := handler.WithCorrelationID(r.Context(), correlationID)
		w.Header().Set("X-Correlation-ID", correlationID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogger logs each HTTP request
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		correlationID := handler.GetCorrelationID(r.Context())

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", duration).
			Str("correlation_id", correlationID).
			Str("remote_addr", r.RemoteAddr).
			Msg("HTTP request")
	})
}

// prometheusMiddleware records HTTP metrics
func prometheusMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}

		httpRequestsTotal.WithLabelValues(r.Method, path, fmt.Sprintf("%d", ww.Status())).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration.Seconds())
	})
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	Components    map[string]string `json:"components"`
	CorrelationID string            `json:"correlation_id"`
}

var startTime = time.Now()

func healthHandler(nc *nats.Conn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		correlationID := handler.GetCorrelationID(r.Context())

		response := HealthResponse{
			Status:        "healthy",
			Version:       "1.0.0",
			Uptime:        time.Since(startTime).Round(time.Second).String(),
			Components:    make(map[string]string),
			CorrelationID: correlationID,
		}

		// Check NATS
		if nc == nil || !nc.IsConnected() {
			response.Components["nats"] = "disconnected"
			response.Status = "degraded"
			natsConnectionStatus.Set(0)
		} else {
			response.Components["nats"] = "connected"
			natsConnectionStatus.Set(1)
		}

		status := http.StatusOK
		if response.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}

		handler.WriteJSON(w, status, response)
	}
}
