// Coordinator Agent - correlates detections across the camera network
// into patterns and deduplicated threats
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ursa-watch/ursa/pkg/agent"
	"github.com/ursa-watch/ursa/pkg/bus"
	"github.com/ursa-watch/ursa/pkg/config"
	"github.com/ursa-watch/ursa/pkg/correlation"
	"github.com/ursa-watch/ursa/pkg/messages"
	"github.com/ursa-watch/ursa/pkg/natsutil"
)

// SweepInterval is how often stale patterns and threats are expired.
const SweepInterval = 30 * time.Second

// CoordinatorAgent consumes detections and maintains correlation state.
type CoordinatorAgent struct {
	*agent.BaseAgent
	logger   zerolog.Logger
	consumer jetstream.Consumer
	engine   *correlation.Engine
	bus      *bus.Bus

	activeThreatsGauge prometheus.Gauge
	patternsGauge      prometheus.Gauge
	threatsCounter     prometheus.Counter
	rejectedCounter    prometheus.Counter
}

// NewCoordinatorAgent creates a new coordinator agent.
func NewCoordinatorAgent(cfg agent.Config, cameras []config.Camera, engineCfg correlation.Config) (*CoordinatorAgent, error) {
	base, err := agent.NewBaseAgent(cfg)
	if err != nil {
		return nil, err
	}

	activeThreatsGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coordinator_active_threats",
		Help: "Number of currently active threats",
	})
	patternsGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coordinator_live_patterns",
		Help: "Number of live movement patterns",
	})
	threatsCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coordinator_threats_created_total",
		Help: "Total threats promoted from detections",
	})
	rejectedCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coordinator_detections_rejected_total",
		Help: "Detections rejected for bad signatures or malformed payloads",
	})
	base.Metrics().MustRegister(activeThreatsGauge, patternsGauge, threatsCounter, rejectedCounter)

	b := bus.New(*base.Logger())

	return &CoordinatorAgent{
		BaseAgent:          base,
		logger:             *base.Logger(),
		engine:             correlation.New(engineCfg, cameras, b, *base.Logger()),
		bus:                b,
		activeThreatsGauge: activeThreatsGauge,
		patternsGauge:      patternsGauge,
		threatsCounter:     threatsCounter,
		rejectedCounter:    rejectedCounter,
	}, nil
}

// Run starts the coordinator agent.
func (a *CoordinatorAgent) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("failed to start base agent: %w", err)
	}

	if err := natsutil.SetupStreams(ctx, a.JetStream()); err != nil {
		return fmt.Errorf("failed to setup streams: %w", err)
	}

	consumer, err := natsutil.SetupConsumer(ctx, a.JetStream(), "DETECTIONS", "coordinator")
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}
	a.consumer = consumer

	// Forward engine events onto the JetStream subjects other agents
	// and the gateway consume.
	go a.forwardEvents(ctx)

	// Operator resolution requests arrive over core NATS from the
	// gateway.
	resolveSub, err := a.NATS().Subscribe("control.>", a.handleControl)
	if err != nil {
		return fmt.Errorf("failed to subscribe to control subjects: %w", err)
	}
	defer resolveSub.Unsubscribe()

	go a.sweepLoop(ctx)

	a.logger.Info().Msg("Coordinator agent started, consuming from DETECTIONS stream")

	return a.consumeMessages(ctx)
}

// sweepLoop periodically expires cold patterns and stale threats.
func (a *CoordinatorAgent) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.engine.ExpireInactive()
			a.activeThreatsGauge.Set(float64(len(a.engine.ActiveThreats())))
			a.patternsGauge.Set(float64(len(a.engine.Patterns())))
		}
	}
}

// handleControl processes operator resolution requests.
func (a *CoordinatorAgent) handleControl(msg *nats.Msg) {
	switch {
	case msg.Subject == "control.resolve_all":
		n := a.engine.ResolveAll()
		a.logger.Info().Int("resolved", n).Msg("Resolved all active threats")

	case strings.HasPrefix(msg.Subject, "control.resolve."):
		threatID := strings.TrimPrefix(msg.Subject, "control.resolve.")
		if _, ok := a.engine.Resolve(threatID); !ok {
			a.logger.Warn().Str("threat_id", threatID).Msg("Resolution requested for unknown or inactive threat")
		}

	default:
		a.logger.Debug().Str("subject", msg.Subject).Msg("Ignoring unknown control subject")
	}
}

// forwardEvents publishes engine bus events to JetStream.
func (a *CoordinatorAgent) forwardEvents(ctx context.Context) {
	events, cancel := a.bus.Subscribe(256)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := a.publishEvent(ctx, evt); err != nil {
				a.logger.Error().Err(err).Str("event_type", string(evt.Type)).Msg("Failed to publish event")
				a.RecordError("publish_failed")
			}
		}
	}
}

// publishEvent signs one engine event and publishes it to its subject.
func (a *CoordinatorAgent) publishEvent(ctx context.Context, evt bus.Event) error {
	var (
		msg     messages.Message
		subject string
	)

	switch payload := evt.Payload.(type) {
	case *messages.Pattern:
		msg, subject = payload, payload.Subject()
	case *messages.Threat:
		msg, subject = payload, payload.Subject()
		if evt.Type == bus.EventThreatUpdated {
			subject = payload.UpdateSubject()
		}
		if evt.Type == bus.EventThreatCreated {
			a.threatsCounter.Inc()
		}
	case *messages.ReasoningLogEntry:
		msg, subject = payload, payload.Subject()
	default:
		return fmt.Errorf("unexpected event payload %T", evt.Payload)
	}

	env := messages.NewEnvelope(a.ID(), string(agent.AgentTypeCoordinator))
	env.CorrelationID = msg.GetEnvelope().CorrelationID
	if env.CorrelationID == "" {
		env.CorrelationID = env.MessageID
	}
	msg.SetEnvelope(env)

	data, err := messages.MarshalWithSignature(msg, a.Config().Secret)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", subject, err)
	}

	if _, err := a.JetStream().Publish(ctx, subject, data, jetstream.WithMsgID(env.MessageID)); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// consumeMessages processes detection messages.
func (a *CoordinatorAgent) consumeMessages(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := a.consumer.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				continue
			}
			a.logger.Error().Err(err).Msg("Failed to fetch messages")
			a.RecordError("fetch_error")

			// A purge deletes the durable consumer out from under us.
			if strings.Contains(err.Error(), "consumer deleted") || strings.Contains(err.Error(), "consumer not found") {
				if consumer, cerr := natsutil.SetupConsumer(ctx, a.JetStream(), "DETECTIONS", "coordinator"); cerr == nil {
					a.consumer = consumer
					a.logger.Info().Msg("Recreated coordinator consumer")
					continue
				}
			}
			time.Sleep(time.Second)
			continue
		}

		for msg := range msgs.Messages() {
			if err := a.processMessage(ctx, msg); err != nil {
				var rejected *rejectedError
				if errors.As(err, &rejected) {
					a.logger.Warn().Err(err).Msg("Terminating rejected detection")
					a.rejectedCounter.Inc()
					msg.Term()
					continue
				}
				a.logger.Error().Err(err).Msg("Failed to process message")
				a.RecordError("process_error")
				msg.Nak()
			} else {
				msg.Ack()
			}
		}

		if msgs.Error() != nil && !errors.Is(msgs.Error(), context.DeadlineExceeded) {
			a.logger.Warn().Err(msgs.Error()).Msg("Message batch error")
		}
	}
}

// rejectedError marks a detection that must not be redelivered.
type rejectedError struct{ reason string }

func (e *rejectedError) Error() string { return "detection rejected: " + e.reason }

// processMessage handles a single detection message.
func (a *CoordinatorAgent) processMessage(_ context.Context, msg jetstream.Msg) error {
	start := time.Now()

	var det messages.Detection
	if err := json.Unmarshal(msg.Data(), &det); err != nil {
		return &rejectedError{reason: "unparseable payload: " + err.Error()}
	}

	if det.Envelope.Signature == "" || !messages.VerifySigned(&det, a.Config().Secret) {
		return &rejectedError{reason: "bad HMAC signature from " + det.Envelope.Source}
	}

	if !det.Activity.Valid() || det.Activity == messages.ActivityNone {
		return &rejectedError{reason: "invalid activity type " + string(det.Activity)}
	}

	correlationID := det.Envelope.CorrelationID
	if correlationID == "" {
		correlationID = det.Envelope.MessageID
	}

	res := a.engine.Ingest(det)

	a.logger.Info().
		Str("correlation_id", correlationID).
		Str("detection_id", det.DetectionID).
		Str("camera_id", det.CameraID).
		Str("activity", string(det.Activity)).
		Bool("threat_created", res.ThreatCreated).
		Bool("threat_updated", res.ThreatUpdated).
		Msg("Processed detection")

	duration := time.Since(start)
	a.RecordMessage("success", "detection")
	a.RecordLatency("detection", duration)
	return nil
}

func main() {
	cfg := agent.Config{
		ID:       getEnv("AGENT_ID", "coordinator-001"),
		Type:     agent.AgentTypeCoordinator,
		NATSUrl:  getEnv("NATS_URL", "nats://localhost:4222"),
		NATSUser: os.Getenv("NATS_USER"),
		NATSPass: os.Getenv("NATS_PASS"),
		Secret:   []byte(getEnv("SIGNING_SECRET", "dev-secret")),
	}

	fileCfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	coordinator, err := NewCoordinatorAgent(cfg, fileCfg.Cameras, correlation.DefaultConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create coordinator agent: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start metrics server
	go func() {
		metricsAddr := getEnv("METRICS_ADDR", ":9091")
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(coordinator.Metrics(), promhttp.HandlerOpts{}))
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			health := coordinator.Health()
			if health.Healthy {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			json.NewEncoder(w).Encode(health)
		})
		coordinator.logger.Info().Str("addr", metricsAddr).Msg("Starting metrics server")
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			coordinator.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()

	go func() {
		if err := coordinator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			coordinator.logger.Error().Err(err).Msg("Coordinator agent error")
			cancel()
		}
	}()

	sig := <-sigChan
	coordinator.logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	coordinator.bus.Close()
	if err := coordinator.Stop(shutdownCtx); err != nil {
		coordinator.logger.Error().Err(err).Msg("Error during shutdown")
	}

	coordinator.logger.Info().Msg("Coordinator agent stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
