// Dispatcher Agent - assesses threats and executes emergency calls and
// community notifications
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
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ursa-watch/ursa/pkg/agent"
	"github.com/ursa-watch/ursa/pkg/analyzer"
	"github.com/ursa-watch/ursa/pkg/bus"
	"github.com/ursa-watch/ursa/pkg/config"
	"github.com/ursa-watch/ursa/pkg/dispatch"
	"github.com/ursa-watch/ursa/pkg/messages"
	"github.com/ursa-watch/ursa/pkg/natsutil"
	"github.com/ursa-watch/ursa/pkg/postgres"
	"github.com/ursa-watch/ursa/pkg/roster"
)

// recentOutcomeCap bounds the outcome buffer behind /api/dispatches.
const recentOutcomeCap = 200

// DispatcherAgent consumes threats and runs the dispatch pipeline.
type DispatcherAgent struct {
	*agent.BaseAgent
	logger   zerolog.Logger
	consumer jetstream.Consumer
	analyzer analyzer.Config
	manager  *dispatch.Manager
	bus      *bus.Bus
	db       *postgres.Pool

	recentMu sync.Mutex
	recent   []messages.DispatchOutcome

	callsCounter   *prometheus.CounterVec
	notifyCounter  prometheus.Counter
	skippedCounter prometheus.Counter
}

// NewDispatcherAgent creates a new dispatcher agent. The ledger is
// durable when a database pool is supplied, in-memory otherwise.
func NewDispatcherAgent(cfg agent.Config, fileCfg config.File, db *postgres.Pool) (*DispatcherAgent, error) {
	base, err := agent.NewBaseAgent(cfg)
	if err != nil {
		return nil, err
	}

	callsCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_calls_total",
			Help: "Emergency call attempts by outcome status",
		},
		[]string{"status"},
	)
	notifyCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatcher_notifications_total",
		Help: "Community notifications sent",
	})
	skippedCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatcher_dedup_skips_total",
		Help: "Dispatches skipped because the threat was already handled",
	})
	base.Metrics().MustRegister(callsCounter, notifyCounter, skippedCounter)

	b := bus.New(*base.Logger())

	var ledger dispatch.Ledger
	if db != nil {
		ledger = postgres.NewLedger(db)
		base.Logger().Info().Msg("Using durable dispatch ledger")
	} else {
		ledger = dispatch.NewMemoryLedger()
		base.Logger().Info().Msg("Using in-memory dispatch ledger")
	}

	manager := dispatch.NewManager(
		dispatch.DefaultConfig(),
		dispatch.NewSimulatedCaller(*base.Logger()),
		dispatch.NewSimulatedNotifier(*base.Logger()),
		ledger,
		roster.New(fileCfg.Members...),
		fileCfg.Cameras,
		b,
		*base.Logger(),
	)

	return &DispatcherAgent{
		BaseAgent:      base,
		logger:         *base.Logger(),
		analyzer:       analyzer.DefaultConfig(),
		manager:        manager,
		bus:            b,
		db:             db,
		callsCounter:   callsCounter,
		notifyCounter:  notifyCounter,
		skippedCounter: skippedCounter,
	}, nil
}

// Run starts the dispatcher agent.
func (a *DispatcherAgent) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("failed to start base agent: %w", err)
	}

	if err := natsutil.SetupStreams(ctx, a.JetStream()); err != nil {
		return fmt.Errorf("failed to setup streams: %w", err)
	}

	consumer, err := natsutil.SetupConsumer(ctx, a.JetStream(), "THREATS", "dispatcher")
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}
	a.consumer = consumer

	go a.forwardOutcomes(ctx)

	a.logger.Info().Msg("Dispatcher agent started, consuming from THREATS stream")

	return a.consumeMessages(ctx)
}

// forwardOutcomes publishes dispatch outcomes to JetStream.
func (a *DispatcherAgent) forwardOutcomes(ctx context.Context) {
	events, cancel := a.bus.Subscribe(256, bus.EventDispatchOutcome)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			outcome, ok := evt.Payload.(*messages.DispatchOutcome)
			if !ok {
				continue
			}

			switch outcome.Channel {
			case messages.ChannelEmergencyCall:
				if outcome.Status == messages.DispatchSkipped {
					a.skippedCounter.Inc()
				} else {
					a.callsCounter.WithLabelValues(outcome.Status).Inc()
				}
			case messages.ChannelCommunitySMS:
				notifyCount := len(outcome.Recipients)
				for i := 0; i < notifyCount; i++ {
					a.notifyCounter.Inc()
				}
			}

			outcome.Envelope = messages.NewEnvelope(a.ID(), string(agent.AgentTypeDispatcher))
			a.recordOutcome(*outcome)

			data, err := messages.MarshalWithSignature(outcome, a.Config().Secret)
			if err != nil {
				a.logger.Error().Err(err).Msg("Failed to marshal dispatch outcome")
				continue
			}
			if _, err := a.JetStream().Publish(ctx, outcome.Subject(), data); err != nil {
				a.logger.Error().Err(err).Str("subject", outcome.Subject()).Msg("Failed to publish dispatch outcome")
				a.RecordError("publish_failed")
			}
		}
	}
}

// recordOutcome appends to the bounded buffer behind /api/dispatches.
func (a *DispatcherAgent) recordOutcome(outcome messages.DispatchOutcome) {
	a.recentMu.Lock()
	defer a.recentMu.Unlock()
	a.recent = append(a.recent, outcome)
	if len(a.recent) > recentOutcomeCap {
		a.recent = a.recent[len(a.recent)-recentOutcomeCap:]
	}
}

// RecentOutcomes returns the buffered outcomes, newest last.
func (a *DispatcherAgent) RecentOutcomes() []messages.DispatchOutcome {
	a.recentMu.Lock()
	defer a.recentMu.Unlock()
	out := make([]messages.DispatchOutcome, len(a.recent))
	copy(out, a.recent)
	return out
}

// consumeMessages processes threat messages.
func (a *DispatcherAgent) consumeMessages(ctx context.Context) error {
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

			if strings.Contains(err.Error(), "consumer deleted") || strings.Contains(err.Error(), "consumer not found") {
				if consumer, cerr := natsutil.SetupConsumer(ctx, a.JetStream(), "THREATS", "dispatcher"); cerr == nil {
					a.consumer = consumer
					a.logger.Info().Msg("Recreated dispatcher consumer")
					continue
				}
			}
			time.Sleep(time.Second)
			continue
		}

		for msg := range msgs.Messages() {
			if err := a.processMessage(ctx, msg); err != nil {
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

// processMessage handles a single threat message. Redelivery is safe:
// the dispatch ledger makes calls and notifications idempotent.
func (a *DispatcherAgent) processMessage(ctx context.Context, msg jetstream.Msg) error {
	start := time.Now()

	var threat messages.Threat
	if err := json.Unmarshal(msg.Data(), &threat); err != nil {
		a.logger.Warn().Err(err).Msg("Terminating unparseable threat")
		msg.Term()
		return nil
	}

	if threat.Envelope.Signature == "" || !messages.VerifySigned(&threat, a.Config().Secret) {
		a.logger.Warn().
			Str("threat_id", threat.ThreatID).
			Str("source", threat.Envelope.Source).
			Msg("Terminating threat with bad signature")
		msg.Term()
		return nil
	}

	// Resolved threats flow through the same stream for auditability;
	// there is nothing to dispatch for them.
	if threat.Status != messages.ThreatActive {
		a.RecordMessage("ignored", "threat")
		return nil
	}

	correlationID := threat.Envelope.CorrelationID
	if correlationID == "" {
		correlationID = threat.Envelope.MessageID
	}

	assessment := a.analyzer.Analyze(threat)

	a.logger.Info().
		Str("correlation_id", correlationID).
		Str("threat_id", threat.ThreatID).
		Str("severity", string(assessment.Severity)).
		Str("category", string(assessment.Category)).
		Bool("call", assessment.ShouldCallEmergency).
		Bool("notify", assessment.ShouldNotifyCommunity).
		Msg("Assessed threat")

	if _, err := a.manager.Dispatch(ctx, threat, assessment); err != nil {
		return fmt.Errorf("dispatching threat %s: %w", threat.ThreatID, err)
	}

	duration := time.Since(start)
	a.RecordMessage("success", "threat")
	a.RecordLatency("threat", duration)
	return nil
}

func main() {
	cfg := agent.Config{
		ID:       getEnv("AGENT_ID", "dispatcher-001"),
		Type:     agent.AgentTypeDispatcher,
		NATSUrl:  getEnv("NATS_URL", "nats://localhost:4222"),
		NATSUser: os.Getenv("NATS_USER"),
		NATSPass: os.Getenv("NATS_PASS"),
		DBUrl:    os.Getenv("DATABASE_URL"),
		Secret:   []byte(getEnv("SIGNING_SECRET", "dev-secret")),
	}

	fileCfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The durable ledger is optional: without a database the dispatcher
	// still deduplicates within its own lifetime.
	var db *postgres.Pool
	if cfg.DBUrl != "" {
		dbCtx, dbCancel := context.WithTimeout(ctx, 5*time.Second)
		db, err = postgres.NewPoolFromURL(dbCtx, cfg.DBUrl)
		if err == nil {
			err = db.InitSchema(dbCtx)
		}
		dbCancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize dispatch ledger database: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	dispatcher, err := NewDispatcherAgent(cfg, fileCfg, db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create dispatcher agent: %v\n", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start metrics server
	go func() {
		metricsAddr := getEnv("METRICS_ADDR", ":9092")
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(dispatcher.Metrics(), promhttp.HandlerOpts{}))
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			health := dispatcher.Health()
			if health.Healthy {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			json.NewEncoder(w).Encode(health)
		})
		mux.HandleFunc("/api/dispatches", func(w http.ResponseWriter, r *http.Request) {
			outcomes := dispatcher.RecentOutcomes()
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"dispatches": outcomes,
				"count":      len(outcomes),
			})
		})
		dispatcher.logger.Info().Str("addr", metricsAddr).Msg("Starting metrics server")
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			dispatcher.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()

	go func() {
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			dispatcher.logger.Error().Err(err).Msg("Dispatcher agent error")
			cancel()
		}
	}()

	sig := <-sigChan
	dispatcher.logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	dispatcher.bus.Close()
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		dispatcher.logger.Error().Err(err).Msg("Error during shutdown")
	}

	dispatcher.logger.Info().Msg("Dispatcher agent stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
