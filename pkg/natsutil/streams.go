// Package natsutil provides NATS JetStream configuration and helpers
package natsutil

import (
	"context"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// StreamConfigs defines all streams used by the URSA pipeline
var StreamConfigs = map[string]jetstream.StreamConfig{
	"OBSERVATIONS": {
		Name:              "OBSERVATIONS",
		Description:       "Raw per-tick observation bundles from camera feeds",
		Subjects:          []string{"obs.>"},
		Retention:         jetstream.LimitsPolicy,
		MaxBytes:          1 * 1024 * 1024 * 1024, // 1GB
		MaxAge:            6 * time.Hour,
		Storage:           jetstream.FileStorage,
		Replicas:          1,
		Discard:           jetstream.DiscardOld,
		MaxMsgsPerSubject: 100000,
	},
	"DETECTIONS": {
		Name:              "DETECTIONS",
		Description:       "Threshold-crossing detections emitted by camera agents",
		Subjects:          []string{"detection.>"},
		Retention:         jetstream.LimitsPolicy,
		MaxBytes:          1 * 1024 * 1024 * 1024, // 1GB
		MaxAge:            24 * time.Hour,
		Storage:           jetstream.FileStorage,
		Replicas:          1,
		Discard:           jetstream.DiscardOld,
		MaxMsgsPerSubject: 100000,
	},
	"PATTERNS": {
		Name:        "PATTERNS",
		Description: "Cross-camera correlation patterns and predictions",
		Subjects:    []string{"pattern.>"},
		Retention:   jetstream.LimitsPolicy,
		MaxBytes:    512 * 1024 * 1024, // 512MB
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Discard:     jetstream.DiscardOld,
	},
	"THREATS": {
		Name:        "THREATS",
		Description: "Promoted threats awaiting dispatch",
		Subjects:    []string{"threat.>"},
		Retention:   jetstream.LimitsPolicy,
		MaxBytes:    1 * 1024 * 1024 * 1024,
		MaxAge:      72 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Discard:     jetstream.DiscardOld,
	},
	"DISPATCHES": {
		Name:        "DISPATCHES",
		Description: "Dispatch outcomes: calls placed and notifications sent",
		Subjects:    []string{"dispatch.>"},
		Retention:   jetstream.LimitsPolicy,
		MaxBytes:    512 * 1024 * 1024,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	},
	"REASONING": {
		Name:        "REASONING",
		Description: "Pipeline reasoning log entries",
		Subjects:    []string{"reasoning.>"},
		Retention:   jetstream.LimitsPolicy,
		MaxBytes:    512 * 1024 * 1024,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Discard:     jetstream.DiscardOld,
	},
}

// ConsumerConfigs defines consumers for each agent type
var ConsumerConfigs = map[string]jetstream.ConsumerConfig{
	"coordinator": {
		Durable:       "coordinator",
		Description:   "Coordinator consumer for camera detections",
		FilterSubject: "detection.>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    3,
		MaxAckPending: 1000,
	},
	"dispatcher": {
		Durable:       "dispatcher",
		Description:   "Dispatcher consumer for created and updated threats",
		FilterSubject: "threat.>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       60 * time.Second,
		MaxDeliver:    5, // Dispatch is idempotent, retries are safe
		MaxAckPending: 50,
	},
}

// SetupStreams creates all required streams
func SetupStreams(ctx context.Context, js jetstream.JetStream) error {
	for name, cfg := range StreamConfigs {
		_, err := js.Stream(ctx, name)
		if err == nil {
			continue // Stream exists
		}

		_, err = js.CreateStream(ctx, cfg)
		if err != nil {
			return err
		}
	}
	return nil
}

// SetupConsumer creates a consumer for an agent
func SetupConsumer(ctx context.Context, js jetstream.JetStream, streamName, consumerName string) (jetstream.Consumer, error) {
	cfg, ok := ConsumerConfigs[consumerName]
	if !ok {
		cfg = jetstream.ConsumerConfig{
			Durable:       consumerName,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    3,
			MaxAckPending: 100,
		}
	}

	stream, err := js.Stream(ctx, streamName)
	if err != nil {
		return nil, err
	}

	consumer, err := stream.Consumer(ctx, cfg.Durable)
	if err == nil {
		return consumer, nil
	}

	return stream.CreateConsumer(ctx, cfg)
}
