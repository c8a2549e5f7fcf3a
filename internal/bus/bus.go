// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/eventstats/internal/events"
	"github.com/tomtom215/eventstats/internal/logging"
	"github.com/tomtom215/eventstats/internal/metrics"
)

// Bus is the resilient NATS JetStream binding for the event registry (C2).
// One Watermill publisher and one subscriber serve every registered event
// type; streams, subjects, and consumer groups are namespaced per type via
// Config. Grounded on the teacher's Publisher/Subscriber pair
// (internal/eventprocessor/publisher.go, subscriber.go), merged into a
// single facade since the two always share a connection in this pipeline.
type Bus struct {
	cfg    Config
	logger watermill.LoggerAdapter

	pub message.Publisher
	sub message.Subscriber

	cb *gobreaker.CircuitBreaker[interface{}]

	mu     sync.RWMutex
	closed bool
}

// New dials NATS and constructs a Bus. The caller must still call
// EnsureStream for every event type it intends to publish or consume
// before using it.
func New(cfg Config) (*Bus, error) {
	logger := watermillLoggerAdapter{}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.ReconnectBufSize(cfg.ReconnectBuffer),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("bus: nats disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("bus: nats reconnected")
		}),
	}

	pubCfg := wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false,
			TrackMsgId:    cfg.EnableTrackMsgID,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}
	pub, err := wmNats.NewPublisher(pubCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("bus: create publisher: %w", err)
	}

	subCfg := wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroupPrefix,
		SubscribersCount: cfg.SubscribersCount,
		AckWaitTimeout:   cfg.AckWaitTimeout,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false,
			AckAsync:      false,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.MaxDeliver(cfg.MaxDeliver),
				natsgo.MaxAckPending(cfg.MaxAckPending),
				natsgo.AckWait(cfg.AckWaitTimeout),
				natsgo.DeliverNew(),
			},
			DurablePrefix: cfg.DurableNamePrefix,
		},
	}
	sub, err := wmNats.NewSubscriber(subCfg, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("bus: create subscriber: %w", err)
	}

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cfg.CircuitBreaker.Name,
		MaxRequests: cfg.CircuitBreaker.MaxRequests,
		Interval:    cfg.CircuitBreaker.Interval,
		Timeout:     cfg.CircuitBreaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.CircuitBreaker.FailureThreshold
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			metrics.BusCircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	return &Bus{cfg: cfg, logger: logger, pub: pub, sub: sub, cb: cb}, nil
}

// EnsureStream idempotently provisions the JetStream stream for eventType.
func (b *Bus) EnsureStream(ctx context.Context, js JetStreamContext, eventType string) error {
	_, err := EnsureStream(ctx, js, b.cfg, eventType)
	return err
}

// Publish serializes and publishes every event in batch to eventType's
// subject, protected by the circuit breaker. Each message's NATS dedup id
// is derived from the event's unique_id field where present, else a random
// UUID, matching the teacher's Nats-Msg-Id convention
// (internal/eventprocessor/publisher.go Publish).
func (b *Bus) Publish(ctx context.Context, eventType string, batch events.Batch) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("bus: closed")
	}
	b.mu.RUnlock()

	subject := b.cfg.Subject(eventType)
	for _, e := range batch {
		payload, err := e.MarshalJSON()
		if err != nil {
			return fmt.Errorf("bus: marshal event: %w", err)
		}

		dedupID := e.GetString(events.FieldUniqueID)
		if dedupID == "" {
			dedupID = uuid.NewString()
		}

		msg := message.NewMessage(uuid.NewString(), payload)
		msg.Metadata.Set("event_type", eventType)
		if b.cfg.EnableTrackMsgID {
			msg.Metadata.Set(natsgo.MsgIdHdr, dedupID)
		}

		_, err = b.cb.Execute(func() (interface{}, error) {
			return nil, b.pub.Publish(subject, msg)
		})
		metrics.RecordBusPublish(eventType, err)
		if err != nil {
			return fmt.Errorf("bus: publish to %s: %w", subject, err)
		}
	}
	return nil
}

// Consume subscribes to eventType's subject and returns a channel of
// deserialized events. Messages are acked on successful decode and nacked
// (triggering JetStream redelivery) on decode failure. The channel closes
// when ctx is canceled or the underlying subscription ends.
func (b *Bus) Consume(ctx context.Context, eventType string) (<-chan events.Event, error) {
	subject := b.cfg.Subject(eventType)
	raw, err := b.sub.Subscribe(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("bus: subscribe to %s: %w", subject, err)
	}

	out := make(chan events.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-raw:
				if !ok {
					return
				}
				var ev events.Event
				if err := ev.UnmarshalJSON(msg.Payload); err != nil {
					logging.Error().Err(err).Str("subject", subject).Msg("bus: unmarshal event failed")
					msg.Nack()
					continue
				}
				metrics.RecordBusConsume(eventType)
				msg.Ack()

				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close gracefully shuts down the publisher and subscriber.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var firstErr error
	if err := b.pub.Close(); err != nil {
		firstErr = err
	}
	if err := b.sub.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// watermillLoggerAdapter forwards Watermill's structured log calls into the
// project's zerolog-backed logging package, so bus internals show up in the
// same log stream (and format) as the rest of the pipeline.
type watermillLoggerAdapter struct{}

func (watermillLoggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	logging.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

func (watermillLoggerAdapter) Info(msg string, fields watermill.LogFields) {
	logging.Info().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (watermillLoggerAdapter) Debug(msg string, fields watermill.LogFields) {
	logging.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (watermillLoggerAdapter) Trace(msg string, fields watermill.LogFields) {
	logging.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (w watermillLoggerAdapter) With(_ watermill.LogFields) watermill.LoggerAdapter {
	return w
}
