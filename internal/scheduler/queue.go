// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package scheduler

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/streamlens/streamlens/internal/config"
	"github.com/streamlens/streamlens/internal/logging"
)

// Labeled task queues. Each periodic loop publishes to exactly one of
// these and the matching worker pool consumes it.
const (
	TopicDiscovery   = "tasks.discovery"
	TopicLiveness    = "tasks.liveness"
	TopicMaintenance = "tasks.maintenance"
)

// PubSub bundles both ends of the task queue plus the handle that shuts
// them down together.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	closers []interface{ Close() error }
}

// Close shuts down the underlying transport.
func (p *PubSub) Close() error {
	var firstErr error
	for _, c := range p.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewPubSub builds the queue backend. With no broker URL the queue runs
// in-process over GoChannel; a nats:// URL routes tasks through NATS so
// several instances can split the work.
func NewPubSub(cfg config.SchedulerConfig) (*PubSub, error) {
	if cfg.BrokerURL == "" {
		ps := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
		}, newQueueLogger())
		return &PubSub{Publisher: ps, Subscriber: ps, closers: []interface{ Close() error }{ps}}, nil
	}
	return newNATSPubSub(cfg)
}

func newNATSPubSub(cfg config.SchedulerConfig) (*PubSub, error) {
	logger := newQueueLogger()

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("task broker disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("task broker reconnected")
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.BrokerURL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.BrokerURL,
		QueueGroupPrefix: "streamlens-workers",
		SubscribersCount: 1,
		AckWaitTimeout:   cfg.TaskTimeLimit + 30*time.Second,
		CloseTimeout:     30 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			DurablePrefix: "streamlens",
		},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("failed to create task subscriber: %w", err)
	}

	return &PubSub{
		Publisher:  pub,
		Subscriber: sub,
		closers:    []interface{ Close() error }{sub, pub},
	}, nil
}

// queueLogger adapts the global zerolog logger to watermill's interface.
type queueLogger struct {
	fields watermill.LogFields
}

func newQueueLogger() watermill.LoggerAdapter {
	return &queueLogger{}
}

func (l *queueLogger) log(ev *zerolog.Event, msg string, err error, fields watermill.LogFields) {
	if err != nil {
		ev = ev.Err(err)
	}
	for k, v := range l.fields {
		ev = ev.Interface(k, v)
	}
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *queueLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.log(logging.Error(), msg, err, fields)
}

func (l *queueLogger) Info(msg string, fields watermill.LogFields) {
	l.log(logging.Debug(), msg, nil, fields)
}

func (l *queueLogger) Debug(msg string, fields watermill.LogFields) {
	l.log(logging.Trace(), msg, nil, fields)
}

func (l *queueLogger) Trace(msg string, fields watermill.LogFields) {
	l.log(logging.Trace(), msg, nil, fields)
}

func (l *queueLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	merged := make(watermill.LogFields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &queueLogger{fields: merged}
}
