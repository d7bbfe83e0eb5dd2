// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

// Package scheduler drives the two-phase polling engine. Periodic loops
// publish task envelopes onto labeled queues (discovery, liveness,
// maintenance) and per-queue worker pools execute them with a hard time
// limit. A tick whose previous run is still in flight is dropped rather
// than queued behind it.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/streamlens/streamlens/internal/config"
	"github.com/streamlens/streamlens/internal/connector"
	"github.com/streamlens/streamlens/internal/database"
	"github.com/streamlens/streamlens/internal/logging"
	"github.com/streamlens/streamlens/internal/metrics"
	"github.com/streamlens/streamlens/internal/models"
)

// FeedDiscoverer is the zero-quota discovery path. Only the YouTube
// adapter implements it.
type FeedDiscoverer interface {
	DiscoverFromFeeds(ctx context.Context, channelIDs, keywords []string) ([]models.Stream, error)
}

// Scheduler owns the tick loops and worker pools. It implements
// suture.Service.
type Scheduler struct {
	cfg        *config.Config
	db         *database.DB
	connectors map[models.Platform]connector.Connector
	pubsub     *PubSub
	feeds      FeedDiscoverer
	log        zerolog.Logger

	mu      sync.Mutex
	running map[string]bool
}

// New creates a scheduler over the given connectors and queue backend.
func New(cfg *config.Config, db *database.DB, connectors map[models.Platform]connector.Connector, pubsub *PubSub) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		db:         db,
		connectors: connectors,
		pubsub:     pubsub,
		log:        logging.With().Str("component", "scheduler").Logger(),
		running:    make(map[string]bool),
	}
}

// SetFeedDiscoverer enables the RSS seed loop.
func (s *Scheduler) SetFeedDiscoverer(fd FeedDiscoverer) {
	s.feeds = fd
}

func (s *Scheduler) String() string { return "scheduler" }

// loop is one periodic publication source. Interval loops fire on a
// ticker; aligned loops fire at the next wall-clock moment computed by
// next.
type loop struct {
	task     Task
	topic    string
	interval time.Duration
	next     func(time.Time) time.Time
}

func (s *Scheduler) loops() []loop {
	var loops []loop
	sc := s.cfg.Scheduler

	if s.cfg.YouTube.Enabled {
		loops = append(loops,
			loop{task: Task{Name: TaskDiscovery, Platform: models.PlatformYouTube}, topic: TopicDiscovery, interval: sc.DiscoveryIntervalYouTube},
			loop{task: Task{Name: TaskLiveness, Platform: models.PlatformYouTube}, topic: TopicLiveness, interval: sc.LivenessIntervalYouTube},
		)
		if s.feeds != nil {
			loops = append(loops,
				loop{task: Task{Name: TaskRSSSeed, Platform: models.PlatformYouTube}, topic: TopicDiscovery, interval: sc.RSSInterval})
		}
	}
	if s.cfg.Twitch.Enabled {
		loops = append(loops,
			loop{task: Task{Name: TaskDiscovery, Platform: models.PlatformTwitch}, topic: TopicDiscovery, interval: sc.DiscoveryIntervalTwitch},
			loop{task: Task{Name: TaskLiveness, Platform: models.PlatformTwitch}, topic: TopicLiveness, interval: sc.LivenessIntervalTwitch},
		)
	}

	loops = append(loops,
		loop{task: Task{Name: TaskResetQuotas}, topic: TopicMaintenance, next: nextDailyUTC(0)},
		loop{task: Task{Name: TaskRefreshPriority}, topic: TopicMaintenance, interval: time.Hour},
		loop{task: Task{Name: TaskArchive}, topic: TopicMaintenance, next: nextDailyUTC(3)},
	)
	return loops
}

// Serve subscribes the worker pools, starts the tick loops and blocks
// until the context is canceled.
func (s *Scheduler) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	// Workers come up before the first tick so startup publications are
	// consumed immediately.
	for _, topic := range []string{TopicDiscovery, TopicLiveness, TopicMaintenance} {
		messages, err := s.pubsub.Subscriber.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		for i := 0; i < s.cfg.Scheduler.WorkerConcurrency; i++ {
			queue := queueLabel(topic)
			g.Go(func() error {
				s.worker(ctx, queue, messages)
				return nil
			})
		}
	}

	for _, l := range s.loops() {
		l := l
		g.Go(func() error {
			s.runLoop(ctx, l)
			return nil
		})
	}

	s.log.Info().
		Int("workers_per_queue", s.cfg.Scheduler.WorkerConcurrency).
		Int("loops", len(s.loops())).
		Msg("scheduler started")

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

func (s *Scheduler) runLoop(ctx context.Context, l loop) {
	if l.next != nil {
		s.runAlignedLoop(ctx, l)
		return
	}
	if l.interval <= 0 {
		return
	}

	// Discovery and liveness fire once at startup so a fresh process
	// does not idle through its first interval.
	s.publish(ctx, l.topic, l.task)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publish(ctx, l.topic, l.task)
		}
	}
}

func (s *Scheduler) runAlignedLoop(ctx context.Context, l loop) {
	for {
		wait := time.Until(l.next(time.Now().UTC()))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.publish(ctx, l.topic, l.task)
		}
	}
}

func (s *Scheduler) publish(ctx context.Context, topic string, task Task) {
	task.EnqueuedAt = time.Now().UTC()
	payload, err := encodeTask(task)
	if err != nil {
		s.log.Error().Err(err).Str("task", task.Key()).Msg("failed to encode task")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := s.pubsub.Publisher.Publish(topic, msg); err != nil {
		s.log.Error().Err(err).Str("task", task.Key()).Str("topic", topic).Msg("failed to publish task")
		return
	}
	metrics.QueueMessagesPublished.WithLabelValues(queueLabel(topic)).Inc()
}

func (s *Scheduler) worker(ctx context.Context, queue string, messages <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			s.handle(ctx, queue, msg)
		}
	}
}

// handle executes one task envelope. Messages are always acked: every
// loop re-publishes on its next tick, so redelivering a failed task
// would only pile work behind the schedule.
func (s *Scheduler) handle(ctx context.Context, queue string, msg *message.Message) {
	defer msg.Ack()

	task, err := decodeTask(msg.Payload)
	if err != nil {
		s.log.Error().Err(err).Str("message_uuid", msg.UUID).Msg("dropping undecodable task")
		metrics.QueueMessagesProcessed.WithLabelValues(queue, "failure").Inc()
		return
	}

	key := task.Key()
	if !s.acquire(key) {
		metrics.TaskOverlapsSkipped.WithLabelValues(key).Inc()
		metrics.RecordTaskRun(task.Name, queue, "skipped", 0)
		s.log.Debug().Str("task", key).Msg("previous run still in flight, tick dropped")
		return
	}
	defer s.release(key)

	start := time.Now()
	taskCtx, cancel := context.WithTimeout(ctx, s.cfg.Scheduler.TaskTimeLimit)
	err = s.dispatch(taskCtx, task)
	cancel()

	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
	default:
		result = "failure"
	}
	metrics.RecordTaskRun(task.Name, queue, result, time.Since(start))
	metrics.QueueMessagesProcessed.WithLabelValues(queue, result).Inc()

	ev := s.log.Debug()
	if err != nil {
		ev = s.log.Warn().Err(err)
	}
	ev.Str("task", key).Dur("duration", time.Since(start)).Str("result", result).Msg("task finished")
}

func (s *Scheduler) dispatch(ctx context.Context, task Task) error {
	switch task.Name {
	case TaskDiscovery:
		return s.runDiscovery(ctx, task.Platform)
	case TaskLiveness:
		return s.runLiveness(ctx, task.Platform)
	case TaskRSSSeed:
		return s.runRSSSeed(ctx)
	case TaskResetQuotas:
		return s.runResetQuotas(ctx)
	case TaskRefreshPriority:
		return s.runRefreshPriorities(ctx)
	case TaskArchive:
		return s.runArchive(ctx)
	default:
		return fmt.Errorf("unknown task %q", task.Name)
	}
}

func (s *Scheduler) acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[key] {
		return false
	}
	s.running[key] = true
	return true
}

func (s *Scheduler) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, key)
}

func queueLabel(topic string) string {
	return strings.TrimPrefix(topic, "tasks.")
}

// nextDailyUTC returns the alignment function for a loop that fires
// once per day at the given UTC hour.
func nextDailyUTC(hour int) func(time.Time) time.Time {
	return func(now time.Time) time.Time {
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}
		return next
	}
}
