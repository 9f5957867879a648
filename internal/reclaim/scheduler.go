package reclaim

import (
	"context"
	"time"

	"github.com/example/checkout-engine/internal/infrastructure/kafka"
)

// Scheduler decides when sweep cycles run. One implementation is selected
// by configuration: an in-process timer for single-instance deployments,
// or a Kafka-triggered variant when an external scheduler owns the cadence.
type Scheduler interface {
	Run(ctx context.Context, cycle func(ctx context.Context) error) error
}

// TickerScheduler runs cycles on a fixed period, starting with an
// immediate cycle so a restart does not delay reclaim by a full interval.
type TickerScheduler struct {
	Interval time.Duration
}

func (s *TickerScheduler) Run(ctx context.Context, cycle func(ctx context.Context) error) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	if err := cycle(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := cycle(ctx); err != nil {
				return err
			}
		}
	}
}

// KafkaScheduler treats every message on the sweep topic as a trigger.
type KafkaScheduler struct {
	Consumer *kafka.Consumer
}

func (s *KafkaScheduler) Run(ctx context.Context, cycle func(ctx context.Context) error) error {
	return s.Consumer.Consume(ctx, func(ctx context.Context, key, value []byte) error {
		return cycle(ctx)
	})
}
