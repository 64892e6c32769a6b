// Package kafkaconsumer applies region boundary update events from kafka to
// the coverage cache and the region index.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	obs "github.com/mohammed-shakir/squadrats-grid/internal/core/observability"
	"github.com/mohammed-shakir/squadrats-grid/internal/invalidation"
	mylog "github.com/mohammed-shakir/squadrats-grid/internal/logger"
)

// Invalidator drops cached coverages of a region; *coveragecache.Cache
// satisfies it.
type Invalidator interface {
	InvalidateRegion(ctx context.Context, region string) (int, error)
}

// Refresher forgets loaded boundaries; *region.Index satisfies it.
type Refresher interface {
	Refresh(code string, remove bool) bool
}

type Consumer struct {
	cfg     Config
	logger  *slog.Logger
	cache   Invalidator
	regions Refresher
	ver     *versionDedupe

	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a consumer; regions may be nil when boundaries are not indexed
// in this process.
func New(cfg Config, logger *slog.Logger, c Invalidator, regions Refresher) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		cfg:     cfg,
		logger:  logger,
		cache:   c,
		regions: regions,
		ver:     newVersionDedupe(cfg.DedupeSize),
		assign:  map[int32]struct{}{},
	}
}

// Start joins the consumer group and returns; consumption runs until ctx is
// cancelled or Stop is called.
func (c *Consumer) Start(ctx context.Context) error {
	if c.cache == nil {
		return errors.New("kafkaconsumer: cache dependency is required")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(mylog.WithComponent(ctx, "kafka_consumer"))
	c.cancel = cancel
	h := c.handler()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				c.logger.Error("kafka consumer group close", "err", err)
			}
		}()
		for {
			if err := group.Consume(ctx, []string{c.cfg.Topic}, h); err != nil {
				c.logger.ErrorContext(ctx, "kafka consume error",
					"err", err, "topic", c.cfg.Topic, "brokers", c.cfg.Brokers)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range group.Errors() {
			c.logger.ErrorContext(ctx, "kafka group error", "err", err)
		}
	}()

	c.logger.InfoContext(ctx, "kafka invalidation consumer started",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)
	return nil
}

func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.logger.Info("kafka invalidation consumer stopped")
}

// Readiness reports whether the consumer currently owns partitions.
func (c *Consumer) Readiness() (ready bool, partitions []int32) {
	if !c.assigned.Load() {
		return false, nil
	}
	c.assignMu.RLock()
	defer c.assignMu.RUnlock()
	for p := range c.assign {
		partitions = append(partitions, p)
	}
	slices.Sort(partitions)
	return true, partitions
}

func (c *Consumer) handler() *groupHandler {
	return &groupHandler{
		setup: func(sess sarama.ConsumerGroupSession) {
			c.assignMu.Lock()
			defer c.assignMu.Unlock()
			c.assign = map[int32]struct{}{}
			for _, parts := range sess.Claims() {
				for _, p := range parts {
					c.assign[p] = struct{}{}
				}
			}
			c.assigned.Store(true)
		},
		cleanup: func(sarama.ConsumerGroupSession) {
			c.assignMu.Lock()
			defer c.assignMu.Unlock()
			c.assigned.Store(false)
			c.assign = map[int32]struct{}{}
		},
		process: c.ProcessOne,
	}
}

// ProcessOne applies a single event. Malformed events are dropped (logged,
// nil error) since redelivery cannot fix them; cache failures are returned so
// the offset is not marked.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if !msg.Timestamp.IsZero() {
		obs.SetInvalidationLagSeconds(time.Since(msg.Timestamp).Seconds())
	}

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.ObserveInvalidation("", "decode_error")
		c.logger.ErrorContext(ctx, "kafka error",
			"kind", "decode", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.ObserveInvalidation(ev.Op, "invalid")
		c.logger.ErrorContext(ctx, "kafka error",
			"kind", "validate", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	code := strings.TrimSpace(ev.Region)

	if !c.ver.shouldApply(code, ev.Seq) {
		obs.ObserveInvalidation(ev.Op, "skip_version")
		c.logger.DebugContext(ctx, "stale invalidation skipped", "region", code, "seq", ev.Seq)
		return nil
	}

	if c.regions != nil {
		known := c.regions.Refresh(code, ev.Op == invalidation.OpDelete)
		if !known {
			c.logger.DebugContext(ctx, "invalidation for unindexed region", "region", code)
		}
	}

	n, err := c.cache.InvalidateRegion(ctx, code)
	if err != nil {
		obs.ObserveInvalidation(ev.Op, "error")
		c.logger.ErrorContext(ctx, "kafka error",
			"kind", "cache", "region", code, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return fmt.Errorf("invalidate %s: %w", code, err)
	}
	c.ver.record(code, ev.Seq)

	obs.ObserveInvalidation(ev.Op, "ok")
	c.logger.InfoContext(ctx, "region invalidated",
		"region", code, "op", ev.Op, "seq", ev.Seq, "entries", n)
	return nil
}
