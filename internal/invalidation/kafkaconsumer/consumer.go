package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	obs "github.com/gevika/map-metagenome/internal/core/observability"
	"github.com/gevika/map-metagenome/internal/invalidation"
	mylog "github.com/gevika/map-metagenome/internal/logger"
)

// Reloader is the serving side of a dataset: it re-reads the source on update
// and drops cached artifacts on delete.
type Reloader interface {
	DatasetName() string
	Reload(ctx context.Context, trigger string) error
	Purge(ctx context.Context) (int, error)
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	target Reloader
	dedupe *versionDedupe
	zlog   *zerolog.Logger
}

func New(cfg Config, logger *slog.Logger, target Reloader) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	nop := zerolog.Nop()
	return &Consumer{
		cfg:    cfg,
		logger: logger,
		target: target,
		dedupe: newVersionDedupe(cfg.DedupeSize),
		zlog:   &nop,
	}
}

// consumes dataset events from kafka until ctx is done
func (c *Consumer) Start(ctx context.Context) error {
	if c.target == nil {
		return errors.New("kafkaconsumer: missing reload target")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	base := mylog.WithComponent(context.Background(), "kafka_consumer")
	base = mylog.WithDataset(base, c.target.DatasetName())
	zl := mylog.Build(mylog.Config{Level: c.cfg.LogLevel, Component: "kafka_consumer"}, nil)
	c.zlog = mylog.FromContext(base, &zl)

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info("kafka dataset consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka dataset consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				obs.IncKafkaConsumerError("consume")
				c.zlog.Error().Err(err).
					Strs("brokers", c.cfg.Brokers).
					Str("topic", c.cfg.Topic).
					Msg("kafka consumer error")
				select {
				case <-ctx.Done():
				case <-time.After(c.cfg.RetryBackoff):
				}
			}
		}
	}
}

// ProcessOne applies a single dataset event. Malformed and foreign events are
// skipped so they do not block the partition; a failed reload returns an error
// and the offset is left unmarked for redelivery.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncKafkaConsumerError("decode")
		c.zlog.Error().Err(err).
			Str("kind", "decode").
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("kafka error")
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.IncKafkaConsumerError("invalid")
		c.logger.Warn("dropping invalid dataset event",
			"err", err, "partition", msg.Partition, "offset", msg.Offset)
		return nil
	}
	if !sameDataset(ev.Dataset, c.target.DatasetName()) {
		obs.IncInvalidationSkipped(ev.Op, "other_dataset")
		c.logger.Debug("event for another dataset (skipping)", "dataset", ev.Dataset)
		return nil
	}

	key := ev.Op + "|" + ev.Dataset
	ver := uint64(max(ev.TS.UnixNano(), 0))
	if !c.dedupe.fresh(key, ver) {
		obs.IncInvalidationSkipped(ev.Op, "stale")
		c.logger.Debug("stale dataset event (skipping)", "op", ev.Op, "ts", ev.TS)
		return nil
	}

	var (
		err    error
		purged int
	)
	switch ev.Op {
	case invalidation.OpUpdated:
		err = c.target.Reload(ctx, "kafka")
	case invalidation.OpDeleted:
		purged, err = c.target.Purge(ctx)
	}
	obs.ObserveInvalidation(ev.Op, time.Since(start), err)
	if err != nil {
		obs.IncKafkaConsumerError("apply")
		mylog.FromContext(ctx, c.zlog).Error().Err(err).
			Str("kind", "apply").
			Str("op", ev.Op).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("kafka error")
		return fmt.Errorf("apply %s: %w", ev.Op, err)
	}
	c.dedupe.commit(key, ver)

	mylog.FromContext(ctx, c.zlog).Info().
		Str("event", "dataset").
		Str("op", ev.Op).
		Str("source", ev.Source).
		Int("purged", purged).
		Msg("dataset event applied")
	return nil
}

func sameDataset(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}
