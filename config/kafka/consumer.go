package kafka

import (
	"context"
	"errors"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/pharmasuite/lifecycle-engine/utils"
)

type ConsumerConfig struct {
	Topic         string
	ConsumerGroup string

	// HandleRecord returns true when the record was fully applied and its
	// offset can be committed. Returning false leaves the record
	// uncommitted so it is consumed again.
	HandleRecord func(context.Context, *kgo.Record) bool
}

type Consumer struct {
	client *kgo.Client
	config ConsumerConfig
	logger *slog.Logger
}

func NewConsumer(serverConfig ServerConfig, cfg ConsumerConfig) (*Consumer, error) {
	opts := []kgo.Opt{
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.AutoCommitMarks(),
		kgo.BlockRebalanceOnPoll(),
	}

	client, err := NewKafkaClient(serverConfig, opts)
	if err != nil {
		return nil, err
	}

	logger := slog.Default()
	logger = logger.With("component", "kafka-consumer", "topic", cfg.Topic)

	return &Consumer{
		client: client,
		config: cfg,
		logger: logger,
	}, nil
}

func (c *Consumer) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

// Start polls until the context is canceled or the client closes.
func (c *Consumer) Start(ctx context.Context) error {
	defer c.client.Close()

	c.logger.Info("starting consumer", slog.String("group", c.config.ConsumerGroup))

	for {
		if ctx.Err() != nil {
			c.logger.Info("consumer context canceled")
			return nil
		}

		fetches := c.client.PollRecords(ctx, 1000)
		if fetches.IsClientClosed() {
			c.logger.Info("client closed")
			return nil
		}

		var fetchErr error
		fetches.EachError(func(_ string, _ int32, err error) {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}

			c.logger.Error("fetch error", slog.String("error", err.Error()))
			utils.CaptureError(err)
			fetchErr = err
		})
		if fetchErr != nil {
			return fetchErr
		}

		fetches.EachRecord(func(record *kgo.Record) {
			if c.config.HandleRecord(ctx, record) {
				c.client.MarkCommitRecords(record)
			}
		})

		c.client.AllowRebalance()
	}
}
