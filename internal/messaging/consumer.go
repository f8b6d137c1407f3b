package messaging

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tenantsync/pkg/config"
	"github.com/ajitpratap0/tenantsync/pkg/errors"
	"github.com/ajitpratap0/tenantsync/pkg/metrics"
)

// ConsumerOptions names one consumer group subscription.
type ConsumerOptions struct {
	Name     string
	Topic    string
	GroupID  string
	ClientID string
}

// KafkaConsumer consumes one topic through a sarama consumer group and hands
// each message value to its handler.
type KafkaConsumer struct {
	config config.KafkaConfig
	opts   ConsumerOptions
	logger *zap.Logger

	newGroup func(brokers []string, groupID string, cfg *sarama.Config) (sarama.ConsumerGroup, error)
	group    sarama.ConsumerGroup
	handler  Handler

	running int32
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// ConsumerOption configures a KafkaConsumer.
type ConsumerOption func(*KafkaConsumer)

// WithConsumerGroup makes Start use group instead of dialing the brokers.
func WithConsumerGroup(group sarama.ConsumerGroup) ConsumerOption {
	return func(kc *KafkaConsumer) {
		kc.newGroup = func([]string, string, *sarama.Config) (sarama.ConsumerGroup, error) {
			return group, nil
		}
	}
}

// NewKafkaConsumer creates a new Kafka consumer
func NewKafkaConsumer(cfg config.KafkaConfig, opts ConsumerOptions, logger *zap.Logger, options ...ConsumerOption) *KafkaConsumer {
	kc := &KafkaConsumer{
		config: cfg,
		opts:   opts,
		logger: logger.With(
			zap.String("component", "kafka_consumer"),
			zap.String("consumer", opts.Name),
			zap.String("topic", opts.Topic)),
		newGroup: sarama.NewConsumerGroup,
	}
	for _, opt := range options {
		opt(kc)
	}
	return kc
}

// Name returns the consumer's logical name.
func (kc *KafkaConsumer) Name() string {
	return kc.opts.Name
}

// Start joins the consumer group and begins dispatching to handler. The
// consume loop outlives ctx's cancellation and runs until Stop.
func (kc *KafkaConsumer) Start(ctx context.Context, handler Handler) error {
	if atomic.LoadInt32(&kc.running) == 1 {
		return errors.New(errors.ErrorTypeStartup, "consumer is already running").
			WithDetail("consumer", kc.opts.Name)
	}
	if handler == nil {
		return errors.New(errors.ErrorTypeStartup, "consumer has no handler").
			WithDetail("consumer", kc.opts.Name)
	}

	sc, err := buildSaramaConfig(kc.config, kc.opts.ClientID)
	if err != nil {
		return err
	}

	group, err := kc.newGroup(kc.config.Brokers, kc.opts.GroupID, sc)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeStartup, "failed to create consumer group").
			WithDetail("consumer", kc.opts.Name).
			WithDetail("group_id", kc.opts.GroupID)
	}
	kc.group = group
	kc.handler = handler

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	kc.cancel = cancel
	atomic.StoreInt32(&kc.running, 1)

	kc.wg.Add(2)
	go kc.consume(runCtx)
	go kc.drainErrors(runCtx)

	kc.logger.Info("subscribed to Kafka topic", zap.String("consumer_group", kc.opts.GroupID))
	return nil
}

func (kc *KafkaConsumer) consume(ctx context.Context) {
	defer kc.wg.Done()

	for {
		// Consume returns on every rebalance; rejoin until stopped.
		if err := kc.group.Consume(ctx, []string{kc.opts.Topic}, kc); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			kc.logger.Error("consumer group error", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (kc *KafkaConsumer) drainErrors(ctx context.Context) {
	defer kc.wg.Done()

	errs := kc.group.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				return
			}
			kc.logger.Error("consumer error", zap.Error(err))
		}
	}
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (kc *KafkaConsumer) Setup(session sarama.ConsumerGroupSession) error {
	kc.logger.Debug("consumer session started", zap.Int32("generation", session.GenerationID()))
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (kc *KafkaConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim dispatches the claim's messages to the handler in order.
func (kc *KafkaConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}

			handled := kc.handler(session.Context(), message.Value)
			metrics.MessagesConsumed.WithLabelValues(kc.opts.Name, metrics.Result(handled)).Inc()
			if !handled {
				kc.logger.Warn("message not handled",
					zap.Int32("partition", message.Partition),
					zap.Int64("offset", message.Offset))
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// Stop leaves the consumer group and waits for the consume loop to exit.
// Stopping a consumer that is not running is a no-op.
func (kc *KafkaConsumer) Stop() error {
	if !atomic.CompareAndSwapInt32(&kc.running, 1, 0) {
		return nil
	}

	kc.cancel()
	err := kc.group.Close()
	kc.wg.Wait()

	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeShutdown, "failed to close consumer group").
			WithDetail("consumer", kc.opts.Name)
	}
	kc.logger.Info("Kafka consumer closed")
	return nil
}
