package messaging

import (
	"context"
	"sync/atomic"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tenantsync/pkg/config"
	"github.com/ajitpratap0/tenantsync/pkg/errors"
	"github.com/ajitpratap0/tenantsync/pkg/metrics"
)

// ErrProducerNotRunning is returned by Send and Close on a producer that is
// not started or already closed.
var ErrProducerNotRunning = errors.New(errors.ErrorTypeCollaborator, "producer is not running")

// KafkaProducer publishes envelopes through a sarama SyncProducer. A single
// instance is shared by every sender in the process.
type KafkaProducer struct {
	config config.KafkaConfig
	logger *zap.Logger

	newSyncProducer func(brokers []string, cfg *sarama.Config) (sarama.SyncProducer, error)
	producer        sarama.SyncProducer

	running int32
}

// ProducerOption configures a KafkaProducer.
type ProducerOption func(*KafkaProducer)

// WithSyncProducer makes Start use sp instead of dialing the brokers.
func WithSyncProducer(sp sarama.SyncProducer) ProducerOption {
	return func(kp *KafkaProducer) {
		kp.newSyncProducer = func([]string, *sarama.Config) (sarama.SyncProducer, error) {
			return sp, nil
		}
	}
}

// NewKafkaProducer creates a new Kafka producer
func NewKafkaProducer(cfg config.KafkaConfig, logger *zap.Logger, opts ...ProducerOption) *KafkaProducer {
	kp := &KafkaProducer{
		config:          cfg,
		logger:          logger.With(zap.String("component", "kafka_producer")),
		newSyncProducer: sarama.NewSyncProducer,
	}
	for _, opt := range opts {
		opt(kp)
	}
	return kp
}

// Start connects to the brokers.
func (kp *KafkaProducer) Start(ctx context.Context) error {
	if atomic.LoadInt32(&kp.running) == 1 {
		return errors.New(errors.ErrorTypeStartup, "producer is already running")
	}

	sc, err := buildSaramaConfig(kp.config, kp.config.ProducerClientID)
	if err != nil {
		return err
	}

	producer, err := kp.newSyncProducer(kp.config.Brokers, sc)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeStartup, "failed to create sync producer").
			WithDetail("brokers", kp.config.Brokers)
	}
	kp.producer = producer
	atomic.StoreInt32(&kp.running, 1)

	kp.logger.Info("connected to Kafka",
		zap.Strings("brokers", kp.config.Brokers),
		zap.String("client_id", sc.ClientID))
	return nil
}

// Send publishes msg to topic. The key selects the partition, so messages
// sharing a key stay ordered.
func (kp *KafkaProducer) Send(ctx context.Context, topic, key string, msg Message) error {
	if atomic.LoadInt32(&kp.running) == 0 {
		return ErrProducerNotRunning
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := Encode(msg)
	if err != nil {
		return err
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(msg.EventType)},
			{Key: []byte("content-type"), Value: []byte("application/json")},
		},
	}
	if key != "" {
		message.Key = sarama.StringEncoder(key)
	}

	partition, offset, err := kp.producer.SendMessage(message)
	if err != nil {
		metrics.MessagesProduced.WithLabelValues(topic, metrics.ResultFailure).Inc()
		return errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to send message").
			WithDetail("topic", topic).
			WithDetail("event_type", msg.EventType)
	}
	metrics.MessagesProduced.WithLabelValues(topic, metrics.ResultSuccess).Inc()

	kp.logger.Debug("produced message",
		zap.String("topic", topic),
		zap.String("event_type", msg.EventType),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Close releases the underlying producer. Closing twice returns
// ErrProducerNotRunning and leaves the producer untouched.
func (kp *KafkaProducer) Close() error {
	if !atomic.CompareAndSwapInt32(&kp.running, 1, 0) {
		return ErrProducerNotRunning
	}

	if err := kp.producer.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeShutdown, "failed to close sync producer")
	}

	kp.logger.Info("Kafka producer closed")
	return nil
}
