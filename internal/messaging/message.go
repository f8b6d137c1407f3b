// Package messaging owns the message bus side of tenantsync: the event
// envelope, the Kafka producer and consumers, and the Manager that starts
// and stops them in order.
package messaging

import (
	"context"
	"strings"
	"time"

	"github.com/ajitpratap0/tenantsync/pkg/errors"
	jsonpool "github.com/ajitpratap0/tenantsync/pkg/json"
)

// Message is the envelope carried on the entity and sync topics.
type Message struct {
	EventType string                 `json:"eventType"`
	Payload   map[string]interface{} `json:"payload"`
	// Timestamp is milliseconds since the Unix epoch.
	Timestamp int64 `json:"timestamp"`
}

// NewMessage stamps an envelope with the current time.
func NewMessage(eventType string, payload map[string]interface{}) Message {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return Message{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Encode serializes a message for the wire.
func Encode(msg Message) ([]byte, error) {
	data, err := jsonpool.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode message").
			WithDetail("event_type", msg.EventType)
	}
	return data, nil
}

// Decode parses a wire message. A missing eventType is a validation error.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := jsonpool.Unmarshal(data, &msg); err != nil {
		return Message{}, errors.Wrap(err, errors.ErrorTypeValidation, "malformed message")
	}
	msg.EventType = strings.TrimSpace(msg.EventType)
	if msg.EventType == "" {
		return Message{}, errors.New(errors.ErrorTypeValidation, "message has no eventType")
	}
	if msg.Payload == nil {
		msg.Payload = map[string]interface{}{}
	}
	return msg, nil
}

// Publisher sends envelopes to a topic. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Send(ctx context.Context, topic, key string, msg Message) error
}

// Producer is the process-wide outbound publisher.
type Producer interface {
	Publisher
	Start(ctx context.Context) error
	Close() error
}

// Handler processes one consumed message value and reports success.
// A false result is logged and counted; the offset still advances because
// no error is echoed back to the bus.
type Handler func(ctx context.Context, value []byte) bool

// Consumer is a named subscription with a bound handler.
type Consumer interface {
	Name() string
	Start(ctx context.Context, handler Handler) error
	Stop() error
}
