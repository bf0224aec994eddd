// Package transport defines the publisher/subscriber pair handed out for a
// running broker session. Each transport implementation lives in its own
// sub-package and registers itself with the transport registry.
package transport

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a builder.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes both halves and reports every failure.
func (t Transport) Close() error {
	var errs []error
	if t.Publisher != nil {
		if err := t.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if t.Subscriber != nil {
		if err := t.Subscriber.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Builder is the function signature for creating a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the values a transport needs to reach a broker.
type Config interface {
	// GetPubSubSystem returns the transport type name.
	GetPubSubSystem() string

	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string
}

// SessionConfig is a Config pointing at a single local broker.
type SessionConfig struct {
	System        string
	Brokers       []string
	ConsumerGroup string
}

func (c SessionConfig) GetPubSubSystem() string       { return c.System }
func (c SessionConfig) GetKafkaBrokers() []string     { return c.Brokers }
func (c SessionConfig) GetKafkaConsumerGroup() string { return c.ConsumerGroup }
