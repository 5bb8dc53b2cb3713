package mq

import (
	"context"
	"fmt"
	"strings"

	"github.com/quillpress/apiserver/config"
)

// Well-known message attributes.
const (
	AttrContentType = "content_type"
	AttrMessageID   = "message_id"
)

// Message is one delivery from either broker.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler is called once per delivery. A nil return acks the message;
// an error nacks it for redelivery.
type Handler func(ctx context.Context, msg Message) error

// Backend is implemented by the RabbitMQ and Pub/Sub clients. A channel
// names one aggregate's event stream, such as "posts".
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ is the broker handle shared by the event publisher and the events CLI.
type MQ struct {
	Backend
}

func New(backend Backend) *MQ {
	return &MQ{Backend: backend}
}

// Open connects the backend selected by cfg.Backend. It returns nil, nil
// when no backend is configured so callers can run without a broker.
func Open(ctx context.Context, cfg config.MQConfig) (*MQ, error) {
	var (
		backend Backend
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "none":
		return nil, nil
	case config.MQBackendRabbitMQ:
		backend, err = NewRabbitMQClient(cfg.RabbitMQ)
	case config.MQBackendPubSub:
		backend, err = NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("%s backend: %w", cfg.Backend, err)
	}
	return New(backend), nil
}
