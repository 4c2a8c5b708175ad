package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	domain "github.com/tailorline/storefront/internal/domain"
	"github.com/tailorline/storefront/internal/platform/config"
)

// Publisher delivers order events to a transport and releases its connections on Close.
type Publisher interface {
	Publish(ctx context.Context, event domain.OrderEvent) error
	Close() error
}

// New opens the transport selected by cfg.Transport.
func New(ctx context.Context, cfg config.NotificationConfig, logger *zap.Logger) (Publisher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Transport)) {
	case config.TransportPubSub:
		return newPubSubTransport(ctx, cfg)
	case config.TransportKafka:
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.Topic)
	case config.TransportLog, "":
		return NewLogPublisher(logger), nil
	default:
		return nil, fmt.Errorf("events: unsupported transport %q", cfg.Transport)
	}
}

type pubSubTransport struct {
	*PubSubPublisher
	client *pubsub.Client
}

func newPubSubTransport(ctx context.Context, cfg config.NotificationConfig) (Publisher, error) {
	if strings.TrimSpace(cfg.PubSubProject) == "" {
		return nil, errors.New("events: pubsub project id is required")
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSubProject)
	if err != nil {
		return nil, fmt.Errorf("events: create pubsub client: %w", err)
	}
	publisher, err := NewPubSubPublisher(client.Topic(cfg.Topic))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &pubSubTransport{PubSubPublisher: publisher, client: client}, nil
}

func (t *pubSubTransport) Close() error {
	_ = t.PubSubPublisher.Close()
	return t.client.Close()
}
