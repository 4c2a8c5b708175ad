package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domain "github.com/tailorline/storefront/internal/domain"
	"github.com/tailorline/storefront/internal/platform/config"
)

func sampleEvent() domain.OrderEvent {
	return domain.OrderEvent{
		ID:         "evt-1",
		Type:       domain.EventOrderStatusChanged,
		OrderID:    "ord_01",
		UserID:     "user-1",
		Status:     domain.OrderStatusShipped,
		TotalPrice: decimal.RequireFromString("1460"),
		OccurredAt: time.Date(2026, 5, 6, 9, 0, 0, 0, time.UTC),
	}
}

func TestPubSubPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	topic, err := client.CreateTopic(ctx, "order-notifications")
	require.NoError(t, err)

	publisher, err := NewPubSubPublisher(topic)
	require.NoError(t, err)
	defer publisher.Close()

	require.NoError(t, publisher.Publish(ctx, sampleEvent()))

	messages := srv.Messages()
	require.Len(t, messages, 1)

	var payload domain.OrderEvent
	require.NoError(t, json.Unmarshal(messages[0].Data, &payload))
	assert.Equal(t, "ord_01", payload.OrderID)
	assert.True(t, payload.TotalPrice.Equal(decimal.NewFromInt(1460)))
	assert.Equal(t, domain.EventOrderStatusChanged, messages[0].Attributes["eventType"])
	assert.Equal(t, "shipped", messages[0].Attributes["status"])
	_, hasItem := messages[0].Attributes["itemId"]
	assert.False(t, hasItem, "empty attributes are dropped")
}

func TestNewPubSubPublisherRequiresTopic(t *testing.T) {
	_, err := NewPubSubPublisher(nil)
	assert.Error(t, err)
}

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherKeysByOrderID(t *testing.T) {
	writer := &recordingWriter{}
	publisher := newKafkaPublisher(writer)

	require.NoError(t, publisher.Publish(context.Background(), sampleEvent()))
	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "ord_01", string(msg.Key))
	assert.Equal(t, "eventType", msg.Headers[0].Key)
	assert.Equal(t, domain.EventOrderStatusChanged, string(msg.Headers[0].Value))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "shipped", payload["status"])

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}

func TestKafkaPublisherWrapsWriteErrors(t *testing.T) {
	boom := errors.New("broker down")
	publisher := newKafkaPublisher(&recordingWriter{err: boom})
	err := publisher.Publish(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, boom)
}

func TestNewKafkaPublisherValidates(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "topic")
	assert.Error(t, err)
	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "")
	assert.Error(t, err)
}

func TestLogPublisherWritesEvent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	publisher := NewLogPublisher(zap.New(core))

	require.NoError(t, publisher.Publish(context.Background(), sampleEvent()))
	entries := logs.FilterMessage("order event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "ord_01", entries[0].ContextMap()["orderId"])
}

func TestNewSelectsTransport(t *testing.T) {
	ctx := context.Background()

	publisher, err := New(ctx, config.NotificationConfig{Transport: config.TransportLog}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &LogPublisher{}, publisher)

	publisher, err = New(ctx, config.NotificationConfig{Transport: config.TransportKafka, KafkaBrokers: []string{"localhost:9092"}, Topic: "orders"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &KafkaPublisher{}, publisher)
	require.NoError(t, publisher.Close())

	_, err = New(ctx, config.NotificationConfig{Transport: config.TransportPubSub}, zap.NewNop())
	assert.Error(t, err)

	_, err = New(ctx, config.NotificationConfig{Transport: "smoke-signals"}, zap.NewNop())
	assert.Error(t, err)
}
