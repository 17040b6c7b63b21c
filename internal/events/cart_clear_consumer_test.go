package events

import (
	"context"
	"sync"
	"testing"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type mockDropper struct {
	m       sync.Mutex
	dropped []string
}

func (m *mockDropper) Drop(_ context.Context, userID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.dropped = append(m.dropped, userID)
	return nil
}

func (m *mockDropper) droppedUsers() []string {
	m.m.Lock()
	defer m.m.Unlock()
	return append([]string(nil), m.dropped...)
}

func TestCartClearConsumer_DropsCartOnOrderPlaced(t *testing.T) {
	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()

	createTopic(t, brokerAddr, Topic)
	time.Sleep(5 * time.Second)

	dropper := &mockDropper{}
	consumer := NewCartClearConsumer(dropper, brokerAddr)
	defer consumer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go consumer.Run(ctx)

	writer := &kafkaGo.Writer{
		Addr:         kafkaGo.TCP(brokerAddr),
		Topic:        Topic,
		Balancer:     &kafkaGo.LeastBytes{},
		WriteTimeout: 10 * time.Second,
	}
	defer writer.Close()

	err := writer.WriteMessages(ctx, kafkaGo.Message{
		Key:   []byte("order-123"),
		Value: []byte(`{"order_id":"order-123","user_id":"user-456","total":"122.9784"}`),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		users := dropper.droppedUsers()
		return len(users) == 1 && users[0] == "user-456"
	}, 25*time.Second, 250*time.Millisecond, "cart was not dropped")
}

func TestCartClearConsumer_SkipsMalformedPayload(t *testing.T) {
	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()

	createTopic(t, brokerAddr, Topic)
	time.Sleep(5 * time.Second)

	dropper := &mockDropper{}
	consumer := NewCartClearConsumer(dropper, brokerAddr)
	defer consumer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go consumer.Run(ctx)

	writer := &kafkaGo.Writer{
		Addr:         kafkaGo.TCP(brokerAddr),
		Topic:        Topic,
		Balancer:     &kafkaGo.LeastBytes{},
		WriteTimeout: 10 * time.Second,
	}
	defer writer.Close()

	// Malformed payload, then a valid one. The consumer must skip the first
	// and still process the second.
	require.NoError(t, writer.WriteMessages(ctx,
		kafkaGo.Message{Key: []byte("bad"), Value: []byte(`{not json`)},
		kafkaGo.Message{Key: []byte("order-1"), Value: []byte(`{"order_id":"order-1","user_id":"user-1"}`)},
	))

	require.Eventually(t, func() bool {
		users := dropper.droppedUsers()
		return len(users) == 1 && users[0] == "user-1"
	}, 25*time.Second, 250*time.Millisecond, "valid message after malformed one was not processed")
}
