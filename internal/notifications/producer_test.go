package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"swapstation/internal/domain"
	"swapstation/internal/shared/config"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSwap() *domain.SwapTransaction {
	booking := uuid.New()
	return &domain.SwapTransaction{
		ID:        uuid.New(),
		SwapRef:   "SWP-20250301-ABC123",
		UserID:    uuid.New(),
		StationID: uuid.New(),
		BookingID: &booking,
		Status:    domain.SwapCompleted,
	}
}

func TestPublishSwapEvent(t *testing.T) {
	cfg := DefaultKafkaProducerConfig()
	producer := mocks.NewSyncProducer(t, cfg.SaramaConfig())
	swap := sampleSwap()
	at := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "swap-events" {
			return errors.New("wrong topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != swap.StationID.String() {
			return errors.New("event not keyed by station")
		}

		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var event SwapEvent
		if err := json.Unmarshal(value, &event); err != nil {
			return err
		}
		if event.Type != EventSwapCompleted || event.SwapID != swap.ID || !event.At.Equal(at) {
			return errors.New("unexpected payload")
		}

		for _, h := range msg.Headers {
			if string(h.Key) == "booking_id" && string(h.Value) == swap.BookingID.String() {
				return nil
			}
		}
		return errors.New("booking header missing")
	})

	publisher := NewKafkaPublisherWithProducer(producer, cfg)
	require.NoError(t, publisher.PublishSwapEvent(context.Background(), NewSwapEvent(swap, at)))
	require.NoError(t, publisher.Close())
}

func TestPublishSwapEventFailure(t *testing.T) {
	cfg := DefaultKafkaProducerConfig()
	producer := mocks.NewSyncProducer(t, cfg.SaramaConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewKafkaPublisherWithProducer(producer, cfg)
	err := publisher.PublishSwapEvent(context.Background(), NewSwapEvent(sampleSwap(), time.Now()))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, publisher.Close())
}

func TestEventTypeFollowsStatus(t *testing.T) {
	swap := sampleSwap()
	cases := map[domain.SwapStatus]EventType{
		domain.SwapInitiated:  EventSwapInitiated,
		domain.SwapInProgress: EventSwapInProgress,
		domain.SwapCompleted:  EventSwapCompleted,
		domain.SwapCancelled:  EventSwapCancelled,
		domain.SwapFailed:     EventSwapFailed,
	}
	for status, want := range cases {
		swap.Status = status
		assert.Equal(t, want, NewSwapEvent(swap, time.Now()).Type, string(status))
	}
}

func TestKafkaProducerConfigFrom(t *testing.T) {
	pc := KafkaProducerConfigFrom(config.KafkaConfig{Brokers: []string{"k1:9092"}, Topic: "swaps"})

	assert.Equal(t, []string{"k1:9092"}, pc.Brokers)
	assert.Equal(t, "swaps", pc.Topic)
	assert.Equal(t, "swapstation", pc.ClientID)
	assert.Equal(t, 1, pc.SaramaConfig().Net.MaxOpenRequests)
}
