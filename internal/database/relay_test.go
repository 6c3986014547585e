package database

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRedisClient mocks the Redis client for testing
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	called := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if err := called.Error(0); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal("1-0")
	}
	return cmd
}

func (m *MockRedisClient) Close() error {
	return m.Called().Error(0)
}

// MockOutboxRepository mocks the outbox repository for testing
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	called := m.Called(ctx, limit)
	if events := called.Get(0); events != nil {
		return events.([]*OutboxEvent), called.Error(1)
	}
	return nil, called.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	return m.Called(ctx, id, err).Error(0)
}

func testEvent(productURL string) *OutboxEvent {
	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateType: "product_record",
		AggregateID:   productURL,
		EventType:     "PRODUCT_SCRAPED",
		Payload:       json.RawMessage(`{"product_url":"` + productURL + `","label":"Baju Flanel"}`),
		TargetStream:  "stream:product_records",
		Status:        OutboxStatusPending,
		CreatedAt:     time.Now(),
	}
}

func TestRelay_ProcessEvents(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("successful event processing", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)

		relay := &Relay{
			redis:     mockRedis,
			outbox:    mockOutbox,
			logger:    logger.With("component", "relay"),
			interval:  time.Second,
			batchSize: 10,
		}

		event := testEvent("https://www.tokopedia.com/flanelstore/kemeja-flanel")

		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return args.Stream == "stream:product_records"
		})).Return(nil)
		mockOutbox.On("MarkProcessed", ctx, event.ID).Return(nil)

		err := relay.processEvents(ctx)
		require.NoError(t, err)

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("no pending events", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)

		relay := &Relay{
			redis:     mockRedis,
			outbox:    mockOutbox,
			logger:    logger.With("component", "relay"),
			interval:  time.Second,
			batchSize: 10,
		}

		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{}, nil)

		err := relay.processEvents(ctx)
		require.NoError(t, err)

		mockRedis.AssertNotCalled(t, "XAdd")
		mockOutbox.AssertNotCalled(t, "MarkProcessed")
	})

	t.Run("redis publish failure marks event failed", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)

		relay := &Relay{
			redis:     mockRedis,
			outbox:    mockOutbox,
			logger:    logger.With("component", "relay"),
			interval:  time.Second,
			batchSize: 10,
		}

		event := testEvent("https://www.tokopedia.com/toko/gagal")

		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
		mockRedis.On("XAdd", ctx, mock.Anything).Return(assert.AnError)
		mockOutbox.On("MarkFailed", ctx, event.ID, mock.Anything).Return(nil)

		err := relay.processEvents(ctx)
		require.NoError(t, err)

		mockOutbox.AssertNotCalled(t, "MarkProcessed")
		mockOutbox.AssertExpectations(t)
	})

	t.Run("one failure does not block the batch", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)

		relay := &Relay{
			redis:     mockRedis,
			outbox:    mockOutbox,
			logger:    logger.With("component", "relay"),
			interval:  time.Second,
			batchSize: 10,
		}

		failing := testEvent("https://www.tokopedia.com/toko/gagal")
		healthy := testEvent("https://www.tokopedia.com/toko/berhasil")

		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{failing, healthy}, nil)
		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return args.Values.(map[string]interface{})["aggregate_id"] == failing.AggregateID
		})).Return(assert.AnError)
		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return args.Values.(map[string]interface{})["aggregate_id"] == healthy.AggregateID
		})).Return(nil)
		mockOutbox.On("MarkFailed", ctx, failing.ID, mock.Anything).Return(nil)
		mockOutbox.On("MarkProcessed", ctx, healthy.ID).Return(nil)

		err := relay.processEvents(ctx)
		require.NoError(t, err)

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})
}

func TestRelay_PublishToRedis(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("stream envelope shape", func(t *testing.T) {
		mockRedis := new(MockRedisClient)

		relay := &Relay{
			redis:  mockRedis,
			logger: logger.With("component", "relay"),
		}

		event := testEvent("https://www.tokopedia.com/flanelstore/kemeja-flanel")

		var captured *redis.XAddArgs
		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			captured = args
			return true
		})).Return(nil)

		err := relay.publishToRedis(ctx, event)
		require.NoError(t, err)
		require.NotNil(t, captured)

		assert.Equal(t, "stream:product_records", captured.Stream)

		values := captured.Values.(map[string]interface{})
		assert.Equal(t, "PRODUCT_SCRAPED", values["type"])
		assert.Equal(t, event.AggregateID, values["aggregate_id"])
		assert.Equal(t, "product_record", values["aggregate_type"])

		var streamData map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &streamData))

		assert.Equal(t, event.ID.String(), streamData["id"])
		assert.Equal(t, "PRODUCT_SCRAPED", streamData["type"])

		payload := streamData["payload"].(map[string]interface{})
		assert.Equal(t, event.AggregateID, payload["product_url"])
		assert.Equal(t, "Baju Flanel", payload["label"])

		metadata := streamData["metadata"].(map[string]interface{})
		assert.Equal(t, "tokopedia-scraper", metadata["source"])
	})

	t.Run("invalid payload", func(t *testing.T) {
		mockRedis := new(MockRedisClient)

		relay := &Relay{
			redis:  mockRedis,
			logger: logger.With("component", "relay"),
		}

		event := testEvent("https://www.tokopedia.com/toko/rusak")
		event.Payload = json.RawMessage(`{invalid`)

		err := relay.publishToRedis(ctx, event)
		assert.Error(t, err)

		mockRedis.AssertNotCalled(t, "XAdd")
	})
}

func TestRelay_Start(t *testing.T) {
	logger := slog.Default()

	t.Run("stops on context cancellation", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)

		relay := &Relay{
			redis:     mockRedis,
			outbox:    mockOutbox,
			logger:    logger.With("component", "relay"),
			interval:  10 * time.Millisecond,
			batchSize: 10,
		}

		mockOutbox.On("GetPending", mock.Anything, 10).Return([]*OutboxEvent{}, nil)

		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			done <- relay.Start(ctx)
		}()

		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("relay did not stop after cancellation")
		}
	})
}

func TestNewRelay_Defaults(t *testing.T) {
	relay := NewRelay(nil, nil, slog.Default(), RelayConfig{})

	assert.Equal(t, 5*time.Second, relay.interval)
	assert.Equal(t, 100, relay.batchSize)
}
