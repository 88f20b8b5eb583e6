package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/illegalcall/imaginify/internal/config"
	"github.com/illegalcall/imaginify/internal/models"
)

// MockConsumerGroup mocks sarama.ConsumerGroup
type MockConsumerGroup struct {
	mock.Mock
}

func (m *MockConsumerGroup) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	args := m.Called(ctx, topics, handler)
	return args.Error(0)
}

func (m *MockConsumerGroup) Errors() <-chan error {
	args := m.Called()
	return args.Get(0).(chan error)
}

func (m *MockConsumerGroup) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockConsumerGroup) Pause(partitions map[string][]int32) {
	m.Called(partitions)
}

func (m *MockConsumerGroup) Resume(partitions map[string][]int32) {
	m.Called(partitions)
}

func (m *MockConsumerGroup) PauseAll() {
	m.Called()
}

func (m *MockConsumerGroup) ResumeAll() {
	m.Called()
}

// MockFinalizer mocks the checkout service
type MockFinalizer struct {
	mock.Mock
}

func (m *MockFinalizer) FinalizeTransaction(ctx context.Context, t models.Transaction) (*models.Transaction, error) {
	args := m.Called(ctx, t)
	tx, _ := args.Get(0).(*models.Transaction)
	return tx, args.Error(1)
}

// fakeSession records marked messages.
type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	marked []*sarama.ConsumerMessage
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

// setupTestWorker creates a test worker with mocked dependencies
func setupTestWorker(t *testing.T) (*Worker, *MockFinalizer, *miniredis.Miniredis, *MockConsumerGroup) {
	t.Helper()

	miniRedis := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: miniRedis.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	cfg := &config.Config{
		Kafka: config.KafkaConfig{
			Topic:        "payments",
			Group:        "payment-workers",
			RetryMax:     3,
			RetryBackoff: time.Millisecond,
		},
		Redis: config.RedisConfig{StatusTTL: time.Hour},
	}

	finalizer := new(MockFinalizer)
	consumer := new(MockConsumerGroup)
	return NewWorker(cfg, finalizer, redisClient, consumer, nil), finalizer, miniRedis, consumer
}

const buyerID = "88888888-8888-4888-8888-888888888888"

func eventMessage(t *testing.T, sessionID string) *sarama.ConsumerMessage {
	t.Helper()
	value, err := json.Marshal(models.PaymentCompletedEvent{
		SessionID: sessionID,
		Amount:    4000,
		Plan:      "Pro Package",
		Credits:   120,
		BuyerID:   buyerID,
	})
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: "payments", Key: []byte(sessionID), Value: value}
}

func expectedTx(sessionID string) models.Transaction {
	return models.Transaction{StripeID: sessionID, Amount: 4000, Plan: "Pro Package", Credits: 120, BuyerID: buyerID}
}

func TestProcessMessage(t *testing.T) {
	testCases := []struct {
		name        string
		setupMocks  func(f *MockFinalizer)
		calls       int
		wantStatus  string
		expectError bool
	}{
		{
			name: "finalized on first attempt",
			setupMocks: func(f *MockFinalizer) {
				f.On("FinalizeTransaction", mock.Anything, expectedTx("cs_1")).Return(&models.Transaction{ID: "t1"}, nil).Once()
			},
			calls:      1,
			wantStatus: models.PaymentCompleted,
		},
		{
			name: "replayed session counts as done",
			setupMocks: func(f *MockFinalizer) {
				f.On("FinalizeTransaction", mock.Anything, mock.Anything).Return(nil, models.ErrAlreadyFinalized).Once()
			},
			calls:      1,
			wantStatus: models.PaymentCompleted,
		},
		{
			name: "transient failure is retried",
			setupMocks: func(f *MockFinalizer) {
				f.On("FinalizeTransaction", mock.Anything, mock.Anything).Return(nil, models.ErrPersistence).Twice()
				f.On("FinalizeTransaction", mock.Anything, mock.Anything).Return(&models.Transaction{ID: "t1"}, nil).Once()
			},
			calls:      3,
			wantStatus: models.PaymentCompleted,
		},
		{
			name: "persistent failure exhausts retries and stays pending",
			setupMocks: func(f *MockFinalizer) {
				f.On("FinalizeTransaction", mock.Anything, mock.Anything).Return(nil, models.ErrPersistence)
			},
			calls:       3,
			wantStatus:  "",
			expectError: true,
		},
		{
			name: "unknown buyer is not retried",
			setupMocks: func(f *MockFinalizer) {
				f.On("FinalizeTransaction", mock.Anything, mock.Anything).Return(nil, models.ErrUserNotFound)
			},
			calls:       1,
			wantStatus:  models.PaymentFailed,
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			worker, finalizer, miniRedis, _ := setupTestWorker(t)
			tc.setupMocks(finalizer)

			err := worker.processMessage(context.Background(), eventMessage(t, "cs_1"))
			if tc.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			finalizer.AssertNumberOfCalls(t, "FinalizeTransaction", tc.calls)
			if tc.wantStatus == "" {
				assert.False(t, miniRedis.Exists("payment:cs_1"))
				return
			}
			status, err := miniRedis.Get("payment:cs_1")
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, status)
		})
	}
}

func TestProcessMessageRejectsGarbage(t *testing.T) {
	worker, finalizer, _, _ := setupTestWorker(t)

	err := worker.processMessage(context.Background(), &sarama.ConsumerMessage{Value: []byte("{not json")})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	err = worker.processMessage(context.Background(), &sarama.ConsumerMessage{Value: []byte(`{"credits": 5}`)})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	finalizer.AssertNotCalled(t, "FinalizeTransaction", mock.Anything, mock.Anything)
}

func TestConsumeClaimMarksSettledMessages(t *testing.T) {
	worker, finalizer, _, _ := setupTestWorker(t)
	finalizer.On("FinalizeTransaction", mock.Anything, expectedTx("cs_ok")).Return(&models.Transaction{ID: "t1"}, nil)
	finalizer.On("FinalizeTransaction", mock.Anything, expectedTx("cs_bad")).Return(nil, models.ErrUserNotFound)

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 2)}
	claim.messages <- eventMessage(t, "cs_ok")
	claim.messages <- eventMessage(t, "cs_bad")
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	require.NoError(t, worker.ConsumeClaim(session, claim))
	assert.Len(t, session.marked, 2)
}

func TestConsumeClaimLeavesTransientFailureForRedelivery(t *testing.T) {
	worker, finalizer, miniRedis, _ := setupTestWorker(t)
	finalizer.On("FinalizeTransaction", mock.Anything, expectedTx("cs_ok")).Return(&models.Transaction{ID: "t1"}, nil)
	finalizer.On("FinalizeTransaction", mock.Anything, expectedTx("cs_down")).Return(nil, models.ErrPersistence)

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 3)}
	claim.messages <- eventMessage(t, "cs_ok")
	claim.messages <- eventMessage(t, "cs_down")
	claim.messages <- eventMessage(t, "cs_after")
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	err := worker.ConsumeClaim(session, claim)
	assert.ErrorIs(t, err, models.ErrPersistence)

	require.Len(t, session.marked, 1)
	assert.Equal(t, []byte("cs_ok"), session.marked[0].Key)
	finalizer.AssertNumberOfCalls(t, "FinalizeTransaction", 1+worker.cfg.Kafka.RetryMax)
	finalizer.AssertNotCalled(t, "FinalizeTransaction", mock.Anything, expectedTx("cs_after"))
	assert.False(t, miniRedis.Exists("payment:cs_down"))
}

func TestWorkerStart(t *testing.T) {
	worker, _, _, mockConsumerGroup := setupTestWorker(t)

	errChan := make(chan error)
	mockConsumerGroup.On("Errors").Return(errChan)
	mockConsumerGroup.On("Consume", mock.Anything, []string{worker.cfg.Kafka.Topic}, mock.Anything).
		Run(func(args mock.Arguments) {
			handler := args.Get(2).(sarama.ConsumerGroupHandler)
			_ = handler.Setup(nil)
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := worker.Start(ctx)
	assert.NoError(t, err)
	mockConsumerGroup.AssertExpectations(t)
}

func TestWorkerStopsOnSignalBeforeFirstSession(t *testing.T) {
	worker, _, _, mockConsumerGroup := setupTestWorker(t)
	worker.notifySignals = func(c chan<- os.Signal) { c <- syscall.SIGTERM }

	errChan := make(chan error)
	mockConsumerGroup.On("Errors").Return(errChan)
	// no session is ever set up: the group never joins
	mockConsumerGroup.On("Consume", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil)

	done := make(chan error, 1)
	go func() { done <- worker.Start(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker ignored shutdown signal before its first session")
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(models.ErrPersistence))
	assert.True(t, retryable(errors.New("connection refused")))
	assert.False(t, retryable(models.ErrUserNotFound))
	assert.False(t, retryable(models.ErrInvalidInput))
}
