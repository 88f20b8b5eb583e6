package checkout

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/illegalcall/imaginify/internal/ledger"
	"github.com/illegalcall/imaginify/internal/models"
)

const (
	buyerID       = "44444444-4444-4444-8444-444444444444"
	webhookSecret = "whsec_test_secret"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateSession(ctx context.Context, req SessionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

var (
	txCols   = []string{"id", "stripe_id", "amount", "plan", "credits", "buyer_id", "created_at"}
	userCols = []string{"id", "external_id", "email", "username", "photo", "first_name", "last_name", "plan_id", "credit_balance", "created_at"}
)

func setup(t *testing.T) (*Service, sqlmock.Sqlmock, *MockGateway) {
	t.Helper()
	mockDB, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	db := sqlx.NewDb(mockDB, "sqlmock")

	gateway := new(MockGateway)
	svc := NewService(db, ledger.New(db, nil), gateway, Options{
		BaseURL:       "https://app.example.com/",
		WebhookSecret: webhookSecret,
	}, nil)
	return svc, sqlMock, gateway
}

func TestToCents(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{"9.99", 999},
		{"40", 4000},
		{"199", 19900},
		{"0.015", 1},
		{"19.999", 1999},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.want, ToCents(decimal.RequireFromString(tt.amount)))
		})
	}
}

func TestInitiateCheckout(t *testing.T) {
	svc, _, gateway := setup(t)

	gateway.On("CreateSession", mock.Anything, SessionRequest{
		Plan:        "Pro Package",
		Description: "Purchase 120 credits",
		AmountCents: 999,
		Currency:    "usd",
		Credits:     120,
		BuyerID:     buyerID,
		SuccessURL:  "https://app.example.com/profile",
		CancelURL:   "https://app.example.com/",
	}).Return("https://checkout.stripe.com/c/pay/cs_test_1", nil)

	url, err := svc.InitiateCheckout(context.Background(), "Pro Package", decimal.RequireFromString("9.99"), 120, buyerID)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", url)
	gateway.AssertExpectations(t)
}

func TestInitiateCheckoutWithoutURL(t *testing.T) {
	svc, _, gateway := setup(t)
	gateway.On("CreateSession", mock.Anything, mock.Anything).Return("", nil)

	url, err := svc.InitiateCheckout(context.Background(), "Pro Package", decimal.NewFromInt(40), 120, buyerID)
	assert.NoError(t, err)
	assert.Empty(t, url)
}

func TestInitiateCheckoutGatewayFailure(t *testing.T) {
	svc, _, gateway := setup(t)
	gateway.On("CreateSession", mock.Anything, mock.Anything).Return("", errors.New("card_declined"))

	_, err := svc.InitiateCheckout(context.Background(), "Pro Package", decimal.NewFromInt(40), 120, buyerID)
	assert.ErrorIs(t, err, models.ErrExternalService)
}

func TestInitiateCheckoutRejectsBadInput(t *testing.T) {
	svc, _, gateway := setup(t)

	_, err := svc.InitiateCheckout(context.Background(), "Pro Package", decimal.Zero, 120, buyerID)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = svc.InitiateCheckout(context.Background(), "Pro Package", decimal.NewFromInt(40), 120, "someone")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	gateway.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
}

func TestFinalizeTransactionGrantsCredits(t *testing.T) {
	svc, sqlMock, _ := setup(t)

	sqlMock.ExpectBegin()
	sqlMock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (stripe_id) DO NOTHING")).
		WithArgs("cs_test_1", int64(4000), "Pro Package", 120, buyerID).
		WillReturnRows(sqlmock.NewRows(txCols).AddRow("t1", "cs_test_1", 4000, "Pro Package", 120, buyerID, time.Now()))
	sqlMock.ExpectQuery(regexp.QuoteMeta("credit_balance = credit_balance + $1")).
		WithArgs(120, buyerID).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(buyerID, "ext", "b@example.com", "b", "", nil, nil, 1, 130, time.Now()))
	sqlMock.ExpectCommit()

	created, err := svc.FinalizeTransaction(context.Background(), models.Transaction{
		StripeID: "cs_test_1", Amount: 4000, Plan: "Pro Package", Credits: 120, BuyerID: buyerID,
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", created.ID)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestFinalizeTransactionReplayGrantsNothing(t *testing.T) {
	svc, sqlMock, _ := setup(t)

	sqlMock.ExpectBegin()
	sqlMock.ExpectQuery("INSERT INTO transactions").WillReturnRows(sqlmock.NewRows(txCols))
	sqlMock.ExpectRollback()

	_, err := svc.FinalizeTransaction(context.Background(), models.Transaction{
		StripeID: "cs_test_1", Amount: 4000, Plan: "Pro Package", Credits: 120, BuyerID: buyerID,
	})
	assert.ErrorIs(t, err, models.ErrAlreadyFinalized)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestFinalizeTransactionRollsBackOnGrantFailure(t *testing.T) {
	svc, sqlMock, _ := setup(t)

	sqlMock.ExpectBegin()
	sqlMock.ExpectQuery("INSERT INTO transactions").
		WillReturnRows(sqlmock.NewRows(txCols).AddRow("t1", "cs_test_2", 4000, "Pro Package", 120, buyerID, time.Now()))
	sqlMock.ExpectQuery("UPDATE users SET credit_balance").WillReturnRows(sqlmock.NewRows(userCols))
	sqlMock.ExpectRollback()

	_, err := svc.FinalizeTransaction(context.Background(), models.Transaction{
		StripeID: "cs_test_2", Amount: 4000, Credits: 120, BuyerID: buyerID,
	})
	assert.ErrorIs(t, err, models.ErrUserNotFound)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestFinalizeTransactionUnknownBuyer(t *testing.T) {
	svc, sqlMock, _ := setup(t)

	_, err := svc.FinalizeTransaction(context.Background(), models.Transaction{StripeID: "cs_test_3", Credits: 1, BuyerID: "nobody"})
	assert.ErrorIs(t, err, models.ErrUserNotFound)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func signedPayload(t *testing.T, payload string) (string, []byte) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Header, signed.Payload
}

func TestParseWebhookCheckoutCompleted(t *testing.T) {
	svc, _, _ := setup(t)
	payload := fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_1",
			"object": "checkout.session",
			"amount_total": 4000,
			"metadata": {"credits": "120", "plan": "Pro Package", "buyerId": %q}
		}}
	}`, buyerID)

	header, body := signedPayload(t, payload)
	event, err := svc.ParseWebhook(body, header)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "cs_test_1", event.SessionID)
	assert.Equal(t, int64(4000), event.Amount)
	assert.Equal(t, 120, event.Credits)
	assert.Equal(t, "Pro Package", event.Plan)
	assert.Equal(t, buyerID, event.BuyerID)

	tx := TransactionFromEvent(*event)
	assert.Equal(t, "cs_test_1", tx.StripeID)
	assert.Equal(t, 120, tx.Credits)
}

func TestParseWebhookIgnoresOtherEvents(t *testing.T) {
	svc, _, _ := setup(t)

	header, body := signedPayload(t, `{"id": "evt_2", "object": "event", "type": "charge.refunded", "data": {"object": {}}}`)
	event, err := svc.ParseWebhook(body, header)
	assert.NoError(t, err)
	assert.Nil(t, event)
}

func TestParseWebhookBadSignature(t *testing.T) {
	svc, _, _ := setup(t)

	_, err := svc.ParseWebhook([]byte(`{"type": "checkout.session.completed"}`), "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestLookupPlan(t *testing.T) {
	plan, err := LookupPlan("Premium Package")
	require.NoError(t, err)
	assert.Equal(t, 2000, plan.Credits)
	assert.Equal(t, int64(19900), ToCents(plan.Price))

	_, err = LookupPlan("Free")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = LookupPlan("Gold")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestListByBuyer(t *testing.T) {
	svc, sqlMock, _ := setup(t)
	now := time.Now()

	sqlMock.ExpectQuery(regexp.QuoteMeta("WHERE buyer_id = $1 ORDER BY created_at DESC")).
		WithArgs(buyerID).
		WillReturnRows(sqlmock.NewRows(txCols).
			AddRow("t2", "cs_2", 19900, "Premium Package", 2000, buyerID, now).
			AddRow("t1", "cs_1", 4000, "Pro Package", 120, buyerID, now.Add(-time.Hour)))

	txs, err := svc.ListByBuyer(context.Background(), buyerID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "cs_2", txs[0].StripeID)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestListByBuyerMalformedID(t *testing.T) {
	svc, sqlMock, _ := setup(t)

	txs, err := svc.ListByBuyer(context.Background(), "not-a-uuid")
	require.NoError(t, err)
	assert.Empty(t, txs)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}
