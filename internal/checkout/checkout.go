// Package checkout starts credit purchases with the payment provider and
// records confirmed payments.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/illegalcall/imaginify/internal/ledger"
	"github.com/illegalcall/imaginify/internal/metrics"
	"github.com/illegalcall/imaginify/internal/models"
	"github.com/illegalcall/imaginify/internal/store"
)

var hundred = decimal.NewFromInt(100)

type Options struct {
	Currency      string
	BaseURL       string
	WebhookSecret string
}

type Service struct {
	db           *sqlx.DB
	ledger       *ledger.Ledger
	gateway      Gateway
	transactions *store.Transactions
	opts         Options
	logger       *slog.Logger
}

func NewService(db *sqlx.DB, l *ledger.Ledger, gateway Gateway, opts Options, logger *slog.Logger) *Service {
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:           db,
		ledger:       l,
		gateway:      gateway,
		transactions: store.NewTransactions(db),
		opts:         opts,
		logger:       logger,
	}
}

// ToCents truncates amount * 100 to a whole number of cents.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Truncate(0).IntPart()
}

// InitiateCheckout opens a payment session for credits and returns its hosted
// URL. An empty URL with a nil error means the provider returned none.
func (s *Service) InitiateCheckout(ctx context.Context, plan string, amount decimal.Decimal, credits int, buyerID string) (string, error) {
	if plan == "" || credits <= 0 || !amount.IsPositive() {
		return "", fmt.Errorf("%w: plan, positive amount and credits are required", models.ErrInvalidInput)
	}
	if _, err := uuid.Parse(buyerID); err != nil {
		return "", fmt.Errorf("%w: buyer id %q", models.ErrInvalidInput, buyerID)
	}

	req := SessionRequest{
		Plan:        plan,
		Description: fmt.Sprintf("Purchase %d credits", credits),
		AmountCents: ToCents(amount),
		Currency:    s.opts.Currency,
		Credits:     credits,
		BuyerID:     buyerID,
		SuccessURL:  s.opts.BaseURL + "/profile",
		CancelURL:   s.opts.BaseURL + "/",
	}

	url, err := s.gateway.CreateSession(ctx, req)
	if err != nil {
		metrics.CheckoutSessions.WithLabelValues("error").Inc()
		s.logger.Error("Checkout session failed", "plan", plan, "buyerID", buyerID, "error", err)
		return "", fmt.Errorf("%w: %w", models.ErrExternalService, err)
	}

	metrics.CheckoutSessions.WithLabelValues("ok").Inc()
	s.logger.Info("🛒 Checkout session created", "plan", plan, "amountCents", req.AmountCents, "credits", credits, "buyerID", buyerID)
	return url, nil
}

// FinalizeTransaction records a completed session and grants its credits in
// one database transaction. A session that was already recorded yields
// ErrAlreadyFinalized and grants nothing.
func (s *Service) FinalizeTransaction(ctx context.Context, t models.Transaction) (created *models.Transaction, err error) {
	if t.StripeID == "" || t.Credits < 0 {
		return nil, fmt.Errorf("%w: session id and non-negative credits are required", models.ErrInvalidInput)
	}
	if _, err := uuid.Parse(t.BuyerID); err != nil {
		return nil, models.ErrUserNotFound
	}

	defer func() {
		switch {
		case err == nil:
			metrics.TransactionsFinalized.WithLabelValues("ok").Inc()
		case errors.Is(err, models.ErrAlreadyFinalized):
			metrics.TransactionsFinalized.WithLabelValues("duplicate").Inc()
		default:
			metrics.TransactionsFinalized.WithLabelValues("error").Inc()
		}
	}()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin finalize: %w", models.ErrPersistence, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("Rollback failed", "sessionID", t.StripeID, "error", rbErr)
			}
		}
	}()

	created, err = store.NewTransactions(tx).Insert(ctx, t)
	if err != nil {
		return nil, err
	}
	if created == nil {
		s.logger.Info("Session already finalized", "sessionID", t.StripeID)
		return nil, models.ErrAlreadyFinalized
	}

	buyer, err := s.ledger.WithTx(tx).AdjustBalance(ctx, t.BuyerID, t.Credits)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit finalize: %w", models.ErrPersistence, err)
	}

	s.logger.Info("✅ Transaction finalized", "sessionID", t.StripeID, "buyerID", t.BuyerID, "credits", t.Credits, "balance", buyer.CreditBalance)
	return created, nil
}

// ListByBuyer returns the buyer's purchases, newest first.
func (s *Service) ListByBuyer(ctx context.Context, buyerID string) ([]models.Transaction, error) {
	if _, err := uuid.Parse(buyerID); err != nil {
		return []models.Transaction{}, nil
	}
	return s.transactions.ListByBuyer(ctx, buyerID)
}

// ParseWebhook verifies a provider notification and converts a completed
// checkout session into a PaymentCompletedEvent. Other event types yield nil.
func (s *Service) ParseWebhook(payload []byte, signature string) (*models.PaymentCompletedEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.opts.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: webhook signature: %w", models.ErrUnauthorized, err)
	}

	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		s.logger.Debug("Ignoring webhook event", "type", event.Type)
		return nil, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("%w: checkout session payload: %w", models.ErrInvalidInput, err)
	}

	credits, err := strconv.Atoi(session.Metadata["credits"])
	if err != nil {
		return nil, fmt.Errorf("%w: credits metadata %q", models.ErrInvalidInput, session.Metadata["credits"])
	}

	return &models.PaymentCompletedEvent{
		SessionID:  session.ID,
		Amount:     session.AmountTotal,
		Plan:       session.Metadata["plan"],
		Credits:    credits,
		BuyerID:    session.Metadata["buyerId"],
		ReceivedAt: time.Now(),
	}, nil
}

// TransactionFromEvent maps a confirmation onto the record it finalizes.
func TransactionFromEvent(e models.PaymentCompletedEvent) models.Transaction {
	return models.Transaction{
		StripeID: e.SessionID,
		Amount:   e.Amount,
		Plan:     e.Plan,
		Credits:  e.Credits,
		BuyerID:  e.BuyerID,
	}
}
