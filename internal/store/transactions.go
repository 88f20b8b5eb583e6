package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/illegalcall/imaginify/internal/models"
)

const foreignKeyViolation = "23503"

const transactionColumns = `id, stripe_id, amount, plan, credits, buyer_id, created_at`

type Transactions struct {
	db sqlx.ExtContext
}

func NewTransactions(db sqlx.ExtContext) *Transactions {
	return &Transactions{db: db}
}

// Insert records a payment session. It returns (nil, nil) when the session
// id was already recorded.
func (s *Transactions) Insert(ctx context.Context, tx models.Transaction) (*models.Transaction, error) {
	var created models.Transaction
	err := sqlx.GetContext(ctx, s.db, &created,
		`INSERT INTO transactions (stripe_id, amount, plan, credits, buyer_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (stripe_id) DO NOTHING
		RETURNING `+transactionColumns,
		tx.StripeID, tx.Amount, tx.Plan, tx.Credits, tx.BuyerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return nil, models.ErrUserNotFound
		}
		return nil, persistenceErr("insert transaction", err)
	}
	return &created, nil
}

func (s *Transactions) ListByBuyer(ctx context.Context, buyerID string) ([]models.Transaction, error) {
	txs := []models.Transaction{}
	err := sqlx.SelectContext(ctx, s.db, &txs,
		`SELECT `+transactionColumns+` FROM transactions WHERE buyer_id = $1 ORDER BY created_at DESC`, buyerID)
	if err != nil {
		return nil, persistenceErr("list transactions", err)
	}
	return txs, nil
}
