// Package ledger owns every change to a user's credit balance.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/illegalcall/imaginify/internal/metrics"
	"github.com/illegalcall/imaginify/internal/models"
	"github.com/illegalcall/imaginify/internal/store"
)

const (
	adjustQuery = `UPDATE users SET credit_balance = credit_balance + $1 WHERE id = $2 RETURNING ` + store.UserColumns
	debitQuery  = `UPDATE users SET credit_balance = credit_balance - $1 WHERE id = $2 AND credit_balance >= $1 RETURNING ` + store.UserColumns
)

// Ledger applies signed credit deltas. The increment is evaluated by the
// database in a single statement, so concurrent adjustments never lose updates.
type Ledger struct {
	db     sqlx.ExtContext
	logger *slog.Logger
}

func New(db sqlx.ExtContext, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{db: db, logger: logger}
}

// WithTx returns a Ledger whose adjustments run inside tx.
func (l *Ledger) WithTx(tx *sqlx.Tx) *Ledger {
	return &Ledger{db: tx, logger: l.logger}
}

// AdjustBalance adds delta (which may be negative) to the user's balance and
// returns the updated user. The balance has no floor.
func (l *Ledger) AdjustBalance(ctx context.Context, userID string, delta int) (*models.User, error) {
	direction := metrics.Direction(delta)

	if _, err := uuid.Parse(userID); err != nil {
		metrics.LedgerAdjustments.WithLabelValues(direction, "not_found").Inc()
		return nil, models.ErrUserNotFound
	}

	var user models.User
	if err := sqlx.GetContext(ctx, l.db, &user, adjustQuery, delta, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			metrics.LedgerAdjustments.WithLabelValues(direction, "not_found").Inc()
			return nil, models.ErrUserNotFound
		}
		metrics.LedgerAdjustments.WithLabelValues(direction, "error").Inc()
		l.logger.Error("Credit adjustment failed", "userID", userID, "delta", delta, "error", err)
		return nil, fmt.Errorf("%w: adjust balance: %w", models.ErrPersistence, err)
	}

	metrics.LedgerAdjustments.WithLabelValues(direction, "ok").Inc()
	metrics.CreditsMoved.WithLabelValues(direction).Add(float64(abs(delta)))
	l.logger.Info("💳 Credit balance adjusted", "userID", userID, "delta", delta, "balance", user.CreditBalance)
	return &user, nil
}

// Debit subtracts amount only when the balance covers it, in the same single
// statement. Zero matched rows yield ErrInsufficientCredits, so callers that
// need to tell a missing user apart must resolve the user first.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int) (*models.User, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: debit amount %d is negative", models.ErrInvalidInput, amount)
	}
	if _, err := uuid.Parse(userID); err != nil {
		metrics.LedgerAdjustments.WithLabelValues("debit", "not_found").Inc()
		return nil, models.ErrUserNotFound
	}

	var user models.User
	if err := sqlx.GetContext(ctx, l.db, &user, debitQuery, amount, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			metrics.LedgerAdjustments.WithLabelValues("debit", "insufficient").Inc()
			return nil, fmt.Errorf("%w: cannot cover %d", models.ErrInsufficientCredits, amount)
		}
		metrics.LedgerAdjustments.WithLabelValues("debit", "error").Inc()
		l.logger.Error("Credit debit failed", "userID", userID, "amount", amount, "error", err)
		return nil, fmt.Errorf("%w: debit balance: %w", models.ErrPersistence, err)
	}

	metrics.LedgerAdjustments.WithLabelValues("debit", "ok").Inc()
	metrics.CreditsMoved.WithLabelValues("debit").Add(float64(amount))
	l.logger.Info("💳 Credit balance adjusted", "userID", userID, "delta", -amount, "balance", user.CreditBalance)
	return &user, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
