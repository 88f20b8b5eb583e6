package models

import "time"

// Transaction records one completed payment session.
type Transaction struct {
	ID        string    `json:"id" db:"id"`
	StripeID  string    `json:"stripeId" db:"stripe_id"`
	Amount    int64     `json:"amount" db:"amount"` // cents
	Plan      string    `json:"plan" db:"plan"`
	Credits   int       `json:"credits" db:"credits"`
	BuyerID   string    `json:"buyerId" db:"buyer_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// PaymentCompletedEvent is published when the payment provider confirms a checkout session.
type PaymentCompletedEvent struct {
	SessionID  string    `json:"session_id"`
	Amount     int64     `json:"amount"`
	Plan       string    `json:"plan"`
	Credits    int       `json:"credits"`
	BuyerID    string    `json:"buyer_id"`
	ReceivedAt time.Time `json:"received_at"`
}

// Payment processing states tracked per checkout session.
const (
	PaymentPending   = "pending"
	PaymentFailed    = "failed"
	PaymentCompleted = "completed"
)

// PaymentStatusKey is the Redis key tracking a checkout session.
func PaymentStatusKey(sessionID string) string {
	return "payment:" + sessionID
}
