package checkout

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v82"
)

// SessionRequest describes a single line item payment session.
type SessionRequest struct {
	Plan        string
	Description string
	AmountCents int64
	Currency    string
	Credits     int
	BuyerID     string
	SuccessURL  string
	CancelURL   string
}

// Gateway creates hosted payment sessions.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (string, error)
}

// StripeGateway creates Stripe Checkout sessions.
type StripeGateway struct {
	client *stripe.Client
}

func NewStripeGateway(secretKey string) *StripeGateway {
	return &StripeGateway{client: stripe.NewClient(secretKey)}
}

// CreateSession returns the hosted checkout URL, which may be empty.
func (g *StripeGateway) CreateSession(ctx context.Context, req SessionRequest) (string, error) {
	metadata := map[string]string{
		"credits": strconv.Itoa(req.Credits),
		"plan":    req.Plan,
		"buyerId": req.BuyerID,
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		Metadata:   metadata,
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{{
			PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
					Name:        stripe.String(req.Plan),
					Description: stripe.String(req.Description),
				},
				UnitAmount: stripe.Int64(req.AmountCents),
			},
			Quantity: stripe.Int64(1),
		}},
	}

	session, err := g.client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return session.URL, nil
}
