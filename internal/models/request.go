package models

// CheckoutRequest selects a plan from the catalog to purchase.
type CheckoutRequest struct {
	// Plan name as listed in the catalog
	Plan string `json:"plan" validate:"required" example:"Pro Package"`
}

// CheckoutResponse carries the hosted checkout page of the payment provider.
type CheckoutResponse struct {
	URL string `json:"url" example:"https://checkout.stripe.com/c/pay/cs_test_..."`
}

// TransformResponse reports the balance left after a transformation was charged.
type TransformResponse struct {
	CreditBalance int `json:"creditBalance" example:"9"`
	Fee           int `json:"fee" example:"1"`
}
