package payments

import (
	"context"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// FareClient wraps stripe-go for the ride fare hold/capture/cancel flow:
// a hold is placed when the ride starts, captured on completion and
// released when the ride is cancelled out from under the driver.
type FareClient struct{}

// NewFareClient initializes the stripe client with the given API key.
func NewFareClient(apiKey string) *FareClient {
	stripe.Key = apiKey
	return &FareClient{}
}

// Hold creates a PaymentIntent with capture_method=manual to hold the
// estimated fare. It returns the PaymentIntent ID on success.
func (f *FareClient) Hold(ctx context.Context, amountMinor int64, currency, customerID string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(currency),
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

// Capture finalizes a previously held fare.
func (f *FareClient) Capture(ctx context.Context, paymentIntentID string) error {
	_, err := paymentintent.Capture(paymentIntentID, nil)
	return err
}

// Cancel releases a held fare without charging it.
func (f *FareClient) Cancel(ctx context.Context, paymentIntentID string) error {
	_, err := paymentintent.Cancel(paymentIntentID, nil)
	return err
}
