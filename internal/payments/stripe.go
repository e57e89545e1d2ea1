package payments

import (
	"context"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// StripeGateway implements Gateway over PaymentIntent hold/capture/cancel.
type StripeGateway struct{}

func NewStripeGateway(apiKey string) *StripeGateway {
	stripe.Key = apiKey
	return &StripeGateway{}
}

// Hold creates a PaymentIntent with capture_method=manual for the accepted
// bid amount. Amounts are dollars with cent precision on the wire.
func (s *StripeGateway) Hold(ctx context.Context, rideID string, amount float64) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(int64(amount*100 + 0.5)),
		Currency:      stripe.String(string(stripe.CurrencyUSD)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.AddMetadata("ride_id", rideID)
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

// Capture finalizes a previously-held PaymentIntent.
func (s *StripeGateway) Capture(ctx context.Context, holdRef string) error {
	_, err := paymentintent.Capture(holdRef, nil)
	return err
}

// Release cancels the hold without charging.
func (s *StripeGateway) Release(ctx context.Context, holdRef string) error {
	_, err := paymentintent.Cancel(holdRef, nil)
	return err
}
