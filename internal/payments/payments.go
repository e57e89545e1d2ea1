package payments

import (
	"context"
)

// Gateway is the payment-capture collaborator. The core only knows that funds
// are held when a ride books, captured no earlier than completion, and
// released when a booked ride cancels. The protocol behind those calls is the
// gateway's business.
type Gateway interface {
	Hold(ctx context.Context, rideID string, amount float64) (string, error)
	Capture(ctx context.Context, holdRef string) error
	Release(ctx context.Context, holdRef string) error
}

// NopGateway is used when no payment backend is configured.
type NopGateway struct{}

func (NopGateway) Hold(ctx context.Context, rideID string, amount float64) (string, error) {
	return "", nil
}

func (NopGateway) Capture(ctx context.Context, holdRef string) error { return nil }

func (NopGateway) Release(ctx context.Context, holdRef string) error { return nil }
